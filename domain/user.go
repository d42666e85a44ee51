package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the local identity record kept for every authenticated subject.
// Username equals the IdP subject (the "uid" claim) and is unique; the
// profile fields are refreshed from the IdP on every successful login.
type User struct {
	ID        uuid.UUID `bson:"_id"`
	Username  string    `bson:"username"`
	Email     string    `bson:"email"`
	FirstName string    `bson:"first_name"`
	LastName  string    `bson:"last_name"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewUser creates a user with a freshly generated identifier.
func NewUser(username, email, firstName, lastName string) *User {
	return &User{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
	}
}

// Profile is the set of attributes resolved from the IdP at bootstrap time,
// either from the interactive login principal or from the user-info endpoint.
type Profile struct {
	Username  string `json:"uid"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email_address"`
}
