package domain

// ExternalGroup is a single group membership returned by the IdP's user
// groups endpoint. Only groups whose ClientID equals this application's
// configured client id may be translated into roles; the rest belong to
// other tenants of the IdP.
type ExternalGroup struct {
	GroupID         string `json:"group_id"`
	Name            string `json:"name"`
	Tag             string `json:"tag"`
	SharedUserGroup bool   `json:"shared_user_group"`
	CreatedBy       string `json:"created_by"`
	AppUID          string `json:"app_uid"`
	ClientID        string `json:"client_id"`
}

// UserGroups is the response envelope of the groups_for_user endpoint.
type UserGroups struct {
	UserGroups []ExternalGroup `json:"user_groups"`
}
