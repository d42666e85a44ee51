package edl

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jellydator/ttlcache/v3"

	"github.com/rasterlab/edlgate/domain"
	"github.com/rasterlab/edlgate/errors"
)

// JSONWebKey is a single RSA signing key from the IdP's published key set.
type JSONWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JSONWebKeySet is the JWKS document served at the IdP's JWKS path.
type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// keyCacheTTL bounds how long a fetched signing key is reused before the
// JWKS document is consulted again.
const keyCacheTTL = 15 * time.Minute

// TokenVerifier validates bearer tokens against the IdP's published key set
// and produces the base Principal for the request.
type TokenVerifier struct {
	jwksURL    string
	httpClient *http.Client
	keys       *ttlcache.Cache[string, *rsa.PublicKey]
	parser     *jwt.Parser
}

// NewTokenVerifier creates a verifier resolving keys from jwksURL. Keys are
// cached per kid, so steady-state validation does not hit the network.
func NewTokenVerifier(jwksURL string) *TokenVerifier {
	return NewTokenVerifierWithHTTP(jwksURL, http.DefaultClient)
}

// NewTokenVerifierWithHTTP is like NewTokenVerifier with an explicit
// http.Client.
func NewTokenVerifierWithHTTP(jwksURL string, httpClient *http.Client) *TokenVerifier {
	keys := ttlcache.New(
		ttlcache.WithTTL[string, *rsa.PublicKey](keyCacheTTL),
	)
	go keys.Start()

	return &TokenVerifier{
		jwksURL:    jwksURL,
		httpClient: httpClient,
		keys:       keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify checks the token's signature and expiry and returns the principal
// derived from its claims. The principal carries no authorities yet; the
// enricher adds them.
func (v *TokenVerifier) Verify(ctx context.Context, rawToken string) (*domain.Principal, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return v.signingKey(ctx, kid)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidToken, err)
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		// EDL tokens identify the user through the uid claim.
		subject, _ = claims["uid"].(string)
	}

	return &domain.Principal{
		Subject:  subject,
		RawToken: rawToken,
		Claims:   claims,
	}, nil
}

func (v *TokenVerifier) signingKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if item := v.keys.Get(kid); item != nil {
		return item.Value(), nil
	}

	keySet, err := v.fetchKeySet(ctx)
	if err != nil {
		return nil, err
	}

	var match *rsa.PublicKey
	for _, key := range keySet.Keys {
		if key.Kty != "RSA" {
			continue
		}
		pub, err := key.publicKey()
		if err != nil {
			return nil, err
		}
		v.keys.Set(key.Kid, pub, ttlcache.DefaultTTL)
		if key.Kid == kid {
			match = pub
		}
	}

	if match == nil {
		return nil, fmt.Errorf("no key %q in published key set", kid)
	}
	return match, nil
}

func (v *TokenVerifier) fetchKeySet(ctx context.Context) (*JSONWebKeySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var keySet JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&keySet); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}
	return &keySet, nil
}

// publicKey decodes the base64url modulus and exponent into an rsa.PublicKey.
func (k JSONWebKey) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus in key %q: %w", k.Kid, err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent in key %q: %w", k.Kid, err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(n),
		E: int(new(big.Int).SetBytes(e).Int64()),
	}, nil
}
