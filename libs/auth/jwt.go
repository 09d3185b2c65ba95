package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the caller identity. Subject holds the user id of the patient,
// doctor or admin, and Role selects which ledger operations are allowed.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier validates bearer tokens. A shared HMAC secret is used when set;
// otherwise RS256 keys are resolved through the JWKS client by kid.
type Verifier struct {
	secret []byte
	jwks   *JWKSClient
	issuer string
}

func NewHS256Verifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func NewJWKSVerifier(jwks *JWKSClient, issuer string) *Verifier {
	return &Verifier{jwks: jwks, issuer: issuer}
}

func (v *Verifier) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var keyFunc jwt.Keyfunc
	if len(v.secret) > 0 {
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
		keyFunc = func(*jwt.Token) (interface{}, error) { return v.secret, nil }
	} else if v.jwks != nil {
		opts = append(opts, jwt.WithValidMethods([]string{"RS256"}))
		keyFunc = v.jwks.Keyfunc
	} else {
		return nil, errors.New("verifier has no key material")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignHS256 issues a token for local tooling and tests.
func SignHS256(claims Claims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), parts[1] != ""
}
