package auth

import (
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"

	svcErr "github.com/oggyb/buildermatch/internal/errors"
)

// Claims mirrors the identity provider's access token.
type Claims struct {
	jwt.StandardClaims
	UserMetadata map[string]string `json:"user_metadata,omitempty"`
}

// JWTVerifier validates HS256 access tokens issued by the identity provider.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// DevSecret signs tokens in development when no secret is configured.
const DevSecret = "buildermatch-dev-secret"

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses token and returns the session it identifies.
func (v *JWTVerifier) Verify(token string) (Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Session{}, fmt.Errorf("%w: invalid token", svcErr.ErrUnauthenticated)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Session{}, fmt.Errorf("%w: unexpected issuer", svcErr.ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return Session{}, fmt.Errorf("%w: token has no subject", svcErr.ErrUnauthenticated)
	}

	s := Session{UserID: claims.Subject}
	if md := claims.UserMetadata; md != nil {
		s.DisplayName = firstNonEmpty(md["full_name"], md["user_name"], md["name"])
		s.AvatarURL = firstNonEmpty(md["avatar_url"], md["picture"])
	}
	return s, nil
}

// Issue signs a token for userID. Used by the seed command and tests.
func (v *JWTVerifier) Issue(userID string, ttl time.Duration, metadata map[string]string) (string, error) {
	now := time.Now()
	claims := Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		UserMetadata: metadata,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
