package api

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"mural-api/domain"
)

const (
	defaultJWKSCacheTTL = 15 * time.Minute
	defaultSessionTTL   = 7 * 24 * time.Hour
	envSessionSecret    = "SESSION_SECRET"
	envSessionTTL       = "SESSION_TTL"
	envJWKSCacheTTL     = "JWKS_CACHE_TTL"
)

// Auth verifies bearer tokens and, when a session secret is configured,
// issues HS256 session tokens for credential logins. Without a secret it
// runs verify-only against an external RS256/JWKS issuer.
type Auth struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string

	sessionSecret []byte
	sessionTTL    time.Duration
	parser        *jwt.Parser
	keyCache      sync.Map
	keyCacheTTL   time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates an Auth instance. SESSION_SECRET switches it into local
// session mode; otherwise the provided JWKS is required for verification.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string) *Auth {
	a := &Auth{JWKS: jwks, Audience: audience, Issuer: issuer}
	a.keyCacheTTL = parseCacheTTL()
	a.sessionTTL = parseSessionTTL()

	if secret := os.Getenv(envSessionSecret); secret != "" {
		a.sessionSecret = []byte(secret)
	}

	if a.sessionSecret != nil {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		if jwks == nil {
			panic("SESSION_SECRET or a JWKS must be configured")
		}
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

func parseCacheTTL() time.Duration {
	ttl := defaultJWKSCacheTTL
	if raw := os.Getenv(envJWKSCacheTTL); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			panic("invalid JWKS_CACHE_TTL")
		}
		ttl = parsed
	}
	return ttl
}

func parseSessionTTL() time.Duration {
	ttl := defaultSessionTTL
	if raw := os.Getenv(envSessionTTL); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			panic("invalid SESSION_TTL")
		}
		ttl = parsed
	}
	return ttl
}

// IssueSession signs a session token for a freshly authenticated user.
func (a *Auth) IssueSession(user domain.User) (string, error) {
	if a.sessionSecret == nil {
		return "", errors.New("session issuing requires SESSION_SECRET")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"name": user.Name,
		"dept": user.Department,
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  now.Add(a.sessionTTL).Unix(),
	}
	if a.Audience != "" {
		claims["aud"] = a.Audience
	}
	if a.Issuer != "" {
		claims["iss"] = a.Issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.sessionSecret)
}

// IdentityFromHeader extracts the caller identity from a request's
// Authorization header.
func (a *Auth) IdentityFromHeader(h http.Header) (Identity, error) {
	token, err := bearerTokenFromHeader(h)
	if err != nil {
		return Identity{}, err
	}
	return a.IdentityFromBearer(token)
}

// IdentityFromBearer extracts the caller identity from a bearer token
// presented as raw bytes.
func (a *Auth) IdentityFromBearer(token []byte) (Identity, error) {
	if len(token) == 0 {
		return Identity{}, errBadAuthorization
	}

	tokenStr := readOnlyString(token)
	var parsedToken *jwt.Token
	var err error
	if a.sessionSecret != nil {
		parsedToken, err = a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.sessionSecret, nil
		})
	} else {
		parsedToken, err = a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			return a.keyForToken(t)
		})
	}
	if err != nil {
		return Identity{}, err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return Identity{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return Identity{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return Identity{}, errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return Identity{}, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return Identity{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, errors.New("missing sub")
	}

	id := Identity{UserID: sub}
	if name, ok := claims["name"].(string); ok {
		id.Name = name
	}
	if dept, ok := claims["dept"].(string); ok {
		id.Department = strings.TrimSpace(dept)
	}
	return id, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
