// Package auth issues and validates the bearer tokens that authorization
// aware query providers and filters consult.
//
// A Provider signs JWTs with RS256 using a key generated at startup, or with
// HS256 when a shared secret is configured. Revoked tokens are remembered
// until they would have expired anyway.
package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"

	"github.com/getmockd/restwire/internal/id"
)

// ServiceName is the locator name under which the authorization server is
// registered.
const ServiceName = "auth.server"

// Authorizer is the optional authorization collaborator injected into query
// providers and create filters.
type Authorizer interface {
	// ValidateToken verifies a bearer token and returns its claims.
	ValidateToken(token string) (map[string]any, error)
	// Introspect reports the token state without failing.
	Introspect(token string) *Introspection
}

// Error is a sentinel error type for token validation.
type Error string

// Error implements the error interface.
func (e Error) Error() string { return string(e) }

var (
	// ErrInvalidToken is returned for tokens that fail parsing or verification.
	ErrInvalidToken = Error("invalid token")
	// ErrRevokedToken is returned for tokens revoked through Revoke.
	ErrRevokedToken = Error("token has been revoked")
)

// Config configures a Provider.
type Config struct {
	Issuer string `mapstructure:"issuer"`
	// Audience, when set, is stamped on issued tokens and required on
	// validated ones.
	Audience string `mapstructure:"audience"`
	// TokenExpiry accepts Go durations plus a day suffix, e.g. "7d".
	TokenExpiry string `mapstructure:"token_expiry"`
	// Secret switches signing to HS256.
	Secret        string         `mapstructure:"secret"`
	DefaultClaims map[string]any `mapstructure:"default_claims"`
}

// Introspection is an RFC 7662 style token description.
type Introspection struct {
	Active    bool           `json:"active"`
	Subject   string         `json:"sub,omitempty"`
	Scope     string         `json:"scope,omitempty"`
	ExpiresAt int64          `json:"exp,omitempty"`
	IssuedAt  int64          `json:"iat,omitempty"`
	Issuer    string         `json:"iss,omitempty"`
	TokenID   string         `json:"jti,omitempty"`
	Claims    map[string]any `json:"-"`
}

// Provider issues and validates tokens. It is safe for concurrent use.
type Provider struct {
	cfg         Config
	method      jwt.SigningMethod
	signKey     any
	verifyKey   any
	keyID       string
	tokenExpiry time.Duration
	revoked     *cache.Cache
}

var _ Authorizer = (*Provider)(nil)

// NewProvider creates a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	tokenExpiry := time.Hour
	if cfg.TokenExpiry != "" {
		var err error
		tokenExpiry, err = parseDuration(cfg.TokenExpiry)
		if err != nil {
			return nil, fmt.Errorf("invalid token_expiry: %w", err)
		}
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "https://restwire.local"
	}

	p := &Provider{
		cfg:         cfg,
		keyID:       id.Short(),
		tokenExpiry: tokenExpiry,
		revoked:     cache.New(tokenExpiry, 10*time.Minute),
	}

	if cfg.Secret != "" {
		p.method = jwt.SigningMethodHS256
		p.signKey = []byte(cfg.Secret)
		p.verifyKey = []byte(cfg.Secret)
		return p, nil
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	p.method = jwt.SigningMethodRS256
	p.signKey = privateKey
	p.verifyKey = &privateKey.PublicKey
	return p, nil
}

// Issue signs a token carrying claims on top of the configured defaults.
func (p *Provider) Issue(claims map[string]any) (string, error) {
	now := time.Now()

	jwtClaims := jwt.MapClaims{
		"iss": p.cfg.Issuer,
		"iat": now.Unix(),
		"exp": now.Add(p.tokenExpiry).Unix(),
		"jti": id.UUID(),
	}
	if p.cfg.Audience != "" {
		jwtClaims["aud"] = p.cfg.Audience
	}
	for k, v := range p.cfg.DefaultClaims {
		jwtClaims[k] = v
	}
	for k, v := range claims {
		jwtClaims[k] = v
	}

	token := jwt.NewWithClaims(p.method, jwtClaims)
	token.Header["kid"] = p.keyID
	return token.SignedString(p.signKey)
}

// ValidateToken verifies signature, expiry, issuer and audience.
func (p *Provider) ValidateToken(tokenString string) (map[string]any, error) {
	if _, revoked := p.revoked.Get(tokenString); revoked {
		return nil, ErrRevokedToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.cfg.Issuer),
		jwt.WithExpirationRequired(),
	}
	if p.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(p.cfg.Audience))
	}

	token, err := jwt.Parse(tokenString, func(*jwt.Token) (any, error) {
		return p.verifyKey, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: invalid claims format", ErrInvalidToken)
	}
	return claims, nil
}

// Revoke rejects tokenString from now on.
func (p *Provider) Revoke(tokenString string) {
	p.revoked.SetDefault(tokenString, time.Now())
}

// Introspect describes tokenString. Invalid or revoked tokens are inactive.
func (p *Provider) Introspect(tokenString string) *Introspection {
	claims, err := p.ValidateToken(tokenString)
	if err != nil {
		return &Introspection{Active: false}
	}

	in := &Introspection{Active: true, Claims: claims}
	in.Subject, _ = claims["sub"].(string)
	in.Scope, _ = claims["scope"].(string)
	in.Issuer, _ = claims["iss"].(string)
	in.TokenID, _ = claims["jti"].(string)
	if exp, err := jwt.MapClaims(claims).GetExpirationTime(); err == nil && exp != nil {
		in.ExpiresAt = exp.Unix()
	}
	if iat, err := jwt.MapClaims(claims).GetIssuedAt(); err == nil && iat != nil {
		in.IssuedAt = iat.Unix()
	}
	return in
}

// Algorithm returns the signing algorithm name.
func (p *Provider) Algorithm() string { return p.method.Alg() }

// TokenExpiry returns the access token lifetime.
func (p *Provider) TokenExpiry() time.Duration { return p.tokenExpiry }

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// parseDuration parses a duration string that supports days (e.g., "7d").
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, errors.New("empty duration string")
	}
	if s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err != nil {
			return 0, fmt.Errorf("invalid day format: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
