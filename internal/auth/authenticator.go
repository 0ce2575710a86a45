package auth

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"

	"sharing/internal/clock"
	"sharing/pkg/types"
)

// AnonymousPrefix starts every uid minted by SignInAnonymously
const AnonymousPrefix = "anon-"

// Identity is the result of a successful sign-in
type Identity struct {
	UID       string
	Anonymous bool
	Claims    *PortalClaims
}

// Authenticator verifies custom tokens and mints anonymous identities
// With an empty secret, tokens are decoded without signature verification; the
// portal remains the authority and the store only needs the claims.
type Authenticator struct {
	secret []byte
	clock  clock.Clock

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// Option configures an Authenticator
type Option func(*Authenticator)

// WithClock sets the clock used for token expiry and anonymous ids
func WithClock(c clock.Clock) Option {
	return func(a *Authenticator) { a.clock = c }
}

// NewAuthenticator creates an Authenticator; secret may be empty
func NewAuthenticator(secret string, opts ...Option) *Authenticator {
	a := &Authenticator{
		secret:  []byte(secret),
		clock:   clock.RealClock{},
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Verifies reports whether token signatures are checked
func (a *Authenticator) Verifies() bool {
	return len(a.secret) > 0
}

// NewAnonymousUID mints a fresh, time-ordered anonymous uid
func (a *Authenticator) NewAnonymousUID() string {
	a.entropyMu.Lock()
	defer a.entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(a.clock.Now()), a.entropy)
	return AnonymousPrefix + strings.ToLower(id.String())
}

// SignInAnonymously returns a new anonymous identity
func (a *Authenticator) SignInAnonymously() *Identity {
	return &Identity{UID: a.NewAnonymousUID(), Anonymous: true}
}

// VerifyCustomToken checks token and extracts the identity it carries
// The uid is the "uid" claim, else the portal user id with '/' replaced, else "sub".
func (a *Authenticator) VerifyCustomToken(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrEmptyToken
	}

	claims := gojwt.MapClaims{}
	var err error
	if a.Verifies() {
		parser := gojwt.NewParser(
			gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
			gojwt.WithTimeFunc(a.clock.Now),
		)
		_, err = parser.ParseWithClaims(token, claims, func(*gojwt.Token) (interface{}, error) {
			return a.secret, nil
		})
	} else {
		parser := gojwt.NewParser()
		_, _, err = parser.ParseUnverified(token, claims)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	identity := &Identity{Claims: portalClaimsFrom(claims)}
	if uid, ok := claims["uid"].(string); ok && uid != "" {
		identity.UID = uid
	} else if identity.Claims != nil && identity.Claims.UserID != "" {
		identity.UID = types.NormalizePathSegment(identity.Claims.UserID)
	} else if sub, err := claims.GetSubject(); err == nil && sub != "" {
		identity.UID = sub
	}
	if identity.UID == "" {
		return nil, ErrMissingIdentity
	}
	return identity, nil
}

// IssueToken signs a custom token for uid carrying the given portal claims
// Used by the CLI and tests; production tokens come from the portal.
func (a *Authenticator) IssueToken(uid string, portal *PortalClaims, ttl time.Duration) (string, error) {
	if !a.Verifies() {
		return "", ErrMissingSecret
	}

	now := a.clock.Now()
	claims := gojwt.MapClaims{
		"uid": uid,
		"sub": uid,
		"iat": now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	if portal != nil {
		portal.apply(claims)
	}

	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
