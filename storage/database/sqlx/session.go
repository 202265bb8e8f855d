package sqlxdb

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/classroom/core"
)

var errInvalidToken = errors.New("invalid session token")

// SessionStore persists the session token between runs.
// Load returns an empty token when there is none.
type SessionStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

type Options struct {
	SecretKey    string
	SessionTTL   time.Duration
	Issuer       string
	PasswordCost int              // defaults to bcrypt.DefaultCost
	Now          func() time.Time // defaults to time.Now
}

type sessionClaims struct {
	jwt.StandardClaims
	Email string `json:"email"`
}

type tokenIssuer struct {
	key          []byte
	ttl          time.Duration
	issuer       string
	passwordCost int
	now          func() time.Time
}

func newTokenIssuer(opts Options) *tokenIssuer {
	ti := &tokenIssuer{
		key:          []byte(opts.SecretKey),
		ttl:          opts.SessionTTL,
		issuer:       opts.Issuer,
		passwordCost: opts.PasswordCost,
		now:          opts.Now,
	}
	if ti.passwordCost == 0 {
		ti.passwordCost = bcrypt.DefaultCost
	}
	if ti.now == nil {
		ti.now = time.Now
	}
	return ti
}

func (ti *tokenIssuer) issue(ident core.Identity) (string, error) {
	now := ti.now()
	claims := sessionClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   ident.ID,
			Issuer:    ti.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ti.ttl).Unix(),
		},
		Email: ident.Email,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.key)
}

func (ti *tokenIssuer) parse(token string) (core.Identity, error) {
	var claims sessionClaims
	parser := jwt.Parser{
		ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
		SkipClaimsValidation: true,
	}
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return ti.key, nil
	}); err != nil {
		return core.Identity{}, errors.Wrap(errInvalidToken, err.Error())
	}

	if !claims.VerifyExpiresAt(ti.now().Unix(), true) {
		return core.Identity{}, errors.Wrap(errInvalidToken, "expired")
	}
	if ti.issuer != "" && !claims.VerifyIssuer(ti.issuer, true) {
		return core.Identity{}, errors.Wrap(errInvalidToken, "wrong issuer")
	}
	if claims.Subject == "" {
		return core.Identity{}, errors.Wrap(errInvalidToken, "missing subject")
	}
	return core.Identity{ID: claims.Subject, Email: claims.Email}, nil
}
