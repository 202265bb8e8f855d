package sqlxdb

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/classroom/core"
)

const authUsers = "auth_users"

type authUser struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	PasswordHash []byte `db:"password_hash"`
}

func (usr authUser) identity() core.Identity {
	return core.Identity{ID: usr.ID, Email: usr.Email}
}

func (gw *Gateway) Register(ctx context.Context, email, password string, metadata map[string]string) (core.Identity, error) {
	email = core.CleanEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), gw.tokens.passwordCost)
	if err != nil {
		return core.Identity{}, errors.Wrap(err, "hashing password")
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return core.Identity{}, errors.Wrap(err, "encoding metadata")
	}

	query, args, err := psql.Insert(authUsers).
		Columns("id", "email", "password_hash", "metadata").
		Values(uuid.New().String(), email, hash, string(meta)).
		Suffix("RETURNING id, email, password_hash").
		ToSql()
	if err != nil {
		return core.Identity{}, err
	}

	var usr authUser
	if err = gw.db.GetContext(ctx, &usr, query, args...); err != nil {
		if errors.Is(translateErr(err), core.ErrDuplicate) {
			return core.Identity{}, core.NewAuthError(core.ErrEmailTaken)
		}
		return core.Identity{}, errors.Wrap(err, "inserting user")
	}

	return gw.startSession(usr.identity())
}

func (gw *Gateway) Authenticate(ctx context.Context, email, password string) (core.Identity, error) {
	query, args, err := psql.Select("id", "email", "password_hash").
		From(authUsers).
		Where("email = ?", core.CleanEmail(email)).
		ToSql()
	if err != nil {
		return core.Identity{}, err
	}

	var usr authUser
	if err = gw.db.GetContext(ctx, &usr, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Identity{}, core.NewAuthError(core.ErrInvalidCredentials)
		}
		return core.Identity{}, errors.Wrap(err, "fetching user")
	}
	if err = bcrypt.CompareHashAndPassword(usr.PasswordHash, []byte(password)); err != nil {
		return core.Identity{}, core.NewAuthError(core.ErrInvalidCredentials)
	}

	query, args, _ = psql.Update(authUsers).Set("last_sign_in_at", gw.tokens.now().UTC()).Where("id = ?", usr.ID).ToSql()
	if _, err = gw.db.ExecContext(ctx, query, args...); err != nil {
		return core.Identity{}, errors.Wrap(err, "updating last sign in")
	}

	return gw.startSession(usr.identity())
}

// CurrentIdentity reads the persisted token. Expired or tampered tokens, and tokens of deleted users,
// are cleared and reported as core.ErrNoSession.
func (gw *Gateway) CurrentIdentity(ctx context.Context) (core.Identity, error) {
	token, err := gw.store.Load()
	if err != nil {
		return core.Identity{}, errors.Wrap(err, "loading session")
	}
	if token == "" {
		return core.Identity{}, core.ErrNoSession
	}

	ident, err := gw.tokens.parse(token)
	if err != nil {
		_ = gw.store.Clear()
		return core.Identity{}, core.ErrNoSession
	}

	query, args, err := psql.Select("id", "email", "password_hash").From(authUsers).Where("id = ?", ident.ID).ToSql()
	if err != nil {
		return core.Identity{}, err
	}
	var usr authUser
	if err = gw.db.GetContext(ctx, &usr, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = gw.store.Clear()
			return core.Identity{}, core.ErrNoSession
		}
		return core.Identity{}, errors.Wrap(err, "fetching user")
	}
	return usr.identity(), nil
}

func (gw *Gateway) EndSession(_ context.Context) error {
	return gw.store.Clear()
}

func (gw *Gateway) startSession(ident core.Identity) (core.Identity, error) {
	token, err := gw.tokens.issue(ident)
	if err != nil {
		return core.Identity{}, errors.Wrap(err, "issuing session token")
	}
	if err = gw.store.Save(token); err != nil {
		return core.Identity{}, errors.Wrap(err, "saving session")
	}
	return ident, nil
}
