package inmemdb

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/classroom/core"
)

var PasswordCost = bcrypt.DefaultCost // mockable

// Gateway is one client of a DB, it holds its own session.
type Gateway struct {
	db *DB

	mu      sync.RWMutex
	session *core.Identity
}

var _ core.Gateway = (*Gateway)(nil) // interface compliance check

func NewGateway(db *DB) *Gateway {
	return &Gateway{db: db}
}

func (gw *Gateway) setSession(ident *core.Identity) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.session = ident
}

func (gw *Gateway) Register(_ context.Context, email, password string, metadata map[string]string) (core.Identity, error) {
	email = core.CleanEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return core.Identity{}, err
	}

	gw.db.Lock()
	if _, ok := gw.db.users[email]; ok {
		gw.db.Unlock()
		return core.Identity{}, core.NewAuthError(core.ErrEmailTaken)
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	usr := &authUser{
		identity:     core.Identity{ID: uuid.New().String(), Email: email},
		passwordHash: hash,
		metadata:     meta,
	}
	gw.db.users[email] = usr
	gw.db.Unlock()

	ident := usr.identity
	gw.setSession(&ident)
	return ident, nil
}

func (gw *Gateway) Authenticate(_ context.Context, email, password string) (core.Identity, error) {
	gw.db.RLock()
	usr, ok := gw.db.users[core.CleanEmail(email)]
	gw.db.RUnlock()

	if !ok {
		return core.Identity{}, core.NewAuthError(core.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword(usr.passwordHash, []byte(password)); err != nil {
		return core.Identity{}, core.NewAuthError(core.ErrInvalidCredentials)
	}

	ident := usr.identity
	gw.setSession(&ident)
	return ident, nil
}

func (gw *Gateway) CurrentIdentity(_ context.Context) (core.Identity, error) {
	gw.mu.RLock()
	sess := gw.session
	gw.mu.RUnlock()
	if sess == nil {
		return core.Identity{}, core.ErrNoSession
	}

	// sessions of deleted users are not valid anymore
	gw.db.RLock()
	usr, ok := gw.db.users[sess.Email]
	gw.db.RUnlock()
	if !ok || usr.identity.ID != sess.ID {
		gw.setSession(nil)
		return core.Identity{}, core.ErrNoSession
	}
	return *sess, nil
}

func (gw *Gateway) EndSession(_ context.Context) error {
	gw.setSession(nil)
	return nil
}

// Metadata returns the metadata an account was registered with.
func (gw *Gateway) Metadata(email string) (map[string]string, bool) {
	gw.db.RLock()
	defer gw.db.RUnlock()
	usr, ok := gw.db.users[core.CleanEmail(email)]
	if !ok {
		return nil, false
	}
	return usr.metadata, true
}

func (gw *Gateway) Query(_ context.Context, relation string, filter core.Filter, ordering ...core.DBOrdering) ([]core.Record, error) {
	gw.db.RLock()
	defer gw.db.RUnlock()

	t, ok := gw.db.table(relation)
	if !ok {
		return nil, core.NewQueryError("query", relation, core.ErrUnknownRelation)
	}

	// newest rows first when the main ordering is descending, so that ties keep that order too
	desc := len(ordering) > 0 && !ordering[0].Ascending
	recs := make([]core.Record, 0, len(t.rows))
	for i := range t.rows {
		row := t.rows[i]
		if desc {
			row = t.rows[len(t.rows)-1-i]
		}
		if matches(row, filter) {
			recs = append(recs, row.Copy())
		}
	}

	if len(ordering) > 0 {
		sort.SliceStable(recs, func(i, j int) bool {
			for _, ord := range ordering {
				c := compareValues(recs[i][ord.Field], recs[j][ord.Field])
				if c == 0 {
					continue
				}
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
			return false
		})
	}
	return recs, nil
}

func (gw *Gateway) Insert(_ context.Context, relation string, rec core.Record) (core.Record, error) {
	gw.db.Lock()
	defer gw.db.Unlock()

	t, ok := gw.db.table(relation)
	if !ok {
		return nil, core.NewQueryError("insert", relation, core.ErrUnknownRelation)
	}

	row := rec.Copy()
	if id := row.String("id"); id == "" {
		row["id"] = uuid.New().String()
	}
	t.defaults(row, NowFunc().UTC())
	if t.violatesUnique(row) {
		return nil, core.NewQueryError("insert", relation, core.ErrDuplicate)
	}
	t.rows = append(t.rows, row)
	return row.Copy(), nil
}

func (gw *Gateway) Update(_ context.Context, relation string, filter core.Filter, patch core.Record) (core.Record, error) {
	gw.db.Lock()
	defer gw.db.Unlock()

	t, ok := gw.db.table(relation)
	if !ok {
		return nil, core.NewQueryError("update", relation, core.ErrUnknownRelation)
	}

	var first core.Record
	now := NowFunc().UTC()
	for _, row := range t.rows {
		if !matches(row, filter) {
			continue
		}
		for k, v := range patch {
			row[k] = v
		}
		if _, ok := row["updated_at"]; ok {
			row["updated_at"] = now
		}
		if first == nil {
			first = row.Copy()
		}
	}
	if first == nil {
		return nil, core.NewQueryError("update", relation, core.ErrNotFound)
	}
	return first, nil
}

func matches(row core.Record, filter core.Filter) bool {
	for col, val := range filter {
		if !valuesEqual(row[col], val) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compareValues(a, b interface{}) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			switch {
			case av.Before(bv):
				return -1
			case av.After(bv):
				return 1
			}
			return 0
		}
	case int:
		if bv, ok := b.(int); ok {
			return av - bv
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
