package sqlxdb

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/classroom/core"
)

const uniqueViolation = "23505"

// Gateway is the postgres backed core.Gateway.
// The session token of the client is persisted through a SessionStore.
type Gateway struct {
	db     *sqlx.DB
	store  SessionStore
	tokens *tokenIssuer
}

var _ core.Gateway = (*Gateway)(nil) // interface compliance check

func NewGateway(db *sqlx.DB, store SessionStore, opts Options) *Gateway {
	return &Gateway{
		db:     db,
		store:  store,
		tokens: newTokenIssuer(opts),
	}
}

func (gw *Gateway) Query(ctx context.Context, relation string, filter core.Filter, ordering ...core.DBOrdering) ([]core.Record, error) {
	query, args, err := selectQuery(relation, filter, ordering)
	if err != nil {
		return nil, core.NewQueryError("query", relation, err)
	}

	rows, err := gw.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewQueryError("query", relation, err)
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, core.NewQueryError("query", relation, err)
	}
	return recs, nil
}

func (gw *Gateway) Insert(ctx context.Context, relation string, rec core.Record) (core.Record, error) {
	row := rec.Copy()
	if row.String("id") == "" {
		row["id"] = uuid.New().String()
	}

	query, args, err := insertQuery(relation, row)
	if err != nil {
		return nil, core.NewQueryError("insert", relation, err)
	}

	out := make(map[string]interface{})
	if err = gw.db.QueryRowxContext(ctx, query, args...).MapScan(out); err != nil {
		return nil, core.NewQueryError("insert", relation, translateErr(err))
	}
	return core.Record(out), nil
}

func (gw *Gateway) Update(ctx context.Context, relation string, filter core.Filter, patch core.Record) (core.Record, error) {
	query, args, err := updateQuery(relation, filter, patch)
	if err != nil {
		return nil, core.NewQueryError("update", relation, err)
	}

	rows, err := gw.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, core.NewQueryError("update", relation, translateErr(err))
	}
	defer rows.Close()

	recs, err := scanRecords(rows)
	if err != nil {
		return nil, core.NewQueryError("update", relation, translateErr(err))
	}
	if len(recs) == 0 {
		return nil, core.NewQueryError("update", relation, core.ErrNotFound)
	}
	return recs[0], nil
}

func scanRecords(rows *sqlx.Rows) ([]core.Record, error) {
	recs := make([]core.Record, 0)
	for rows.Next() {
		rec := make(map[string]interface{})
		if err := rows.MapScan(rec); err != nil {
			return nil, err
		}
		recs = append(recs, core.Record(rec))
	}
	return recs, rows.Err()
}

// translateErr maps driver errors onto the core sentinels.
func translateErr(err error) error {
	var pqErr *pq.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return core.ErrNotFound
	case errors.As(err, &pqErr) && pqErr.Code == uniqueViolation:
		return errors.Wrap(core.ErrDuplicate, pqErr.Constraint)
	}
	return err
}
