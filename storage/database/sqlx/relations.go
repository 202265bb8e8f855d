package sqlxdb

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/trezcool/classroom/core"
)

var (
	ErrUnknownColumn = errors.New("unknown column")

	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	// relations exposed through the Gateway, with their columns
	relations = map[string][]string{
		core.RelationUserRoles:   {"id", "user_id", "role", "created_at"},
		core.RelationCourses:     {"id", "title", "description", "teacher_id", "start_date", "end_date", "created_at", "updated_at"},
		core.RelationEnrollments: {"id", "student_id", "course_id", "enrolled_at", "progress", "status"},
	}
)

func relationColumns(relation string) ([]string, error) {
	cols, ok := relations[relation]
	if !ok {
		return nil, core.ErrUnknownRelation
	}
	return cols, nil
}

// checkColumns makes sure every key is a column of the relation; keys end up in SQL text.
func checkColumns(relation string, keys ...string) error {
	cols, err := relationColumns(relation)
	if err != nil {
		return err
	}
	for _, key := range keys {
		found := false
		for _, col := range cols {
			if key == col {
				found = true
				break
			}
		}
		if !found {
			return errors.Wrapf(ErrUnknownColumn, "%s.%s", relation, key)
		}
	}
	return nil
}

func mapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func returning(cols []string) string {
	return "RETURNING " + strings.Join(cols, ", ")
}

func selectQuery(relation string, filter core.Filter, ordering []core.DBOrdering) (string, []interface{}, error) {
	cols, err := relationColumns(relation)
	if err != nil {
		return "", nil, err
	}
	if err = checkColumns(relation, mapKeys(filter)...); err != nil {
		return "", nil, err
	}

	q := psql.Select(cols...).From(relation)
	if len(filter) > 0 {
		q = q.Where(sq.Eq(filter))
	}
	for _, ord := range ordering {
		if err = checkColumns(relation, ord.Field); err != nil {
			return "", nil, err
		}
		q = q.OrderBy(ord.String())
	}
	return q.ToSql()
}

func insertQuery(relation string, rec core.Record) (string, []interface{}, error) {
	cols, err := relationColumns(relation)
	if err != nil {
		return "", nil, err
	}
	if err = checkColumns(relation, mapKeys(rec)...); err != nil {
		return "", nil, err
	}
	return psql.Insert(relation).SetMap(rec).Suffix(returning(cols)).ToSql()
}

func updateQuery(relation string, filter core.Filter, patch core.Record) (string, []interface{}, error) {
	cols, err := relationColumns(relation)
	if err != nil {
		return "", nil, err
	}
	if len(filter) == 0 {
		return "", nil, errors.New("update without filter")
	}
	if len(patch) == 0 {
		return "", nil, errors.New("empty patch")
	}
	if err = checkColumns(relation, mapKeys(filter)...); err != nil {
		return "", nil, err
	}
	if err = checkColumns(relation, mapKeys(patch)...); err != nil {
		return "", nil, err
	}
	return psql.Update(relation).SetMap(patch).Where(sq.Eq(filter)).Suffix(returning(cols)).ToSql()
}
