package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/classroom/core"
)

var NowFunc = time.Now // mockable

type (
	// DB is the shared in-memory backend. Several Gateways (clients) may use the same DB.
	DB struct {
		sync.RWMutex
		users  map[string]*authUser // by email
		tables map[string]*table
	}

	authUser struct {
		identity     core.Identity
		passwordHash []byte
		metadata     map[string]string
	}

	// table keeps rows in insertion order
	table struct {
		rows     []core.Record
		defaults func(rec core.Record, now time.Time)
		unique   []string
	}
)

func Open() *DB {
	return &DB{
		users: make(map[string]*authUser),
		tables: map[string]*table{
			core.RelationUserRoles: {
				defaults: func(rec core.Record, now time.Time) {
					setDefault(rec, "created_at", now)
				},
				unique: []string{"user_id"},
			},
			core.RelationCourses: {
				defaults: func(rec core.Record, now time.Time) {
					setDefault(rec, "description", "")
					setDefault(rec, "start_date", nil)
					setDefault(rec, "end_date", nil)
					setDefault(rec, "created_at", now)
					setDefault(rec, "updated_at", now)
				},
			},
			core.RelationEnrollments: {
				defaults: func(rec core.Record, now time.Time) {
					setDefault(rec, "enrolled_at", now)
					setDefault(rec, "progress", 0)
					setDefault(rec, "status", "active")
				},
			},
		},
	}
}

func setDefault(rec core.Record, col string, val interface{}) {
	if _, ok := rec[col]; !ok {
		rec[col] = val
	}
}

func (db *DB) table(relation string) (*table, bool) {
	t, ok := db.tables[relation]
	return t, ok
}

func (t *table) violatesUnique(rec core.Record) bool {
	for _, col := range t.unique {
		for _, row := range t.rows {
			if valuesEqual(row[col], rec[col]) {
				return true
			}
		}
	}
	return false
}
