package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries runs the named statements in queries/*.sql against one store.
// Statements are written with ? placeholders and rebound once at load time
// for the store's driver.
type Queries struct {
	db    *sqlx.DB
	stmts map[string]string
}

// LoadQueries parses every embedded query file. Names must be unique across
// files; a later file silently replacing an earlier query is an error.
func LoadQueries(db *sqlx.DB) (*Queries, error) {
	paths, err := fs.Glob(queriesFS, "queries/*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to list query files: %w", err)
	}
	sort.Strings(paths)

	owner := make(map[string]string)
	var dots []*dotsql.DotSql
	for _, p := range paths {
		content, err := queriesFS.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", p, err)
		}
		dot, err := dotsql.LoadFromString(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", p, err)
		}
		for name := range dot.QueryMap() {
			if prev, dup := owner[name]; dup {
				return nil, fmt.Errorf("query %q defined in both %s and %s", name, prev, p)
			}
			owner[name] = p
		}
		dots = append(dots, dot)
	}

	merged := dotsql.Merge(dots...)
	stmts := make(map[string]string, len(owner))
	for name := range merged.QueryMap() {
		query, err := merged.Raw(name)
		if err != nil {
			return nil, fmt.Errorf("failed to render query %q: %w", name, err)
		}
		stmts[name] = db.Rebind(query)
	}
	return &Queries{db: db, stmts: stmts}, nil
}

// Names returns the loaded query names, sorted.
func (q *Queries) Names() []string {
	names := make([]string, 0, len(q.stmts))
	for name := range q.stmts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (q *Queries) stmt(name string) (string, error) {
	s, ok := q.stmts[name]
	if !ok {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return s, nil
}

// Exec runs a named statement.
func (q *Queries) Exec(ctx context.Context, name string, args ...interface{}) (sql.Result, error) {
	s, err := q.stmt(name)
	if err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, s, args...)
}

// Get scans the single row of a named query into dest.
func (q *Queries) Get(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	s, err := q.stmt(name)
	if err != nil {
		return err
	}
	return q.db.GetContext(ctx, dest, s, args...)
}

// Select scans every row of a named query into the slice dest.
func (q *Queries) Select(ctx context.Context, name string, dest interface{}, args ...interface{}) error {
	s, err := q.stmt(name)
	if err != nil {
		return err
	}
	return q.db.SelectContext(ctx, dest, s, args...)
}
