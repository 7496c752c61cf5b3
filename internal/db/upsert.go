package db

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Merge describes how staged rows are folded into a keyed table.
type Merge struct {
	Table   string
	Columns []string
	Keys    []string

	// Keep lists columns that an existing row retains on conflict.
	Keep []string

	// Newer names a timestamp column. When set, an incoming row only
	// replaces a stored one that is not more recent.
	Newer string
}

func (m Merge) validate() error {
	switch {
	case m.Table == "":
		return eris.New("db: merge: no table specified")
	case len(m.Columns) == 0:
		return eris.Errorf("db: merge %s: no columns specified", m.Table)
	case len(m.Keys) == 0:
		return eris.Errorf("db: merge %s: no conflict keys specified", m.Table)
	}
	for _, k := range m.Keys {
		if !slices.Contains(m.Columns, k) {
			return eris.Errorf("db: merge %s: key %q is not a column", m.Table, k)
		}
	}
	if m.Newer != "" && !slices.Contains(m.Columns, m.Newer) {
		return eris.Errorf("db: merge %s: newer column %q is not a column", m.Table, m.Newer)
	}
	return nil
}

// stage is the transaction-scoped table rows are copied into first.
func (m Merge) stage() pgx.Identifier {
	return pgx.Identifier{"_stage_" + strings.ReplaceAll(m.Table, ".", "_")}
}

// overwritten returns the columns rewritten on conflict.
func (m Merge) overwritten() []string {
	var out []string
	for _, c := range m.Columns {
		if slices.Contains(m.Keys, c) || slices.Contains(m.Keep, c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (m Merge) createStageSQL() string {
	return fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		m.stage().Sanitize(), identifier(m.Table).Sanitize())
}

// mergeSQL folds the stage into the target. DISTINCT ON keeps a batch with
// repeated keys from touching the same row twice.
func (m Merge) mergeSQL() string {
	cols := quoteAll(m.Columns)
	keys := quoteAll(m.Keys)

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s AS t (%s) SELECT DISTINCT ON (%s) %s FROM %s ON CONFLICT (%s)",
		identifier(m.Table).Sanitize(), cols, keys, cols, m.stage().Sanitize(), keys)

	set := m.overwritten()
	if len(set) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String()
	}
	assigns := make([]string, len(set))
	for i, c := range set {
		q := pgx.Identifier{c}.Sanitize()
		assigns[i] = q + " = EXCLUDED." + q
	}
	b.WriteString(" DO UPDATE SET ")
	b.WriteString(strings.Join(assigns, ", "))
	if m.Newer != "" {
		q := pgx.Identifier{m.Newer}.Sanitize()
		fmt.Fprintf(&b, " WHERE t.%s <= EXCLUDED.%s", q, q)
	}
	return b.String()
}

// Upsert copies rows into a temp table and merges them into m.Table in one
// transaction. It returns the number of inserted or updated rows.
func Upsert(ctx context.Context, pool Pool, m Merge, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := m.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: begin", m.Table)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err = tx.Exec(ctx, m.createStageSQL()); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: create stage", m.Table)
	}
	if _, err = tx.CopyFrom(ctx, m.stage(), m.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: copy into stage", m.Table)
	}
	tag, err := tx.Exec(ctx, m.mergeSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: insert on conflict", m.Table)
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: commit", m.Table)
	}
	return tag.RowsAffected(), nil
}

func quoteAll(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(parts, ", ")
}
