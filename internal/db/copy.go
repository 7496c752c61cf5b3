package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Copy streams items into table over the COPY protocol, encoding each one
// with row. The table may carry a schema ("pickup.run_locations").
func Copy[T any](ctx context.Context, pool Pool, table string, columns []string, items []T, row func(int, T) []any) (int64, error) {
	if len(items) == 0 {
		return 0, nil
	}
	src := pgx.CopyFromSlice(len(items), func(i int) ([]any, error) {
		vals := row(i, items[i])
		if len(vals) != len(columns) {
			return nil, eris.Errorf("db: copy %s: row %d has %d values for %d columns", table, i, len(vals), len(columns))
		}
		return vals, nil
	})
	n, err := pool.CopyFrom(ctx, identifier(table), columns, src)
	if err != nil {
		return 0, eris.Wrapf(err, "db: copy %s", table)
	}
	return n, nil
}

func identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.SplitN(table, ".", 2))
}
