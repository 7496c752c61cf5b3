package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seen struct {
	key  string
	hits int
}

func seenRow(_ int, s seen) []any { return []any{s.key, s.hits} }

func TestCopy_NoItems(t *testing.T) {
	n, err := Copy(context.TODO(), nil, "seen", []string{"key", "hits"}, []seen(nil), seenRow)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestCopy(t *testing.T) {
	tests := []struct {
		name  string
		table string
		ident pgx.Identifier
	}{
		{"plain", "run_locations", pgx.Identifier{"run_locations"}},
		{"schema", "pickup.run_locations", pgx.Identifier{"pickup", "run_locations"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			mock.ExpectCopyFrom(tt.ident, []string{"key", "hits"}).WillReturnResult(2)

			items := []seen{{"a", 1}, {"b", 4}}
			n, err := Copy(context.Background(), mock, tt.table, []string{"key", "hits"}, items, seenRow)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCopy_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"run_locations"}, []string{"key", "hits"}).WillReturnError(errors.New("connection reset"))

	_, err = Copy(context.Background(), mock, "run_locations", []string{"key", "hits"}, []seen{{"a", 1}}, seenRow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: copy run_locations")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, `"points"`, identifier("points").Sanitize())
	assert.Equal(t, `"pickup"."points"`, identifier("pickup.points").Sanitize())
}
