package sqlite

import (
	"context"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestDB opens a migrated in-memory database named after the test.
// readers > 0 adds a separate read pool sharing the same memory database.
func setupTestDB(t *testing.T, readers int) *DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&%s", url.PathEscape(t.Name()), pragmas)

	db, err := openDSN(context.Background(), dsn, readers)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = migrateUp(db.Writer)
	require.NoError(t, err)

	return db
}
