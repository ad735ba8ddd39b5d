package pgtest

import (
	"context"
	"fmt"
	"os"

	"github.com/cmlabs-hris/hrms-payroll-core/db"
	"github.com/cmlabs-hris/hrms-payroll-core/internal/pkg/database"
)

// TestDatabaseSetup holds a connection to a throwaway database with the
// schema applied.
type TestDatabaseSetup struct {
	DB *database.DB
}

// NewTestDatabase connects to TEST_DATABASE_URL. ok is false when the
// variable is unset so callers can skip.
func NewTestDatabase(ctx context.Context) (setup *TestDatabaseSetup, ok bool, err error) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		return nil, false, nil
	}

	conn, err := database.NewPostgreSQLDB(ctx, dsn, database.PoolOptions{MaxConns: 4, MinConns: 1})
	if err != nil {
		return nil, true, fmt.Errorf("failed to connect to test database: %w", err)
	}
	if _, err := conn.Exec(ctx, db.Schema); err != nil {
		conn.Close()
		return nil, true, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &TestDatabaseSetup{DB: conn}, true, nil
}

// TruncateAllTables removes every row written by a test
func (t *TestDatabaseSetup) TruncateAllTables(ctx context.Context) error {
	tx, err := t.DB.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tables := []string{
		"outbox_events",
		"payroll_lines",
		"funding_allocations",
		"funding_sources",
		"probation_events",
		"employments",
		"tax_brackets",
		"benefit_settings",
	}

	for _, table := range tables {
		_, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
		if err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}

	return tx.Commit(ctx)
}

func (t *TestDatabaseSetup) Close() {
	t.DB.Close()
}
