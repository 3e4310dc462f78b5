package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestAppliesMigrations(t *testing.T) {
	db, err := NewTest()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	for _, table := range []string{"accounts", "credit_transactions", "generation_attempts", "promo_codes", "promo_redemptions"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}

	// Re-running is a no-op.
	require.NoError(t, RunMigrations(db))
}

func TestSchemaRejectsNegativeCredits(t *testing.T) {
	db, err := NewTest()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Now().UTC()
	_, err = db.ExecContext(context.Background(),
		`INSERT INTO accounts (email, password_hash, credits, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		"neg@example.com", "x", -1, now, now)
	assert.Error(t, err)
}

func TestIsDuplicateKeyErr(t *testing.T) {
	db, err := NewTest()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.Now().UTC()
	insert := `INSERT INTO accounts (email, password_hash, created_at, updated_at) VALUES (?, ?, ?, ?)`
	_, err = db.Exec(insert, "dup@example.com", "x", now, now)
	require.NoError(t, err)
	_, err = db.Exec(insert, "dup@example.com", "x", now, now)
	require.Error(t, err)

	assert.True(t, IsDuplicateKeyErr(err))
	assert.True(t, IsDuplicateKeyErr(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.False(t, IsDuplicateKeyErr(&mysql.MySQLError{Number: 1213, Message: "Deadlock"}))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
	assert.False(t, IsDuplicateKeyErr(nil))
}

func TestForUpdate(t *testing.T) {
	assert.Equal(t, " FOR UPDATE", MySQL.ForUpdate())
	assert.Equal(t, "", SQLite.ForUpdate())
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "whatever")
	assert.Error(t, err)
}

func TestNewTestMySQL_SkippedWithoutDSN(t *testing.T) {
	t.Setenv(TestMySQLEnv, "")

	_, err := NewTestMySQL()
	assert.ErrorIs(t, err, ErrNoTestMySQL)
}
