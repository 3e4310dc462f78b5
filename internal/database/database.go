package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour behind a connection pool.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// ForUpdate returns the row-locking suffix for a SELECT inside a transaction.
// SQLite has no row locks; its pool is capped at one connection so every
// transaction is already serialised.
func (d Dialect) ForUpdate() string {
	if d == MySQL {
		return " FOR UPDATE"
	}
	return ""
}

// DB is a connection pool tagged with its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open creates and configures a connection pool for the given driver and DSN,
// and pings it before returning.
func Open(driver, dsn string) (*DB, error) {
	d := Dialect(driver)

	var sqlDriver string
	switch d {
	case MySQL:
		sqlDriver = "mysql"
	case SQLite:
		sqlDriver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return nil, err
	}

	if d == SQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return &DB{DB: db, Dialect: d}, nil
}

// NewTest opens a migrated in-memory SQLite database.
func NewTest() (*DB, error) {
	db, err := Open(string(SQLite), "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// TestMySQLEnv names the DSN of a disposable MySQL database for the
// concurrency tests. The DSN must set parseTime=true.
const TestMySQLEnv = "SNAPLIST_TEST_MYSQL_DSN"

var ErrNoTestMySQL = errors.New(TestMySQLEnv + " is not set")

// NewTestMySQL opens the database named by TestMySQLEnv, migrates it and
// deletes every row, so each caller starts from an empty schema.
func NewTestMySQL() (*DB, error) {
	dsn := os.Getenv(TestMySQLEnv)
	if dsn == "" {
		return nil, ErrNoTestMySQL
	}
	db, err := Open(string(MySQL), dsn)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	for _, table := range []string{"promo_redemptions", "promo_codes", "generation_attempts", "credit_transactions", "accounts"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			db.Close()
			return nil, fmt.Errorf("empty %s: %w", table, err)
		}
	}
	return db, nil
}
