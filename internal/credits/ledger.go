// Package credits owns an account's spendable balance and its generation lock.
//
// Every mutation of accounts.credits and the lock columns (in_progress,
// locked_at, lock_token) goes through the Ledger. Each operation is one database
// transaction that starts with a locking read of the account row, so the check
// and the write can never be observed apart. Operations on different accounts
// touch different rows and do not block each other (MySQL/InnoDB row locks).
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/01moynul/snaplist/internal/database"
	"github.com/01moynul/snaplist/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Reason explains why TryBeginGeneration refused to start.
type Reason string

const (
	AlreadyInProgress   Reason = "already_in_progress"
	InsufficientCredits Reason = "insufficient_credits"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidAmount   = errors.New("credit amount must be positive")
)

// Begin is the result of TryBeginGeneration. When OK is false, Reason is set
// and nothing was changed. Token identifies the lock holder and must be passed
// to EndGeneration.
type Begin struct {
	OK     bool
	Reason Reason
	Exempt bool
	Token  string
}

type accountState struct {
	credits    int
	inProgress bool
	exempt     bool
}

// Ledger performs atomic balance and lock operations on accounts.
type Ledger struct {
	db  *database.DB
	log *zap.Logger
	now func() time.Time
}

func NewLedger(db *database.DB, log *zap.Logger) *Ledger {
	return &Ledger{
		db:  db,
		log: log.Named("credits"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// lockAccount reads the balance columns of one account inside tx,
// holding the row lock until tx ends.
func (l *Ledger) lockAccount(ctx context.Context, tx *sql.Tx, accountID int64) (accountState, error) {
	var st accountState
	query := "SELECT credits, in_progress, is_exempt FROM accounts WHERE id = ?" + l.db.Dialect.ForUpdate()
	err := tx.QueryRowContext(ctx, query, accountID).Scan(&st.credits, &st.inProgress, &st.exempt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, ErrAccountNotFound
		}
		return st, fmt.Errorf("lock account %d: %w", accountID, err)
	}
	return st, nil
}

// addJournal appends a row to credit_transactions. It MUST be called inside tx.
func (l *Ledger) addJournal(ctx context.Context, tx *sql.Tx, accountID int64, txType string, amount, balanceAfter int, notes string) error {
	query := `
		INSERT INTO credit_transactions (account_id, type, amount, balance_after, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, query, accountID, txType, amount, balanceAfter, notes, l.now()); err != nil {
		return fmt.Errorf("add %s journal row: %w", txType, err)
	}
	return nil
}

// TryBeginGeneration takes the account's generation lock and debits one credit
// (none for exempt accounts) in a single transaction. A busy account or an
// empty balance is reported through Begin.Reason, not as an error.
func (l *Ledger) TryBeginGeneration(ctx context.Context, accountID int64) (Begin, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Begin{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	st, err := l.lockAccount(ctx, tx, accountID)
	if err != nil {
		return Begin{}, err
	}

	if st.inProgress {
		return Begin{Reason: AlreadyInProgress, Exempt: st.exempt}, nil
	}
	if !st.exempt && st.credits <= 0 {
		return Begin{Reason: InsufficientCredits}, nil
	}

	charge := 1
	if st.exempt {
		charge = 0
	}

	now := l.now()
	token := uuid.NewString()
	update := `
		UPDATE accounts
		SET in_progress = 1, locked_at = ?, lock_token = ?, credits = credits - ?, updated_at = ?
		WHERE id = ?`
	if _, err := tx.ExecContext(ctx, update, now, token, charge, now, accountID); err != nil {
		return Begin{}, fmt.Errorf("take generation lock: %w", err)
	}

	if charge > 0 {
		if err := l.addJournal(ctx, tx, accountID, models.CreditDebit, -charge, st.credits-charge, "listing generation"); err != nil {
			return Begin{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Begin{}, fmt.Errorf("commit generation lock: %w", err)
	}
	return Begin{OK: true, Exempt: st.exempt, Token: token}, nil
}

// EndGeneration releases the generation lock taken with token. If the lock was
// since reaped and taken by another attempt, that attempt's lock is left alone.
// It is safe to call more than once.
func (l *Ledger) EndGeneration(ctx context.Context, accountID int64, token string) error {
	query := `
		UPDATE accounts
		SET in_progress = 0, locked_at = NULL, lock_token = NULL, updated_at = ?
		WHERE id = ? AND lock_token = ?`
	res, err := l.db.ExecContext(ctx, query, l.now(), accountID, token)
	if err != nil {
		return fmt.Errorf("release generation lock for account %d: %w", accountID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		l.log.Debug("generation lock no longer held", zap.Int64("account_id", accountID))
	}
	return nil
}

// Refund gives credits back after a debited attempt did not produce a full
// result. Exempt accounts were never charged, so their balance is left alone.
func (l *Ledger) Refund(ctx context.Context, accountID int64, amount int, notes string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	st, err := l.lockAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if st.exempt {
		return nil
	}

	if err := l.applyCredit(ctx, tx, accountID, amount); err != nil {
		return err
	}
	if err := l.addJournal(ctx, tx, accountID, models.CreditRefund, amount, st.credits+amount, notes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refund: %w", err)
	}
	return nil
}

// Grant adds credits to any account, exempt or not.
func (l *Ledger) Grant(ctx context.Context, accountID int64, amount int, notes string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := l.GrantTx(ctx, tx, accountID, amount, notes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grant: %w", err)
	}
	return nil
}

// GrantTx is Grant inside a caller-owned transaction. The caller commits.
func (l *Ledger) GrantTx(ctx context.Context, tx *sql.Tx, accountID int64, amount int, notes string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	st, err := l.lockAccount(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if err := l.applyCredit(ctx, tx, accountID, amount); err != nil {
		return err
	}
	return l.addJournal(ctx, tx, accountID, models.CreditGrant, amount, st.credits+amount, notes)
}

func (l *Ledger) applyCredit(ctx context.Context, tx *sql.Tx, accountID int64, amount int) error {
	query := "UPDATE accounts SET credits = credits + ?, updated_at = ? WHERE id = ?"
	if _, err := tx.ExecContext(ctx, query, amount, l.now(), accountID); err != nil {
		return fmt.Errorf("credit account %d: %w", accountID, err)
	}
	return nil
}

// Balance returns the account row as currently committed.
func (l *Ledger) Balance(ctx context.Context, accountID int64) (models.Account, error) {
	var (
		acc      models.Account
		lockedAt sql.NullTime
	)
	query := `
		SELECT id, email, role, credits, in_progress, locked_at, is_exempt, created_at, updated_at
		FROM accounts WHERE id = ?`
	err := l.db.QueryRowContext(ctx, query, accountID).Scan(
		&acc.ID,
		&acc.Email,
		&acc.Role,
		&acc.Credits,
		&acc.InProgress,
		&lockedAt,
		&acc.IsExempt,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return acc, ErrAccountNotFound
		}
		return acc, fmt.Errorf("read account %d: %w", accountID, err)
	}
	if lockedAt.Valid {
		acc.LockedAt = &lockedAt.Time
	}
	return acc, nil
}

// History lists the account's journal rows, newest first.
func (l *Ledger) History(ctx context.Context, accountID int64, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, account_id, type, amount, balance_after, notes, created_at
		FROM credit_transactions
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	rows, err := l.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query credit history: %w", err)
	}
	defer rows.Close()

	history := []models.CreditTransaction{}
	for rows.Next() {
		var t models.CreditTransaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.BalanceAfter, &t.Notes, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan credit history: %w", err)
		}
		history = append(history, t)
	}
	return history, rows.Err()
}

// SetExempt toggles administrative exemption. It does not touch the lock.
func (l *Ledger) SetExempt(ctx context.Context, accountID int64, exempt bool) error {
	flag := 0
	if exempt {
		flag = 1
	}
	res, err := l.db.ExecContext(ctx, "UPDATE accounts SET is_exempt = ?, updated_at = ? WHERE id = ?", flag, l.now(), accountID)
	if err != nil {
		return fmt.Errorf("set exemption for account %d: %w", accountID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ReleaseStale clears generation locks held longer than olderThan, normally
// left behind by a process that died mid-call. A holder that is merely slow
// keeps running, but its later EndGeneration no longer matches the token.
func (l *Ledger) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := l.now()
	cutoff := now.Add(-olderThan)
	query := `
		UPDATE accounts
		SET in_progress = 0, locked_at = NULL, lock_token = NULL, updated_at = ?
		WHERE in_progress = 1 AND locked_at < ?`
	res, err := l.db.ExecContext(ctx, query, now, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale locks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.log.Warn("released stale generation locks", zap.Int64("count", n), zap.Duration("older_than", olderThan))
	}
	return n, nil
}
