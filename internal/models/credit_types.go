package models

import "time"

const (
	CreditDebit  = "debit"
	CreditRefund = "refund"
	CreditGrant  = "grant"
)

// CreditTransaction is one row of the append-only 'credit_transactions' journal.
// Amount is signed: debits are negative.
type CreditTransaction struct {
	ID           int64     `json:"id" db:"id"`
	AccountID    int64     `json:"accountId" db:"account_id"`
	Type         string    `json:"type" db:"type"`
	Amount       int       `json:"amount" db:"amount"`
	BalanceAfter int       `json:"balanceAfter" db:"balance_after"`
	Notes        string    `json:"notes" db:"notes"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
