// Package promo redeems promotional codes for credits.
//
// A redemption is one transaction: the promo row is locked first, then the
// per-account redemption check, the usage increment and the credit grant all
// commit together. The usage limit and once-per-account rule hold under any
// number of concurrent redeemers.
package promo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/01moynul/snaplist/internal/database"
	"github.com/01moynul/snaplist/internal/metrics"
	"github.com/01moynul/snaplist/internal/models"
	"go.uber.org/zap"
)

// Reason explains why a redemption was refused.
type Reason string

const (
	NotFound        Reason = "not_found"
	Inactive        Reason = "inactive"
	LimitReached    Reason = "limit_reached"
	AlreadyRedeemed Reason = "already_redeemed"
)

var (
	ErrDuplicateCode = errors.New("promo code already exists")
	ErrPromoNotFound = errors.New("promo code not found")
	ErrInvalidPromo  = errors.New("invalid promo code definition")
)

// Granter credits an account inside a caller-owned transaction.
type Granter interface {
	GrantTx(ctx context.Context, tx *sql.Tx, accountID int64, amount int, notes string) error
}

// Redemption is the result of Redeem. When OK is false, Reason is set and
// nothing was changed.
type Redemption struct {
	OK             bool   `json:"ok"`
	Reason         Reason `json:"reason,omitempty"`
	CreditsGranted int    `json:"creditsGranted"`
}

type CreateInput struct {
	Code           string `json:"code" binding:"required"`
	CreditsGranted int    `json:"creditsGranted" binding:"required"`
	MaxUses        *int   `json:"maxUses"`
}

type Service struct {
	db      *database.DB
	granter Granter
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewService(db *database.DB, granter Granter, m *metrics.Metrics, log *zap.Logger) *Service {
	return &Service{
		db:      db,
		granter: granter,
		metrics: m,
		log:     log.Named("promo"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Normalize is the canonical form codes are stored and matched in.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Redeem applies code to accountID at most once.
func (s *Service) Redeem(ctx context.Context, accountID int64, code string) (Redemption, error) {
	r, err := s.redeem(ctx, accountID, Normalize(code))
	if err != nil {
		return Redemption{}, err
	}

	outcome := "redeemed"
	if !r.OK {
		outcome = string(r.Reason)
	}
	s.metrics.IncRedemption(outcome)
	s.log.Info("promo redemption",
		zap.Int64("account_id", accountID),
		zap.String("outcome", outcome),
		zap.Int("credits", r.CreditsGranted),
	)
	return r, nil
}

func (s *Service) redeem(ctx context.Context, accountID int64, code string) (Redemption, error) {
	if code == "" {
		return Redemption{Reason: NotFound}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Redemption{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 1. Lock the promo row. Concurrent redeemers of the same code queue here.
	var (
		p       models.PromoCode
		maxUses sql.NullInt64
	)
	query := "SELECT id, credits_granted, is_active, max_uses, uses_count FROM promo_codes WHERE code = ?" + s.db.Dialect.ForUpdate()
	err = tx.QueryRowContext(ctx, query, code).Scan(&p.ID, &p.CreditsGranted, &p.IsActive, &maxUses, &p.UsesCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Redemption{Reason: NotFound}, nil
		}
		return Redemption{}, fmt.Errorf("lock promo code: %w", err)
	}

	// 2. Check availability
	if !p.IsActive {
		return Redemption{Reason: Inactive}, nil
	}
	if maxUses.Valid && int64(p.UsesCount) >= maxUses.Int64 {
		return Redemption{Reason: LimitReached}, nil
	}

	// 3. Check this account has not used it yet
	var exists int
	query = "SELECT COUNT(*) FROM promo_redemptions WHERE account_id = ? AND promo_id = ?" + s.db.Dialect.ForUpdate()
	if err := tx.QueryRowContext(ctx, query, accountID, p.ID).Scan(&exists); err != nil {
		return Redemption{}, fmt.Errorf("check existing redemption: %w", err)
	}
	if exists > 0 {
		return Redemption{Reason: AlreadyRedeemed}, nil
	}

	// 4. Record the redemption and consume one use
	now := s.now()
	_, err = tx.ExecContext(ctx,
		"INSERT INTO promo_redemptions (account_id, promo_id, created_at) VALUES (?, ?, ?)",
		accountID, p.ID, now,
	)
	if err != nil {
		if database.IsDuplicateKeyErr(err) {
			return Redemption{Reason: AlreadyRedeemed}, nil
		}
		return Redemption{}, fmt.Errorf("insert redemption: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"UPDATE promo_codes SET uses_count = uses_count + 1, updated_at = ? WHERE id = ?",
		now, p.ID,
	)
	if err != nil {
		return Redemption{}, fmt.Errorf("consume promo use: %w", err)
	}

	// 5. Grant the credits
	if err := s.granter.GrantTx(ctx, tx, accountID, p.CreditsGranted, "promo "+code); err != nil {
		return Redemption{}, err
	}

	if err := tx.Commit(); err != nil {
		return Redemption{}, fmt.Errorf("commit redemption: %w", err)
	}
	return Redemption{OK: true, CreditsGranted: p.CreditsGranted}, nil
}
