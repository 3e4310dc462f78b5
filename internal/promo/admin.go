package promo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/01moynul/snaplist/internal/database"
	"github.com/01moynul/snaplist/internal/models"
	"go.uber.org/zap"
)

// Create defines a new active promo code.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.PromoCode, error) {
	code := Normalize(in.Code)
	if code == "" || in.CreditsGranted <= 0 || (in.MaxUses != nil && *in.MaxUses <= 0) {
		return models.PromoCode{}, ErrInvalidPromo
	}

	now := s.now()
	p := models.PromoCode{
		Code:           code,
		CreditsGranted: in.CreditsGranted,
		IsActive:       true,
		MaxUses:        in.MaxUses,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var maxUses sql.NullInt64
	if in.MaxUses != nil {
		maxUses = sql.NullInt64{Int64: int64(*in.MaxUses), Valid: true}
	}

	query := `
		INSERT INTO promo_codes (code, credits_granted, is_active, max_uses, uses_count, created_at, updated_at)
		VALUES (?, ?, 1, ?, 0, ?, ?)`
	res, err := s.db.ExecContext(ctx, query, p.Code, p.CreditsGranted, maxUses, now, now)
	if err != nil {
		if database.IsDuplicateKeyErr(err) {
			return models.PromoCode{}, ErrDuplicateCode
		}
		return models.PromoCode{}, fmt.Errorf("insert promo code: %w", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return models.PromoCode{}, fmt.Errorf("read promo id: %w", err)
	}

	s.log.Info("promo code created", zap.String("code", p.Code), zap.Int("credits", p.CreditsGranted))
	return p, nil
}

// List returns every promo code, newest first.
func (s *Service) List(ctx context.Context) ([]models.PromoCode, error) {
	query := `
		SELECT id, code, credits_granted, is_active, max_uses, uses_count, created_at, updated_at
		FROM promo_codes
		ORDER BY id DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query promo codes: %w", err)
	}
	defer rows.Close()

	codes := []models.PromoCode{}
	for rows.Next() {
		var (
			p       models.PromoCode
			maxUses sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Code, &p.CreditsGranted, &p.IsActive, &maxUses, &p.UsesCount, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan promo code: %w", err)
		}
		if maxUses.Valid {
			n := int(maxUses.Int64)
			p.MaxUses = &n
		}
		codes = append(codes, p)
	}
	return codes, rows.Err()
}

// SetActive enables or disables a code. Past redemptions are unaffected.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	flag := 0
	if active {
		flag = 1
	}
	res, err := s.db.ExecContext(ctx, "UPDATE promo_codes SET is_active = ?, updated_at = ? WHERE id = ?", flag, s.now(), id)
	if err != nil {
		return fmt.Errorf("update promo code %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPromoNotFound
	}
	return nil
}
