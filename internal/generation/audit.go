package generation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/01moynul/snaplist/internal/models"
)

// record appends one generation_attempts row. Rows are never updated.
func (s *Service) record(ctx context.Context, a models.GenerationAttempt) (int64, error) {
	query := `
		INSERT INTO generation_attempts
		(account_id, status, usage_metric, result_text, error_text, image_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	var usage sql.NullInt64
	if a.UsageMetric != nil {
		usage = sql.NullInt64{Int64: int64(*a.UsageMetric), Valid: true}
	}
	var resultText, errorText sql.NullString
	if a.ResultText != nil {
		resultText = sql.NullString{String: *a.ResultText, Valid: true}
	}
	if a.ErrorText != nil {
		errorText = sql.NullString{String: *a.ErrorText, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, query, a.AccountID, a.Status, usage, resultText, errorText, a.ImageCount, a.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("record generation attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read attempt id: %w", err)
	}
	return id, nil
}

// History lists an account's attempts, newest first.
func (s *Service) History(ctx context.Context, accountID int64, limit int) ([]models.GenerationAttempt, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, account_id, status, usage_metric, result_text, error_text, image_count, created_at
		FROM generation_attempts
		WHERE account_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query generation history: %w", err)
	}
	defer rows.Close()

	attempts := []models.GenerationAttempt{}
	for rows.Next() {
		var (
			a                     models.GenerationAttempt
			usage                 sql.NullInt64
			resultText, errorText sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Status, &usage, &resultText, &errorText, &a.ImageCount, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan generation attempt: %w", err)
		}
		if usage.Valid {
			n := int(usage.Int64)
			a.UsageMetric = &n
		}
		if resultText.Valid {
			a.ResultText = &resultText.String
		}
		if errorText.Valid {
			a.ErrorText = &errorText.String
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
