// Package generation runs one credit-gated listing generation end to end:
// lock and debit, call the model, repair its output, compensate, release, audit.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/01moynul/snaplist/internal/ai"
	"github.com/01moynul/snaplist/internal/credits"
	"github.com/01moynul/snaplist/internal/database"
	"github.com/01moynul/snaplist/internal/listing"
	"github.com/01moynul/snaplist/internal/metrics"
	"github.com/01moynul/snaplist/internal/models"
	"go.uber.org/zap"
)

const (
	releaseTimeout = 10 * time.Second
	// storeTimeout bounds the refund and audit writes after the model call.
	storeTimeout = 15 * time.Second
)

// Rejection explains why no attempt was made. Nothing is charged for a rejection.
type Rejection string

const (
	NoImages            Rejection = "no_images"
	TooManyImages       Rejection = "too_many_images"
	EmptyImage          Rejection = "empty_image"
	AlreadyInProgress   Rejection = Rejection(credits.AlreadyInProgress)
	InsufficientCredits Rejection = Rejection(credits.InsufficientCredits)
)

// Invoker calls the external generation service.
type Invoker interface {
	Generate(ctx context.Context, images []ai.Image) (ai.Result, error)
}

// Ledger is the subset of credits.Ledger the orchestrator needs.
type Ledger interface {
	TryBeginGeneration(ctx context.Context, accountID int64) (credits.Begin, error)
	EndGeneration(ctx context.Context, accountID int64, token string) error
	Refund(ctx context.Context, accountID int64, amount int, notes string) error
}

type Config struct {
	MaxImages int
	Timeout   time.Duration
}

// Outcome is what RunGeneration reports. Either Rejection is set, or Status
// holds one of the models.Attempt* values.
type Outcome struct {
	Rejection   Rejection
	Status      string
	AttemptID   int64
	Text        string
	UsageMetric *int
	Refunded    bool
	ErrorText   string
}

func (o Outcome) Rejected() bool {
	return o.Rejection != ""
}

type Service struct {
	db      *database.DB
	ledger  Ledger
	invoker Invoker
	metrics *metrics.Metrics
	log     *zap.Logger
	cfg     Config
	now     func() time.Time
}

func NewService(db *database.DB, ledger Ledger, invoker Invoker, m *metrics.Metrics, log *zap.Logger, cfg Config) *Service {
	return &Service{
		db:      db,
		ledger:  ledger,
		invoker: invoker,
		metrics: m,
		log:     log.Named("generation"),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) checkImages(images []ai.Image) Rejection {
	if len(images) == 0 {
		return NoImages
	}
	if len(images) > s.cfg.MaxImages {
		return TooManyImages
	}
	for _, img := range images {
		if len(img.Data) == 0 {
			return EmptyImage
		}
	}
	return ""
}

// RunGeneration performs one attempt for accountID. Expected refusals come
// back as Outcome.Rejection; a failed or degraded model call is an Outcome
// with its credit refunded. Only storage faults are returned as errors.
func (s *Service) RunGeneration(ctx context.Context, accountID int64, images []ai.Image) (out Outcome, err error) {
	// Input checks run before the debit so credits are only spent on attempts
	// that reach the model.
	if r := s.checkImages(images); r != "" {
		s.metrics.IncRejection(string(r))
		return Outcome{Rejection: r}, nil
	}

	begin, err := s.ledger.TryBeginGeneration(ctx, accountID)
	if err != nil {
		return Outcome{}, fmt.Errorf("begin generation: %w", err)
	}
	if !begin.OK {
		s.metrics.IncRejection(string(begin.Reason))
		return Outcome{Rejection: Rejection(begin.Reason)}, nil
	}

	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if relErr := s.ledger.EndGeneration(relCtx, accountID, begin.Token); relErr != nil {
			s.log.Error("failed to release generation lock", zap.Int64("account_id", accountID), zap.Error(relErr))
			err = errors.Join(err, relErr)
		}
	}()

	return s.attempt(ctx, accountID, begin.Exempt, images)
}

// attempt runs while the account's lock is held.
func (s *Service) attempt(ctx context.Context, accountID int64, exempt bool, images []ai.Image) (Outcome, error) {
	started := s.now()
	res, callErr := s.call(ctx, images)
	took := s.now().Sub(started)

	// The credit was already taken; compensation and audit must finish even
	// if the client went away.
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()

	attempt := models.GenerationAttempt{
		AccountID:  accountID,
		ImageCount: len(images),
		CreatedAt:  s.now(),
	}
	var refundNote string

	if callErr != nil {
		msg := callErr.Error()
		attempt.Status = models.AttemptFailed
		attempt.ErrorText = &msg
		refundNote = "refund: generation failed"
		s.log.Warn("generation call failed", zap.Int64("account_id", accountID), zap.Duration("took", took), zap.Error(callErr))
	} else {
		text, fallback := listing.Repair(res.Text)
		attempt.ResultText = &text
		attempt.UsageMetric = res.TotalTokens
		attempt.Status = models.AttemptCompleted
		if fallback {
			attempt.Status = models.AttemptDegraded
			refundNote = "refund: degraded listing"
		}
	}

	out := Outcome{
		Status:      attempt.Status,
		UsageMetric: attempt.UsageMetric,
	}
	if attempt.ResultText != nil {
		out.Text = *attempt.ResultText
	}
	if attempt.ErrorText != nil {
		out.ErrorText = *attempt.ErrorText
	}

	if refundNote != "" && !exempt {
		if err := s.ledger.Refund(storeCtx, accountID, 1, refundNote); err != nil {
			return out, fmt.Errorf("refund %s attempt: %w", attempt.Status, err)
		}
		out.Refunded = true
		s.metrics.IncRefund(attempt.Status)
	}

	id, err := s.record(storeCtx, attempt)
	if err != nil {
		return out, err
	}
	out.AttemptID = id

	s.metrics.ObserveGeneration(attempt.Status, took)
	s.log.Info("generation finished",
		zap.Int64("account_id", accountID),
		zap.Int64("attempt_id", id),
		zap.String("status", attempt.Status),
		zap.Bool("refunded", out.Refunded),
		zap.Duration("took", took),
	)
	return out, nil
}

// call invokes the model under the configured deadline.
func (s *Service) call(ctx context.Context, images []ai.Image) (ai.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	res, err := s.invoker.Generate(callCtx, images)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			// The caller's own deadline or cancellation ended the call.
			return ai.Result{}, fmt.Errorf("%w: %w", ai.ErrInvocationFailed, ctx.Err())
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			return ai.Result{}, fmt.Errorf("%w: timed out after %s", ai.ErrInvocationFailed, s.cfg.Timeout)
		}
		return ai.Result{}, err
	}
	return res, nil
}
