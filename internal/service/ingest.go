package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/signalmesh/notify-relay-service/config"
	"github.com/signalmesh/notify-relay-service/internal/domain/model"
	"github.com/signalmesh/notify-relay-service/internal/metrics"
	"github.com/signalmesh/notify-relay-service/internal/pipeline"
	"github.com/signalmesh/notify-relay-service/internal/sequence"
)

// Ingestor is the ingestion ordering layer: it validates inbound messages,
// assigns each a strictly increasing per-user sequence and hands the delivery
// attempt to the user's single-flight lane.
type Ingestor interface {
	// Enqueue accepts one message for a user and returns the assigned
	// sequence. The only synchronous failure producers observe is
	// model.ErrValidation; delivery errors are resolved asynchronously.
	Enqueue(ctx context.Context, userID uuid.UUID, payload []byte) (uint64, error)
}

// DeadLetterer receives attempts abandoned after exhausting store retries.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, att model.DeliveryAttempt) error
}

// Interface guard
var _ Ingestor = (*IngestService)(nil)

type IngestService struct {
	seq         *sequence.Sequencer
	lanes       *pipeline.Lanes
	orch        *Orchestrator
	limits      *config.Limits
	deadLetter  DeadLetterer
	maxAttempts int
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func NewIngestService(
	seq *sequence.Sequencer,
	lanes *pipeline.Lanes,
	orch *Orchestrator,
	limits *config.Limits,
	deadLetter DeadLetterer,
	cfg *config.Config,
	logger *slog.Logger,
	m *metrics.Metrics,
) *IngestService {
	return &IngestService{
		seq:         seq,
		lanes:       lanes,
		orch:        orch,
		limits:      limits,
		deadLetter:  deadLetter,
		maxAttempts: cfg.Delivery.StoreMaxAttempts,
		logger:      logger.With("component", "ingest"),
		metrics:     m,
	}
}

func (s *IngestService) Enqueue(ctx context.Context, userID uuid.UUID, payload []byte) (uint64, error) {
	if err := s.validate(userID, payload); err != nil {
		s.metrics.Rejected.Inc()
		return 0, err
	}

	seq, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("enqueue user=%s: %w", userID, err)
	}

	att := model.DeliveryAttempt{
		UserID:   userID,
		Sequence: seq,
		Payload:  payload,
	}

	// Submission blocks on a saturated lane so backpressure reaches the
	// producer-facing transport instead of silently shedding messages.
	if err := s.lanes.Submit(ctx, userID, func(laneCtx context.Context) {
		s.process(laneCtx, att)
	}); err != nil {
		return 0, fmt.Errorf("enqueue user=%s: %w", userID, err)
	}
	return seq, nil
}

func (s *IngestService) validate(userID uuid.UUID, payload []byte) error {
	if userID == uuid.Nil {
		return fmt.Errorf("%w: user id is required", model.ErrValidation)
	}
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty message", model.ErrValidation)
	}
	if maxSize := s.limits.MaxMessageSize(); len(payload) > maxSize {
		return fmt.Errorf("%w: message of %d bytes exceeds limit %d", model.ErrValidation, len(payload), maxSize)
	}
	return nil
}

// process runs inside the user's lane. A run only errors on durable-store
// failure; those retry with exponential backoff and finally dead-letter so
// the lane never wedges on a broken disk.
func (s *IngestService) process(ctx context.Context, att model.DeliveryAttempt) {
	operation := func() (struct{}, error) {
		return struct{}{}, s.orch.Deliver(ctx, att)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(s.maxAttempts)),
	)
	if err == nil {
		return
	}

	s.logger.Error("delivery run exhausted retries",
		"user_id", att.UserID,
		"seq", att.Sequence,
		"attempts", s.maxAttempts,
		"err", err,
	)
	s.metrics.DeadLettered.Inc()

	if dlqErr := s.deadLetter.DeadLetter(ctx, att); dlqErr != nil {
		// Nothing safer left to do; the message is lost to manual recovery
		// from logs.
		s.logger.Error("dead-letter publish failed",
			"user_id", att.UserID,
			"seq", att.Sequence,
			"err", dlqErr,
		)
	}
}
