package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/office-requisition/internal/application/dispatcher"
	"github.com/garyjia/office-requisition/internal/application/port"
	"github.com/garyjia/office-requisition/internal/domain/entity"
	"github.com/garyjia/office-requisition/internal/domain/event"
)

// MovementRelayConfig holds configuration for the movement relay
type MovementRelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultMovementRelayConfig returns default configuration
func DefaultMovementRelayConfig() MovementRelayConfig {
	return MovementRelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    50,
	}
}

// Status is a snapshot of a worker's runtime statistics
type Status struct {
	Name           string    `json:"name"`
	Running        bool      `json:"running"`
	ProcessedCount int       `json:"processed_count"`
	FailedCount    int       `json:"failed_count"`
	LastRun        time.Time `json:"last_run"`
	LastError      string    `json:"last_error,omitempty"`
}

// MovementRelay hands recorded movements to the inventory-ownership store.
// Each movement is applied and marked applied in one transaction, so a
// movement is applied at least once and ownership updates are idempotent.
type MovementRelay struct {
	config MovementRelayConfig

	movementRepo port.MovementRepository
	ownership    port.InventoryOwnership
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	logger       *zap.Logger
	now          func() time.Time

	mu             sync.RWMutex
	cancel         context.CancelFunc
	done           chan struct{}
	isRunning      bool
	lastRun        time.Time
	processedCount int
	failedCount    int
	lastError      error
}

// NewMovementRelay creates a new movement relay. disp may be nil.
func NewMovementRelay(
	config MovementRelayConfig,
	movementRepo port.MovementRepository,
	ownership port.InventoryOwnership,
	txManager port.TransactionManager,
	disp dispatcher.Dispatcher,
	logger *zap.Logger,
) *MovementRelay {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultMovementRelayConfig().PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultMovementRelayConfig().BatchSize
	}
	return &MovementRelay{
		config:       config,
		movementRepo: movementRepo,
		ownership:    ownership,
		txManager:    txManager,
		dispatcher:   disp,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the polling loop
func (w *MovementRelay) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("movement relay already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("MovementRelay started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(runCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the batch in flight to finish
func (w *MovementRelay) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.RLock()
	w.logger.Info("MovementRelay stopped",
		zap.Int("processed_count", w.processedCount),
		zap.Int("failed_count", w.failedCount))
	w.mu.RUnlock()
	return nil
}

// Name returns the worker name for identification
func (w *MovementRelay) Name() string {
	return "MovementRelay"
}

// Status returns the relay's runtime statistics
func (w *MovementRelay) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Status{
		Name:           w.Name(),
		Running:        w.isRunning,
		ProcessedCount: w.processedCount,
		FailedCount:    w.failedCount,
		LastRun:        w.lastRun,
	}
	if w.lastError != nil {
		s.LastError = w.lastError.Error()
	}
	return s
}

func (w *MovementRelay) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Relay loop context cancelled")
			return

		case <-ticker.C:
			if _, err := w.RelayPending(ctx); err != nil {
				w.logger.Error("Failed to relay movements", zap.Error(err))
			}
		}
	}
}

// RelayPending applies one batch of unapplied movements and returns how many
// were applied. A movement that fails stays unapplied for the next run.
func (w *MovementRelay) RelayPending(ctx context.Context) (int, error) {
	pending, err := w.movementRepo.GetUnapplied(ctx, w.config.BatchSize)
	if err != nil {
		w.recordRun(0, 0, err)
		return 0, fmt.Errorf("load unapplied movements: %w", err)
	}

	applied, failed := 0, 0
	var lastErr error
	for _, m := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := w.relay(ctx, m); err != nil {
			failed++
			lastErr = err
			w.logger.Error("Failed to apply movement",
				zap.Int64("movement_id", m.ID),
				zap.Int64("requisition_id", m.RequisitionID),
				zap.String("instance_id", m.InstanceID),
				zap.Error(err))
			continue
		}
		applied++
	}

	w.recordRun(applied, failed, lastErr)
	if applied > 0 {
		w.logger.Info("Movements applied", zap.Int("count", applied), zap.Int("failed", failed))
	}
	return applied, nil
}

func (w *MovementRelay) relay(ctx context.Context, m *entity.Movement) error {
	at := w.now()
	err := w.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := w.ownership.Apply(txCtx, m); err != nil {
			return err
		}
		return w.movementRepo.MarkApplied(txCtx, m.ID, at)
	})
	if err != nil {
		return err
	}
	m.AppliedAt = &at

	if w.dispatcher != nil {
		evt := event.NewEvent(event.TypeMovementApplied, m.RequisitionID, map[string]interface{}{
			event.KeyInstanceID:       m.InstanceID,
			event.KeyParentOffice:     m.FromOfficeID,
			event.KeyRequestingOffice: m.ToOfficeID,
			event.KeyActor:            m.Actor,
		})
		w.dispatcher.DispatchAsync(ctx, evt)
	}
	return nil
}

func (w *MovementRelay) recordRun(applied, failed int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastRun = w.now()
	w.processedCount += applied
	w.failedCount += failed
	if err != nil {
		w.lastError = err
	}
}
