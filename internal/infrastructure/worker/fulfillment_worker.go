package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/procurement/internal/domain/entity"
	"go.uber.org/zap"
)

// FulfillmentWorkerConfig holds configuration for the fulfillment worker
type FulfillmentWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// Timeout bounds one reconciliation pass
	Timeout time.Duration
}

// DefaultFulfillmentWorkerConfig returns default configuration
func DefaultFulfillmentWorkerConfig() FulfillmentWorkerConfig {
	return FulfillmentWorkerConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    50,
		Timeout:      20 * time.Second,
	}
}

// Stats is a snapshot of a worker's progress
type Stats struct {
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	LastError string    `json:"last_error,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// FulfillableOrderSource lists approved orders whose shipments are all delivered
type FulfillableOrderSource interface {
	ListFulfillableOrderIDs(ctx context.Context, limit int) ([]string, error)
}

// OrderFulfiller fires the fulfill trigger on an order
type OrderFulfiller interface {
	MarkFulfilled(ctx context.Context, orderID string) error
}

// FulfillmentWorker periodically fulfils approved orders whose shipments have
// all been delivered. It catches signals the asynchronous shipment handler missed.
type FulfillmentWorker struct {
	config    FulfillmentWorkerConfig
	source    FulfillableOrderSource
	fulfiller OrderFulfiller
	logger    *zap.Logger

	mu     sync.RWMutex
	cancel context.CancelFunc
	done   chan struct{}
	stats  Stats
}

// NewFulfillmentWorker creates a new fulfillment worker
func NewFulfillmentWorker(config FulfillmentWorkerConfig, source FulfillableOrderSource, fulfiller OrderFulfiller, logger *zap.Logger) *FulfillmentWorker {
	defaults := DefaultFulfillmentWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &FulfillmentWorker{
		config:    config,
		source:    source,
		fulfiller: fulfiller,
		logger:    logger,
	}
}

// Start launches the poll loop
func (w *FulfillmentWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stats.Running {
		return fmt.Errorf("fulfillment worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.stats.Running = true
	w.stats.StartedAt = time.Now()

	w.logger.Info("FulfillmentWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop cancels the poll loop and waits for the in-flight pass to finish
func (w *FulfillmentWorker) Stop() error {
	w.mu.Lock()
	if !w.stats.Running {
		w.mu.Unlock()
		return nil
	}
	w.stats.Running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("FulfillmentWorker stopped",
		zap.Int("processed", stats.Processed),
		zap.Int("failed", stats.Failed))
	return nil
}

// Name returns the worker name
func (w *FulfillmentWorker) Name() string {
	return "FulfillmentWorker"
}

// Stats returns a snapshot of the worker's progress
func (w *FulfillmentWorker) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *FulfillmentWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.reconcile(ctx)
		}
	}
}

// reconcile runs one pass over the fulfillable orders
func (w *FulfillmentWorker) reconcile(ctx context.Context) {
	passCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	ids, err := w.source.ListFulfillableOrderIDs(passCtx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("Failed to list fulfillable orders", zap.Error(err))
		w.record(0, 0, err)
		return
	}

	var processed, failed int
	var lastErr error
	for _, id := range ids {
		if passCtx.Err() != nil {
			break
		}

		err := w.fulfiller.MarkFulfilled(passCtx, id)
		switch {
		case err == nil:
			processed++
			w.logger.Info("Order fulfilled by reconciliation", zap.String("order_id", id))
		case errors.Is(err, entity.ErrInvalidState):
			// fulfilled concurrently by the shipment handler
			w.logger.Debug("Order already left APPROVED", zap.String("order_id", id))
		default:
			failed++
			lastErr = err
			w.logger.Error("Failed to fulfil order", zap.String("order_id", id), zap.Error(err))
		}
	}

	w.record(processed, failed, lastErr)
}

func (w *FulfillmentWorker) record(processed, failed int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.stats.LastRun = time.Now()
	w.stats.Processed += processed
	w.stats.Failed += failed
	w.stats.LastError = ""
	if err != nil {
		w.stats.LastError = err.Error()
	}
}
