package intake

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/document"
	"github.com/fyrsmithlabs/corpusd/internal/logging"
)

// Service is the event intake front: normalize, debounce, enqueue.
type Service struct {
	registry *Registry
	debounce *Debouncer
	logger   *logging.Logger
}

// NewService wires a registry and debouncer in front of enqueue. The
// enqueue callback receives merged tasks once their quiet window expires.
func NewService(window time.Duration, enqueue func(document.Task), logger *logging.Logger) *Service {
	return &Service{
		registry: NewRegistry(),
		debounce: NewDebouncer(window, enqueue),
		logger:   logger.Named("intake"),
	}
}

// Submit normalizes and debounces one event. Invalid events return an error
// without entering the pipeline.
func (s *Service) Submit(ctx context.Context, ev Event) error {
	task, err := s.registry.Normalize(ev)
	if err != nil {
		return err
	}
	if !s.debounce.Offer(task) {
		return ErrClosed
	}
	s.logger.Debug(ctx, "event accepted",
		zap.String("doc", task.Key().String()),
		zap.String("op", string(task.Op)),
	)
	return nil
}

// Pending returns the number of documents waiting out their quiet window.
func (s *Service) Pending() int {
	return s.debounce.Pending()
}

// Close flushes pending tasks and stops the intake.
func (s *Service) Close() {
	s.debounce.Close()
}
