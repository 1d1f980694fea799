// Package cleanup provides the background TTL sweep for the memory
// store's expiring tables.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/coretask-core/coretask/pkg/config"
	"github.com/coretask-core/coretask/pkg/memory"
)

// Service periodically reclaims physically expired rows from working
// memory, shared handoffs, and the knowledge cache (spec §3). Query-time
// predicates already hide expired rows from every read path, so Sweep
// exists for storage reclamation, not correctness, and is safe to run
// from multiple processes.
type Service struct {
	config *config.RetentionConfig
	memory *memory.Store

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, mem *memory.Store) *Service {
	return &Service{
		config: cfg,
		memory: mem,
	}
}

// Start launches the background sweep loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("cleanup service started", "sweep_interval", s.config.SweepInterval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	result, err := s.memory.Sweep(ctx)
	if err != nil {
		slog.Error("cleanup sweep failed", "error", err)
		return
	}
	slog.Info("cleanup sweep completed",
		"working_memory_deleted", result.WorkingMemoryDeleted,
		"shared_handoff_deleted", result.SharedHandoffDeleted,
		"knowledge_cache_deleted", result.KnowledgeCacheDeleted)
}
