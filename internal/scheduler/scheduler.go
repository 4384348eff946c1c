package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"poultryledger/backend/internal/domain"
)

// Reconciler repairs derived ledger data for every account.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (domain.ReconcileReport, error)
}

// Scheduler runs the periodic reconciliation pass.
type Scheduler struct {
	cron       *cron.Cron
	spec       string
	reconciler Reconciler
	timeout    time.Duration
	logger     *zap.Logger
}

// NewScheduler takes a standard five-field cron expression.
func NewScheduler(spec string, reconciler Reconciler, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:       cron.New(),
		spec:       spec,
		reconciler: reconciler,
		timeout:    2 * time.Minute,
		logger:     logger,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.reconcile); err != nil {
		return fmt.Errorf("schedule reconcile %q: %w", s.spec, err)
	}
	s.logger.Info("starting scheduler", zap.String("reconcile_cron", s.spec))
	s.cron.Start()
	return nil
}

// Stop waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	startedAt := time.Now()
	report, err := s.reconciler.ReconcileAll(ctx)
	if err != nil {
		s.logger.Error("reconcile pass failed", zap.Error(err))
		return
	}
	s.logger.Info("reconcile pass finished",
		zap.Duration("duration", time.Since(startedAt)),
		zap.Int("mirrors_created", report.MirrorsCreated),
		zap.Int("mirrors_updated", report.MirrorsUpdated),
		zap.Int("mirrors_removed", report.MirrorsRemoved),
		zap.Int("archives_rebuilt", report.ArchivesRebuilt),
	)
}
