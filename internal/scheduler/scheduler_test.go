package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"poultryledger/backend/internal/domain"
)

type reconcilerStub struct {
	calls atomic.Int32
	err   error
}

func (r *reconcilerStub) ReconcileAll(context.Context) (domain.ReconcileReport, error) {
	r.calls.Add(1)
	return domain.ReconcileReport{TypesReconciled: 5}, r.err
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	s := NewScheduler("every night", &reconcilerStub{}, zaptest.NewLogger(t))
	require.Error(t, s.Start())
}

func TestStartAndStop(t *testing.T) {
	s := NewScheduler("30 2 * * *", &reconcilerStub{}, zaptest.NewLogger(t))
	require.NoError(t, s.Start())
	require.Len(t, s.cron.Entries(), 1)
	s.Stop()
}

func TestReconcileCallsService(t *testing.T) {
	stub := &reconcilerStub{}
	s := NewScheduler("30 2 * * *", stub, nil)

	s.reconcile()
	stub.err = errors.New("store down")
	s.reconcile()

	require.Equal(t, int32(2), stub.calls.Load())
}
