package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/khanghh/kadmin/internal/metrics"
	"github.com/khanghh/kadmin/model"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type evaluatorFunc func(ctx context.Context, record *model.AuditLog) error

func (f evaluatorFunc) Evaluate(ctx context.Context, record *model.AuditLog) error {
	return f(ctx, record)
}

func TestSubmitNeverBlocks(t *testing.T) {
	d := NewDispatcher(evaluatorFunc(func(ctx context.Context, record *model.AuditLog) error { return nil }), 1, 2)
	before := promtest.ToFloat64(metrics.AlertEventsDropped)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Submit(&model.AuditLog{Action: "LOGIN_FAILED"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}
	assert.Equal(t, before+3, promtest.ToFloat64(metrics.AlertEventsDropped))
}

func TestDispatcherSurvivesFailingEvaluations(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	d := NewDispatcher(evaluatorFunc(func(ctx context.Context, record *model.AuditLog) error {
		mu.Lock()
		seen = append(seen, record.EventID)
		mu.Unlock()
		switch record.EventID {
		case "boom":
			panic("rule bug")
		case "fail":
			return errors.New("store unavailable")
		}
		return nil
	}), 1, 10)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- d.Run(ctx) }()

	for _, id := range []string{"boom", "fail", "ok"} {
		d.Submit(&model.AuditLog{EventID: id})
	}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}
