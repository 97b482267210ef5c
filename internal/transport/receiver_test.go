package transport

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/screamrouter/screamrouter/pkg/log"
)

type flakyReceiver struct {
	runs      *atomic.Int32
	failTimes int32
}

func (f *flakyReceiver) Run(ctx context.Context) error {
	n := f.runs.Add(1)
	if n <= f.failTimes {
		return errors.New("socket reset")
	}
	<-ctx.Done()
	return nil
}

func (f *flakyReceiver) Close() error { return nil }

func TestSupervisorRestartsOnFailure(t *testing.T) {
	runs := &atomic.Int32{}
	sup := NewSupervisor("test", func() (Receiver, error) {
		return &flakyReceiver{runs: runs, failTimes: 2}, nil
	}, log.Nop())
	sup.minDelay = time.Millisecond
	sup.maxDelay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("receiver did not restart enough times")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
	assert.GreaterOrEqual(t, runs.Load(), int32(3))
}
