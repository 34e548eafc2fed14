package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPingCheckerTracksProbeResult(t *testing.T) {
	var fail atomic.Bool
	c := NewPingChecker("store", PingFunc(func(context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	}), zerolog.Nop(), time.Second)

	assert.False(t, c.IsHealthy(), "unhealthy before first probe")
	assert.True(t, c.Probe(context.Background()))
	assert.True(t, c.IsHealthy())

	fail.Store(true)
	assert.False(t, c.Probe(context.Background()))
	assert.False(t, c.IsHealthy())
	assert.Equal(t, "store", c.Name())
}

func TestPingCheckerTimesOutSlowProbes(t *testing.T) {
	c := NewPingChecker("slow", PingFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}), zerolog.Nop(), 10*time.Millisecond)
	assert.False(t, c.Probe(context.Background()))
}

func TestServiceHealthFollowsDependencies(t *testing.T) {
	var fail atomic.Bool
	a := NewPingChecker("a", PingFunc(func(context.Context) error { return nil }), zerolog.Nop(), time.Second)
	b := NewPingChecker("b", PingFunc(func(context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	}), zerolog.Nop(), time.Second)
	svc := NewServiceHealthChecker(zerolog.Nop(), a, b)

	a.Probe(context.Background())
	b.Probe(context.Background())
	assert.True(t, svc.Evaluate())
	assert.True(t, svc.IsHealthy())

	fail.Store(true)
	b.Probe(context.Background())
	assert.False(t, svc.Evaluate())
	assert.False(t, svc.IsHealthy())
}

func TestStartStopsWithContext(t *testing.T) {
	c := NewPingChecker("a", PingFunc(func(context.Context) error { return nil }), zerolog.Nop(), time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx, time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, c.IsHealthy, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
