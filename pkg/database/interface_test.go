package database

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStopWithReleasesOnce(t *testing.T) {
	var released atomic.Int32
	stop := stopWith(context.Background(), func() { released.Add(1) })
	stop()
	stop()
	assert.Equal(t, int32(1), released.Load())
}

func TestStopWithoutCancelLeavesNoGoroutine(t *testing.T) {
	before := runtime.NumGoroutine()
	for i := 0; i < 50; i++ {
		stopWith(context.Background(), func() {})()
	}
	assert.Eventually(t, func() bool { return runtime.NumGoroutine() <= before }, 2*time.Second, 10*time.Millisecond)
}

func TestStopWithReleasesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var released atomic.Int32
	stop := stopWith(ctx, func() { released.Add(1) })

	cancel()
	assert.Eventually(t, func() bool { return released.Load() == 1 }, time.Second, 5*time.Millisecond)
	stop()
	assert.Equal(t, int32(1), released.Load())
}
