package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImmediate(t *testing.T) {
	called := false
	Immediate{}.Execute(func() { called = true })
	assert.True(t, called)

	var got []int
	Func(func(fn func()) { got = append(got, 1); fn() }).Execute(func() { got = append(got, 2) })
	assert.Equal(t, []int{1, 2}, got)
}

func TestSerial_RunsInOrder(t *testing.T) {
	s := NewSerial()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		s.Execute(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelDrain()
	require.True(t, s.Drain(drainCtx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSerial_SingleGoroutine(t *testing.T) {
	s := NewSerial()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go s.Execute(func() {
			defer wg.Done()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}

func TestSerial_PanicDoesNotStopLoop(t *testing.T) {
	s := NewSerial()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	done := make(chan struct{})
	s.Execute(func() { panic("boom") })
	s.Execute(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback after panic never ran")
	}
}

func TestSerial_StopFlushesAndRunsInline(t *testing.T) {
	s := NewSerial()
	s.Start(context.Background())

	ran := 0
	for i := 0; i < 5; i++ {
		s.Execute(func() { ran++ })
	}
	s.Stop()
	assert.Equal(t, 5, ran)
	assert.Equal(t, 0, s.Pending())

	s.Execute(func() { ran++ })
	assert.Equal(t, 6, ran)

	sub, exec := s.Metrics()
	assert.Equal(t, sub, exec)

	s.Stop()
}
