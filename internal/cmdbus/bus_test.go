package cmdbus

import (
	"sync"
	"testing"
	"time"

	camerrors "github.com/duskwatch/camstream/internal/errors"
	"github.com/duskwatch/camstream/internal/frame"
)

func TestPostAndConsume(t *testing.T) {
	b := NewWithCapacity(4)
	if err := b.Post(Command{Kind: RequestKeyframe}); err != nil {
		t.Fatalf("Post: %v", err)
	}
	if err := b.Post(Command{Kind: ReconfigureStream, Config: frame.StreamConfig{Width: 640, Height: 480, FPS: 30}}); err != nil {
		t.Fatalf("Post: %v", err)
	}

	first := <-b.Commands()
	if first.Kind != RequestKeyframe {
		t.Fatalf("expected RequestKeyframe, got %v", first.Kind)
	}
	second := <-b.Commands()
	if second.Kind != ReconfigureStream || second.Config.Width != 640 {
		t.Fatalf("expected reconfigure with width=640, got %+v", second)
	}
}

func TestPostFailsWhenFull(t *testing.T) {
	b := NewWithCapacity(1)
	if err := b.Post(Command{Kind: RequestKeyframe}); err != nil {
		t.Fatalf("first post should succeed: %v", err)
	}
	err := b.Post(Command{Kind: RequestKeyframe})
	if err == nil {
		t.Fatalf("expected second post to fail on a full bus")
	}
	if !camerrors.IsBusError(err) {
		t.Fatalf("expected a BusError, got %v", err)
	}
}

func TestMultipleProducersSingleConsumer(t *testing.T) {
	b := NewWithCapacity(64)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Post(Command{Kind: AdjustBitrate, BitrateBps: 1000})
		}()
	}
	wg.Wait()

	count := 0
	for count < 8 {
		<-b.Commands()
		count++
	}
}

func TestRecordingExecutorRunsTasksInOrder(t *testing.T) {
	e := NewRecordingExecutor()
	defer e.Close()

	var mu sync.Mutex
	var order []int
	done := make(chan struct{}, 2)

	e.Submit(func() {
		mu.Lock()
		order = append(order, 1)
		mu.Unlock()
		done <- struct{}{}
	})
	e.Submit(func() {
		mu.Lock()
		order = append(order, 2)
		mu.Unlock()
		done <- struct{}{}
	})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for recording task")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected tasks to run in submission order, got %v", order)
	}
}
