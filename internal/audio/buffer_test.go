package audio

import (
	"sync"
	"testing"
	"time"
)

func TestCaptureBufferAppendAndTake(t *testing.T) {
	b := NewCaptureBuffer(10)

	if !b.TryAppend([]float32{0.1, 0.2, 0.3}) {
		t.Fatal("TryAppend failed on uncontended buffer")
	}
	if !b.TryAppend([]float32{0.4}) {
		t.Fatal("TryAppend failed on uncontended buffer")
	}

	block := b.TakeAndClear()
	if len(block) != 4 {
		t.Fatalf("Expected 4 samples, got %d", len(block))
	}
	expected := []float32{0.1, 0.2, 0.3, 0.4}
	for i := range expected {
		if block[i] != expected[i] {
			t.Errorf("Sample %d: expected %v, got %v", i, expected[i], block[i])
		}
	}

	if again := b.TakeAndClear(); again != nil {
		t.Errorf("Expected nil after clear, got %d samples", len(again))
	}
}

func TestCaptureBufferOverflowDropsNotQueues(t *testing.T) {
	b := NewCaptureBuffer(4)

	b.TryAppend([]float32{1, 2, 3})
	b.TryAppend([]float32{4, 5, 6}) // only one sample fits

	block := b.TakeAndClear()
	if len(block) != 4 {
		t.Fatalf("Expected buffer capped at 4 samples, got %d", len(block))
	}

	stats := b.Stats()
	if stats.OverflowDrops != 2 {
		t.Errorf("Expected 2 overflow drops, got %d", stats.OverflowDrops)
	}

	// A full window rejects everything.
	b.TryAppend([]float32{1, 2, 3, 4})
	if ok := b.TryAppend([]float32{5}); ok {
		t.Error("Expected TryAppend to report drop on full window")
	}
}

func TestCaptureBufferTryAppendNeverBlocks(t *testing.T) {
	b := NewCaptureBuffer(1024)

	// Hold the lock from another goroutine for a while.
	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		b.mu.Lock()
		close(locked)
		<-release
		b.mu.Unlock()
	}()
	<-locked

	done := make(chan bool, 1)
	go func() {
		done <- b.TryAppend([]float32{0.5})
	}()

	select {
	case ok := <-done:
		if ok {
			t.Error("Expected TryAppend to fail while lock is held")
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("TryAppend blocked on a held lock")
	}
	close(release)

	if b.Stats().ContentionDrops != 1 {
		t.Errorf("Expected 1 contention drop, got %d", b.Stats().ContentionDrops)
	}
}

func TestCaptureBufferConcurrentAccess(t *testing.T) {
	b := NewCaptureBuffer(1 << 20)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				b.TryAppend([]float32{1, 2, 3, 4})
			}
		}
	}()

	var taken int
	for i := 0; i < 100; i++ {
		taken += len(b.TakeAndClear())
	}
	close(stop)
	wg.Wait()

	stats := b.Stats()
	if uint64(taken)+uint64(len(b.TakeAndClear())) != stats.SamplesAppended {
		t.Errorf("Sample accounting mismatch: taken+pending != appended (%d != %d)",
			taken, stats.SamplesAppended)
	}
}

func TestPlaybackBufferFillAndSilence(t *testing.T) {
	b := NewPlaybackBuffer()
	b.Store([]float32{0.1, 0.2, 0.3})

	out := make([]float32, 2)
	if n := b.Fill(out); n != 2 {
		t.Fatalf("Expected 2 samples filled, got %d", n)
	}
	if out[0] != 0.1 || out[1] != 0.2 {
		t.Errorf("Unexpected samples: %v", out)
	}

	// Second fill drains the last sample and pads with silence.
	if n := b.Fill(out); n != 1 {
		t.Fatalf("Expected 1 sample filled, got %d", n)
	}
	if out[0] != 0.3 || out[1] != 0 {
		t.Errorf("Expected [0.3 0], got %v", out)
	}

	// Exhausted: pure silence.
	out[0], out[1] = 9, 9
	if n := b.Fill(out); n != 0 {
		t.Fatalf("Expected 0 samples filled, got %d", n)
	}
	if out[0] != 0 || out[1] != 0 {
		t.Errorf("Expected silence, got %v", out)
	}

	stats := b.Stats()
	if stats.SamplesPlayed != 3 {
		t.Errorf("Expected 3 samples played, got %d", stats.SamplesPlayed)
	}
	if stats.SilenceSamples != 3 {
		t.Errorf("Expected 3 silence samples, got %d", stats.SilenceSamples)
	}
}

func TestPlaybackBufferStoreReplacesPending(t *testing.T) {
	b := NewPlaybackBuffer()
	b.Store([]float32{1, 2, 3, 4})

	out := make([]float32, 1)
	b.Fill(out)

	// A new window replaces whatever was left of the old one.
	b.Store([]float32{5, 6})
	b.Fill(out)
	if out[0] != 5 {
		t.Errorf("Expected first sample of new block, got %v", out[0])
	}

	if b.Stats().BlocksReplaced != 1 {
		t.Errorf("Expected 1 replaced block, got %d", b.Stats().BlocksReplaced)
	}
}

func TestPlaybackBufferEmptyStoreIgnored(t *testing.T) {
	b := NewPlaybackBuffer()
	b.Store(nil)
	b.Store([]float32{})

	if b.Stats().BlocksStored != 0 {
		t.Errorf("Expected 0 blocks stored, got %d", b.Stats().BlocksStored)
	}
}
