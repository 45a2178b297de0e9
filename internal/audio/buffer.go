package audio

import (
	"sync"
	"sync/atomic"
)

// CaptureBuffer stages microphone samples between the input callback and the
// session loop. The callback side uses TryAppend, which never waits: when the
// session loop holds the lock, or the current window is already full, the
// incoming samples are dropped. The session loop side uses TakeAndClear,
// which may block briefly on the callback's bounded critical section.
type CaptureBuffer struct {
	mu         sync.Mutex
	pending    []float32
	maxSamples int

	// Statistics
	appended        atomic.Uint64
	contentionDrops atomic.Uint64
	overflowDrops   atomic.Uint64
	windowsTaken    atomic.Uint64
}

// CaptureStats represents capture buffer statistics for monitoring
type CaptureStats struct {
	SamplesAppended uint64 `json:"samples_appended"`
	ContentionDrops uint64 `json:"contention_drops"`
	OverflowDrops   uint64 `json:"overflow_drops"`
	WindowsTaken    uint64 `json:"windows_taken"`
	PendingSamples  int    `json:"pending_samples"`
}

// NewCaptureBuffer creates a capture buffer bounded to maxSamples per window.
func NewCaptureBuffer(maxSamples int) *CaptureBuffer {
	return &CaptureBuffer{
		pending:    make([]float32, 0, maxSamples),
		maxSamples: maxSamples,
	}
}

// TryAppend adds samples to the pending window without blocking. It returns
// false when the lock is contended or the window is already full; the
// samples are dropped in both cases. Safe to call from the real-time path.
func (b *CaptureBuffer) TryAppend(samples []float32) bool {
	if !b.mu.TryLock() {
		b.contentionDrops.Add(uint64(len(samples)))
		return false
	}
	defer b.mu.Unlock()

	free := b.maxSamples - len(b.pending)
	if free <= 0 {
		b.overflowDrops.Add(uint64(len(samples)))
		return false
	}
	n := len(samples)
	if n > free {
		b.overflowDrops.Add(uint64(n - free))
		n = free
	}
	b.pending = append(b.pending, samples[:n]...)
	b.appended.Add(uint64(n))
	return true
}

// TakeAndClear removes and returns the pending block, or nil if nothing
// accumulated. Ownership of the returned slice transfers to the caller.
func (b *CaptureBuffer) TakeAndClear() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.windowsTaken.Add(1)
	if len(b.pending) == 0 {
		return nil
	}
	block := b.pending
	b.pending = make([]float32, 0, b.maxSamples)
	return block
}

// Stats returns current capture buffer statistics.
func (b *CaptureBuffer) Stats() CaptureStats {
	b.mu.Lock()
	pending := len(b.pending)
	b.mu.Unlock()

	return CaptureStats{
		SamplesAppended: b.appended.Load(),
		ContentionDrops: b.contentionDrops.Load(),
		OverflowDrops:   b.overflowDrops.Load(),
		WindowsTaken:    b.windowsTaken.Load(),
		PendingSamples:  pending,
	}
}

// PlaybackBuffer stages decoded network audio between the session loop and
// the output callback. The session loop stores at most one block per window
// via Store; the output callback drains it via Fill, which never waits and
// emits silence once the block is exhausted or the lock is contended.
type PlaybackBuffer struct {
	mu    sync.Mutex
	block []float32
	pos   int

	// Statistics
	blocksStored   atomic.Uint64
	blocksReplaced atomic.Uint64
	samplesPlayed  atomic.Uint64
	silenceSamples atomic.Uint64
}

// PlaybackStats represents playback buffer statistics for monitoring
type PlaybackStats struct {
	BlocksStored   uint64 `json:"blocks_stored"`
	BlocksReplaced uint64 `json:"blocks_replaced"`
	SamplesPlayed  uint64 `json:"samples_played"`
	SilenceSamples uint64 `json:"silence_samples"`
	PendingSamples int    `json:"pending_samples"`
}

// NewPlaybackBuffer creates an empty playback buffer.
func NewPlaybackBuffer() *PlaybackBuffer {
	return &PlaybackBuffer{}
}

// Store replaces the pending block with a freshly decoded one. Any samples
// of the previous block not yet played are discarded: one block in flight,
// never an unbounded queue. Called from the session loop only.
func (b *PlaybackBuffer) Store(block []float32) {
	if len(block) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pos < len(b.block) {
		b.blocksReplaced.Add(1)
	}
	b.block = block
	b.pos = 0
	b.blocksStored.Add(1)
}

// Fill writes pending samples into out and zero-fills the remainder. It
// returns the number of real samples written. Never waits: on lock
// contention the whole buffer is filled with silence. Safe to call from
// the real-time path.
func (b *PlaybackBuffer) Fill(out []float32) int {
	if !b.mu.TryLock() {
		for i := range out {
			out[i] = 0
		}
		b.silenceSamples.Add(uint64(len(out)))
		return 0
	}
	defer b.mu.Unlock()

	n := copy(out, b.block[b.pos:])
	b.pos += n
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	b.samplesPlayed.Add(uint64(n))
	b.silenceSamples.Add(uint64(len(out) - n))
	return n
}

// Stats returns current playback buffer statistics.
func (b *PlaybackBuffer) Stats() PlaybackStats {
	b.mu.Lock()
	pending := len(b.block) - b.pos
	b.mu.Unlock()

	return PlaybackStats{
		BlocksStored:   b.blocksStored.Load(),
		BlocksReplaced: b.blocksReplaced.Load(),
		SamplesPlayed:  b.samplesPlayed.Load(),
		SilenceSamples: b.silenceSamples.Load(),
		PendingSamples: pending,
	}
}
