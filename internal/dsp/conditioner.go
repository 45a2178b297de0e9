package dsp

import (
	"fmt"
	"sync/atomic"
)

const (
	// DefaultNoiseGate is the magnitude below which a sample is treated
	// as exact zero.
	DefaultNoiseGate = 1e-4

	// DefaultGain is the post-rescale multiplier applied before clamping.
	DefaultGain = 1.0

	// MaxGain bounds the configurable post-gain.
	MaxGain = 10.0
)

// Conditioner prepares captured sample blocks for transmission. Condition is
// a pure function of its input: it holds no lock and performs a single pass
// plus one output allocation, so it is safe to call from the real-time
// capture path. Counters are updated atomically.
type Conditioner struct {
	noiseGate float32
	gain      float32

	// Statistics
	blocksProcessed atomic.Uint64
	blocksCollapsed atomic.Uint64
	samplesGated    atomic.Uint64
}

// ConditionerStats represents conditioner statistics for monitoring
type ConditionerStats struct {
	NoiseGate       float32 `json:"noise_gate"`
	Gain            float32 `json:"gain"`
	BlocksProcessed uint64  `json:"blocks_processed"`
	BlocksCollapsed uint64  `json:"blocks_collapsed"`
	SamplesGated    uint64  `json:"samples_gated"`
}

// NewConditioner creates a conditioner with the given noise gate threshold
// and post-gain multiplier.
func NewConditioner(noiseGate, gain float32) (*Conditioner, error) {
	if noiseGate < 0 {
		return nil, fmt.Errorf("noise gate must be non-negative, got %f", noiseGate)
	}
	if gain <= 0 || gain > MaxGain {
		return nil, fmt.Errorf("gain must be in (0, %g], got %f", MaxGain, gain)
	}
	return &Conditioner{
		noiseGate: noiseGate,
		gain:      gain,
	}, nil
}

// Condition gates, rescales, and amplifies one block of samples. It returns
// nil when the block is pure silence after gating: an empty result means
// "nothing to send", which is distinct from a block of zeros. The output is
// always within [-1, 1]. The input slice is not modified.
func (c *Conditioner) Condition(block []float32) []float32 {
	if len(block) == 0 {
		return nil
	}
	c.blocksProcessed.Add(1)

	// Gate pass, then min/max over the gated block (gated zeros included).
	out := make([]float32, len(block))
	var gated uint64
	allZero := true
	for i, s := range block {
		if s < c.noiseGate && s > -c.noiseGate {
			out[i] = 0
			gated++
			continue
		}
		out[i] = s
		allZero = false
	}
	c.samplesGated.Add(gated)

	if allZero {
		c.blocksCollapsed.Add(1)
		return nil
	}

	lo, hi := out[0], out[0]
	for _, s := range out[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	// A constant non-zero block has no range to rescale; emitting zeros is
	// the well-defined choice (the rescale formula would divide by zero).
	if hi == lo {
		for i := range out {
			out[i] = 0
		}
		return out
	}

	scale := 2 / (hi - lo)
	for i, s := range out {
		v := (s-lo)*scale - 1
		v *= c.gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}

// NoiseGate returns the configured gate threshold.
func (c *Conditioner) NoiseGate() float32 {
	return c.noiseGate
}

// Gain returns the configured post-gain multiplier.
func (c *Conditioner) Gain() float32 {
	return c.gain
}

// Stats returns current conditioner statistics.
func (c *Conditioner) Stats() ConditionerStats {
	return ConditionerStats{
		NoiseGate:       c.noiseGate,
		Gain:            c.gain,
		BlocksProcessed: c.blocksProcessed.Load(),
		BlocksCollapsed: c.blocksCollapsed.Load(),
		SamplesGated:    c.samplesGated.Load(),
	}
}
