package dsp

import (
	"math"
	"testing"
)

func TestNewConditionerValidation(t *testing.T) {
	tests := []struct {
		name        string
		noiseGate   float32
		gain        float32
		expectError bool
		errorMsg    string
	}{
		{name: "defaults", noiseGate: DefaultNoiseGate, gain: DefaultGain},
		{name: "zero gate", noiseGate: 0, gain: 1.0},
		{name: "max gain", noiseGate: 1e-4, gain: MaxGain},
		{
			name:        "negative gate",
			noiseGate:   -0.1,
			gain:        1.0,
			expectError: true,
			errorMsg:    "noise gate must be non-negative",
		},
		{
			name:        "zero gain",
			noiseGate:   1e-4,
			gain:        0,
			expectError: true,
			errorMsg:    "gain must be in",
		},
		{
			name:        "gain too large",
			noiseGate:   1e-4,
			gain:        11.0,
			expectError: true,
			errorMsg:    "gain must be in",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConditioner(tt.noiseGate, tt.gain)
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConditionSilenceCollapse(t *testing.T) {
	c, err := NewConditioner(DefaultNoiseGate, DefaultGain)
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	tests := []struct {
		name  string
		block []float32
	}{
		{name: "empty block", block: nil},
		{name: "exact zeros", block: []float32{0, 0, 0, 0}},
		{name: "below gate", block: []float32{5e-5, -5e-5, 9e-5, -1e-6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if out := c.Condition(tt.block); out != nil {
				t.Errorf("Expected nil for silence, got %d samples", len(out))
			}
		})
	}
}

func TestConditionConstantBlockNoDivisionByZero(t *testing.T) {
	c, err := NewConditioner(DefaultNoiseGate, DefaultGain)
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	// A constant non-zero block has min == max, which would divide by zero
	// in the rescale formula.
	block := make([]float32, 22050)
	for i := range block {
		block[i] = 0.5
	}

	out := c.Condition(block)
	if out == nil {
		t.Fatal("Constant non-zero block must not collapse to silence")
	}
	if len(out) != len(block) {
		t.Fatalf("Expected %d samples, got %d", len(block), len(out))
	}
	for i, s := range out {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			t.Fatalf("Sample %d is not finite: %v", i, s)
		}
		if s != 0 {
			t.Fatalf("Sample %d: expected 0 for constant block, got %v", i, s)
		}
	}
}

func TestConditionOutputRange(t *testing.T) {
	c, err := NewConditioner(DefaultNoiseGate, 10.0)
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	block := []float32{-3.5, 0.25, 1.75, -0.5, 2.0}
	out := c.Condition(block)
	if out == nil {
		t.Fatal("Expected conditioned output, got nil")
	}
	for i, s := range out {
		if s < -1 || s > 1 {
			t.Errorf("Sample %d out of range: %v", i, s)
		}
	}
}

func TestConditionIdempotentOnNormalizedBlock(t *testing.T) {
	c, err := NewConditioner(DefaultNoiseGate, DefaultGain)
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	// Already spans [-1, 1]: rescale maps each sample onto itself.
	block := []float32{-1.0, -0.5, 0.25, 0.5, 1.0}
	out := c.Condition(block)
	if out == nil {
		t.Fatal("Expected conditioned output, got nil")
	}

	const tolerance = 1e-6
	for i := range block {
		if diff := math.Abs(float64(out[i] - block[i])); diff > tolerance {
			t.Errorf("Sample %d: expected %v, got %v (diff %v)", i, block[i], out[i], diff)
		}
	}
}

func TestConditionDoesNotModifyInput(t *testing.T) {
	c, err := NewConditioner(DefaultNoiseGate, DefaultGain)
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	block := []float32{-2.0, 0.5, 1.5}
	original := make([]float32, len(block))
	copy(original, block)

	c.Condition(block)
	for i := range block {
		if block[i] != original[i] {
			t.Fatalf("Input sample %d modified: %v -> %v", i, original[i], block[i])
		}
	}
}

func TestConditionerStats(t *testing.T) {
	c, err := NewConditioner(DefaultNoiseGate, DefaultGain)
	if err != nil {
		t.Fatalf("Failed to create conditioner: %v", err)
	}

	c.Condition([]float32{0, 0, 0})      // collapsed, 3 gated
	c.Condition([]float32{-1.0, 0, 1.0}) // passes, 1 gated

	stats := c.Stats()
	if stats.BlocksProcessed != 2 {
		t.Errorf("Expected 2 blocks processed, got %d", stats.BlocksProcessed)
	}
	if stats.BlocksCollapsed != 1 {
		t.Errorf("Expected 1 block collapsed, got %d", stats.BlocksCollapsed)
	}
	if stats.SamplesGated != 4 {
		t.Errorf("Expected 4 samples gated, got %d", stats.SamplesGated)
	}
}

// contains checks if a string contains a substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		findSubstring(s, substr))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
