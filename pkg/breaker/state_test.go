package breaker

import (
	"testing"
	"time"
)

func TestState_IsOpen(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		openUntil time.Time
		expected  bool
	}{
		{
			name:     "never tripped",
			expected: false,
		},
		{
			name:      "cooldown running",
			openUntil: now.Add(30 * time.Second),
			expected:  true,
		},
		{
			name:      "cooldown ends now",
			openUntil: now,
			expected:  false,
		},
		{
			name:      "cooldown elapsed",
			openUntil: now.Add(-time.Second),
			expected:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := State{OpenUntil: tt.openUntil}
			if got := s.IsOpen(now); got != tt.expected {
				t.Errorf("IsOpen() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_Remaining(t *testing.T) {
	now := time.Now()

	if got := (State{OpenUntil: now.Add(45 * time.Second)}).Remaining(now); got != 45*time.Second {
		t.Errorf("Remaining() = %v, want 45s", got)
	}
	if got := (State{OpenUntil: now.Add(-time.Minute)}).Remaining(now); got != 0 {
		t.Errorf("Remaining() = %v, want 0", got)
	}
}
