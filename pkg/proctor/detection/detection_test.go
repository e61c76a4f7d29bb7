package detection

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"inside range", 0.42, 0.42},
		{"negative", -0.3, 0},
		{"above one", 1.7, 1},
		{"exact bounds low", 0, 0},
		{"exact bounds high", 1, 1},
		{"nan", math.NaN(), 0},
		{"positive infinity", math.Inf(1), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampConfidence(tt.in))
		})
	}
}

func TestNewClampsConfidence(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d := New(KindPhoneDetected, 3.2, "1 phone(s) detected", at)

	assert.Equal(t, KindPhoneDetected, d.Kind)
	assert.Equal(t, 1.0, d.Confidence)
	assert.Equal(t, at, d.Timestamp)
}
