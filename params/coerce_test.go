package params

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruthy_SealingTable(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{true, true},
		{"Si", true},
		{"YES", true},
		{"1", true},
		{false, false},
		{"no", false},
		{nil, false},
		{float64(0), false},
		{" true ", true},
		{float64(1), true},
		{"", false},
		{map[string]any{"value": true}, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Truthy(tt.in, nil), "%#v", tt.in)
	}
}

func TestTruthy_CustomAccepted(t *testing.T) {
	assert.True(t, Truthy("sigillato", []string{"sigillato"}))
	assert.False(t, Truthy("si", []string{"sigillato"}))
	assert.True(t, Truthy(true, []string{}))

	// Accented forms are only accepted when configured
	assert.False(t, Truthy("Sì", nil))
	assert.True(t, Truthy("Sì", []string{"si", "sì"}))
}

func TestBlank(t *testing.T) {
	assert.True(t, Blank(nil))
	assert.True(t, Blank(""))
	assert.True(t, Blank("  \t\n"))
	assert.False(t, Blank("0"))
	assert.False(t, Blank(float64(0)))
	assert.False(t, Blank(false))
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{float64(12.5), 12.5, true},
		{7, 7, true},
		{int64(9), 9, true},
		{json.Number("3.25"), 3.25, true},
		{" 42 ", 42, true},
		{"12,5", 12.5, true},
		{"1,000.5", 0, false},
		{"abc", 0, false},
		{true, 0, false},
		{nil, 0, false},
		{math.NaN(), 0, false},
		{math.Inf(1), 0, false},
	}

	for _, tt := range tests {
		got, ok := Number(tt.in)
		assert.Equal(t, tt.wantOK, ok, "%#v", tt.in)
		if tt.wantOK {
			assert.InDelta(t, tt.want, got, 1e-9)
		}
	}
}

func TestText(t *testing.T) {
	s, ok := Text(float64(3))
	assert.True(t, ok)
	assert.Equal(t, "3", s)

	s, ok = Text(true)
	assert.True(t, ok)
	assert.Equal(t, "true", s)

	_, ok = Text(nil)
	assert.False(t, ok)
}
