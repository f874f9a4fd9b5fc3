package receiver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundToDeviceStep(t *testing.T) {
	tests := []struct {
		in       float64
		expected float64
	}{
		{0, 0},
		{49.2, 49},
		{49.25, 49.5},
		{49.7, 49.5},
		{49.8, 50},
		{-32.3, -32.5},
		{-32.2, -32},
		{-0.25, 0},
		{100, 100},
	}

	for _, tt := range tests {
		actual := RoundToDeviceStep(tt.in)
		assert.Equal(t, tt.expected, actual, "RoundToDeviceStep(%v)", tt.in)
		assert.Equal(t, 0.0, math.Mod(actual*2, 1), "not a multiple of 0.5: %v", actual)
	}
}

func TestPercentRoundTrip(t *testing.T) {
	for p := 2.0; p <= 100; p += 0.5 {
		assert.Equal(t, p, DBToPercent(PercentToDB(RoundToDeviceStep(p))), "percent %v", p)
	}
}

func TestPercentToDB_MuteFloor(t *testing.T) {
	assert.True(t, math.IsInf(PercentToDB(0), -1))
	assert.True(t, math.IsInf(PercentToDB(1.5), -1))
	assert.Equal(t, -80.0, PercentToDB(2))
	assert.Equal(t, 18.0, PercentToDB(100))
	assert.Equal(t, 0.0, DBToPercent(math.Inf(-1)))
	assert.Equal(t, 2.0, DBToPercent(-80))
}

func TestDBToDeviceString(t *testing.T) {
	tests := []struct {
		db       float64
		expected string
	}{
		{math.Inf(-1), "--"},
		{18, "18"},
		{-80, "-80"},
		{-40.5, "-40.5"},
		{0, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, DBToDeviceString(tt.db))
		})
	}
}

func TestDeviceStringToDB(t *testing.T) {
	tests := []struct {
		in       string
		expected float64
	}{
		{"--", math.Inf(-1)},
		{" -- ", math.Inf(-1)},
		{"20", 18},
		{"-95", -80},
		{"-40.5", -40.5},
		{"-40.0", -40},
		{"18", 18},
		{"0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			actual, err := DeviceStringToDB(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestDeviceStringToDB_Invalid(t *testing.T) {
	for _, in := range []string{"", "loud", "NaN"} {
		_, err := DeviceStringToDB(in)
		assert.ErrorIs(t, err, ErrUnexpectedPage, "input %q", in)
	}
}

func TestDeviceStringRoundTrip(t *testing.T) {
	for _, db := range []float64{math.Inf(-1), -80, -79.5, -20, 0, 17.5, 18} {
		back, err := DeviceStringToDB(DBToDeviceString(db))
		require.NoError(t, err)
		assert.Equal(t, db, back)
	}

	clamped, err := DeviceStringToDB(DBToDeviceString(25))
	require.NoError(t, err)
	assert.Equal(t, MaxVolumeDB, clamped)
}
