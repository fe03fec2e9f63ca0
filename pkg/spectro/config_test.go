package spectro

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHorizontalShiftSpeedRoundTrip(t *testing.T) {
	encoded := FormatHorizontalShiftSpeed(1, 0, 3.0)
	channel, amplifier, rate, err := ParseHorizontalShiftSpeed(encoded)
	require.NoError(t, err)
	assert.Equal(t, 1, channel)
	assert.Equal(t, 0, amplifier)
	assert.Equal(t, 3.0, rate)
}

func TestParseHorizontalShiftSpeed(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		channel     int
		amplifier   int
		rate        float64
		expectError bool
	}{
		{name: "plain tuple", input: "(0, 1, 0.05)", channel: 0, amplifier: 1, rate: 0.05},
		{name: "no spaces", input: "(2,0,3)", channel: 2, amplifier: 0, rate: 3},
		{name: "no parentheses", input: "0, 0, 1.0", channel: 0, amplifier: 0, rate: 1.0},
		{name: "too few components", input: "(1, 2)", expectError: true},
		{name: "too many components", input: "(1, 2, 3, 4)", expectError: true},
		{name: "non-numeric channel", input: "(a, 0, 1.0)", expectError: true},
		{name: "non-numeric rate", input: "(0, 0, fast)", expectError: true},
		{name: "empty", input: "", expectError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			channel, amplifier, rate, err := ParseHorizontalShiftSpeed(tc.input)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.channel, channel)
			assert.Equal(t, tc.amplifier, amplifier)
			assert.Equal(t, tc.rate, rate)
		})
	}
}

func TestStoreUpdateSkipsNil(t *testing.T) {
	s := NewStore()
	s.Set(FieldExposureTime, 1.0)

	s.Update(Config{
		FieldExposureTime:     nil,
		FieldCenterWavelength: 650.0,
	})

	v, ok := s.Get(FieldExposureTime)
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
	v, ok = s.Get(FieldCenterWavelength)
	require.True(t, ok)
	assert.Equal(t, 650.0, v)
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	s := NewStore()
	s.Set(FieldExposureTime, 1.0)

	snap := s.Snapshot()
	snap[FieldExposureTime] = 99.0

	v, _ := s.Get(FieldExposureTime)
	assert.Equal(t, 1.0, v)
}

func TestConversions(t *testing.T) {
	f, err := asFloat("x", "2.5")
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	i, err := asInt("x", "42")
	require.NoError(t, err)
	assert.Equal(t, 42, i)

	b, err := asBool("x", "true")
	require.NoError(t, err)
	assert.True(t, b)

	_, err = asFloat("exposure_time", "fast")
	var valueErr *ConfigValueError
	require.ErrorAs(t, err, &valueErr)
	assert.Equal(t, "exposure_time", valueErr.Field)
}
