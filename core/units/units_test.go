package units

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseUnits(t *testing.T) {
	cases := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.5", 18, "1500000000000000000"},
		{"4000", 8, "400000000000"},
		{"0.00000001", 8, "1"},
		{" 250 ", 0, "250"},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.in, tc.decimals)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got.Dec(), tc.in)
	}
}

func TestParseUnitsRejects(t *testing.T) {
	_, err := ParseUnits("", 18)
	require.True(t, errors.Is(err, ErrEmptyAmount))

	_, err = ParseUnits("-1", 18)
	require.True(t, errors.Is(err, ErrNegativeAmount))

	_, err = ParseUnits("0.000000001", 8)
	require.True(t, errors.Is(err, ErrTooManyDecimals))

	_, err = ParseUnits("abc", 8)
	require.Error(t, err)
}

func TestFormatUnits(t *testing.T) {
	require.Equal(t, "1.5", FormatUnits(MustParseUnits("1.5", 18), 18))
	require.Equal(t, "4000", FormatUnits(MustParseUnits("4000", 8), 8))
	require.Equal(t, "0", FormatUnits(nil, 18))
}

func TestToFloat(t *testing.T) {
	require.InDelta(t, 1.5, ToFloat(MustParseUnits("1.5", 18), 18), 1e-12)
	require.Zero(t, ToFloat(nil, 18))
}
