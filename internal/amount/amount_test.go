package amount

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestParseScalesByDecimals(t *testing.T) {
	v, err := Parse("900", 18)
	require.NoError(t, err)
	require.Equal(t, "900000000000000000000", v.Dec())

	v, err = Parse("0.25", 6)
	require.NoError(t, err)
	require.Equal(t, uint64(250000), v.Uint64())
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse("-1", 18)
	require.Error(t, err)
	_, err = Parse("0.0000001", 6)
	require.Error(t, err)
	_, err = Parse("abc", 6)
	require.Error(t, err)
}

func TestFormat(t *testing.T) {
	require.Equal(t, "90", Format(uint256.MustFromDecimal("90000000000000000000"), 18))
	require.Equal(t, "167.142857142857142857", Format(uint256.MustFromDecimal("167142857142857142857"), 18))
	require.Equal(t, "0", Format(nil, 18))
}

func TestParseRaw(t *testing.T) {
	v, err := ParseRaw("283500000000000000000")
	require.NoError(t, err)
	require.Equal(t, "283500000000000000000", v.Dec())
	_, err = ParseRaw("1e3")
	require.Error(t, err)
}
