package main

import (
	"encoding/hex"
	"testing"

	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/stretchr/testify/require"
)

func TestParseOutcomes(t *testing.T) {
	outcomes, err := parseOutcomes([]string{"up:100000:0", "down:0:100000"})
	require.NoError(t, err)
	require.Equal(t, []domain.Outcome{
		{Message: "up", LocalPayout: 100000},
		{Message: "down", RemotePayout: 100000},
	}, outcomes)

	_, err = parseOutcomes([]string{"up:100000"})
	require.Error(t, err)
	_, err = parseOutcomes([]string{"up:abc:0"})
	require.Error(t, err)
}

func TestParseRanges(t *testing.T) {
	ranges, err := parseRanges([]string{"0-9999:0:100000", "10000-20000:100000:0"})
	require.NoError(t, err)
	require.Equal(t, []domain.RangeOutcome{
		{Start: 0, End: 9999, RemotePayout: 100000},
		{Start: 10000, End: 20000, LocalPayout: 100000},
	}, ranges)

	for _, v := range []string{"0-9999:0", "09999:0:1", "a-9:0:1", "0-b:0:1", "0-9:x:1"} {
		_, err := parseRanges([]string{v})
		require.Error(t, err, v)
	}
}

func TestParseNumericAsset(t *testing.T) {
	asset, base, nbDigits, err := parseNumericAsset("btcusd:2:20")
	require.NoError(t, err)
	require.Equal(t, "btcusd", asset)
	require.Equal(t, 2, base)
	require.Equal(t, 20, nbDigits)

	_, _, _, err = parseNumericAsset("btcusd:2")
	require.Error(t, err)
	_, _, _, err = parseNumericAsset("btcusd:two:20")
	require.Error(t, err)
}

func TestParseOracleKey(t *testing.T) {
	key, err := parseOracleKey("")
	require.NoError(t, err)
	require.NotNil(t, key)

	hexKey := "0000000000000000000000000000000000000000000000000000000000000001"
	key, err = parseOracleKey(hexKey)
	require.NoError(t, err)
	require.Equal(t, hexKey, hex.EncodeToString(key.Serialize()))

	_, err = parseOracleKey("zz")
	require.Error(t, err)
}
