package restoracle_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/dlc-network/dlcd/internal/core/ports"
	localoracle "github.com/dlc-network/dlcd/internal/infrastructure/oracle/local"
	restoracle "github.com/dlc-network/dlcd/internal/infrastructure/oracle/rest"
	"github.com/stretchr/testify/require"
)

func TestOracleClient(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	oracle := localoracle.NewOracle("olivia", key)
	require.NoError(t, oracle.RegisterNumericAsset("btcusd", 2, 10))

	server := httptest.NewServer(localoracle.NewHandler(oracle))
	defer server.Close()

	client, err := restoracle.NewOracleClient(server.URL)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("announcement", func(t *testing.T) {
		announcement, err := client.GetAnnouncement(ctx, "btcusd", 1700000000)
		require.NoError(t, err)
		require.Equal(t, oracle.PublicKey(), announcement.PublicKey)
		require.Equal(t, 10, announcement.NbDigits)
		require.Len(t, announcement.RValues, 10)

		expected, err := oracle.Announce("btcusd", 1700000000)
		require.NoError(t, err)
		require.Equal(t, expected, announcement)

		enum, err := client.GetAnnouncement(ctx, "election", 1700000000)
		require.NoError(t, err)
		require.Zero(t, enum.NbDigits)
		require.Len(t, enum.RValues, 1)
	})

	t.Run("attestation", func(t *testing.T) {
		_, err := client.GetAttestation(ctx, "btcusd", 1700000000)
		require.ErrorIs(t, err, ports.ErrAttestationNotAvailable)

		_, err = oracle.AttestValue("btcusd", 1700000000, 517)
		require.NoError(t, err)

		att, err := client.GetAttestation(ctx, "btcusd", 1700000000)
		require.NoError(t, err)
		digits, err := att.Digits()
		require.NoError(t, err)
		require.Equal(t, []int{1, 0, 0, 0, 0, 0, 0, 1, 0, 1}, digits)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := restoracle.NewOracleClient("")
		require.Error(t, err)
	})
}
