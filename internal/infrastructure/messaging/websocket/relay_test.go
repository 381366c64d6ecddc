package wsmessaging_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dlc-network/dlcd/internal/core/domain"
	wsmessaging "github.com/dlc-network/dlcd/internal/infrastructure/messaging/websocket"
	"github.com/stretchr/testify/require"
)

func TestRelay(t *testing.T) {
	server := httptest.NewServer(wsmessaging.NewRelay().Handler())
	defer server.Close()
	ctx := context.Background()

	alice, err := wsmessaging.NewService(server.URL, "alice", "alicepass")
	require.NoError(t, err)
	defer alice.Close()
	bob, err := wsmessaging.NewService(server.URL, "bob", "bobpass")
	require.NoError(t, err)
	defer bob.Close()

	require.NoError(t, alice.RefreshAuth(ctx))
	stream, err := bob.Connect(ctx)
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		msg := domain.RejectMessage{ContractId: "c1", Reason: "not now"}
		require.NoError(t, alice.SendMessage(ctx, "bob", msg))

		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		got, err := stream.Recv(rctx)
		require.NoError(t, err)
		require.Equal(t, "alice", got.From)
		require.Equal(t, msg, got.Message)

		require.NoError(t, stream.Close())
		stream, err = bob.Connect(ctx)
		require.NoError(t, err)
		require.NoError(t, alice.SendMessage(ctx, "bob", msg))
		got, err = stream.Recv(rctx)
		require.NoError(t, err)
		require.Equal(t, "c1", got.Message.GetContractId())

		// Messages sent to a registered peer are queued until it connects.
		carol, err := wsmessaging.NewService(server.URL, "carol", "carolpass")
		require.NoError(t, err)
		defer carol.Close()
		require.NoError(t, carol.RefreshAuth(ctx))
		require.NoError(t, alice.SendMessage(ctx, "carol", msg))

		carolStream, err := carol.Connect(ctx)
		require.NoError(t, err)
		got, err = carolStream.Recv(rctx)
		require.NoError(t, err)
		require.Equal(t, "alice", got.From)
	})

	t.Run("invalid", func(t *testing.T) {
		impostor, err := wsmessaging.NewService(server.URL, "bob", "wrong")
		require.NoError(t, err)
		require.Error(t, impostor.RefreshAuth(ctx))

		msg := domain.RejectMessage{ContractId: "c2"}
		require.Error(t, alice.SendMessage(ctx, "dave", msg))

		rctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err = stream.Recv(rctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		_, err = wsmessaging.NewService("ftp://relay", "alice", "")
		require.Error(t, err)
	})
}
