package inmemorybus_test

import (
	"context"
	"testing"
	"time"

	"github.com/dlc-network/dlcd/internal/core/domain"
	inmemorybus "github.com/dlc-network/dlcd/internal/infrastructure/messaging/inmemory"
	"github.com/stretchr/testify/require"
)

func TestBus(t *testing.T) {
	ctx := context.Background()
	bus := inmemorybus.NewBus()
	alice := bus.Client("alice")
	bob := bus.Client("bob")

	// Queued until bob connects.
	msg := domain.RejectMessage{ContractId: "c1", Reason: "no thanks"}
	require.NoError(t, alice.SendMessage(ctx, "bob", msg))

	stream, err := bob.Connect(ctx)
	require.NoError(t, err)
	got, err := stream.Recv(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", got.From)
	require.Equal(t, msg, got.Message)

	t.Run("failed send", func(t *testing.T) {
		alice.FailNextSends(1)
		require.Error(t, alice.SendMessage(ctx, "bob", msg))
		require.NoError(t, alice.SendMessage(ctx, "bob", msg))
		got, err := stream.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, "c1", got.Message.GetContractId())
	})

	t.Run("cancelled recv", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := stream.Recv(cctx)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("dropped stream", func(t *testing.T) {
		bob.DropStream()
		_, err := stream.Recv(ctx)
		require.ErrorIs(t, err, inmemorybus.ErrStreamClosed)

		require.NoError(t, alice.SendMessage(ctx, "bob", msg))
		stream, err = bob.Connect(ctx)
		require.NoError(t, err)
		got, err := stream.Recv(ctx)
		require.NoError(t, err)
		require.Equal(t, msg, got.Message)
		require.Equal(t, 2, bob.Connects())
	})
}
