package ports

import (
	"context"

	"github.com/dlc-network/dlcd/internal/core/domain"
)

type PeerMessage struct {
	From    string
	Message domain.Message
}

// MessageStream is a live subscription to messages addressed to this node.
type MessageStream interface {
	Recv(ctx context.Context) (*PeerMessage, error)
	Close() error
}

type MessageService interface {
	Connect(ctx context.Context) (MessageStream, error)
	SendMessage(ctx context.Context, to string, msg domain.Message) error
	RefreshAuth(ctx context.Context) error
	Close()
}
