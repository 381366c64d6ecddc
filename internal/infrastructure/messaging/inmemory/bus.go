package inmemorybus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
)

const mailboxSize = 256

var ErrStreamClosed = errors.New("stream closed")

type envelope struct {
	from    string
	payload []byte
}

// Bus routes encoded messages between named peers of the same process.
// Messages sent to a peer with no open stream are queued in its mailbox.
type Bus struct {
	lock      *sync.Mutex
	mailboxes map[string]chan envelope
}

func NewBus() *Bus {
	return &Bus{
		lock:      &sync.Mutex{},
		mailboxes: make(map[string]chan envelope),
	}
}

func (b *Bus) mailbox(name string) chan envelope {
	b.lock.Lock()
	defer b.lock.Unlock()

	mailbox, ok := b.mailboxes[name]
	if !ok {
		mailbox = make(chan envelope, mailboxSize)
		b.mailboxes[name] = mailbox
	}
	return mailbox
}

// Client returns the message service of the peer name.
func (b *Bus) Client(name string) *Client {
	return &Client{
		bus:  b,
		name: name,
		lock: &sync.Mutex{},
	}
}

type Client struct {
	bus  *Bus
	name string

	lock          *sync.Mutex
	stream        *stream
	failSends     int
	connects      int
	authRefreshes int
}

func (c *Client) Connect(_ context.Context) (ports.MessageStream, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.connects++
	c.stream = &stream{
		mailbox: c.bus.mailbox(c.name),
		done:    make(chan struct{}),
	}
	return c.stream, nil
}

func (c *Client) SendMessage(ctx context.Context, to string, msg domain.Message) error {
	c.lock.Lock()
	if c.failSends > 0 {
		c.failSends--
		c.lock.Unlock()
		return fmt.Errorf("failed to send %s message to %s", msg.Type(), to)
	}
	c.lock.Unlock()

	payload, err := domain.EncodeMessage(msg)
	if err != nil {
		return err
	}
	select {
	case c.bus.mailbox(to) <- envelope{c.name, payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) RefreshAuth(_ context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.authRefreshes++
	return nil
}

func (c *Client) Close() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.stream != nil {
		c.stream.Close()
	}
}

// DropStream closes the open stream as a broken connection would.
func (c *Client) DropStream() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.stream != nil {
		c.stream.Close()
	}
}

// FailNextSends makes the next n sends fail.
func (c *Client) FailNextSends(n int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.failSends = n
}

func (c *Client) Connects() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connects
}

func (c *Client) AuthRefreshes() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.authRefreshes
}

type stream struct {
	mailbox   chan envelope
	done      chan struct{}
	closeOnce sync.Once
}

func (s *stream) Recv(ctx context.Context) (*ports.PeerMessage, error) {
	select {
	case <-s.done:
		return nil, ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	select {
	case <-s.done:
		return nil, ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case env := <-s.mailbox:
		msg, err := domain.DecodeMessage(env.payload)
		if err != nil {
			return nil, err
		}
		return &ports.PeerMessage{From: env.from, Message: msg}, nil
	}
}

func (s *stream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

var _ ports.MessageService = (*Client)(nil)
