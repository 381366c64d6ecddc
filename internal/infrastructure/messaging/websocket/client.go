package wsmessaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dlc-network/dlcd/internal/core/domain"
	"github.com/dlc-network/dlcd/internal/core/ports"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

var errUnauthorized = errors.New("unauthorized")

type service struct {
	relayURL *url.URL
	name     string
	password string
	client   *http.Client

	lock   *sync.RWMutex
	token  string
	stream *stream
}

// NewService returns a message service talking to peers through the relay
// at relayURL, identified by name.
func NewService(relayURL, name, password string) (ports.MessageService, error) {
	if name == "" {
		return nil, fmt.Errorf("missing peer name")
	}
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("relay URL must be http or https")
	}
	return &service{
		relayURL: u,
		name:     name,
		password: password,
		client:   &http.Client{Timeout: 15 * time.Second},
		lock:     &sync.RWMutex{},
	}, nil
}

func (s *service) RefreshAuth(ctx context.Context) error {
	body, err := json.Marshal(authRequest{s.name, s.password})
	if err != nil {
		return err
	}
	resp, err := s.post(ctx, "/v1/auth", "", body)
	if err != nil {
		return fmt.Errorf("failed to authenticate with relay: %w", err)
	}

	var auth authResponse
	if err := json.Unmarshal(resp, &auth); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	s.lock.Lock()
	s.token = auth.Token
	s.lock.Unlock()
	return nil
}

func (s *service) Connect(ctx context.Context) (ports.MessageStream, error) {
	token := s.getToken()
	if token == "" {
		if err := s.RefreshAuth(ctx); err != nil {
			return nil, err
		}
		token = s.getToken()
	}

	wsURL := *s.relayURL
	wsURL.Scheme = strings.Replace(wsURL.Scheme, "http", "ws", 1)
	wsURL.Path = strings.TrimSuffix(wsURL.Path, "/") + "/v1/ws"
	wsURL.RawQuery = url.Values{"token": {token}}.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}

	st := newStream(conn)
	s.lock.Lock()
	if s.stream != nil {
		s.stream.Close()
	}
	s.stream = st
	s.lock.Unlock()
	return st, nil
}

func (s *service) SendMessage(ctx context.Context, to string, msg domain.Message) error {
	payload, err := domain.EncodeMessage(msg)
	if err != nil {
		return err
	}
	body, err := json.Marshal(sendRequest{To: to, Payload: payload})
	if err != nil {
		return err
	}

	_, err = s.post(ctx, "/v1/send", s.getToken(), body)
	if errors.Is(err, errUnauthorized) {
		if err := s.RefreshAuth(ctx); err != nil {
			return err
		}
		_, err = s.post(ctx, "/v1/send", s.getToken(), body)
	}
	if err != nil {
		return fmt.Errorf("failed to send %s message to %s: %w", msg.Type(), to, err)
	}
	return nil
}

func (s *service) Close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
}

func (s *service) getToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.token
}

func (s *service) post(ctx context.Context, path, token string, body []byte) ([]byte, error) {
	endpoint := s.relayURL.JoinPath(path)
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, errUnauthorized
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("relay error %d: %s", resp.StatusCode, string(buf))
	}
	return buf, nil
}

type stream struct {
	conn *websocket.Conn
	// frames is closed by the reader once the connection breaks, err holds
	// the reason.
	frames chan frame
	err    error

	done      chan struct{}
	closeOnce sync.Once
}

func newStream(conn *websocket.Conn) *stream {
	st := &stream{
		conn:   conn,
		frames: make(chan frame),
		done:   make(chan struct{}),
	}
	go st.listen()
	return st
}

func (s *stream) listen() {
	defer close(s.frames)
	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			s.err = err
			return
		}
		select {
		case s.frames <- f:
		case <-s.done:
			s.err = fmt.Errorf("stream closed")
			return
		}
	}
}

// Recv returns the next well formed message, malformed ones are dropped.
func (s *stream) Recv(ctx context.Context) (*ports.PeerMessage, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case f, ok := <-s.frames:
			if !ok {
				return nil, fmt.Errorf("relay connection closed: %w", s.err)
			}
			msg, err := domain.DecodeMessage(f.Payload)
			if err != nil {
				log.WithError(err).Warnf("discarding malformed message from %s", f.From)
				continue
			}
			return &ports.PeerMessage{From: f.From, Message: msg}, nil
		}
	}
}

func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}
