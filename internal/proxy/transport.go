package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// FrameHandler consumes incoming protocol frames. Malformed frames
// are the handler's problem; the transport only carries bytes.
type FrameHandler func(frame []byte)

// Transport keeps one websocket connection from a relay node to the
// authoritative endpoint alive, registering it as a peer while
// connected and redialing with exponential backoff when it drops.
type Transport struct {
	url    string
	peers  *PeerRegistry
	handle FrameHandler
	log    zerolog.Logger
}

// NewTransport creates a transport towards the authoritative node.
func NewTransport(url string, peers *PeerRegistry, handle FrameHandler, log zerolog.Logger) *Transport {
	return &Transport{url: url, peers: peers, handle: handle, log: log}
}

// Run dials and reads until ctx is cancelled. It returns nil on
// cancellation and an error only when dialing can no longer be
// retried.
func (t *Transport) Run(ctx context.Context) error {
	for {
		conn, err := t.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("dialing authoritative endpoint: %w", err)
		}

		t.serve(ctx, conn)

		if ctx.Err() != nil {
			return nil
		}
		t.log.Warn().Str("url", t.url).Msg("connection to authoritative endpoint lost, redialing")
	}
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	var conn *websocket.Conn
	operation := func() error {
		var err error
		conn, _, err = dialer.DialContext(ctx, t.url, nil)
		if err != nil {
			t.log.Warn().Err(err).Str("url", t.url).Msg("dial failed, backing off")
			return err
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0 // retry until cancelled

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return conn, nil
}

// serve registers the connection as a peer and pumps incoming frames
// until the connection breaks or ctx is cancelled.
func (t *Transport) serve(ctx context.Context, conn *websocket.Conn) {
	peer := NewWebsocketPeer(t.url, conn)
	t.peers.Add(peer)
	defer func() {
		t.peers.Remove(peer.Name())
		conn.Close()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		kind, frame, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		t.handle(frame)
	}
}
