package push

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	minReconnectDelay = time.Second
	maxReconnectDelay = 30 * time.Second
)

// WSSource subscribes to the API's /games/{id}/ws endpoint and reconnects with a
// doubling delay whenever the socket drops.
type WSSource struct {
	baseURL string
	header  http.Header
	dialer  *websocket.Dialer
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewWSSource creates a source for an http(s) API base URL.
func NewWSSource(apiURL, token string, clock clockwork.Clock, logger *slog.Logger) (*WSSource, error) {
	u, err := url.Parse(strings.TrimRight(apiURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return &WSSource{
		baseURL: u.String(),
		header:  header,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		clock:   clock,
		logger:  logger,
	}, nil
}

// Subscribe dials once synchronously so a bad address is reported to the caller;
// later drops are retried in the background until ctx is done.
func (s *WSSource) Subscribe(ctx context.Context, gameID uuid.UUID) (<-chan Update, error) {
	endpoint := s.baseURL + "/games/" + gameID.String() + "/ws"
	ws, _, err := s.dialer.DialContext(ctx, endpoint, s.header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	ch := make(chan Update, 16)
	go s.run(ctx, endpoint, ws, ch)
	return ch, nil
}

func (s *WSSource) run(ctx context.Context, endpoint string, ws *websocket.Conn, ch chan<- Update) {
	delay := minReconnectDelay
	for {
		if ws != nil {
			s.read(ctx, ws, ch)
			delay = minReconnectDelay
		}
		if ctx.Err() != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(delay):
		}

		var err error
		ws, _, err = s.dialer.DialContext(ctx, endpoint, s.header)
		if err != nil {
			ws = nil
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			s.logger.Warn("push reconnect failed", "endpoint", endpoint, "retry_in", delay, "error", err)
			continue
		}
		s.logger.Info("push reconnected", "endpoint", endpoint)
	}
}

// read pumps frames until the socket fails or ctx is done.
func (s *WSSource) read(ctx context.Context, ws *websocket.Conn, ch chan<- Update) {
	stop := context.AfterFunc(ctx, func() { ws.Close() })
	defer stop()
	defer ws.Close()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("push connection lost", "error", err)
			}
			return
		}
		u, ok, err := DecodeMessage(raw)
		if err != nil {
			s.logger.Warn("dropping malformed push frame", "error", err)
			continue
		}
		if !ok {
			continue
		}
		select {
		case ch <- u:
		case <-ctx.Done():
			return
		}
	}
}
