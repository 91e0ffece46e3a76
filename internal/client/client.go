// Package client is the HTTP API client observers poll the game server with.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/clashmarket/arena/internal/countdown"
	"github.com/clashmarket/arena/internal/domain"
	"github.com/clashmarket/arena/internal/service"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Client reads games from the API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	clock   clockwork.Clock
}

// New creates an API client. token may be empty; reads are public.
func New(baseURL, token string, timeout time.Duration, clock clockwork.Clock) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
		clock:   clock,
	}
}

// GetGame fetches the authoritative game record.
func (c *Client) GetGame(ctx context.Context, id uuid.UUID) (*domain.Game, error) {
	var g domain.Game
	if err := c.get(ctx, "/games/"+id.String(), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Countdown fetches the server's countdown view of a game.
func (c *Client) Countdown(ctx context.Context, id uuid.UUID) (*service.CountdownView, error) {
	var v service.CountdownView
	if err := c.get(ctx, "/games/"+id.String()+"/countdown", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// ClockOffset estimates server time minus local time from one countdown round trip.
func (c *Client) ClockOffset(ctx context.Context, id uuid.UUID) (time.Duration, error) {
	sent := c.clock.Now()
	v, err := c.Countdown(ctx, id)
	if err != nil {
		return 0, err
	}
	return countdown.EstimateOffset(sent, c.clock.Now(), v.ServerTime), nil
}

func (c *Client) get(ctx context.Context, path string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.ErrTransport("api unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return domain.ErrTransport("decode response", err)
	}
	return nil
}

// decodeError rebuilds the server's AppError. Bodies that are not an error
// envelope become transport errors.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Code    string       `json:"code"`
		Message string       `json:"message"`
		Current *domain.Game `json:"current"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		return domain.ErrTransport(fmt.Sprintf("api returned %d", resp.StatusCode), errors.New(strings.TrimSpace(string(raw))))
	}
	return &domain.AppError{
		Code:    body.Code,
		Message: body.Message,
		Status:  resp.StatusCode,
		Current: body.Current,
	}
}
