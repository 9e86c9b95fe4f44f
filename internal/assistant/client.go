// Package assistant forwards chat text to the external LLM-orchestration
// service and reshapes its responses for the widget.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/nareda9819/easymart-v2-sub000/internal/domain"
	"github.com/nareda9819/easymart-v2-sub000/internal/salesforce"
)

// FallbackReply is returned verbatim when the assistant service is
// unreachable, times out, or the breaker is open.
const FallbackReply = "I'm having trouble reaching the assistant right now. Please try again in a moment."

// Action is a system action the widget should execute (e.g. add_to_cart).
type Action struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Reply is the normalized assistant response handed to the chat gateway.
type Reply struct {
	SessionID        string                   `json:"session_id"`
	Message          string                   `json:"message"`
	Intent           string                   `json:"intent,omitempty"`
	Products         []domain.ProductSnapshot `json:"products,omitempty"`
	Actions          []Action                 `json:"actions,omitempty"`
	SuggestedActions []string                 `json:"suggested_actions,omitempty"`
	FollowupChips    []string                 `json:"followup_chips,omitempty"`
	Metadata         map[string]any           `json:"metadata,omitempty"`
	// Degraded is true when this reply is the local fallback rather than a
	// real assistant response.
	Degraded bool `json:"-"`
}

// Client calls the external assistant with a longer timeout than catalog and
// cart calls get, behind a circuit breaker so a dead assistant fails fast.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Reply]
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*Reply](gobreaker.Settings{
		Name:    "assistant",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("assistant breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// Configured reports whether a base URL is set. Used by the health probe.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// upstreamReply is the raw assistant-service response shape.
type upstreamReply struct {
	SessionID        string           `json:"session_id"`
	Message          string           `json:"message"`
	Intent           string           `json:"intent"`
	Products         []map[string]any `json:"products"`
	Actions          []Action         `json:"actions"`
	SuggestedActions []string         `json:"suggested_actions"`
	FollowupChips    []string         `json:"followup_chips"`
	Metadata         map[string]any   `json:"metadata"`
}

// Send forwards a message and never returns an error: any failure degrades
// to the literal fallback reply.
func (c *Client) Send(ctx context.Context, sessionID, message string) *Reply {
	reply, err := c.breaker.Execute(func() (*Reply, error) {
		return c.send(ctx, sessionID, message)
	})
	if err != nil {
		c.logger.Warn("assistant call degraded to fallback",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return &Reply{SessionID: sessionID, Message: FallbackReply, Degraded: true}
	}
	return reply
}

func (c *Client) send(ctx context.Context, sessionID, message string) (*Reply, error) {
	body, err := json.Marshal(map[string]string{
		"message":    message,
		"session_id": sessionID,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/assistant/message", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("assistant status %d", resp.StatusCode)
	}

	var raw upstreamReply
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	reply := &Reply{
		SessionID:        raw.SessionID,
		Message:          raw.Message,
		Intent:           raw.Intent,
		Actions:          raw.Actions,
		SuggestedActions: raw.SuggestedActions,
		FollowupChips:    raw.FollowupChips,
		Metadata:         raw.Metadata,
	}
	if reply.SessionID == "" {
		reply.SessionID = sessionID
	}
	for _, p := range raw.Products {
		reply.Products = append(reply.Products, normalizeAssistantProduct(p))
	}
	return reply, nil
}

// normalizeAssistantProduct renames the assistant catalog fields (sku, title,
// image_url) onto the snapshot shape the widget already renders. The shared
// decoder's priority lists already cover those spellings.
func normalizeAssistantProduct(p map[string]any) domain.ProductSnapshot {
	return salesforce.NormalizeProduct(salesforce.RawProduct(p), "")
}

// CartAction proxies a widget cart operation to the assistant backend's cart
// path, used for product ids that are not Salesforce records.
func (c *Client) CartAction(ctx context.Context, sessionID, productID string, quantity int, action string) (map[string]any, error) {
	body, err := json.Marshal(map[string]any{
		"session_id": sessionID,
		"product_id": productID,
		"quantity":   quantity,
		"action":     action,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cart", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("assistant cart status %d: %s", resp.StatusCode, string(data))
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
