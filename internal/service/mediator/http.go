package mediator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
	"github.com/disagreement-ai/mediation/backend/internal/service/mediation"
)

const maxReplyBytes = 1 << 20

// HTTPClient calls an external mediation microservice over JSON/HTTP.
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient targets the given endpoint. A nil client uses a default without its own
// timeout; bound calls with WithTimeout instead.
func NewHTTPClient(url string, client *http.Client) *HTTPClient {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{url: strings.TrimSpace(url), client: client}
}

type httpRequest struct {
	SessionID string               `json:"sessionId"`
	Messages  []mediation.ChatTurn `json:"messages"`
	Context   json.RawMessage      `json:"context"`
	Title     string               `json:"title,omitempty"`
}

// Mediate posts the conversation and decodes the mediator's reply.
func (c *HTTPClient) Mediate(ctx context.Context, req mediation.MediatorRequest) (dispute.MediatorReply, error) {
	if c.url == "" {
		return dispute.MediatorReply{}, fmt.Errorf("%w: no endpoint configured", ErrGatewayUnavailable)
	}

	messages := req.Messages
	if messages == nil {
		messages = []mediation.ChatTurn{}
	}
	body, err := json.Marshal(httpRequest{
		SessionID: req.SessionID,
		Messages:  messages,
		Context:   req.Context,
		Title:     req.Title,
	})
	if err != nil {
		return dispute.MediatorReply{}, fmt.Errorf("marshal mediator request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return dispute.MediatorReply{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return dispute.MediatorReply{}, ErrGatewayTimeout
		}
		return dispute.MediatorReply{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return dispute.MediatorReply{}, fmt.Errorf("%w: read body: %v", ErrGatewayUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return dispute.MediatorReply{}, fmt.Errorf("%w: status %d: %s", ErrGatewayUnavailable, resp.StatusCode, truncate(string(payload), 200))
	}

	return decodeReply(payload)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
