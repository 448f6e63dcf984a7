// Package mediator holds the AI Mediator Gateway implementations. Every gateway returns a
// validated dispute.MediatorReply so the policy engine never sees raw service output.
package mediator

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
)

var (
	// ErrGatewayUnavailable covers transport failures and non-2xx answers.
	ErrGatewayUnavailable = errors.New("mediator gateway unavailable")
	// ErrGatewayTimeout is returned when a call outlives its deadline.
	ErrGatewayTimeout = errors.New("mediator gateway timed out")
	// ErrMalformedReply is returned when the reply cannot be decoded.
	ErrMalformedReply = errors.New("mediator reply malformed")
)

// wireReply is the loosely typed answer of the mediation service. Older deployments send
// the text under "response" instead of "message".
type wireReply struct {
	Message          *string         `json:"message"`
	Response         *string         `json:"response"`
	UpdatedContext   json.RawMessage `json:"updatedContext"`
	Context          json.RawMessage `json:"context"`
	IsFormalProposal flexBool        `json:"isFormalProposal"`
}

// flexBool accepts true/false as well as "true"/"false" strings.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	trimmed := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(trimmed) {
	case "true", "1":
		*b = true
	case "false", "0", "", "null":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %q", trimmed)
	}
	return nil
}

// decodeReply validates a raw JSON reply into the tagged variant.
func decodeReply(data []byte) (dispute.MediatorReply, error) {
	var wire wireReply
	if err := json.Unmarshal(data, &wire); err != nil {
		return dispute.MediatorReply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return wire.toReply(), nil
}

func (w wireReply) toReply() dispute.MediatorReply {
	text := ""
	switch {
	case w.Message != nil:
		text = *w.Message
	case w.Response != nil:
		text = *w.Response
	}
	text = strings.TrimSpace(text)

	ctx := normalizeContext(w.UpdatedContext)
	if ctx == nil {
		ctx = normalizeContext(w.Context)
	}

	if bool(w.IsFormalProposal) {
		return dispute.FormalProposal(text, ctx)
	}
	return dispute.ConversationalReply(text, ctx)
}

// normalizeContext drops absent or null contexts so the previous one is kept.
func normalizeContext(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return append(json.RawMessage(nil), trimmed...)
}

// extractJSONObject returns the outermost {...} span of free-form model output.
func extractJSONObject(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("%w: missing json object", ErrMalformedReply)
	}
	return trimmed[start : end+1], nil
}
