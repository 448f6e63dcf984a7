package mediator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
	"github.com/disagreement-ai/mediation/backend/internal/service/mediation"
)

// ArkMediator asks an LLM chat model to act as the mediator directly.
type ArkMediator struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
}

// ArkConfig tunes ArkMediator.
type ArkConfig struct {
	// HistoryLimit caps how many recent chat turns are sent. Zero sends 40.
	HistoryLimit int
}

// NewArkMediator compiles the mediation chain around chatModel.
func NewArkMediator(ctx context.Context, chatModel model.BaseChatModel, cfg ArkConfig) (*ArkMediator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 40
	}

	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile mediator chain: %w", err)
	}

	return &ArkMediator{chain: runnable, historyLimit: historyLimit}, nil
}

// Mediate runs one mediation turn through the model. Output that is not the requested
// JSON object is treated as a plain conversational reply.
func (a *ArkMediator) Mediate(ctx context.Context, req mediation.MediatorRequest) (dispute.MediatorReply, error) {
	msg, err := a.chain.Invoke(ctx, map[string]any{
		"system":  buildSystemPrompt(req),
		"history": a.buildHistory(req.Messages),
		"query":   mediatorQuery,
	})
	if err != nil {
		return dispute.MediatorReply{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if msg == nil {
		return dispute.EmptyReply(), nil
	}

	return parseModelOutput(msg.Content), nil
}

func (a *ArkMediator) buildHistory(turns []mediation.ChatTurn) []*schema.Message {
	start := 0
	if len(turns) > a.historyLimit {
		start = len(turns) - a.historyLimit
	}

	history := make([]*schema.Message, 0, len(turns)-start)
	for _, turn := range turns[start:] {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		if turn.Role == mediation.RoleAssistant {
			history = append(history, schema.AssistantMessage(content, nil))
		} else {
			history = append(history, schema.UserMessage(content))
		}
	}
	return history
}

// parseModelOutput turns raw model text into a reply.
func parseModelOutput(content string) dispute.MediatorReply {
	content = strings.TrimSpace(content)
	if content == "" {
		return dispute.EmptyReply()
	}

	object, err := extractJSONObject(content)
	if err != nil {
		return dispute.ConversationalReply(content, nil)
	}

	var wire wireReply
	if err := json.Unmarshal([]byte(object), &wire); err != nil {
		return dispute.ConversationalReply(content, nil)
	}
	if wire.Message == nil && wire.Response == nil {
		return dispute.ConversationalReply(content, nil)
	}
	return wire.toReply()
}

func buildSystemPrompt(req mediation.MediatorRequest) string {
	var builder strings.Builder
	builder.WriteString(mediatorSystemPrompt)
	if title := strings.TrimSpace(req.Title); title != "" {
		builder.WriteString("\n\nDisagreement: ")
		builder.WriteString(title)
	}
	if ctx := strings.TrimSpace(string(req.Context)); ctx != "" && ctx != "null" {
		builder.WriteString("\n\nContext from earlier turns:\n")
		builder.WriteString(ctx)
	}
	return builder.String()
}

const mediatorSystemPrompt = "You are a neutral, empathetic mediator helping two or more people resolve a disagreement. " +
	"Ask clarifying questions, reflect each side's concerns fairly and steer toward a concrete compromise. " +
	"When the parties appear close to agreement, issue a formal proposal that states the resolution in plain terms.\n" +
	"Answer with a single JSON object and nothing else. Fields: message (your reply or the proposal text), " +
	"isFormalProposal (true only for a binding proposal), context (a short summary of the dispute state to remember next turn)."

const mediatorQuery = "Continue the mediation. Respond with the JSON object only."
