package mediator

import (
	"context"
	"fmt"
	"strings"

	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
	"github.com/disagreement-ai/mediation/backend/internal/service/mediation"
)

// Static is a deterministic mediator for local runs. It acknowledges the latest
// participant message and, once ProposeAfter user turns have been seen, issues a formal
// proposal.
type Static struct {
	ProposeAfter int
	Proposal     string
}

// NewStatic returns a Static mediator with its defaults.
func NewStatic() *Static {
	return &Static{
		ProposeAfter: 4,
		Proposal:     "Both parties acknowledge each other's concerns and agree to revisit the arrangement in two weeks.",
	}
}

func (s *Static) Mediate(_ context.Context, req mediation.MediatorRequest) (dispute.MediatorReply, error) {
	userTurns := 0
	last := ""
	for _, turn := range req.Messages {
		if turn.Role == mediation.RoleUser {
			userTurns++
			last = turn.Content
		}
	}

	if userTurns == 0 {
		return dispute.ConversationalReply("Welcome. Could each of you describe the disagreement in your own words?", nil), nil
	}
	if s.ProposeAfter > 0 && userTurns >= s.ProposeAfter && userTurns%s.ProposeAfter == 0 {
		return dispute.FormalProposal(s.Proposal, nil), nil
	}

	speaker := "you"
	if name, _, ok := strings.Cut(last, ": "); ok && name != "" {
		speaker = name
	}
	return dispute.ConversationalReply(fmt.Sprintf("Thank you, %s. What outcome would feel fair to you?", speaker), nil), nil
}
