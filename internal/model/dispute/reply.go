package dispute

import (
	"encoding/json"
	"strings"
)

// ReplyKind discriminates the mediator reply variants.
type ReplyKind int

const (
	ReplyEmpty ReplyKind = iota
	ReplyConversational
	ReplyFormalProposal
)

func (k ReplyKind) String() string {
	switch k {
	case ReplyConversational:
		return "conversational"
	case ReplyFormalProposal:
		return "formal_proposal"
	default:
		return "empty"
	}
}

// MediatorReply is a validated mediator response. Context is the opaque state the
// mediator wants back on its next turn; nil keeps the previous context.
type MediatorReply struct {
	Kind    ReplyKind
	Text    string
	Context json.RawMessage
}

// EmptyReply means the mediator had nothing to say.
func EmptyReply() MediatorReply {
	return MediatorReply{Kind: ReplyEmpty}
}

// ConversationalReply builds an ordinary chat reply. Blank text collapses to EmptyReply.
func ConversationalReply(text string, ctx json.RawMessage) MediatorReply {
	if strings.TrimSpace(text) == "" {
		return EmptyReply()
	}
	return MediatorReply{Kind: ReplyConversational, Text: text, Context: ctx}
}

// FormalProposal builds a binding proposal reply. Blank text collapses to EmptyReply.
func FormalProposal(text string, ctx json.RawMessage) MediatorReply {
	if strings.TrimSpace(text) == "" {
		return EmptyReply()
	}
	return MediatorReply{Kind: ReplyFormalProposal, Text: text, Context: ctx}
}
