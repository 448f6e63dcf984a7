package mediation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
)

// Event names delivered to a disagreement's room.
const (
	EventCaseResolved          = "case_resolved"
	EventAgreementStatusUpdate = "agreement_status_update"
	EventFormalProposal        = "formal_proposal_received"
	EventNewMessage            = "new_message"
)

// Chat roles used in mediator requests.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MediatorIdentity is the reserved synthetic actor that authors mediator messages.
type MediatorIdentity struct {
	ID          string
	DisplayName string
}

// Notification is one event to publish to the disagreement's room.
type Notification struct {
	Event   string
	Payload any
}

// AgreementStatus is the payload of agreement_status_update.
type AgreementStatus struct {
	SessionID    string                `json:"sessionId"`
	Status       dispute.Status        `json:"status"`
	Participants []dispute.Participant `json:"participants"`
}

// Outcome is the result of applying one event to a session snapshot.
type Outcome struct {
	Session       *dispute.Session
	Notifications []Notification
	// Message is the chat message appended by the transition, if any.
	Message *dispute.Message
	// Changed is false when the transition left the session untouched.
	Changed bool
}

// ChatTurn is one entry of the history sent to the mediator.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MediatorRequest is the payload for one mediation turn.
type MediatorRequest struct {
	SessionID string          `json:"sessionId"`
	Title     string          `json:"title,omitempty"`
	Messages  []ChatTurn      `json:"messages"`
	Context   json.RawMessage `json:"context"`
}

// Policy computes session transitions. It performs no I/O and never mutates its input.
type Policy struct {
	identity MediatorIdentity
	now      func() time.Time
	newID    func() string
}

// PolicyOption customizes a Policy.
type PolicyOption func(*Policy)

// WithClock overrides the time source.
func WithClock(now func() time.Time) PolicyOption {
	return func(p *Policy) {
		p.now = now
	}
}

// WithIDGenerator overrides message id generation.
func WithIDGenerator(newID func() string) PolicyOption {
	return func(p *Policy) {
		p.newID = newID
	}
}

// NewPolicy builds a Policy bound to the given mediator identity.
func NewPolicy(identity MediatorIdentity, opts ...PolicyOption) *Policy {
	p := &Policy{
		identity: identity,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Identity returns the mediator identity the policy writes messages as.
func (p *Policy) Identity() MediatorIdentity {
	return p.identity
}

// IsReserved reports whether userID belongs to the mediator identity.
func (p *Policy) IsReserved(userID string) bool {
	return strings.TrimSpace(userID) == p.identity.ID
}

// RecordAgreement marks participantID as agreeing and resolves the case once every
// active participant agrees.
func (p *Policy) RecordAgreement(session *dispute.Session, participantID string) (Outcome, error) {
	idx := session.FindParticipant(participantID)
	if idx < 0 {
		return Outcome{}, dispute.ErrNotAParticipant
	}
	if session.Participants[idx].Status != dispute.ParticipantActive {
		return Outcome{}, dispute.ErrParticipantInactive
	}
	if session.Status == dispute.StatusResolved {
		return Outcome{}, dispute.ErrSessionResolved
	}

	next := session.Clone()
	now := p.now()
	next.Participants[idx].HasAgreed = true
	next.UpdatedAt = now

	if next.AllActiveAgreed() {
		next.Status = dispute.StatusResolved
		next.IsFormalProposalActive = false
		next.ResolvedAt = &now
		return Outcome{
			Session:       next,
			Notifications: []Notification{{Event: EventCaseResolved, Payload: next}},
			Changed:       true,
		}, nil
	}

	return Outcome{
		Session:       next,
		Notifications: []Notification{agreementStatus(next)},
		Changed:       true,
	}, nil
}

// RecordDisagreement resets any proposal cycle and appends a mediator notice.
// It resets even when no proposal is active, and reopens a resolved case.
func (p *Policy) RecordDisagreement(session *dispute.Session, participantID string) (Outcome, error) {
	idx := session.FindParticipant(participantID)
	if idx < 0 {
		return Outcome{}, dispute.ErrNotAParticipant
	}

	next := session.Clone()
	next.IsFormalProposalActive = false
	next.Status = dispute.StatusActive
	next.FinalAgreementText = nil
	next.ResolvedAt = nil
	next.ResetAgreements()

	name := next.Participants[idx].DisplayName
	if name == "" {
		name = "A participant"
	}
	msg := p.appendMediatorMessage(next, fmt.Sprintf("%s disagreed with the proposed resolution. Mediation will continue so we can find a better solution.", name))

	return Outcome{
		Session: next,
		Notifications: []Notification{
			agreementStatus(next),
			{Event: EventNewMessage, Payload: msg},
		},
		Message: &msg,
		Changed: true,
	}, nil
}

// ApplyMediatorReply folds a mediator reply into the session. A resolved case stays
// closed: late replies are dropped.
func (p *Policy) ApplyMediatorReply(session *dispute.Session, reply dispute.MediatorReply) Outcome {
	if session.Status == dispute.StatusResolved {
		return Outcome{Session: session}
	}

	switch reply.Kind {
	case dispute.ReplyFormalProposal:
		next := session.Clone()
		text := reply.Text
		next.Status = dispute.StatusAwaitingAgreement
		next.IsFormalProposalActive = true
		next.FinalAgreementText = &text
		next.ResolvedAt = nil
		next.ResetAgreements()
		if reply.Context != nil {
			next.AIContext = append(json.RawMessage(nil), reply.Context...)
		}
		next.UpdatedAt = p.now()
		return Outcome{
			Session:       next,
			Notifications: []Notification{{Event: EventFormalProposal, Payload: next}},
			Changed:       true,
		}

	case dispute.ReplyConversational:
		next := session.Clone()
		if reply.Context != nil {
			next.AIContext = append(json.RawMessage(nil), reply.Context...)
		}
		msg := p.appendMediatorMessage(next, reply.Text)
		return Outcome{
			Session:       next,
			Notifications: []Notification{{Event: EventNewMessage, Payload: msg}},
			Message:       &msg,
			Changed:       true,
		}

	default:
		return Outcome{Session: session}
	}
}

// BuildMediatorRequest projects the session into the mediator's input.
func (p *Policy) BuildMediatorRequest(session *dispute.Session) MediatorRequest {
	names := make(map[string]string, len(session.Participants))
	for _, participant := range session.Participants {
		names[participant.UserID] = participant.DisplayName
	}

	turns := make([]ChatTurn, 0, len(session.Messages))
	for _, msg := range session.Messages {
		if msg.Sender == p.identity.ID {
			turns = append(turns, ChatTurn{Role: RoleAssistant, Content: msg.Text})
			continue
		}
		content := msg.Text
		if name := strings.TrimSpace(names[msg.Sender]); name != "" {
			content = name + ": " + msg.Text
		}
		turns = append(turns, ChatTurn{Role: RoleUser, Content: content})
	}

	return MediatorRequest{
		SessionID: session.ID,
		Title:     session.Title,
		Messages:  turns,
		Context:   mediatorContext(session),
	}
}

// RecordParticipantMessage appends a message written by an active participant.
func (p *Policy) RecordParticipantMessage(session *dispute.Session, senderID, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, dispute.ErrEmptyMessage
	}
	idx := session.FindParticipant(senderID)
	if idx < 0 {
		return Outcome{}, dispute.ErrNotAParticipant
	}
	if session.Participants[idx].Status != dispute.ParticipantActive {
		return Outcome{}, dispute.ErrParticipantInactive
	}

	next := session.Clone()
	msg := dispute.Message{
		ID:         p.newID(),
		Sender:     senderID,
		SenderName: next.Participants[idx].DisplayName,
		Text:       text,
		Timestamp:  p.timestampAfter(next),
	}
	next.Messages = append(next.Messages, msg)
	next.UpdatedAt = msg.Timestamp

	return Outcome{
		Session:       next,
		Notifications: []Notification{{Event: EventNewMessage, Payload: msg}},
		Message:       &msg,
		Changed:       true,
	}, nil
}

// AddParticipant attaches a user as a pending participant.
func (p *Policy) AddParticipant(session *dispute.Session, userID, displayName string) (Outcome, error) {
	if p.IsReserved(userID) {
		return Outcome{}, dispute.ErrReservedUserID
	}
	if session.FindParticipant(userID) >= 0 {
		return Outcome{}, dispute.ErrAlreadyParticipant
	}

	next := session.Clone()
	now := p.now()
	next.Participants = append(next.Participants, dispute.Participant{
		UserID:      userID,
		DisplayName: displayName,
		Status:      dispute.ParticipantPending,
		JoinedAt:    now,
	})
	next.UpdatedAt = now

	return Outcome{
		Session:       next,
		Notifications: []Notification{agreementStatus(next)},
		Changed:       true,
	}, nil
}

// ApproveParticipant promotes a pending participant to active. Votes already cast are
// kept; the newcomer simply has not agreed yet.
func (p *Policy) ApproveParticipant(session *dispute.Session, userID string) (Outcome, error) {
	idx := session.FindParticipant(userID)
	if idx < 0 {
		return Outcome{}, dispute.ErrNotAParticipant
	}
	if session.Participants[idx].Status == dispute.ParticipantActive {
		return Outcome{Session: session}, nil
	}

	next := session.Clone()
	next.Participants[idx].Status = dispute.ParticipantActive
	next.Participants[idx].HasAgreed = false
	next.UpdatedAt = p.now()

	return Outcome{
		Session:       next,
		Notifications: []Notification{agreementStatus(next)},
		Changed:       true,
	}, nil
}

func (p *Policy) appendMediatorMessage(session *dispute.Session, text string) dispute.Message {
	msg := dispute.Message{
		ID:          p.newID(),
		Sender:      p.identity.ID,
		SenderName:  p.identity.DisplayName,
		Text:        text,
		IsAIMessage: true,
		Timestamp:   p.timestampAfter(session),
	}
	session.Messages = append(session.Messages, msg)
	session.UpdatedAt = msg.Timestamp
	return msg
}

// timestampAfter keeps message timestamps non-decreasing within a session.
func (p *Policy) timestampAfter(session *dispute.Session) time.Time {
	now := p.now()
	if n := len(session.Messages); n > 0 && now.Before(session.Messages[n-1].Timestamp) {
		return session.Messages[n-1].Timestamp
	}
	return now
}

func agreementStatus(session *dispute.Session) Notification {
	return Notification{
		Event: EventAgreementStatusUpdate,
		Payload: AgreementStatus{
			SessionID:    session.ID,
			Status:       session.Status,
			Participants: session.ParticipantsSnapshot(),
		},
	}
}

func mediatorContext(session *dispute.Session) json.RawMessage {
	trimmed := strings.TrimSpace(string(session.AIContext))
	if trimmed != "" && trimmed != "null" {
		return append(json.RawMessage(nil), session.AIContext...)
	}
	encoded, err := json.Marshal(session.Description)
	if err != nil {
		return json.RawMessage(`""`)
	}
	return encoded
}
