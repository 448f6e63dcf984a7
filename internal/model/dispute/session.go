package dispute

import (
	"encoding/json"
	"slices"
	"time"
)

// Status is the mediation state of a disagreement.
type Status string

const (
	StatusActive            Status = "active"
	StatusAwaitingAgreement Status = "awaiting_agreement"
	StatusResolved          Status = "resolved"
)

// ParticipantStatus marks whether a participant may vote and read the full chat.
type ParticipantStatus string

const (
	ParticipantActive  ParticipantStatus = "active"
	ParticipantPending ParticipantStatus = "pending"
)

// Participant is a user attached to a disagreement.
type Participant struct {
	UserID      string            `json:"userId"`
	DisplayName string            `json:"displayName,omitempty"`
	Status      ParticipantStatus `json:"status"`
	HasAgreed   bool              `json:"hasAgreed"`
	JoinedAt    time.Time         `json:"joinedAt"`
}

// Message is one append-only entry of the chat log.
type Message struct {
	ID          string    `json:"id"`
	Sender      string    `json:"sender"`
	SenderName  string    `json:"senderName,omitempty"`
	Text        string    `json:"text"`
	IsAIMessage bool      `json:"isAIMessage"`
	Timestamp   time.Time `json:"timestamp"`
}

// Session is the aggregate root of one disagreement.
type Session struct {
	ID                     string          `json:"id"`
	Title                  string          `json:"title"`
	Description            string          `json:"description"`
	CreatedBy              string          `json:"createdBy"`
	Participants           []Participant   `json:"participants"`
	Messages               []Message       `json:"messages"`
	Status                 Status          `json:"status"`
	IsFormalProposalActive bool            `json:"isFormalProposalActive"`
	FinalAgreementText     *string         `json:"finalAgreementText"`
	AIContext              json.RawMessage `json:"aiContext,omitempty"`
	ResolvedAt             *time.Time      `json:"resolvedAt,omitempty"`
	CreatedAt              time.Time       `json:"createdAt"`
	UpdatedAt              time.Time       `json:"updatedAt"`

	// Version is bumped by the store on every successful save.
	Version int64 `json:"version"`
}

// NewSession opens a disagreement with the creator as its first, active participant.
func NewSession(id, title, description string, creator Participant, now time.Time) *Session {
	creator.Status = ParticipantActive
	creator.HasAgreed = false
	if creator.JoinedAt.IsZero() {
		creator.JoinedAt = now
	}

	return &Session{
		ID:           id,
		Title:        title,
		Description:  description,
		CreatedBy:    creator.UserID,
		Participants: []Participant{creator},
		Messages:     make([]Message, 0, 16),
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Clone returns a deep copy so callers can compute on a snapshot without aliasing.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	out := *s
	out.Participants = slices.Clone(s.Participants)
	out.Messages = slices.Clone(s.Messages)
	out.AIContext = slices.Clone(s.AIContext)
	if s.FinalAgreementText != nil {
		text := *s.FinalAgreementText
		out.FinalAgreementText = &text
	}
	if s.ResolvedAt != nil {
		at := *s.ResolvedAt
		out.ResolvedAt = &at
	}
	return &out
}

// FindParticipant returns the index of the participant with userID, or -1.
func (s *Session) FindParticipant(userID string) int {
	for i := range s.Participants {
		if s.Participants[i].UserID == userID {
			return i
		}
	}
	return -1
}

// AllActiveAgreed reports whether every active participant has agreed.
// A session with no active participants never counts as agreed.
func (s *Session) AllActiveAgreed() bool {
	active := 0
	for _, p := range s.Participants {
		if p.Status != ParticipantActive {
			continue
		}
		active++
		if !p.HasAgreed {
			return false
		}
	}
	return active > 0
}

// ResetAgreements clears every participant's vote.
func (s *Session) ResetAgreements() {
	for i := range s.Participants {
		s.Participants[i].HasAgreed = false
	}
}

// ParticipantsSnapshot copies the participant list for notification payloads.
func (s *Session) ParticipantsSnapshot() []Participant {
	return append([]Participant(nil), s.Participants...)
}
