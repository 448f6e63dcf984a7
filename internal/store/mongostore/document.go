package mongostore

import (
	"encoding/json"
	"time"

	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
)

type sessionDoc struct {
	ID                     string           `bson:"_id"`
	Title                  string           `bson:"title"`
	Description            string           `bson:"description"`
	CreatedBy              string           `bson:"createdBy"`
	Participants           []participantDoc `bson:"participants"`
	Messages               []messageDoc     `bson:"messages"`
	Status                 string           `bson:"status"`
	IsFormalProposalActive bool             `bson:"isFormalProposalActive"`
	FinalAgreementText     *string          `bson:"finalAgreementText"`
	AIContext              string           `bson:"aiContext,omitempty"`
	ResolvedAt             *time.Time       `bson:"resolvedAt,omitempty"`
	CreatedAt              time.Time        `bson:"createdAt"`
	UpdatedAt              time.Time        `bson:"updatedAt"`
	Version                int64            `bson:"version"`
}

type participantDoc struct {
	UserID      string    `bson:"userId"`
	DisplayName string    `bson:"displayName,omitempty"`
	Status      string    `bson:"status"`
	HasAgreed   bool      `bson:"hasAgreed"`
	JoinedAt    time.Time `bson:"joinedAt"`
}

type messageDoc struct {
	ID          string    `bson:"id"`
	Sender      string    `bson:"sender"`
	SenderName  string    `bson:"senderName,omitempty"`
	Text        string    `bson:"text"`
	IsAIMessage bool      `bson:"isAIMessage"`
	Timestamp   time.Time `bson:"timestamp"`
}

func docFromSession(s *dispute.Session) sessionDoc {
	doc := sessionDoc{
		ID:                     s.ID,
		Title:                  s.Title,
		Description:            s.Description,
		CreatedBy:              s.CreatedBy,
		Participants:           make([]participantDoc, 0, len(s.Participants)),
		Messages:               make([]messageDoc, 0, len(s.Messages)),
		Status:                 string(s.Status),
		IsFormalProposalActive: s.IsFormalProposalActive,
		FinalAgreementText:     s.FinalAgreementText,
		AIContext:              string(s.AIContext),
		ResolvedAt:             s.ResolvedAt,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
		Version:                s.Version,
	}
	for _, p := range s.Participants {
		doc.Participants = append(doc.Participants, participantDoc{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Status:      string(p.Status),
			HasAgreed:   p.HasAgreed,
			JoinedAt:    p.JoinedAt,
		})
	}
	for _, m := range s.Messages {
		doc.Messages = append(doc.Messages, messageDoc(m))
	}
	return doc
}

func (d sessionDoc) toSession() *dispute.Session {
	s := &dispute.Session{
		ID:                     d.ID,
		Title:                  d.Title,
		Description:            d.Description,
		CreatedBy:              d.CreatedBy,
		Participants:           make([]dispute.Participant, 0, len(d.Participants)),
		Messages:               make([]dispute.Message, 0, len(d.Messages)),
		Status:                 dispute.Status(d.Status),
		IsFormalProposalActive: d.IsFormalProposalActive,
		FinalAgreementText:     d.FinalAgreementText,
		ResolvedAt:             d.ResolvedAt,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
		Version:                d.Version,
	}
	if d.AIContext != "" {
		s.AIContext = json.RawMessage(d.AIContext)
	}
	for _, p := range d.Participants {
		s.Participants = append(s.Participants, dispute.Participant{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Status:      dispute.ParticipantStatus(p.Status),
			HasAgreed:   p.HasAgreed,
			JoinedAt:    p.JoinedAt,
		})
	}
	for _, m := range d.Messages {
		s.Messages = append(s.Messages, dispute.Message(m))
	}
	return s
}
