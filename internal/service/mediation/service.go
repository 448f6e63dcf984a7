package mediation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/disagreement-ai/mediation/backend/internal/logging"
	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
)

// DefaultFallbackText is posted when the mediator cannot be reached.
const DefaultFallbackText = "I am currently having trouble processing that request. Please try again in a moment."

// ErrConcurrentUpdate is returned when a change keeps losing optimistic-concurrency races.
var ErrConcurrentUpdate = errors.New("disagreement is busy, please retry")

// Broadcaster delivers events to every client watching a disagreement.
type Broadcaster interface {
	Publish(ctx context.Context, sessionID, event string, payload any) error
}

// Mediator produces the next mediator reply for a disagreement.
type Mediator interface {
	Mediate(ctx context.Context, req MediatorRequest) (dispute.MediatorReply, error)
}

// Config tunes the mediation service.
type Config struct {
	// MaxRetries bounds reload-and-recompute attempts after a write conflict.
	MaxRetries int
	// AutoMediate runs a mediator turn after every participant message.
	AutoMediate bool
	// FallbackText replaces the reply when the mediator fails.
	FallbackText string
}

// Service runs the load → compute → save → broadcast cycle for every action.
type Service struct {
	store       dispute.Store
	policy      *Policy
	broadcaster Broadcaster
	mediator    Mediator
	log         *logging.Logger
	cfg         Config

	locks *keyedMutex
	turns sync.WaitGroup
	now   func() time.Time
	newID func() string
}

// NewService wires the mediation service. broadcaster and mediator may be nil: events are
// then dropped and every mediator turn falls back to the apology text.
func NewService(store dispute.Store, policy *Policy, broadcaster Broadcaster, mediator Mediator, log *logging.Logger, cfg Config) *Service {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if strings.TrimSpace(cfg.FallbackText) == "" {
		cfg.FallbackText = DefaultFallbackText
	}
	if log == nil {
		log = logging.Nop()
	}

	return &Service{
		store:       store,
		policy:      policy,
		broadcaster: broadcaster,
		mediator:    mediator,
		log:         log.Sub("mediation"),
		cfg:         cfg,
		locks:       newKeyedMutex(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// CreateInput describes a new disagreement.
type CreateInput struct {
	Title       string
	Description string
	CreatorID   string
	CreatorName string
}

// CreateSession opens a disagreement with the creator as its first active participant.
func (s *Service) CreateSession(ctx context.Context, in CreateInput) (*dispute.Session, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, dispute.ErrTitleRequired
	}
	creatorID := strings.TrimSpace(in.CreatorID)
	if creatorID == "" {
		return nil, dispute.ErrCreatorRequired
	}
	if s.policy.IsReserved(creatorID) {
		return nil, dispute.ErrReservedUserID
	}

	session := dispute.NewSession(s.newID(), title, strings.TrimSpace(in.Description), dispute.Participant{
		UserID:      creatorID,
		DisplayName: strings.TrimSpace(in.CreatorName),
	}, s.now())

	if err := s.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create disagreement: %w", err)
	}

	s.log.Info().Str("session", session.ID).Str("creator", creatorID).Msg("disagreement opened")
	return session, nil
}

// GetSession loads a disagreement.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*dispute.Session, error) {
	return s.store.Load(ctx, sessionID)
}

// ListSessions returns the most recently updated disagreements.
func (s *Service) ListSessions(ctx context.Context, limit int) ([]*dispute.Session, error) {
	return s.store.List(ctx, limit)
}

// Agree records a vote to accept the active proposal.
func (s *Service) Agree(ctx context.Context, sessionID, participantID string) (Outcome, error) {
	out, err := s.update(ctx, sessionID, func(session *dispute.Session) (Outcome, error) {
		return s.policy.RecordAgreement(session, participantID)
	})
	if err != nil {
		return Outcome{}, err
	}

	if out.Session.Status == dispute.StatusResolved {
		s.log.Info().Str("session", sessionID).Msg("disagreement resolved")
	}
	return out, nil
}

// Disagree resets the proposal cycle and schedules a fresh mediator turn.
func (s *Service) Disagree(ctx context.Context, sessionID, participantID string) (Outcome, error) {
	out, err := s.update(ctx, sessionID, func(session *dispute.Session) (Outcome, error) {
		return s.policy.RecordDisagreement(session, participantID)
	})
	if err != nil {
		return Outcome{}, err
	}

	s.log.Info().Str("session", sessionID).Str("participant", participantID).Msg("proposal rejected, mediation continues")
	s.triggerTurn(ctx, sessionID)
	return out, nil
}

// PostMessage appends a participant message and, when configured, asks the mediator to
// respond.
func (s *Service) PostMessage(ctx context.Context, sessionID, senderID, text string) (Outcome, error) {
	out, err := s.update(ctx, sessionID, func(session *dispute.Session) (Outcome, error) {
		return s.policy.RecordParticipantMessage(session, senderID, strings.TrimSpace(text))
	})
	if err != nil {
		return Outcome{}, err
	}

	if s.cfg.AutoMediate {
		s.triggerTurn(ctx, sessionID)
	}
	return out, nil
}

// JoinSession attaches a user as a pending participant.
func (s *Service) JoinSession(ctx context.Context, sessionID, userID, displayName string) (Outcome, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Outcome{}, dispute.ErrNotAParticipant
	}

	return s.update(ctx, sessionID, func(session *dispute.Session) (Outcome, error) {
		return s.policy.AddParticipant(session, userID, strings.TrimSpace(displayName))
	})
}

// ApproveParticipant promotes a pending participant to active.
func (s *Service) ApproveParticipant(ctx context.Context, sessionID, userID string) (Outcome, error) {
	return s.update(ctx, sessionID, func(session *dispute.Session) (Outcome, error) {
		return s.policy.ApproveParticipant(session, userID)
	})
}

// MediatorTurn asks the mediator for its next reply and applies it. Mediator failures
// never surface: they are replaced by the fallback apology.
func (s *Service) MediatorTurn(ctx context.Context, sessionID string) (Outcome, error) {
	session, err := s.store.Load(ctx, sessionID)
	if err != nil {
		return Outcome{}, err
	}
	if session.Status == dispute.StatusResolved {
		s.log.Debug().Str("session", sessionID).Msg("skipping mediator turn on resolved disagreement")
		return Outcome{Session: session}, nil
	}

	reply := s.mediate(ctx, s.policy.BuildMediatorRequest(session))

	out, err := s.update(ctx, sessionID, func(current *dispute.Session) (Outcome, error) {
		return s.policy.ApplyMediatorReply(current, reply), nil
	})
	if err != nil {
		return Outcome{}, err
	}

	s.log.Debug().Str("session", sessionID).Str("reply", reply.Kind.String()).Msg("mediator turn applied")
	return out, nil
}

// Wait blocks until background mediator turns have finished.
func (s *Service) Wait() {
	s.turns.Wait()
}

func (s *Service) mediate(ctx context.Context, req MediatorRequest) dispute.MediatorReply {
	if s.mediator == nil {
		return dispute.ConversationalReply(s.cfg.FallbackText, nil)
	}

	started := time.Now()
	reply, err := s.mediator.Mediate(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Str("session", req.SessionID).Dur("elapsed", time.Since(started)).Msg("mediator unavailable, using fallback reply")
		return dispute.ConversationalReply(s.cfg.FallbackText, nil)
	}
	return reply
}

// triggerTurn runs a mediator turn in the background, detached from the request's
// cancellation.
func (s *Service) triggerTurn(ctx context.Context, sessionID string) {
	bg := context.WithoutCancel(ctx)

	s.turns.Add(1)
	go func() {
		defer s.turns.Done()
		if _, err := s.MediatorTurn(bg, sessionID); err != nil {
			s.log.Error().Err(err).Str("session", sessionID).Msg("background mediator turn failed")
		}
	}()
}

// update applies fn to a fresh snapshot, saves it and publishes its notifications,
// retrying on write conflicts.
func (s *Service) update(ctx context.Context, sessionID string, fn func(*dispute.Session) (Outcome, error)) (Outcome, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		session, err := s.store.Load(ctx, sessionID)
		if err != nil {
			return Outcome{}, err
		}

		out, err := fn(session)
		if err != nil {
			return Outcome{}, err
		}
		if !out.Changed {
			return out, nil
		}

		err = s.store.Save(ctx, out.Session)
		if err == nil {
			// Published under the session lock so room order matches save order.
			s.publish(ctx, sessionID, out.Notifications)
			return out, nil
		}
		if !errors.Is(err, dispute.ErrConflict) {
			return Outcome{}, fmt.Errorf("save disagreement: %w", err)
		}
		s.log.Debug().Str("session", sessionID).Int("attempt", attempt+1).Msg("write conflict, recomputing")
	}

	s.log.Warn().Str("session", sessionID).Int("retries", s.cfg.MaxRetries).Msg("giving up after repeated write conflicts")
	return Outcome{}, ErrConcurrentUpdate
}

func (s *Service) publish(ctx context.Context, sessionID string, notifications []Notification) {
	if s.broadcaster == nil {
		return
	}
	for _, n := range notifications {
		if err := s.broadcaster.Publish(ctx, sessionID, n.Event, n.Payload); err != nil {
			s.log.Warn().Err(err).Str("session", sessionID).Str("event", n.Event).Msg("broadcast failed")
		}
	}
}
