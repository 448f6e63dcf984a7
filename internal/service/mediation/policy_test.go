package mediation_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
	"github.com/disagreement-ai/mediation/backend/internal/service/mediation"
)

var mediatorID = mediation.MediatorIdentity{ID: "ai-mediator", DisplayName: "AI Mediator"}

func newTestPolicy(t *testing.T) *mediation.Policy {
	t.Helper()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	seq := 0
	return mediation.NewPolicy(mediatorID,
		mediation.WithClock(func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		}),
		mediation.WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("msg-%d", seq)
		}),
	)
}

func newTestSession(participants ...dispute.Participant) *dispute.Session {
	now := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	session := dispute.NewSession("s1", "Fence", "Who pays for the fence", participants[0], now)
	session.Participants = append(session.Participants, participants[1:]...)
	return session
}

func active(id, name string) dispute.Participant {
	return dispute.Participant{UserID: id, DisplayName: name, Status: dispute.ParticipantActive}
}

func pending(id, name string) dispute.Participant {
	return dispute.Participant{UserID: id, DisplayName: name, Status: dispute.ParticipantPending}
}

func TestRecordAgreementResolvesOnLastVote(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"), active("b", "Bob"))

	first, err := policy.RecordAgreement(session, "a")
	require.NoError(t, err)
	assert.Equal(t, dispute.StatusActive, first.Session.Status)
	require.Len(t, first.Notifications, 1)
	assert.Equal(t, mediation.EventAgreementStatusUpdate, first.Notifications[0].Event)
	assert.Nil(t, first.Session.ResolvedAt)

	second, err := policy.RecordAgreement(first.Session, "b")
	require.NoError(t, err)
	assert.Equal(t, dispute.StatusResolved, second.Session.Status)
	assert.False(t, second.Session.IsFormalProposalActive)
	require.NotNil(t, second.Session.ResolvedAt)
	require.Len(t, second.Notifications, 1)
	assert.Equal(t, mediation.EventCaseResolved, second.Notifications[0].Event)
}

func TestRecordAgreementNeverResolvesEarly(t *testing.T) {
	policy := newTestPolicy(t)
	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	parts := make([]dispute.Participant, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, active(id, id))
	}
	session := newTestSession(parts...)

	resolutions := 0
	for i, id := range ids {
		out, err := policy.RecordAgreement(session, id)
		require.NoError(t, err)
		session = out.Session
		if out.Notifications[0].Event == mediation.EventCaseResolved {
			resolutions++
			assert.Equal(t, len(ids)-1, i)
		} else {
			assert.NotEqual(t, dispute.StatusResolved, session.Status)
		}
	}
	assert.Equal(t, 1, resolutions)
}

func TestRecordAgreementRepeatIsStable(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"), active("b", "Bob"))

	first, err := policy.RecordAgreement(session, "a")
	require.NoError(t, err)
	second, err := policy.RecordAgreement(first.Session, "a")
	require.NoError(t, err)

	assert.True(t, second.Session.Participants[0].HasAgreed)
	assert.False(t, second.Session.Participants[1].HasAgreed)
	assert.Equal(t, dispute.StatusActive, second.Session.Status)
	assert.Equal(t, mediation.EventAgreementStatusUpdate, second.Notifications[0].Event)
}

func TestRecordAgreementRejections(t *testing.T) {
	policy := newTestPolicy(t)

	t.Run("pending participant", func(t *testing.T) {
		session := newTestSession(active("a", "Alice"), pending("c", "Carol"))
		before := session.Clone()

		_, err := policy.RecordAgreement(session, "c")
		require.ErrorIs(t, err, dispute.ErrParticipantInactive)
		assert.Equal(t, before, session)
	})

	t.Run("unknown participant", func(t *testing.T) {
		session := newTestSession(active("a", "Alice"))
		before := session.Clone()

		_, err := policy.RecordAgreement(session, "zed")
		require.ErrorIs(t, err, dispute.ErrNotAParticipant)
		assert.Equal(t, before, session)
	})

	t.Run("already resolved", func(t *testing.T) {
		session := newTestSession(active("a", "Alice"))
		session.Status = dispute.StatusResolved

		_, err := policy.RecordAgreement(session, "a")
		require.ErrorIs(t, err, dispute.ErrSessionResolved)
	})
}

func TestRecordAgreementDoesNotMutateInput(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"))
	before := session.Clone()

	out, err := policy.RecordAgreement(session, "a")
	require.NoError(t, err)
	assert.Equal(t, dispute.StatusResolved, out.Session.Status)
	assert.Equal(t, before, session)
}

func TestRecordDisagreementResetsResolvedCase(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"), active("b", "Bob"), active("c", "Carol"))
	text := "Split the cost evenly"
	resolvedAt := time.Date(2025, 3, 1, 11, 30, 0, 0, time.UTC)
	session.Status = dispute.StatusResolved
	session.IsFormalProposalActive = true
	session.FinalAgreementText = &text
	session.ResolvedAt = &resolvedAt
	for i := range session.Participants {
		session.Participants[i].HasAgreed = true
	}
	session.Messages = append(session.Messages, dispute.Message{ID: "m0", Sender: "a", Text: "hi"})

	out, err := policy.RecordDisagreement(session, "c")
	require.NoError(t, err)

	next := out.Session
	assert.Equal(t, dispute.StatusActive, next.Status)
	assert.False(t, next.IsFormalProposalActive)
	assert.Nil(t, next.FinalAgreementText)
	assert.Nil(t, next.ResolvedAt)
	for _, p := range next.Participants {
		assert.False(t, p.HasAgreed, p.UserID)
	}

	require.Len(t, next.Messages, 2)
	last := next.Messages[1]
	assert.Equal(t, mediatorID.ID, last.Sender)
	assert.True(t, last.IsAIMessage)
	assert.Contains(t, last.Text, "Carol disagreed")
	require.NotNil(t, out.Message)
	assert.Equal(t, last, *out.Message)

	require.Len(t, out.Notifications, 2)
	assert.Equal(t, mediation.EventAgreementStatusUpdate, out.Notifications[0].Event)
	assert.Equal(t, mediation.EventNewMessage, out.Notifications[1].Event)
}

func TestRecordDisagreementWithoutProposal(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"), pending("b", "Bob"))

	out, err := policy.RecordDisagreement(session, "b")
	require.NoError(t, err)
	assert.Equal(t, dispute.StatusActive, out.Session.Status)
	assert.Len(t, out.Session.Messages, 1)

	_, err = policy.RecordDisagreement(session, "nobody")
	require.ErrorIs(t, err, dispute.ErrNotAParticipant)
}

func TestApplyMediatorReplyFormalProposal(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"), active("b", "Bob"))
	session.Participants[0].HasAgreed = true
	ctx := json.RawMessage(`{"round":2}`)

	out := policy.ApplyMediatorReply(session, dispute.FormalProposal("Alice pays 60%", ctx))

	require.True(t, out.Changed)
	next := out.Session
	assert.Empty(t, next.Messages)
	assert.Equal(t, dispute.StatusAwaitingAgreement, next.Status)
	assert.True(t, next.IsFormalProposalActive)
	require.NotNil(t, next.FinalAgreementText)
	assert.Equal(t, "Alice pays 60%", *next.FinalAgreementText)
	assert.False(t, next.Participants[0].HasAgreed)
	assert.JSONEq(t, `{"round":2}`, string(next.AIContext))
	require.Len(t, out.Notifications, 1)
	assert.Equal(t, mediation.EventFormalProposal, out.Notifications[0].Event)
}

func TestApplyMediatorReplyConversational(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"))
	proposal := "pending text"
	session.IsFormalProposalActive = true
	session.FinalAgreementText = &proposal
	session.Status = dispute.StatusAwaitingAgreement

	out := policy.ApplyMediatorReply(session, dispute.ConversationalReply("Tell me more.", nil))

	require.True(t, out.Changed)
	next := out.Session
	require.Len(t, next.Messages, 1)
	assert.Equal(t, mediatorID.ID, next.Messages[0].Sender)
	assert.Equal(t, mediatorID.DisplayName, next.Messages[0].SenderName)
	assert.True(t, next.Messages[0].IsAIMessage)
	assert.True(t, next.IsFormalProposalActive)
	assert.Equal(t, dispute.StatusAwaitingAgreement, next.Status)
	require.NotNil(t, next.FinalAgreementText)
	assert.Equal(t, proposal, *next.FinalAgreementText)
	require.Len(t, out.Notifications, 1)
	assert.Equal(t, mediation.EventNewMessage, out.Notifications[0].Event)
}

func TestApplyMediatorReplyEmptyIsNoop(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"))
	before := session.Clone()

	for _, reply := range []dispute.MediatorReply{
		dispute.EmptyReply(),
		dispute.ConversationalReply("   ", json.RawMessage(`{"x":1}`)),
		dispute.FormalProposal("", nil),
	} {
		out := policy.ApplyMediatorReply(session, reply)
		assert.False(t, out.Changed)
		assert.Empty(t, out.Notifications)
		assert.Same(t, session, out.Session)
		assert.Equal(t, before, session)
	}
}

func TestApplyMediatorReplyLeavesResolvedCaseClosed(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"))
	resolvedAt := time.Date(2025, 3, 1, 11, 30, 0, 0, time.UTC)
	session.Status = dispute.StatusResolved
	session.ResolvedAt = &resolvedAt
	session.Participants[0].HasAgreed = true
	before := session.Clone()

	for _, reply := range []dispute.MediatorReply{
		dispute.FormalProposal("Start over", nil),
		dispute.ConversationalReply("Still there?", json.RawMessage(`{"x":1}`)),
	} {
		out := policy.ApplyMediatorReply(session, reply)
		assert.False(t, out.Changed)
		assert.Empty(t, out.Notifications)
		assert.Nil(t, out.Message)
		assert.Equal(t, before, session)
	}
}

func TestBuildMediatorRequest(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"), active("b", ""))
	session.Messages = []dispute.Message{
		{ID: "1", Sender: "a", Text: "The fence is on my side."},
		{ID: "2", Sender: mediatorID.ID, Text: "Thanks Alice.", IsAIMessage: true},
		{ID: "3", Sender: "ghost", Text: "unknown sender"},
		{ID: "4", Sender: "b", Text: "No name here"},
	}

	req := policy.BuildMediatorRequest(session)

	assert.Equal(t, "s1", req.SessionID)
	assert.Equal(t, []mediation.ChatTurn{
		{Role: mediation.RoleUser, Content: "Alice: The fence is on my side."},
		{Role: mediation.RoleAssistant, Content: "Thanks Alice."},
		{Role: mediation.RoleUser, Content: "unknown sender"},
		{Role: mediation.RoleUser, Content: "No name here"},
	}, req.Messages)
	assert.JSONEq(t, `"Who pays for the fence"`, string(req.Context))

	session.AIContext = json.RawMessage(`{"summary":"fence"}`)
	req = policy.BuildMediatorRequest(session)
	assert.JSONEq(t, `{"summary":"fence"}`, string(req.Context))
}

func TestRecordParticipantMessage(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"), pending("b", "Bob"))

	out, err := policy.RecordParticipantMessage(session, "a", "hello")
	require.NoError(t, err)
	require.Len(t, out.Session.Messages, 1)
	assert.Equal(t, "Alice", out.Session.Messages[0].SenderName)
	assert.False(t, out.Session.Messages[0].IsAIMessage)

	_, err = policy.RecordParticipantMessage(session, "a", "  ")
	require.ErrorIs(t, err, dispute.ErrEmptyMessage)
	_, err = policy.RecordParticipantMessage(session, "b", "let me in")
	require.ErrorIs(t, err, dispute.ErrParticipantInactive)
	_, err = policy.RecordParticipantMessage(session, "x", "hi")
	require.ErrorIs(t, err, dispute.ErrNotAParticipant)
}

func TestParticipantLifecycle(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"))

	joined, err := policy.AddParticipant(session, "b", "Bob")
	require.NoError(t, err)
	require.Len(t, joined.Session.Participants, 2)
	assert.Equal(t, dispute.ParticipantPending, joined.Session.Participants[1].Status)

	_, err = policy.AddParticipant(joined.Session, "b", "Bob")
	require.ErrorIs(t, err, dispute.ErrAlreadyParticipant)

	approved, err := policy.ApproveParticipant(joined.Session, "b")
	require.NoError(t, err)
	assert.True(t, approved.Changed)
	assert.Equal(t, dispute.ParticipantActive, approved.Session.Participants[1].Status)

	again, err := policy.ApproveParticipant(approved.Session, "b")
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Empty(t, again.Notifications)
}

func TestMessageTimestampsNonDecreasing(t *testing.T) {
	policy := mediation.NewPolicy(mediatorID, mediation.WithClock(func() time.Time {
		return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	session := newTestSession(active("a", "Alice"))
	later := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	session.Messages = []dispute.Message{{ID: "m", Sender: "a", Text: "x", Timestamp: later}}

	out := policy.ApplyMediatorReply(session, dispute.ConversationalReply("ok", nil))
	assert.False(t, out.Session.Messages[1].Timestamp.Before(later))
}

func TestAddParticipantRejectsMediatorIdentity(t *testing.T) {
	policy := newTestPolicy(t)
	session := newTestSession(active("a", "Alice"))

	_, err := policy.AddParticipant(session, mediatorID.ID, "Totally the mediator")
	require.ErrorIs(t, err, dispute.ErrReservedUserID)
	assert.Len(t, session.Participants, 1)
	assert.True(t, policy.IsReserved(" "+mediatorID.ID+" "))
	assert.False(t, policy.IsReserved("a"))
}
