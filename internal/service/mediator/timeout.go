package mediator

import (
	"context"
	"errors"
	"time"

	"github.com/disagreement-ai/mediation/backend/internal/model/dispute"
	"github.com/disagreement-ai/mediation/backend/internal/service/mediation"
)

// DefaultTimeout bounds a mediation turn when no timeout is configured.
const DefaultTimeout = 20 * time.Second

type timeoutMediator struct {
	next    mediation.Mediator
	timeout time.Duration
}

// WithTimeout bounds every call to next. A call that outlives d fails with
// ErrGatewayTimeout even if next ignores its context.
func WithTimeout(next mediation.Mediator, d time.Duration) mediation.Mediator {
	if d <= 0 {
		d = DefaultTimeout
	}
	return &timeoutMediator{next: next, timeout: d}
}

type mediateResult struct {
	reply dispute.MediatorReply
	err   error
}

func (t *timeoutMediator) Mediate(ctx context.Context, req mediation.MediatorRequest) (dispute.MediatorReply, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan mediateResult, 1)
	go func() {
		reply, err := t.next.Mediate(ctx, req)
		done <- mediateResult{reply: reply, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return dispute.MediatorReply{}, ErrGatewayTimeout
		}
		return res.reply, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return dispute.MediatorReply{}, ErrGatewayTimeout
		}
		return dispute.MediatorReply{}, ctx.Err()
	}
}
