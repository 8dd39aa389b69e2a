package execution

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"codemate-server/domain"
)

type Options struct {
	ClientID     string
	ClientSecret string
	Language     string
	VersionIndex string
	MaxInFlight  int64
}

// Proxy runs code on the execution collaborator and broadcasts the outcome to
// the room it was submitted from. Callers never see the result directly.
type Proxy struct {
	ctx      context.Context
	executor domain.Executor
	rooms    domain.RoomBroadcaster
	opts     Options
	slots    *semaphore.Weighted
	wg       sync.WaitGroup
}

// NewProxy binds in-flight calls to ctx; cancelling it aborts them.
func NewProxy(ctx context.Context, executor domain.Executor, rooms domain.RoomBroadcaster, opts Options) *Proxy {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 1
	}
	return &Proxy{
		ctx:      ctx,
		executor: executor,
		rooms:    rooms,
		opts:     opts,
		slots:    semaphore.NewWeighted(opts.MaxInFlight),
	}
}

// Submit returns immediately. Exactly one codeOutput event reaches whoever is
// in roomID when the call completes.
func (p *Proxy) Submit(roomID, code, language string) {
	if language == "" {
		language = p.opts.Language
	}
	req := domain.ExecRequest{
		Script:       code,
		Language:     language,
		VersionIndex: p.opts.VersionIndex,
		ClientID:     p.opts.ClientID,
		ClientSecret: p.opts.ClientSecret,
	}

	if !p.slots.TryAcquire(1) {
		slog.Warn("execution rejected", "room", roomID, "error", domain.ErrExecSaturated)
		p.fail(roomID)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.slots.Release(1)
		p.run(roomID, req)
	}()
}

func (p *Proxy) run(roomID string, req domain.ExecRequest) {
	result, err := p.executor.Execute(p.ctx, req)
	if err != nil {
		slog.Warn("execution failed", "room", roomID, "language", req.Language, "error", err)
		p.fail(roomID)
		return
	}

	frame, err := domain.Encode(domain.EventCodeOutput, result)
	if err != nil {
		slog.Warn("execution result unusable", "room", roomID, "error", err)
		p.fail(roomID)
		return
	}
	n := p.rooms.BroadcastRoom(roomID, frame)
	slog.Debug("execution delivered", "room", roomID, "recipients", n)
}

func (p *Proxy) fail(roomID string) {
	frame, err := domain.Encode(domain.EventCodeOutput, domain.ExecFailure{Error: domain.ExecFailureMessage})
	if err != nil {
		slog.Error("encode execution failure", "room", roomID, "error", err)
		return
	}
	p.rooms.BroadcastRoom(roomID, frame)
}

// Wait blocks until every submitted call has broadcast its outcome.
func (p *Proxy) Wait() {
	p.wg.Wait()
}
