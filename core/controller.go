// Package session drives one research run at a time through its stages by
// folding the events of a streamed response into an observable [State].
//
// A [Controller] owns the state. Public actions validate and mutate it under
// the controller lock; stream events are folded by the goroutine consuming
// the run's stream, one at a time and in arrival order. Actions called outside
// the stage they are legal in are no-ops and report false.
package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/cognito-session/core/stream"
	"github.com/koscakluka/cognito-session/core/transport"
	"github.com/koscakluka/cognito-session/internal/utils"
)

type Controller struct {
	mu    sync.Mutex
	state State
	// notifyMu orders snapshot delivery; it is taken before mu is released
	// so observers see changes in the order they were made.
	notifyMu sync.Mutex

	machine        machine
	transport      transport.Transport
	lineOptions    []stream.Option
	maxDiagnostics int

	observers    observers
	onDiagnostic func(Diagnostic, error)

	current *run
	closed  bool
}

// run is one stream consumed on behalf of a session action. Only the current
// run may fold events.
type run struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(t transport.Transport, opts ...Option) *Controller {
	c := &Controller{
		state:          newIdleState(0),
		machine:        machine{mode: ModeGated, reportMode: ReportReplace},
		transport:      t,
		maxDiagnostics: defaultMaxDiagnostics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Mode() Mode             { return c.machine.mode }
func (c *Controller) ReportMode() ReportMode { return c.machine.reportMode }

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe registers callback for every subsequent state change. Callbacks
// run on the goroutine that made the change and must not call the
// controller's actions synchronously.
func (c *Controller) Subscribe(callback func(State)) (unsubscribe func()) {
	if callback == nil {
		return func() {}
	}
	return c.observers.add(callback)
}

// StartResearch begins a new run for query. It is legal while the session is
// idle or completed and nothing is in flight. ctx bounds the whole run.
func (c *Controller) StartResearch(ctx context.Context, query string) bool {
	query = strings.TrimSpace(query)

	c.mu.Lock()
	if c.closed || c.state.IsProcessing || query == "" ||
		(c.state.Stage != StageIdle && c.state.Stage != StageCompleted) {
		stage := c.state.Stage
		c.mu.Unlock()
		logger.Debug("ignoring start research", "stage", stage, "empty_query", query == "")
		return false
	}

	c.detachLocked()
	c.state = State{
		Stage:        StageArchitect,
		IsProcessing: true,
		RunID:        uuid.NewString(),
		Query:        query,
		Version:      c.state.Version,
	}
	r := c.newRunLocked(ctx)
	c.unlockAndNotify()

	go c.consume(r, transport.StartRequest(query))
	return true
}

// ApprovePlan resolves the approval gate. Rejecting abandons the run without
// contacting the server; approving resumes it with the correlation token the
// server sent at the interrupt. Approval is refused until that token has
// arrived, rejection is not.
func (c *Controller) ApprovePlan(ctx context.Context, approved bool) bool {
	c.mu.Lock()
	if c.closed || c.state.Stage != StageAwaitingApproval {
		stage := c.state.Stage
		c.mu.Unlock()
		logger.Debug("ignoring plan approval", "stage", stage)
		return false
	}
	if approved && !c.state.HasPendingApproval() {
		c.mu.Unlock()
		logger.Debug("ignoring plan approval without a correlation token")
		return false
	}

	token := utils.Deref(c.state.PendingApprovalToken)
	c.detachLocked()
	c.state.PendingApprovalToken = nil

	if !approved {
		c.state.Stage = StageIdle
		c.state.Plan = nil
		c.state.IsProcessing = false
		c.unlockAndNotify()
		return true
	}

	c.state.Stage = StageResearcher
	c.state.IsProcessing = true
	r := c.newRunLocked(ctx)
	c.unlockAndNotify()

	go c.consume(r, transport.ApproveRequest(token, true))
	return true
}

// Cancel abandons the stream in flight. The stage keeps its last folded value
// and IsProcessing becomes false. It reports whether there was anything to
// cancel.
//
// Cancelling at the approval gate before the correlation token arrived
// rejects the plan, since the gate could no longer be approved.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	if c.current == nil && !c.state.IsProcessing {
		c.mu.Unlock()
		return false
	}

	c.detachLocked()
	if c.state.Stage == StageAwaitingApproval && !c.state.HasPendingApproval() {
		c.state.Stage = StageIdle
		c.state.Plan = nil
		c.state.PendingApprovalToken = nil
		c.state.IsProcessing = false
		c.unlockAndNotify()
		return true
	}
	if !c.state.IsProcessing {
		c.mu.Unlock()
		return true
	}
	c.state.IsProcessing = false
	c.unlockAndNotify()
	return true
}

// Reset returns a session that is not processing to idle, discarding plan,
// report and any pending approval.
func (c *Controller) Reset() bool {
	c.mu.Lock()
	if c.closed || c.state.IsProcessing {
		c.mu.Unlock()
		return false
	}

	c.detachLocked()
	c.state = newIdleState(c.state.Version)
	c.unlockAndNotify()
	return true
}

// Wait blocks until the stream in flight, if any, has been released.
func (c *Controller) Wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		r := c.current
		c.mu.Unlock()
		if r == nil {
			// Let a delivery that is still in progress reach the observers.
			c.notifyMu.Lock()
			c.notifyMu.Unlock()
			return nil
		}

		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels the stream in flight and turns every later action into a
// no-op.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	r := c.current
	c.detachLocked()
	if c.state.IsProcessing {
		c.state.IsProcessing = false
		c.unlockAndNotify()
	} else {
		c.mu.Unlock()
	}

	if r != nil {
		<-r.done
	}
}

func (c *Controller) newRunLocked(ctx context.Context) *run {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{id: c.state.RunID, ctx: runCtx, cancel: cancel, done: make(chan struct{})}
	c.current = r
	return r
}

// detachLocked stops the current run from folding any further event and
// releases its stream.
func (c *Controller) detachLocked() {
	if c.current == nil {
		return
	}
	c.current.cancel()
	c.current = nil
}

// unlockAndNotify must be called with mu held. It bumps the version, releases
// mu and delivers the new snapshot.
func (c *Controller) unlockAndNotify() {
	c.state.Version++
	snapshot := c.state.clone()
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	c.observers.emit(snapshot)
}

// recordDiagnosticLocked appends a diagnostic to the state, dropping the
// oldest entries past the configured limit.
func (c *Controller) recordDiagnosticLocked(diagnostic Diagnostic) {
	if diagnostic.At.IsZero() {
		diagnostic.At = time.Now()
	}
	diagnostic.RunID = c.state.RunID
	c.state.Diagnostics = append(c.state.Diagnostics, diagnostic)
	if overflow := len(c.state.Diagnostics) - c.maxDiagnostics; overflow > 0 {
		c.state.Diagnostics = append([]Diagnostic(nil), c.state.Diagnostics[overflow:]...)
	}
}
