package session

import (
	"errors"
	"fmt"

	"github.com/koscakluka/cognito-session/core/events"
	"github.com/koscakluka/cognito-session/core/stream"
	"github.com/koscakluka/cognito-session/core/transport"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// consume opens the stream for req and folds its events until the stream
// ends, the run is released or it stops being the current run.
func (c *Controller) consume(r *run, req transport.Request) {
	defer close(r.done)
	defer c.finish(r)
	defer func() {
		if recovered := recover(); recovered != nil {
			c.fail(r, fmt.Errorf("session run panicked: %v", recovered), DiagnosticConnection)
		}
	}()

	ctx, span := tracer.Start(r.ctx, "research run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", r.id),
		attribute.String("request.action", string(req.Action)),
	)

	if c.transport == nil {
		c.fail(r, &transport.ConnectionError{Op: "open stream", Err: errors.New("no transport configured")}, DiagnosticConnection)
		return
	}

	source, err := c.transport.Open(ctx, req)
	if err != nil {
		recordSpanError(span, err)
		if ctx.Err() == nil {
			c.fail(r, err, DiagnosticConnection)
		}
		return
	}
	defer source.Close()

	folded := 0
	for line, err := range stream.Lines(source.Chunks(ctx), c.lineOptions...) {
		if err != nil {
			var decodeErr *stream.DecodeError
			if errors.As(err, &decodeErr) {
				if !c.diagnose(r, DiagnosticDecode, err) {
					return
				}
				continue
			}
			if ctx.Err() != nil {
				return
			}
			recordSpanError(span, err)
			c.fail(r, err, DiagnosticConnection)
			return
		}

		event, ok := events.Parse(line)
		if !ok {
			continue
		}
		folded++
		if release := c.apply(r, event); release {
			span.SetAttributes(attribute.Int("run.events", folded))
			return
		}
	}
	span.SetAttributes(attribute.Int("run.events", folded))
}

// apply folds one event for r. It reports true when r must stop consuming
// its stream.
func (c *Controller) apply(r *run, event events.Event) (release bool) {
	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		return true
	}

	from := c.state.Stage
	outcome := c.machine.fold(&c.state, event)
	if !CanTransition(from, c.state.Stage) {
		logger.Error("event moved session outside the stage graph", "kind", event.Kind(), "from", from, "to", c.state.Stage, "run_id", r.id)
	}
	kind := attribute.String("event.kind", string(event.Kind()))
	if outcome.ignored {
		ignoredEventsCounter.Add(r.ctx, 1, metric.WithAttributes(kind, attribute.String("stage", string(c.state.Stage))))
		logger.Debug("ignoring event for current stage", "kind", event.Kind(), "stage", c.state.Stage, "run_id", r.id)
	} else {
		foldedEventsCounter.Add(r.ctx, 1, metric.WithAttributes(kind))
	}

	var diagnosticErr error
	if outcome.diagnostic != nil {
		if malformed, ok := event.(events.Malformed); ok && malformed.Err != nil {
			diagnosticErr = malformed.Err
			logger.Warn("skipping malformed event", "raw", malformed.Raw, "error", malformed.Err, "run_id", r.id)
		} else {
			logger.Warn("server reported an error", "message", outcome.diagnostic.Message, "run_id", r.id)
		}
		c.recordDiagnosticLocked(*outcome.diagnostic)
		diagnosticsCounter.Add(r.ctx, 1, metric.WithAttributes(attribute.String("diagnostic.kind", string(outcome.diagnostic.Kind))))
		outcome.changed = true
	}

	if outcome.release {
		c.current = nil
	}

	var diagnostic Diagnostic
	hasDiagnostic := outcome.diagnostic != nil
	if hasDiagnostic {
		diagnostic = c.state.Diagnostics[len(c.state.Diagnostics)-1]
	}

	if outcome.changed {
		c.unlockAndNotify()
	} else {
		c.mu.Unlock()
	}

	if hasDiagnostic && c.onDiagnostic != nil {
		c.onDiagnostic(diagnostic, diagnosticErr)
	}
	return outcome.release
}

// diagnose records a recoverable error for r without touching the stage. It
// reports false when r is no longer current.
func (c *Controller) diagnose(r *run, kind DiagnosticKind, err error) bool {
	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		return false
	}

	logger.Warn("recoverable stream error", "kind", kind, "error", err, "run_id", r.id)
	diagnosticsCounter.Add(r.ctx, 1, metric.WithAttributes(attribute.String("diagnostic.kind", string(kind))))
	c.recordDiagnosticLocked(Diagnostic{Kind: kind, Message: err.Error()})
	diagnostic := c.state.Diagnostics[len(c.state.Diagnostics)-1]
	c.unlockAndNotify()

	if c.onDiagnostic != nil {
		c.onDiagnostic(diagnostic, err)
	}
	return true
}

// fail records err and stops processing for r, leaving the stage where it
// is so the caller can offer a retry.
func (c *Controller) fail(r *run, err error, kind DiagnosticKind) {
	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		return
	}

	logger.Error("research run failed", "error", err, "stage", c.state.Stage, "run_id", r.id)
	diagnosticsCounter.Add(r.ctx, 1, metric.WithAttributes(attribute.String("diagnostic.kind", string(kind))))
	c.recordDiagnosticLocked(Diagnostic{Kind: kind, Message: err.Error()})
	diagnostic := c.state.Diagnostics[len(c.state.Diagnostics)-1]
	c.state.IsProcessing = false
	c.current = nil
	c.unlockAndNotify()

	if c.onDiagnostic != nil {
		c.onDiagnostic(diagnostic, err)
	}
}

// finish releases r once its stream is over. A stream that ends without a
// terminal event leaves the stage as it is and stops processing.
func (c *Controller) finish(r *run) {
	r.cancel()

	c.mu.Lock()
	if c.current != r {
		c.mu.Unlock()
		return
	}
	c.current = nil
	if !c.state.IsProcessing {
		c.mu.Unlock()
		return
	}
	logger.Info("stream ended before the run reached a resting stage", "stage", c.state.Stage, "run_id", r.id)
	c.state.IsProcessing = false
	c.unlockAndNotify()
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
