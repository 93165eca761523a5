package session

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/koscakluka/cognito-session/core"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

var (
	foldedEventsCounter, _  = meter.Int64Counter("session.events.folded", metric.WithDescription("Events applied to the session state"))
	ignoredEventsCounter, _ = meter.Int64Counter("session.events.ignored", metric.WithDescription("Events that did not match a transition for the current stage"))
	diagnosticsCounter, _   = meter.Int64Counter("session.diagnostics", metric.WithDescription("Recoverable errors recorded during runs"))
)
