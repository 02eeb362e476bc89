package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
	"github.com/openfroyo/provision/pkg/telemetry"
)

// DeniedError lists the blocking violations of a denied artifact.
type DeniedError struct {
	Location   string
	Violations []Violation
}

func (e *DeniedError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Policy + ": " + v.Message
	}
	return fmt.Sprintf("artifact %s denied by policy (%s)", e.Location, strings.Join(msgs, "; "))
}

// Gate admits artifacts whose policy evaluation has no blocking violation.
// It satisfies lifecycle.Admitter.
type Gate struct {
	engine    *Engine
	logger    zerolog.Logger
	telemetry *telemetry.Telemetry
}

// NewGate creates a gate over eng. tel may be nil.
func NewGate(eng *Engine, logger zerolog.Logger, tel *telemetry.Telemetry) *Gate {
	return &Gate{
		engine:    eng,
		logger:    logger.With().Str("component", "policy-gate").Logger(),
		telemetry: tel,
	}
}

// Admit evaluates artifact and returns a *DeniedError when it is blocked.
// Warnings are reported but admitted.
func (g *Gate) Admit(ctx context.Context, artifact engine.ResolvedArtifact) error {
	result, err := g.engine.Evaluate(ctx, artifact)
	if err != nil {
		return err
	}

	for _, v := range append(append([]Violation{}, result.Violations...), result.Warnings...) {
		g.report(v)
	}
	if !result.Allowed {
		return &DeniedError{Location: artifact.Location, Violations: result.Violations}
	}
	return nil
}

func (g *Gate) report(v Violation) {
	g.telemetry.MetricsOrNil().RecordPolicyViolation(v.Policy, string(v.Severity))
	if pub := g.telemetry.EventsOrNil(); pub != nil {
		_ = pub.PublishPolicyViolation(v.Location, v.Policy, string(v.Severity), v.Message)
	}

	ev := g.logger.Warn()
	if v.Severity.Blocks() {
		ev = g.logger.Error()
	}
	ev.Str("policy", v.Policy).Str("location", v.Location).Msg(v.Message)
}
