package policy

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/openfroyo/provision/pkg/engine"
)

// Engine compiles Rego policies and evaluates them against artifacts.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy   Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates an engine holding the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// InputFor builds the policy input for artifact.
func InputFor(artifact engine.ResolvedArtifact, operation string) *Input {
	return &Input{
		Artifact: ArtifactInput{
			Location:   artifact.Location,
			Scheme:     schemeOf(artifact.Location),
			Priority:   artifact.Priority,
			AutoStart:  artifact.AutoStart,
			AutoUpdate: artifact.AutoUpdate,
		},
		Context: InputContext{
			Operation: operation,
			Timestamp: time.Now().UTC(),
		},
	}
}

func schemeOf(location string) string {
	if strings.TrimSpace(location) == "" {
		return ""
	}
	u, err := url.Parse(location)
	if err != nil || len(u.Scheme) <= 1 {
		// Bare paths, including Windows drive letters, are local files.
		return "file"
	}
	return strings.ToLower(u.Scheme)
}

// Evaluate runs every enabled policy against artifact.
func (e *Engine) Evaluate(ctx context.Context, artifact engine.ResolvedArtifact) (*Result, error) {
	return e.EvaluateInput(ctx, InputFor(artifact, "install"))
}

// EvaluateInput runs every enabled policy against input. A policy that fails
// to evaluate is logged and skipped.
func (e *Engine) EvaluateInput(ctx context.Context, input *Input) (*Result, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedAt: start}
	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", name).
				Str("location", input.Artifact.Location).
				Msg("Policy evaluation failed")
			continue
		}
		for _, v := range violations {
			if v.Severity.Blocks() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	e.logger.Debug().
		Str("location", input.Artifact.Location).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Artifact policy evaluation completed")

	return result, nil
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		denySet, ok := result.Expressions[0].Value.([]interface{})
		if !ok {
			continue
		}
		for _, d := range denySet {
			violations = append(violations, newViolation(cp.policy, d, input))
		}
	}
	return violations, nil
}

// newViolation reads a deny entry, which is either a message string or an
// object with message and severity fields.
func newViolation(p Policy, entry interface{}, input *Input) Violation {
	v := Violation{
		Policy:   p.Name,
		Location: input.Artifact.Location,
		Severity: p.Severity,
	}

	switch d := entry.(type) {
	case string:
		v.Message = d
	case map[string]interface{}:
		if msg, ok := d["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := d["severity"].(string); ok {
			v.Severity = Severity(sev)
		}
	default:
		v.Message = fmt.Sprintf("%v", entry)
	}

	return v
}

// compile parses the policy and prepares its deny query. The caller holds e.mu.
func (e *Engine) compile(ctx context.Context, p Policy) error {
	if p.Severity == "" {
		p.Severity = SeverityWarning
	}
	module, err := ast.ParseModule(p.Name, p.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	query, err := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(module.Package.Path.String()+".deny"),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	e.policies[p.Name] = &compiledPolicy{policy: p, query: query, compiled: time.Now()}
	e.logger.Debug().Str("policy", p.Name).Msg("Policy compiled successfully")
	return nil
}

func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	builtins := BuiltinPolicies()
	for _, p := range builtins {
		if err := e.compile(ctx, p); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}

	e.logger.Debug().Int("count", len(builtins)).Msg("Built-in policies loaded")
	return nil
}

// LoadPolicies compiles the policies found under paths. Nothing is replaced
// unless every policy compiles.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}
	return e.ApplyPolicies(ctx, policies)
}

// ApplyPolicies replaces the loaded policies with the built-ins plus policies.
func (e *Engine) ApplyPolicies(ctx context.Context, policies []Policy) error {
	staged := &Engine{policies: make(map[string]*compiledPolicy), logger: e.logger}
	if err := staged.loadBuiltinPolicies(ctx); err != nil {
		return err
	}
	for _, p := range policies {
		if err := staged.compile(ctx, p); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", p.Name, err)
		}
	}

	e.mu.Lock()
	e.policies = staged.policies
	e.mu.Unlock()

	e.logger.Info().Int("count", len(policies)).Msg("Policies loaded successfully")
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	p := cp.policy
	return &p, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range e.sortedNames() {
		policies = append(policies, e.policies[name].policy)
	}
	return policies
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}
