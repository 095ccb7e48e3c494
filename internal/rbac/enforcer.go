package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nexus-iot/nexus/internal/shared"
)

// Requirement is the permission a protected operation declares. Resource and
// Operation hold enumerator names and are parsed on every check.
type Requirement struct {
	Resource  string
	Operation string
	// Message overrides the denial message when set.
	Message string
}

// Require builds a Requirement from typed values.
func Require(resource Resource, operation Operation) Requirement {
	return Requirement{Resource: string(resource), Operation: string(operation)}
}

// WithMessage returns a copy of req carrying a denial message.
func (req Requirement) WithMessage(msg string) Requirement {
	req.Message = msg
	return req
}

// Decision outcomes.
const (
	OutcomeGranted         = "granted"
	OutcomeDenied          = "denied"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeMisconfigured   = "misconfigured"
	OutcomeError           = "error"
)

// DecisionRecorder observes enforcement outcomes.
type DecisionRecorder interface {
	RecordDecision(resource, operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDecision(string, string, string) {}

// PermissionResolver resolves principals that arrive without permissions.
type PermissionResolver interface {
	Resolve(ctx context.Context, p Principal) (PermissionSet, error)
}

// Enforcer guards protected operations. It keeps no per-call state.
type Enforcer struct {
	resolver PermissionResolver
	recorder DecisionRecorder
	logger   *slog.Logger
}

// NewEnforcer constructs an Enforcer. resolver and recorder may be nil.
func NewEnforcer(resolver PermissionResolver, recorder DecisionRecorder, logger *slog.Logger) *Enforcer {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{resolver: resolver, recorder: recorder, logger: logger}
}

// Check decides whether the principal in ctx satisfies req and returns it.
func (e *Enforcer) Check(ctx context.Context, req Requirement, callSite string) (Principal, error) {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		e.logger.WarnContext(ctx, "authz unauthenticated",
			slog.String("resource", req.Resource),
			slog.String("operation", req.Operation),
			slog.String("call_site", callSite))
		e.recorder.RecordDecision(req.Resource, req.Operation, OutcomeUnauthenticated)
		return Principal{}, ErrAuthenticationRequired
	}

	resource, err := ParseResource(req.Resource)
	if err == nil {
		var operation Operation
		operation, err = ParseOperation(req.Operation)
		if err == nil {
			return e.decide(ctx, principal, req, resource, operation, callSite)
		}
	}
	cfgErr := &ConfigError{Resource: req.Resource, Operation: req.Operation, CallSite: callSite, Err: err}
	e.logger.ErrorContext(ctx, "authz misconfigured",
		slog.String("resource", req.Resource),
		slog.String("operation", req.Operation),
		slog.String("call_site", callSite),
		slog.Any("error", err))
	e.recorder.RecordDecision(req.Resource, req.Operation, OutcomeMisconfigured)
	return Principal{}, cfgErr
}

func (e *Enforcer) decide(ctx context.Context, principal Principal, req Requirement, resource Resource, operation Operation, callSite string) (Principal, error) {
	perms := principal.permissions
	if !principal.Resolved() && e.resolver != nil {
		resolved, err := e.resolver.Resolve(ctx, principal)
		if err != nil {
			e.logger.ErrorContext(ctx, "authz resolve permissions",
				slog.String("user_id", principal.UserID.String()),
				slog.String("call_site", callSite),
				slog.Any("error", err))
			e.recorder.RecordDecision(string(resource), string(operation), OutcomeError)
			return Principal{}, fmt.Errorf("rbac: resolve permissions: %w", err)
		}
		principal = principal.WithPermissions(resolved)
		perms = resolved
	}

	attrs := []any{
		slog.String("user_id", principal.UserID.String()),
		slog.String("tenant_id", tenantString(principal)),
		slog.String("resource", string(resource)),
		slog.String("operation", string(operation)),
		slog.String("call_site", callSite),
	}
	attrs = append(attrs, shared.CorrelationAttrs(ctx)...)
	if !Authorize(perms, resource, operation) {
		e.logger.WarnContext(ctx, "authz denied", attrs...)
		e.recorder.RecordDecision(string(resource), string(operation), OutcomeDenied)
		return Principal{}, &DeniedError{
			UserID:    principal.UserID,
			Resource:  resource,
			Operation: operation,
			CallSite:  callSite,
			Message:   req.Message,
		}
	}
	e.logger.InfoContext(ctx, "authz granted", attrs...)
	e.recorder.RecordDecision(string(resource), string(operation), OutcomeGranted)
	return principal, nil
}

// Do runs fn only when the principal in ctx satisfies req. fn's error is
// returned unchanged.
func (e *Enforcer) Do(ctx context.Context, req Requirement, callSite string, fn func(context.Context) error) error {
	principal, err := e.Check(ctx, req, callSite)
	if err != nil {
		return err
	}
	return fn(ContextWithPrincipal(ctx, principal))
}

// Guard wraps fn so it runs only when the caller satisfies req.
func Guard[T any](e *Enforcer, req Requirement, callSite string, fn func(context.Context) (T, error)) func(context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		principal, err := e.Check(ctx, req, callSite)
		if err != nil {
			var zero T
			return zero, err
		}
		return fn(ContextWithPrincipal(ctx, principal))
	}
}

func tenantString(p Principal) string {
	if !p.TenantID.Valid {
		return ""
	}
	return p.TenantID.UUID.String()
}
