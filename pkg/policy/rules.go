package policy

import (
	"context"
	"fmt"

	"github.com/flowgate/flowgate/pkg/domain"
)

// DecisionKind tags rule outcomes.
type DecisionKind string

const (
	// DecisionAllow advances evaluation to the next rule.
	DecisionAllow DecisionKind = "ALLOW"
	// DecisionReject stops evaluation; no dispatch occurs.
	DecisionReject DecisionKind = "REJECT"
	// DecisionRewrite replaces the in-flight command and continues with the
	// remaining rules. Rewrites are chainable.
	DecisionRewrite DecisionKind = "REWRITE"
)

// Decision is what a rule returns for a command. Only Reason is meaningful
// for REJECT; only Command for REWRITE.
type Decision struct {
	Kind    DecisionKind
	Reason  string
	Command domain.Command
}

// Allow returns the pass-through decision.
func Allow() Decision {
	return Decision{Kind: DecisionAllow}
}

// Reject returns a terminal rejection with the given reason.
func Reject(reason string) Decision {
	return Decision{Kind: DecisionReject, Reason: reason}
}

// Rewrite replaces the in-flight command.
func Rewrite(cmd domain.Command) Decision {
	return Decision{Kind: DecisionRewrite, Command: cmd}
}

// Rule examines a command and decides whether it may proceed, must stop, or
// should be rewritten. Rules must not mutate the command they receive.
type Rule func(ctx context.Context, cmd domain.Command) Decision

// AllowAll is the default rule: every command passes.
func AllowAll() Rule {
	return func(context.Context, domain.Command) Decision {
		return Allow()
	}
}

// AllowedCommands rejects any command whose kind is absent from the
// allow-list. The rejection reason carries the COMMAND_NOT_ALLOWED marker so
// callers can branch on it programmatically.
func AllowedCommands(allowed ...domain.CommandKind) Rule {
	allowSet := make(map[domain.CommandKind]struct{}, len(allowed))
	for _, kind := range allowed {
		allowSet[kind] = struct{}{}
	}
	return func(_ context.Context, cmd domain.Command) Decision {
		if _, ok := allowSet[cmd.Kind]; ok {
			return Allow()
		}
		return Reject(fmt.Sprintf("%s: command kind %q is not in the allow-list", domain.ResultCommandNotAllowed, cmd.Kind))
	}
}

// MaxStagesRule rejects compile-shaped commands that declare more plugins
// than the rule permits. It is a convenience guard for multi-tenant callers
// that want a policy ceiling below the compiler's own structural limits.
func MaxStagesRule(maxStages int) Rule {
	return func(_ context.Context, cmd domain.Command) Decision {
		switch cmd.Kind {
		case domain.CommandCompilePlan, domain.CommandCompileAndExecute:
			if len(cmd.Plugins) > maxStages {
				return Reject(fmt.Sprintf("stage count %d exceeds policy ceiling %d", len(cmd.Plugins), maxStages))
			}
		}
		return Allow()
	}
}
