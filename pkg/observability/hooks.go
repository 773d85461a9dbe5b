package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/keystone/pkg/domain"
)

// Hooks returns lifecycle hooks that log each event and feed m.
// Either argument may be nil.
func Hooks(m *Metrics, logger *slog.Logger) domain.LifecycleHooks {
	log := func(ctx context.Context, msg string, args ...any) {
		if logger != nil {
			logger.InfoContext(ctx, msg, args...)
		}
	}

	return domain.LifecycleHooks{
		OnSessionStart: func(ctx context.Context, e *domain.EventBase) {
			log(ctx, "session_start", "session_id", e.SessionID)
			if m != nil {
				m.SessionsStarted.Inc()
			}
		},
		OnStepEnter: func(ctx context.Context, e *domain.StepEvent) {
			log(ctx, "step_enter",
				"session_id", e.SessionID,
				"step_index", e.StepIndex,
				"step_kind", e.StepKind,
			)
			if m != nil {
				m.StepVisits.WithLabelValues(string(e.StepKind)).Inc()
			}
		},
		OnCelebrate: func(ctx context.Context, e *domain.EventBase) {
			log(ctx, "celebrate", "session_id", e.SessionID)
		},
		OnGateShown: func(ctx context.Context, e *domain.EventBase) {
			log(ctx, "gate_shown", "session_id", e.SessionID)
			if m != nil {
				m.GatesShown.Inc()
			}
		},
		OnSubmit: func(ctx context.Context, e *domain.SubmitEvent) {
			result := "ok"
			if e.IsError {
				result = string(e.Kind)
			}
			log(ctx, "submit",
				"session_id", e.SessionID,
				"key", e.Key,
				"result", result,
			)
			if m != nil {
				m.Submissions.WithLabelValues(result).Inc()
			}
		},
		OnSessionEnd: func(ctx context.Context, e *domain.EventBase) {
			log(ctx, "session_end", "session_id", e.SessionID)
		},
	}
}

// Compose merges hook sets; each callback runs in argument order.
func Compose(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		h := h
		if h.OnSessionStart != nil {
			prev := out.OnSessionStart
			out.OnSessionStart = func(ctx context.Context, e *domain.EventBase) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnSessionStart(ctx, e)
			}
		}
		if h.OnStepEnter != nil {
			prev := out.OnStepEnter
			out.OnStepEnter = func(ctx context.Context, e *domain.StepEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnStepEnter(ctx, e)
			}
		}
		if h.OnCelebrate != nil {
			prev := out.OnCelebrate
			out.OnCelebrate = func(ctx context.Context, e *domain.EventBase) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnCelebrate(ctx, e)
			}
		}
		if h.OnGateShown != nil {
			prev := out.OnGateShown
			out.OnGateShown = func(ctx context.Context, e *domain.EventBase) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnGateShown(ctx, e)
			}
		}
		if h.OnSubmit != nil {
			prev := out.OnSubmit
			out.OnSubmit = func(ctx context.Context, e *domain.SubmitEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnSubmit(ctx, e)
			}
		}
		if h.OnSessionEnd != nil {
			prev := out.OnSessionEnd
			out.OnSessionEnd = func(ctx context.Context, e *domain.EventBase) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnSessionEnd(ctx, e)
			}
		}
	}
	return out
}
