// Package action executes the blocks of executable content attached to
// transitions, state entry/exit, invoke finalize handlers, and history
// defaults.
//
// The teacher's internal/extensibility.ActionRunner collaborator ran one
// opaque primitives.ActionRef at a time and let a returned error bubble
// out of the transition loop. Executable content blocks in this engine
// run as a Result-based short-circuit instead (spec.md §9's redesign
// note): a failing action raises error.execution on the owning session
// and stops the rest of its own block, but never returns a Go error that
// would abort sibling blocks or the surrounding microstep.
package action

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/comalice/scxmlrt/internal/model"
	"github.com/comalice/scxmlrt/internal/value"
)

// tracer names the span source for <send> dispatch, grounded on
// agentflare-ai/agentml-go/stdin/namespace.go's
// otel.Tracer("stdin")/tr.Start(ctx, "stdin.read") pattern.
var tracer = otel.Tracer("scxmlrt/action")

// Raiser enqueues an event onto the owning session's internal queue
// (spec.md §4.E), used by <raise> and by this package's own
// error.execution reporting.
type Raiser interface {
	RaiseInternal(eventName string, data value.Value)
}

// Sender hands a <send> off to the event scheduler (internal/scheduler).
type Sender interface {
	Send(ctx context.Context, spec model.SendSpec, env *Env) error
}

// Canceller cancels a previously scheduled send by id.
type Canceller interface {
	Cancel(sendID string) error
}

// ScriptHost is the subset of scripthost.Session the executor needs:
// assignment, scripting, and expression evaluation all funnel through a
// session-scoped ECMAScript runtime.
type ScriptHost interface {
	ExecuteScript(source string) (value.Value, error)
	EvaluateExpression(source string) (value.Value, error)
	SetVariable(name string, v value.Value) error
}

// Env bundles everything one action execution needs: the graph (for
// resolving SendSpec/ParamSpec expressions against in-scope names), the
// script host, and the collaborators that route raised/sent/cancelled
// events to the rest of the runtime.
type Env struct {
	Graph   *model.Graph
	Host    ScriptHost
	Raise   Raiser
	Send    Sender
	Cancel  Canceller
	Logger  *slog.Logger
	Context context.Context
}

// ExecuteBlock runs actions in order. A failing action raises
// error.execution (carrying the action kind and the underlying error as
// its `data`) and stops the remaining actions in this block; it never
// returns an error for a normal execution failure, only for a
// programming error such as an out-of-range ActionIndex.
func (e *Env) ExecuteBlock(actions []model.ActionIndex) error {
	for _, idx := range actions {
		if idx < 0 || int(idx) >= len(e.Graph.Actions) {
			return fmt.Errorf("action: action index %d out of range", idx)
		}
		act := e.Graph.Action(idx)
		if execErr := e.executeOne(*act); execErr != nil {
			e.reportExecutionError(*act, execErr)
			return nil
		}
	}
	return nil
}

func (e *Env) reportExecutionError(act model.Action, cause error) {
	if e.Logger != nil {
		e.Logger.Warn("executable content failed", "kind", act.Kind, "error", cause)
	}
	if e.Raise == nil {
		return
	}
	data := value.NewObject()
	data.Set("action", value.FromString(actionKindLabel(act.Kind)))
	data.Set("message", value.FromString(cause.Error()))
	e.Raise.RaiseInternal("error.execution", data)
}

func (e *Env) executeOne(act model.Action) error {
	switch act.Kind {
	case model.ActionAssign:
		return e.execAssign(act)
	case model.ActionScript:
		_, err := e.Host.ExecuteScript(act.Source)
		return err
	case model.ActionLog:
		return e.execLog(act)
	case model.ActionRaise:
		if e.Raise == nil {
			return fmt.Errorf("action: no raiser configured")
		}
		e.Raise.RaiseInternal(act.EventName, value.Undef)
		return nil
	case model.ActionSend:
		if e.Send == nil {
			return fmt.Errorf("action: no sender configured")
		}
		ctx, span := tracer.Start(e.Context, "action.send",
			trace.WithAttributes(attribute.String("scxml.send.event", act.Send.Event)))
		defer span.End()
		return e.Send.Send(ctx, act.Send, e)
	case model.ActionCancel:
		return e.execCancel(act)
	case model.ActionIf:
		return e.execIf(act)
	case model.ActionForeach:
		return e.execForeach(act)
	default:
		return fmt.Errorf("action: unknown kind %v", act.Kind)
	}
}

func (e *Env) execAssign(act model.Action) error {
	v, err := e.Host.EvaluateExpression(act.Expr)
	if err != nil {
		return err
	}
	return e.Host.SetVariable(act.Location, v)
}

func (e *Env) execLog(act model.Action) error {
	v, err := e.Host.EvaluateExpression(act.Expr)
	if err != nil {
		return err
	}
	if e.Logger == nil {
		return nil
	}
	level := slog.LevelInfo
	switch act.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	e.Logger.Log(e.Context, level, act.Label, "value", v.ToString())
	return nil
}

func (e *Env) execCancel(act model.Action) error {
	if e.Cancel == nil {
		return fmt.Errorf("action: no canceller configured")
	}
	id := act.SendID
	if act.SendIDExpr != "" {
		v, err := e.Host.EvaluateExpression(act.SendIDExpr)
		if err != nil {
			return err
		}
		id = v.ToString()
	}
	return e.Cancel.Cancel(id)
}

func (e *Env) execIf(act model.Action) error {
	for _, branch := range act.Branches {
		if branch.Cond == "" {
			return e.ExecuteBlock(branch.Actions)
		}
		v, err := e.Host.EvaluateExpression(branch.Cond)
		if err != nil {
			return err
		}
		if v.ToBool() {
			return e.ExecuteBlock(branch.Actions)
		}
	}
	return nil
}

func (e *Env) execForeach(act model.Action) error {
	arr, err := e.Host.EvaluateExpression(act.Array)
	if err != nil {
		return err
	}
	if arr.Kind() != value.Array {
		return fmt.Errorf("action: foreach array %q is not an array", act.Array)
	}
	for i, elem := range arr.Elements() {
		if err := e.Host.SetVariable(act.Item, elem); err != nil {
			return err
		}
		if act.Index != "" {
			if err := e.Host.SetVariable(act.Index, value.FromInt(int64(i))); err != nil {
				return err
			}
		}
		if err := e.ExecuteBlock(act.Body); err != nil {
			return err
		}
	}
	return nil
}

func actionKindLabel(k model.ActionKind) string {
	switch k {
	case model.ActionAssign:
		return "assign"
	case model.ActionScript:
		return "script"
	case model.ActionLog:
		return "log"
	case model.ActionRaise:
		return "raise"
	case model.ActionSend:
		return "send"
	case model.ActionCancel:
		return "cancel"
	case model.ActionIf:
		return "if"
	case model.ActionForeach:
		return "foreach"
	default:
		return "unknown"
	}
}
