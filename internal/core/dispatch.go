package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/comalice/scxmlrt/internal/action"
	"github.com/comalice/scxmlrt/internal/ioprocessor"
	"github.com/comalice/scxmlrt/internal/model"
	"github.com/comalice/scxmlrt/internal/queue"
	"github.com/comalice/scxmlrt/internal/value"
)

// internalTarget and parentTarget are the two special <send target="...">
// values spec.md §4.F singles out; "#_scxml_<sessionid>" and
// "#_<invokeid>" are resolved through Router, a target containing "://"
// goes to the HTTP sender, and anything else is routed to the default
// SCXML event I/O processor as a same-session external send.
const (
	internalTarget           = "#_internal"
	parentTarget             = "#_parent"
	scxmlSessionTargetPrefix = "#_scxml_"
)

// Scheduler is the subset of *scheduler.Scheduler a SendDispatcher needs.
type Scheduler interface {
	Schedule(sendID, sessionID string, delay time.Duration, ev queue.Event) error
	Cancel(sendID string) error
}

// Deliverer hands a same-session external send straight to the owning
// queue, bypassing the scheduler entirely for a zero delay.
type Deliverer interface {
	PushExternal(ev queue.Event) error
}

// ParentDispatcher forwards an event raised with target="#_parent" to the
// session that <invoke>d this one; nil when this session is not an
// invoked child (internal/invoke wires this in for invoked sessions).
type ParentDispatcher interface {
	SendToParent(ev queue.Event) error
}

// Router resolves the two multi-session <send target="..."> forms
// spec.md §4.F names beyond #_internal/#_parent: "#_scxml_<sessionid>"
// addresses any live session by id, "#_<invokeid>" addresses one of this
// session's own active invoked children. internal/invoke supplies this,
// since it is the component that already tracks both registries. The
// bool result reports whether target resolved to a live session/invoke;
// false (with a nil error) means "route to the platform's
// error.communication handling", not success.
type Router interface {
	RouteToSession(sessionID string, ev queue.Event) (bool, error)
	RouteToInvoke(callerSessionID, invokeID string, ev queue.Event) (bool, error)
}

// HTTPSender is the BasicHTTP event I/O processor collaborator
// (internal/ioprocessor) a <send> with a non-SCXML target URI is handed
// off to. Nil means no transport is wired, in which case such a send
// always resolves to error.communication.
type HTTPSender = ioprocessor.Processor

// SendDispatcher is the action.Sender/action.Canceller implementation
// that wires <send>/<cancel> into internal/scheduler and internal/queue,
// grounded on the delay-vs-immediate split realtime.RealtimeRuntime
// already makes between its ticked and event-driven paths.
type SendDispatcher struct {
	SessionID string
	Raiser    action.Raiser
	Scheduler Scheduler
	Queue     Deliverer
	Parent    ParentDispatcher
	Router    Router
	HTTP      HTTPSender
}

// raiseCommunicationError reports a <send>/<invoke> transport failure as
// error.communication (spec.md §4.F), carrying the target that could not
// be reached.
func (d *SendDispatcher) raiseCommunicationError(target string, cause error) {
	if d.Raiser == nil {
		return
	}
	data := value.NewObject()
	data.Set("target", value.FromString(target))
	if cause != nil {
		data.Set("message", value.FromString(cause.Error()))
	}
	d.Raiser.RaiseInternal("error.communication", data)
}

func (d *SendDispatcher) resolveString(env *action.Env, literal, expr string) (string, error) {
	if expr != "" {
		v, err := env.Host.EvaluateExpression(expr)
		if err != nil {
			return "", err
		}
		return v.ToString(), nil
	}
	return literal, nil
}

func (d *SendDispatcher) resolveData(env *action.Env, spec model.SendSpec) (value.Value, error) {
	if spec.ContentExpr != "" {
		return env.Host.EvaluateExpression(spec.ContentExpr)
	}
	if spec.Content != "" {
		return value.FromString(spec.Content), nil
	}
	if len(spec.Namelist) == 0 && len(spec.Params) == 0 {
		return value.Undef, nil
	}
	obj := value.NewObject()
	for _, name := range spec.Namelist {
		v, err := env.Host.EvaluateExpression(name)
		if err != nil {
			return value.Undef, err
		}
		obj.Set(name, v)
	}
	for _, p := range spec.Params {
		expr := p.Location
		if p.Expr != "" {
			expr = p.Expr
		}
		v, err := env.Host.EvaluateExpression(expr)
		if err != nil {
			return value.Undef, err
		}
		obj.Set(p.Name, v)
	}
	return obj, nil
}

// Send implements action.Sender.
func (d *SendDispatcher) Send(ctx context.Context, spec model.SendSpec, env *action.Env) error {
	name, err := d.resolveString(env, spec.Event, spec.EventExpr)
	if err != nil {
		return fmt.Errorf("send: resolving event name: %w", err)
	}
	target, err := d.resolveString(env, spec.Target, spec.TargetExpr)
	if err != nil {
		return fmt.Errorf("send: resolving target: %w", err)
	}
	sendID := spec.ID
	if spec.IDLocation != "" {
		if v, err := env.Host.EvaluateExpression(spec.IDLocation); err == nil {
			sendID = v.ToString()
		}
	}
	data, err := d.resolveData(env, spec)
	if err != nil {
		return fmt.Errorf("send: resolving data: %w", err)
	}
	delayStr, err := d.resolveString(env, spec.Delay, spec.DelayExpr)
	if err != nil {
		return fmt.Errorf("send: resolving delay: %w", err)
	}
	delay, err := delayFromSpec(delayStr)
	if err != nil {
		return fmt.Errorf("send: invalid delay %q: %w", delayStr, err)
	}

	ev := queue.Event{
		Name:       name,
		Data:       data,
		SendID:     sendID,
		Origin:     "#_scxml_" + d.SessionID,
		OriginType: "http://www.w3.org/TR/scxml/#SCXMLEventProcessor",
	}

	switch {
	case target == internalTarget:
		if d.Raiser == nil {
			return fmt.Errorf("send: target %q but no raiser configured", internalTarget)
		}
		d.Raiser.RaiseInternal(name, data)
		return nil
	case target == parentTarget:
		if d.Parent == nil {
			return fmt.Errorf("send: target %q but this session was not invoked", parentTarget)
		}
		return d.Parent.SendToParent(ev)
	case strings.HasPrefix(target, scxmlSessionTargetPrefix):
		sessionID := strings.TrimPrefix(target, scxmlSessionTargetPrefix)
		return d.routeOrFail(target, func() (bool, error) {
			if d.Router == nil {
				return false, nil
			}
			return d.Router.RouteToSession(sessionID, ev)
		})
	case strings.HasPrefix(target, "#_") && target != "":
		invokeID := strings.TrimPrefix(target, "#_")
		return d.routeOrFail(target, func() (bool, error) {
			if d.Router == nil {
				return false, nil
			}
			return d.Router.RouteToInvoke(d.SessionID, invokeID, ev)
		})
	case strings.Contains(target, "://"):
		if d.HTTP == nil {
			d.raiseCommunicationError(target, nil)
			return nil
		}
		req := ioprocessor.Request{Target: target, Event: name, SendID: sendID, Data: data}
		if _, err := d.HTTP.Send(ctx, req); err != nil {
			d.raiseCommunicationError(target, err)
		}
		return nil
	}

	if delay <= 0 {
		if d.Queue != nil {
			return d.Queue.PushExternal(ev)
		}
		return nil
	}
	if d.Scheduler == nil {
		return fmt.Errorf("send: delayed send requested but no scheduler configured")
	}
	return d.Scheduler.Schedule(sendID, d.SessionID, delay, ev)
}

// routeOrFail calls route and, when it reports the target unresolved
// (ok=false, err=nil) or returns a transport error, raises
// error.communication instead of failing the whole <send> action.
func (d *SendDispatcher) routeOrFail(target string, route func() (bool, error)) error {
	ok, err := route()
	if err != nil {
		d.raiseCommunicationError(target, err)
		return nil
	}
	if !ok {
		d.raiseCommunicationError(target, nil)
	}
	return nil
}

// Cancel implements action.Canceller.
func (d *SendDispatcher) Cancel(sendID string) error {
	if d.Scheduler == nil {
		return nil
	}
	return d.Scheduler.Cancel(sendID)
}
