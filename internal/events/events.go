// Package events is the publish/subscribe registry polystore publishes to.
//
// Events notify: a handler returning false stops propagation and makes
// Trigger report false. Hooks transform: each handler receives the value
// returned by the previous one and returns the next.
//
// The payloads are opaque to this package.
package events

import (
	"context"
	"sort"
	"sync"
)

// All matches any event/hook name or object type when used at registration.
const All = "all"

// DefaultPriority is used by callers with no ordering preference.
// Lower priorities run first.
const DefaultPriority = 500

// Well-known names published by polystore. Entity events carry the
// hydrated entity.Entity as their object.
const (
	EventInit    = "init"
	EventCreate  = "create"
	EventUpdate  = "update"
	EventEnable  = "enable"
	EventDisable = "disable"

	HookUnitTest = "unit_test"

	TypeSystem = "system"
)

// EventHandler handles an event. Returning false stops propagation.
type EventHandler func(ctx context.Context, event, objectType string, object any) bool

// HookHandler handles a hook and returns the (possibly replaced) value.
type HookHandler func(ctx context.Context, hook, typ string, params map[string]any, value any) any

type eventEntry struct {
	name, typ string
	priority  int
	seq       int
	handler   EventHandler
}

type hookEntry struct {
	name, typ string
	priority  int
	seq       int
	handler   HookHandler
}

// Registry holds event and hook handlers.
//
// Thread-safety: all methods are safe for concurrent use. Handlers run
// synchronously on the triggering goroutine.
type Registry struct {
	mu     sync.RWMutex
	seq    int
	events []eventEntry
	hooks  []hookEntry
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{}
}

// RegisterEvent subscribes h to (event, objectType). Either may be All.
func (r *Registry) RegisterEvent(event, objectType string, priority int, h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.events = append(r.events, eventEntry{name: event, typ: objectType, priority: priority, seq: r.seq, handler: h})
	sort.SliceStable(r.events, func(i, j int) bool { return less(r.events[i].priority, r.events[i].seq, r.events[j].priority, r.events[j].seq) })
}

// RegisterHook subscribes h to (hook, typ). Either may be All.
func (r *Registry) RegisterHook(hook, typ string, priority int, h HookHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.hooks = append(r.hooks, hookEntry{name: hook, typ: typ, priority: priority, seq: r.seq, handler: h})
	sort.SliceStable(r.hooks, func(i, j int) bool { return less(r.hooks[i].priority, r.hooks[i].seq, r.hooks[j].priority, r.hooks[j].seq) })
}

// Trigger publishes (event, objectType). Returns false if any handler
// returned false; later handlers are then skipped.
func (r *Registry) Trigger(ctx context.Context, event, objectType string, object any) bool {
	r.mu.RLock()
	var matched []EventHandler
	for _, e := range r.events {
		if matches(e.name, event) && matches(e.typ, objectType) {
			matched = append(matched, e.handler)
		}
	}
	r.mu.RUnlock()

	for _, h := range matched {
		if !h(ctx, event, objectType, object) {
			return false
		}
	}
	return true
}

// TriggerHook threads value through every handler of (hook, typ) and
// returns the final value.
func (r *Registry) TriggerHook(ctx context.Context, hook, typ string, params map[string]any, value any) any {
	r.mu.RLock()
	var matched []HookHandler
	for _, e := range r.hooks {
		if matches(e.name, hook) && matches(e.typ, typ) {
			matched = append(matched, e.handler)
		}
	}
	r.mu.RUnlock()

	for _, h := range matched {
		value = h(ctx, hook, typ, params, value)
	}
	return value
}

func matches(registered, triggered string) bool {
	return registered == All || registered == triggered
}

func less(pi, si, pj, sj int) bool {
	if pi != pj {
		return pi < pj
	}
	return si < sj
}
