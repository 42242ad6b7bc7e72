// Package fsm is a small synchronous state machine driven by a transition
// table. It backs the pipeline lifecycle.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State names a machine state
type State string

// Event names a trigger
type Event string

// Action runs during a transition. An error is returned from Fire.
type Action func(ctx context.Context, tc TransitionContext) error

// Guard vetoes a transition by returning false
type Guard func(ctx context.Context, tc TransitionContext) bool

var (
	// ErrNoTransition is returned when the current state has no row for an event
	ErrNoTransition = errors.New("no transition defined")

	// ErrGuardRejected is returned when a guard refuses a transition
	ErrGuardRejected = errors.New("guard rejected transition")

	// ErrDuplicateTransition is returned by New for two rows with the same
	// source state and event
	ErrDuplicateTransition = errors.New("duplicate transition")
)

// Transition is one row of the table. A row whose To equals From is a
// self transition: Do runs but exit and entry actions do not.
type Transition struct {
	From  State
	Event Event
	To    State

	// Guard is optional.
	Guard Guard

	// Do is optional and runs before the state changes.
	Do Action
}

// TransitionContext describes the transition being fired
type TransitionContext struct {
	Machine string
	Event   Event
	From    State
	To      State
	Data    any
}

type key struct {
	from  State
	event Event
}

// StateMachine fires transitions on the caller's goroutine while holding
// its lock. Actions must not call back into the machine.
type StateMachine struct {
	id string

	mu        sync.RWMutex
	current   State
	table     map[key]Transition
	ignored   map[key]struct{}
	onEnter   map[State][]Action
	onExit    map[State][]Action
	listeners []func(TransitionContext)
}

// New creates a machine in state initial with the given transition table
func New(id string, initial State, table ...Transition) (*StateMachine, error) {
	sm := &StateMachine{
		id:      id,
		current: initial,
		table:   make(map[key]Transition, len(table)),
		ignored: make(map[key]struct{}),
		onEnter: make(map[State][]Action),
		onExit:  make(map[State][]Action),
	}
	for _, t := range table {
		k := key{t.From, t.Event}
		if _, dup := sm.table[k]; dup {
			return nil, fmt.Errorf("%w: %s on %s", ErrDuplicateTransition, t.From, t.Event)
		}
		sm.table[k] = t
	}
	return sm, nil
}

// ID returns the machine id
func (sm *StateMachine) ID() string { return sm.id }

// Current returns the current state
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// OnEnter appends actions run, in order, after the machine enters state
func (sm *StateMachine) OnEnter(state State, actions ...Action) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onEnter[state] = append(sm.onEnter[state], actions...)
}

// OnExit appends actions run, in order, before the machine leaves state
func (sm *StateMachine) OnExit(state State, actions ...Action) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onExit[state] = append(sm.onExit[state], actions...)
}

// Ignore makes events a silent no-op in state
func (sm *StateMachine) Ignore(state State, events ...Event) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for _, ev := range events {
		sm.ignored[key{state, ev}] = struct{}{}
	}
}

// OnTransition registers a listener called after every state change
func (sm *StateMachine) OnTransition(listener func(TransitionContext)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, listener)
}

// Can reports whether event is accepted in the current state.
// Guards are not evaluated.
func (sm *StateMachine) Can(event Event) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	k := key{sm.current, event}
	_, ok := sm.table[k]
	_, ignored := sm.ignored[k]
	return ok || ignored
}

// Fire runs the transition for event and returns the resulting state.
// Exit actions, Do and entry actions run in that order. A failing exit
// action or Do leaves the state unchanged; a failing entry action is
// returned after the state has moved, and the remaining entry actions
// are skipped.
func (sm *StateMachine) Fire(ctx context.Context, event Event, data any) (State, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.current
	k := key{from, event}
	if _, ok := sm.ignored[k]; ok {
		return from, nil
	}
	t, ok := sm.table[k]
	if !ok {
		return from, fmt.Errorf("%w: event %s in state %s", ErrNoTransition, event, from)
	}

	tc := TransitionContext{Machine: sm.id, Event: event, From: from, To: t.To, Data: data}
	if t.Guard != nil && !t.Guard(ctx, tc) {
		return from, fmt.Errorf("%w: %s -> %s on %s", ErrGuardRejected, from, t.To, event)
	}

	self := t.To == from
	if !self {
		if err := run(ctx, tc, sm.onExit[from]); err != nil {
			return from, fmt.Errorf("leave %s: %w", from, err)
		}
	}
	if t.Do != nil {
		if err := t.Do(ctx, tc); err != nil {
			return from, fmt.Errorf("%s: %w", event, err)
		}
	}
	if self {
		return from, nil
	}

	sm.current = t.To
	err := run(ctx, tc, sm.onEnter[t.To])
	for _, l := range sm.listeners {
		l(tc)
	}
	if err != nil {
		return t.To, fmt.Errorf("enter %s: %w", t.To, err)
	}
	return t.To, nil
}

func run(ctx context.Context, tc TransitionContext, actions []Action) error {
	for _, a := range actions {
		if err := a(ctx, tc); err != nil {
			return err
		}
	}
	return nil
}
