package event

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

type Name string

type Event struct {
	Name Name
	Data any
}

func (e Event) String() string {
	if e.Data == nil {
		return string(e.Name)
	}
	return fmt.Sprintf("%s(%v)", e.Name, e.Data)
}

type Listener interface {
	Listen(ctx context.Context, ev Event) error
}

type ListenerFunc func(ctx context.Context, ev Event) error

func (f *ListenerFunc) Listen(ctx context.Context, ev Event) error {
	return (*f)(ctx, ev)
}

// Dispatcher delivers events to listeners in registration order. A listener
// may register or remove listeners while it is being called.
type Dispatcher interface {
	Listen(name Name, l Listener)
	ListenFunc(name Name, fn ListenerFunc) Listener
	Dispatch(ctx context.Context, ev Event) error
	RemoveListener(name Name, l Listener)
}

func NewDispatcher() Dispatcher {
	return &dispatcher{
		listeners: map[Name][]Listener{},
	}
}

type dispatcher struct {
	mu        sync.RWMutex
	listeners map[Name][]Listener
}

func (d *dispatcher) Listen(name Name, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[name] = append(d.listeners[name], l)
}

// ListenFunc registers fn and returns the Listener to pass to RemoveListener.
func (d *dispatcher) ListenFunc(name Name, fn ListenerFunc) Listener {
	l := &fn
	d.Listen(name, l)
	return l
}

func (d *dispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.mu.RLock()
	listeners := slices.Clone(d.listeners[ev.Name])
	d.mu.RUnlock()

	for _, l := range listeners {
		if err := l.Listen(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func (d *dispatcher) RemoveListener(name Name, l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	remaining := slices.DeleteFunc(d.listeners[name], func(ll Listener) bool {
		return l == ll
	})
	if len(remaining) == 0 {
		delete(d.listeners, name)
		return
	}
	d.listeners[name] = remaining
}
