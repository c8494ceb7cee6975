package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joacominatel/dataview/internal/uiloop"
)

// applyMsg carries a function posted by a worker. Update runs it, so the
// bubbletea event loop is the goroutine that owns page contexts.
type applyMsg struct {
	fn func()
}

// sender is the part of *tea.Program the dispatcher needs.
type sender interface {
	Send(msg tea.Msg)
}

// Dispatcher posts functions onto the bubbletea event loop. Sends go through
// a uiloop.Loop so they keep posting order without blocking the poster.
// Functions posted before Attach are held until a program is attached.
type Dispatcher struct {
	mu      sync.Mutex
	program sender
	pending []func()
	relay   *uiloop.Loop
}

// NewDispatcher returns a dispatcher with no program attached.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{relay: uiloop.New()}
}

// Attach starts delivering to p.
func (d *Dispatcher) Attach(p *tea.Program) {
	d.attach(p)
}

func (d *Dispatcher) attach(p sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.program = p
	for _, fn := range d.pending {
		d.forward(p, fn)
	}
	d.pending = nil
}

// Post queues fn for the event loop. It never runs fn inline.
func (d *Dispatcher) Post(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.program == nil {
		d.pending = append(d.pending, fn)
		return
	}
	d.forward(d.program, fn)
}

func (d *Dispatcher) forward(p sender, fn func()) {
	d.relay.Post(func() { p.Send(applyMsg{fn: fn}) })
}

// Close stops the relay after the queued sends are delivered. Send returns
// immediately once the program has exited.
func (d *Dispatcher) Close() {
	d.relay.Close()
}
