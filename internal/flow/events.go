package flow

import (
	"github.com/rendis/nodeflow/pkg/schema"
)

// Event is a view notification, delivered after the mutation commits.
// Kind is one of the schema.Event* names.
type Event struct {
	Kind       string
	Node       NodeID
	Connection Connection
	Position   schema.Position
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// Subscribe registers fn for every subsequent event. The returned function
// removes the subscription.
func (g *Graph) Subscribe(fn func(Event)) (cancel func()) {
	g.nextSub++
	id := g.nextSub
	g.subscribers = append(g.subscribers, subscriber{id: id, fn: fn})
	return func() {
		for i, s := range g.subscribers {
			if s.id == id {
				g.subscribers = append(g.subscribers[:i:i], g.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (g *Graph) notify(ev Event) {
	subs := append([]subscriber(nil), g.subscribers...)
	for _, s := range subs {
		s.fn(ev)
	}
}
