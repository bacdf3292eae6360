package flow

import (
	"fmt"

	"github.com/google/uuid"
)

// Connection is a logical edge from an output port to an input port.
// When the endpoint types differ, Converter names the hidden node that
// adapts them; otherwise it is uuid.Nil.
type Connection struct {
	ID        ConnectionID `json:"id"`
	Out       PortRef      `json:"out"`
	In        PortRef      `json:"in"`
	Converter NodeID       `json:"converter,omitempty"`
}

// Converted reports whether the connection is mediated by a converter node.
func (c Connection) Converted() bool {
	return c.Converter != uuid.Nil
}

// Matches reports whether the connection joins exactly these endpoints.
func (c Connection) Matches(outNode NodeID, outPort PortIndex, inNode NodeID, inPort PortIndex) bool {
	return c.Out.Node == outNode && c.Out.Index == outPort &&
		c.In.Node == inNode && c.In.Index == inPort
}

func (c Connection) String() string {
	if c.Converted() {
		return fmt.Sprintf("%s -> [%s] -> %s", c.Out, c.Converter, c.In)
	}
	return fmt.Sprintf("%s -> %s", c.Out, c.In)
}

// edge is one direct output→input link stored in node slots. A direct
// logical connection owns a single edge with the same ID; a converted one
// owns two legs.
type edge struct {
	id      ConnectionID
	out     PortRef
	in      PortRef
	logical ConnectionID
}
