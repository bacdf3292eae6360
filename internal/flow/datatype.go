package flow

import (
	"fmt"

	"github.com/google/uuid"
)

// DataType identifies the kind of value carried between ports.
// Only ID takes part in compatibility; Name is for display.
type DataType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Compatible reports whether two data types can be connected directly.
func Compatible(a, b DataType) bool {
	return a.ID == b.ID
}

func (d DataType) String() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// PortType is the direction of a port.
type PortType int

const (
	PortNone PortType = iota
	PortIn
	PortOut
)

func (p PortType) String() string {
	switch p {
	case PortIn:
		return "in"
	case PortOut:
		return "out"
	default:
		return "none"
	}
}

// ParsePortType converts "in"/"out" into a PortType.
func ParsePortType(s string) (PortType, error) {
	switch s {
	case "in":
		return PortIn, nil
	case "out":
		return PortOut, nil
	}
	return PortNone, fmt.Errorf("unknown port type %q", s)
}

// PortIndex addresses a port within one direction of a node.
type PortIndex int

// ConnectionPolicy limits how many connections may terminate at an input port.
type ConnectionPolicy int

const (
	PolicyOne ConnectionPolicy = iota
	PolicyMany
)

func (p ConnectionPolicy) String() string {
	if p == PolicyMany {
		return "many"
	}
	return "one"
}

// NodeID identifies a node for the lifetime of a graph and across save/restore.
type NodeID = uuid.UUID

// ConnectionID identifies a logical connection.
type ConnectionID = uuid.UUID

// PortRef addresses one port of one node; the direction is implied by context.
type PortRef struct {
	Node  NodeID    `json:"node"`
	Index PortIndex `json:"index"`
}

func (r PortRef) String() string {
	return fmt.Sprintf("%s:%d", r.Node, r.Index)
}
