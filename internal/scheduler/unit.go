package scheduler

import "golang.org/x/net/html"

// UnitState is the lifecycle position of a processing unit
type UnitState int

const (
	UnitQueued UnitState = iota
	UnitProcessing
	UnitDone
	UnitFailed
	UnitSuperseded
)

func (s UnitState) String() string {
	switch s {
	case UnitQueued:
		return "queued"
	case UnitProcessing:
		return "processing"
	case UnitDone:
		return "done"
	case UnitFailed:
		return "failed"
	case UnitSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Terminal reports whether the unit will not change state again
func (s UnitState) Terminal() bool {
	return s == UnitDone || s == UnitFailed || s == UnitSuperseded
}

// Unit is one subtree root awaiting matching
type Unit struct {
	ID    uint64
	Root  *html.Node
	Full  bool // created by a full rebuild rather than a mutation
	State UnitState
	Err   error

	Leaves      int // text leaves scanned
	Annotations int // annotations rendered
	LeafErrors  int // leaves left unannotated after a render failure
	Skipped     bool
}

// covers reports whether a is b or an ancestor of b
func covers(a, b *html.Node) bool {
	for n := b; n != nil; n = n.Parent {
		if n == a {
			return true
		}
	}
	return false
}
