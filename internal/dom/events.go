package dom

import "golang.org/x/net/html"

// Event is a user interaction dispatched at a node
type Event struct {
	Type          string
	Target        *html.Node
	CurrentTarget *html.Node
	stopped       bool
}

// StopPropagation prevents listeners on further ancestors from running
func (e *Event) StopPropagation() {
	e.stopped = true
}

// ListenerID identifies a registered listener
type ListenerID uint64

type listener struct {
	id  ListenerID
	typ string
	fn  func(*Event)
}

type eventTable struct {
	byNode map[*html.Node][]listener
	nodeOf map[ListenerID]*html.Node
	nextID ListenerID
}

func newEventTable() eventTable {
	return eventTable{
		byNode: make(map[*html.Node][]listener),
		nodeOf: make(map[ListenerID]*html.Node),
	}
}

// AddListener registers fn for events of type typ reaching n
func (d *Document) AddListener(n *html.Node, typ string, fn func(*Event)) ListenerID {
	d.events.nextID++
	id := d.events.nextID
	d.events.byNode[n] = append(d.events.byNode[n], listener{id: id, typ: typ, fn: fn})
	d.events.nodeOf[id] = n
	return id
}

// RemoveListener unregisters a listener and reports whether it existed
func (d *Document) RemoveListener(id ListenerID) bool {
	n, ok := d.events.nodeOf[id]
	if !ok {
		return false
	}
	delete(d.events.nodeOf, id)

	ls := d.events.byNode[n]
	for i, l := range ls {
		if l.id == id {
			ls = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(ls) == 0 {
		delete(d.events.byNode, n)
	} else {
		d.events.byNode[n] = ls
	}
	return true
}

// Listeners returns how many listeners are registered across the document
func (d *Document) Listeners() int {
	return len(d.events.nodeOf)
}

// Dispatch delivers ev to listeners on its target and then on each ancestor
// in turn. It returns the number of listeners invoked.
func (d *Document) Dispatch(ev *Event) int {
	invoked := 0
	for n := ev.Target; n != nil && !ev.stopped; n = n.Parent {
		ls := d.events.byNode[n]
		if len(ls) == 0 {
			continue
		}
		ev.CurrentTarget = n
		// listeners may remove themselves while running
		snapshot := append([]listener(nil), ls...)
		for _, l := range snapshot {
			if l.typ != ev.Type {
				continue
			}
			l.fn(ev)
			invoked++
		}
	}
	ev.CurrentTarget = nil
	return invoked
}
