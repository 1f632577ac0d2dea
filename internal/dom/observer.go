package dom

// Observer receives batches of mutation records. Records queue up while the
// observer is connected and are delivered together in one host-loop task.
type Observer struct {
	doc       *Document
	callback  func([]MutationRecord)
	connected bool
	queue     []MutationRecord
	scheduled bool
}

// NewObserver creates a disconnected observer for d
func (d *Document) NewObserver(callback func([]MutationRecord)) *Observer {
	return &Observer{doc: d, callback: callback}
}

// Observe starts recording mutations. Calling it on a connected observer is a no-op.
func (o *Observer) Observe() {
	if o.connected {
		return
	}
	o.connected = true
	o.doc.observers = append(o.doc.observers, o)
}

// Disconnect stops recording and drops anything queued. Use TakeRecords
// first to keep pending records.
func (o *Observer) Disconnect() {
	if !o.connected {
		return
	}
	o.connected = false
	o.queue = nil
	obs := o.doc.observers
	for i, other := range obs {
		if other == o {
			o.doc.observers = append(obs[:i:i], obs[i+1:]...)
			break
		}
	}
}

// Connected reports whether the observer is recording
func (o *Observer) Connected() bool {
	return o.connected
}

// TakeRecords empties the queue and returns what was in it
func (o *Observer) TakeRecords() []MutationRecord {
	recs := o.queue
	o.queue = nil
	return recs
}

func (o *Observer) enqueue(rec MutationRecord) {
	o.queue = append(o.queue, rec)
	if o.scheduled || o.doc.poster == nil {
		return
	}
	o.scheduled = true
	if !o.doc.poster.Post(o.deliver) {
		o.scheduled = false
	}
}

func (o *Observer) deliver() {
	o.scheduled = false
	if !o.connected || len(o.queue) == 0 {
		return
	}
	recs := o.TakeRecords()
	o.callback(recs)
}
