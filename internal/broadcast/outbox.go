package broadcast

type queued struct {
	worldID string
	env     Envelope
}

// Outbox holds envelopes produced inside a store transaction. Flush hands
// them to a Publisher once the transaction has committed; a rolled back
// transaction simply drops its Outbox. An Outbox belongs to one tick and is
// not safe for concurrent use.
type Outbox struct {
	pending []queued
}

// Broadcast queues env for worldID.
func (o *Outbox) Broadcast(worldID string, env Envelope) {
	o.pending = append(o.pending, queued{worldID: worldID, env: env})
}

// Len reports how many envelopes are queued.
func (o *Outbox) Len() int {
	return len(o.pending)
}

// Flush publishes the queued envelopes in order and empties the Outbox.
func (o *Outbox) Flush(pub Publisher) {
	pending := o.pending
	o.pending = nil
	for _, q := range pending {
		pub.Broadcast(q.worldID, q.env)
	}
}
