package mqtt

import "log/slog"

// outboxMsg is a serialized message waiting for the broker.
type outboxMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// outbox holds messages while the broker is unreachable, oldest first.
// When full it evicts the oldest non-retained message, so retained lifecycle
// events outlive decisions. Not safe for concurrent use.
type outbox struct {
	msgs     []outboxMsg
	capacity int
	dropped  uint64
	overflow bool // a message was dropped since the last drain
}

func newOutbox(capacity int) *outbox {
	return &outbox{
		msgs:     make([]outboxMsg, 0, capacity),
		capacity: capacity,
	}
}

func (o *outbox) push(msg outboxMsg) {
	if len(o.msgs) == o.capacity {
		o.evict()
	}
	o.msgs = append(o.msgs, msg)
}

// requeue puts msgs back ahead of anything queued since they were drained.
func (o *outbox) requeue(msgs []outboxMsg) {
	merged := make([]outboxMsg, 0, len(msgs)+len(o.msgs))
	merged = append(merged, msgs...)
	merged = append(merged, o.msgs...)
	o.msgs = merged
	for len(o.msgs) > o.capacity {
		o.evict()
	}
}

func (o *outbox) evict() {
	victim := 0
	for i, m := range o.msgs {
		if !m.retained {
			victim = i
			break
		}
	}
	if !o.overflow {
		slog.Warn("mqtt: outbox full, dropping oldest", "capacity", o.capacity, "topic", o.msgs[victim].topic)
		o.overflow = true
	}
	o.dropped++
	o.msgs = append(o.msgs[:victim], o.msgs[victim+1:]...)
}

// drain removes and returns every queued message, oldest first.
func (o *outbox) drain() []outboxMsg {
	if len(o.msgs) == 0 {
		return nil
	}
	out := o.msgs
	o.msgs = make([]outboxMsg, 0, o.capacity)
	o.overflow = false
	return out
}

func (o *outbox) len() int {
	return len(o.msgs)
}
