package coordinator

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NatsRelay fans a local Bus's events across a NATS subject so every node
// in a clustered deployment observes the same Put/Delete/Empty stream,
// per spec.md's note that the coordinator is the authoritative ordering
// source for multi-node watchers (§4.6).
type NatsRelay struct {
	conn    *nats.Conn
	subject string
	bus     *Bus
	sub     *nats.Subscription
}

// NewNatsRelay binds a Bus to a NATS subject. Inbound subject messages
// from other nodes are replayed into the local bus so every subscriber,
// local or remote-origin, sees one merged stream. Bus.Publish calls are
// not mirrored outbound automatically; NatsRelay.Publish sends an event
// to the subject.
func NewNatsRelay(conn *nats.Conn, subject string, bus *Bus) (*NatsRelay, error) {
	r := &NatsRelay{conn: conn, subject: subject, bus: bus}

	sub, err := conn.Subscribe(subject, r.onMessage)
	if err != nil {
		return nil, fmt.Errorf("subscribe coordinator subject %q: %w", subject, err)
	}
	r.sub = sub
	return r, nil
}

func (r *NatsRelay) onMessage(msg *nats.Msg) {
	var wire wireEvent
	if err := json.Unmarshal(msg.Data, &wire); err != nil {
		return
	}
	r.bus.broadcast(wire.toEvent())
}

// Publish mirrors event onto the NATS subject for other nodes to observe.
// Callers still call Bus.Publish separately to deliver it locally.
func (r *NatsRelay) Publish(event Event) error {
	data, err := json.Marshal(wireEvent{Key: event.Key, Value: event.Value, Type: int(event.Type)})
	if err != nil {
		return fmt.Errorf("encode coordinator event: %w", err)
	}
	return r.conn.Publish(r.subject, data)
}

// Close unsubscribes from the NATS subject. It does not close conn.
func (r *NatsRelay) Close() error { return r.sub.Unsubscribe() }

type wireEvent struct {
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
	Type  int    `json:"type"`
}

func (w wireEvent) toEvent() Event {
	return Event{Key: w.Key, Value: w.Value, Type: EventType(w.Type)}
}
