package mqtt

import (
	"bytes"
	"context"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"

	"github.com/ibs-source/logship/internal/event"
	"github.com/ibs-source/logship/internal/log"
)

// FieldMessage holds payloads that are not JSON objects
const FieldMessage = "message"

// Source subscribes to a topic and turns every message into an event.
// Messages are acknowledged to the broker only once their batch completes.
// Failed batches are acknowledged too; the broker only redelivers on a
// reconnect and unacked messages hold its inflight window.
type Source struct {
	client *Client
	topic  string
	log    *log.Logger

	// mu guards stopped; handlers hold it for reading while they send
	mu      sync.RWMutex
	stopped bool
}

// Ensure Source implements event.Acker
var _ event.Acker = (*Source)(nil)

// NewSource creates a source reading topic through client. The client must
// be created with ManualAck.
func NewSource(client *Client, topic string, logger *log.Logger) *Source {
	return &Source{client: client, topic: topic, log: logger}
}

// Run subscribes and feeds out until ctx is cancelled. Run never closes out.
func (s *Source) Run(ctx context.Context, out chan<- event.Event) error {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.stopped {
			return
		}
		select {
		case out <- toEvent(msg):
		case <-ctx.Done():
			// not acknowledged; the broker delivers it again
		}
	}

	if err := s.client.Subscribe(s.topic, handler); err != nil {
		return err
	}
	s.log.Info("Consuming MQTT topic %s", s.topic)

	<-ctx.Done()
	s.log.Info("Stopping MQTT source")
	if err := s.client.Unsubscribe(s.topic); err != nil {
		s.log.Warn("Failed to unsubscribe from %s: %v", s.topic, err)
	}
	// late callbacks must not send once the caller closes out
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return ctx.Err()
}

// Acknowledge sends PUBACK for every message of a completed batch. Failed
// batches are logged; receipts and metrics report them as well.
func (s *Source) Acknowledge(tokens []event.Token, status event.Status) {
	if status == event.Failed {
		s.log.WarnWithFields(log.Fields{
			"messages": len(tokens),
		}, "Batch failed, messages are acknowledged and dropped")
	}
	for _, tok := range tokens {
		if msg, ok := tok.(mqtt.Message); ok {
			msg.Ack()
		}
	}
}

// Close disconnects the underlying client
func (s *Source) Close() error {
	return s.client.Close()
}

// toEvent decodes a JSON object payload into fields; anything else becomes
// the message field
func toEvent(msg mqtt.Message) event.Event {
	payload := msg.Payload()
	if trimmed := bytes.TrimSpace(payload); len(trimmed) > 0 && trimmed[0] == '{' {
		var fields map[string]any
		if err := json.Unmarshal(trimmed, &fields); err == nil {
			return event.New(fields, msg)
		}
	}
	return event.New(map[string]any{FieldMessage: string(payload)}, msg)
}
