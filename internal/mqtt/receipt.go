package mqtt

import (
	"time"

	"github.com/ibs-source/logship/internal/log"
	"github.com/ibs-source/logship/internal/sink"
	"github.com/ibs-source/logship/pkg/jsonfast"
)

// ReceiptPublisher publishes one JSON receipt per completed batch
type ReceiptPublisher struct {
	sink.NopObserver
	client *Client
	topic  string
	log    *log.Logger
}

// Ensure ReceiptPublisher implements sink.Observer
var _ sink.Observer = (*ReceiptPublisher)(nil)

// NewReceiptPublisher publishes receipts to topic through client
func NewReceiptPublisher(client *Client, topic string, logger *log.Logger) *ReceiptPublisher {
	return &ReceiptPublisher{client: client, topic: topic, log: logger}
}

// BatchCompleted publishes the receipt without waiting for the broker
func (p *ReceiptPublisher) BatchCompleted(result sink.BatchResult) {
	payload := Receipt(result)
	token := p.client.client.Publish(p.topic, p.client.qos, false, payload)

	go func(timeout time.Duration) {
		if !token.WaitTimeout(timeout) {
			p.log.Warn("Receipt for batch %s not confirmed within %s", result.ID, timeout)
			return
		}
		if err := token.Error(); err != nil {
			p.log.Warn("Failed to publish receipt for batch %s: %v", result.ID, err)
		}
	}(p.client.writeTimeout)
}

// Receipt encodes result as
// {"batch":"<id>","events":n,"bytes":n,"status":"delivered","error":null}
func Receipt(result sink.BatchResult) []byte {
	b := jsonfast.New(128)
	b.BeginObject()
	b.AddStringField("batch", result.ID)
	b.AddIntField("events", int64(result.Events))
	b.AddIntField("bytes", int64(result.Bytes))
	b.AddStringField("status", result.Status.String())
	if result.Err != nil {
		b.AddStringField("error", result.Err.Error())
	} else {
		b.AddNullField("error")
	}
	b.EndObject()
	return b.Bytes()
}
