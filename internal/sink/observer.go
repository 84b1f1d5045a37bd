package sink

import (
	"time"

	"github.com/ibs-source/logship/internal/event"
)

// Reasons passed to Observer.EventDropped
const (
	DropUnencodable = "unencodable"
	DropTooLarge    = "too_large"
)

// Reasons a batch was finalized
const (
	FlushFull     = "full"
	FlushOverflow = "overflow"
	FlushTimeout  = "timeout"
	FlushShutdown = "shutdown"
)

// BatchInfo describes a finalized batch
type BatchInfo struct {
	ID     string
	Events int
	Bytes  int
	Reason string
}

// BatchResult is the terminal outcome of a batch
type BatchResult struct {
	BatchInfo
	Status  event.Status
	Err     error
	Elapsed time.Duration
}

// Observer receives pipeline notifications. Calls come from several
// goroutines; implementations must be safe for concurrent use.
type Observer interface {
	EventDropped(reason string)
	// BatchSubmitted is called once per finalized batch, before its request
	// is built. Every submitted batch is later completed exactly once.
	BatchSubmitted(info BatchInfo)
	BatchCompleted(result BatchResult)
}

// NopObserver ignores every notification
type NopObserver struct{}

func (NopObserver) EventDropped(string)        {}
func (NopObserver) BatchSubmitted(BatchInfo)   {}
func (NopObserver) BatchCompleted(BatchResult) {}

// Observers fans notifications out to several observers
type Observers []Observer

func (o Observers) EventDropped(reason string) {
	for _, obs := range o {
		obs.EventDropped(reason)
	}
}

func (o Observers) BatchSubmitted(info BatchInfo) {
	for _, obs := range o {
		obs.BatchSubmitted(info)
	}
}

func (o Observers) BatchCompleted(result BatchResult) {
	for _, obs := range o {
		obs.BatchCompleted(result)
	}
}

// Ensure implementations satisfy Observer
var (
	_ Observer = NopObserver{}
	_ Observer = Observers(nil)
)
