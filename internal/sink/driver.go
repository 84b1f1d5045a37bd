// Package sink implements the batched, reliable delivery core: events are
// encoded, grouped into bounded batches, sent through the request policy
// and acknowledged upstream in submission order.
package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ibs-source/logship/internal/batch"
	"github.com/ibs-source/logship/internal/clock"
	"github.com/ibs-source/logship/internal/encoding"
	"github.com/ibs-source/logship/internal/event"
	"github.com/ibs-source/logship/internal/log"
	"github.com/ibs-source/logship/internal/policy"
	"github.com/ibs-source/logship/internal/transport"
)

// Sink is a running destination. Run consumes events until the channel is
// closed or ctx is cancelled and acknowledges them through acker.
type Sink interface {
	Run(ctx context.Context, events <-chan event.Event, acker event.Acker) error
	Healthcheck(ctx context.Context) error
}

// Settings control batching and shutdown
type Settings struct {
	Batch batch.Settings
	// Timeout is the longest a non-empty batch waits after its first insert
	Timeout time.Duration
	// DrainTimeout bounds in-flight requests after cancellation; 0 waits
	// for them to finish or exhaust their retries
	DrainTimeout time.Duration
}

// Options assemble a Driver
type Options[T any] struct {
	Name     string
	Encoder  encoding.Encoder[T]
	Policy   *policy.Service
	Sender   transport.Sender
	Settings Settings
	Health   HealthInterpreter
	Clock    clock.Clock
	Logger   *log.Logger
	Observer Observer
}

// Driver runs the batching state machine for items of type T
type Driver[T any] struct {
	name     string
	encoder  encoding.Encoder[T]
	policy   *policy.Service
	sender   transport.Sender
	settings Settings
	health   HealthInterpreter
	clock    clock.Clock
	log      *log.Logger
	observer Observer
}

// Ensure Driver implements Sink
var _ Sink = (*Driver[[]byte])(nil)

// NewDriver validates o and builds a Driver
func NewDriver[T any](o Options[T]) (*Driver[T], error) {
	if o.Encoder == nil || o.Policy == nil || o.Sender == nil {
		return nil, fmt.Errorf("%w: encoder, policy and sender are required", ErrConfigInvalid)
	}
	if o.Settings.Batch.MaxEvents < 1 || o.Settings.Batch.MaxBytes < 1 {
		return nil, fmt.Errorf("%w: batch limits must be positive", ErrConfigInvalid)
	}
	if o.Settings.Timeout <= 0 {
		return nil, fmt.Errorf("%w: batch timeout must be positive", ErrConfigInvalid)
	}
	if o.Health == nil {
		o.Health = DefaultHealth
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = log.New()
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
	if o.Name == "" {
		o.Name = "sink"
	}

	return &Driver[T]{
		name:     o.Name,
		encoder:  o.Encoder,
		policy:   o.Policy,
		sender:   o.Sender,
		settings: o.Settings,
		health:   o.Health,
		clock:    o.Clock,
		log:      o.Logger,
		observer: o.Observer,
	}, nil
}

// Run drives the state machine. It returns nil once events is closed and
// every batch is acknowledged, or ctx.Err() after a cancellation flush and
// drain.
func (d *Driver[T]) Run(ctx context.Context, events <-chan event.Event, acker event.Acker) error {
	r := d.newRun(ctx, acker)
	defer r.cancelSends()

	d.log.InfoWithFields(log.Fields{
		"sink":       d.name,
		"max_events": d.settings.Batch.MaxEvents,
		"max_bytes":  d.settings.Batch.MaxBytes,
		"timeout":    d.settings.Timeout.String(),
	}, "Sink started")

	for {
		select {
		case <-ctx.Done():
			r.shutdown()
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				r.shutdown()
				return nil
			}
			r.handle(ev)

		case <-r.timerC():
			r.timer = nil
			if !r.buf.IsEmpty() {
				r.flush(FlushTimeout)
			}
		}
	}
}

// Healthcheck sends one empty request, without retries, and interprets the
// response
func (d *Driver[T]) Healthcheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.policy.Settings().Timeout)
	defer cancel()

	req, err := d.encoder.BuildRequest(nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHealthcheckFailed, err)
	}

	resp, err := d.sender.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHealthcheckFailed, err)
	}

	if err := d.health(resp); err != nil {
		if errors.Is(err, ErrHealthcheckFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrHealthcheckFailed, err)
	}
	return nil
}

// run holds the state of one Run call. Only the Run goroutine touches buf,
// tokens and timer.
type run[T any] struct {
	d      *Driver[T]
	buf    *batch.Buffer[T]
	tokens []event.Token
	timer  *clock.Timer
	seq    *Sequencer

	sendCtx     context.Context
	cancelSends context.CancelFunc
	inFlight    sync.WaitGroup
}

func (d *Driver[T]) newRun(ctx context.Context, acker event.Acker) *run[T] {
	sendCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run[T]{
		d:           d,
		buf:         batch.New[T](d.settings.Batch),
		seq:         NewSequencer(acker),
		sendCtx:     sendCtx,
		cancelSends: cancel,
	}

	// In-flight requests outlive ctx; the drain deadline starts at cancellation.
	if d.settings.DrainTimeout > 0 {
		go func() {
			select {
			case <-ctx.Done():
			case <-sendCtx.Done():
				return
			}
			select {
			case <-d.clock.After(d.settings.DrainTimeout):
				d.log.Warn("Drain timeout of %v reached, cancelling in-flight requests", d.settings.DrainTimeout)
				cancel()
			case <-sendCtx.Done():
			}
		}()
	}
	return r
}

func (r *run[T]) timerC() <-chan time.Time {
	if r.timer == nil {
		return nil
	}
	return r.timer.C
}

func (r *run[T]) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *run[T]) handle(ev event.Event) {
	item, ok := r.d.encoder.EncodeEvent(ev)
	if !ok {
		r.reject(ev.Token, DropUnencodable)
		return
	}

	size := r.d.encoder.ItemSize(item)
	outcome := r.buf.Insert(item, size)
	if outcome == batch.Overflow {
		r.flush(FlushOverflow)
		outcome = r.buf.Insert(item, size)
	}

	switch outcome {
	case batch.TooLarge:
		r.d.log.WarnWithFields(log.Fields{
			"sink":      r.d.name,
			"size":      size,
			"max_bytes": r.d.settings.Batch.MaxBytes,
		}, "Dropping event larger than the batch byte limit")
		r.reject(ev.Token, DropTooLarge)
	case batch.Accepted:
		r.tokens = append(r.tokens, ev.Token)
		if r.buf.Len() == 1 {
			r.timer = r.d.clock.NewTimer(r.d.settings.Timeout)
		}
	case batch.AcceptedFull:
		r.tokens = append(r.tokens, ev.Token)
		r.flush(FlushFull)
	default:
		// Overflow on an empty buffer cannot happen for an item within MaxBytes
		r.d.log.Error("Unexpected batch insert outcome %s", outcome)
		r.reject(ev.Token, DropTooLarge)
	}
}

// reject consumes an event that will never be sent. Its acknowledgment
// takes the next position so that upstream order is preserved.
func (r *run[T]) reject(token event.Token, reason string) {
	r.d.observer.EventDropped(reason)
	r.d.log.DebugWithFields(log.Fields{"sink": r.d.name, "reason": reason}, "Event dropped")
	seq := r.seq.Register([]event.Token{token})
	r.seq.Complete(seq, event.Rejected)
}

// flush finalizes the buffer and submits it. It blocks while the
// concurrency limiter is saturated.
func (r *run[T]) flush(reason string) {
	r.stopTimer()
	b := r.buf.Finish()
	tokens := r.tokens
	r.tokens = nil

	info := BatchInfo{ID: uuid.NewString(), Events: b.Len(), Bytes: b.Size, Reason: reason}
	seq := r.seq.Register(tokens)
	start := r.d.clock.Now()

	r.d.observer.BatchSubmitted(info)

	req, err := r.d.encoder.BuildRequest(b.Items)
	if err != nil {
		r.complete(seq, info, start, fmt.Errorf("%w: %w", ErrEncodeFatal, err))
		return
	}

	if err := r.d.policy.Acquire(r.sendCtx); err != nil {
		r.complete(seq, info, start, err)
		return
	}

	r.inFlight.Add(1)
	go func() {
		defer r.inFlight.Done()
		defer r.d.policy.Release()
		_, err := r.d.policy.Call(r.sendCtx, req)
		r.complete(seq, info, start, err)
	}()
}

func (r *run[T]) complete(seq uint64, info BatchInfo, start time.Time, err error) {
	result := BatchResult{
		BatchInfo: info,
		Status:    event.Delivered,
		Err:       err,
		Elapsed:   r.d.clock.Now().Sub(start),
	}
	fields := log.Fields{
		"sink":   r.d.name,
		"batch":  info.ID,
		"events": info.Events,
		"bytes":  info.Bytes,
	}
	if err != nil {
		result.Status = event.Failed
		r.d.log.ErrorWithFields(fields, "Batch failed: %v", err)
	} else {
		r.d.log.DebugWithFields(fields, "Batch delivered")
	}

	r.d.observer.BatchCompleted(result)
	r.seq.Complete(seq, result.Status)
}

// shutdown flushes the partial batch and waits for in-flight requests
func (r *run[T]) shutdown() {
	if !r.buf.IsEmpty() {
		r.flush(FlushShutdown)
	}
	r.stopTimer()
	r.inFlight.Wait()

	if n := r.seq.Outstanding(); n > 0 {
		r.d.log.Warn("Sink stopped with %d unacknowledged entries", n)
	}
	r.d.log.InfoWithFields(log.Fields{"sink": r.d.name}, "Sink stopped")
}
