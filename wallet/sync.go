package wallet

// Sync orchestration (C6). Grounded on the teacher's core/event_management.go
// (channel-based pub/sub with a logrus-wired dispatcher) and core/network.go's
// connect/retry shape, generalized into a single-writer "global lane": every
// incoming transaction, whether it arrived over a live stream or a poll-http
// fallback sweep, is serialized through one weighted semaphore before it
// touches storage, so process_new_tx never races with itself.

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// SyncMode names the active transport strategy.
type SyncMode uint8

const (
	ModeStream SyncMode = iota + 1
	ModePollHTTP
)

// RawTxEvent is a transaction as handed over by a transport, before it has
// been folded into storage.
type RawTxEvent struct {
	Tx *HistoryTx
}

// StreamSource is a push-based transport (e.g. a websocket full-node feed).
type StreamSource interface {
	Stream(ctx context.Context) (<-chan RawTxEvent, error)
}

// PollSource is a pull-based transport used when streaming is unavailable.
type PollSource interface {
	Poll(ctx context.Context, sinceTimestamp int64) ([]RawTxEvent, error)
}

// SyncEventKind classifies an orchestrator event for the facade (C9).
type SyncEventKind uint8

const (
	EventTxProcessed SyncEventKind = iota + 1
	EventAddressesDerived
	EventTransportDegraded // streaming failed, fell back to poll-http
	EventError
)

// SyncEvent is emitted on the orchestrator's event channel.
type SyncEvent struct {
	Kind SyncEventKind
	Tx   *HistoryTx
	Addr []*Address
	Err  error
}

// Orchestrator drives one wallet's sync loop. It owns the single writer
// lane: Run must only ever be active once per Orchestrator instance.
type Orchestrator struct {
	runID uuid.UUID

	storage Storage
	scanner *Scanner

	stream       StreamSource
	poll         PollSource
	pollInterval time.Duration
	clock        Clock

	lane   *semaphore.Weighted
	events chan SyncEvent
	log    *logrus.Logger

	lastProcessedTimestamp int64
}

// NewOrchestrator builds an Orchestrator. poll may be nil if no fallback is
// configured (a stream failure then surfaces a *TransportError).
func NewOrchestrator(storage Storage, scanner *Scanner, stream StreamSource, poll PollSource, pollInterval time.Duration, clk Clock, log *logrus.Logger) *Orchestrator {
	if log == nil {
		log = logrus.New()
	}
	if clk == nil {
		clk = realClock
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Orchestrator{
		runID:        uuid.New(),
		storage:      storage,
		scanner:      scanner,
		stream:       stream,
		poll:         poll,
		pollInterval: pollInterval,
		clock:        clk,
		lane:         semaphore.NewWeighted(1),
		events:       make(chan SyncEvent, 64),
		log:          log,
	}
}

// Events returns the read side of the orchestrator's event stream. The
// facade (C9) is expected to be the sole consumer.
func (o *Orchestrator) Events() <-chan SyncEvent { return o.events }

// Run blocks until ctx is cancelled or an unrecoverable error occurs. It
// first attempts the streaming transport; on failure it falls back to
// polling, emitting EventTransportDegraded exactly once for the switch.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.events)

	if o.stream != nil {
		ch, err := o.stream.Stream(ctx)
		if err == nil {
			o.log.WithField("run_id", o.runID).Info("sync: streaming transport active")
			return o.consumeStream(ctx, ch)
		}
		o.log.WithError(err).Warn("sync: stream transport failed, falling back to poll-http")
		o.emit(SyncEvent{Kind: EventTransportDegraded, Err: err})
	}

	if o.poll == nil {
		return &TransportError{Err: errors.New("no transport available")}
	}
	return o.runPollLoop(ctx)
}

func (o *Orchestrator) consumeStream(ctx context.Context, ch <-chan RawTxEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				if o.poll == nil {
					return &TransportError{Err: errors.New("stream closed, no fallback configured")}
				}
				o.emit(SyncEvent{Kind: EventTransportDegraded, Err: errors.New("stream closed")})
				return o.runPollLoop(ctx)
			}
			o.handleRaw(ctx, raw)
		}
	}
}

func (o *Orchestrator) runPollLoop(ctx context.Context) error {
	ticker := o.clock.Ticker(o.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			events, err := o.poll.Poll(ctx, o.lastProcessedTimestamp)
			if err != nil {
				o.emit(SyncEvent{Kind: EventError, Err: &TransportError{Err: err}})
				continue
			}
			for _, raw := range events {
				o.handleRaw(ctx, raw)
			}
		}
	}
}

// handleRaw is the single-writer lane: every transaction, from whichever
// transport, funnels through this one acquire/process/release sequence.
func (o *Orchestrator) handleRaw(ctx context.Context, raw RawTxEvent) {
	if raw.Tx == nil {
		return
	}
	if err := o.lane.Acquire(ctx, 1); err != nil {
		return
	}
	defer o.lane.Release(1)

	if err := o.storage.ProcessNewTx(raw.Tx); err != nil {
		o.emit(SyncEvent{Kind: EventError, Err: err})
		return
	}
	if raw.Tx.Timestamp > o.lastProcessedTimestamp {
		o.lastProcessedTimestamp = raw.Tx.Timestamp
	}
	o.emit(SyncEvent{Kind: EventTxProcessed, Tx: raw.Tx})

	if o.scanner == nil {
		return
	}
	lastUsed := -1
	addrs := o.storage.IterAddresses()
	for _, out := range raw.Tx.Outputs {
		if out.DecodedAddress == nil {
			continue
		}
		for _, a := range addrs {
			if a.EncodedForm == *out.DecodedAddress && int(a.DerivationIndex) > lastUsed {
				lastUsed = int(a.DerivationIndex)
			}
		}
	}
	if lastUsed < 0 {
		return
	}
	derived, err := o.scanner.MarkUsed(uint32(lastUsed))
	if err != nil {
		o.emit(SyncEvent{Kind: EventError, Err: err})
		return
	}
	if len(derived) > 0 {
		o.emit(SyncEvent{Kind: EventAddressesDerived, Addr: derived})
	}
}

func (o *Orchestrator) emit(ev SyncEvent) {
	select {
	case o.events <- ev:
	default:
		o.log.Warn("sync: event channel full, dropping event")
	}
}
