// Package transport implements the PolliNet host-driven BLE transport
// core: fragmentation/reassembly, the four queues, dedup, the tick-driven
// expiry scheduler, and the façade operations a platform adapter and the
// SDK call. It owns all in-memory state behind one mutex per instance and
// performs no I/O — every operation is synchronous and returns in time
// bounded by queue/bucket size, per spec §5.
package transport

import (
	"crypto/sha256"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/pollinet/relay-core/internal/metrics"
	"github.com/pollinet/relay-core/internal/wire"
)

// Input-validation errors returned by QueueTransaction (spec §7,
// "InvalidInput"). Reassembly/wire-decode rejections are reported as
// Outcome/RejectReason values instead, never as error.
var (
	ErrInvalidMtu          = wire.ErrInvalidMtu
	ErrPayloadTooLarge     = wire.ErrPayloadTooLarge
	ErrTransactionTooLarge = errors.New("transport: transaction exceeds max_tx_bytes")
)

// Config holds the façade's recognized options (spec §6.3). All fields
// have defaults in DefaultConfig.
type Config struct {
	MTUPayloadMax        int
	MaxTxBytes           int
	ReassemblyTimeout    time.Duration
	MaxBuckets           int
	BucketFragmentCap    int // per-bucket fragment cap (spec §4.2's "default 512")
	MaxTotalFragments    int
	DedupCapacity        int
	OutboundCapacity     int
	ReceivedCapacity     int
	ConfirmationCapacity int
}

// DefaultConfig returns the spec §6.3 defaults.
func DefaultConfig() Config {
	return Config{
		MTUPayloadMax:        237,
		MaxTxBytes:           5120,
		ReassemblyTimeout:    60 * time.Second,
		MaxBuckets:           128,
		BucketFragmentCap:    512,
		MaxTotalFragments:    10000,
		DedupCapacity:        1024,
		OutboundCapacity:     100,
		ReceivedCapacity:     100,
		ConfirmationCapacity: 100,
	}
}

// ReceivedEntry is a reassembled (or locally originated) transaction ready
// for consumption via NextReceivedTransaction.
type ReceivedEntry struct {
	TxID       string
	Payload    []byte
	ReceivedAt time.Time
}

// ConfirmationEntry is a chain signature queued for relay back along the
// mesh via NextConfirmation.
type ConfirmationEntry struct {
	TxID         string
	Signature    string
	ConfirmedAt  time.Time
}

// MetricsSnapshot is the plain-value view of spec §3's Metrics surface,
// always computed live from current state.
type MetricsSnapshot struct {
	FragmentsBuffered    int
	TransactionsComplete uint64
	ReassemblyFailures   uint64
	OutboundDepth        int
	ReceivedDepth        int
	ConfirmationDepth    int
	DedupSize            int
	OutboundDropped      uint64
}

// Option customizes a Transport at construction time.
type Option func(*Transport)

// WithClock overrides the time source used for timestamps the public API
// does not take explicitly (e.g. ReceivedAt). Tests use this for
// determinism; production code leaves it at the default, time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Transport) { t.now = now }
}

// WithMetrics supplies a pre-built metrics.Metrics, e.g. one whose
// registry a demo process already wired to an HTTP handler. New() creates
// a private one if this option is not given.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Transport) { t.metrics = m }
}

// Transport is the façade: the single object a platform adapter and the
// SDK call. It exclusively owns all queues, the reassembly map, the dedup
// set, and the metrics counters — external collaborators observe only
// through these methods, never by holding a reference into the façade's
// internals.
type Transport struct {
	mu sync.Mutex

	cfg Config

	reassembler   *Reassembler
	dedup         *dedupSet
	outboundQ     *fifo[[]byte]
	receivedQ     *fifo[ReceivedEntry]
	confirmationQ *fifo[ConfirmationEntry]

	metrics *metrics.Metrics
	now     func() time.Time

	transactionsComplete uint64
	reassemblyFailures   uint64
	outboundDropped      uint64
}

// New constructs a Transport from cfg, applying any Options.
func New(cfg Config, opts ...Option) *Transport {
	t := &Transport{
		cfg:           cfg,
		reassembler:   newReassembler(cfg.BucketFragmentCap, cfg.MaxBuckets, cfg.MaxTotalFragments),
		dedup:         newDedupSet(cfg.DedupCapacity),
		outboundQ:     newFIFO[[]byte](cfg.OutboundCapacity),
		receivedQ:     newFIFO[ReceivedEntry](cfg.ReceivedCapacity),
		confirmationQ: newFIFO[ConfirmationEntry](cfg.ConfirmationCapacity),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.metrics == nil {
		t.metrics = metrics.New()
	}
	return t
}

// QueueTransaction fragments payload and enqueues the resulting wire
// records onto the outbound queue in ascending index order. mtuOverride,
// if positive, overrides cfg.MTUPayloadMax for this call only.
func (t *Transport) QueueTransaction(payload []byte, mtuOverride int) (wire.TxID, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(payload) > t.cfg.MaxTxBytes {
		return wire.TxID{}, 0, ErrTransactionTooLarge
	}

	mtu := mtuOverride
	if mtu <= 0 {
		mtu = t.cfg.MTUPayloadMax
	}

	txID, fragments, err := wire.Fragment(payload, mtu)
	if err != nil {
		return wire.TxID{}, 0, err
	}

	for _, frag := range fragments {
		if t.outboundQ.push(wire.EncodeFragment(frag)) {
			t.outboundDropped++
			t.metrics.OutboundDropped.Inc()
			log.Debug().Str("tx_id", txID.Hex()).Msg("outbound queue full, dropped oldest fragment")
		}
	}

	log.Debug().Str("tx_id", txID.Hex()).Int("fragments", len(fragments)).Msg("queued transaction")
	return txID, len(fragments), nil
}

// NextOutbound pops the head wire record off the outbound queue, if any.
func (t *Transport) NextOutbound() ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.outboundQ.pop()
}

// PushInbound decodes one wire record delivered by the platform adapter
// and drives it through reassembly (FragmentRecord) or the confirmation
// queue (ConfirmationRecord). It never returns an error: decode failures
// and reassembly rejections are reported as an Outcome, per spec §7.
func (t *Transport) PushInbound(data []byte) (Outcome, RejectReason) {
	t.mu.Lock()
	defer t.mu.Unlock()

	decoded, err := wire.Decode(data)
	if err != nil {
		reason := ReasonMalformedWireRecord
		if errors.Is(err, wire.ErrUnknownRecordKind) {
			reason = ReasonUnknownRecordKind
		}
		log.Debug().Err(err).Msg("rejected inbound wire record")
		return OutcomeRejected, reason
	}

	switch decoded.Kind {
	case wire.KindFragment:
		return t.acceptFragment(*decoded.Fragment)
	case wire.KindConfirmation:
		// Not itself part of the fragment/dedup flow spec §4.3 describes:
		// an inbound ConfirmationRecord is simply relay traffic being
		// handed to this device, so it goes straight onto the
		// confirmation queue for the SDK to read via NextConfirmation.
		// See DESIGN.md for this Open Question's resolution.
		entry := ConfirmationEntry{
			TxID:        decoded.Confirmation.TxID.Hex(),
			Signature:   decoded.Confirmation.Signature,
			ConfirmedAt: t.now(),
		}
		t.confirmationQ.push(entry)
		return OutcomeStored, ReasonNone
	default:
		return OutcomeRejected, ReasonUnknownRecordKind
	}
}

func (t *Transport) acceptFragment(frag wire.FragmentRecord) (Outcome, RejectReason) {
	result := t.reassembler.Accept(frag, t.now())
	if result.EvictedBuckets > 0 {
		t.reassemblyFailures += uint64(result.EvictedBuckets)
		t.metrics.ReassemblyFailures.Add(float64(result.EvictedBuckets))
	}

	switch result.Outcome {
	case OutcomeRejected:
		t.reassemblyFailures++
		t.metrics.ReassemblyFailures.Inc()
		log.Debug().Str("reason", result.Reason.String()).Msg("reassembly rejected fragment")
		return OutcomeRejected, result.Reason

	case OutcomeComplete:
		t.transactionsComplete++
		t.metrics.TransactionsComplete.Inc()
		txIDHex := frag.TxID.Hex()
		if t.dedup.contains(txIDHex) {
			return OutcomeAlreadySeen, ReasonNone
		}
		t.dedup.insert(txIDHex)
		t.receivedQ.push(ReceivedEntry{
			TxID:       txIDHex,
			Payload:    result.Payload,
			ReceivedAt: t.now(),
		})
		log.Info().Str("tx_id", txIDHex).Int("len", len(result.Payload)).Msg("transaction reassembled")
		return OutcomeComplete, ReasonNone

	default:
		return result.Outcome, ReasonNone
	}
}

// PushReceivedTransaction is the loopback path (spec §4.3): a device
// originates a transaction it will submit itself, skipping fragmentation
// and reassembly. Returns false if tx_id was already seen.
func (t *Transport) PushReceivedTransaction(payload []byte) (wire.TxID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	txID := wire.TxID(sha256.Sum256(payload))
	hex := txID.Hex()
	if t.dedup.contains(hex) {
		return txID, false
	}
	t.dedup.insert(hex)
	t.receivedQ.push(ReceivedEntry{TxID: hex, Payload: payload, ReceivedAt: t.now()})
	return txID, true
}

// NextReceivedTransaction pops the head of the received queue, if any.
func (t *Transport) NextReceivedTransaction() (ReceivedEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.receivedQ.pop()
}

// QueueConfirmation enqueues a signature for relay back along the mesh.
func (t *Transport) QueueConfirmation(txID, signature string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.confirmationQ.push(ConfirmationEntry{TxID: txID, Signature: signature, ConfirmedAt: t.now()})
}

// NextConfirmation pops the head of the confirmation queue, if any.
func (t *Transport) NextConfirmation() (ConfirmationEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.confirmationQ.pop()
}

// ClearTransaction removes any reassembly bucket, pending outbound
// fragments, and received/confirmation entries for txID. Reports whether
// anything was removed.
func (t *Transport) ClearTransaction(txID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	removedBucket := t.reassembler.Clear(txID)

	removedOutbound := t.outboundQ.removeMatching(func(rec []byte) bool {
		got, ok := wire.PeekTxIDHex(rec)
		return ok && got == txID
	})
	removedReceived := t.receivedQ.removeMatching(func(e ReceivedEntry) bool { return e.TxID == txID })
	removedConfirmation := t.confirmationQ.removeMatching(func(e ConfirmationEntry) bool { return e.TxID == txID })

	return removedBucket || removedOutbound > 0 || removedReceived > 0 || removedConfirmation > 0
}

// Tick drives periodic maintenance (spec §4.5): expire stale reassembly
// buckets, enforce global bucket capacity, and refresh the exported
// metrics collectors. Idempotent and safe at arbitrary call frequency.
func (t *Transport) Tick(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	expired := t.reassembler.ExpireStale(now, t.cfg.ReassemblyTimeout)
	evicted := t.reassembler.EnforceCapacity()
	if n := expired + evicted; n > 0 {
		t.reassemblyFailures += uint64(n)
		t.metrics.ReassemblyFailures.Add(float64(n))
		log.Debug().Int("expired", expired).Int("evicted", evicted).Msg("tick reclaimed reassembly buckets")
	}

	t.refreshMetricsLocked()
}

// Metrics returns a live snapshot of the façade's counters and gauges.
func (t *Transport) Metrics() MetricsSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Transport) snapshotLocked() MetricsSnapshot {
	return MetricsSnapshot{
		FragmentsBuffered:    t.reassembler.BufferedFragments(),
		TransactionsComplete: t.transactionsComplete,
		ReassemblyFailures:   t.reassemblyFailures,
		OutboundDepth:        t.outboundQ.len(),
		ReceivedDepth:        t.receivedQ.len(),
		ConfirmationDepth:    t.confirmationQ.len(),
		DedupSize:            t.dedup.size(),
		OutboundDropped:      t.outboundDropped,
	}
}

func (t *Transport) refreshMetricsLocked() {
	snap := t.snapshotLocked()
	t.metrics.FragmentsBuffered.Set(float64(snap.FragmentsBuffered))
	t.metrics.OutboundDepth.Set(float64(snap.OutboundDepth))
	t.metrics.ReceivedDepth.Set(float64(snap.ReceivedDepth))
	t.metrics.ConfirmationDepth.Set(float64(snap.ConfirmationDepth))
	t.metrics.DedupSize.Set(float64(snap.DedupSize))
	// Counters are incremented at the point of occurrence (see
	// QueueTransaction/acceptFragment/Tick); nothing to do here beyond
	// the gauges above.
}

// MetricsRegistry exposes the Prometheus registry backing this façade's
// counters, for a demo/operator process to mount under promhttp.
func (t *Transport) MetricsRegistry() *prometheus.Registry {
	return t.metrics.Registry()
}
