package transport

import (
	"bytes"
	"crypto/sha256"
	"time"

	"github.com/pollinet/relay-core/internal/wire"
)

// Outcome classifies the result of feeding one fragment to the
// reassembler (spec §4.2), and doubles as the result of push_inbound at
// the façade level, which adds OutcomeAlreadySeen on top.
type Outcome int

const (
	OutcomeStored Outcome = iota
	OutcomeDuplicate
	OutcomeComplete
	OutcomeAlreadySeen
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStored:
		return "Stored"
	case OutcomeDuplicate:
		return "Duplicate"
	case OutcomeComplete:
		return "Complete"
	case OutcomeAlreadySeen:
		return "AlreadySeen"
	case OutcomeRejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// RejectReason explains an OutcomeRejected result.
type RejectReason int

const (
	ReasonNone RejectReason = iota
	ReasonUnknownShape
	ReasonTotalMismatch
	ReasonBucketFull
	ReasonChecksumMismatch
	ReasonMalformedWireRecord
	ReasonUnknownRecordKind
)

func (r RejectReason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonUnknownShape:
		return "UnknownShape"
	case ReasonTotalMismatch:
		return "TotalMismatch"
	case ReasonBucketFull:
		return "BucketFull"
	case ReasonChecksumMismatch:
		return "ChecksumMismatch"
	case ReasonMalformedWireRecord:
		return "MalformedWireRecord"
	case ReasonUnknownRecordKind:
		return "UnknownRecordKind"
	default:
		return "Unknown"
	}
}

// AcceptResult is what Reassembler.Accept returns.
type AcceptResult struct {
	Outcome Outcome
	Payload []byte
	Reason  RejectReason
	// EvictedBuckets counts OTHER buckets this call dropped to enforce
	// global capacity; the caller attributes these to reassembly_failures
	// in addition to whatever this fragment's own Outcome was.
	EvictedBuckets int
}

// bucket is the per-transaction reassembly state of spec §3
// ("ReassemblyBucket"). Its map key in Reassembler.buckets IS
// hex(transaction_id), which doubles as the "source_checksum" the spec
// calls out separately: because buckets are keyed by the declared id,
// there is nothing to cross-check beyond comparing the completed
// payload's SHA-256 against that same key.
type bucket struct {
	total         uint16
	received      map[uint16][]byte
	count         int
	createdAt     time.Time
	lastUpdatedAt time.Time
}

// Reassembler holds all in-flight reassembly buckets for one façade
// instance. It is not safe for concurrent use on its own; the façade's
// single mutex serializes every call.
type Reassembler struct {
	buckets           map[string]*bucket
	bucketFragmentCap int
	maxBuckets        int
	maxTotalFragments int
	buffered          int
}

func newReassembler(bucketFragmentCap, maxBuckets, maxTotalFragments int) *Reassembler {
	return &Reassembler{
		buckets:           make(map[string]*bucket),
		bucketFragmentCap: bucketFragmentCap,
		maxBuckets:        maxBuckets,
		maxTotalFragments: maxTotalFragments,
	}
}

// Accept feeds one fragment into its bucket, creating the bucket on first
// sight. now is supplied by the caller so reassembly stays deterministic
// under test.
func (r *Reassembler) Accept(frag wire.FragmentRecord, now time.Time) AcceptResult {
	if frag.FragmentIndex >= frag.TotalFragments {
		return AcceptResult{Outcome: OutcomeRejected, Reason: ReasonUnknownShape}
	}
	if int(frag.TotalFragments) > r.bucketFragmentCap {
		return AcceptResult{Outcome: OutcomeRejected, Reason: ReasonBucketFull}
	}

	key := frag.TxID.Hex()
	evicted := 0

	b, exists := r.buckets[key]
	if !exists {
		if r.maxBuckets > 0 && len(r.buckets) >= r.maxBuckets {
			evicted += r.evictOldest()
		}
		b = &bucket{
			total:         frag.TotalFragments,
			received:      make(map[uint16][]byte),
			createdAt:     now,
			lastUpdatedAt: now,
		}
		r.buckets[key] = b
	} else if b.total != frag.TotalFragments {
		r.removeBucket(key, b)
		return AcceptResult{Outcome: OutcomeRejected, Reason: ReasonTotalMismatch, EvictedBuckets: evicted}
	}

	if existing, ok := b.received[frag.FragmentIndex]; ok {
		if bytes.Equal(existing, frag.Data) {
			return AcceptResult{Outcome: OutcomeDuplicate, EvictedBuckets: evicted}
		}
		r.removeBucket(key, b)
		return AcceptResult{Outcome: OutcomeRejected, Reason: ReasonChecksumMismatch, EvictedBuckets: evicted}
	}

	b.received[frag.FragmentIndex] = frag.Data
	b.count++
	b.lastUpdatedAt = now
	r.buffered++

	if r.maxTotalFragments > 0 && r.buffered > r.maxTotalFragments {
		evicted += r.evictOldest()
	}

	if b.count == int(b.total) {
		payload := make([]byte, 0, b.count*len(frag.Data)+len(frag.Data))
		for i := uint16(0); i < b.total; i++ {
			payload = append(payload, b.received[i]...)
		}
		r.removeBucket(key, b)

		sum := sha256.Sum256(payload)
		if wire.TxID(sum).Hex() != key {
			return AcceptResult{Outcome: OutcomeRejected, Reason: ReasonChecksumMismatch, EvictedBuckets: evicted}
		}
		return AcceptResult{Outcome: OutcomeComplete, Payload: payload, EvictedBuckets: evicted}
	}

	return AcceptResult{Outcome: OutcomeStored, EvictedBuckets: evicted}
}

// ExpireStale removes buckets whose lastUpdatedAt predates now - timeout,
// per spec §4.2/§4.5. Expired buckets are NOT deduped: retransmission is
// permitted.
func (r *Reassembler) ExpireStale(now time.Time, timeout time.Duration) int {
	expired := 0
	for key, b := range r.buckets {
		if now.Sub(b.lastUpdatedAt) > timeout {
			r.buffered -= b.count
			delete(r.buckets, key)
			expired++
		}
	}
	return expired
}

// EnforceCapacity re-checks the global bucket/fragment caps, evicting the
// oldest bucket repeatedly until both are satisfied. Accept() already
// enforces this incrementally; Tick calls this as a belt-and-braces sweep.
func (r *Reassembler) EnforceCapacity() int {
	evicted := 0
	for (r.maxBuckets > 0 && len(r.buckets) > r.maxBuckets) ||
		(r.maxTotalFragments > 0 && r.buffered > r.maxTotalFragments) {
		if r.evictOldest() == 0 {
			break
		}
		evicted++
	}
	return evicted
}

// Clear removes the bucket for txIDHex, if any, reporting whether it
// existed.
func (r *Reassembler) Clear(txIDHex string) bool {
	b, ok := r.buckets[txIDHex]
	if !ok {
		return false
	}
	r.removeBucket(txIDHex, b)
	return true
}

// BufferedFragments returns the total fragment count currently held
// across all buckets (spec's fragments_buffered metric).
func (r *Reassembler) BufferedFragments() int {
	return r.buffered
}

func (r *Reassembler) removeBucket(key string, b *bucket) {
	r.buffered -= b.count
	delete(r.buckets, key)
}

// evictOldest drops the bucket with the oldest lastUpdatedAt, returning 1
// if something was evicted or 0 if there were no buckets to drop.
func (r *Reassembler) evictOldest() int {
	var oldestKey string
	var oldest *bucket
	for key, b := range r.buckets {
		if oldest == nil || b.lastUpdatedAt.Before(oldest.lastUpdatedAt) {
			oldestKey, oldest = key, b
		}
	}
	if oldest == nil {
		return 0
	}
	r.removeBucket(oldestKey, oldest)
	return 1
}
