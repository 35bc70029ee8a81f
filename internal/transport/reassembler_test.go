package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pollinet/relay-core/internal/wire"
)

func fragmentsFor(t *testing.T, payload []byte, mtu int) []wire.FragmentRecord {
	t.Helper()
	_, frags, err := wire.Fragment(payload, mtu)
	require.NoError(t, err)
	return frags
}

func TestReassembler_SingleFragmentCompletesImmediately(t *testing.T) {
	r := newReassembler(512, 128, 10000)
	frags := fragmentsFor(t, []byte("hello pollinet"), 237)
	require.Len(t, frags, 1)

	result := r.Accept(frags[0], time.Now())
	assert.Equal(t, OutcomeComplete, result.Outcome)
	assert.Equal(t, []byte("hello pollinet"), result.Payload)
	assert.Equal(t, 0, r.BufferedFragments())
}

func TestReassembler_MultiFragmentReassemblesInOrder(t *testing.T) {
	r := newReassembler(512, 128, 10000)
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	frags := fragmentsFor(t, payload, 100)
	require.Greater(t, len(frags), 1)

	now := time.Now()
	var last AcceptResult
	// feed out of order to prove order doesn't matter to correctness
	for i := len(frags) - 1; i >= 0; i-- {
		last = r.Accept(frags[i], now)
	}
	assert.Equal(t, OutcomeComplete, last.Outcome)
	assert.Equal(t, payload, last.Payload)
}

func TestReassembler_DuplicateFragmentIsHarmless(t *testing.T) {
	r := newReassembler(512, 128, 10000)
	frags := fragmentsFor(t, make([]byte, 500), 100)
	now := time.Now()

	first := r.Accept(frags[0], now)
	assert.Equal(t, OutcomeStored, first.Outcome)

	dup := r.Accept(frags[0], now)
	assert.Equal(t, OutcomeDuplicate, dup.Outcome)
	assert.Equal(t, 1, r.BufferedFragments())
}

func TestReassembler_ConflictingFragmentDataIsChecksumMismatch(t *testing.T) {
	r := newReassembler(512, 128, 10000)
	frags := fragmentsFor(t, make([]byte, 500), 100)
	now := time.Now()

	r.Accept(frags[0], now)

	corrupted := frags[0]
	corrupted.Data = append([]byte(nil), corrupted.Data...)
	corrupted.Data[0] ^= 0xFF

	result := r.Accept(corrupted, now)
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, ReasonChecksumMismatch, result.Reason)
	assert.Equal(t, 0, r.BufferedFragments()) // bucket dropped
}

func TestReassembler_UnknownShapeRejected(t *testing.T) {
	r := newReassembler(512, 128, 10000)
	frag := wire.FragmentRecord{TxID: wire.TxID{1}, FragmentIndex: 3, TotalFragments: 3}

	result := r.Accept(frag, time.Now())
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, ReasonUnknownShape, result.Reason)
}

func TestReassembler_BucketFullRejectsOversizeTotal(t *testing.T) {
	r := newReassembler(4, 128, 10000)
	frag := wire.FragmentRecord{TxID: wire.TxID{2}, FragmentIndex: 0, TotalFragments: 5}

	result := r.Accept(frag, time.Now())
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, ReasonBucketFull, result.Reason)
}

func TestReassembler_TotalMismatchDropsBucket(t *testing.T) {
	r := newReassembler(512, 128, 10000)
	now := time.Now()
	txID := wire.TxID{3}

	r.Accept(wire.FragmentRecord{TxID: txID, FragmentIndex: 0, TotalFragments: 2, Data: []byte("a")}, now)
	result := r.Accept(wire.FragmentRecord{TxID: txID, FragmentIndex: 1, TotalFragments: 3, Data: []byte("b")}, now)

	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, ReasonTotalMismatch, result.Reason)
	assert.Equal(t, 0, r.BufferedFragments())
}

func TestReassembler_ExpireStaleDropsOldBuckets(t *testing.T) {
	r := newReassembler(512, 128, 10000)
	start := time.Now()
	frags := fragmentsFor(t, make([]byte, 500), 100)
	r.Accept(frags[0], start)

	expired := r.ExpireStale(start.Add(2*time.Minute), time.Minute)
	assert.Equal(t, 1, expired)
	assert.Equal(t, 0, r.BufferedFragments())
}

func TestReassembler_ExpireStaleKeepsFreshBuckets(t *testing.T) {
	r := newReassembler(512, 128, 10000)
	start := time.Now()
	frags := fragmentsFor(t, make([]byte, 500), 100)
	r.Accept(frags[0], start)

	expired := r.ExpireStale(start.Add(10*time.Second), time.Minute)
	assert.Equal(t, 0, expired)
	assert.Equal(t, 1, r.BufferedFragments())
}

func TestReassembler_AcceptEvictsOldestBucketAtMaxBuckets(t *testing.T) {
	r := newReassembler(512, 2, 10000)
	now := time.Now()

	r.Accept(wire.FragmentRecord{TxID: wire.TxID{1}, FragmentIndex: 0, TotalFragments: 2, Data: []byte("a")}, now)
	r.Accept(wire.FragmentRecord{TxID: wire.TxID{2}, FragmentIndex: 0, TotalFragments: 2, Data: []byte("b")}, now.Add(time.Second))

	// third bucket exceeds maxBuckets=2, evicting bucket 1 inline in Accept
	result := r.Accept(wire.FragmentRecord{TxID: wire.TxID{3}, FragmentIndex: 0, TotalFragments: 2, Data: []byte("c")}, now.Add(2*time.Second))
	assert.Equal(t, OutcomeStored, result.Outcome)
	assert.False(t, r.Clear(wire.TxID{1}.Hex()))
	assert.True(t, r.Clear(wire.TxID{2}.Hex()))
	assert.True(t, r.Clear(wire.TxID{3}.Hex()))
}

func TestReassembler_ClearRemovesBucket(t *testing.T) {
	r := newReassembler(512, 128, 10000)
	frags := fragmentsFor(t, make([]byte, 500), 100)
	r.Accept(frags[0], time.Now())

	assert.True(t, r.Clear(frags[0].TxID.Hex()))
	assert.Equal(t, 0, r.BufferedFragments())
	assert.False(t, r.Clear(frags[0].TxID.Hex()))
}
