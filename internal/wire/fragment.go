package wire

import (
	"crypto/sha256"
	"errors"
)

// ErrInvalidMtu is returned when mtuPayloadMax is zero.
var ErrInvalidMtu = errors.New("wire: invalid mtu")

// ErrPayloadTooLarge is returned when a payload would require more than
// MaxFragmentCount fragments at the given MTU.
var ErrPayloadTooLarge = errors.New("wire: payload too large")

// MaxFragmentCount is the largest total_fragments value the 16-bit wire
// field can carry.
const MaxFragmentCount = 65535

// Fragment splits payload into ascending-index FragmentRecords of at most
// mtuPayloadMax data bytes each. It has no side effects: callers decide
// whether and where to enqueue the result.
//
// An empty payload still yields a single zero-data fragment, treated as a
// keepalive the receiver dedups like any other transaction.
func Fragment(payload []byte, mtuPayloadMax int) (TxID, []FragmentRecord, error) {
	if mtuPayloadMax <= 0 {
		return TxID{}, nil, ErrInvalidMtu
	}

	txID := TxID(sha256.Sum256(payload))

	n := len(payload)
	total := 1
	if n > 0 {
		total = (n + mtuPayloadMax - 1) / mtuPayloadMax
	}
	if total > MaxFragmentCount {
		return TxID{}, nil, ErrPayloadTooLarge
	}

	fragments := make([]FragmentRecord, total)
	for i := 0; i < total; i++ {
		start := i * mtuPayloadMax
		end := start + mtuPayloadMax
		if end > n {
			end = n
		}
		var data []byte
		if n > 0 {
			data = append([]byte(nil), payload[start:end]...)
		}
		fragments[i] = FragmentRecord{
			TxID:           txID,
			FragmentIndex:  uint16(i),
			TotalFragments: uint16(total),
			Data:           data,
		}
	}

	return txID, fragments, nil
}
