// Package wire implements the on-the-air record format a platform BLE
// adapter moves as opaque bytes: a kind-tagged FragmentRecord or
// ConfirmationRecord, plus the pure fragmentation function that produces
// FragmentRecords from a payload.
package wire

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
)

// ErrMalformedWireRecord is returned when a record is shorter than its
// declared header or its trailing length field disagrees with the actual
// buffer length.
var ErrMalformedWireRecord = errors.New("wire: malformed record")

// ErrUnknownRecordKind is returned when the leading kind byte does not
// match a known record kind.
var ErrUnknownRecordKind = errors.New("wire: unknown record kind")

// Kind tags the two wire record shapes. It is a closed set; unknown values
// are rejected rather than treated as an open hierarchy.
type Kind byte

const (
	KindFragment     Kind = 0x01
	KindConfirmation Kind = 0x02
)

const (
	fragmentHeaderLen     = 39 // kind(1) + tx_id(32) + index(2) + total(2) + data_len(2)
	confirmationHeaderLen = 35 // kind(1) + tx_id(32) + sig_len(2)
	txIDOffset            = 1
	txIDLen               = 32
)

// TxID is the 32-byte SHA-256 transaction identifier. It is a 32-byte value
// internally and a lowercase hex string at API boundaries; the two
// conversions are total and round-trip.
type TxID [32]byte

// Hex returns the lowercase hex form of the identifier.
func (t TxID) Hex() string {
	return hex.EncodeToString(t[:])
}

// ParseTxID parses a lowercase (or mixed-case) hex string back into a TxID.
func ParseTxID(s string) (TxID, error) {
	var t TxID
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(t) {
		return TxID{}, ErrMalformedWireRecord
	}
	copy(t[:], b)
	return t, nil
}

// FragmentRecord is the wire unit described in spec §6.1: one MTU-bounded
// slice of a payload plus enough metadata to reassemble it.
type FragmentRecord struct {
	TxID           TxID
	FragmentIndex  uint16
	TotalFragments uint16
	Data           []byte
}

// ConfirmationRecord carries a chain signature back along the mesh for a
// transaction identified by TxID. Signature is opaque, chain-specific bytes
// treated as UTF-8 on the wire.
type ConfirmationRecord struct {
	TxID      TxID
	Signature string
}

// EncodeFragment serializes a FragmentRecord to its wire form.
func EncodeFragment(r FragmentRecord) []byte {
	buf := make([]byte, fragmentHeaderLen+len(r.Data))
	buf[0] = byte(KindFragment)
	copy(buf[txIDOffset:txIDOffset+txIDLen], r.TxID[:])
	binary.BigEndian.PutUint16(buf[33:35], r.FragmentIndex)
	binary.BigEndian.PutUint16(buf[35:37], r.TotalFragments)
	binary.BigEndian.PutUint16(buf[37:39], uint16(len(r.Data)))
	copy(buf[fragmentHeaderLen:], r.Data)
	return buf
}

// EncodeConfirmation serializes a ConfirmationRecord to its wire form.
func EncodeConfirmation(r ConfirmationRecord) []byte {
	sig := []byte(r.Signature)
	buf := make([]byte, confirmationHeaderLen+len(sig))
	buf[0] = byte(KindConfirmation)
	copy(buf[txIDOffset:txIDOffset+txIDLen], r.TxID[:])
	binary.BigEndian.PutUint16(buf[33:35], uint16(len(sig)))
	copy(buf[confirmationHeaderLen:], sig)
	return buf
}

// Decoded is the result of decoding one wire record: exactly one of
// Fragment or Confirmation is set, matching Kind.
type Decoded struct {
	Kind         Kind
	Fragment     *FragmentRecord
	Confirmation *ConfirmationRecord
}

// Decode parses a wire record, dispatching on its leading kind byte.
func Decode(buf []byte) (Decoded, error) {
	if len(buf) < 1 {
		return Decoded{}, ErrMalformedWireRecord
	}

	switch Kind(buf[0]) {
	case KindFragment:
		if len(buf) < fragmentHeaderLen {
			return Decoded{}, ErrMalformedWireRecord
		}
		var txid TxID
		copy(txid[:], buf[txIDOffset:txIDOffset+txIDLen])
		index := binary.BigEndian.Uint16(buf[33:35])
		total := binary.BigEndian.Uint16(buf[35:37])
		dataLen := binary.BigEndian.Uint16(buf[37:39])
		if len(buf) != fragmentHeaderLen+int(dataLen) {
			return Decoded{}, ErrMalformedWireRecord
		}
		data := make([]byte, dataLen)
		copy(data, buf[fragmentHeaderLen:])
		return Decoded{
			Kind: KindFragment,
			Fragment: &FragmentRecord{
				TxID:           txid,
				FragmentIndex:  index,
				TotalFragments: total,
				Data:           data,
			},
		}, nil

	case KindConfirmation:
		if len(buf) < confirmationHeaderLen {
			return Decoded{}, ErrMalformedWireRecord
		}
		var txid TxID
		copy(txid[:], buf[txIDOffset:txIDOffset+txIDLen])
		sigLen := binary.BigEndian.Uint16(buf[33:35])
		if len(buf) != confirmationHeaderLen+int(sigLen) {
			return Decoded{}, ErrMalformedWireRecord
		}
		sig := string(buf[confirmationHeaderLen:])
		return Decoded{
			Kind:         KindConfirmation,
			Confirmation: &ConfirmationRecord{TxID: txid, Signature: sig},
		}, nil

	default:
		return Decoded{}, ErrUnknownRecordKind
	}
}

// PeekTxIDHex reads the transaction_id field that both record kinds place
// at the same offset, without fully decoding the record. Used by
// clear_transaction to scan queued wire bytes without a round trip through
// Decode.
func PeekTxIDHex(buf []byte) (string, bool) {
	if len(buf) < txIDOffset+txIDLen {
		return "", false
	}
	return hex.EncodeToString(buf[txIDOffset : txIDOffset+txIDLen]), true
}
