package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxID_HexRoundTrip(t *testing.T) {
	var txID TxID
	for i := range txID {
		txID[i] = byte(i)
	}
	parsed, err := ParseTxID(txID.Hex())
	require.NoError(t, err)
	assert.Equal(t, txID, parsed)
}

func TestParseTxID_Malformed(t *testing.T) {
	_, err := ParseTxID("not-hex")
	assert.ErrorIs(t, err, ErrMalformedWireRecord)

	_, err = ParseTxID("ab")
	assert.ErrorIs(t, err, ErrMalformedWireRecord)
}

func TestEncodeDecode_FragmentRecordRoundTrip(t *testing.T) {
	rec := FragmentRecord{
		TxID:           TxID{1, 2, 3},
		FragmentIndex:  2,
		TotalFragments: 5,
		Data:           []byte("chunk"),
	}
	buf := EncodeFragment(rec)
	assert.Len(t, buf, 39+len(rec.Data))

	decoded, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, KindFragment, decoded.Kind)
	require.NotNil(t, decoded.Fragment)
	assert.Equal(t, rec, *decoded.Fragment)
}

func TestEncodeDecode_ConfirmationRecordRoundTrip(t *testing.T) {
	rec := ConfirmationRecord{
		TxID:      TxID{9, 9, 9},
		Signature: "deadbeef-signature",
	}
	buf := EncodeConfirmation(rec)
	assert.Len(t, buf, 35+len(rec.Signature))

	decoded, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, KindConfirmation, decoded.Kind)
	require.NotNil(t, decoded.Confirmation)
	assert.Equal(t, rec, *decoded.Confirmation)
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte{0xFF, 1, 2, 3})
	assert.ErrorIs(t, err, ErrUnknownRecordKind)
}

func TestDecode_MalformedTooShort(t *testing.T) {
	_, err := Decode([]byte{byte(KindFragment), 1, 2})
	assert.ErrorIs(t, err, ErrMalformedWireRecord)
}

func TestDecode_MalformedLengthMismatch(t *testing.T) {
	rec := EncodeFragment(FragmentRecord{TxID: TxID{1}, TotalFragments: 1, Data: []byte("abc")})
	truncated := rec[:len(rec)-1]
	_, err := Decode(truncated)
	assert.ErrorIs(t, err, ErrMalformedWireRecord)
}

func TestPeekTxIDHex_AgreesAcrossKinds(t *testing.T) {
	txID := TxID{5, 5, 5}
	fragBuf := EncodeFragment(FragmentRecord{TxID: txID, TotalFragments: 1})
	confBuf := EncodeConfirmation(ConfirmationRecord{TxID: txID, Signature: "s"})

	fragHex, ok := PeekTxIDHex(fragBuf)
	require.True(t, ok)
	confHex, ok := PeekTxIDHex(confBuf)
	require.True(t, ok)

	assert.Equal(t, txID.Hex(), fragHex)
	assert.Equal(t, txID.Hex(), confHex)
}
