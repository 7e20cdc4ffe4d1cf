package codec

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/txscript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Unsigned native-P2WPKH transaction from the segwit digest algorithm
// reference vectors, two inputs, two outputs, locktime 17.
const witnessVectorTx = "0100000002fff7f7881a8099afa6940d42d1e7f6362bec38171ea3edf433541db4e4ad969f0000000000eeffffffef51e1b804cc89d182d279655c3aa89e815b1b309fe287d9b2b55d57b90ec68a0100000000ffffffff02202cb206000000001976a9148280b37df378db99f66f85c95a783a76ac7a6d5988ac9093510d000000001976a9143bde42dbee7e4dbe6a21b2d50ce2f0167faa815988ac11000000"

func TestToTransportSignatureRoundTrip(t *testing.T) {
	raw := make([]byte, 64)
	raw[0] = 0x7f
	for i := 1; i < 32; i++ {
		raw[i] = byte(i)
	}
	raw[32] = 0x23
	for i := 33; i < 64; i++ {
		raw[i] = byte(i)
	}

	der, err := ToTransportSignature(raw)
	require.NoError(t, err)

	// Both high bits clear: 6 bytes of DER framing + 64 bytes of payload.
	assert.Len(t, der, 70)
	assert.Equal(t, byte(0x30), der[0])
	assert.Equal(t, byte(68), der[1])

	sig, err := ecdsa.ParseDERSignature(der)
	require.NoError(t, err, "output must decode with a standard DER parser")

	// Both components are already minimally encoded, so the parser's own
	// canonical re-serialization must reproduce our encoding exactly.
	assert.Equal(t, der, sig.Serialize())
}

func TestToTransportSignaturePadding(t *testing.T) {
	raw := make([]byte, 64)
	for i := 0; i < 32; i++ {
		raw[i] = 0xff
	}
	raw[63] = 0x01

	der, err := ToTransportSignature(raw)
	require.NoError(t, err)

	// R has its high bit set: padded to 33 bytes with a leading zero.
	require.Len(t, der, 71)
	assert.Equal(t, byte(0x30), der[0])
	assert.Equal(t, byte(69), der[1])

	assert.Equal(t, byte(0x02), der[2])
	assert.Equal(t, byte(33), der[3], "R component must be padded to 33 bytes")
	assert.Equal(t, byte(0x00), der[4], "padded R must start with a zero byte")
	assert.Equal(t, byte(0xff), der[5])

	sOffset := 4 + 33
	assert.Equal(t, byte(0x02), der[sOffset])
	assert.Equal(t, byte(32), der[sOffset+1], "S component must stay 32 bytes")
	assert.Equal(t, byte(0x01), der[len(der)-1])
}

func TestToTransportSignatureSPadding(t *testing.T) {
	raw := make([]byte, 64)
	raw[0] = 0x01
	raw[32] = 0x80

	der, err := ToTransportSignature(raw)
	require.NoError(t, err)
	require.Len(t, der, 71)

	assert.Equal(t, byte(32), der[3])
	sOffset := 4 + 32
	assert.Equal(t, byte(33), der[sOffset+1], "S component must be padded to 33 bytes")
	assert.Equal(t, byte(0x00), der[sOffset+2])
	assert.Equal(t, byte(0x80), der[sOffset+3])
}

func TestToTransportSignatureInvalidLength(t *testing.T) {
	for _, n := range []int{0, 1, 63, 65, 128} {
		_, err := ToTransportSignature(make([]byte, n))
		assert.ErrorIs(t, err, ErrInvalidLength, "length %d must be rejected", n)
	}
}

func TestSigningDigestWitnessVector(t *testing.T) {
	tx, err := ParseTransaction(witnessVectorTx)
	require.NoError(t, err)

	scriptCode, err := hex.DecodeString("76a9141d0f172a0ecb48aee1be1f2687d2963ae33f71a188ac")
	require.NoError(t, err)

	digest, err := SigningDigest(tx, 1, scriptCode, 600000000, txscript.SigHashAll)
	require.NoError(t, err)

	want, _ := hex.DecodeString("c37af31116d1b27caf68aae9e3ac82f1477929014d5b917657d0eb49478cb670")
	assert.Equal(t, want, digest, "digest must match the consensus rule byte for byte")
}

func TestSigningDigestInputOutOfRange(t *testing.T) {
	tx, err := ParseTransaction(witnessVectorTx)
	require.NoError(t, err)

	_, err = SigningDigest(tx, 2, []byte{0x51}, 1000, txscript.SigHashAll)
	assert.ErrorIs(t, err, ErrMalformedTransaction)

	_, err = SigningDigest(tx, -1, []byte{0x51}, 1000, txscript.SigHashAll)
	assert.ErrorIs(t, err, ErrMalformedTransaction)
}

func TestParseTransaction(t *testing.T) {
	tx, err := ParseTransaction(witnessVectorTx)
	require.NoError(t, err)
	assert.Len(t, tx.TxIn, 2)
	assert.Len(t, tx.TxOut, 2)
	assert.EqualValues(t, 1, tx.Version)
	assert.EqualValues(t, 17, tx.LockTime)
}

func TestParseTransactionMalformed(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"odd hex", "0100000"},
		{"not hex", "zzzz"},
		{"truncated", witnessVectorTx[:40]},
		{"empty", ""},
		{"bad varint", "01000000fd"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseTransaction(tc.raw)
			assert.ErrorIs(t, err, ErrMalformedTransaction)
		})
	}
}

func TestIsValidAddress(t *testing.T) {
	assert.True(t, IsValidAddress("1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"))
	assert.True(t, IsValidAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"))
	assert.True(t, IsValidAddress("tb1qw508d6qejxtdg4y5r3zarvary0c5xw7kxpjzsx"))
	assert.False(t, IsValidAddress(""))
	assert.False(t, IsValidAddress("notanaddress"))
	assert.False(t, IsValidAddress("bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t5"))
}

func TestIsValidPublicKey(t *testing.T) {
	compressed := make([]byte, 33)
	compressed[0] = 0x02
	assert.True(t, IsValidPublicKey(compressed))
	compressed[0] = 0x03
	assert.True(t, IsValidPublicKey(compressed))
	compressed[0] = 0x04
	assert.False(t, IsValidPublicKey(compressed))

	uncompressed := make([]byte, 65)
	uncompressed[0] = 0x04
	assert.True(t, IsValidPublicKey(uncompressed))
	uncompressed[0] = 0x02
	assert.False(t, IsValidPublicKey(uncompressed))

	assert.False(t, IsValidPublicKey(nil))
	assert.False(t, IsValidPublicKey(make([]byte, 32)))
}

func TestIsValidTxHash(t *testing.T) {
	assert.True(t, IsValidTxHash("c37af31116d1b27caf68aae9e3ac82f1477929014d5b917657d0eb49478cb670"))
	assert.False(t, IsValidTxHash("c37af311"))
	assert.False(t, IsValidTxHash("0x"+"c37af31116d1b27caf68aae9e3ac82f1477929014d5b917657d0eb49478cb670"))
	assert.False(t, IsValidTxHash("g37af31116d1b27caf68aae9e3ac82f1477929014d5b917657d0eb49478cb670"))
}

func TestReverseBytes(t *testing.T) {
	assert.Equal(t, []byte{3, 2, 1}, ReverseBytes([]byte{1, 2, 3}))
	assert.Empty(t, ReverseBytes(nil))

	b := []byte{1, 2, 3, 4}
	assert.Equal(t, b, ReverseBytes(ReverseBytes(b)))
}

func TestChainBoundaryHash(t *testing.T) {
	display := "c37af31116d1b27caf68aae9e3ac82f1477929014d5b917657d0eb49478cb670"
	h, err := ParseChainHash(display)
	require.NoError(t, err)

	// The internal representation is byte-reversed relative to display
	// order; crossing the chain boundary must restore big-endian bytes.
	want, _ := hex.DecodeString(display)
	got := ChainBoundaryHash(*h)
	assert.True(t, bytes.Equal(want, got[:]))
	assert.False(t, bytes.Equal(want, h[:]))
}
