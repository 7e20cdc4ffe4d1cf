// File: internal/codec/sighash.go
package codec

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// ParseTransaction decodes a raw Bitcoin transaction from hex. Structurally
// invalid input (short buffers, bad varints, inconsistent lengths) is
// reported as ErrMalformedTransaction.
func ParseTransaction(rawHex string) (*wire.MsgTx, error) {
	rawBytes, err := hex.DecodeString(rawHex)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedTransaction, err.Error())
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	if err := tx.Deserialize(bytes.NewReader(rawBytes)); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedTransaction, err.Error())
	}

	return tx, nil
}

// SigningDigest computes the exact 32-byte digest a co-signer must sign for
// the given witness input, per the segregated-witness signature-hash
// algorithm. prevOutScript is the referenced script without its length
// prefix, prevOutValue the spent output's value in satoshi.
func SigningDigest(tx *wire.MsgTx, inputIndex int, prevOutScript []byte, prevOutValue int64, sighashType txscript.SigHashType) ([]byte, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ErrMalformedTransaction)
	}
	if inputIndex < 0 || inputIndex >= len(tx.TxIn) {
		return nil, fmt.Errorf("%w: input index %d out of range (%d inputs)",
			ErrMalformedTransaction, inputIndex, len(tx.TxIn))
	}

	fetcher := txscript.NewCannedPrevOutputFetcher(prevOutScript, prevOutValue)
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	digest, err := txscript.CalcWitnessSigHash(prevOutScript, sigHashes, sighashType, tx, inputIndex, prevOutValue)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedTransaction, err.Error())
	}

	return digest, nil
}
