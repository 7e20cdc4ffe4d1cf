// File: internal/oracle/verdict.go
package oracle

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
)

// Verdict is the shared three-way outcome of a status poll, identical for
// both oracle kinds so callers never branch on the oracle behind it.
type Verdict struct {
	Status   models.VerificationStatus `json:"status"`
	Evidence *VerifiedEvidence         `json:"evidence,omitempty"`
}

// VerifiedEvidence is the oracle-attested material carried by a Verified
// verdict. RequestID is the handle the compensation manager resolves the
// verification record by, so claim submissions pass it on-chain.
type VerifiedEvidence struct {
	RequestID common.Hash `json:"request_id"`
	MsgHash   common.Hash `json:"msg_hash,omitempty"`
	TxHash    common.Hash `json:"tx_hash,omitempty"`
	Signature []byte      `json:"signature,omitempty"`
	PubKey    []byte      `json:"pub_key,omitempty"`
	UTXOs     [][]byte    `json:"utxos,omitempty"`
}

// Terminal reports whether polling may stop
func (v *Verdict) Terminal() bool {
	return v.Status.Terminal()
}

// decodeSignatureResult maps the signature-validation oracle response onto
// the shared verdict. A zero msgHash means the oracle has not recorded a
// digest yet and the request is still verifying.
func decodeSignatureResult(requestID common.Hash, verified bool, msgHash common.Hash, signature, pubKey []byte) *Verdict {
	if msgHash == (common.Hash{}) {
		return &Verdict{Status: models.VerificationStatusVerifying}
	}
	if verified {
		return &Verdict{
			Status: models.VerificationStatusVerified,
			Evidence: &VerifiedEvidence{
				RequestID: requestID,
				MsgHash:   msgHash,
				Signature: signature,
				PubKey:    pubKey,
			},
		}
	}
	return &Verdict{Status: models.VerificationStatusFailed}
}

// decodeZkResult maps the proof oracle response onto the shared verdict.
// An absent digest (zero txHash) means verifying; once a digest is present,
// verified and failed are the only outcomes.
func decodeZkResult(requestID common.Hash, status uint8, pubKey []byte, txHash common.Hash, signature []byte, verified bool, utxos [][]byte) *Verdict {
	if txHash == (common.Hash{}) {
		return &Verdict{Status: models.VerificationStatusVerifying}
	}
	if verified {
		return &Verdict{
			Status: models.VerificationStatusVerified,
			Evidence: &VerifiedEvidence{
				RequestID: requestID,
				TxHash:    txHash,
				Signature: signature,
				PubKey:    pubKey,
				UTXOs:     utxos,
			},
		}
	}
	return &Verdict{Status: models.VerificationStatusFailed}
}
