// File: internal/claims/submitter.go
package claims

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/internal/oracle"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// Submitter sends a compensation claim to the arbitration ledger once its
// preconditions hold. Implementations wait for the claim transaction to be
// mined before returning.
type Submitter interface {
	SubmitClaim(ctx context.Context, req *Request, evidence *oracle.VerifiedEvidence) (common.Hash, error)
}

const compensationManagerABI = `[
	{"type":"function","name":"claimTimeoutCompensation","inputs":[{"name":"id","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"claimFailedArbitrationCompensation","inputs":[{"name":"evidence","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"claimIllegalSignatureCompensation","inputs":[{"name":"arbitrator","type":"address"},{"name":"evidence","type":"bytes32"}],"outputs":[]},
	{"type":"function","name":"claimArbitratorFee","inputs":[{"name":"id","type":"bytes32"}],"outputs":[]}
]`

// ManagerSubmitter submits claims to the compensation manager contract
type ManagerSubmitter struct {
	backend oracle.Backend
	address common.Address
	abi     abi.ABI
	logger  *logrus.Entry
}

// NewManagerSubmitter creates a submitter bound to the compensation manager
// at the given address.
func NewManagerSubmitter(backend oracle.Backend, address common.Address) (*ManagerSubmitter, error) {
	parsed, err := abi.JSON(strings.NewReader(compensationManagerABI))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to parse compensation manager ABI", err.Error())
	}

	return &ManagerSubmitter{
		backend: backend,
		address: address,
		abi:     parsed,
		logger:  utils.ComponentLogger("claims.submitter"),
	}, nil
}

// SubmitClaim encodes and sends the claim matching the request's type.
// Oracle-backed claim types pass the oracle request id as on-chain evidence;
// the compensation manager resolves the verification record by that handle.
func (m *ManagerSubmitter) SubmitClaim(ctx context.Context, req *Request, evidence *oracle.VerifiedEvidence) (common.Hash, error) {
	var (
		input []byte
		err   error
	)

	switch req.Type {
	case models.ClaimTypeTimeout:
		input, err = m.abi.Pack("claimTimeoutCompensation", req.TransactionID)
	case models.ClaimTypeArbitratorFee:
		input, err = m.abi.Pack("claimArbitratorFee", req.TransactionID)
	case models.ClaimTypeIllegalSignature:
		if evidence == nil || evidence.RequestID == (common.Hash{}) {
			return common.Hash{}, utils.NewAppError(utils.ErrCodeValidation,
				"Illegal signature claim requires verified evidence", "")
		}
		input, err = m.abi.Pack("claimIllegalSignatureCompensation", req.Arbiter, evidence.RequestID)
	case models.ClaimTypeFailedArbitration:
		if evidence == nil || evidence.RequestID == (common.Hash{}) {
			return common.Hash{}, utils.NewAppError(utils.ErrCodeValidation,
				"Failed arbitration claim requires verified evidence", "")
		}
		input, err = m.abi.Pack("claimFailedArbitrationCompensation", evidence.RequestID)
	default:
		return common.Hash{}, utils.NewAppError(utils.ErrCodeValidation,
			"Unknown claim type", string(req.Type))
	}
	if err != nil {
		return common.Hash{}, utils.NewAppError(utils.ErrCodeValidation, "Failed to encode claim", err.Error())
	}

	logs, err := m.backend.SubmitTransaction(ctx, m.address, input)
	if err != nil {
		return common.Hash{}, utils.NewAppError(utils.ErrCodeLedger, "Claim transaction failed", err.Error())
	}

	var txHash common.Hash
	if len(logs) > 0 {
		txHash = logs[0].TxHash
	}

	m.logger.WithFields(logrus.Fields{
		"claim_type":     req.Type,
		"transaction_id": req.TransactionID.Hex(),
		"tx_hash":        txHash.Hex(),
	}).Info("Compensation claim submitted")

	return txHash, nil
}
