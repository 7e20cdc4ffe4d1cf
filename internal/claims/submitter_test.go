package claims

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/internal/oracle"
)

var testManagerAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")

type captureBackend struct {
	to        common.Address
	input     []byte
	submitErr error
}

func (b *captureBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (b *captureBackend) SubmitTransaction(ctx context.Context, to common.Address, input []byte) ([]*types.Log, error) {
	b.to = to
	b.input = input
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	return []*types.Log{{TxHash: testClaimTx}}, nil
}

func TestManagerSubmitterMethodSelection(t *testing.T) {
	backend := &captureBackend{}
	submitter, err := NewManagerSubmitter(backend, testManagerAddr)
	require.NoError(t, err)

	tests := []struct {
		name     string
		req      *Request
		evidence *oracle.VerifiedEvidence
		method   string
	}{
		{
			name:   "timeout",
			req:    &Request{TransactionID: testTxID, Type: models.ClaimTypeTimeout},
			method: "claimTimeoutCompensation",
		},
		{
			name:   "arbitrator fee",
			req:    &Request{TransactionID: testTxID, Type: models.ClaimTypeArbitratorFee},
			method: "claimArbitratorFee",
		},
		{
			name:     "illegal signature",
			req:      &Request{TransactionID: testTxID, Type: models.ClaimTypeIllegalSignature, Arbiter: testArbiter},
			evidence: &oracle.VerifiedEvidence{RequestID: testRequestID, MsgHash: testMsgHash},
			method:   "claimIllegalSignatureCompensation",
		},
		{
			name:     "failed arbitration",
			req:      &Request{TransactionID: testTxID, Type: models.ClaimTypeFailedArbitration},
			evidence: &oracle.VerifiedEvidence{RequestID: testRequestID, TxHash: testTxID},
			method:   "claimFailedArbitrationCompensation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txHash, err := submitter.SubmitClaim(context.Background(), tt.req, tt.evidence)
			require.NoError(t, err)
			assert.Equal(t, testClaimTx, txHash)
			assert.Equal(t, testManagerAddr, backend.to)
			assert.Equal(t, submitter.abi.Methods[tt.method].ID, backend.input[:4])
		})
	}
}

// The contract resolves the verification record by request id, so the packed
// evidence argument must be the oracle request id, never the verified digest.
func TestManagerSubmitterPacksRequestIDAsEvidence(t *testing.T) {
	backend := &captureBackend{}
	submitter, err := NewManagerSubmitter(backend, testManagerAddr)
	require.NoError(t, err)

	evidence := &oracle.VerifiedEvidence{RequestID: testRequestID, MsgHash: testMsgHash, TxHash: testTxID}

	_, err = submitter.SubmitClaim(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeIllegalSignature,
		Arbiter:       testArbiter,
	}, evidence)
	require.NoError(t, err)

	method := submitter.abi.Methods["claimIllegalSignatureCompensation"]
	args, err := method.Inputs.Unpack(backend.input[4:])
	require.NoError(t, err)
	assert.Equal(t, testArbiter, args[0].(common.Address))
	assert.Equal(t, testRequestID, common.Hash(args[1].([32]byte)))

	_, err = submitter.SubmitClaim(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeFailedArbitration,
	}, evidence)
	require.NoError(t, err)

	method = submitter.abi.Methods["claimFailedArbitrationCompensation"]
	args, err = method.Inputs.Unpack(backend.input[4:])
	require.NoError(t, err)
	assert.Equal(t, testRequestID, common.Hash(args[0].([32]byte)))
}

func TestManagerSubmitterRequiresEvidence(t *testing.T) {
	submitter, err := NewManagerSubmitter(&captureBackend{}, testManagerAddr)
	require.NoError(t, err)

	_, err = submitter.SubmitClaim(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeIllegalSignature,
	}, nil)
	assert.Error(t, err)

	_, err = submitter.SubmitClaim(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeFailedArbitration,
	}, nil)
	assert.Error(t, err)

	// Evidence without an oracle request id is equally unusable on-chain.
	_, err = submitter.SubmitClaim(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeIllegalSignature,
		Arbiter:       testArbiter,
	}, &oracle.VerifiedEvidence{MsgHash: testMsgHash})
	assert.Error(t, err)
}

func TestManagerSubmitterRejectsUnknownType(t *testing.T) {
	submitter, err := NewManagerSubmitter(&captureBackend{}, testManagerAddr)
	require.NoError(t, err)

	_, err = submitter.SubmitClaim(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeUnknown,
	}, nil)
	assert.Error(t, err)
}

func TestManagerSubmitterPropagatesLedgerFailure(t *testing.T) {
	backend := &captureBackend{submitErr: errors.New("insufficient funds")}
	submitter, err := NewManagerSubmitter(backend, testManagerAddr)
	require.NoError(t, err)

	_, err = submitter.SubmitClaim(context.Background(), &Request{
		TransactionID: testTxID,
		Type:          models.ClaimTypeTimeout,
	}, nil)
	assert.Error(t, err)
}
