// File: internal/oracle/client.go
package oracle

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// ErrSubmissionRejected is returned when the oracle rejects evidence
// synchronously. Rejected submissions are never retried automatically.
var ErrSubmissionRejected = errors.New("oracle rejected evidence submission")

// SignatureType selects the signature scheme the validation oracle checks
type SignatureType uint8

const (
	SignatureTypeECDSA   SignatureType = 0
	SignatureTypeSchnorr SignatureType = 1
)

// Evidence is the oracle-specific payload of a verification request
type Evidence interface {
	Kind() models.OracleKind
}

// ProofEvidence is submitted to the proof oracle
type ProofEvidence struct {
	PubKey         []byte
	RawTx          []byte
	UTXOs          [][]byte
	InputIndex     uint32
	SignatureIndex uint32
}

func (ProofEvidence) Kind() models.OracleKind { return models.OracleKindZkProof }

// SignatureEvidence is submitted to the signature-validation oracle
type SignatureEvidence struct {
	MsgHash   common.Hash
	SignType  SignatureType
	Signature []byte
	PubKey    []byte
}

func (SignatureEvidence) Kind() models.OracleKind { return models.OracleKindSignatureValidation }

// Backend abstracts the EVM ledger access an oracle client needs: read-only
// contract calls and signed submission transactions whose receipt logs carry
// the oracle-assigned request id.
type Backend interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SubmitTransaction(ctx context.Context, to common.Address, input []byte) ([]*types.Log, error)
}

// Client drives one verification oracle through submit → poll → terminal
// verdict.
type Client interface {
	Kind() models.OracleKind
	Submit(ctx context.Context, evidence Evidence) (common.Hash, error)
	Poll(ctx context.Context, requestID common.Hash) (*Verdict, error)
}

const signatureOracleABI = `[
	{"type":"function","name":"submit","inputs":[{"name":"msgHash","type":"bytes32"},{"name":"signType","type":"uint8"},{"name":"signature","type":"bytes"},{"name":"pubKey","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"getVerificationResult","stateMutability":"view","inputs":[{"name":"requestId","type":"bytes32"}],"outputs":[{"name":"verified","type":"bool"},{"name":"msgHash","type":"bytes32"},{"name":"signature","type":"bytes"},{"name":"pubKey","type":"bytes"}]},
	{"type":"event","name":"SubmissionStored","inputs":[{"name":"requestId","type":"bytes32","indexed":true}],"anonymous":false}
]`

const zkOracleABI = `[
	{"type":"function","name":"submitArbitration","inputs":[{"name":"pubKey","type":"bytes"},{"name":"rawTx","type":"bytes"},{"name":"utxos","type":"bytes[]"},{"name":"inputIndex","type":"uint256"},{"name":"signatureIndex","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"getZkVerification","stateMutability":"view","inputs":[{"name":"requestId","type":"bytes32"}],"outputs":[{"name":"status","type":"uint8"},{"name":"pubKey","type":"bytes"},{"name":"txHash","type":"bytes32"},{"name":"signature","type":"bytes"},{"name":"verified","type":"bool"},{"name":"utxos","type":"bytes[]"}]},
	{"type":"event","name":"ArbitrationSubmitted","inputs":[{"name":"requestId","type":"bytes32","indexed":true}],"anonymous":false}
]`

// contractClient is the shared submit/poll machinery behind both oracle
// kinds; only the ABI, addresses and decode step differ.
type contractClient struct {
	kind        models.OracleKind
	backend     Backend
	address     common.Address
	abi         abi.ABI
	storedTopic common.Hash
	logger      *logrus.Entry
}

// SignatureClient talks to the signature-validation oracle
type SignatureClient struct {
	contractClient
}

// NewSignatureClient creates a client for the signature-validation oracle
func NewSignatureClient(backend Backend, address common.Address) (*SignatureClient, error) {
	parsed, err := abi.JSON(strings.NewReader(signatureOracleABI))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to parse signature oracle ABI", err.Error())
	}

	return &SignatureClient{contractClient{
		kind:        models.OracleKindSignatureValidation,
		backend:     backend,
		address:     address,
		abi:         parsed,
		storedTopic: parsed.Events["SubmissionStored"].ID,
		logger:      utils.ComponentLogger("oracle.signature"),
	}}, nil
}

// Kind returns the oracle kind
func (c *SignatureClient) Kind() models.OracleKind { return c.kind }

// Submit sends signature evidence to the oracle and returns the request id
// recovered from the submission receipt.
func (c *SignatureClient) Submit(ctx context.Context, evidence Evidence) (common.Hash, error) {
	sigEv, ok := evidence.(SignatureEvidence)
	if !ok {
		return common.Hash{}, utils.NewAppError(utils.ErrCodeValidation,
			"Wrong evidence type for signature oracle", fmt.Sprintf("%T", evidence))
	}

	input, err := c.abi.Pack("submit", sigEv.MsgHash, uint8(sigEv.SignType), sigEv.Signature, sigEv.PubKey)
	if err != nil {
		return common.Hash{}, utils.NewAppError(utils.ErrCodeValidation, "Failed to encode evidence", err.Error())
	}

	return c.submitAndRecoverID(ctx, input)
}

// Poll reads the current verification status for a request
func (c *SignatureClient) Poll(ctx context.Context, requestID common.Hash) (*Verdict, error) {
	data, err := c.call(ctx, "getVerificationResult", requestID)
	if err != nil {
		return nil, err
	}

	results, err := c.abi.Unpack("getVerificationResult", data)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeOracle, "Failed to decode oracle response", err.Error())
	}

	verified := results[0].(bool)
	msgHash := results[1].([32]byte)
	signature := results[2].([]byte)
	pubKey := results[3].([]byte)

	return decodeSignatureResult(requestID, verified, common.Hash(msgHash), signature, pubKey), nil
}

// ZkProofClient talks to the proof oracle
type ZkProofClient struct {
	contractClient
}

// NewZkProofClient creates a client for the proof oracle
func NewZkProofClient(backend Backend, address common.Address) (*ZkProofClient, error) {
	parsed, err := abi.JSON(strings.NewReader(zkOracleABI))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to parse zk oracle ABI", err.Error())
	}

	return &ZkProofClient{contractClient{
		kind:        models.OracleKindZkProof,
		backend:     backend,
		address:     address,
		abi:         parsed,
		storedTopic: parsed.Events["ArbitrationSubmitted"].ID,
		logger:      utils.ComponentLogger("oracle.zkproof"),
	}}, nil
}

// Kind returns the oracle kind
func (c *ZkProofClient) Kind() models.OracleKind { return c.kind }

// Submit sends proof evidence to the oracle and returns the request id
// recovered from the submission receipt.
func (c *ZkProofClient) Submit(ctx context.Context, evidence Evidence) (common.Hash, error) {
	proofEv, ok := evidence.(ProofEvidence)
	if !ok {
		return common.Hash{}, utils.NewAppError(utils.ErrCodeValidation,
			"Wrong evidence type for proof oracle", fmt.Sprintf("%T", evidence))
	}

	input, err := c.abi.Pack("submitArbitration",
		proofEv.PubKey, proofEv.RawTx, proofEv.UTXOs,
		new(big.Int).SetUint64(uint64(proofEv.InputIndex)),
		new(big.Int).SetUint64(uint64(proofEv.SignatureIndex)))
	if err != nil {
		return common.Hash{}, utils.NewAppError(utils.ErrCodeValidation, "Failed to encode evidence", err.Error())
	}

	return c.submitAndRecoverID(ctx, input)
}

// Poll reads the current verification status for a request
func (c *ZkProofClient) Poll(ctx context.Context, requestID common.Hash) (*Verdict, error) {
	data, err := c.call(ctx, "getZkVerification", requestID)
	if err != nil {
		return nil, err
	}

	results, err := c.abi.Unpack("getZkVerification", data)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeOracle, "Failed to decode oracle response", err.Error())
	}

	status := results[0].(uint8)
	pubKey := results[1].([]byte)
	txHash := results[2].([32]byte)
	signature := results[3].([]byte)
	verified := results[4].(bool)
	utxos := results[5].([][]byte)

	return decodeZkResult(requestID, status, pubKey, common.Hash(txHash), signature, verified, utxos), nil
}

// call performs a read-only contract call
func (c *contractClient) call(ctx context.Context, method string, args ...interface{}) ([]byte, error) {
	input, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Failed to encode call", err.Error())
	}

	data, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: input}, nil)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeOracle, "Oracle status call failed", err.Error())
	}
	return data, nil
}

// submitAndRecoverID sends the submission transaction and extracts the
// oracle-assigned request id from the emitted stored/submitted log. The id
// is not part of the call's return value.
func (c *contractClient) submitAndRecoverID(ctx context.Context, input []byte) (common.Hash, error) {
	logs, err := c.backend.SubmitTransaction(ctx, c.address, input)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %s", ErrSubmissionRejected, err.Error())
	}

	for _, log := range logs {
		if log.Address == c.address && len(log.Topics) >= 2 && log.Topics[0] == c.storedTopic {
			requestID := log.Topics[1]
			c.logger.WithFields(logrus.Fields{
				"request_id": requestID.Hex(),
				"tx_hash":    log.TxHash.Hex(),
			}).Info("Evidence submitted to oracle")
			return requestID, nil
		}
	}

	return common.Hash{}, utils.NewAppError(utils.ErrCodeOracle,
		"Submission receipt carried no request id", c.address.Hex())
}
