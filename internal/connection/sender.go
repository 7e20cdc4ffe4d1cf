// File: internal/connection/sender.go
package connection

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// Sender signs and submits ledger transactions and waits for them to be
// mined. It satisfies the oracle backend contract: read-only calls plus
// submissions returning receipt logs.
type Sender struct {
	manager  *ConnectionManager
	key      *ecdsa.PrivateKey
	from     common.Address
	gasLimit uint64
	logger   *logrus.Entry
}

// NewSender creates a sender from a hex-encoded private key
func NewSender(manager *ConnectionManager, privateKeyHex string, gasLimit uint64) (*Sender, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Invalid ledger private key", err.Error())
	}

	return &Sender{
		manager:  manager,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		gasLimit: gasLimit,
		logger:   utils.ComponentLogger("connection.sender"),
	}, nil
}

// From returns the sending address
func (s *Sender) From() common.Address {
	return s.from
}

// CallContract performs a read-only contract call
func (s *Sender) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	client, err := s.manager.GetClientWithContext(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := client.CallContract(ctx, call, blockNumber)
	s.recordRPC("eth_call", start, err)
	return out, err
}

func (s *Sender) recordRPC(method string, start time.Time, err error) {
	m := s.manager.metricsManager
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.GetPrometheusMetrics().RecordRPCRequest(s.manager.stats.CurrentURL, method, status, time.Since(start))
}

// SubmitTransaction signs and sends a transaction, waits for it to be mined
// and returns the receipt logs. A reverted transaction is an error.
func (s *Sender) SubmitTransaction(ctx context.Context, to common.Address, input []byte) ([]*types.Log, error) {
	client, err := s.manager.GetClientWithContext(ctx)
	if err != nil {
		return nil, err
	}

	chainID, err := client.NetworkID(ctx)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to get chain ID", err.Error())
	}

	nonce, err := client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to get pending nonce", err.Error())
	}

	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to get gas price", err.Error())
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      s.gasLimit,
		GasPrice: gasPrice,
		Data:     input,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), s.key)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to sign transaction", err.Error())
	}

	sendStart := time.Now()
	err = client.SendTransaction(ctx, signed)
	s.recordRPC("eth_sendRawTransaction", sendStart, err)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeLedger, "Failed to send transaction", err.Error())
	}

	s.logger.WithFields(logrus.Fields{
		"tx_hash": signed.Hash().Hex(),
		"to":      to.Hex(),
		"nonce":   nonce,
	}).Info("Transaction submitted, waiting for inclusion")

	receipt, err := bind.WaitMined(ctx, client, signed)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeLedger, "Failed waiting for transaction", err.Error())
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, utils.NewAppError(utils.ErrCodeLedger, "Transaction reverted", signed.Hash().Hex())
	}

	return receipt.Logs, nil
}
