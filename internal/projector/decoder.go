// File: internal/projector/decoder.go
package projector

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// ErrMalformedEvent is returned for logs that cannot be decoded into the
// arbitration event set. Callers must halt projection rather than skip.
var ErrMalformedEvent = errors.New("malformed ledger event")

// IsMalformed reports whether err stems from an undecodable event
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedEvent)
}

const ledgerEventsABI = `[
	{"type":"event","name":"DAppRegistered","inputs":[{"name":"dapp","type":"address","indexed":true},{"name":"owner","type":"address","indexed":false}],"anonymous":false},
	{"type":"event","name":"DAppAuthorized","inputs":[{"name":"dapp","type":"address","indexed":true}],"anonymous":false},
	{"type":"event","name":"DAppSuspended","inputs":[{"name":"dapp","type":"address","indexed":true}],"anonymous":false},
	{"type":"event","name":"DAppDeregistered","inputs":[{"name":"dapp","type":"address","indexed":true}],"anonymous":false},
	{"type":"event","name":"CompensationClaimed","inputs":[{"name":"claimId","type":"bytes32","indexed":true},{"name":"claimer","type":"address","indexed":true},{"name":"arbiter","type":"address","indexed":false},{"name":"claimType","type":"uint8","indexed":false},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"CompensationWithdrawn","inputs":[{"name":"claimId","type":"bytes32","indexed":true}],"anonymous":false},
	{"type":"event","name":"ConfigUpdated","inputs":[{"name":"key","type":"bytes32","indexed":true},{"name":"value","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"Transfer","inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}],"anonymous":false}
]`

var claimTypeCodes = map[uint8]models.ClaimType{
	0: models.ClaimTypeTimeout,
	1: models.ClaimTypeIllegalSignature,
	2: models.ClaimTypeFailedArbitration,
	3: models.ClaimTypeArbitratorFee,
}

// Decoder turns raw ledger logs into typed arbitration events
type Decoder struct {
	abi    abi.ABI
	byID   map[common.Hash]string
	topics []common.Hash
}

// NewDecoder creates a decoder for the closed arbitration event set
func NewDecoder() (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(ledgerEventsABI))
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to parse ledger events ABI", err.Error())
	}

	d := &Decoder{
		abi:  parsed,
		byID: make(map[common.Hash]string, len(parsed.Events)),
	}
	for name, event := range parsed.Events {
		d.byID[event.ID] = name
		d.topics = append(d.topics, event.ID)
	}
	return d, nil
}

// ABI exposes the parsed event ABI
func (d *Decoder) ABI() abi.ABI {
	return d.abi
}

// Topics returns every event signature the decoder understands, for use in
// log filter queries.
func (d *Decoder) Topics() []common.Hash {
	out := make([]common.Hash, len(d.topics))
	copy(out, d.topics)
	return out
}

// Decode maps one log onto its typed event, stamped with the timestamp of
// the block that emitted it so replays are deterministic. Logs outside the
// known event set or with inconsistent topics fail with ErrMalformedEvent.
func (d *Decoder) Decode(log types.Log, blockTime time.Time) (models.ChainEvent, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("%w: log without topics", ErrMalformedEvent)
	}

	name, ok := d.byID[log.Topics[0]]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event signature %s", ErrMalformedEvent, log.Topics[0].Hex())
	}

	meta := models.EventMeta{
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
		BlockHash:   log.BlockHash.Hex(),
		TxHash:      log.TxHash.Hex(),
		Timestamp:   blockTime.UTC(),
	}

	switch name {
	case "DAppRegistered":
		if err := d.wantTopics(name, log, 2); err != nil {
			return nil, err
		}
		values, err := d.unpackData(name, log)
		if err != nil {
			return nil, err
		}
		return &models.DAppRegistered{
			EventMeta: meta,
			Address:   topicAddress(log.Topics[1]),
			Owner:     values[0].(common.Address).Hex(),
		}, nil

	case "DAppAuthorized", "DAppSuspended", "DAppDeregistered":
		if err := d.wantTopics(name, log, 2); err != nil {
			return nil, err
		}
		address := topicAddress(log.Topics[1])
		switch name {
		case "DAppAuthorized":
			return &models.DAppAuthorized{EventMeta: meta, Address: address}, nil
		case "DAppSuspended":
			return &models.DAppSuspended{EventMeta: meta, Address: address}, nil
		default:
			return &models.DAppDeregistered{EventMeta: meta, Address: address}, nil
		}

	case "CompensationClaimed":
		if err := d.wantTopics(name, log, 3); err != nil {
			return nil, err
		}
		values, err := d.unpackData(name, log)
		if err != nil {
			return nil, err
		}
		code := values[1].(uint8)
		claimType, ok := claimTypeCodes[code]
		if !ok {
			return nil, fmt.Errorf("%w: unknown claim type code %d", ErrMalformedEvent, code)
		}
		return &models.CompensationClaimed{
			EventMeta: meta,
			ClaimID:   log.Topics[1].Hex(),
			Claimer:   topicAddress(log.Topics[2]),
			Arbiter:   values[0].(common.Address).Hex(),
			ClaimType: claimType,
			Amount:    values[2].(*big.Int).String(),
		}, nil

	case "CompensationWithdrawn":
		if err := d.wantTopics(name, log, 2); err != nil {
			return nil, err
		}
		return &models.CompensationWithdrawn{EventMeta: meta, ClaimID: log.Topics[1].Hex()}, nil

	case "ConfigUpdated":
		if err := d.wantTopics(name, log, 2); err != nil {
			return nil, err
		}
		values, err := d.unpackData(name, log)
		if err != nil {
			return nil, err
		}
		value := values[0].(*big.Int)
		if !value.IsInt64() {
			return nil, fmt.Errorf("%w: config value out of range", ErrMalformedEvent)
		}
		return &models.ConfigUpdated{
			EventMeta: meta,
			Key:       log.Topics[1].Hex(),
			Value:     value.Int64(),
		}, nil

	case "Transfer":
		if err := d.wantTopics(name, log, 4); err != nil {
			return nil, err
		}
		return &models.NFTTransfer{
			EventMeta: meta,
			TokenID:   log.Topics[3].Big().String(),
			From:      topicAddress(log.Topics[1]),
			To:        topicAddress(log.Topics[2]),
		}, nil
	}

	return nil, fmt.Errorf("%w: unhandled event %s", ErrMalformedEvent, name)
}

// unpackData decodes the non-indexed arguments of a log
func (d *Decoder) unpackData(name string, log types.Log) ([]interface{}, error) {
	event := d.abi.Events[name]
	nonIndexed := make(abi.Arguments, 0, len(event.Inputs))
	for _, input := range event.Inputs {
		if !input.Indexed {
			nonIndexed = append(nonIndexed, input)
		}
	}
	if len(nonIndexed) == 0 {
		return nil, nil
	}

	values, err := nonIndexed.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s data: %s", ErrMalformedEvent, name, err.Error())
	}
	return values, nil
}

func (d *Decoder) wantTopics(name string, log types.Log, n int) error {
	if len(log.Topics) != n {
		return fmt.Errorf("%w: %s expects %d topics, got %d", ErrMalformedEvent, name, n, len(log.Topics))
	}
	return nil
}

func topicAddress(topic common.Hash) string {
	return common.BytesToAddress(topic.Bytes()).Hex()
}
