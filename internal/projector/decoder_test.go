package projector

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
)

var testBlockTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func addrTopic(a common.Address) common.Hash {
	return common.BytesToHash(a.Bytes())
}

func packData(t *testing.T, d *Decoder, event string, args ...interface{}) []byte {
	t.Helper()
	nonIndexed := make(abi.Arguments, 0)
	for _, input := range d.abi.Events[event].Inputs {
		if !input.Indexed {
			nonIndexed = append(nonIndexed, input)
		}
	}
	data, err := nonIndexed.Pack(args...)
	require.NoError(t, err)
	return data
}

func TestDecodeDAppRegistered(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	dapp := common.HexToAddress(dappAddr)
	owner := common.HexToAddress(ownerAddr)

	log := types.Log{
		BlockNumber: 100,
		Index:       3,
		Topics:      []common.Hash{d.abi.Events["DAppRegistered"].ID, addrTopic(dapp)},
		Data:        packData(t, d, "DAppRegistered", owner),
	}

	event, err := d.Decode(log, testBlockTime)
	require.NoError(t, err)

	registered, ok := event.(*models.DAppRegistered)
	require.True(t, ok)
	assert.Equal(t, dapp.Hex(), registered.Address)
	assert.Equal(t, owner.Hex(), registered.Owner)
	assert.Equal(t, uint64(100), registered.BlockNumber)
	assert.Equal(t, uint(3), registered.LogIndex)
	assert.Equal(t, testBlockTime, registered.Timestamp, "events carry their block timestamp")
}

func TestDecodeStatusEvents(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	dapp := common.HexToAddress(dappAddr)
	tests := []struct {
		event string
		want  string
	}{
		{"DAppAuthorized", "DAppAuthorized"},
		{"DAppSuspended", "DAppSuspended"},
		{"DAppDeregistered", "DAppDeregistered"},
	}

	for _, tt := range tests {
		event, err := d.Decode(types.Log{
			Topics: []common.Hash{d.abi.Events[tt.event].ID, addrTopic(dapp)},
		}, testBlockTime)
		require.NoError(t, err, tt.event)
		assert.Equal(t, tt.want, event.Name())
	}
}

func TestDecodeCompensationClaimed(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	id := common.HexToHash(claimID)
	claimer := common.HexToAddress(ownerAddr)
	arbiter := common.HexToAddress(dappAddr)

	log := types.Log{
		Topics: []common.Hash{d.abi.Events["CompensationClaimed"].ID, id, addrTopic(claimer)},
		Data:   packData(t, d, "CompensationClaimed", arbiter, uint8(1), big.NewInt(2500)),
	}

	event, err := d.Decode(log, testBlockTime)
	require.NoError(t, err)

	claimed, ok := event.(*models.CompensationClaimed)
	require.True(t, ok)
	assert.Equal(t, id.Hex(), claimed.ClaimID)
	assert.Equal(t, claimer.Hex(), claimed.Claimer)
	assert.Equal(t, arbiter.Hex(), claimed.Arbiter)
	assert.Equal(t, models.ClaimTypeIllegalSignature, claimed.ClaimType)
	assert.Equal(t, "2500", claimed.Amount)
}

func TestDecodeRejectsUnknownClaimTypeCode(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	log := types.Log{
		Topics: []common.Hash{
			d.abi.Events["CompensationClaimed"].ID,
			common.HexToHash(claimID),
			addrTopic(common.HexToAddress(ownerAddr)),
		},
		Data: packData(t, d, "CompensationClaimed", common.HexToAddress(dappAddr), uint8(9), big.NewInt(1)),
	}

	_, err = d.Decode(log, testBlockTime)
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestDecodeConfigUpdated(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	key := common.HexToHash("0x66")
	log := types.Log{
		Topics: []common.Hash{d.abi.Events["ConfigUpdated"].ID, key},
		Data:   packData(t, d, "ConfigUpdated", big.NewInt(42)),
	}

	event, err := d.Decode(log, testBlockTime)
	require.NoError(t, err)

	updated, ok := event.(*models.ConfigUpdated)
	require.True(t, ok)
	assert.Equal(t, key.Hex(), updated.Key)
	assert.Equal(t, int64(42), updated.Value)
}

func TestDecodeNFTTransfer(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	from := common.HexToAddress(dappAddr)
	to := common.HexToAddress(ownerAddr)
	tokenID := common.BigToHash(big.NewInt(7))

	event, err := d.Decode(types.Log{
		Topics: []common.Hash{d.abi.Events["Transfer"].ID, addrTopic(from), addrTopic(to), tokenID},
	}, testBlockTime)
	require.NoError(t, err)

	transfer, ok := event.(*models.NFTTransfer)
	require.True(t, ok)
	assert.Equal(t, "7", transfer.TokenID)
	assert.Equal(t, from.Hex(), transfer.From)
	assert.Equal(t, to.Hex(), transfer.To)
}

func TestDecodeMalformedLogs(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)

	tests := []struct {
		name string
		log  types.Log
	}{
		{"no topics", types.Log{}},
		{"unknown signature", types.Log{Topics: []common.Hash{common.HexToHash("0xdead")}}},
		{"missing indexed topic", types.Log{Topics: []common.Hash{d.abi.Events["DAppAuthorized"].ID}}},
		{"truncated data", types.Log{
			Topics: []common.Hash{d.abi.Events["DAppRegistered"].ID, addrTopic(common.HexToAddress(dappAddr))},
			Data:   []byte{0x01},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Decode(tt.log, testBlockTime)
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestDecoderTopics(t *testing.T) {
	d, err := NewDecoder()
	require.NoError(t, err)
	assert.Len(t, d.Topics(), 8)
}
