// File: internal/projector/journal.go
package projector

import (
	"encoding/json"
	"fmt"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// EncodeRecord turns a decoded event into its journal record
func EncodeRecord(event models.ChainEvent) (*models.EventRecord, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeInternal, "Failed to encode event payload", err.Error())
	}

	meta := event.Meta()
	return &models.EventRecord{
		ID:          utils.CreateEventID(meta.BlockHash, meta.TxHash, meta.LogIndex),
		Name:        event.Name(),
		BlockNumber: meta.BlockNumber,
		LogIndex:    meta.LogIndex,
		BlockHash:   meta.BlockHash,
		TxHash:      meta.TxHash,
		Payload:     string(payload),
		Timestamp:   meta.Timestamp,
	}, nil
}

// DecodeRecord restores the typed event from a journal record. Unknown names
// fail with ErrMalformedEvent so a rebuild halts instead of skipping history.
func DecodeRecord(rec *models.EventRecord) (models.ChainEvent, error) {
	var event models.ChainEvent
	switch rec.Name {
	case "DAppRegistered":
		event = &models.DAppRegistered{}
	case "DAppAuthorized":
		event = &models.DAppAuthorized{}
	case "DAppSuspended":
		event = &models.DAppSuspended{}
	case "DAppDeregistered":
		event = &models.DAppDeregistered{}
	case "CompensationClaimed":
		event = &models.CompensationClaimed{}
	case "CompensationWithdrawn":
		event = &models.CompensationWithdrawn{}
	case "ConfigUpdated":
		event = &models.ConfigUpdated{}
	case "Transfer":
		event = &models.NFTTransfer{}
	default:
		return nil, fmt.Errorf("%w: unknown journaled event %s", ErrMalformedEvent, rec.Name)
	}

	if err := json.Unmarshal([]byte(rec.Payload), event); err != nil {
		return nil, fmt.Errorf("%w: journal payload: %s", ErrMalformedEvent, err.Error())
	}
	return event, nil
}
