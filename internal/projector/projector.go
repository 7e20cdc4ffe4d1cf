// File: internal/projector/projector.go
package projector

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
	"github.com/arbiterdevs/btc-arbitration/pkg/utils"
)

// EntityStore is the projected-state storage the projector writes through.
// Get methods return (nil, nil) when the entity does not exist.
type EntityStore interface {
	GetDApp(address string) (*models.DApp, error)
	PutDApp(dapp *models.DApp) error
	GetClaim(id string) (*models.CompensationClaim, error)
	PutClaim(claim *models.CompensationClaim) error
	GetConfigEntry(key string) (*models.ConfigEntry, error)
	PutConfigEntry(entry *models.ConfigEntry) error
	GetNFTOwnership(tokenID string) (*models.NFTOwnership, error)
	PutNFTOwnership(ownership *models.NFTOwnership) error
}

// Projector folds ordered ledger events into the projected entity tables.
// Every handler is an idempotent create-or-update, so replaying the full
// event history yields the same state as incremental application.
type Projector struct {
	store  EntityStore
	logger *logrus.Entry

	mu      sync.RWMutex
	applied uint64
	errors  uint64
}

// New creates a projector writing through the given store
func New(store EntityStore) *Projector {
	return &Projector{
		store:  store,
		logger: utils.ComponentLogger("projector"),
	}
}

// Apply folds one event into the projected state
func (p *Projector) Apply(event models.ChainEvent) error {
	var err error
	switch ev := event.(type) {
	case *models.DAppRegistered:
		err = p.applyDAppRegistered(ev)
	case *models.DAppAuthorized:
		err = p.applyDAppStatus(ev.Address, models.DAppStatusActive, ev.EventMeta)
	case *models.DAppSuspended:
		err = p.applyDAppStatus(ev.Address, models.DAppStatusSuspended, ev.EventMeta)
	case *models.DAppDeregistered:
		err = p.applyDAppStatus(ev.Address, models.DAppStatusTerminated, ev.EventMeta)
	case *models.CompensationClaimed:
		err = p.applyCompensationClaimed(ev)
	case *models.CompensationWithdrawn:
		err = p.applyCompensationWithdrawn(ev)
	case *models.ConfigUpdated:
		err = p.applyConfigUpdated(ev)
	case *models.NFTTransfer:
		err = p.applyNFTTransfer(ev)
	default:
		err = fmt.Errorf("%w: unsupported event type %T", ErrMalformedEvent, event)
	}

	p.mu.Lock()
	if err != nil {
		p.errors++
	} else {
		p.applied++
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.WithError(err).WithField("event", event.Name()).Error("Projection failed")
		return err
	}
	return nil
}

// Replay applies a batch in (block, index) order, halting at the first
// failure. The input slice is not modified.
func (p *Projector) Replay(events []models.ChainEvent) error {
	ordered := make([]models.ChainEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Meta().Before(ordered[j].Meta())
	})

	for _, event := range ordered {
		if err := p.Apply(event); err != nil {
			return err
		}
	}

	p.logger.WithField("events", len(ordered)).Info("Event batch replayed")
	return nil
}

func (p *Projector) applyDAppRegistered(ev *models.DAppRegistered) error {
	dapp, err := p.store.GetDApp(ev.Address)
	if err != nil {
		return err
	}
	if dapp == nil {
		dapp = &models.DApp{Address: ev.Address}
	}
	dapp.Owner = ev.Owner
	dapp.Status = models.DAppStatusPending
	dapp.UpdatedAt = ev.Timestamp
	return p.store.PutDApp(dapp)
}

func (p *Projector) applyDAppStatus(address string, status models.DAppStatus, meta models.EventMeta) error {
	dapp, err := p.store.GetDApp(address)
	if err != nil {
		return err
	}
	if dapp == nil {
		dapp = &models.DApp{Address: address}
	}
	dapp.Status = status
	dapp.UpdatedAt = meta.Timestamp
	return p.store.PutDApp(dapp)
}

func (p *Projector) applyCompensationClaimed(ev *models.CompensationClaimed) error {
	claim, err := p.store.GetClaim(ev.ClaimID)
	if err != nil {
		return err
	}
	if claim == nil {
		claim = &models.CompensationClaim{ID: ev.ClaimID}
	}
	// Withdrawn is monotone; a replayed claim event never resurrects funds.
	claim.ClaimType = ev.ClaimType
	claim.Claimer = ev.Claimer
	claim.Arbiter = ev.Arbiter
	claim.Amount = ev.Amount
	claim.UpdatedAt = ev.Timestamp
	return p.store.PutClaim(claim)
}

func (p *Projector) applyCompensationWithdrawn(ev *models.CompensationWithdrawn) error {
	claim, err := p.store.GetClaim(ev.ClaimID)
	if err != nil {
		return err
	}
	if claim == nil {
		claim = &models.CompensationClaim{ID: ev.ClaimID, ClaimType: models.ClaimTypeUnknown}
	}
	claim.Withdrawn = true
	claim.UpdatedAt = ev.Timestamp
	return p.store.PutClaim(claim)
}

func (p *Projector) applyConfigUpdated(ev *models.ConfigUpdated) error {
	return p.store.PutConfigEntry(&models.ConfigEntry{
		Key:       ev.Key,
		Value:     ev.Value,
		UpdatedAt: ev.Timestamp,
	})
}

func (p *Projector) applyNFTTransfer(ev *models.NFTTransfer) error {
	return p.store.PutNFTOwnership(&models.NFTOwnership{
		TokenID:   ev.TokenID,
		Owner:     ev.To,
		UpdatedAt: ev.Timestamp,
	})
}

// GetStats returns projection statistics
func (p *Projector) GetStats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"events_applied": p.applied,
		"event_errors":   p.errors,
	}
}
