package projector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
)

// memStore is an in-memory EntityStore for projection tests
type memStore struct {
	dapps  map[string]*models.DApp
	claims map[string]*models.CompensationClaim
	config map[string]*models.ConfigEntry
	nfts   map[string]*models.NFTOwnership
	putOps int
}

func newMemStore() *memStore {
	return &memStore{
		dapps:  make(map[string]*models.DApp),
		claims: make(map[string]*models.CompensationClaim),
		config: make(map[string]*models.ConfigEntry),
		nfts:   make(map[string]*models.NFTOwnership),
	}
}

func (m *memStore) GetDApp(address string) (*models.DApp, error) {
	if d, ok := m.dapps[address]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) PutDApp(d *models.DApp) error {
	m.putOps++
	copied := *d
	m.dapps[d.Address] = &copied
	return nil
}

func (m *memStore) GetClaim(id string) (*models.CompensationClaim, error) {
	if c, ok := m.claims[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) PutClaim(c *models.CompensationClaim) error {
	m.putOps++
	copied := *c
	m.claims[c.ID] = &copied
	return nil
}

func (m *memStore) GetConfigEntry(key string) (*models.ConfigEntry, error) {
	if e, ok := m.config[key]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) PutConfigEntry(e *models.ConfigEntry) error {
	m.putOps++
	copied := *e
	m.config[e.Key] = &copied
	return nil
}

func (m *memStore) GetNFTOwnership(tokenID string) (*models.NFTOwnership, error) {
	if n, ok := m.nfts[tokenID]; ok {
		copied := *n
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) PutNFTOwnership(n *models.NFTOwnership) error {
	m.putOps++
	copied := *n
	m.nfts[n.TokenID] = &copied
	return nil
}

func meta(block uint64, index uint) models.EventMeta {
	return models.EventMeta{
		BlockNumber: block,
		LogIndex:    index,
		Timestamp:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(block) * time.Second),
	}
}

const (
	dappAddr  = "0x1111111111111111111111111111111111111111"
	ownerAddr = "0x2222222222222222222222222222222222222222"
	claimID   = "0x3333333333333333333333333333333333333333333333333333333333333333"
)

func TestDAppLifecycle(t *testing.T) {
	store := newMemStore()
	p := New(store)

	events := []models.ChainEvent{
		&models.DAppRegistered{EventMeta: meta(1, 0), Address: dappAddr, Owner: ownerAddr},
		&models.DAppAuthorized{EventMeta: meta(2, 0), Address: dappAddr},
		&models.DAppSuspended{EventMeta: meta(3, 0), Address: dappAddr},
	}
	for _, ev := range events {
		require.NoError(t, p.Apply(ev))
	}

	dapp, err := store.GetDApp(dappAddr)
	require.NoError(t, err)
	require.NotNil(t, dapp)
	assert.Equal(t, models.DAppStatusSuspended, dapp.Status)
	assert.Equal(t, ownerAddr, dapp.Owner)
}

func TestDAppOrderSensitivity(t *testing.T) {
	// Applying the same events in reverse leaves the dapp pending: the
	// projector folds whatever order the feed supplies.
	store := newMemStore()
	p := New(store)

	require.NoError(t, p.Apply(&models.DAppSuspended{EventMeta: meta(3, 0), Address: dappAddr}))
	require.NoError(t, p.Apply(&models.DAppRegistered{EventMeta: meta(1, 0), Address: dappAddr, Owner: ownerAddr}))

	dapp, err := store.GetDApp(dappAddr)
	require.NoError(t, err)
	assert.Equal(t, models.DAppStatusPending, dapp.Status)
}

func TestApplyIsIdempotent(t *testing.T) {
	store := newMemStore()
	p := New(store)

	ev := &models.DAppRegistered{EventMeta: meta(1, 0), Address: dappAddr, Owner: ownerAddr}
	require.NoError(t, p.Apply(ev))
	first, err := store.GetDApp(dappAddr)
	require.NoError(t, err)

	require.NoError(t, p.Apply(ev))
	second, err := store.GetDApp(dappAddr)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWithdrawnIsMonotone(t *testing.T) {
	store := newMemStore()
	p := New(store)

	// Withdrawal observed before its claim still marks the claim withdrawn,
	// and a later claim event cannot revert it.
	require.NoError(t, p.Apply(&models.CompensationWithdrawn{EventMeta: meta(5, 0), ClaimID: claimID}))

	claim, err := store.GetClaim(claimID)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.True(t, claim.Withdrawn)
	assert.Equal(t, models.ClaimTypeUnknown, claim.ClaimType)

	require.NoError(t, p.Apply(&models.CompensationClaimed{
		EventMeta: meta(4, 0),
		ClaimID:   claimID,
		Claimer:   ownerAddr,
		Arbiter:   dappAddr,
		ClaimType: models.ClaimTypeTimeout,
		Amount:    "1000",
	}))

	claim, err = store.GetClaim(claimID)
	require.NoError(t, err)
	assert.True(t, claim.Withdrawn, "withdrawn must survive a replayed claim event")
	assert.Equal(t, models.ClaimTypeTimeout, claim.ClaimType)
	assert.Equal(t, "1000", claim.Amount)
}

func TestConfigLastWriteWins(t *testing.T) {
	store := newMemStore()
	p := New(store)

	key := "0x4444444444444444444444444444444444444444444444444444444444444444"
	require.NoError(t, p.Apply(&models.ConfigUpdated{EventMeta: meta(1, 0), Key: key, Value: 10}))
	require.NoError(t, p.Apply(&models.ConfigUpdated{EventMeta: meta(2, 0), Key: key, Value: 20}))

	entry, err := store.GetConfigEntry(key)
	require.NoError(t, err)
	assert.Equal(t, int64(20), entry.Value)
}

func TestNFTTransferChain(t *testing.T) {
	store := newMemStore()
	p := New(store)

	require.NoError(t, p.Apply(&models.NFTTransfer{EventMeta: meta(1, 0), TokenID: "7", From: dappAddr, To: ownerAddr}))
	require.NoError(t, p.Apply(&models.NFTTransfer{EventMeta: meta(2, 0), TokenID: "7", From: ownerAddr, To: dappAddr}))

	nft, err := store.GetNFTOwnership("7")
	require.NoError(t, err)
	assert.Equal(t, dappAddr, nft.Owner)
}

func TestReplayMatchesIncremental(t *testing.T) {
	events := []models.ChainEvent{
		&models.DAppRegistered{EventMeta: meta(1, 0), Address: dappAddr, Owner: ownerAddr},
		&models.DAppAuthorized{EventMeta: meta(2, 0), Address: dappAddr},
		&models.CompensationClaimed{EventMeta: meta(3, 0), ClaimID: claimID, Claimer: ownerAddr, ClaimType: models.ClaimTypeTimeout, Amount: "5"},
		&models.CompensationWithdrawn{EventMeta: meta(3, 1), ClaimID: claimID},
		&models.ConfigUpdated{EventMeta: meta(4, 0), Key: "0x55", Value: 1},
		&models.NFTTransfer{EventMeta: meta(4, 1), TokenID: "9", From: dappAddr, To: ownerAddr},
	}

	incremental := newMemStore()
	p := New(incremental)
	for _, ev := range events {
		require.NoError(t, p.Apply(ev))
	}

	// Replay receives the batch shuffled; ordering is restored before
	// application.
	shuffled := []models.ChainEvent{events[4], events[1], events[5], events[3], events[0], events[2]}
	rebuilt := newMemStore()
	require.NoError(t, New(rebuilt).Replay(shuffled))

	assert.Equal(t, incremental.dapps, rebuilt.dapps)
	assert.Equal(t, incremental.claims, rebuilt.claims)
	assert.Equal(t, incremental.config, rebuilt.config)
	assert.Equal(t, incremental.nfts, rebuilt.nfts)
}

type bogusEvent struct{ models.EventMeta }

func (bogusEvent) Name() string { return "Bogus" }

func TestApplyRejectsUnknownEvent(t *testing.T) {
	p := New(newMemStore())
	err := p.Apply(bogusEvent{})
	assert.ErrorIs(t, err, ErrMalformedEvent)

	stats := p.GetStats()
	assert.Equal(t, uint64(1), stats["event_errors"])
}
