package requeststore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterdevs/btc-arbitration/internal/models"
)

const testTxID = "c37af31116d1b27caf68aae9e3ac82f1477929014d5b917657d0eb49478cb670"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "requests.json")
	store := New(path)
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndLookup(t *testing.T) {
	store := newTestStore(t)

	assert.Nil(t, store.Lookup(testTxID, models.OracleKindZkProof))

	rec, err := store.Record(testTxID, models.OracleKindZkProof, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.VerificationStatusVerifying, rec.Status)

	found := store.Lookup(testTxID, models.OracleKindZkProof)
	require.NotNil(t, found)
	assert.Equal(t, "req-1", found.RequestID)
	assert.True(t, found.Active())

	// The two oracle kinds are independent keys.
	assert.Nil(t, store.Lookup(testTxID, models.OracleKindSignatureValidation))
}

func TestDuplicateActiveRequest(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Record(testTxID, models.OracleKindZkProof, "req-1")
	require.NoError(t, err)

	_, err = store.Record(testTxID, models.OracleKindZkProof, "req-2")
	assert.ErrorIs(t, err, ErrDuplicateActiveRequest)

	// Same subject, other oracle kind is allowed.
	_, err = store.Record(testTxID, models.OracleKindSignatureValidation, "req-3")
	assert.NoError(t, err)
}

func TestResubmitAfterTerminalStatus(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Record(testTxID, models.OracleKindSignatureValidation, "req-1")
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(testTxID, models.OracleKindSignatureValidation, "req-1", models.VerificationStatusFailed))

	rec, err := store.Record(testTxID, models.OracleKindSignatureValidation, "req-2")
	require.NoError(t, err, "a failed request must not block resubmission")
	assert.Equal(t, "req-2", rec.RequestID)

	// Lookup returns the latest record for the key.
	found := store.Lookup(testTxID, models.OracleKindSignatureValidation)
	require.NotNil(t, found)
	assert.Equal(t, "req-2", found.RequestID)
}

func TestTerminalStatusIsSticky(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Record(testTxID, models.OracleKindZkProof, "req-1")
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(testTxID, models.OracleKindZkProof, "req-1", models.VerificationStatusVerified))
	require.NoError(t, store.UpdateStatus(testTxID, models.OracleKindZkProof, "req-1", models.VerificationStatusVerifying))

	found := store.Lookup(testTxID, models.OracleKindZkProof)
	require.NotNil(t, found)
	assert.Equal(t, models.VerificationStatusVerified, found.Status)
}

func TestUpdateStatusMatchesRequestID(t *testing.T) {
	store := newTestStore(t)

	// A failed first attempt followed by a resubmission leaves two records
	// for the same subject; each poll result must land on its own request.
	_, err := store.Record(testTxID, models.OracleKindZkProof, "req-1")
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(testTxID, models.OracleKindZkProof, "req-1", models.VerificationStatusFailed))

	_, err = store.Record(testTxID, models.OracleKindZkProof, "req-2")
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(testTxID, models.OracleKindZkProof, "req-2", models.VerificationStatusVerified))

	statuses := make(map[string]models.VerificationStatus)
	for _, rec := range store.All() {
		statuses[rec.RequestID] = rec.Status
	}
	assert.Equal(t, models.VerificationStatusFailed, statuses["req-1"])
	assert.Equal(t, models.VerificationStatusVerified, statuses["req-2"])

	// An id the ledger never recorded is reported, not silently dropped.
	err = store.UpdateStatus(testTxID, models.OracleKindZkProof, "req-9", models.VerificationStatusVerified)
	assert.Error(t, err)
}

func TestUpdateStatusUnknownSubject(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateStatus("deadbeef", models.OracleKindZkProof, "req-1", models.VerificationStatusVerified)
	assert.Error(t, err)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "requests.json")

	store := New(path)
	require.NoError(t, store.Open())

	_, err := store.Record(testTxID, models.OracleKindZkProof, "req-1")
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(testTxID, models.OracleKindZkProof, "req-1", models.VerificationStatusVerified))
	require.NoError(t, store.Close())

	// Simulated restart: a fresh store over the same file sees the record.
	reopened := New(path)
	require.NoError(t, reopened.Open())
	defer reopened.Close()

	found := reopened.Lookup(testTxID, models.OracleKindZkProof)
	require.NotNil(t, found)
	assert.Equal(t, "req-1", found.RequestID)
	assert.Equal(t, models.VerificationStatusVerified, found.Status)
	assert.Len(t, reopened.All(), 1)
}

func TestStorageLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "requests.json")
	store := New(path)
	require.NoError(t, store.Open())

	_, err := store.Record(testTxID, models.OracleKindZkProof, "req-1")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// One list per oracle kind under its well-known key.
	assert.Contains(t, string(data), `"zkp_verification_requests"`)
	assert.Contains(t, string(data), `"signature_verification_requests"`)
	assert.Contains(t, string(data), `"transactionId"`)
	assert.Contains(t, string(data), `"requestId"`)
}
