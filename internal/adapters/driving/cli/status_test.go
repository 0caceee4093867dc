package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgerfile "github.com/biolit-labs/harvest-cli/internal/adapters/driven/ledger/file"
	"github.com/biolit-labs/harvest-cli/internal/core/domain"
	"github.com/biolit-labs/harvest-cli/internal/core/ports/driven"
)

// writeLedger populates a ledger file with a few documents and returns
// its path.
func writeLedger(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")

	store, err := ledgerfile.NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.UpdateState("pmid-1", domain.StateFetching)
	require.NoError(t, err)
	_, err = store.UpdateState("pmid-1", domain.StateFetched)
	require.NoError(t, err)
	_, err = store.UpdateState("pmid-2", domain.StateFetching)
	require.NoError(t, err)
	return path
}

func setupStatusTest(path string) func() {
	old := ledgerPath
	ledgerPath = path
	resetStatusFlags()
	return func() {
		ledgerPath = old
		resetStatusFlags()
	}
}

func resetStatusFlags() {
	statusFollow = false
	statusJSON = false
	statusState = ""
}

func TestStatusCmd_Counts(t *testing.T) {
	defer setupStatusTest(writeLedger(t))()

	out, err := execute(t, "status")
	require.NoError(t, err)

	assert.Contains(t, out, "Documents: 2")
	assert.Contains(t, out, "FETCHED")
	assert.Contains(t, out, "FETCHING")
}

func TestStatusCmd_JSON(t *testing.T) {
	defer setupStatusTest(writeLedger(t))()

	out, err := execute(t, "status", "--json")
	require.NoError(t, err)

	assert.Contains(t, out, `"total": 2`)
	assert.Contains(t, out, `"FETCHED": 1`)
}

func TestStatusCmd_StateListing(t *testing.T) {
	defer setupStatusTest(writeLedger(t))()

	out, err := execute(t, "status", "--state", "FETCHED")
	require.NoError(t, err)

	assert.Contains(t, out, "pmid-1")
	assert.NotContains(t, out, "pmid-2")
}

func TestStatusCmd_StateListingResolvesAliases(t *testing.T) {
	defer setupStatusTest(writeLedger(t))()

	// Historical spellings still work on the command line.
	out, err := execute(t, "status", "--state", "fetched")
	require.NoError(t, err)
	assert.Contains(t, out, "pmid-1")
}

func TestStatusCmd_UnknownState(t *testing.T) {
	defer setupStatusTest(writeLedger(t))()

	_, err := execute(t, "status", "--state", "NOT_A_STATE")
	assert.ErrorIs(t, err, domain.ErrUnknownState)
}

func TestStatusCmd_EmptyLedger(t *testing.T) {
	defer setupStatusTest(filepath.Join(t.TempDir(), "absent.jsonl"))()

	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents: 0")
}

func TestStatusCmd_NotConfigured(t *testing.T) {
	defer setupStatusTest("")()

	_, err := execute(t, "status")
	assert.EqualError(t, err, "ledger path not configured")
}

// --- stuck / snapshot / sources / version ---

// stubLedger implements driven.Ledger for command tests.
type stubLedger struct {
	stuck        []domain.LedgerEntry
	snapshotPath string
	snapshotErr  error
}

func (s *stubLedger) UpdateState(string, domain.LedgerState, ...driven.UpdateOption) (*domain.AuditRecord, error) {
	return nil, nil
}

func (s *stubLedger) Record(string, string, ...driven.UpdateOption) (*domain.AuditRecord, error) {
	return nil, nil
}

func (s *stubLedger) Get(string) (*domain.LedgerEntry, error) { return nil, domain.ErrNotFound }

func (s *stubLedger) Entries(...domain.LedgerState) []domain.LedgerEntry { return nil }

func (s *stubLedger) StuckDocuments(time.Duration) []domain.LedgerEntry { return s.stuck }

func (s *stubLedger) CreateSnapshot() (string, error) { return s.snapshotPath, s.snapshotErr }

func (s *stubLedger) Close() error { return nil }

// stubRegistry implements driven.AdapterRegistry for command tests.
type stubRegistry struct {
	sources []string
}

func (s *stubRegistry) Get(context.Context, string, driven.AdapterContext) (driven.Adapter, error) {
	return nil, domain.ErrUnsupportedType
}

func (s *stubRegistry) Register(string, driven.AdapterBuilder) {}

func (s *stubRegistry) SupportedSources() []string { return s.sources }

func TestStuckCmd_ListsStuckDocuments(t *testing.T) {
	old := ledgerSvc
	ledgerSvc = &stubLedger{stuck: []domain.LedgerEntry{
		{DocID: "pmid-7", State: domain.StateParsing, UpdatedAt: time.Now().Add(-2 * time.Hour)},
	}}
	defer func() { ledgerSvc = old }()

	out, err := execute(t, "stuck", "--threshold", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "pmid-7")
	assert.Contains(t, out, "PARSING")
}

func TestStuckCmd_NoneStuck(t *testing.T) {
	old := ledgerSvc
	ledgerSvc = &stubLedger{}
	defer func() { ledgerSvc = old }()

	out, err := execute(t, "stuck")
	require.NoError(t, err)
	assert.Contains(t, out, "No documents stuck")
}

func TestSnapshotCmd(t *testing.T) {
	old := ledgerSvc
	ledgerSvc = &stubLedger{snapshotPath: "/data/ledger.jsonl.snapshot.json"}
	defer func() { ledgerSvc = old }()

	out, err := execute(t, "snapshot")
	require.NoError(t, err)
	assert.Contains(t, out, "/data/ledger.jsonl.snapshot.json")
}

func TestSourcesCmd(t *testing.T) {
	old := adapterRegistry
	adapterRegistry = &stubRegistry{sources: []string{"ctgov", "jsonl", "pubmed"}}
	defer func() { adapterRegistry = old }()

	out, err := execute(t, "sources")
	require.NoError(t, err)
	assert.Contains(t, out, "jsonl")
	assert.Contains(t, out, "pubmed")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "harvest version")
}
