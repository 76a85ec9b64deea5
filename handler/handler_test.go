package handler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kerava/collector"
	"github.com/yairfalse/kerava/config"
	"github.com/yairfalse/kerava/query"
	"github.com/yairfalse/kerava/storage"
	"github.com/yairfalse/kerava/types"
)

type fakeCollector struct {
	report *types.RunReport
	ranCfg collector.RunConfig
}

func (f *fakeCollector) Run(_ context.Context, _ []types.Account, cfg collector.RunConfig) (*types.RunReport, error) {
	f.ranCfg = cfg
	return f.report, nil
}

type fakeStore struct {
	records []types.ResourceRecord
	pruned  time.Time
	removed int
}

func (f *fakeStore) Scan(filter types.RecordFilter) ([]types.ResourceRecord, error) {
	var matched []types.ResourceRecord
	for i := range f.records {
		if filter.Matches(&f.records[i]) {
			matched = append(matched, f.records[i])
		}
	}
	return matched, nil
}

func (f *fakeStore) Prune(cutoff time.Time) (int, error) {
	f.pruned = cutoff
	return f.removed, nil
}

func (f *fakeStore) Stats() storage.Stats { return storage.Stats{TotalRecords: len(f.records)} }

type capturedNote struct {
	subject string
	message string
}

type fakeNotifier struct {
	notes []capturedNote
}

func (f *fakeNotifier) Notify(_ context.Context, subject, message string) error {
	f.notes = append(f.notes, capturedNote{subject, message})
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Version: "1.0",
		Accounts: []types.Account{
			{ID: "111122223333", Name: "prod", RoleName: "InventoryRole", Enabled: true},
		},
		ResourceTypes:  []string{"ec2"},
		Regions:        []string{"us-east-1"},
		Collection:     config.CollectionSettings{Parallelism: 2, RetryAttempts: 3, BatchSize: 10},
		CostThresholds: config.CostThresholds{MonthlyAlert: 100, StaleDays: 90},
	}
}

func newTestHandler(c Collector, store *fakeStore, notifier *fakeNotifier) *Handler {
	return New(testConfig(), c, query.NewEngine(store), store, notifier, nil, zerolog.Nop())
}

func TestHandleCollect(t *testing.T) {
	coll := &fakeCollector{report: &types.RunReport{
		TasksTotal: 1, TasksSucceeded: 1, RecordsWritten: 3,
	}}
	notifier := &fakeNotifier{}
	h := newTestHandler(coll, &fakeStore{}, notifier)

	resp, err := h.Handle(context.Background(), Request{Action: ActionCollect})
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Report.RecordsWritten)
	assert.Equal(t, []string{"us-east-1"}, coll.ranCfg.Regions)
	require.Len(t, notifier.notes, 1)
	assert.Contains(t, notifier.notes[0].subject, "3 records")
}

func TestHandleCollectPartial(t *testing.T) {
	coll := &fakeCollector{report: &types.RunReport{TasksTotal: 2, TasksSucceeded: 1, TasksFailed: 1}}
	h := newTestHandler(coll, &fakeStore{}, &fakeNotifier{})

	resp, err := h.Handle(context.Background(), Request{Action: ActionCollect})
	require.NoError(t, err)
	assert.Equal(t, "partial", resp.Status)
}

func TestHandleCostAnalysis(t *testing.T) {
	store := &fakeStore{records: []types.ResourceRecord{
		{AccountID: "111122223333", Department: "platform", ResourceType: "ec2", ResourceID: "i-1", MonthlyCost: 80},
		{AccountID: "111122223333", Department: "platform", ResourceType: "rds", ResourceID: "db-1", MonthlyCost: 60},
	}}
	notifier := &fakeNotifier{}
	h := newTestHandler(&fakeCollector{}, store, notifier)

	resp, err := h.Handle(context.Background(), Request{Action: ActionCostAnalysis, TopN: 1})
	require.NoError(t, err)

	assert.Equal(t, 140.0, resp.Cost.TotalMonthly)
	require.Len(t, resp.Cost.TopResources, 1)
	assert.Equal(t, "i-1", resp.Cost.TopResources[0].ResourceID)

	// Over the $100 alert threshold.
	require.Len(t, notifier.notes, 1)
	assert.Contains(t, notifier.notes[0].subject, "cost alert")
}

func TestHandleCostAnalysisUnderThreshold(t *testing.T) {
	store := &fakeStore{records: []types.ResourceRecord{
		{AccountID: "111122223333", ResourceType: "ec2", ResourceID: "i-1", MonthlyCost: 10},
	}}
	notifier := &fakeNotifier{}
	h := newTestHandler(&fakeCollector{}, store, notifier)

	_, err := h.Handle(context.Background(), Request{Action: ActionCostAnalysis})
	require.NoError(t, err)
	assert.Empty(t, notifier.notes)
}

func TestHandleSecurityCheck(t *testing.T) {
	store := &fakeStore{records: []types.ResourceRecord{
		{AccountID: "111122223333", ResourceType: "s3", ResourceID: "open-bucket",
			Attributes: map[string]any{"public_access": true}},
	}}
	notifier := &fakeNotifier{}
	h := newTestHandler(&fakeCollector{}, store, notifier)

	resp, err := h.Handle(context.Background(), Request{Action: ActionSecurityCheck})
	require.NoError(t, err)

	require.Len(t, resp.Findings, 1)
	assert.Equal(t, "publicly accessible", resp.Findings[0].Issue)
	require.Len(t, notifier.notes, 1)
	assert.Contains(t, notifier.notes[0].subject, "1 findings")
}

func TestHandleCleanup(t *testing.T) {
	store := &fakeStore{removed: 7}
	h := newTestHandler(&fakeCollector{}, store, &fakeNotifier{})
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	resp, err := h.Handle(context.Background(), Request{Action: ActionCleanup, Days: 30})
	require.NoError(t, err)

	assert.Equal(t, 7, resp.Removed)
	assert.Equal(t, now.Add(-30*24*time.Hour), store.pruned)
	assert.Contains(t, resp.Message, "removed 7 records")
}

func TestHandleCleanupDefaultsToStaleDays(t *testing.T) {
	store := &fakeStore{}
	h := newTestHandler(&fakeCollector{}, store, &fakeNotifier{})
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	_, err := h.Handle(context.Background(), Request{Action: ActionCleanup})
	require.NoError(t, err)
	assert.Equal(t, now.Add(-90*24*time.Hour), store.pruned)
}

func TestHandleUnknownAction(t *testing.T) {
	h := newTestHandler(&fakeCollector{}, &fakeStore{}, &fakeNotifier{})
	_, err := h.Handle(context.Background(), Request{Action: "destroy"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}
