package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/animal-etl/internal/testutil"
	"github.com/Sternrassler/animal-etl/pkg/batch"
	"github.com/Sternrassler/animal-etl/pkg/client"
	"github.com/Sternrassler/animal-etl/pkg/config"
	"github.com/Sternrassler/animal-etl/pkg/pagination"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.BaseURL = baseURL
	cfg.Timeout = 2 * time.Second
	cfg.MaxRetries = 3
	cfg.RetryDelay = 5 * time.Millisecond
	cfg.BatchSize = 2
	cfg.MaxWorkers = 1
	return cfg
}

func newPipeline(t *testing.T, api *testutil.MockAPI) *Pipeline {
	t.Helper()
	p, err := FromConfig(testConfig(api.URL()), nil, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func TestRun_TwoPages(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetAnimals(testutil.Animals(3)...)
	api.SetPageSize(2)

	run, err := newPipeline(t, api).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][]int64{{1, 2}, {3}}, api.PostedIDs())
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Equal(t, 3, run.IDs)
	assert.Equal(t, 2, run.Batches)
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
	require.NotNil(t, run.Summary)
	assert.Equal(t, 3, run.Summary.RecordsPosted)

	for _, b := range api.PostedBatches() {
		for _, rec := range b {
			assert.Equal(t, []string{"Ant", "Bee", "Cat"}, rec.Friends)
			assert.NotNil(t, rec.BornAt)
		}
	}
}

func TestRun_FetchFailureShrinksBatch(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetAnimals(testutil.Animals(3)...)
	api.SetPageSize(2)
	api.FailDetail(2, testutil.Failure{StatusCode: 404, Times: -1})

	run, err := newPipeline(t, api).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, [][]int64{{1}, {3}}, api.PostedIDs())
	assert.Equal(t, 1, run.Summary.FetchFailures)
}

func TestRun_EmptyListingIsNoOp(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()

	run, err := newPipeline(t, api).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusEmpty, run.Status)
	assert.Zero(t, run.IDs)
	assert.Nil(t, run.Summary)
	assert.Empty(t, api.PostedBatches())
	assert.Equal(t, 1, api.Requests("page:1"))
}

func TestRun_MalformedFirstPageFails(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetAnimals(testutil.Animals(3)...)
	api.SetRawPage(1, "not json")

	run, err := newPipeline(t, api).Run(context.Background())
	require.Error(t, err)

	var extErr *pagination.ExtractionError
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, 1, extErr.Page)
	assert.ErrorIs(t, err, client.ErrDecode)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Empty(t, api.PostedBatches())
}

type stubCollector struct {
	ids []int64
	err error
}

func (s *stubCollector) CollectIDs(ctx context.Context) ([]int64, error) {
	return s.ids, s.err
}

type stubLoader struct {
	got     []int64
	summary *batch.Summary
	err     error
}

func (s *stubLoader) Run(ctx context.Context, ids []int64) (*batch.Summary, error) {
	s.got = ids
	return s.summary, s.err
}

func TestRun_CollectorErrorPropagatesUnchanged(t *testing.T) {
	boom := errors.New("listing exploded")
	loader := &stubLoader{}
	p := New(nil, &stubCollector{err: boom}, loader, zerolog.Nop())

	run, err := p.Run(context.Background())
	assert.Same(t, boom, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Nil(t, loader.got)
}

func TestRun_LoaderErrorPropagatesUnchanged(t *testing.T) {
	boom := errors.New("load exploded")
	loader := &stubLoader{summary: &batch.Summary{Chunks: 2, Skipped: 1}, err: boom}
	p := New(nil, &stubCollector{ids: []int64{1, 2, 3}}, loader, zerolog.Nop())

	run, err := p.Run(context.Background())
	assert.Same(t, boom, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, []int64{1, 2, 3}, loader.got)
	assert.Equal(t, 3, run.IDs)
	assert.Equal(t, 2, run.Batches)
}

func TestRun_Elapsed(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	run := &Run{StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)}
	assert.Equal(t, 1500*time.Millisecond, run.Elapsed())
}

func TestFetchOne(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetAnimals(testutil.Animals(2)...)

	rec, err := newPipeline(t, api).FetchOne(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.ID)
	assert.Equal(t, "Animal 2", rec.Name)
	assert.Equal(t, "Ant, Bee,,Cat ", rec.Friends.Delimited)
}

func TestFetchOne_NotFound(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()

	_, err := newPipeline(t, api).FetchOne(context.Background(), 99)
	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 404, statusErr.StatusCode)
}

func TestListPage(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()
	api.SetAnimals(testutil.Animals(5)...)
	api.SetPageSize(2)

	p := newPipeline(t, api)
	page, err := p.ListPage(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, []int64{5}, page.IDs())

	_, err = p.ListPage(context.Background(), 0)
	assert.EqualError(t, err, "page must be >= 1 (got 0)")
}

func TestFromConfig_Invalid(t *testing.T) {
	cfg := config.Default()
	cfg.BatchSize = 101
	_, err := FromConfig(cfg, nil, zerolog.Nop())
	assert.EqualError(t, err, "batch size must be between 1 and 100 (got 101)")
}
