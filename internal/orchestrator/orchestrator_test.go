package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imovel-monitor/internal/models"
	"imovel-monitor/internal/scraper"
)

type stubAdapter struct {
	name      string
	records   []models.ListingRecord
	panics    bool
	delay     time.Duration
	gotFilter *models.DealType
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) FetchListings(_ context.Context, filter *models.DealType) []models.ListingRecord {
	s.gotFilter = filter
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.panics {
		panic("adapter exploded")
	}
	return s.records
}

func rec(agency, code string, dt models.DealType) models.ListingRecord {
	return models.ListingRecord{Agency: agency, ExternalCode: code, Title: "Apartamento " + code, DealType: dt}
}

func TestRunAllConcatenatesInAdapterOrder(t *testing.T) {
	a := &stubAdapter{name: "A", records: []models.ListingRecord{rec("A", "1", models.DealTypeRent), rec("A", "2", models.DealTypeSale)}}
	b := &stubAdapter{name: "B", records: []models.ListingRecord{rec("B", "9", models.DealTypeRent)}}

	result := New([]scraper.Adapter{a, b}, Options{}).RunAll(context.Background())

	require.Len(t, result.Records, 3)
	assert.Equal(t, []string{"1", "2", "9"}, codes(result.Records))
	assert.Equal(t, 3, result.Stats.Total)
	assert.Equal(t, map[string]int{"A": 2, "B": 1}, result.Stats.ByAgency)
	assert.Equal(t, 2, result.Stats.ByDealType[models.DealTypeRent])
	assert.Equal(t, 1, result.Stats.ByDealType[models.DealTypeSale])
	require.Len(t, result.Stats.Adapters, 2)
	assert.Equal(t, "A", result.Stats.Adapters[0].Agency)
	assert.Equal(t, 2, result.Stats.Adapters[0].Count)
}

func TestRunAllIsolatesPanickingAdapter(t *testing.T) {
	bad := &stubAdapter{name: "Bad", panics: true, records: []models.ListingRecord{rec("Bad", "1", models.DealTypeRent)}}
	good := &stubAdapter{name: "Good", records: []models.ListingRecord{rec("Good", "5", models.DealTypeSale)}}

	var result Result
	require.NotPanics(t, func() {
		result = New([]scraper.Adapter{bad, good}, Options{}).RunAll(context.Background())
	})

	assert.Equal(t, []string{"5"}, codes(result.Records))
	assert.True(t, result.Stats.Adapters[0].Failed)
	assert.Equal(t, 0, result.Stats.Adapters[0].Count)
	assert.False(t, result.Stats.Adapters[1].Failed)
	assert.Equal(t, 0, result.Stats.ByAgency["Bad"])
}

func TestRunAllEmptyAdapters(t *testing.T) {
	result := New(nil, Options{}).RunAll(context.Background())
	assert.Empty(t, result.Records)
	assert.Equal(t, 0, result.Stats.Total)
}

func TestRunAllParallelKeepsOrder(t *testing.T) {
	slow := &stubAdapter{name: "Slow", delay: 40 * time.Millisecond, records: []models.ListingRecord{rec("Slow", "1", models.DealTypeRent)}}
	fast := &stubAdapter{name: "Fast", records: []models.ListingRecord{rec("Fast", "2", models.DealTypeRent)}}
	boom := &stubAdapter{name: "Boom", panics: true}

	result := New([]scraper.Adapter{slow, fast, boom}, Options{Parallel: 3}).RunAll(context.Background())

	assert.Equal(t, []string{"1", "2"}, codes(result.Records))
	assert.True(t, result.Stats.Adapters[2].Failed)
}

type countingAdapter struct {
	inFlight, peak int32
}

func (c *countingAdapter) Name() string { return "count" }

func (c *countingAdapter) FetchListings(context.Context, *models.DealType) []models.ListingRecord {
	n := atomic.AddInt32(&c.inFlight, 1)
	for {
		p := atomic.LoadInt32(&c.peak)
		if n <= p || atomic.CompareAndSwapInt32(&c.peak, p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	atomic.AddInt32(&c.inFlight, -1)
	return nil
}

func TestRunAllParallelRespectsLimit(t *testing.T) {
	c := &countingAdapter{}
	adapters := []scraper.Adapter{c, c, c, c, c}
	New(adapters, Options{Parallel: 2}).RunAll(context.Background())
	assert.LessOrEqual(t, atomic.LoadInt32(&c.peak), int32(2))
}

func TestRunAllPassesFilter(t *testing.T) {
	a := &stubAdapter{name: "A"}
	rent := models.DealTypeRent
	New([]scraper.Adapter{a}, Options{Filter: &rent}).RunAll(context.Background())
	require.NotNil(t, a.gotFilter)
	assert.Equal(t, models.DealTypeRent, *a.gotFilter)
}

func codes(records []models.ListingRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ExternalCode)
	}
	return out
}
