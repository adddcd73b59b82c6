// Package orchestrator runs every source adapter once and concatenates
// their output in a fixed order.
package orchestrator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"imovel-monitor/internal/logging"
	"imovel-monitor/internal/models"
	"imovel-monitor/internal/scraper"
)

var logger = logging.New("Orchestrator")

// AdapterStats describes one adapter's contribution to a run
type AdapterStats struct {
	Agency   string        `json:"agency"`
	Count    int           `json:"count"`
	Duration time.Duration `json:"duration"`
	Failed   bool          `json:"failed"`
}

// Stats summarises a RunAll call
type Stats struct {
	Total      int                     `json:"total"`
	ByAgency   map[string]int          `json:"by_agency"`
	ByDealType map[models.DealType]int `json:"by_deal_type"`
	Adapters   []AdapterStats          `json:"adapters"`
}

// Result is the concatenated output of all adapters
type Result struct {
	Records []models.ListingRecord `json:"records"`
	Stats   Stats                  `json:"stats"`
}

// Options tune a run. Parallel <= 1 runs adapters one after another.
type Options struct {
	Parallel int
	Filter   *models.DealType
}

// Orchestrator holds the adapters in their run order
type Orchestrator struct {
	adapters []scraper.Adapter
	opts     Options
}

// New creates an orchestrator; adapter order is the output order
func New(adapters []scraper.Adapter, opts Options) *Orchestrator {
	return &Orchestrator{adapters: adapters, opts: opts}
}

// Adapters returns the adapters in run order
func (o *Orchestrator) Adapters() []scraper.Adapter {
	return o.adapters
}

type slot struct {
	records []models.ListingRecord
	stats   AdapterStats
}

// RunAll invokes each adapter once. An adapter that panics contributes
// nothing and does not affect the others.
func (o *Orchestrator) RunAll(ctx context.Context) Result {
	slots := make([]slot, len(o.adapters))

	if o.opts.Parallel > 1 {
		var g errgroup.Group
		g.SetLimit(o.opts.Parallel)
		for i, a := range o.adapters {
			g.Go(func() error {
				slots[i] = o.runAdapter(ctx, a)
				return nil
			})
		}
		g.Wait()
	} else {
		for i, a := range o.adapters {
			slots[i] = o.runAdapter(ctx, a)
		}
	}

	result := Result{Stats: Stats{
		ByAgency:   make(map[string]int),
		ByDealType: make(map[models.DealType]int),
	}}
	for _, s := range slots {
		result.Records = append(result.Records, s.records...)
		result.Stats.Adapters = append(result.Stats.Adapters, s.stats)
		result.Stats.ByAgency[s.stats.Agency] += len(s.records)
		for _, r := range s.records {
			result.Stats.ByDealType[r.DealType]++
		}
	}
	result.Stats.Total = len(result.Records)

	logger.Infof("collected %d listings from %d adapters", result.Stats.Total, len(o.adapters))
	return result
}

func (o *Orchestrator) runAdapter(ctx context.Context, a scraper.Adapter) (s slot) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("adapter %s panicked: %v", s.stats.Agency, r)
			s.records = nil
			s.stats.Failed = true
		}
		s.stats.Count = len(s.records)
		s.stats.Duration = time.Since(start)
	}()

	s.stats.Agency = a.Name()
	logger.Infof("running %s", s.stats.Agency)
	s.records = a.FetchListings(ctx, o.opts.Filter)
	logger.Infof("%s: %d listings in %v", s.stats.Agency, len(s.records), time.Since(start).Round(time.Millisecond))
	return s
}
