package pipeline

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/aluiziolira/itch-bundle-valuer/config"
	"github.com/aluiziolira/itch-bundle-valuer/models"
)

// recorder keeps every batch it is given.
type recorder struct {
	mu      sync.Mutex
	batches [][]*models.GameRecord
}

func (r *recorder) Write(records []*models.GameRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]*models.GameRecord(nil), records...))
	return nil
}

func (r *recorder) Close() error    { return nil }
func (r *recorder) Validate() error { return nil }

func (r *recorder) written() []*models.GameRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*models.GameRecord
	for _, b := range r.batches {
		all = append(all, b...)
	}
	return all
}

func (r *recorder) sizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.batches))
	for i, b := range r.batches {
		out[i] = len(b)
	}
	return out
}

// writeFunc adapts a function to OutputWriter.
type writeFunc func([]*models.GameRecord) error

func (f writeFunc) Write(records []*models.GameRecord) error { return f(records) }
func (writeFunc) Close() error                                { return nil }
func (writeFunc) Validate() error                             { return nil }

// run pushes records through a fresh pipeline and returns it closed along
// with the Close error.
func run(t *testing.T, cfg *config.Config, workers int, w OutputWriter, records ...*models.GameRecord) (*Pipeline, error) {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	p := NewPipeline(context.Background(), w, cfg)
	p.Start(workers)
	if err := p.Process(records...); err != nil {
		t.Fatalf("process: %v", err)
	}
	return p, p.Close()
}

func numbered(n, from int) []*models.GameRecord {
	out := make([]*models.GameRecord, n)
	for i := range out {
		out[i] = purchase(int64(from+i), "Game")
	}
	return out
}

func purchase(id int64, title string) *models.GameRecord {
	return &models.GameRecord{
		Source: models.SourcePurchases,
		Game: &models.Game{
			ID:    id,
			Title: title,
			URL:   "https://dev.itch.io/game",
			Price: "$1.00",
		},
	}
}

func bundled(bundleID, id int64) *models.GameRecord {
	return &models.GameRecord{
		Source:     models.SourceBundle,
		BundleID:   bundleID,
		BundleName: "Bundle for Testing",
		Game: &models.Game{
			ID:    id,
			Title: "Bundled",
			Price: "$2.00",
		},
	}
}

func TestPipelineProcessValidationAndDedup(t *testing.T) {
	rec := &recorder{}
	p, err := run(t, nil, 1, rec,
		purchase(1, "  Celeste  "),
		purchase(2, ""),
		purchase(1, "Celeste"),
		bundled(0, 3),
	)
	if err != nil {
		t.Fatalf("close: %v", err)
	}

	written := rec.written()
	if len(written) != 1 {
		t.Fatalf("written records = %d, want 1", len(written))
	}
	if written[0].Game.Title != "Celeste" {
		t.Fatalf("title = %q, want trimmed", written[0].Game.Title)
	}
	if written[0].ScrapedAt.IsZero() {
		t.Fatalf("scraped_at was not stamped")
	}

	drops, ok := p.GetMetrics()["validation_errors"].(map[string]int)
	if !ok {
		t.Fatalf("validation_errors missing from metrics")
	}
	if drops["invalid_record"] != 2 || drops["duplicate_game"] != 1 {
		t.Fatalf("drops = %v, want invalid_record=2 duplicate_game=1", drops)
	}
	if p.Processed() != 1 {
		t.Fatalf("processed = %d, want 1", p.Processed())
	}
}

func TestPipelineKeepsSameGameAcrossBundles(t *testing.T) {
	rec := &recorder{}
	if _, err := run(t, nil, 2, rec, bundled(10, 7), bundled(11, 7), bundled(10, 7), purchase(7, "Owned")); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := len(rec.written()); got != 3 {
		t.Fatalf("written records = %d, want 3", got)
	}
}

func TestPipelineBatching(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		workers   int
		records   int
		sizes     []int // nil skips the per-batch check
	}{
		{name: "flushes full batch then remainder", batchSize: 64, workers: 1, records: 65, sizes: []int{64, 1}},
		{name: "close drains queue", batchSize: 64, workers: 2, records: 100},
		{name: "single record batches", batchSize: 1, workers: 1, records: 3, sizes: []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.BatchSize = tt.batchSize
			rec := &recorder{}
			if _, err := run(t, cfg, tt.workers, rec, numbered(tt.records, 1)...); err != nil {
				t.Fatalf("close: %v", err)
			}
			if got := len(rec.written()); got != tt.records {
				t.Fatalf("written records = %d, want %d", got, tt.records)
			}
			if tt.sizes != nil && !slices.Equal(rec.sizes(), tt.sizes) {
				t.Fatalf("batch sizes = %v, want %v", rec.sizes(), tt.sizes)
			}
		})
	}
}

func TestPipelineProcessAfterClose(t *testing.T) {
	p, err := run(t, nil, 1, &recorder{})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Process(purchase(1, "Late")); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("Process after Close = %v, want ErrPipelineClosed", err)
	}
}

func TestPipelineWriterFailureSurfaces(t *testing.T) {
	diskFull := errors.New("disk full")
	cfg := config.DefaultConfig()
	cfg.BatchSize = 1

	p, err := run(t, cfg, 1, writeFunc(func([]*models.GameRecord) error { return diskFull }), purchase(1, "Doomed"))
	if !errors.Is(err, diskFull) {
		t.Fatalf("close = %v, want disk full", err)
	}
	if !errors.Is(p.Err(), diskFull) {
		t.Fatalf("Err = %v, want disk full", p.Err())
	}
}

func TestPipelineCloseTimeout(t *testing.T) {
	release := make(chan struct{})
	saved := drainTimeout
	drainTimeout = 25 * time.Millisecond
	t.Cleanup(func() {
		drainTimeout = saved
		close(release)
	})

	cfg := config.DefaultConfig()
	cfg.BatchSize = 1
	stuck := writeFunc(func([]*models.GameRecord) error {
		<-release
		return nil
	})
	if _, err := run(t, cfg, 1, stuck, purchase(99, "Blocked")); !errors.Is(err, ErrPipelineCloseTimeout) {
		t.Fatalf("close = %v, want ErrPipelineCloseTimeout", err)
	}
}
