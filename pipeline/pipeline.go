package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/itch-bundle-valuer/config"
	"github.com/aluiziolira/itch-bundle-valuer/models"
	"github.com/aluiziolira/itch-bundle-valuer/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers fail to drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: close timed out")
)

// drainTimeout bounds how long Close waits for workers.
var drainTimeout = 30 * time.Second

// OutputWriter receives batches of accepted records.
type OutputWriter interface {
	Write(records []*models.GameRecord) error
	Close() error
	Validate() error
}

// Pipeline validates and dedupes game records and hands them to a writer in
// batches.
type Pipeline struct {
	ctx       context.Context
	writer    OutputWriter
	recordCh  chan *models.GameRecord
	batchSize int

	wg sync.WaitGroup

	seen *lru.Cache[string, struct{}]

	counters counters

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline sized from cfg. Cancelling ctx stops
// accepting new records; records already queued are still written.
func NewPipeline(ctx context.Context, writer OutputWriter, cfg *config.Config) *Pipeline {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	bufferSize := cfg.PipelineBufferSize
	if bufferSize <= 0 {
		bufferSize = 512
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	dedupeSize := cfg.DedupeMaxSize
	if dedupeSize <= 0 {
		dedupeSize = 100000
	}
	seen, err := lru.New[string, struct{}](dedupeSize)
	if err != nil {
		// only reachable with a non-positive size, excluded above
		panic(fmt.Sprintf("pipeline: dedupe cache: %v", err))
	}

	return &Pipeline{
		ctx:       ctx,
		writer:    writer,
		recordCh:  make(chan *models.GameRecord, bufferSize),
		batchSize: batchSize,
		seen:      seen,
		shutdown:  make(chan struct{}),
	}
}

// Start runs workers goroutines reading the queue. It is a no-op once closed.
func (p *Pipeline) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

// Process enqueues records for downstream processing.
func (p *Pipeline) Process(records ...*models.GameRecord) error {
	if len(records) == 0 {
		return nil
	}

	closed, err := p.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, record := range records {
		if record == nil {
			continue
		}
		if err := p.enqueue(record); err != nil {
			return err
		}
	}
	return nil
}

// Close stops intake, lets the workers drain what is queued and reports the
// first write error. A writer stuck past drainTimeout yields
// ErrPipelineCloseTimeout.
func (p *Pipeline) Close() error {
	p.markClosed(nil)
	p.closeOnce.Do(func() { close(p.recordCh) })

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		p.wg.Wait()
	}()

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-drained:
		return p.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrPipelineCloseTimeout, drainTimeout)
	}
}

// Err returns the first write error, if any.
func (p *Pipeline) Err() error {
	_, err := p.state()
	return err
}

// GetMetrics returns processed_records (int64) and validation_errors
// (map[string]int keyed by drop reason).
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"processed_records": p.counters.processed.Load(),
		"validation_errors": p.counters.dropped(),
	}
}

// Processed is the number of records handed to the writer.
func (p *Pipeline) Processed() int64 {
	return p.counters.processed.Load()
}

// StartMetricsReporting logs progress every interval until shutdown.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-p.shutdown:
				return
			case <-ticker.C:
				slog.Debug("pipeline progress",
					slog.Int64("processed", p.counters.processed.Load()),
					slog.Any("dropped", p.counters.dropped()),
				)
			}
		}
	}()
}

func (p *Pipeline) worker() {
	defer p.wg.Done()

	batch := make([]*models.GameRecord, 0, p.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.Write(batch); err != nil {
			return err
		}
		batch = make([]*models.GameRecord, 0, p.batchSize)
		return nil
	}

	for record := range p.recordCh {
		prepared := p.prepare(record)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= p.batchSize {
			if err := flush(); err != nil {
				p.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		p.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (p *Pipeline) prepare(record *models.GameRecord) *models.GameRecord {
	if err := parser.ValidateRecord(record); err != nil {
		p.counters.drop("invalid_record")
		slog.Debug("dropping invalid record", slog.Any("error", err))
		return nil
	}

	// ContainsOrAdd is atomic, so concurrent workers cannot both admit a key.
	if found, _ := p.seen.ContainsOrAdd(dedupeKey(record), struct{}{}); found {
		p.counters.drop("duplicate_game")
		return nil
	}

	parser.NormalizeGame(record.Game)
	if record.ScrapedAt.IsZero() {
		record.ScrapedAt = time.Now()
	}

	p.counters.processed.Add(1)
	return record
}

// dedupeKey identifies a game within its source; the same game listed in
// two bundles is kept once per bundle.
func dedupeKey(record *models.GameRecord) string {
	return record.Source + "/" + strconv.FormatInt(record.BundleID, 10) + "/" + strconv.FormatInt(record.Game.ID, 10)
}

func (p *Pipeline) enqueue(record *models.GameRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-p.shutdown:
		return ErrPipelineClosed
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.recordCh <- record:
		return nil
	}
}

func (p *Pipeline) setErr(err error) {
	if err != nil {
		p.markClosed(err)
	}
}

// markClosed refuses further records. The first non-nil err sticks.
func (p *Pipeline) markClosed(err error) {
	p.mu.Lock()
	p.closed = true
	if p.err == nil {
		p.err = err
	}
	p.mu.Unlock()

	p.shutdownOnce.Do(func() { close(p.shutdown) })
}

func (p *Pipeline) state() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed, p.err
}

// counters tracks what the workers did with each record.
type counters struct {
	processed atomic.Int64

	mu    sync.Mutex
	drops map[string]int
}

func (c *counters) drop(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drops == nil {
		c.drops = make(map[string]int)
	}
	c.drops[reason]++
}

// dropped copies the per-reason drop counts.
func (c *counters) dropped() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.drops))
	for reason, n := range c.drops {
		out[reason] = n
	}
	return out
}
