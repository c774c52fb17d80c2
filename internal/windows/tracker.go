// Package windows tracks which (asset, key, time range) spans of opportunity
// computation have already been resolved, so shifting the scheduling horizon
// never forces a full recomputation.
package windows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/mission-ledger/internal/logging"
	"github.com/signalsfoundry/mission-ledger/model"
)

var (
	// ErrOverlap indicates a requested span intersects an existing block for
	// the same (asset, key). Non-overlap is a hard constraint.
	ErrOverlap = errors.New("processing block overlap")
	// ErrNotFound indicates the referenced block does not exist or was
	// already completed.
	ErrNotFound = errors.New("processing block not found")
)

type blockKey struct {
	assetID string
	key     string
}

// Tracker is the idempotent processing-window tracker. Blocks are kept
// per (asset, secondary key) in start order; insertion is
// check-intersection-then-insert under one lock.
type Tracker struct {
	mu sync.Mutex

	blocks map[blockKey][]*model.ProcessingBlock
	index  map[string]blockKey

	log logging.Logger
	now func() time.Time
}

// Option customises tracker construction.
type Option func(*Tracker)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker constructs an empty tracker.
func NewTracker(log logging.Logger, opts ...Option) *Tracker {
	if log == nil {
		log = logging.Noop()
	}
	t := &Tracker{
		blocks: make(map[blockKey][]*model.ProcessingBlock),
		index:  make(map[string]blockKey),
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Seed loads previously persisted blocks, e.g. on startup. Blocks stuck in
// "processing" from a crash are loaded as-is: they are resumable work, never
// treated as done.
func (t *Tracker) Seed(blocks []*model.ProcessingBlock) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, b := range blocks {
		key := blockKey{b.AssetID, b.Key}
		for _, existing := range t.blocks[key] {
			if existing.Range.Intersects(b.Range) {
				return fmt.Errorf("%w: block %s intersects %s", ErrOverlap, b.ID, existing.ID)
			}
		}
		t.insertLocked(key, b)
	}
	return nil
}

// BeginProcessing claims a span for (asset, key) and returns the new block
// in status "processing". It fails with ErrOverlap when any existing block
// for the pair intersects the span, leaving the tracker unchanged.
func (t *Tracker) BeginProcessing(ctx context.Context, assetID, key string, rng model.TimeRange) (*model.ProcessingBlock, error) {
	if assetID == "" || key == "" {
		return nil, fmt.Errorf("%w: asset and key are required", model.ErrValidation)
	}
	if !rng.IsValid() {
		return nil, fmt.Errorf("%w: block range end must follow its start", model.ErrValidation)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	bk := blockKey{assetID, key}
	for _, existing := range t.blocks[bk] {
		if existing.Range.Intersects(rng) {
			return nil, fmt.Errorf("%w: %s intersects block %s [%s, %s)",
				ErrOverlap, key, existing.ID,
				existing.Range.Start.Format(time.RFC3339), existing.Range.End.Format(time.RFC3339))
		}
	}

	block := &model.ProcessingBlock{
		ID:        uuid.NewString(),
		AssetID:   assetID,
		Key:       key,
		Range:     rng,
		Status:    model.BlockProcessing,
		StartedAt: t.now(),
	}
	t.insertLocked(bk, block)

	t.log.Debug(ctx, "processing block claimed",
		logging.String("block_id", block.ID),
		logging.String("asset_id", assetID),
		logging.String("key", key),
	)
	return block, nil
}

// Complete transitions a block to "processed". It fails with ErrNotFound
// when the block is absent or already completed.
func (t *Tracker) Complete(ctx context.Context, blockID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	block := t.findLocked(blockID)
	if block == nil || block.Status == model.BlockProcessed {
		return fmt.Errorf("block %s: %w", blockID, ErrNotFound)
	}
	block.Status = model.BlockProcessed
	block.CompletedAt = t.now()

	t.log.Debug(ctx, "processing block completed", logging.String("block_id", blockID))
	return nil
}

// Resume re-arms a block stuck in "processing", typically after a crash,
// resetting its start marker so the computation can be retried. It fails
// with ErrNotFound for absent or completed blocks.
func (t *Tracker) Resume(ctx context.Context, blockID string) (*model.ProcessingBlock, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	block := t.findLocked(blockID)
	if block == nil || block.Status == model.BlockProcessed {
		return nil, fmt.Errorf("block %s: %w", blockID, ErrNotFound)
	}
	block.StartedAt = t.now()

	t.log.Info(ctx, "processing block resumed", logging.String("block_id", blockID))
	return block, nil
}

// Stale returns blocks still in "processing" that were started before the
// cutoff, candidates for Resume after a crashed computation.
func (t *Tracker) Stale(cutoff time.Time) []*model.ProcessingBlock {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*model.ProcessingBlock
	for _, chain := range t.blocks {
		for _, b := range chain {
			if b.Status == model.BlockProcessing && b.StartedAt.Before(cutoff) {
				out = append(out, b)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Blocks returns a snapshot of the blocks for (asset, key) in start order.
func (t *Tracker) Blocks(assetID, key string) []model.ProcessingBlock {
	t.mu.Lock()
	defer t.mu.Unlock()

	chain := t.blocks[blockKey{assetID, key}]
	out := make([]model.ProcessingBlock, 0, len(chain))
	for _, b := range chain {
		out = append(out, *b)
	}
	return out
}

// UncoveredGaps returns the ordered sub-ranges of horizon not yet covered by
// any "processed" block for (asset, key). The union of the returned gaps and
// the processed blocks' ranges exactly covers the horizon. Blocks still in
// "processing" do not count as coverage.
func (t *Tracker) UncoveredGaps(assetID, key string, horizon model.TimeRange) []model.TimeRange {
	if !horizon.IsValid() {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var gaps []model.TimeRange
	cursor := horizon.Start
	for _, b := range t.blocks[blockKey{assetID, key}] {
		if b.Status != model.BlockProcessed {
			continue
		}
		covered, ok := b.Range.Intersection(horizon)
		if !ok {
			continue
		}
		if covered.Start.After(cursor) {
			gaps = append(gaps, model.TimeRange{Start: cursor, End: covered.Start})
		}
		if covered.End.After(cursor) {
			cursor = covered.End
		}
	}
	if cursor.Before(horizon.End) {
		gaps = append(gaps, model.TimeRange{Start: cursor, End: horizon.End})
	}
	return gaps
}

func (t *Tracker) insertLocked(bk blockKey, block *model.ProcessingBlock) {
	chain := t.blocks[bk]
	pos := sort.Search(len(chain), func(i int) bool {
		return chain[i].Range.Start.After(block.Range.Start)
	})
	chain = append(chain, nil)
	copy(chain[pos+1:], chain[pos:])
	chain[pos] = block
	t.blocks[bk] = chain
	t.index[block.ID] = bk
}

func (t *Tracker) findLocked(blockID string) *model.ProcessingBlock {
	bk, ok := t.index[blockID]
	if !ok {
		return nil
	}
	for _, b := range t.blocks[bk] {
		if b.ID == blockID {
			return b
		}
	}
	return nil
}
