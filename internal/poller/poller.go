package poller

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"golang.org/x/sync/errgroup"

	"github.com/origin-gov/governance-listener/internal/decoder"
	logging "github.com/origin-gov/governance-listener/internal/logger"
	"github.com/origin-gov/governance-listener/internal/metrics"
	"github.com/origin-gov/governance-listener/internal/reconcile"
	"github.com/origin-gov/governance-listener/internal/registry"
	"github.com/origin-gov/governance-listener/internal/store"
	"github.com/origin-gov/governance-listener/pkg/config"
	pkgrpc "github.com/origin-gov/governance-listener/pkg/rpc"
)

// Poller drives the listener loop: every poll interval it figures out the
// confirmed block range that still needs indexing, fetches its logs in
// concurrent chunks, and hands the decoded events to the reconciliation
// engine strictly in block order.
type Poller struct {
	cfg      config.ListenerConfig
	eth      pkgrpc.EthClient
	registry *registry.Registry
	decoder  *decoder.Decoder
	engine   *reconcile.Engine
	store    *store.Store
	logger   *logging.Logger
}

func New(
	cfg config.ListenerConfig,
	eth pkgrpc.EthClient,
	reg *registry.Registry,
	dec *decoder.Decoder,
	engine *reconcile.Engine,
	s *store.Store,
	logger *logging.Logger,
) *Poller {
	return &Poller{
		cfg:      cfg,
		eth:      eth,
		registry: reg,
		decoder:  dec,
		engine:   engine,
		store:    s,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled. Transient errors inside a tick are
// logged and retried on the next tick: a flaky RPC endpoint must not take
// the listener down. An unknown event signature on a watched contract is
// not transient; unless ignore_unknown_events is set it is returned and
// stops the listener, because every later tick would hit the same log.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Infof("starting poller (interval %s, chunk size %d, concurrency %d)",
		p.cfg.PollInterval.Duration, p.cfg.ChunkSize, p.cfg.Concurrency)

	ticker := time.NewTicker(p.cfg.PollInterval.Duration)
	defer ticker.Stop()

	for {
		if err := p.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if errors.Is(err, decoder.ErrUnknownEvent) {
				return err
			}

			p.logger.Errorf("poll failed: %v", err)
		}

		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping")

			return nil
		case <-ticker.C:
		}
	}
}

// pollOnce processes at most concurrency * chunk_size blocks. Anything
// beyond that waits for the next tick, which bounds memory per tick and
// keeps the checkpoint advancing steadily during a long catch-up.
func (p *Poller) pollOnce(ctx context.Context) error {
	head, err := p.eth.HeadBlockNumber(ctx)
	if err != nil {
		return err
	}

	depth := *p.cfg.ConfirmationDepth
	if head < depth {
		return nil
	}
	confirmed := head - depth

	from, err := p.nextBlock(head, confirmed)
	if err != nil {
		return err
	}

	if from > confirmed {
		return nil
	}

	to := confirmed
	maxSpan := p.cfg.ChunkSize * uint64(p.cfg.Concurrency)
	if to-from+1 > maxSpan {
		to = from + maxSpan - 1
	}

	chunks := planChunks(from, to, p.cfg.ChunkSize)
	results := make([][]*decoder.Event, len(chunks))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.cfg.Concurrency)

	for i, chunk := range chunks {
		group.Go(func() error {
			events, err := p.fetchChunk(groupCtx, chunk)
			if err != nil {
				return err
			}

			results[i] = events

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	// chunks commit in ascending order so the checkpoint never covers an
	// unreconciled gap
	for i, chunk := range chunks {
		if err := p.engine.Apply(ctx, results[i], chunk.to); err != nil {
			return err
		}

		metrics.LastSeenBlockSet(chunk.to)
		metrics.BlocksProcessedAdd(chunk.to - chunk.from + 1)
	}

	p.logger.Debugf("processed blocks %d..%d (head %d)", from, to, head)

	return nil
}

// nextBlock picks the first block to index this tick: the block after the
// checkpoint, but never below the configured start block, so raising
// start_block on an existing database skips the blocks below it. Outside
// production a checkpoint too far from the head is abandoned and indexing
// resumes at the confirmed tip, which keeps a stale dev database from
// replaying weeks of history.
func (p *Poller) nextBlock(head, confirmed uint64) (uint64, error) {
	checkpoint, found, err := p.store.GetCheckpoint()
	if err != nil {
		return 0, err
	}

	from := p.cfg.StartBlock
	if found && checkpoint+1 > from {
		from = checkpoint + 1
	}

	if !p.cfg.Production && p.cfg.HeadSkipThreshold > 0 && found {
		if drift(checkpoint, head) > p.cfg.HeadSkipThreshold {
			p.logger.Warnf("checkpoint %d is %d blocks from head %d, skipping to confirmed tip %d",
				checkpoint, drift(checkpoint, head), head, confirmed)

			return confirmed, nil
		}
	}

	return from, nil
}

type blockRange struct {
	from uint64
	to   uint64
}

func planChunks(from, to, size uint64) []blockRange {
	var chunks []blockRange

	for start := from; start <= to; start += size {
		end := start + size - 1
		if end > to {
			end = to
		}

		chunks = append(chunks, blockRange{from: start, to: end})
	}

	return chunks
}

// fetchChunk fetches and decodes the logs of one block range. Event
// timestamps come from a single batched header request over the distinct
// blocks that actually emitted something.
func (p *Poller) fetchChunk(ctx context.Context, chunk blockRange) ([]*decoder.Event, error) {
	logs, err := p.eth.GetLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(chunk.from),
		ToBlock:   new(big.Int).SetUint64(chunk.to),
		Addresses: p.registry.Addresses(),
		Topics:    p.registry.Topics(),
	})
	if err != nil {
		return nil, err
	}

	if len(logs) == 0 {
		return nil, nil
	}

	seen := make(map[uint64]struct{})
	var blockNums []uint64
	for _, log := range logs {
		if _, ok := seen[log.BlockNumber]; !ok {
			seen[log.BlockNumber] = struct{}{}
			blockNums = append(blockNums, log.BlockNumber)
		}
	}

	headers, err := p.eth.BatchGetBlockHeaders(ctx, blockNums)
	if err != nil {
		return nil, err
	}

	timestamps := make(map[uint64]int64, len(headers))
	for _, header := range headers {
		timestamps[header.Number.Uint64()] = int64(header.Time)
	}

	return p.decoder.DecodeBatch(logs, timestamps)
}

func drift(a, b uint64) uint64 {
	if a > b {
		return a - b
	}

	return b - a
}
