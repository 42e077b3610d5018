package recompute

import (
	"context"
	"time"

	logging "github.com/origin-gov/governance-listener/internal/logger"
	"github.com/origin-gov/governance-listener/internal/metrics"
	"github.com/origin-gov/governance-listener/internal/registry"
	"github.com/origin-gov/governance-listener/internal/store"
	pkgrpc "github.com/origin-gov/governance-listener/pkg/rpc"
)

// Job refreshes every voter's vote power once a day at midnight UTC. The
// poll loop only learns about balance changes that emit watched events, so
// plain transfers would otherwise leave vote power stale forever.
type Job struct {
	store    *store.Store
	eth      pkgrpc.EthClient
	registry *registry.Registry
	logger   *logging.Logger

	now func() time.Time
}

func New(s *store.Store, eth pkgrpc.EthClient, reg *registry.Registry, logger *logging.Logger) *Job {
	return &Job{
		store:    s,
		eth:      eth,
		registry: reg,
		logger:   logger,
		now:      time.Now,
	}
}

// Run schedules the refresh until ctx is cancelled. The timer is owned
// here, not by a background scheduler: shutdown cancels a pending wait
// immediately, but a refresh that has already started runs to completion
// before Run returns.
func (j *Job) Run(ctx context.Context) error {
	for {
		wait := time.Until(nextRun(j.now().UTC()))
		j.logger.Infof("next vote power refresh in %s", wait.Round(time.Second))

		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil
		case <-timer.C:
		}

		if err := j.refresh(ctx); err != nil {
			j.logger.Errorf("vote power refresh failed: %v", err)
		}

		if ctx.Err() != nil {
			j.logger.Info("recompute job stopping")

			return nil
		}
	}
}

// refresh runs one full pass. The pass is detached from ctx cancellation so
// a shutdown signal arriving mid-run cannot abandon the remaining voters or
// fail their balance reads; Run exits only after the pass has drained.
func (j *Job) refresh(ctx context.Context) error {
	return j.RunOnce(context.WithoutCancel(ctx))
}

// RunOnce refreshes all voters. A voter whose balance cannot be read is
// skipped and retried on the next run; a failing endpoint must not wipe
// vote power for everyone else.
func (j *Job) RunOnce(ctx context.Context) error {
	voters, err := j.store.ListVoters()
	if err != nil {
		return err
	}

	token := j.registry.GovernanceToken()
	updated := 0

	for _, voter := range voters {
		balance, err := j.eth.TokenBalance(ctx, token, voter.Address)
		if err != nil {
			metrics.VoterRefreshInc("failed")
			j.logger.Warnf("failed to read vote power for %s: %v", voter.Address.Hex(), err)

			continue
		}

		changed, err := j.store.UpdateVoterVotes(voter.Address, balance.String())
		if err != nil {
			metrics.VoterRefreshInc("failed")
			j.logger.Errorf("failed to store vote power for %s: %v", voter.Address.Hex(), err)

			continue
		}

		if changed {
			metrics.VoterRefreshInc("updated")
			updated++
		} else {
			metrics.VoterRefreshInc("unchanged")
		}
	}

	j.logger.Infof("vote power refresh done: %d voters, %d updated", len(voters), updated)

	return nil
}

// nextRun returns the next midnight UTC strictly after now.
func nextRun(now time.Time) time.Time {
	year, month, day := now.Date()

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
