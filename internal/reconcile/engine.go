package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/origin-gov/governance-listener/internal/decoder"
	logging "github.com/origin-gov/governance-listener/internal/logger"
	"github.com/origin-gov/governance-listener/internal/metrics"
	"github.com/origin-gov/governance-listener/internal/registry"
	"github.com/origin-gov/governance-listener/internal/store"
	"github.com/origin-gov/governance-listener/pkg/config"
	pkgrpc "github.com/origin-gov/governance-listener/pkg/rpc"
)

// voterAddressKeys are the ABI argument names checked, in order, when a
// new voter event does not name its subject "voter".
var voterAddressKeys = []string{"voter", "delegator", "user", "account"}

// Engine applies decoded events to the store. A whole batch commits in one
// transaction together with the checkpoint, so a crash either replays the
// batch in full or not at all. Every handler is idempotent, which makes the
// replay safe.
type Engine struct {
	store    *store.Store
	eth      pkgrpc.EthClient
	registry *registry.Registry
	logger   *logging.Logger
}

func New(s *store.Store, eth pkgrpc.EthClient, reg *registry.Registry, logger *logging.Logger) *Engine {
	return &Engine{
		store:    s,
		eth:      eth,
		registry: reg,
		logger:   logger,
	}
}

// Apply reconciles a chunk of events in order and advances the checkpoint
// to checkpointBlock, all inside one transaction. On error nothing is
// written and the checkpoint stays put, so the chunk is re-fetched and
// replayed on the next poll.
func (e *Engine) Apply(ctx context.Context, events []*decoder.Event, checkpointBlock uint64) error {
	tx, err := e.store.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, event := range events {
		if err := e.applyOne(ctx, tx, event); err != nil {
			metrics.ReconcileErrorInc(event.Handler)

			return fmt.Errorf("failed to reconcile %s at block %d tx %s: %w",
				event.Name, event.BlockNumber, event.TxHash.Hex(), err)
		}

		metrics.EventReconciledInc(event.Handler)
	}

	if err := e.store.SaveCheckpoint(tx, checkpointBlock); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	return nil
}

func (e *Engine) applyOne(ctx context.Context, tx *sql.Tx, event *decoder.Event) error {
	switch event.Handler {
	case config.HandlerProposalCreated:
		return e.applyProposalCreated(tx, event)
	case config.HandlerStake:
		return e.applyStake(tx, event)
	case config.HandlerUnstake:
		return e.applyUnstake(tx, event)
	case config.HandlerNewVoter:
		return e.applyNewVoter(ctx, tx, event)
	default:
		return fmt.Errorf("no handler registered for kind %q", event.Handler)
	}
}

// applyProposalCreated inserts a proposal once. A re-delivered event with
// the same payload is ignored; a colliding id with a different payload is
// logged and skipped, never overwritten.
func (e *Engine) applyProposalCreated(tx *sql.Tx, event *decoder.Event) error {
	proposalID, err := bigValue(event, "proposalId")
	if err != nil {
		return err
	}

	description, ok := event.Values["description"].(string)
	if !ok {
		return fmt.Errorf("event %s missing string argument %q", event.Name, "description")
	}

	proposal := &store.Proposal{
		ProposalID:  proposalID.String(),
		Description: description,
		CreatedAt:   event.Timestamp,
	}

	existing, err := e.store.GetProposal(tx, proposal.ProposalID)
	if err != nil {
		return err
	}

	if existing != nil {
		if existing.Equal(proposal) {
			metrics.EventDroppedInc("duplicate")
			e.logger.Debugf("proposal %s already indexed, skipping", proposal.ProposalID)
		} else {
			e.logger.Warnf("proposal %s re-delivered with different payload, keeping existing record",
				proposal.ProposalID)
		}

		return nil
	}

	if err := e.store.InsertProposal(tx, proposal); err != nil {
		return err
	}

	return e.store.InsertTransaction(tx, &store.Transaction{
		Hash:        event.TxHash,
		Event:       event.Name,
		CreatedAt:   event.Timestamp,
		ProposalRef: &proposal.ID,
	})
}

// applyStake creates the lockup on first sight and treats a second event
// for the same (lockupId, user) pair as an extension of the existing
// position. The chain emits the same event for both; prior-record existence
// is the only thing that disambiguates them.
func (e *Engine) applyStake(tx *sql.Tx, event *decoder.Event) error {
	user, lockupID, err := lockupKey(event)
	if err != nil {
		return err
	}

	amount, err := bigValue(event, "amount")
	if err != nil {
		return err
	}

	end, err := bigValue(event, "end")
	if err != nil {
		return err
	}

	points, err := bigValue(event, "points")
	if err != nil {
		return err
	}

	existing, err := e.store.GetLockup(tx, lockupID, user)
	if err != nil {
		return err
	}

	if existing == nil {
		lockup := &store.Lockup{
			LockupID: lockupID,
			User:     user,
			Amount:   amount.String(),
			End:      end.Int64(),
			Points:   points.String(),
			Active:   true,
		}

		if err := e.store.InsertLockup(tx, lockup); err != nil {
			return err
		}

		return e.store.InsertTransaction(tx, &store.Transaction{
			Hash:      event.TxHash,
			Event:     store.TxEventStake,
			CreatedAt: event.Timestamp,
			LockupRef: &lockup.ID,
		})
	}

	// an extension overwrites the lock end and the voting weight; the
	// locked amount of the original position is untouched
	existing.End = end.Int64()
	existing.Points = points.String()
	existing.Active = true

	if err := e.store.UpdateLockup(tx, existing); err != nil {
		return err
	}

	return e.store.InsertTransaction(tx, &store.Transaction{
		Hash:      event.TxHash,
		Event:     store.TxEventExtend,
		CreatedAt: event.Timestamp,
		LockupRef: &existing.ID,
	})
}

// applyUnstake flips the position inactive, leaving amount, end and points
// as the audit trail of what was staked. An unstake for a position that was
// never indexed is logged and ignored.
func (e *Engine) applyUnstake(tx *sql.Tx, event *decoder.Event) error {
	user, lockupID, err := lockupKey(event)
	if err != nil {
		return err
	}

	existing, err := e.store.GetLockup(tx, lockupID, user)
	if err != nil {
		return err
	}

	if existing == nil {
		e.logger.Warnf("unstake for unknown lockup %d user %s at block %d, ignoring",
			lockupID, user.Hex(), event.BlockNumber)

		return nil
	}

	existing.Active = false

	if err := e.store.UpdateLockup(tx, existing); err != nil {
		return err
	}

	return e.store.InsertTransaction(tx, &store.Transaction{
		Hash:      event.TxHash,
		Event:     store.TxEventUnstake,
		CreatedAt: event.Timestamp,
		LockupRef: &existing.ID,
	})
}

// applyNewVoter registers a voter on first sight, reading their live vote
// power from the governance token. A balance read failure aborts the batch
// so the event is replayed instead of recording a stale zero.
func (e *Engine) applyNewVoter(ctx context.Context, tx *sql.Tx, event *decoder.Event) error {
	address, err := voterAddress(event)
	if err != nil {
		return err
	}

	existing, err := e.store.GetVoter(tx, address)
	if err != nil {
		return err
	}

	if existing != nil {
		metrics.EventDroppedInc("duplicate")
		e.logger.Debugf("voter %s already indexed, skipping", address.Hex())

		return nil
	}

	balance, err := e.eth.TokenBalance(ctx, e.registry.GovernanceToken(), address)
	if err != nil {
		return fmt.Errorf("failed to read vote power for %s: %w", address.Hex(), err)
	}

	return e.store.InsertVoter(tx, &store.Voter{
		Address:        address,
		Votes:          balance.String(),
		FirstSeenBlock: event.BlockNumber,
	})
}

func lockupKey(event *decoder.Event) (common.Address, int64, error) {
	user, ok := event.Values["user"].(common.Address)
	if !ok {
		return common.Address{}, 0, fmt.Errorf("event %s missing address argument %q", event.Name, "user")
	}

	lockupID, err := bigValue(event, "lockupId")
	if err != nil {
		return common.Address{}, 0, err
	}

	return user, lockupID.Int64(), nil
}

func voterAddress(event *decoder.Event) (common.Address, error) {
	for _, key := range voterAddressKeys {
		if addr, ok := event.Values[key].(common.Address); ok {
			return addr, nil
		}
	}

	return common.Address{}, fmt.Errorf("event %s carries no voter address argument", event.Name)
}

func bigValue(event *decoder.Event, key string) (*big.Int, error) {
	value, ok := event.Values[key].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("event %s missing uint256 argument %q", event.Name, key)
	}

	return value, nil
}
