package store

import (
	"github.com/ethereum/go-ethereum/common"
)

// Lockup is a staking position, keyed by (lockup_id, user_address).
// Rows are never deleted; an Unstake only flips Active off so the
// transaction history below it stays intact.
type Lockup struct {
	ID       int64          `meddler:"id,pk"`
	LockupID int64          `meddler:"lockup_id"`
	User     common.Address `meddler:"user_address,address"`
	Amount   string         `meddler:"amount"` // uint256 as decimal string
	End      int64          `meddler:"end_ts"` // unix timestamp
	Points   string         `meddler:"points"` // uint256 as decimal string
	Active   bool           `meddler:"active"`
}

// Transaction is an append-only record of the on-chain transaction that
// produced an entity change. It belongs to exactly one lockup or proposal.
type Transaction struct {
	ID        int64       `meddler:"id,pk"`
	Hash      common.Hash `meddler:"tx_hash,hash"`
	Event     string      `meddler:"event"`
	CreatedAt int64       `meddler:"created_at"` // event block timestamp

	LockupRef   *int64 `meddler:"lockup_id"`
	ProposalRef *int64 `meddler:"proposal_id"`
}

// Transaction event names.
const (
	TxEventStake   = "Stake"
	TxEventExtend  = "Extend"
	TxEventUnstake = "Unstake"
)

// Proposal is a governance proposal, keyed by the on-chain proposal id
// (distinct from the local auto-increment id).
type Proposal struct {
	ID          int64  `meddler:"id,pk"`
	ProposalID  string `meddler:"proposal_id"` // uint256 as decimal string
	Description string `meddler:"description"`
	CreatedAt   int64  `meddler:"created_at"`
}

// Voter is a governance participant with a token-weighted vote balance.
// Votes is refreshed by the daily recomputation job.
type Voter struct {
	ID             int64          `meddler:"id,pk"`
	Address        common.Address `meddler:"address,address"`
	Votes          string         `meddler:"votes"` // uint256 as decimal string
	FirstSeenBlock uint64         `meddler:"first_seen_block"`
}

// Equal reports whether two proposals carry the same payload, ignoring the
// local auto-increment id. Used to tell benign re-delivery from a genuine
// key collision.
func (p *Proposal) Equal(other *Proposal) bool {
	return p.ProposalID == other.ProposalID &&
		p.Description == other.Description
}
