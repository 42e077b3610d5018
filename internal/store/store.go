package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/russross/meddler"

	"github.com/origin-gov/governance-listener/internal/db"
	"github.com/origin-gov/governance-listener/pkg/config"
)

// Store is the SQLite-backed repository for all listener state: the
// checkpoint, lockups, transactions, proposals and voters.
type Store struct {
	db *sql.DB
}

// New opens the listener database and returns a Store over it.
func New(cfg config.DatabaseConfig) (*Store, error) {
	sqlDB, err := db.NewSQLiteDBFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &Store{db: sqlDB}, nil
}

// NewWithDB wraps an already opened database handle. Used by tests.
func NewWithDB(sqlDB *sql.DB) *Store {
	return &Store{db: sqlDB}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin starts a write transaction. Reconciliation applies a whole batch
// inside one transaction so the checkpoint and entity writes commit together.
func (s *Store) Begin() (*sql.Tx, error) {
	return s.db.Begin()
}

// DB returns the raw handle for read-only query paths.
func (s *Store) DB() *sql.DB {
	return s.db
}

// GetCheckpoint returns the last fully reconciled block. The second return
// is false when no checkpoint row exists yet.
func (s *Store) GetCheckpoint() (uint64, bool, error) {
	var block uint64

	err := s.db.QueryRow("SELECT last_seen_block FROM checkpoint WHERE id = 1").Scan(&block)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}

	if err != nil {
		return 0, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	return block, true, nil
}

// SaveCheckpoint records the last fully reconciled block inside tx. The
// value never moves backwards, so a replayed batch cannot rewind it.
func (s *Store) SaveCheckpoint(tx *sql.Tx, block uint64) error {
	_, err := tx.Exec(
		`INSERT INTO checkpoint (id, last_seen_block) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET last_seen_block = MAX(last_seen_block, excluded.last_seen_block)`,
		block,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// GetLockup looks up a lockup by its composite key. Returns nil when no
// row exists.
func (s *Store) GetLockup(q meddler.DB, lockupID int64, user common.Address) (*Lockup, error) {
	lockup := &Lockup{}

	err := meddler.QueryRow(q, lockup,
		"SELECT * FROM lockups WHERE lockup_id = ? AND user_address = ?",
		lockupID, user.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get lockup %d for %s: %w", lockupID, user.Hex(), err)
	}

	return lockup, nil
}

// InsertLockup creates a new lockup row and fills in its local id.
func (s *Store) InsertLockup(q meddler.DB, lockup *Lockup) error {
	if err := meddler.Insert(q, "lockups", lockup); err != nil {
		return fmt.Errorf("failed to insert lockup: %w", err)
	}

	return nil
}

// UpdateLockup writes back all columns of an existing lockup row.
func (s *Store) UpdateLockup(q meddler.DB, lockup *Lockup) error {
	if err := meddler.Update(q, "lockups", lockup); err != nil {
		return fmt.Errorf("failed to update lockup: %w", err)
	}

	return nil
}

// InsertTransaction appends an on-chain transaction record.
func (s *Store) InsertTransaction(q meddler.DB, txRecord *Transaction) error {
	if err := meddler.Insert(q, "transactions", txRecord); err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// GetProposal looks up a proposal by its on-chain id. Returns nil when no
// row exists.
func (s *Store) GetProposal(q meddler.DB, proposalID string) (*Proposal, error) {
	proposal := &Proposal{}

	err := meddler.QueryRow(q, proposal,
		"SELECT * FROM proposals WHERE proposal_id = ?", proposalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get proposal %s: %w", proposalID, err)
	}

	return proposal, nil
}

// InsertProposal creates a new proposal row and fills in its local id.
func (s *Store) InsertProposal(q meddler.DB, proposal *Proposal) error {
	if err := meddler.Insert(q, "proposals", proposal); err != nil {
		return fmt.Errorf("failed to insert proposal: %w", err)
	}

	return nil
}

// GetVoter looks up a voter by address. Returns nil when no row exists.
func (s *Store) GetVoter(q meddler.DB, address common.Address) (*Voter, error) {
	voter := &Voter{}

	err := meddler.QueryRow(q, voter,
		"SELECT * FROM voters WHERE address = ?", address.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get voter %s: %w", address.Hex(), err)
	}

	return voter, nil
}

// InsertVoter creates a new voter row and fills in its local id.
func (s *Store) InsertVoter(q meddler.DB, voter *Voter) error {
	if err := meddler.Insert(q, "voters", voter); err != nil {
		return fmt.Errorf("failed to insert voter: %w", err)
	}

	return nil
}

// ListVoters returns all voters, used by the daily vote power refresh.
func (s *Store) ListVoters() ([]*Voter, error) {
	var voters []*Voter

	if err := meddler.QueryAll(s.db, &voters, "SELECT * FROM voters ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list voters: %w", err)
	}

	return voters, nil
}

// UpdateVoterVotes writes a voter's vote power only when it actually
// changed. Returns true when a row was written.
func (s *Store) UpdateVoterVotes(address common.Address, votes string) (bool, error) {
	res, err := s.db.Exec(
		"UPDATE voters SET votes = ? WHERE address = ? AND votes <> ?",
		votes, address.Hex(), votes)
	if err != nil {
		return false, fmt.Errorf("failed to update votes for %s: %w", address.Hex(), err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// LockupsByUser returns all lockups owned by an address, newest first.
func (s *Store) LockupsByUser(user common.Address) ([]*Lockup, error) {
	var lockups []*Lockup

	err := meddler.QueryAll(s.db, &lockups,
		"SELECT * FROM lockups WHERE user_address = ? ORDER BY lockup_id DESC",
		user.Hex())
	if err != nil {
		return nil, fmt.Errorf("failed to list lockups for %s: %w", user.Hex(), err)
	}

	return lockups, nil
}

// TransactionsForLockup returns the transaction history of a lockup in
// insertion order.
func (s *Store) TransactionsForLockup(lockupRef int64) ([]*Transaction, error) {
	var txs []*Transaction

	err := meddler.QueryAll(s.db, &txs,
		"SELECT * FROM transactions WHERE lockup_id = ? ORDER BY id", lockupRef)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for lockup %d: %w", lockupRef, err)
	}

	return txs, nil
}

// TransactionsForProposal returns the transactions recorded against a
// proposal in insertion order.
func (s *Store) TransactionsForProposal(proposalRef int64) ([]*Transaction, error) {
	var txs []*Transaction

	err := meddler.QueryAll(s.db, &txs,
		"SELECT * FROM transactions WHERE proposal_id = ? ORDER BY id", proposalRef)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for proposal %d: %w", proposalRef, err)
	}

	return txs, nil
}

// ListProposals returns a page of proposals, newest first.
func (s *Store) ListProposals(limit, offset int) ([]*Proposal, error) {
	var proposals []*Proposal

	err := meddler.QueryAll(s.db, &proposals,
		"SELECT * FROM proposals ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}

	return proposals, nil
}

// CountProposals returns the total number of proposals.
func (s *Store) CountProposals() (int, error) {
	var count int

	if err := s.db.QueryRow("SELECT COUNT(*) FROM proposals").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count proposals: %w", err)
	}

	return count, nil
}

// ListVotersRanked returns a page of voters ordered by vote power,
// highest first. Votes are stored as decimal strings, so the ordering
// pads by length first to keep it numeric.
func (s *Store) ListVotersRanked(limit, offset int) ([]*Voter, error) {
	var voters []*Voter

	err := meddler.QueryAll(s.db, &voters,
		"SELECT * FROM voters ORDER BY LENGTH(votes) DESC, votes DESC, id LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list voters: %w", err)
	}

	return voters, nil
}

// CountVoters returns the total number of voters.
func (s *Store) CountVoters() (int, error) {
	var count int

	if err := s.db.QueryRow("SELECT COUNT(*) FROM voters").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count voters: %w", err)
	}

	return count, nil
}
