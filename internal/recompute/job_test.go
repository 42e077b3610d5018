package recompute

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/origin-gov/governance-listener/internal/db"
	logging "github.com/origin-gov/governance-listener/internal/logger"
	"github.com/origin-gov/governance-listener/internal/registry"
	"github.com/origin-gov/governance-listener/internal/store"
	"github.com/origin-gov/governance-listener/internal/store/migrations"
	"github.com/origin-gov/governance-listener/pkg/config"
	pkgrpc "github.com/origin-gov/governance-listener/pkg/rpc"
)

type balanceClient struct {
	balances map[common.Address]*big.Int
	failFor  map[common.Address]error
}

func (b *balanceClient) Close() {}

func (b *balanceClient) HeadBlockNumber(ctx context.Context) (uint64, error) {
	return 0, errors.New("not implemented")
}

func (b *balanceClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return nil, errors.New("not implemented")
}

func (b *balanceClient) GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	return nil, errors.New("not implemented")
}

func (b *balanceClient) BatchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error) {
	return nil, errors.New("not implemented")
}

func (b *balanceClient) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	if err, ok := b.failFor[holder]; ok {
		return nil, err
	}

	if balance, ok := b.balances[holder]; ok {
		return balance, nil
	}

	return big.NewInt(0), nil
}

// cancellingClient cancels the given context during the first balance read,
// as a shutdown signal arriving while a refresh pass is in flight would.
type cancellingClient struct {
	balanceClient
	cancel context.CancelFunc
	calls  int
}

func (c *cancellingClient) TokenBalance(ctx context.Context, token, holder common.Address) (*big.Int, error) {
	c.calls++
	if c.calls == 1 {
		c.cancel()
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return c.balanceClient.TokenBalance(ctx, token, holder)
}

func newTestJob(t *testing.T, eth pkgrpc.EthClient) (*Job, *store.Store) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "listener.db")

	sqlDB, err := db.NewSQLiteDB(dbPath)
	require.NoError(t, err)

	require.NoError(t, db.RunMigrationsDB(logging.NewNopLogger(), sqlDB, migrations.Migrations()))

	s := store.NewWithDB(sqlDB)
	t.Cleanup(func() { s.Close() })

	reg, err := registry.New(config.NetworkConfig{
		RPCURL:          "http://localhost:8545",
		GovernanceToken: "0x9c354503C38481a7A7a51629142963F98eCC12D0",
		Contracts: []config.ContractConfig{
			{
				Name:    "staking",
				Address: "0x0C4576Ca1c365868E162554AF8e385dc3e7C66D9",
				ABI:     `[{"type":"event","name":"Stake","inputs":[{"name":"user","type":"address","indexed":true}]}]`,
				Events:  []config.EventConfig{{Name: "Stake", Handler: config.HandlerStake}},
			},
		},
	})
	require.NoError(t, err)

	return New(s, eth, reg, logging.NewNopLogger()), s
}

func TestRunOnceUpdatesChangedBalances(t *testing.T) {
	t.Parallel()

	alice := common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob := common.HexToAddress("0x2222222222222222222222222222222222222222")

	eth := &balanceClient{balances: map[common.Address]*big.Int{
		alice: big.NewInt(500), // changed
		bob:   big.NewInt(300), // unchanged
	}}

	job, s := newTestJob(t, eth)

	require.NoError(t, s.InsertVoter(s.DB(), &store.Voter{Address: alice, Votes: "100", FirstSeenBlock: 1}))
	require.NoError(t, s.InsertVoter(s.DB(), &store.Voter{Address: bob, Votes: "300", FirstSeenBlock: 2}))

	require.NoError(t, job.RunOnce(context.Background()))

	got, err := s.GetVoter(s.DB(), alice)
	require.NoError(t, err)
	require.Equal(t, "500", got.Votes)

	got, err = s.GetVoter(s.DB(), bob)
	require.NoError(t, err)
	require.Equal(t, "300", got.Votes)
}

func TestRunOnceSkipsFailedReads(t *testing.T) {
	t.Parallel()

	alice := common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob := common.HexToAddress("0x2222222222222222222222222222222222222222")

	eth := &balanceClient{
		balances: map[common.Address]*big.Int{bob: big.NewInt(700)},
		failFor:  map[common.Address]error{alice: errors.New("connection reset")},
	}

	job, s := newTestJob(t, eth)

	require.NoError(t, s.InsertVoter(s.DB(), &store.Voter{Address: alice, Votes: "100", FirstSeenBlock: 1}))
	require.NoError(t, s.InsertVoter(s.DB(), &store.Voter{Address: bob, Votes: "100", FirstSeenBlock: 2}))

	require.NoError(t, job.RunOnce(context.Background()))

	// alice keeps her last known value, bob got refreshed
	got, err := s.GetVoter(s.DB(), alice)
	require.NoError(t, err)
	require.Equal(t, "100", got.Votes)

	got, err = s.GetVoter(s.DB(), bob)
	require.NoError(t, err)
	require.Equal(t, "700", got.Votes)
}

func TestShutdownDrainsInFlightRefresh(t *testing.T) {
	t.Parallel()

	alice := common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob := common.HexToAddress("0x2222222222222222222222222222222222222222")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eth := &cancellingClient{
		balanceClient: balanceClient{balances: map[common.Address]*big.Int{
			alice: big.NewInt(500),
			bob:   big.NewInt(700),
		}},
		cancel: cancel,
	}

	job, s := newTestJob(t, eth)

	require.NoError(t, s.InsertVoter(s.DB(), &store.Voter{Address: alice, Votes: "100", FirstSeenBlock: 1}))
	require.NoError(t, s.InsertVoter(s.DB(), &store.Voter{Address: bob, Votes: "100", FirstSeenBlock: 2}))

	// ctx is cancelled while alice is being read; the pass still finishes
	// every voter before control returns
	require.NoError(t, job.refresh(ctx))
	require.Error(t, ctx.Err())
	require.Equal(t, 2, eth.calls)

	got, err := s.GetVoter(s.DB(), alice)
	require.NoError(t, err)
	require.Equal(t, "500", got.Votes)

	got, err = s.GetVoter(s.DB(), bob)
	require.NoError(t, err)
	require.Equal(t, "700", got.Votes)
}

func TestNextRun(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 15, 13, 45, 12, 0, time.UTC)
	require.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), nextRun(now))

	// exactly at midnight the next run is a full day away
	midnight := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), nextRun(midnight))

	// month rollover
	endOfMonth := time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), nextRun(endOfMonth))
}
