package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/origin-gov/governance-listener/pkg/config"
)

const stakingABI = `[
	{"type":"event","name":"Stake","inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"lockupId","type":"uint256","indexed":false}]},
	{"type":"event","name":"Unstake","inputs":[
		{"name":"user","type":"address","indexed":true},
		{"name":"lockupId","type":"uint256","indexed":false}]}
]`

const governanceABI = `[
	{"type":"event","name":"ProposalCreated","inputs":[
		{"name":"proposalId","type":"uint256","indexed":false},
		{"name":"description","type":"string","indexed":false}]}
]`

func testNetwork() config.NetworkConfig {
	return config.NetworkConfig{
		RPCURL:          "http://localhost:8545",
		GovernanceToken: "0x9c354503C38481a7A7a51629142963F98eCC12D0",
		Contracts: []config.ContractConfig{
			{
				Name:    "staking",
				Address: "0x0C4576Ca1c365868E162554AF8e385dc3e7C66D9",
				ABI:     stakingABI,
				Events: []config.EventConfig{
					{Name: "Stake", Handler: config.HandlerStake},
					{Name: "Unstake", Handler: config.HandlerUnstake},
				},
			},
			{
				Name:    "governance",
				Address: "0x3cdD07c16614059e66344a7b579DAB4f9516C0b6",
				ABI:     governanceABI,
				Events: []config.EventConfig{
					{Name: "ProposalCreated", Handler: config.HandlerProposalCreated},
				},
			},
		},
	}
}

func TestRegistryLookups(t *testing.T) {
	t.Parallel()

	reg, err := New(testNetwork())
	require.NoError(t, err)

	staking, ok := reg.ByName("staking")
	require.True(t, ok)
	require.Equal(t, common.HexToAddress("0x0C4576Ca1c365868E162554AF8e385dc3e7C66D9"), staking.Address)

	byAddr, ok := reg.ByAddress(staking.Address)
	require.True(t, ok)
	require.Equal(t, "staking", byAddr.Name)

	_, ok = reg.ByName("unknown")
	require.False(t, ok)

	stakeID := staking.ABI.Events["Stake"].ID
	binding, ok := reg.Lookup(staking.Address, stakeID)
	require.True(t, ok)
	require.Equal(t, config.HandlerStake, binding.Handler)
	require.Equal(t, "Stake", binding.Event.Name)

	// right topic, wrong contract
	governance, _ := reg.ByName("governance")
	_, ok = reg.Lookup(governance.Address, stakeID)
	require.False(t, ok)

	require.ElementsMatch(t,
		[]common.Address{staking.Address, governance.Address},
		reg.Addresses())

	topics := reg.Topics()
	require.Len(t, topics, 1)
	require.Len(t, topics[0], 3)

	require.Equal(t, common.HexToAddress("0x9c354503C38481a7A7a51629142963F98eCC12D0"), reg.GovernanceToken())
}

func TestRegistryRejectsUnknownEventName(t *testing.T) {
	t.Parallel()

	network := testNetwork()
	network.Contracts[0].Events = append(network.Contracts[0].Events,
		config.EventConfig{Name: "NoSuchEvent", Handler: config.HandlerStake})

	_, err := New(network)
	require.Error(t, err)
	require.Contains(t, err.Error(), "NoSuchEvent")
}

func TestRegistryRejectsDuplicateContractName(t *testing.T) {
	t.Parallel()

	network := testNetwork()
	network.Contracts[1].Name = "staking"

	_, err := New(network)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")
}

func TestRegistryRejectsBadABI(t *testing.T) {
	t.Parallel()

	network := testNetwork()
	network.Contracts[0].ABI = "{not json"

	_, err := New(network)
	require.Error(t, err)
}
