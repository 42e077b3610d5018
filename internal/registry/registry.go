package registry

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/origin-gov/governance-listener/pkg/config"
)

// Contract is a watched contract with its parsed ABI.
type Contract struct {
	Name    string
	Address common.Address
	ABI     abi.ABI
}

// EventBinding binds one event signature on one contract to a handler kind.
type EventBinding struct {
	Contract string
	Event    abi.Event
	Handler  string
}

// Registry is the typed contract registry, built once at startup from static
// configuration. It replaces ad hoc merging of address/ABI bags at runtime:
// lookups go through logical contract names or (address, topic0) pairs.
type Registry struct {
	contracts map[string]*Contract
	byAddress map[common.Address]*Contract
	bindings  map[common.Address]map[common.Hash]EventBinding

	governanceToken common.Address
}

// New builds a Registry from the selected network's contract bundle.
// Every configured event must exist in the contract's ABI; a mismatch is a
// configuration error and fails startup.
func New(network config.NetworkConfig) (*Registry, error) {
	r := &Registry{
		contracts:       make(map[string]*Contract),
		byAddress:       make(map[common.Address]*Contract),
		bindings:        make(map[common.Address]map[common.Hash]EventBinding),
		governanceToken: common.HexToAddress(network.GovernanceToken),
	}

	for _, contractCfg := range network.Contracts {
		parsedABI, err := loadABI(contractCfg)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", contractCfg.Name, err)
		}

		contract := &Contract{
			Name:    contractCfg.Name,
			Address: common.HexToAddress(contractCfg.Address),
			ABI:     parsedABI,
		}

		if _, exists := r.contracts[contract.Name]; exists {
			return nil, fmt.Errorf("duplicate contract name: %s", contract.Name)
		}
		r.contracts[contract.Name] = contract
		r.byAddress[contract.Address] = contract

		topicBindings := make(map[common.Hash]EventBinding, len(contractCfg.Events))
		for _, eventCfg := range contractCfg.Events {
			event, ok := parsedABI.Events[eventCfg.Name]
			if !ok {
				return nil, fmt.Errorf("contract %s: event %s not found in ABI", contractCfg.Name, eventCfg.Name)
			}

			topicBindings[event.ID] = EventBinding{
				Contract: contractCfg.Name,
				Event:    event,
				Handler:  eventCfg.Handler,
			}
		}
		r.bindings[contract.Address] = topicBindings
	}

	return r, nil
}

// loadABI parses the contract ABI from inline JSON or a file path.
func loadABI(cfg config.ContractConfig) (abi.ABI, error) {
	abiJSON := cfg.ABI
	if abiJSON == "" {
		data, err := os.ReadFile(cfg.ABIPath)
		if err != nil {
			return abi.ABI{}, fmt.Errorf("failed to read ABI file %s: %w", cfg.ABIPath, err)
		}
		abiJSON = string(data)
	}

	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return parsed, nil
}

// ByName returns the contract registered under the given logical name.
func (r *Registry) ByName(name string) (*Contract, bool) {
	contract, ok := r.contracts[name]
	return contract, ok
}

// ByAddress returns the contract registered at the given address.
func (r *Registry) ByAddress(addr common.Address) (*Contract, bool) {
	contract, ok := r.byAddress[addr]
	return contract, ok
}

// Lookup resolves a (contract address, topic0) pair to its event binding.
func (r *Registry) Lookup(addr common.Address, topic0 common.Hash) (EventBinding, bool) {
	topics, ok := r.bindings[addr]
	if !ok {
		return EventBinding{}, false
	}
	binding, ok := topics[topic0]
	return binding, ok
}

// Addresses returns all watched contract addresses.
func (r *Registry) Addresses() []common.Address {
	addresses := make([]common.Address, 0, len(r.byAddress))
	for addr := range r.byAddress {
		addresses = append(addresses, addr)
	}
	return addresses
}

// Topics returns the OR-set of watched topic0 hashes, in the positional
// format expected by eth_getLogs filter queries.
func (r *Registry) Topics() [][]common.Hash {
	var topic0 []common.Hash
	for _, topics := range r.bindings {
		for topic := range topics {
			topic0 = append(topic0, topic)
		}
	}
	return [][]common.Hash{topic0}
}

// GovernanceToken returns the address used for vote power balance reads.
func (r *Registry) GovernanceToken() common.Address {
	return r.governanceToken
}
