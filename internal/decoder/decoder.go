package decoder

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	logging "github.com/origin-gov/governance-listener/internal/logger"
	"github.com/origin-gov/governance-listener/internal/metrics"
	"github.com/origin-gov/governance-listener/internal/registry"
)

// ErrUnknownEvent marks a log whose (address, topic0) pair has no binding
// in the contract registry.
var ErrUnknownEvent = errors.New("unknown event")

// Event is a decoded on-chain event, ready for reconciliation.
type Event struct {
	Contract string
	Name     string
	Handler  string

	// Values holds the decoded event arguments, indexed and non-indexed
	// alike, keyed by ABI argument name.
	Values map[string]interface{}

	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Timestamp   int64
}

// Decoder turns raw logs into typed events using the contract registry.
type Decoder struct {
	registry      *registry.Registry
	logger        *logging.Logger
	ignoreUnknown bool
}

func New(reg *registry.Registry, logger *logging.Logger, ignoreUnknown bool) *Decoder {
	return &Decoder{
		registry:      reg,
		logger:        logger,
		ignoreUnknown: ignoreUnknown,
	}
}

// Decode decodes a single log. Returns ErrUnknownEvent when the log does
// not match any registered binding.
func (d *Decoder) Decode(log types.Log, timestamp int64) (*Event, error) {
	if len(log.Topics) == 0 {
		return nil, fmt.Errorf("log %s has no topics", log.TxHash.Hex())
	}

	binding, ok := d.registry.Lookup(log.Address, log.Topics[0])
	if !ok {
		return nil, ErrUnknownEvent
	}

	values := make(map[string]interface{})

	var indexed abi.Arguments
	for _, arg := range binding.Event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}

	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
			return nil, fmt.Errorf("failed to parse topics for %s: %w", binding.Event.Name, err)
		}
	}

	if len(log.Data) > 0 {
		if err := binding.Event.Inputs.NonIndexed().UnpackIntoMap(values, log.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack data for %s: %w", binding.Event.Name, err)
		}
	}

	return &Event{
		Contract:    binding.Contract,
		Name:        binding.Event.Name,
		Handler:     binding.Handler,
		Values:      values,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Timestamp:   timestamp,
	}, nil
}

// DecodeBatch decodes a chunk of logs. An unknown signature on a watched
// contract is an error unless ignore_unknown_events is set, in which case
// the log is dropped; a malformed known event is always logged and skipped
// so one bad log cannot stall the pipeline.
func (d *Decoder) DecodeBatch(logs []types.Log, timestamps map[uint64]int64) ([]*Event, error) {
	events := make([]*Event, 0, len(logs))

	for _, log := range logs {
		event, err := d.Decode(log, timestamps[log.BlockNumber])
		if err != nil {
			if errors.Is(err, ErrUnknownEvent) {
				if !d.ignoreUnknown {
					return nil, fmt.Errorf("%w at block %d tx %s (address %s, topic %s)",
						ErrUnknownEvent, log.BlockNumber, log.TxHash.Hex(), log.Address.Hex(), log.Topics[0].Hex())
				}

				metrics.EventDroppedInc("unknown")
				d.logger.Debugf("ignoring unknown event at block %d tx %s", log.BlockNumber, log.TxHash.Hex())

				continue
			}

			metrics.EventDroppedInc("decode_error")
			d.logger.Errorf("failed to decode log at block %d tx %s: %v", log.BlockNumber, log.TxHash.Hex(), err)

			continue
		}

		events = append(events, event)
	}

	return events, nil
}
