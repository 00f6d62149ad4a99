package blockchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/feed-coverage/internal/ports/outbound"
)

// FeedSlot names a zero-argument oracle getter that returns an upstream
// aggregator address.
type FeedSlot string

const (
	BaseFeed1  FeedSlot = "BASE_FEED_1"
	BaseFeed2  FeedSlot = "BASE_FEED_2"
	QuoteFeed1 FeedSlot = "QUOTE_FEED_1"
	QuoteFeed2 FeedSlot = "QUOTE_FEED_2"
)

// FeedSlots is the fixed probe list, in probe order.
var FeedSlots = []FeedSlot{BaseFeed1, BaseFeed2, QuoteFeed1, QuoteFeed2}

// ErrSlotReverted is reported for a slot whose getter reverted or does not exist.
var ErrSlotReverted = errors.New("call reverted")

// SlotResult is the outcome of probing one feed slot. The slot is present
// only when Err is nil and Address is non-zero.
type SlotResult struct {
	Slot    FeedSlot
	Address common.Address
	Err     error
}

// Present reports whether the slot yielded a usable feed address.
func (r SlotResult) Present() bool {
	return r.Err == nil && r.Address != (common.Address{})
}

// ProbeFeeds calls every slot in FeedSlots on oracle. Each call may fail
// independently; only a transport-level failure is returned as an error.
func ProbeFeeds(
	ctx context.Context,
	multicaller outbound.Multicaller,
	oracleABI *abi.ABI,
	oracle common.Address,
) ([]SlotResult, error) {
	calls := make([]outbound.Call, len(FeedSlots))
	for i, slot := range FeedSlots {
		callData, err := oracleABI.Pack(string(slot))
		if err != nil {
			return nil, fmt.Errorf("packing %s: %w", slot, err)
		}
		calls[i] = outbound.Call{Target: oracle, AllowFailure: true, CallData: callData}
	}

	results, err := multicaller.Execute(ctx, calls, nil)
	if err != nil {
		return nil, fmt.Errorf("probing feeds of %s: %w", oracle.Hex(), err)
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("expected %d results, got %d", len(calls), len(results))
	}

	out := make([]SlotResult, len(FeedSlots))
	for i, slot := range FeedSlots {
		out[i].Slot = slot
		if !results[i].Success {
			out[i].Err = ErrSlotReverted
			continue
		}
		addr, err := unpackAddress(oracleABI, string(slot), results[i].ReturnData)
		if err != nil {
			out[i].Err = err
			continue
		}
		out[i].Address = addr
	}
	return out, nil
}

func unpackAddress(contractABI *abi.ABI, method string, data []byte) (common.Address, error) {
	unpacked, err := contractABI.Unpack(method, data)
	if err != nil {
		return common.Address{}, fmt.Errorf("unpacking %s: %w", method, err)
	}
	if len(unpacked) != 1 {
		return common.Address{}, fmt.Errorf("unpacking %s: expected 1 value, got %d", method, len(unpacked))
	}
	addr, ok := unpacked[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected return type from %s: %T", method, unpacked[0])
	}
	return addr, nil
}
