package blockchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/stl/feed-coverage/internal/domain/entity"
	"github.com/archon-research/stl/feed-coverage/internal/ports/outbound"
)

// FetchMarketState calls market(id) on the factory and returns the decoded
// state tuple. A reverted call is returned as an error.
func FetchMarketState(
	ctx context.Context,
	multicaller outbound.Multicaller,
	factoryABI *abi.ABI,
	factory common.Address,
	id common.Hash,
) (*entity.MarketState, error) {
	callData, err := factoryABI.Pack("market", [32]byte(id))
	if err != nil {
		return nil, fmt.Errorf("packing market: %w", err)
	}

	results, err := multicaller.Execute(ctx, []outbound.Call{
		{Target: factory, AllowFailure: true, CallData: callData},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("executing market(%s): %w", id.Hex(), err)
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("expected 1 result, got %d", len(results))
	}
	if !results[0].Success {
		return nil, fmt.Errorf("market(%s) call reverted", id.Hex())
	}

	return unpackMarketState(factoryABI, results[0].ReturnData)
}

func unpackMarketState(factoryABI *abi.ABI, data []byte) (*entity.MarketState, error) {
	unpacked, err := factoryABI.Unpack("market", data)
	if err != nil {
		return nil, fmt.Errorf("unpacking market: %w", err)
	}
	if len(unpacked) != 6 {
		return nil, fmt.Errorf("unpacking market: expected 6 values, got %d", len(unpacked))
	}

	values := make([]*big.Int, len(unpacked))
	for i, v := range unpacked {
		n, ok := v.(*big.Int)
		if !ok {
			return nil, fmt.Errorf("unpacking market: value %d has type %T", i, v)
		}
		values[i] = n
	}

	return &entity.MarketState{
		TotalSupplyAssets: values[0],
		TotalSupplyShares: values[1],
		TotalBorrowAssets: values[2],
		TotalBorrowShares: values[3],
		LastUpdate:        values[4],
		Fee:               values[5],
	}, nil
}
