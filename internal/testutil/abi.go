package testutil

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/stl/feed-coverage/internal/pkg/blockchain"
	"github.com/archon-research/stl/feed-coverage/internal/pkg/blockchain/abis"
)

// PackFeedAddress ABI-encodes addr as the return data of an oracle feed getter.
func PackFeedAddress(t *testing.T, addr common.Address) []byte {
	t.Helper()
	oracleABI, err := abis.GetMorphoOracleABI()
	if err != nil {
		t.Fatalf("loading oracle ABI: %v", err)
	}
	data, err := oracleABI.Methods[string(blockchain.BaseFeed1)].Outputs.Pack(addr)
	if err != nil {
		t.Fatalf("packing feed address: %v", err)
	}
	return data
}

// PackMarketState ABI-encodes the six market(id) return values.
func PackMarketState(t *testing.T, values ...int64) []byte {
	t.Helper()
	if len(values) != 6 {
		t.Fatalf("PackMarketState needs 6 values, got %d", len(values))
	}
	morphoABI, err := abis.GetMorphoABI()
	if err != nil {
		t.Fatalf("loading morpho ABI: %v", err)
	}
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = big.NewInt(v)
	}
	data, err := morphoABI.Methods["market"].Outputs.Pack(args...)
	if err != nil {
		t.Fatalf("packing market state: %v", err)
	}
	return data
}

// MulticallResult matches the multicall3 aggregate3 output tuple.
type MulticallResult struct {
	Success    bool
	ReturnData []byte
}

// PackMulticallAggregate3 ABI-encodes results as aggregate3 return data.
func PackMulticallAggregate3(t *testing.T, results []MulticallResult) []byte {
	t.Helper()
	multicallABI, err := abis.GetMulticall3ABI()
	if err != nil {
		t.Fatalf("loading multicall3 ABI: %v", err)
	}
	data, err := multicallABI.Methods["aggregate3"].Outputs.Pack(results)
	if err != nil {
		t.Fatalf("packing aggregate3: %v", err)
	}
	return data
}

// CreateMarketParams are the unindexed fields of a CreateMarket event.
type CreateMarketParams struct {
	LoanToken       common.Address
	CollateralToken common.Address
	Oracle          common.Address
	IRM             common.Address
	LLTV            *big.Int
}

// EncodeCreateMarketData lays out params as five 32-byte words.
func EncodeCreateMarketData(p CreateMarketParams) []byte {
	lltv := p.LLTV
	if lltv == nil {
		lltv = new(big.Int)
	}
	data := make([]byte, 0, 5*32)
	data = append(data, common.LeftPadBytes(p.LoanToken.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(p.CollateralToken.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(p.Oracle.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(p.IRM.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(lltv.Bytes(), 32)...)
	return data
}

// CreateMarketLog builds a CreateMarket log emitted by factory.
func CreateMarketLog(factory common.Address, id common.Hash, p CreateMarketParams, blockNumber uint64) types.Log {
	return types.Log{
		Address:     factory,
		Topics:      []common.Hash{common.HexToHash(blockchain.CreateMarketTopic), id},
		Data:        EncodeCreateMarketData(p),
		BlockNumber: blockNumber,
	}
}
