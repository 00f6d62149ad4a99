package blockchain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/archon-research/stl/feed-coverage/internal/domain/entity"
)

// CreateMarket payload layout: five 32-byte words,
// loanToken | collateralToken | oracle | irm | lltv.
const (
	wordSize = 32

	// MinCreateMarketDataLen is the smallest payload that carries all market params.
	MinCreateMarketDataLen = 5 * wordSize

	loanTokenOffset       = 0 * wordSize
	collateralTokenOffset = 1 * wordSize
	oracleOffset          = 2 * wordSize
	irmOffset             = 3 * wordSize
	lltvOffset            = 4 * wordSize
)

var (
	// ErrShortPayload means the log data is smaller than MinCreateMarketDataLen.
	ErrShortPayload = errors.New("create market payload too short")

	// ErrMissingIDTopic means the log does not carry the indexed market id.
	ErrMissingIDTopic = errors.New("create market log missing id topic")
)

// DecodeCreateMarketLog extracts the market id (topic 1) and the market
// params from a CreateMarket log. The oracle sits at a fixed offset in the
// unindexed payload.
func DecodeCreateMarketLog(log types.Log) (*entity.Market, error) {
	if len(log.Data) < MinCreateMarketDataLen {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrShortPayload, len(log.Data), MinCreateMarketDataLen)
	}
	if len(log.Topics) < 2 {
		return nil, ErrMissingIDTopic
	}

	return entity.NewMarket(
		log.Topics[1],
		wordAddress(log.Data, oracleOffset),
		wordAddress(log.Data, loanTokenOffset),
		wordAddress(log.Data, collateralTokenOffset),
		wordAddress(log.Data, irmOffset),
		new(big.Int).SetBytes(log.Data[lltvOffset:lltvOffset+wordSize]),
	)
}

// wordAddress reads the right-aligned address in the 32-byte word at offset.
func wordAddress(data []byte, offset int) common.Address {
	return common.BytesToAddress(data[offset : offset+wordSize])
}
