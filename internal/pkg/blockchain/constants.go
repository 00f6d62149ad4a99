package blockchain

import "github.com/ethereum/go-ethereum/common"

const (
	Multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

	// MorphoBlueAddress is the Morpho Blue singleton on Ethereum mainnet.
	MorphoBlueAddress = "0xBBBBBbbBBb9cC5e90e3b3Af64bdAF62C37EEFFCb"

	// CreateMarketTopic is topic0 of
	// CreateMarket(bytes32 indexed id, (address,address,address,address,uint256) marketParams).
	CreateMarketTopic = "0xac4b2400f169220b0c0afdde7a0b32e775ba727ea1cb30b35f935cdaab8683ac"
)

var (
	Multicall3 = common.HexToAddress(Multicall3Address)
	MorphoBlue = common.HexToAddress(MorphoBlueAddress)
)
