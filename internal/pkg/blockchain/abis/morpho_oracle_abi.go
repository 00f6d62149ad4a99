package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetMorphoOracleABI returns the feed getters exposed by MorphoChainlinkOracleV2.
// Each returns the upstream aggregator address, or zero when the slot is unused.
func GetMorphoOracleABI() (*abi.ABI, error) {
	return ParseABI(`[
		{"inputs": [], "name": "BASE_FEED_1", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "BASE_FEED_2", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "QUOTE_FEED_1", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"},
		{"inputs": [], "name": "QUOTE_FEED_2", "outputs": [{"name": "", "type": "address"}], "stateMutability": "view", "type": "function"}
	]`)
}
