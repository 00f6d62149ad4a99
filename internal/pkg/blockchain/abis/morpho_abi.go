package abis

import "github.com/ethereum/go-ethereum/accounts/abi"

// GetMorphoABI returns the subset of the Morpho Blue ABI used for market
// discovery: the CreateMarket event and the market(id) state getter.
func GetMorphoABI() (*abi.ABI, error) {
	return ParseABI(`[
		{
			"anonymous": false,
			"inputs": [
				{"indexed": true, "name": "id", "type": "bytes32"},
				{
					"indexed": false,
					"name": "marketParams",
					"type": "tuple",
					"components": [
						{"name": "loanToken", "type": "address"},
						{"name": "collateralToken", "type": "address"},
						{"name": "oracle", "type": "address"},
						{"name": "irm", "type": "address"},
						{"name": "lltv", "type": "uint256"}
					]
				}
			],
			"name": "CreateMarket",
			"type": "event"
		},
		{
			"inputs": [{"name": "", "type": "bytes32"}],
			"name": "market",
			"outputs": [
				{"name": "totalSupplyAssets", "type": "uint128"},
				{"name": "totalSupplyShares", "type": "uint128"},
				{"name": "totalBorrowAssets", "type": "uint128"},
				{"name": "totalBorrowShares", "type": "uint128"},
				{"name": "lastUpdate", "type": "uint128"},
				{"name": "fee", "type": "uint128"}
			],
			"stateMutability": "view",
			"type": "function"
		}
	]`)
}
