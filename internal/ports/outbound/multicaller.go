package outbound

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Multicaller executes read-only contract calls. Implementations either batch
// through the Multicall3 contract or send one eth_call per entry.
type Multicaller interface {
	// Execute runs calls at blockNumber (nil = latest). A call with
	// AllowFailure set reports a revert as Result.Success == false instead of
	// failing the whole batch.
	Execute(ctx context.Context, calls []Call, blockNumber *big.Int) ([]Result, error)
	Address() common.Address
}

type Call struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type Result struct {
	Success    bool
	ReturnData []byte
}
