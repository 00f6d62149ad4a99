package entity

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Market is a lending market announced by a factory CreateMarket event.
// The parameter fields come straight from the event payload; State is the
// result of the factory's market(id) lookup.
type Market struct {
	ID              common.Hash
	Oracle          common.Address
	LoanToken       common.Address
	CollateralToken common.Address
	IRM             common.Address
	LLTV            *big.Int

	// State is nil when the market(id) lookup failed; LookupError says why.
	State       *MarketState
	LookupError string
}

// NewMarket creates a Market with validation. State is attached separately
// once the factory lookup has run.
func NewMarket(id common.Hash, oracle, loanToken, collateralToken, irm common.Address, lltv *big.Int) (*Market, error) {
	m := &Market{
		ID:              id,
		Oracle:          oracle,
		LoanToken:       loanToken,
		CollateralToken: collateralToken,
		IRM:             irm,
		LLTV:            lltv,
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Market) validate() error {
	if m.ID == (common.Hash{}) {
		return fmt.Errorf("market id must not be zero")
	}
	if m.LLTV != nil && m.LLTV.Sign() < 0 {
		return fmt.Errorf("lltv must be non-negative, got %s", m.LLTV)
	}
	return nil
}

// MarkUnavailable records a failed state lookup. Any previously attached
// state is cleared so a record never carries data from another market.
func (m *Market) MarkUnavailable(err error) {
	m.State = nil
	if err != nil {
		m.LookupError = err.Error()
	} else {
		m.LookupError = "market lookup failed"
	}
}

// HasState reports whether the market(id) lookup succeeded.
func (m *Market) HasState() bool {
	return m.State != nil
}

type marketJSON struct {
	ID              string       `json:"id"`
	Oracle          string       `json:"oracle"`
	LoanToken       string       `json:"loanToken"`
	CollateralToken string       `json:"collateralToken"`
	IRM             string       `json:"irm"`
	LLTV            *big.Int     `json:"lltv"`
	Market          *MarketState `json:"market"`
	LookupError     string       `json:"lookupError,omitempty"`
}

// MarshalJSON encodes addresses in checksum form and the id as 0x-prefixed hex.
func (m Market) MarshalJSON() ([]byte, error) {
	return json.Marshal(marketJSON{
		ID:              m.ID.Hex(),
		Oracle:          m.Oracle.Hex(),
		LoanToken:       m.LoanToken.Hex(),
		CollateralToken: m.CollateralToken.Hex(),
		IRM:             m.IRM.Hex(),
		LLTV:            m.LLTV,
		Market:          m.State,
		LookupError:     m.LookupError,
	})
}

// UnmarshalJSON decodes a markets snapshot record, rejecting malformed ids
// and oracle addresses.
func (m *Market) UnmarshalJSON(data []byte) error {
	var raw marketJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	id, err := ParseMarketID(raw.ID)
	if err != nil {
		return err
	}
	if !common.IsHexAddress(raw.Oracle) {
		return fmt.Errorf("market %s: invalid oracle address %q", raw.ID, raw.Oracle)
	}

	*m = Market{
		ID:              id,
		Oracle:          common.HexToAddress(raw.Oracle),
		LoanToken:       common.HexToAddress(raw.LoanToken),
		CollateralToken: common.HexToAddress(raw.CollateralToken),
		IRM:             common.HexToAddress(raw.IRM),
		LLTV:            raw.LLTV,
		State:           raw.Market,
		LookupError:     raw.LookupError,
	}
	return nil
}

// ParseMarketID parses a 0x-prefixed 32-byte market identifier.
func ParseMarketID(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid market id %q: %w", s, err)
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid market id %q: expected %d bytes, got %d", s, common.HashLength, len(b))
	}
	return common.BytesToHash(b), nil
}

// MarketState is the ordered tuple returned by the factory's market(id) call.
type MarketState struct {
	TotalSupplyAssets *big.Int
	TotalSupplyShares *big.Int
	TotalBorrowAssets *big.Int
	TotalBorrowShares *big.Int
	LastUpdate        *big.Int
	Fee               *big.Int
}

// marketStateFields is the length of the on-chain tuple.
const marketStateFields = 6

func (s *MarketState) fields() []**big.Int {
	return []**big.Int{
		&s.TotalSupplyAssets,
		&s.TotalSupplyShares,
		&s.TotalBorrowAssets,
		&s.TotalBorrowShares,
		&s.LastUpdate,
		&s.Fee,
	}
}

// MarshalJSON encodes the state as an ordered array, matching the tuple layout.
func (s MarketState) MarshalJSON() ([]byte, error) {
	ptrs := s.fields()
	out := make([]*big.Int, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
		if out[i] == nil {
			out[i] = new(big.Int)
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the ordered array form.
func (s *MarketState) UnmarshalJSON(data []byte) error {
	var values []*big.Int
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("decoding market state: %w", err)
	}
	if len(values) != marketStateFields {
		return fmt.Errorf("market state: expected %d values, got %d", marketStateFields, len(values))
	}
	for i, p := range s.fields() {
		*p = values[i]
	}
	return nil
}
