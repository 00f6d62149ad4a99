package entity

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TVLRecord is one market's total value locked in USD, as reported by an
// external index.
type TVLRecord struct {
	ID                  string          `json:"id"`
	TotalValueLockedUSD decimal.Decimal `json:"totalValueLockedUSD"`
}

// TVLDataset mirrors the subgraph response shape:
// {"data": {"markets": [{"id": ..., "totalValueLockedUSD": ...}]}}.
type TVLDataset struct {
	Data struct {
		Markets []TVLRecord `json:"markets"`
	} `json:"data"`
}

// NewTVLDataset wraps records in the subgraph response shape.
func NewTVLDataset(records []TVLRecord) *TVLDataset {
	ds := &TVLDataset{}
	ds.Data.Markets = records
	return ds
}

// ByMarketID indexes the dataset by market id. Later duplicates overwrite
// earlier ones.
func (d *TVLDataset) ByMarketID() (map[common.Hash]decimal.Decimal, error) {
	out := make(map[common.Hash]decimal.Decimal, len(d.Data.Markets))
	for i, rec := range d.Data.Markets {
		id, err := ParseMarketID(rec.ID)
		if err != nil {
			return nil, fmt.Errorf("tvl record %d: %w", i, err)
		}
		if rec.TotalValueLockedUSD.IsNegative() {
			return nil, fmt.Errorf("tvl record %d (%s): negative TVL %s", i, rec.ID, rec.TotalValueLockedUSD)
		}
		out[id] = rec.TotalValueLockedUSD
	}
	return out, nil
}
