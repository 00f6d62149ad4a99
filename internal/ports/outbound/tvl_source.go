package outbound

import (
	"context"

	"github.com/archon-research/stl/feed-coverage/internal/domain/entity"
)

// TVLSource fetches per-market TVL from an external index.
type TVLSource interface {
	FetchMarketTVL(ctx context.Context) ([]entity.TVLRecord, error)
}
