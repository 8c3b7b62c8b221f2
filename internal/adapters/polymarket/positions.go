package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

const (
	positionsPageSize = 500
	// Tope de páginas por trader: 10k posiciones abiertas es más que cualquier wallet real.
	maxPositionPages = 20
)

// FetchPositions implements ports.SnapshotSource over the Data API.
// The snapshot is stamped when the last page arrives.
func (c *Client) FetchPositions(ctx context.Context, trader domain.TraderAddress) (domain.PositionSnapshot, error) {
	var all []dataPosition
	for page := 0; page < maxPositionPages; page++ {
		q := url.Values{}
		q.Set("user", trader.String())
		q.Set("limit", strconv.Itoa(positionsPageSize))
		q.Set("offset", strconv.Itoa(page*positionsPageSize))
		q.Set("sizeThreshold", "0")

		var batch []dataPosition
		if err := c.get(ctx, c.dataLimiter, c.dataBase+"/positions?"+q.Encode(), &batch); err != nil {
			return domain.PositionSnapshot{}, fmt.Errorf("polymarket.FetchPositions: %s: %w", trader.Short(), err)
		}
		all = append(all, batch...)
		if len(batch) < positionsPageSize {
			break
		}
	}
	return domain.NewSnapshot(trader, time.Now().UTC(), mapPositions(all)), nil
}
