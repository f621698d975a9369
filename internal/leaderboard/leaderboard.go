package leaderboard

import (
	"sort"

	"livestock/internal/models"
)

// DefaultSize is the number of entries shown for a listing.
const DefaultSize = 5

// TopBidders ranks bidders by their best bid. Each bidder appears once with
// the maximum amount they bid; ties on amount go to whoever reached it
// first. At most n entries are returned, n <= 0 means all of them.
func TopBidders(bids []models.Bid, n int) []models.LeaderboardEntry {
	best := make(map[string]*models.LeaderboardEntry)
	order := make([]string, 0)

	for _, bid := range bids {
		entry, ok := best[bid.BidderId]
		if !ok {
			order = append(order, bid.BidderId)
			best[bid.BidderId] = &models.LeaderboardEntry{
				BidderId:    bid.BidderId,
				BidderName:  bid.BidderName,
				MaxAmount:   bid.Amount,
				LastBidTime: bid.CreatedAt,
			}
			continue
		}

		switch {
		case bid.Amount.GreaterThan(entry.MaxAmount):
			entry.MaxAmount = bid.Amount
			entry.LastBidTime = bid.CreatedAt
			entry.BidderName = bid.BidderName
		case bid.Amount.Equal(entry.MaxAmount) && bid.CreatedAt.Before(entry.LastBidTime):
			entry.LastBidTime = bid.CreatedAt
		}
	}

	entries := make([]models.LeaderboardEntry, 0, len(order))
	for _, bidder := range order {
		entries = append(entries, *best[bidder])
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].MaxAmount.Cmp(entries[j].MaxAmount); c != 0 {
			return c > 0
		}
		return entries[i].LastBidTime.Before(entries[j].LastBidTime)
	})

	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
