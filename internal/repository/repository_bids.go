package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"livestock/internal/models"
)

const bidColumns = `id, listing_id, bidder_id, bidder_name, amount, idempotency_key, created_at`

func scanBid(row rowScanner) (models.Bid, error) {
	var bid models.Bid
	var key sql.NullString
	err := row.Scan(&bid.Id, &bid.ListingId, &bid.BidderId, &bid.BidderName, &bid.Amount, &key, &bid.CreatedAt)
	bid.IdempotencyKey = key.String
	return bid, err
}

// CommitBid validates and appends a bid in one transaction. The listing row
// is locked first, so validate always sees the latest committed snapshot
// and concurrent bids on the same listing are applied one at a time.
//
// A bid whose idempotency key was already used on the listing is not
// written again: the stored bid is returned together with ErrDuplicateBid.
func (repo *Repository) CommitBid(ctx context.Context, listingId, idempotencyKey string, validate func(models.Listing) (models.Bid, error)) (models.Listing, models.Bid, error) {
	insertQuery := `
	INSERT INTO bids (id, listing_id, bidder_id, bidder_name, amount, idempotency_key, created_at)
	VALUES
		($1, $2, $3, $4, $5, $6, $7)
	`
	updateQuery := `
	UPDATE listings
	SET (current_highest_bid, highest_bidder_id, highest_bidder_name, bid_count, updated_at) = ($2, $3, $4, $5, $6)
	WHERE id = $1
	`

	var listing models.Listing
	var bid models.Bid
	var duplicate bool

	err := repo.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		listing, err = lockListing(ctx, tx, listingId)
		if err != nil {
			return err
		}

		if len(idempotencyKey) > 0 {
			row := tx.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE listing_id = $1 AND idempotency_key = $2`, listingId, idempotencyKey)
			bid, err = scanBid(row)
			if err == nil {
				duplicate = true
				return nil
			} else if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
		}

		bid, err = validate(listing)
		if err != nil {
			return err
		}
		bid.ListingId = listingId
		bid.IdempotencyKey = idempotencyKey

		_, err = tx.ExecContext(ctx, insertQuery, bid.Id, bid.ListingId, bid.BidderId, bid.BidderName, bid.Amount,
			nullString(bid.IdempotencyKey), bid.CreatedAt)
		if err != nil {
			return err
		}

		listing = listing.ApplyBid(bid)
		_, err = tx.ExecContext(ctx, updateQuery, listing.Id, listing.CurrentHighestBid, listing.HighestBidderId,
			listing.HighestBidderName, listing.BidCount, listing.UpdatedAt)
		return err
	})
	if err != nil {
		return listing, bid, fmt.Errorf("repository.Repository.CommitBid: %w", err)
	}
	if duplicate {
		return listing, bid, models.ErrDuplicateBid
	}

	return listing, bid, nil
}

// ListBids returns the ledger of a listing in acceptance order.
func (repo *Repository) ListBids(ctx context.Context, listingId string) ([]models.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE listing_id = $1 ORDER BY seq`

	rows, err := repo.db.QueryContext(ctx, query, listingId)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.ListBids: %w", classify(err))
	}
	defer rows.Close()

	var result []models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.ListBids: rows scan error: %w", err)
		}
		result = append(result, bid)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.ListBids: %w", classify(rows.Err()))
	}

	return result, nil
}
