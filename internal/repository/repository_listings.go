package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"livestock/internal/models"

	"github.com/lib/pq"
)

const listingColumns = `
	id,
	seller_id,
	title,
	description,
	image_urls,
	starting_bid,
	bid_increment,
	current_highest_bid,
	highest_bidder_id,
	highest_bidder_name,
	bid_count,
	end_time,
	status,
	close_reason,
	winner_id,
	closed_at,
	settled_at,
	created_at,
	updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (models.Listing, error) {
	var l models.Listing
	var closedAt, settledAt sql.NullTime
	var images pq.StringArray

	err := row.Scan(&l.Id, &l.SellerId, &l.Title, &l.Description, &images, &l.StartingBid, &l.BidIncrement,
		&l.CurrentHighestBid, &l.HighestBidderId, &l.HighestBidderName, &l.BidCount, &l.EndTime, &l.Status,
		&l.CloseReason, &l.WinnerId, &closedAt, &settledAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return l, err
	}

	l.ImageURLs = []string(images)
	l.ClosedAt = closedAt.Time
	l.SettledAt = settledAt.Time
	return l, nil
}

func (repo *Repository) AddListing(ctx context.Context, l models.Listing) (models.Listing, error) {
	query := `
	INSERT INTO listings
		(id, seller_id, title, description, image_urls, starting_bid, bid_increment, current_highest_bid, end_time, status, created_at, updated_at)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	RETURNING` + listingColumns

	row := repo.db.QueryRowContext(ctx, query, l.Id, l.SellerId, l.Title, l.Description, textArray(l.ImageURLs),
		l.StartingBid, l.BidIncrement, l.CurrentHighestBid, l.EndTime, l.Status, l.CreatedAt)
	result, err := scanListing(row)
	if err != nil {
		return l, fmt.Errorf("repository.Repository.AddListing: %w", classify(err))
	}
	return result, nil
}

func (repo *Repository) GetListing(ctx context.Context, id string) (models.Listing, error) {
	row := repo.db.QueryRowContext(ctx, `SELECT`+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return l, fmt.Errorf("repository.Repository.GetListing: %w", models.ErrListingNotFound)
	} else if err != nil {
		return l, fmt.Errorf("repository.Repository.GetListing: %w", classify(err))
	}
	return l, nil
}

func (repo *Repository) ListListings(ctx context.Context, status models.ListingStatus, limit, offset int) ([]models.Listing, error) {
	query := `SELECT` + listingColumns + `
	FROM listings
	WHERE ($1 = '' OR status = $1)
	ORDER BY end_time, id
	LIMIT $2
	OFFSET $3
	`

	var lim interface{}
	if limit > 0 {
		lim = limit
	}

	rows, err := repo.db.QueryContext(ctx, query, string(status), lim, offset)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.ListListings: %w", classify(err))
	}
	defer rows.Close()

	var result []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.ListListings: row scan failed: %w", err)
		}
		result = append(result, l)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.ListListings: %w", classify(rows.Err()))
	}

	return result, nil
}

// ExpiredListings returns ids of Active listings whose end time is at or before now.
func (repo *Repository) ExpiredListings(ctx context.Context, now time.Time) ([]string, error) {
	query := `
	SELECT id
	FROM listings
	WHERE status = 'Active' AND end_time <= $1
	ORDER BY end_time
	`

	rows, err := repo.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("repository.Repository.ExpiredListings: %w", classify(err))
	}
	defer rows.Close()

	var ids []string
	var id string
	for rows.Next() {
		err = rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("repository.Repository.ExpiredListings: rows scan error: %w", err)
		}
		ids = append(ids, id)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("repository.Repository.ExpiredListings: %w", classify(rows.Err()))
	}

	return ids, nil
}

// UpdateListing locks the listing row, passes it to fn and persists the
// lifecycle fields of the result. Nothing is written when fn fails.
func (repo *Repository) UpdateListing(ctx context.Context, id string, fn func(models.Listing) (models.Listing, error)) (models.Listing, error) {
	query := `
	UPDATE listings
	SET (status, close_reason, winner_id, closed_at, settled_at, updated_at) = ($2, $3, $4, $5, $6, $7)
	WHERE id = $1
	`

	var result models.Listing
	err := repo.inTx(ctx, func(tx *sql.Tx) error {
		current, err := lockListing(ctx, tx, id)
		if err != nil {
			return err
		}

		result, err = fn(current)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, query, id, result.Status, result.CloseReason, result.WinnerId,
			nullTime(result.ClosedAt), nullTime(result.SettledAt), result.UpdatedAt)
		return err
	})
	if err != nil {
		return result, fmt.Errorf("repository.Repository.UpdateListing: %w", err)
	}

	return result, nil
}

func lockListing(ctx context.Context, tx *sql.Tx, id string) (models.Listing, error) {
	row := tx.QueryRowContext(ctx, `SELECT`+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return l, models.ErrListingNotFound
	}
	return l, err
}
