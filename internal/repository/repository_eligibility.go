package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"livestock/internal/models"

	"github.com/lib/pq"
)

func scanEligibility(row rowScanner) (models.SellerEligibility, error) {
	var e models.SellerEligibility
	var lastRejection, cooldownEnd sql.NullTime
	var documents pq.StringArray

	err := row.Scan(&e.UserId, &e.Status, &e.RejectionCount, &lastRejection, &cooldownEnd, &documents, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return e, err
	}
	e.LastRejectionAt = lastRejection.Time
	e.CooldownEnd = cooldownEnd.Time
	e.Documents = []string(documents)
	return e, nil
}

const eligibilityColumns = `user_id, status, rejection_count, last_rejection_at, cooldown_end, documents, created_at, updated_at`

func (repo *Repository) GetEligibility(ctx context.Context, userId string) (models.SellerEligibility, bool, error) {
	row := repo.db.QueryRowContext(ctx, `SELECT `+eligibilityColumns+` FROM seller_eligibility WHERE user_id = $1`, userId)
	e, err := scanEligibility(row)
	if err == sql.ErrNoRows {
		return e, false, nil
	} else if err != nil {
		return e, false, fmt.Errorf("repository.Repository.GetEligibility: %w", classify(err))
	}
	return e, true, nil
}

// UpdateEligibility is a locked read-modify-write of one user's record.
// fn gets found=false and a zero record with status None when the user has
// never applied; the result is inserted in that case. Two first-time
// writers racing on the insert surface ErrConflict for the loser.
func (repo *Repository) UpdateEligibility(ctx context.Context, userId string, fn func(e models.SellerEligibility, found bool) (models.SellerEligibility, error)) (models.SellerEligibility, error) {
	insertQuery := `
	INSERT INTO seller_eligibility (user_id, status, rejection_count, last_rejection_at, cooldown_end, documents, created_at, updated_at)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8)
	`
	updateQuery := `
	UPDATE seller_eligibility
	SET (status, rejection_count, last_rejection_at, cooldown_end, documents, updated_at) = ($2, $3, $4, $5, $6, $7)
	WHERE user_id = $1
	`

	var result models.SellerEligibility
	err := repo.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+eligibilityColumns+` FROM seller_eligibility WHERE user_id = $1 FOR UPDATE`, userId)
		current, err := scanEligibility(row)
		found := true
		if errors.Is(err, sql.ErrNoRows) {
			found = false
			current = models.SellerEligibility{UserId: userId, Status: models.ApprovalNone}
		} else if err != nil {
			return err
		}

		result, err = fn(current, found)
		if err != nil {
			return err
		}

		if found {
			_, err = tx.ExecContext(ctx, updateQuery, userId, result.Status, result.RejectionCount, nullTime(result.LastRejectionAt),
				nullTime(result.CooldownEnd), textArray(result.Documents), result.UpdatedAt)
		} else {
			_, err = tx.ExecContext(ctx, insertQuery, userId, result.Status, result.RejectionCount, nullTime(result.LastRejectionAt),
				nullTime(result.CooldownEnd), textArray(result.Documents), result.CreatedAt, result.UpdatedAt)
		}
		return err
	})
	if err != nil {
		return result, fmt.Errorf("repository.Repository.UpdateEligibility: %w", err)
	}

	return result, nil
}
