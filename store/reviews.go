package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stokaro/trustboard/dbschema"
)

const reviewColumns = "id, company_id, review_type, rating, content, writer, created"

func scanReview(s dbschema.Scanner) (Review, error) {
	var (
		r       Review
		rating  sql.NullInt64
		created dbschema.Time
	)
	if err := s.Scan(&r.ID, &r.CompanyID, &r.ReviewType, &rating, &r.Content, &r.Writer, &created); err != nil {
		return Review{}, err
	}
	if rating.Valid {
		v := int(rating.Int64)
		r.Rating = &v
	}
	r.Created = created.Time
	return r, nil
}

// CreateReview inserts a review. A report also increments the report count
// of the company in the same transaction.
func (s *Store) CreateReview(ctx context.Context, r NewReview) (int64, error) {
	var rating any
	if r.Rating != nil {
		rating = *r.Rating
	}

	var id int64
	err := s.conn.InTx(ctx, func(tx *dbschema.Tx) error {
		res, err := dbschema.Run(ctx, tx,
			"INSERT INTO company_reviews (company_id, review_type, rating, content, writer, created) VALUES (?, ?, ?, ?, ?, ?)",
			r.CompanyID, r.ReviewType, rating, r.Content, r.Writer, s.now())
		if err != nil {
			return err
		}
		id = res.LastInsertID

		if r.ReviewType == ReviewTypeReport {
			if _, err := dbschema.Run(ctx, tx, "UPDATE companies SET report_count = report_count + 1 WHERE id = ?", r.CompanyID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create review for company %d: %w", r.CompanyID, err)
	}
	return id, nil
}

// ReviewsByCompany returns the reviews of a company newest first. A limit of
// zero returns all of them.
func (s *Store) ReviewsByCompany(ctx context.Context, companyID int64, limit int) ([]Review, error) {
	query := "SELECT " + reviewColumns + " FROM company_reviews WHERE company_id = ? ORDER BY created DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	reviews, err := dbschema.All(ctx, s.conn, scanReview, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews of company %d: %w", companyID, err)
	}
	return reviews, nil
}
