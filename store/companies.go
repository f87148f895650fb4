package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/stokaro/trustboard/dbschema"
)

const companyColumns = `id, name, category, type, website, phone, messenger, messenger_id, description,
	rating, report_count, writer, created, is_certified, certified_by, certified_at`

func scanCompany(s dbschema.Scanner) (Company, error) {
	var (
		c           Company
		created     dbschema.Time
		certifiedAt dbschema.Time
		certifiedBy sql.NullString
	)
	err := s.Scan(&c.ID, &c.Name, &c.Category, &c.Type, &c.Website, &c.Phone, &c.Messenger, &c.MessengerID,
		&c.Description, &c.Rating, &c.ReportCount, &c.Writer, &created, &c.IsCertified, &certifiedBy, &certifiedAt)
	if err != nil {
		return Company{}, err
	}
	c.Created = created.Time
	c.CertifiedBy = nullableString(certifiedBy)
	c.CertifiedAt = nullableTime(certifiedAt)
	return c, nil
}

// CreateCompany inserts a company and returns its id.
func (s *Store) CreateCompany(ctx context.Context, f CompanyFields, writer string) (int64, error) {
	res, err := dbschema.Run(ctx, s.conn,
		`INSERT INTO companies (name, category, type, website, phone, messenger, messenger_id, description,
			rating, report_count, writer, created, is_certified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.Name, f.Category, f.Type, f.Website, f.Phone, f.Messenger, f.MessengerID, f.Description,
		f.Rating, 0, writer, s.now(), false)
	if err != nil {
		return 0, fmt.Errorf("failed to create company: %w", err)
	}
	return res.LastInsertID, nil
}

// ListCompanies returns companies newest first.
func (s *Store) ListCompanies(ctx context.Context, f CompanyFilter) ([]Company, error) {
	var (
		conds []string
		args  []any
	)
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, f.Type)
	}
	if f.Search != "" {
		pattern := "%" + strings.ToLower(f.Search) + "%"
		conds = append(conds, "(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)")
		args = append(args, pattern, pattern)
	}
	if f.Writer != "" {
		conds = append(conds, "writer = ?")
		args = append(args, f.Writer)
	}
	limit := f.Limit
	if limit <= 0 || limit > MaxAdminCompanies {
		limit = MaxPublicCompanies
	}

	query := "SELECT " + companyColumns + " FROM companies"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created DESC, id DESC LIMIT %d", limit)

	companies, err := dbschema.All(ctx, s.conn, scanCompany, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

// CompanyByID returns a company.
func (s *Store) CompanyByID(ctx context.Context, id int64) (Company, bool, error) {
	company, found, err := dbschema.Get(ctx, s.conn, scanCompany, "SELECT "+companyColumns+" FROM companies WHERE id = ?", id)
	if err != nil {
		return Company{}, false, fmt.Errorf("failed to get company %d: %w", id, err)
	}
	return company, found, nil
}

// UpdateCompany replaces the editable fields of a company. The writer and
// report count are left alone; certification is kept only while the company
// stays safe.
func (s *Store) UpdateCompany(ctx context.Context, id int64, f CompanyFields) (bool, error) {
	query := `UPDATE companies SET name = ?, category = ?, type = ?, website = ?, phone = ?, messenger = ?,
			messenger_id = ?, description = ?, rating = ?`
	args := []any{f.Name, f.Category, f.Type, f.Website, f.Phone, f.Messenger, f.MessengerID, f.Description, f.Rating}
	if f.Type != CompanyTypeSafe {
		query += ", is_certified = ?, certified_by = NULL, certified_at = NULL"
		args = append(args, false)
	}
	args = append(args, id)

	res, err := dbschema.Run(ctx, s.conn, query+" WHERE id = ?", args...)
	if err != nil {
		return false, fmt.Errorf("failed to update company %d: %w", id, err)
	}
	return res.RowsAffected > 0, nil
}

// DeleteCompany removes a company and its reviews in one transaction.
func (s *Store) DeleteCompany(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := s.conn.InTx(ctx, func(tx *dbschema.Tx) error {
		if _, err := dbschema.Run(ctx, tx, "DELETE FROM company_reviews WHERE company_id = ?", id); err != nil {
			return err
		}
		res, err := dbschema.Run(ctx, tx, "DELETE FROM companies WHERE id = ?", id)
		if err != nil {
			return err
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete company %d: %w", id, err)
	}
	return deleted, nil
}

// CertifyCompany marks a company certified by the given admin.
func (s *Store) CertifyCompany(ctx context.Context, id int64, by string, at time.Time) (bool, error) {
	res, err := dbschema.Run(ctx, s.conn,
		"UPDATE companies SET is_certified = ?, certified_by = ?, certified_at = ? WHERE id = ?",
		true, by, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to certify company %d: %w", id, err)
	}
	return res.RowsAffected > 0, nil
}

// UncertifyCompany clears the certification of a company.
func (s *Store) UncertifyCompany(ctx context.Context, id int64) (bool, error) {
	res, err := dbschema.Run(ctx, s.conn,
		"UPDATE companies SET is_certified = ?, certified_by = NULL, certified_at = NULL WHERE id = ?",
		false, id)
	if err != nil {
		return false, fmt.Errorf("failed to uncertify company %d: %w", id, err)
	}
	return res.RowsAffected > 0, nil
}

// SitemapCompanies returns companies newest first.
func (s *Store) SitemapCompanies(ctx context.Context, limit int) ([]SitemapEntry, error) {
	if limit <= 0 || limit > MaxSitemapEntries {
		limit = MaxSitemapEntries
	}
	query := fmt.Sprintf("SELECT id, created FROM companies ORDER BY created DESC, id DESC LIMIT %d", limit)
	entries, err := dbschema.All(ctx, s.conn, scanSitemapEntry, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sitemap companies: %w", err)
	}
	return entries, nil
}
