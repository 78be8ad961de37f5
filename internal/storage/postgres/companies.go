package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

const companyColumns = `id, client_id, name, domain, ticker, industry, employees, country,
	linkedin_url, blog_url, active, last_scanned_at, created_at`

func scanCompany(row pgx.Row) (lead.Company, error) {
	var (
		c       lead.Company
		scanned pgtype.Timestamptz
	)
	err := row.Scan(
		&c.ID,
		&c.ClientID,
		&c.Name,
		&c.Domain,
		&c.Ticker,
		&c.Industry,
		&c.Employees,
		&c.Country,
		&c.LinkedInURL,
		&c.BlogURL,
		&c.Active,
		&scanned,
		&c.CreatedAt,
	)
	if err != nil {
		return lead.Company{}, err
	}
	c.LastScannedAt = timePtr(scanned)
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

// ListActiveCompanies returns every active company ordered by client and name.
func (s *Store) ListActiveCompanies(ctx context.Context) ([]lead.Company, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE active ORDER BY client_id, name`, companyColumns, s.tables.Companies)
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer rows.Close()

	var out []lead.Company
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, fmt.Errorf("scan company row: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate companies: %w", err)
	}
	return out, nil
}

// GetCompany loads one company or returns lead.ErrNotFound.
func (s *Store) GetCompany(ctx context.Context, companyID string) (lead.Company, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, companyColumns, s.tables.Companies)
	c, err := scanCompany(s.db.QueryRow(ctx, query, companyID))
	if err != nil {
		return lead.Company{}, fmt.Errorf("get company %s: %w", companyID, notFound(err))
	}
	return c, nil
}

// UpsertCompany inserts or updates a company. Scan history is preserved.
func (s *Store) UpsertCompany(ctx context.Context, c lead.Company) error {
	if c.ID == "" || c.ClientID == "" {
		return fmt.Errorf("company id and client id are required")
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = s.now().UTC()
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, client_id, name, domain, ticker, industry, employees, country,
	linkedin_url, blog_url, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
	client_id = EXCLUDED.client_id,
	name = EXCLUDED.name,
	domain = EXCLUDED.domain,
	ticker = EXCLUDED.ticker,
	industry = EXCLUDED.industry,
	employees = EXCLUDED.employees,
	country = EXCLUDED.country,
	linkedin_url = EXCLUDED.linkedin_url,
	blog_url = EXCLUDED.blog_url,
	active = EXCLUDED.active`, s.tables.Companies)

	_, err := s.db.Exec(ctx, query,
		c.ID,
		c.ClientID,
		c.Name,
		c.Domain,
		c.Ticker,
		c.Industry,
		c.Employees,
		c.Country,
		c.LinkedInURL,
		c.BlogURL,
		c.Active,
		created,
	)
	if err != nil {
		return fmt.Errorf("upsert company %s: %w", c.ID, err)
	}
	return nil
}

// MarkScanned records the last scan time of a company.
func (s *Store) MarkScanned(ctx context.Context, companyID string, at time.Time) error {
	query := fmt.Sprintf(`UPDATE %s SET last_scanned_at = $1 WHERE id = $2`, s.tables.Companies)
	tag, err := s.db.Exec(ctx, query, at.UTC(), companyID)
	if err != nil {
		return fmt.Errorf("mark company %s scanned: %w", companyID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark company %s scanned: %w", companyID, lead.ErrNotFound)
	}
	return nil
}
