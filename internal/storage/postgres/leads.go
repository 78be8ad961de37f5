package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

const defaultLeadLimit = 100

// SaveLead inserts a lead. A lead with an existing (client, fingerprint) pair is ignored.
func (s *Store) SaveLead(ctx context.Context, l lead.Lead) error {
	if l.ID == "" {
		return fmt.Errorf("lead id is required")
	}
	signal, err := json.Marshal(l.Signal)
	if err != nil {
		return fmt.Errorf("encode lead signal: %w", err)
	}
	classification, err := json.Marshal(l.Classification)
	if err != nil {
		return fmt.Errorf("encode lead classification: %w", err)
	}
	contacts := l.Contacts
	if contacts == nil {
		contacts = []lead.Contact{}
	}
	contactsJSON, err := json.Marshal(contacts)
	if err != nil {
		return fmt.Errorf("encode lead contacts: %w", err)
	}
	var draft []byte
	if l.Draft != nil {
		if draft, err = json.Marshal(l.Draft); err != nil {
			return fmt.Errorf("encode lead draft: %w", err)
		}
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, client_id, company_id, company_name, fingerprint, signal, classification,
	deal_score, priority, contacts, draft, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (client_id, fingerprint) DO NOTHING`, s.tables.Leads)

	_, err = s.db.Exec(ctx, query,
		l.ID,
		l.ClientID,
		l.CompanyID,
		l.CompanyName,
		l.Signal.Fingerprint,
		signal,
		classification,
		l.DealScore,
		string(l.Priority),
		contactsJSON,
		draft,
		string(l.Status),
		l.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert lead %s: %w", l.ID, err)
	}
	return nil
}

// LeadExists reports whether the client already has a lead for fingerprint.
func (s *Store) LeadExists(ctx context.Context, clientID, fingerprint string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE client_id = $1 AND fingerprint = $2)`, s.tables.Leads)
	var exists bool
	if err := s.db.QueryRow(ctx, query, clientID, fingerprint).Scan(&exists); err != nil {
		return false, fmt.Errorf("check lead exists: %w", err)
	}
	return exists, nil
}

// ListLeads returns leads by descending score, newest first within a score.
func (s *Store) ListLeads(ctx context.Context, f lead.LeadFilter) ([]lead.Lead, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLeadLimit
	}
	query := fmt.Sprintf(`
SELECT id, client_id, company_id, company_name, signal, classification, deal_score,
	priority, contacts, draft, status, created_at
FROM %s
WHERE ($1 = '' OR client_id = $1) AND deal_score >= $2
ORDER BY deal_score DESC, created_at DESC
LIMIT $3`, s.tables.Leads)

	rows, err := s.db.Query(ctx, query, f.ClientID, f.MinScore, limit)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var out []lead.Lead
	for rows.Next() {
		var (
			l                                 lead.Lead
			signal, classification, contacts []byte
			draft                             []byte
			priority, status                  string
		)
		err := rows.Scan(
			&l.ID,
			&l.ClientID,
			&l.CompanyID,
			&l.CompanyName,
			&signal,
			&classification,
			&l.DealScore,
			&priority,
			&contacts,
			&draft,
			&status,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}
		if err := decodeLead(&l, signal, classification, contacts, draft); err != nil {
			return nil, err
		}
		l.Priority = lead.Priority(priority)
		l.Status = lead.LeadStatus(status)
		l.CreatedAt = l.CreatedAt.UTC()
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return out, nil
}

func decodeLead(l *lead.Lead, signal, classification, contacts, draft []byte) error {
	if err := json.Unmarshal(signal, &l.Signal); err != nil {
		return fmt.Errorf("decode lead %s signal: %w", l.ID, err)
	}
	if err := json.Unmarshal(classification, &l.Classification); err != nil {
		return fmt.Errorf("decode lead %s classification: %w", l.ID, err)
	}
	if len(contacts) > 0 {
		if err := json.Unmarshal(contacts, &l.Contacts); err != nil {
			return fmt.Errorf("decode lead %s contacts: %w", l.ID, err)
		}
	}
	if len(draft) > 0 && string(draft) != "null" {
		l.Draft = &lead.EmailDraft{}
		if err := json.Unmarshal(draft, l.Draft); err != nil {
			return fmt.Errorf("decode lead %s draft: %w", l.ID, err)
		}
	}
	return nil
}
