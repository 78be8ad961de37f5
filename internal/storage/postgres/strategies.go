package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/leadwatch/internal/lead"
)

// ListStrategies loads every client strategy row. The JSONB config carries
// everything except the identity and active flag, which have their own columns.
func (s *Store) ListStrategies(ctx context.Context) ([]lead.ClientStrategy, error) {
	query := fmt.Sprintf(`SELECT client_id, name, active, config FROM %s ORDER BY client_id`, s.tables.Strategies)
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	defer rows.Close()

	var out []lead.ClientStrategy
	for rows.Next() {
		var (
			clientID, name string
			active         bool
			raw            []byte
		)
		if err := rows.Scan(&clientID, &name, &active, &raw); err != nil {
			return nil, fmt.Errorf("scan strategy row: %w", err)
		}
		var st lead.ClientStrategy
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &st); err != nil {
				return nil, fmt.Errorf("decode strategy %s: %w", clientID, err)
			}
		}
		st.ClientID = clientID
		st.Name = name
		st.Active = active
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strategies: %w", err)
	}
	return out, nil
}

// UpsertStrategy writes a strategy row.
func (s *Store) UpsertStrategy(ctx context.Context, st lead.ClientStrategy) error {
	if st.ClientID == "" {
		return fmt.Errorf("strategy client id is required")
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode strategy %s: %w", st.ClientID, err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (client_id, name, active, config, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (client_id) DO UPDATE SET
	name = EXCLUDED.name,
	active = EXCLUDED.active,
	config = EXCLUDED.config,
	updated_at = EXCLUDED.updated_at`, s.tables.Strategies)
	if _, err := s.db.Exec(ctx, query, st.ClientID, st.Name, st.Active, raw, s.now().UTC()); err != nil {
		return fmt.Errorf("upsert strategy %s: %w", st.ClientID, err)
	}
	return nil
}
