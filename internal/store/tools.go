package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func scanTool(row pgx.CollectableRow) (Tool, error) {
	var t Tool
	if err := row.Scan(&t.ID, &t.ProviderID, &t.Name, &t.Description, &t.Schema); err != nil {
		return Tool{}, err
	}
	return t, nil
}

const toolColumns = `id, provider_id, name, description, schema`

// ReplaceTools atomically replaces all tools registered for a provider with
// a freshly discovered manifest. Called by the discovery job after
// reconnecting to a provider or on its periodic re-scan.
func (s *Store) ReplaceTools(ctx context.Context, providerID uuid.UUID, tools []Tool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: replace tools: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM tools WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("store: replace tools: clear: %w", err)
	}
	for _, t := range tools {
		if t.ID == uuid.Nil {
			t.ID = uuid.New()
		}
		const q = `INSERT INTO tools (id, provider_id, name, description, schema) VALUES ($1, $2, $3, $4, $5)`
		if _, err := tx.Exec(ctx, q, t.ID, providerID, t.Name, t.Description, t.Schema); err != nil {
			return fmt.Errorf("store: replace tools: insert %s: %w", t.Name, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: replace tools: commit: %w", err)
	}
	return nil
}

// ToolsByProvider lists every tool currently registered for a provider.
func (s *Store) ToolsByProvider(ctx context.Context, providerID uuid.UUID) ([]Tool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+toolColumns+` FROM tools WHERE provider_id = $1 ORDER BY name`, providerID)
	if err != nil {
		return nil, fmt.Errorf("store: tools by provider: %w", err)
	}
	ts, err := pgx.CollectRows(rows, scanTool)
	if err != nil {
		return nil, fmt.Errorf("store: scan tools: %w", err)
	}
	if ts == nil {
		ts = []Tool{}
	}
	return ts, nil
}

// ToolByID looks up a single tool by its id, used by get_tool_schema and
// execute_tool to resolve a tool_id to its provider and stored schema.
func (s *Store) ToolByID(ctx context.Context, id uuid.UUID) (Tool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+toolColumns+` FROM tools WHERE id = $1`, id)
	if err != nil {
		return Tool{}, fmt.Errorf("store: tool by id: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTool)
	if err != nil {
		return Tool{}, err
	}
	return t, nil
}

// ToolByProviderAndName looks up the single stored tool with the given
// provider and name.
func (s *Store) ToolByProviderAndName(ctx context.Context, providerID uuid.UUID, name string) (Tool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+toolColumns+` FROM tools WHERE provider_id = $1 AND name = $2`, providerID, name)
	if err != nil {
		return Tool{}, fmt.Errorf("store: tool by provider and name: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTool)
	if err != nil {
		return Tool{}, err
	}
	return t, nil
}

// AllTools lists every tool across every provider, ordered by provider_id
// then name.
func (s *Store) AllTools(ctx context.Context) ([]Tool, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+toolColumns+` FROM tools ORDER BY provider_id, name`)
	if err != nil {
		return nil, fmt.Errorf("store: all tools: %w", err)
	}
	ts, err := pgx.CollectRows(rows, scanTool)
	if err != nil {
		return nil, fmt.Errorf("store: scan tools: %w", err)
	}
	if ts == nil {
		ts = []Tool{}
	}
	return ts, nil
}
