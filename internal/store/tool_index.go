package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
)

// ToolMatch is one discover_tools hit: a tool plus its cosine similarity to
// the query embedding, in [-1, 1] (1 - cosine distance).
type ToolMatch struct {
	Tool       Tool
	ProviderID uuid.UUID
	Similarity float32
}

// ToolIndexFilter narrows a FindSimilarTools search to a subset of the
// index, mirroring discover_tools' domain/provider filter arguments.
type ToolIndexFilter struct {
	Domain        string
	ProviderIDs   []uuid.UUID // if non-empty, restrict to these providers (the caller's enabled set)
	MinSimilarity float32     // floor applied before LIMIT topK; 0 disables the floor
}

// IndexTool upserts one tool's embedding vector into the embedding table.
// Called after ReplaceTools, once per newly (re-)discovered tool.
func (s *Store) IndexTool(ctx context.Context, table string, toolID, providerID uuid.UUID, domain string, embedding []float32) error {
	q := fmt.Sprintf(`
		INSERT INTO %s (tool_id, provider_id, domain, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tool_id) DO UPDATE SET
		    provider_id = EXCLUDED.provider_id,
		    domain      = EXCLUDED.domain,
		    embedding   = EXCLUDED.embedding`, table)
	_, err := s.pool.Exec(ctx, q, toolID, providerID, domain, pgvector.NewVector(embedding))
	if err != nil {
		return fmt.Errorf("store: index tool %s: %w", toolID, err)
	}
	return nil
}

// DeindexToolsByProvider removes every indexed embedding for a provider's
// tools, used before a ReplaceTools call drops stale tool rows via cascade.
func (s *Store) DeindexToolsByProvider(ctx context.Context, table string, providerID uuid.UUID) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE provider_id = $1`, table)
	if _, err := s.pool.Exec(ctx, q, providerID); err != nil {
		return fmt.Errorf("store: deindex tools for provider %s: %w", providerID, err)
	}
	return nil
}

// FindSimilarTools returns the topK tools (joined with their current
// metadata) whose embeddings are closest by cosine similarity to query,
// restricted by filter. Results are ordered by descending similarity.
//
// This is discover_tools' core: the index holds only (tool_id, provider_id,
// domain, vector);
// joining against tools/providers at query time means a tool's description
// can be re-embedded independently of its current registration state.
func (s *Store) FindSimilarTools(ctx context.Context, table string, query []float32, topK int, filter ToolIndexFilter) ([]ToolMatch, error) {
	queryVec := pgvector.NewVector(query)

	args := []any{queryVec} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if filter.Domain != "" {
		conditions = append(conditions, "e.domain = "+next(filter.Domain))
	}
	if len(filter.ProviderIDs) > 0 {
		conditions = append(conditions, "e.provider_id = ANY("+next(filter.ProviderIDs)+")")
	}
	if filter.MinSimilarity > 0 {
		conditions = append(conditions, "1 - (e.embedding <=> $1) >= "+next(filter.MinSimilarity))
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT t.id, t.provider_id, t.name, t.description, t.schema,
		       1 - (e.embedding <=> $1) AS similarity
		FROM   %s e
		JOIN   tools t ON t.id = e.tool_id
		%s
		ORDER  BY e.embedding <=> $1
		LIMIT  %s`, table, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: find similar tools: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ToolMatch, error) {
		var m ToolMatch
		if err := row.Scan(
			&m.Tool.ID, &m.Tool.ProviderID, &m.Tool.Name, &m.Tool.Description, &m.Tool.Schema,
			&m.Similarity,
		); err != nil {
			return ToolMatch{}, err
		}
		m.ProviderID = m.Tool.ProviderID
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: scan tool matches: %w", err)
	}
	if matches == nil {
		matches = []ToolMatch{}
	}
	return matches, nil
}
