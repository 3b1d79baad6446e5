package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/satnambhatt/ai-engine/internal/errors"
)

// where builds the SQL filter for q. The clause is empty when q filters nothing.
func (q Query) where() (string, []any) {
	var conds []string
	var args []any

	eq := func(col, v string) {
		if v != "" {
			conds = append(conds, col+" = ?")
			args = append(args, v)
		}
	}
	eq("framework", q.Framework)
	eq("component_category", q.Category)
	eq("section_type", q.Section)
	eq("repo_name", q.Repo)

	if len(q.ExcludeSections) > 0 {
		conds = append(conds, "section_type NOT IN ("+placeholders(len(q.ExcludeSections))+")")
		for _, sec := range q.ExcludeSections {
			args = append(args, sec)
		}
	}

	return strings.Join(conds, " AND "), args
}

func (q Query) filtered() bool {
	return q.Framework != "" || q.Category != "" || q.Section != "" || q.Repo != "" || len(q.ExcludeSections) > 0
}

// Query returns up to q.Limit chunks ordered by descending similarity.
//
// The graph is searched for an oversampled candidate set which is then
// filtered against the rows. When that yields fewer matches than the
// filtered rows could supply, an exact scan over the filtered rows is used.
func (s *LibraryStore) Query(ctx context.Context, vec []float32, q Query) ([]Result, error) {
	if len(vec) == 0 {
		return nil, errors.New(errors.ErrCodeQueryEmpty, "query vector is empty", nil)
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.dims != 0 && len(vec) != s.dims {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query dimension mismatch: expected %d, got %d", s.dims, len(vec)), nil)
	}

	query := make([]float32, len(vec))
	copy(query, vec)
	normalizeVectorInPlace(query)

	where, args := q.where()
	available, err := s.countWhere(ctx, where, args)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "failed to count candidates", err)
	}
	if available == 0 {
		return []Result{}, nil
	}
	want := min(q.Limit, available)

	results, err := s.graphCandidates(ctx, query, q, where, args)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "graph search failed", err)
	}
	if len(results) < want {
		results, err = s.exactScan(ctx, query, where, args)
		if err != nil {
			return nil, errors.New(errors.ErrCodeSearchFailed, "exact search failed", err)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > q.Limit {
		results = results[:q.Limit]
	}
	return results, nil
}

func (s *LibraryStore) countWhere(ctx context.Context, where string, args []any) (int, error) {
	stmt := `SELECT COUNT(*) FROM chunks`
	if where != "" {
		stmt += ` WHERE ` + where
	}
	var n int
	err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&n)
	return n, err
}

// graphCandidates searches the graph and resolves the hits through the rows.
func (s *LibraryStore) graphCandidates(ctx context.Context, query []float32, q Query, where string, args []any) ([]Result, error) {
	if s.graph == nil || s.graph.Len() == 0 {
		return nil, nil
	}

	factor := s.opts.Oversample
	if q.filtered() {
		factor = max(factor, filteredOversample)
	}
	k := min(q.Limit*factor+s.orphans, s.graph.Len())

	nodes := s.graph.Search(query, k)
	if len(nodes) == 0 {
		return nil, nil
	}

	keys := make([]any, 0, len(nodes))
	for _, n := range nodes {
		keys = append(keys, n.Key)
	}

	stmt := `SELECT ` + chunkColumns + ` FROM chunks WHERE key IN (` + placeholders(len(keys)) + `)`
	if where != "" {
		stmt += ` AND ` + where
	}
	return s.scoreRows(ctx, query, stmt, append(keys, args...))
}

// exactScan scores every row that passes the filter.
func (s *LibraryStore) exactScan(ctx context.Context, query []float32, where string, args []any) ([]Result, error) {
	stmt := `SELECT ` + chunkColumns + ` FROM chunks`
	if where != "" {
		stmt += ` WHERE ` + where
	}
	return s.scoreRows(ctx, query, stmt, args)
}

func (s *LibraryStore) scoreRows(ctx context.Context, query []float32, stmt string, args []any) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		r, vec, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		if len(vec) != len(query) {
			continue
		}
		r.Score = dot(query, vec)
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanChunk(rows *sql.Rows) (Result, []float32, error) {
	var (
		r    Result
		key  int64
		blob []byte
		m    = &r.Meta
	)
	if err := rows.Scan(&key, &r.ID, &r.Text, &blob, &m.FilePath, &m.Extension, &m.Framework,
		&m.RepoName, &m.ComponentCategory, &m.SectionType, &m.FileType, &m.ChunkIndex,
		&m.ChunkTotal, &m.StartLine, &m.EndLine, &m.FileSize, &m.SHA256); err != nil {
		return Result{}, nil, err
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return Result{}, nil, fmt.Errorf("chunk %s: %w", r.ID, err)
	}
	return r, vec, nil
}
