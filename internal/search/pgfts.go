package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher with PostgreSQL full-text search over the
// annotation_documents view.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down the store is down too.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search ranks with ts_rank and builds snippets with ts_headline. A query
// without text lists the filtered annotations unranked.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	text := strings.TrimSpace(q.Text)
	rank := "0::real"
	snippet := "coalesce(text, '')"
	if text != "" {
		tsQuery := "plainto_tsquery('simple', " + arg(text) + ")"
		where = append(where, "search_vector @@ "+tsQuery)
		rank = "ts_rank(search_vector, " + tsQuery + ")"
		snippet = "ts_headline('simple', coalesce(text, '') || ' ' || quote, " + tsQuery + ", 'MaxFragments=1,MaxWords=30')"
	}
	if q.URL != "" {
		where = append(where, "url = "+arg(q.URL))
	}
	if q.Tag != "" {
		where = append(where, arg(strings.ToLower(q.Tag))+" = ANY(string_to_array(lower(tags), ' '))")
	}
	if len(where) == 0 {
		return nil, 0, nil
	}
	clause := strings.Join(where, " AND ")

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, "SELECT count(*) FROM annotation_documents WHERE "+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	dataSQL := fmt.Sprintf(`SELECT id, url, coalesce(text, ''), quote, tags, %s AS snippet
		FROM annotation_documents
		WHERE %s
		ORDER BY %s DESC, id
		LIMIT %d OFFSET %d`, snippet, clause, rank, q.limit(), q.offset())

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r       Record
			tags    string
			snippet string
		)
		if err := rows.Scan(&r.ID, &r.URL, &r.Text, &r.Quote, &tags, &snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Tags = strings.Fields(tags)
		results = append(results, r.result(snippet))
	}
	return results, total, rows.Err()
}
