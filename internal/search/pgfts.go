package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across stocks, newsletters, and
// landing_pages using plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}

	var subQueries []string

	// Stocks sub-query
	if q.FilterType == "" || q.FilterType == ResultStock {
		where := "s.fts @@ " + tsQuery
		if q.PublishedOnly {
			where += " AND s.status = 'published'"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'stock'::text AS type, s.id, s.slug, s.name AS title,
				ts_headline('english', coalesce(s.summary, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				s.status,
				ts_rank(s.fts, %s) AS rank
			FROM stocks s
			WHERE %s`, tsQuery, tsQuery, where))
	}

	// Newsletters sub-query
	if q.FilterType == "" || q.FilterType == ResultNewsletter {
		where := "n.fts @@ " + tsQuery
		if q.PublishedOnly {
			where += " AND n.status = 'published'"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'newsletter'::text AS type, n.id, n.slug, n.subject AS title,
				ts_headline('english', coalesce(n.preview_text, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				n.status,
				ts_rank(n.fts, %s) AS rank
			FROM newsletters n
			WHERE %s`, tsQuery, tsQuery, where))
	}

	// Landing pages sub-query
	if q.FilterType == "" || q.FilterType == ResultLandingPage {
		where := "lp.fts @@ " + tsQuery
		if q.PublishedOnly {
			where += " AND lp.status = 'published'"
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'landingPage'::text AS type, lp.id, lp.slug, lp.title,
				ts_headline('english', coalesce(lp.meta_description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				lp.status,
				ts_rank(lp.fts, %s) AS rank
			FROM landing_pages lp
			WHERE %s`, tsQuery, tsQuery, where))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, slug, title, snippet, status
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Slug, &r.Title, &r.Snippet, &r.Status); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]StockRecord, []NewsletterRecord, []LandingPageRecord, error) {
	stockRows, err := p.db.QueryContext(ctx, `
		SELECT id, slug, name, ticker, summary, status
		FROM stocks
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load stocks: %w", err)
	}
	defer stockRows.Close()

	stocks := make([]StockRecord, 0)
	for stockRows.Next() {
		var s StockRecord
		if err := stockRows.Scan(&s.ID, &s.Slug, &s.Name, &s.Ticker, &s.Summary, &s.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan stock: %w", err)
		}
		stocks = append(stocks, s)
	}
	if err := stockRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate stocks: %w", err)
	}

	newsletterRows, err := p.db.QueryContext(ctx, `
		SELECT id, slug, subject, preview_text, status
		FROM newsletters
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load newsletters: %w", err)
	}
	defer newsletterRows.Close()

	newsletters := make([]NewsletterRecord, 0)
	for newsletterRows.Next() {
		var n NewsletterRecord
		if err := newsletterRows.Scan(&n.ID, &n.Slug, &n.Subject, &n.PreviewText, &n.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan newsletter: %w", err)
		}
		newsletters = append(newsletters, n)
	}
	if err := newsletterRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate newsletters: %w", err)
	}

	pageRows, err := p.db.QueryContext(ctx, `
		SELECT id, slug, title, meta_description, status
		FROM landing_pages
	`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load landing pages: %w", err)
	}
	defer pageRows.Close()

	pages := make([]LandingPageRecord, 0)
	for pageRows.Next() {
		var lp LandingPageRecord
		if err := pageRows.Scan(&lp.ID, &lp.Slug, &lp.Title, &lp.MetaDescription, &lp.Status); err != nil {
			return nil, nil, nil, fmt.Errorf("scan landing page: %w", err)
		}
		pages = append(pages, lp)
	}
	if err := pageRows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate landing pages: %w", err)
	}

	return stocks, newsletters, pages, nil
}
