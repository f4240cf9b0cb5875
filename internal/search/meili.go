package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxStocks       = "masthead_stocks"
	idxNewsletters  = "masthead_newsletters"
	idxLandingPages = "masthead_landing_pages"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures indexes.
// Returns a client even if the initial connection fails; the health
// loop flips it back on when Meilisearch comes up.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		primaryKey string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxStocks,
			primaryKey: "id",
			filterable: []string{"status", "ticker"},
			searchable: []string{"name", "ticker", "summary"},
		},
		{
			uid:        idxNewsletters,
			primaryKey: "id",
			filterable: []string{"status"},
			searchable: []string{"subject", "previewText"},
		},
		{
			uid:        idxLandingPages,
			primaryKey: "id",
			filterable: []string{"status"},
			searchable: []string{"title", "metaDescription"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: idx.primaryKey,
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}

		index := m.client.Index(idx.uid)
		filterableInterface := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterableInterface[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterableInterface); err != nil {
			log.Printf("search: update filterable attrs for %s: %v", idx.uid, err)
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries all three indexes (or a filtered subset) and merges results.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	targetIndexes := []struct {
		uid  string
		rtyp ResultType
	}{
		{idxStocks, ResultStock},
		{idxNewsletters, ResultNewsletter},
		{idxLandingPages, ResultLandingPage},
	}

	for _, ti := range targetIndexes {
		if q.FilterType != "" && q.FilterType != ti.rtyp {
			continue
		}
		sr := &meili.SearchRequest{
			IndexUID:              ti.uid,
			Limit:                 limit,
			Offset:                int64(q.Offset),
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
			ShowRankingScore:      true,
		}

		if q.PublishedOnly {
			sr.Filter = []string{"status = \"published\""}
		}
		queries = append(queries, sr)
	}

	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: queries,
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		rtyp := indexToResultType(sr.IndexUID)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, rtyp))
		}
	}

	return results, total, nil
}

func indexToResultType(uid string) ResultType {
	switch uid {
	case idxStocks:
		return ResultStock
	case idxNewsletters:
		return ResultNewsletter
	case idxLandingPages:
		return ResultLandingPage
	default:
		return ""
	}
}

func hitToResult(hit meili.Hit, rtyp ResultType) Result {
	r := Result{Type: rtyp}
	r.ID = decodeString(hit, "id")
	r.Slug = decodeString(hit, "slug")
	r.Status = decodeString(hit, "status")

	switch rtyp {
	case ResultStock:
		r.Title = firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "summary"), decodeString(hit, "summary"))
	case ResultNewsletter:
		r.Title = firstNonBlank(decodeFormattedString(hit, "subject"), decodeString(hit, "subject"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "previewText"), decodeString(hit, "previewText"))
	case ResultLandingPage:
		r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
		r.Snippet = firstNonBlank(decodeFormattedString(hit, "metaDescription"), decodeString(hit, "metaDescription"))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexStock adds or updates a stock in the search index.
func (m *Meili) IndexStock(s StockRecord) error {
	_, err := m.client.Index(idxStocks).AddDocuments([]StockRecord{s}, nil)
	return err
}

// IndexNewsletter adds or updates a newsletter in the search index.
func (m *Meili) IndexNewsletter(n NewsletterRecord) error {
	_, err := m.client.Index(idxNewsletters).AddDocuments([]NewsletterRecord{n}, nil)
	return err
}

// IndexLandingPage adds or updates a landing page in the search index.
func (m *Meili) IndexLandingPage(p LandingPageRecord) error {
	_, err := m.client.Index(idxLandingPages).AddDocuments([]LandingPageRecord{p}, nil)
	return err
}

// DeleteStock removes a stock from the search index.
func (m *Meili) DeleteStock(id string) error {
	_, err := m.client.Index(idxStocks).DeleteDocument(id, nil)
	return err
}

// DeleteNewsletter removes a newsletter from the search index.
func (m *Meili) DeleteNewsletter(id string) error {
	_, err := m.client.Index(idxNewsletters).DeleteDocument(id, nil)
	return err
}

// DeleteLandingPage removes a landing page from the search index.
func (m *Meili) DeleteLandingPage(id string) error {
	_, err := m.client.Index(idxLandingPages).DeleteDocument(id, nil)
	return err
}

// IndexStocks bulk-indexes stocks.
func (m *Meili) IndexStocks(stocks []StockRecord) error {
	if len(stocks) == 0 {
		return nil
	}
	_, err := m.client.Index(idxStocks).AddDocuments(stocks, nil)
	return err
}

// IndexNewsletters bulk-indexes newsletters.
func (m *Meili) IndexNewsletters(newsletters []NewsletterRecord) error {
	if len(newsletters) == 0 {
		return nil
	}
	_, err := m.client.Index(idxNewsletters).AddDocuments(newsletters, nil)
	return err
}

// IndexLandingPages bulk-indexes landing pages.
func (m *Meili) IndexLandingPages(pages []LandingPageRecord) error {
	if len(pages) == 0 {
		return nil
	}
	_, err := m.client.Index(idxLandingPages).AddDocuments(pages, nil)
	return err
}
