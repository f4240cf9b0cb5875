package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexStock indexes a stock (fire-and-forget to Meilisearch).
func (s *Service) IndexStock(rec StockRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexStock(rec); err != nil {
			log.Printf("search: index stock %s: %v", rec.ID, err)
		}
	}()
}

// IndexNewsletter indexes a newsletter (fire-and-forget to Meilisearch).
func (s *Service) IndexNewsletter(rec NewsletterRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexNewsletter(rec); err != nil {
			log.Printf("search: index newsletter %s: %v", rec.ID, err)
		}
	}()
}

// IndexLandingPage indexes a landing page (fire-and-forget to Meilisearch).
func (s *Service) IndexLandingPage(rec LandingPageRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexLandingPage(rec); err != nil {
			log.Printf("search: index landing page %s: %v", rec.ID, err)
		}
	}()
}

// DeleteStock removes a stock from the search index (fire-and-forget).
func (s *Service) DeleteStock(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteStock(id); err != nil {
			log.Printf("search: delete stock %s: %v", id, err)
		}
	}()
}

// DeleteNewsletter removes a newsletter from the search index (fire-and-forget).
func (s *Service) DeleteNewsletter(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteNewsletter(id); err != nil {
			log.Printf("search: delete newsletter %s: %v", id, err)
		}
	}()
}

// DeleteLandingPage removes a landing page from the search index (fire-and-forget).
func (s *Service) DeleteLandingPage(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteLandingPage(id); err != nil {
			log.Printf("search: delete landing page %s: %v", id, err)
		}
	}()
}

// ReindexAll pushes previously loaded records to Meilisearch.
func (s *Service) ReindexAll(stocks []StockRecord, newsletters []NewsletterRecord, pages []LandingPageRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}

	if len(stocks) > 0 {
		if err := s.meili.IndexStocks(stocks); err != nil {
			log.Printf("search: reindex stocks: %v", err)
		}
	}
	if len(newsletters) > 0 {
		if err := s.meili.IndexNewsletters(newsletters); err != nil {
			log.Printf("search: reindex newsletters: %v", err)
		}
	}
	if len(pages) > 0 {
		if err := s.meili.IndexLandingPages(pages); err != nil {
			log.Printf("search: reindex landing pages: %v", err)
		}
	}
}

// ReindexAllFromPG reindexes all searchable entities from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	stocks, newsletters, pages, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(stocks, newsletters, pages)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
