package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"masthead/api/internal/assets"
	"masthead/api/internal/preview"
	"masthead/api/internal/revisions"
	"masthead/api/internal/search"
	"masthead/api/internal/store"
	"masthead/api/internal/util"
)

// assetStore is the slice of the media store the service uses. Nil when
// MinIO is not configured; asset routes then return 503.
type assetStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

const (
	revKindLandingPage = "landing-pages"
	revKindNewsletter  = "newsletters"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusScheduled = "scheduled"
	StatusSent      = "sent"
)

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

// ── Bonds ──

type BondInput struct {
	Slug         string     `json:"slug"`
	Name         string     `json:"name"`
	Issuer       string     `json:"issuer"`
	CouponPct    float64    `json:"couponPct"`
	MaturityDate *time.Time `json:"maturityDate"`
	Rating       string     `json:"rating"`
	Summary      string     `json:"summary"`
	Body         string     `json:"body"`
}

func (s *Service) ListBonds(ctx context.Context) (map[string]any, error) {
	items, err := s.db.ListBonds(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, b := range items {
		out = append(out, bondJSON(b))
	}
	return map[string]any{"bonds": out}, nil
}

func (s *Service) GetBond(ctx context.Context, id string) (map[string]any, error) {
	b, err := s.db.GetBond(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"bond": bondJSON(b)}, nil
}

func (s *Service) CreateBond(ctx context.Context, in BondInput, actor string) (map[string]any, error) {
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Name) == "" {
		return nil, validationError("slug and name are required")
	}
	now := time.Now()
	b := store.Bond{
		ID:           util.NewID("bnd"),
		Slug:         strings.TrimSpace(in.Slug),
		Name:         strings.TrimSpace(in.Name),
		Issuer:       in.Issuer,
		CouponPct:    in.CouponPct,
		MaturityDate: in.MaturityDate,
		Rating:       in.Rating,
		Summary:      in.Summary,
		Body:         in.Body,
		Status:       StatusDraft,
		UpdatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.InsertBond(ctx, b); err != nil {
		return nil, err
	}
	return map[string]any{"bond": bondJSON(b)}, nil
}

func (s *Service) UpdateBond(ctx context.Context, id string, in BondInput, actor string) (map[string]any, error) {
	b, err := s.db.GetBond(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Name) == "" {
		return nil, validationError("slug and name are required")
	}
	b.Slug = strings.TrimSpace(in.Slug)
	b.Name = strings.TrimSpace(in.Name)
	b.Issuer = in.Issuer
	b.CouponPct = in.CouponPct
	b.MaturityDate = in.MaturityDate
	b.Rating = in.Rating
	b.Summary = in.Summary
	b.Body = in.Body
	b.UpdatedBy = actor
	b.UpdatedAt = time.Now()
	if err := s.db.UpdateBond(ctx, b); err != nil {
		return nil, err
	}
	return map[string]any{"bond": bondJSON(b)}, nil
}

func (s *Service) SetBondStatus(ctx context.Context, id, status, actor string) (map[string]any, error) {
	if status != StatusDraft && status != StatusPublished {
		return nil, validationError("status must be draft or published")
	}
	b, err := s.db.GetBond(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Status = status
	b.UpdatedBy = actor
	b.UpdatedAt = time.Now()
	if err := s.db.UpdateBond(ctx, b); err != nil {
		return nil, err
	}
	return map[string]any{"bond": bondJSON(b)}, nil
}

func (s *Service) DeleteBond(ctx context.Context, id string) error {
	return s.db.DeleteBond(ctx, id)
}

func bondJSON(b store.Bond) map[string]any {
	return map[string]any{
		"id":           b.ID,
		"slug":         b.Slug,
		"name":         b.Name,
		"issuer":       b.Issuer,
		"couponPct":    b.CouponPct,
		"maturityDate": b.MaturityDate,
		"rating":       b.Rating,
		"summary":      b.Summary,
		"body":         b.Body,
		"status":       b.Status,
		"updatedBy":    b.UpdatedBy,
		"createdAt":    b.CreatedAt,
		"updatedAt":    b.UpdatedAt,
	}
}

// ── Crypto assets ──

type CryptoAssetInput struct {
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
	Summary string `json:"summary"`
	Body    string `json:"body"`
	LogoKey string `json:"logoKey"`
}

func (s *Service) ListCryptoAssets(ctx context.Context) (map[string]any, error) {
	items, err := s.db.ListCryptoAssets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, c := range items {
		out = append(out, cryptoAssetJSON(c))
	}
	return map[string]any{"cryptoAssets": out}, nil
}

func (s *Service) GetCryptoAsset(ctx context.Context, id string) (map[string]any, error) {
	c, err := s.db.GetCryptoAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"cryptoAsset": cryptoAssetJSON(c)}, nil
}

func (s *Service) CreateCryptoAsset(ctx context.Context, in CryptoAssetInput, actor string) (map[string]any, error) {
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Symbol) == "" {
		return nil, validationError("slug, name and symbol are required")
	}
	now := time.Now()
	c := store.CryptoAsset{
		ID:        util.NewID("cry"),
		Slug:      strings.TrimSpace(in.Slug),
		Name:      strings.TrimSpace(in.Name),
		Symbol:    strings.ToUpper(strings.TrimSpace(in.Symbol)),
		Summary:   in.Summary,
		Body:      in.Body,
		LogoKey:   in.LogoKey,
		Status:    StatusDraft,
		UpdatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.InsertCryptoAsset(ctx, c); err != nil {
		return nil, err
	}
	return map[string]any{"cryptoAsset": cryptoAssetJSON(c)}, nil
}

func (s *Service) UpdateCryptoAsset(ctx context.Context, id string, in CryptoAssetInput, actor string) (map[string]any, error) {
	c, err := s.db.GetCryptoAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Symbol) == "" {
		return nil, validationError("slug, name and symbol are required")
	}
	c.Slug = strings.TrimSpace(in.Slug)
	c.Name = strings.TrimSpace(in.Name)
	c.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	c.Summary = in.Summary
	c.Body = in.Body
	c.LogoKey = in.LogoKey
	c.UpdatedBy = actor
	c.UpdatedAt = time.Now()
	if err := s.db.UpdateCryptoAsset(ctx, c); err != nil {
		return nil, err
	}
	return map[string]any{"cryptoAsset": cryptoAssetJSON(c)}, nil
}

func (s *Service) SetCryptoAssetStatus(ctx context.Context, id, status, actor string) (map[string]any, error) {
	if status != StatusDraft && status != StatusPublished {
		return nil, validationError("status must be draft or published")
	}
	c, err := s.db.GetCryptoAsset(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Status = status
	c.UpdatedBy = actor
	c.UpdatedAt = time.Now()
	if err := s.db.UpdateCryptoAsset(ctx, c); err != nil {
		return nil, err
	}
	return map[string]any{"cryptoAsset": cryptoAssetJSON(c)}, nil
}

func (s *Service) DeleteCryptoAsset(ctx context.Context, id string) error {
	return s.db.DeleteCryptoAsset(ctx, id)
}

func cryptoAssetJSON(c store.CryptoAsset) map[string]any {
	return map[string]any{
		"id":        c.ID,
		"slug":      c.Slug,
		"name":      c.Name,
		"symbol":    c.Symbol,
		"summary":   c.Summary,
		"body":      c.Body,
		"logoKey":   c.LogoKey,
		"status":    c.Status,
		"updatedBy": c.UpdatedBy,
		"createdAt": c.CreatedAt,
		"updatedAt": c.UpdatedAt,
	}
}

// ── Stocks ──

type StockInput struct {
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	Ticker       string `json:"ticker"`
	Exchange     string `json:"exchange"`
	Sector       string `json:"sector"`
	Summary      string `json:"summary"`
	Body         string `json:"body"`
	HeroImageKey string `json:"heroImageKey"`
}

func (s *Service) ListStocks(ctx context.Context) (map[string]any, error) {
	items, err := s.db.ListStocks(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, st := range items {
		out = append(out, stockJSON(st))
	}
	return map[string]any{"stocks": out}, nil
}

func (s *Service) GetStock(ctx context.Context, id string) (map[string]any, error) {
	st, err := s.db.GetStock(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"stock": stockJSON(st)}, nil
}

func (s *Service) CreateStock(ctx context.Context, in StockInput, actor string) (map[string]any, error) {
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Ticker) == "" {
		return nil, validationError("slug, name and ticker are required")
	}
	now := time.Now()
	st := store.Stock{
		ID:           util.NewID("stk"),
		Slug:         strings.TrimSpace(in.Slug),
		Name:         strings.TrimSpace(in.Name),
		Ticker:       strings.ToUpper(strings.TrimSpace(in.Ticker)),
		Exchange:     in.Exchange,
		Sector:       in.Sector,
		Summary:      in.Summary,
		Body:         in.Body,
		HeroImageKey: in.HeroImageKey,
		Status:       StatusDraft,
		UpdatedBy:    actor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.InsertStock(ctx, st); err != nil {
		return nil, err
	}
	s.indexStock(st)
	return map[string]any{"stock": stockJSON(st)}, nil
}

func (s *Service) UpdateStock(ctx context.Context, id string, in StockInput, actor string) (map[string]any, error) {
	st, err := s.db.GetStock(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Ticker) == "" {
		return nil, validationError("slug, name and ticker are required")
	}
	st.Slug = strings.TrimSpace(in.Slug)
	st.Name = strings.TrimSpace(in.Name)
	st.Ticker = strings.ToUpper(strings.TrimSpace(in.Ticker))
	st.Exchange = in.Exchange
	st.Sector = in.Sector
	st.Summary = in.Summary
	st.Body = in.Body
	st.HeroImageKey = in.HeroImageKey
	st.UpdatedBy = actor
	st.UpdatedAt = time.Now()
	if err := s.db.UpdateStock(ctx, st); err != nil {
		return nil, err
	}
	s.indexStock(st)
	return map[string]any{"stock": stockJSON(st)}, nil
}

func (s *Service) SetStockStatus(ctx context.Context, id, status, actor string) (map[string]any, error) {
	if status != StatusDraft && status != StatusPublished {
		return nil, validationError("status must be draft or published")
	}
	st, err := s.db.GetStock(ctx, id)
	if err != nil {
		return nil, err
	}
	st.Status = status
	st.UpdatedBy = actor
	st.UpdatedAt = time.Now()
	if err := s.db.UpdateStock(ctx, st); err != nil {
		return nil, err
	}
	s.indexStock(st)
	return map[string]any{"stock": stockJSON(st)}, nil
}

func (s *Service) DeleteStock(ctx context.Context, id string) error {
	if err := s.db.DeleteStock(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteStock(id)
	}
	return nil
}

func (s *Service) indexStock(st store.Stock) {
	if s.search == nil {
		return
	}
	s.search.IndexStock(search.StockRecord{
		ID:      st.ID,
		Slug:    st.Slug,
		Name:    st.Name,
		Ticker:  st.Ticker,
		Summary: st.Summary,
		Status:  st.Status,
	})
}

func stockJSON(st store.Stock) map[string]any {
	return map[string]any{
		"id":           st.ID,
		"slug":         st.Slug,
		"name":         st.Name,
		"ticker":       st.Ticker,
		"exchange":     st.Exchange,
		"sector":       st.Sector,
		"summary":      st.Summary,
		"body":         st.Body,
		"heroImageKey": st.HeroImageKey,
		"status":       st.Status,
		"updatedBy":    st.UpdatedBy,
		"createdAt":    st.CreatedAt,
		"updatedAt":    st.UpdatedAt,
	}
}

// ── Newsletters ──

type NewsletterInput struct {
	Slug        string `json:"slug"`
	Subject     string `json:"subject"`
	PreviewText string `json:"previewText"`
	BodyHTML    string `json:"bodyHtml"`
}

func (s *Service) ListNewsletters(ctx context.Context) (map[string]any, error) {
	items, err := s.db.ListNewsletters(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, n := range items {
		out = append(out, newsletterJSON(n))
	}
	return map[string]any{"newsletters": out}, nil
}

func (s *Service) GetNewsletter(ctx context.Context, id string) (map[string]any, error) {
	n, err := s.db.GetNewsletter(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"newsletter": newsletterJSON(n)}, nil
}

func (s *Service) CreateNewsletter(ctx context.Context, in NewsletterInput, actor string) (map[string]any, error) {
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Subject) == "" {
		return nil, validationError("slug and subject are required")
	}
	now := time.Now()
	n := store.Newsletter{
		ID:          util.NewID("nws"),
		Slug:        strings.TrimSpace(in.Slug),
		Subject:     strings.TrimSpace(in.Subject),
		PreviewText: in.PreviewText,
		BodyHTML:    in.BodyHTML,
		Status:      StatusDraft,
		UpdatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.InsertNewsletter(ctx, n); err != nil {
		return nil, err
	}
	s.indexNewsletter(n)
	s.recordRevision(revKindNewsletter, n.ID, newsletterSnapshot(n), actor, "Create newsletter")
	return map[string]any{"newsletter": newsletterJSON(n)}, nil
}

func (s *Service) UpdateNewsletter(ctx context.Context, id string, in NewsletterInput, actor string) (map[string]any, error) {
	n, err := s.db.GetNewsletter(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Status == StatusSent {
		return nil, domainError(http.StatusConflict, "NEWSLETTER_SENT", "Sent newsletters are immutable", nil)
	}
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Subject) == "" {
		return nil, validationError("slug and subject are required")
	}
	n.Slug = strings.TrimSpace(in.Slug)
	n.Subject = strings.TrimSpace(in.Subject)
	n.PreviewText = in.PreviewText
	n.BodyHTML = in.BodyHTML
	n.UpdatedBy = actor
	n.UpdatedAt = time.Now()
	if err := s.db.UpdateNewsletter(ctx, n); err != nil {
		return nil, err
	}
	s.indexNewsletter(n)
	s.recordRevision(revKindNewsletter, n.ID, newsletterSnapshot(n), actor, "Update newsletter")
	return map[string]any{"newsletter": newsletterJSON(n)}, nil
}

func (s *Service) ScheduleNewsletter(ctx context.Context, id string, at time.Time, actor string) (map[string]any, error) {
	if at.Before(time.Now()) {
		return nil, validationError("scheduledAt must be in the future")
	}
	n, err := s.db.GetNewsletter(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.Status == StatusSent {
		return nil, domainError(http.StatusConflict, "NEWSLETTER_SENT", "Sent newsletters cannot be rescheduled", nil)
	}
	n.Status = StatusScheduled
	n.ScheduledAt = &at
	n.UpdatedBy = actor
	n.UpdatedAt = time.Now()
	if err := s.db.UpdateNewsletter(ctx, n); err != nil {
		return nil, err
	}
	s.indexNewsletter(n)
	return map[string]any{"newsletter": newsletterJSON(n)}, nil
}

func (s *Service) MarkNewsletterSent(ctx context.Context, id, actor string) (map[string]any, error) {
	n, err := s.db.GetNewsletter(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	n.Status = StatusSent
	n.SentAt = &now
	n.UpdatedBy = actor
	n.UpdatedAt = now
	if err := s.db.UpdateNewsletter(ctx, n); err != nil {
		return nil, err
	}
	s.indexNewsletter(n)
	return map[string]any{"newsletter": newsletterJSON(n)}, nil
}

func (s *Service) DeleteNewsletter(ctx context.Context, id string) error {
	if err := s.db.DeleteNewsletter(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteNewsletter(id)
	}
	return nil
}

func (s *Service) NewsletterRevisions(ctx context.Context, id string, limit int) (map[string]any, error) {
	return s.revisionHistory(ctx, revKindNewsletter, id, limit)
}

func (s *Service) indexNewsletter(n store.Newsletter) {
	if s.search == nil {
		return
	}
	s.search.IndexNewsletter(search.NewsletterRecord{
		ID:          n.ID,
		Slug:        n.Slug,
		Subject:     n.Subject,
		PreviewText: n.PreviewText,
		Status:      n.Status,
	})
}

func newsletterSnapshot(n store.Newsletter) revisions.Snapshot {
	return revisions.Snapshot{
		Title:    n.Subject,
		Slug:     n.Slug,
		Summary:  n.PreviewText,
		BodyHTML: n.BodyHTML,
	}
}

func newsletterJSON(n store.Newsletter) map[string]any {
	return map[string]any{
		"id":          n.ID,
		"slug":        n.Slug,
		"subject":     n.Subject,
		"previewText": n.PreviewText,
		"bodyHtml":    n.BodyHTML,
		"scheduledAt": n.ScheduledAt,
		"sentAt":      n.SentAt,
		"status":      n.Status,
		"updatedBy":   n.UpdatedBy,
		"createdAt":   n.CreatedAt,
		"updatedAt":   n.UpdatedAt,
	}
}

// ── Spotlights ──

type SpotlightInput struct {
	Title     string     `json:"title"`
	ImageKey  string     `json:"imageKey"`
	LinkURL   string     `json:"linkUrl"`
	Placement string     `json:"placement"`
	StartsAt  *time.Time `json:"startsAt"`
	EndsAt    *time.Time `json:"endsAt"`
	SortOrder int        `json:"sortOrder"`
	Active    bool       `json:"active"`
}

func (s *Service) ListSpotlights(ctx context.Context) (map[string]any, error) {
	items, err := s.db.ListSpotlights(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, sp := range items {
		out = append(out, spotlightJSON(sp))
	}
	return map[string]any{"spotlights": out}, nil
}

func (s *Service) GetSpotlight(ctx context.Context, id string) (map[string]any, error) {
	sp, err := s.db.GetSpotlight(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"spotlight": spotlightJSON(sp)}, nil
}

func (s *Service) CreateSpotlight(ctx context.Context, in SpotlightInput, actor string) (map[string]any, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, validationError("title is required")
	}
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		return nil, validationError("endsAt must be after startsAt")
	}
	now := time.Now()
	sp := store.Spotlight{
		ID:        util.NewID("spt"),
		Title:     strings.TrimSpace(in.Title),
		ImageKey:  in.ImageKey,
		LinkURL:   in.LinkURL,
		Placement: in.Placement,
		StartsAt:  in.StartsAt,
		EndsAt:    in.EndsAt,
		SortOrder: in.SortOrder,
		Active:    false,
		UpdatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.InsertSpotlight(ctx, sp); err != nil {
		return nil, err
	}
	return map[string]any{"spotlight": spotlightJSON(sp)}, nil
}

func (s *Service) UpdateSpotlight(ctx context.Context, id string, in SpotlightInput, actor string) (map[string]any, error) {
	sp, err := s.db.GetSpotlight(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, validationError("title is required")
	}
	if in.StartsAt != nil && in.EndsAt != nil && in.EndsAt.Before(*in.StartsAt) {
		return nil, validationError("endsAt must be after startsAt")
	}
	sp.Title = strings.TrimSpace(in.Title)
	sp.ImageKey = in.ImageKey
	sp.LinkURL = in.LinkURL
	sp.Placement = in.Placement
	sp.StartsAt = in.StartsAt
	sp.EndsAt = in.EndsAt
	sp.SortOrder = in.SortOrder
	sp.UpdatedBy = actor
	sp.UpdatedAt = time.Now()
	if err := s.db.UpdateSpotlight(ctx, sp); err != nil {
		return nil, err
	}
	return map[string]any{"spotlight": spotlightJSON(sp)}, nil
}

// SetSpotlightActive flips the banner live. Activation is a publish-level
// action; routing enforces that.
func (s *Service) SetSpotlightActive(ctx context.Context, id string, active bool, actor string) (map[string]any, error) {
	sp, err := s.db.GetSpotlight(ctx, id)
	if err != nil {
		return nil, err
	}
	sp.Active = active
	sp.UpdatedBy = actor
	sp.UpdatedAt = time.Now()
	if err := s.db.UpdateSpotlight(ctx, sp); err != nil {
		return nil, err
	}
	return map[string]any{"spotlight": spotlightJSON(sp)}, nil
}

func (s *Service) DeleteSpotlight(ctx context.Context, id string) error {
	return s.db.DeleteSpotlight(ctx, id)
}

func spotlightJSON(sp store.Spotlight) map[string]any {
	return map[string]any{
		"id":        sp.ID,
		"title":     sp.Title,
		"imageKey":  sp.ImageKey,
		"linkUrl":   sp.LinkURL,
		"placement": sp.Placement,
		"startsAt":  sp.StartsAt,
		"endsAt":    sp.EndsAt,
		"sortOrder": sp.SortOrder,
		"active":    sp.Active,
		"updatedBy": sp.UpdatedBy,
		"createdAt": sp.CreatedAt,
		"updatedAt": sp.UpdatedAt,
	}
}

// ── Landing pages ──

type LandingPageInput struct {
	Slug            string `json:"slug"`
	Title           string `json:"title"`
	MetaDescription string `json:"metaDescription"`
	BodyHTML        string `json:"bodyHtml"`
}

func (s *Service) ListLandingPages(ctx context.Context) (map[string]any, error) {
	items, err := s.db.ListLandingPages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, lp := range items {
		out = append(out, landingPageJSON(lp))
	}
	return map[string]any{"landingPages": out}, nil
}

func (s *Service) GetLandingPage(ctx context.Context, id string) (map[string]any, error) {
	lp, err := s.db.GetLandingPage(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"landingPage": landingPageJSON(lp)}, nil
}

func (s *Service) CreateLandingPage(ctx context.Context, in LandingPageInput, actor string) (map[string]any, error) {
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Title) == "" {
		return nil, validationError("slug and title are required")
	}
	now := time.Now()
	lp := store.LandingPage{
		ID:              util.NewID("lnd"),
		Slug:            strings.TrimSpace(in.Slug),
		Title:           strings.TrimSpace(in.Title),
		MetaDescription: in.MetaDescription,
		BodyHTML:        in.BodyHTML,
		Status:          StatusDraft,
		UpdatedBy:       actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.db.InsertLandingPage(ctx, lp); err != nil {
		return nil, err
	}
	s.indexLandingPage(lp)
	s.recordRevision(revKindLandingPage, lp.ID, landingPageSnapshot(lp), actor, "Create landing page")
	return map[string]any{"landingPage": landingPageJSON(lp)}, nil
}

func (s *Service) UpdateLandingPage(ctx context.Context, id string, in LandingPageInput, actor string) (map[string]any, error) {
	lp, err := s.db.GetLandingPage(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Slug) == "" || strings.TrimSpace(in.Title) == "" {
		return nil, validationError("slug and title are required")
	}
	lp.Slug = strings.TrimSpace(in.Slug)
	lp.Title = strings.TrimSpace(in.Title)
	lp.MetaDescription = in.MetaDescription
	lp.BodyHTML = in.BodyHTML
	lp.UpdatedBy = actor
	lp.UpdatedAt = time.Now()
	if err := s.db.UpdateLandingPage(ctx, lp); err != nil {
		return nil, err
	}
	s.indexLandingPage(lp)
	s.recordRevision(revKindLandingPage, lp.ID, landingPageSnapshot(lp), actor, "Update landing page")
	return map[string]any{"landingPage": landingPageJSON(lp)}, nil
}

func (s *Service) SetLandingPageStatus(ctx context.Context, id, status, actor string) (map[string]any, error) {
	if status != StatusDraft && status != StatusPublished {
		return nil, validationError("status must be draft or published")
	}
	lp, err := s.db.GetLandingPage(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	lp.Status = status
	if status == StatusPublished {
		lp.PublishedAt = &now
	} else {
		lp.PublishedAt = nil
	}
	lp.UpdatedBy = actor
	lp.UpdatedAt = now
	if err := s.db.UpdateLandingPage(ctx, lp); err != nil {
		return nil, err
	}
	s.indexLandingPage(lp)
	return map[string]any{"landingPage": landingPageJSON(lp)}, nil
}

func (s *Service) DeleteLandingPage(ctx context.Context, id string) error {
	if err := s.db.DeleteLandingPage(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteLandingPage(id)
	}
	return nil
}

func (s *Service) LandingPageRevisions(ctx context.Context, id string, limit int) (map[string]any, error) {
	return s.revisionHistory(ctx, revKindLandingPage, id, limit)
}

func (s *Service) LandingPageRevisionByHash(ctx context.Context, id, hash string) (map[string]any, error) {
	if s.revisions == nil {
		return nil, domainError(http.StatusServiceUnavailable, "REVISIONS_UNAVAILABLE", "Revision history not configured", nil)
	}
	snap, err := s.revisions.GetByHash(revKindLandingPage, id, hash)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Revision not found", nil)
	}
	return map[string]any{"revision": snapshotJSON(snap)}, nil
}

// GenerateLandingPagePreview renders the page in headless Chromium, stores
// the PNG, and records the object key. Preview failures never touch the
// saved content.
func (s *Service) GenerateLandingPagePreview(ctx context.Context, id string) (map[string]any, error) {
	if s.assets == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ASSETS_UNAVAILABLE", "Media storage not configured", nil)
	}
	lp, err := s.db.GetLandingPage(ctx, id)
	if err != nil {
		return nil, err
	}
	html := "<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>" +
		lp.Title + "</title></head><body>" + lp.BodyHTML + "</body></html>"
	png, err := preview.Screenshot(html)
	if err != nil {
		if errors.Is(err, preview.ErrDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "PREVIEW_UNAVAILABLE", "Chromium is not installed on this host", nil)
		}
		return nil, domainError(http.StatusBadGateway, "PREVIEW_FAILED", "Preview rendering failed", nil)
	}
	key := assets.PreviewKey(lp.ID)
	if _, err := s.assets.Put(ctx, key, bytes.NewReader(png), int64(len(png)), "image/png"); err != nil {
		return nil, err
	}
	if err := s.db.SetLandingPagePreviewKey(ctx, lp.ID, key); err != nil {
		return nil, err
	}
	out := map[string]any{"previewKey": key}
	if url, err := s.assets.PresignedURL(ctx, key, time.Hour); err == nil {
		out["previewUrl"] = url
	}
	return out, nil
}

func (s *Service) indexLandingPage(lp store.LandingPage) {
	if s.search == nil {
		return
	}
	s.search.IndexLandingPage(search.LandingPageRecord{
		ID:              lp.ID,
		Slug:            lp.Slug,
		Title:           lp.Title,
		MetaDescription: lp.MetaDescription,
		Status:          lp.Status,
	})
}

func landingPageSnapshot(lp store.LandingPage) revisions.Snapshot {
	return revisions.Snapshot{
		Title:    lp.Title,
		Slug:     lp.Slug,
		Summary:  lp.MetaDescription,
		BodyHTML: lp.BodyHTML,
	}
}

func landingPageJSON(lp store.LandingPage) map[string]any {
	return map[string]any{
		"id":              lp.ID,
		"slug":            lp.Slug,
		"title":           lp.Title,
		"metaDescription": lp.MetaDescription,
		"bodyHtml":        lp.BodyHTML,
		"previewKey":      lp.PreviewKey,
		"status":          lp.Status,
		"publishedAt":     lp.PublishedAt,
		"updatedBy":       lp.UpdatedBy,
		"createdAt":       lp.CreatedAt,
		"updatedAt":       lp.UpdatedAt,
	}
}

// ── Pixel configs ──

type PixelConfigInput struct {
	Provider string   `json:"provider"`
	PixelID  string   `json:"pixelId"`
	Pages    []string `json:"pages"`
	Enabled  bool     `json:"enabled"`
}

func (s *Service) ListPixelConfigs(ctx context.Context) (map[string]any, error) {
	items, err := s.db.ListPixelConfigs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(items))
	for _, p := range items {
		out = append(out, pixelConfigJSON(p))
	}
	return map[string]any{"pixels": out}, nil
}

func (s *Service) GetPixelConfig(ctx context.Context, id string) (map[string]any, error) {
	p, err := s.db.GetPixelConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{"pixel": pixelConfigJSON(p)}, nil
}

func (s *Service) CreatePixelConfig(ctx context.Context, in PixelConfigInput, actor string) (map[string]any, error) {
	if strings.TrimSpace(in.Provider) == "" || strings.TrimSpace(in.PixelID) == "" {
		return nil, validationError("provider and pixelId are required")
	}
	now := time.Now()
	p := store.PixelConfig{
		ID:        util.NewID("pxl"),
		Provider:  strings.TrimSpace(in.Provider),
		PixelID:   strings.TrimSpace(in.PixelID),
		Pages:     in.Pages,
		Enabled:   in.Enabled,
		UpdatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.InsertPixelConfig(ctx, p); err != nil {
		return nil, err
	}
	return map[string]any{"pixel": pixelConfigJSON(p)}, nil
}

func (s *Service) UpdatePixelConfig(ctx context.Context, id string, in PixelConfigInput, actor string) (map[string]any, error) {
	p, err := s.db.GetPixelConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Provider) == "" || strings.TrimSpace(in.PixelID) == "" {
		return nil, validationError("provider and pixelId are required")
	}
	p.Provider = strings.TrimSpace(in.Provider)
	p.PixelID = strings.TrimSpace(in.PixelID)
	p.Pages = in.Pages
	p.Enabled = in.Enabled
	p.UpdatedBy = actor
	p.UpdatedAt = time.Now()
	if err := s.db.UpdatePixelConfig(ctx, p); err != nil {
		return nil, err
	}
	return map[string]any{"pixel": pixelConfigJSON(p)}, nil
}

func (s *Service) DeletePixelConfig(ctx context.Context, id string) error {
	return s.db.DeletePixelConfig(ctx, id)
}

func pixelConfigJSON(p store.PixelConfig) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"provider":  p.Provider,
		"pixelId":   p.PixelID,
		"pages":     p.Pages,
		"enabled":   p.Enabled,
		"updatedBy": p.UpdatedBy,
		"createdAt": p.CreatedAt,
		"updatedAt": p.UpdatedAt,
	}
}

// ── Search ──

func (s *Service) Search(ctx context.Context, q, filterType string, publishedOnly bool, limit, offset int) (map[string]any, error) {
	if s.search == nil {
		return map[string]any{"results": []any{}, "total": 0, "query": q}, nil
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	resp := s.search.Search(search.Query{
		Text:          q,
		FilterType:    search.ResultType(filterType),
		PublishedOnly: publishedOnly,
		Limit:         limit,
		Offset:        offset,
	})
	return map[string]any{
		"results": resp.Results,
		"total":   resp.Total,
		"query":   resp.Query,
	}, nil
}

// ── Assets ──

func (s *Service) UploadAsset(ctx context.Context, kind, ownerID, filename, contentType string, r io.Reader, size int64) (map[string]any, error) {
	if s.assets == nil {
		return nil, domainError(http.StatusServiceUnavailable, "ASSETS_UNAVAILABLE", "Media storage not configured", nil)
	}
	var key string
	switch kind {
	case "avatar":
		key = assets.AvatarKey(ownerID, filename)
	case "spotlight":
		key = assets.SpotlightKey(ownerID, filename)
	default:
		return nil, validationError("kind must be avatar or spotlight")
	}
	if _, err := s.assets.Put(ctx, key, r, size, contentType); err != nil {
		return nil, err
	}
	if kind == "avatar" {
		if err := s.db.UpdateUserAvatar(ctx, ownerID, key); err != nil {
			return nil, err
		}
	}
	out := map[string]any{"key": key}
	if url, err := s.assets.PresignedURL(ctx, key, time.Hour); err == nil {
		out["url"] = url
	}
	return out, nil
}

// ── Revisions ──

// recordRevision commits a content snapshot best-effort. Saves never fail
// because history could not be written.
func (s *Service) recordRevision(kind, id string, snap revisions.Snapshot, author, message string) {
	if s.revisions == nil {
		return
	}
	if err := s.revisions.EnsureRepo(kind, id, snap, author); err != nil {
		log.Printf("revisions: ensure %s/%s: %v", kind, id, err)
		return
	}
	if headSnap, _, err := s.revisions.Head(kind, id); err == nil && !revisions.HasChanges(headSnap, snap) {
		return
	}
	if _, err := s.revisions.Commit(kind, id, snap, author, message); err != nil {
		log.Printf("revisions: commit %s/%s: %v", kind, id, err)
	}
}

func (s *Service) revisionHistory(ctx context.Context, kind, id string, limit int) (map[string]any, error) {
	if s.revisions == nil {
		return nil, domainError(http.StatusServiceUnavailable, "REVISIONS_UNAVAILABLE", "Revision history not configured", nil)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	commits, err := s.revisions.History(kind, id, limit)
	if err != nil {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "No revision history", nil)
	}
	out := make([]map[string]any, 0, len(commits))
	for _, c := range commits {
		out = append(out, map[string]any{
			"hash":      c.Hash,
			"message":   c.Message,
			"author":    c.Author,
			"createdAt": c.CreatedAt,
		})
	}
	return map[string]any{"revisions": out}, nil
}

func snapshotJSON(snap revisions.Snapshot) map[string]any {
	return map[string]any{
		"title":    snap.Title,
		"slug":     snap.Slug,
		"summary":  snap.Summary,
		"bodyHtml": snap.BodyHTML,
	}
}
