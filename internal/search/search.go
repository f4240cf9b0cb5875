package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultStock       ResultType = "stock"
	ResultNewsletter  ResultType = "newsletter"
	ResultLandingPage ResultType = "landingPage"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Slug    string     `json:"slug"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	Status  string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterType    ResultType // empty = all types
	PublishedOnly bool
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push entities into a search index.
type Indexer interface {
	IndexStock(s StockRecord) error
	IndexNewsletter(n NewsletterRecord) error
	IndexLandingPage(p LandingPageRecord) error
	DeleteStock(id string) error
	DeleteNewsletter(id string) error
	DeleteLandingPage(id string) error
}

// StockRecord is the data we index for a stock page.
type StockRecord struct {
	ID      string `json:"id"`
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Ticker  string `json:"ticker"`
	Summary string `json:"summary"`
	Status  string `json:"status"`
}

// NewsletterRecord is the data we index for a newsletter issue.
type NewsletterRecord struct {
	ID          string `json:"id"`
	Slug        string `json:"slug"`
	Subject     string `json:"subject"`
	PreviewText string `json:"previewText"`
	Status      string `json:"status"`
}

// LandingPageRecord is the data we index for a landing page.
type LandingPageRecord struct {
	ID              string `json:"id"`
	Slug            string `json:"slug"`
	Title           string `json:"title"`
	MetaDescription string `json:"metaDescription"`
	Status          string `json:"status"`
}
