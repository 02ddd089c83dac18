package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultJob     ResultType = "job"
	ResultInvoice ResultType = "invoice"
	ResultQuote   ResultType = "quote"
	ResultClient  ResultType = "client"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet,omitempty"`
	Status  string     `json:"status,omitempty"`
}

// Query describes a search request. TenantID is mandatory: every searcher
// filters on it before anything else.
type Query struct {
	TenantID   string
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
	Offset     int
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

// Indexer can replace the contents of a search index. The reindex sweep is
// the only write path: entities are owned by the upstream systems.
type Indexer interface {
	IndexJobs(jobs []JobRecord) error
	IndexInvoices(invoices []InvoiceRecord) error
	IndexQuotes(quotes []QuoteRecord) error
	IndexClients(clients []ClientRecord) error
}

// JobRecord is the data we index for a job.
type JobRecord struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	Reference string `json:"reference"`
	Title     string `json:"title"`
	Status    string `json:"status"`
}

// InvoiceRecord is the data we index for an invoice.
type InvoiceRecord struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Number   string `json:"number"`
	Status   string `json:"status"`
}

// QuoteRecord is the data we index for a quote.
type QuoteRecord struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	Reference string `json:"reference"`
	Title     string `json:"title"`
	Status    string `json:"status"`
}

// ClientRecord is the data we index for a client.
type ClientRecord struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
}
