package adapter

import (
	"context"
	"time"

	"github.com/noah-isme/campus-timetable-api/internal/catalog"
)

// MarkupParser turns already fetched HTML into a catalog. Implementations must not perform I/O.
type MarkupParser interface {
	Parse(html string, year int, term string) (*catalog.Catalog, error)
}

// InteractiveSession drives a live browser page from entryURL to a complete catalog.
type InteractiveSession interface {
	Execute(ctx context.Context, page Page, entryURL string, year int, term string) (*catalog.Catalog, error)
}

// Fetcher retrieves the HTML a MarkupParser consumes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Page is the browser surface interactive adapters depend on. Selectors prefixed with "//" or "(" are
// XPath expressions, anything else is CSS.
type Page interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) (bool, error)
	ComboOptions(ctx context.Context, buttonSelector string) ([]string, error)
	ComboSelect(ctx context.Context, buttonSelector, option string) error
	HTML(ctx context.Context, selector string) (string, error)
	Focus(ctx context.Context, selector string) error
	ScrollDown(ctx context.Context) error
	Close() error
}

// SessionFactory opens an exclusive browser page. The caller owns the returned page and must close it.
type SessionFactory interface {
	Open(ctx context.Context) (Page, error)
}
