package adapter

import (
	"fmt"
	"sort"
)

type markupEntry struct {
	parser  MarkupParser
	fetcher Fetcher
}

// Registry resolves institution identifiers to adapters. Register everything before serving traffic;
// lookups are not synchronised with registration.
type Registry struct {
	defaultFetcher Fetcher
	markup         map[string]markupEntry
	interactive    map[string]InteractiveSession
}

// NewRegistry builds an empty registry. defaultFetcher serves markup adapters registered without one.
func NewRegistry(defaultFetcher Fetcher) *Registry {
	return &Registry{
		defaultFetcher: defaultFetcher,
		markup:         make(map[string]markupEntry),
		interactive:    make(map[string]InteractiveSession),
	}
}

// RegisterMarkup adds a markup adapter. fetcher may be nil.
func (r *Registry) RegisterMarkup(institution string, parser MarkupParser, fetcher Fetcher) {
	r.markup[institution] = markupEntry{parser: parser, fetcher: fetcher}
}

// RegisterInteractive adds an interactive adapter.
func (r *Registry) RegisterInteractive(institution string, session InteractiveSession) {
	r.interactive[institution] = session
}

// Markup returns the parser and fetcher registered for institution.
func (r *Registry) Markup(institution string) (MarkupParser, Fetcher, error) {
	entry, ok := r.markup[institution]
	if !ok {
		return nil, nil, fmt.Errorf("markup %q: %w", institution, ErrAdapterNotFound)
	}
	fetcher := entry.fetcher
	if fetcher == nil {
		fetcher = r.defaultFetcher
	}
	if fetcher == nil {
		return nil, nil, fmt.Errorf("markup %q has no fetcher: %w", institution, ErrAdapterNotFound)
	}
	return entry.parser, fetcher, nil
}

// Interactive returns the interactive adapter registered for institution.
func (r *Registry) Interactive(institution string) (InteractiveSession, error) {
	session, ok := r.interactive[institution]
	if !ok {
		return nil, fmt.Errorf("interactive %q: %w", institution, ErrAdapterNotFound)
	}
	return session, nil
}

// Institutions lists registered identifiers per capability, sorted.
func (r *Registry) Institutions() map[string][]string {
	markup := make([]string, 0, len(r.markup))
	for id := range r.markup {
		markup = append(markup, id)
	}
	interactive := make([]string, 0, len(r.interactive))
	for id := range r.interactive {
		interactive = append(interactive, id)
	}
	sort.Strings(markup)
	sort.Strings(interactive)
	return map[string][]string{"markup": markup, "interactive": interactive}
}
