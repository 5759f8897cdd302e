package adapter

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-timetable-api/internal/catalog"
)

type parserStub struct{}

func (parserStub) Parse(html string, year int, term string) (*catalog.Catalog, error) {
	return &catalog.Catalog{Year: year, Semester: term}, nil
}

type fetcherStub struct{ body string }

func (f fetcherStub) Fetch(ctx context.Context, url string) (string, error) { return f.body, nil }

type sessionStub struct{}

func (sessionStub) Execute(ctx context.Context, page Page, entryURL string, year int, term string) (*catalog.Catalog, error) {
	return &catalog.Catalog{}, nil
}

func TestRegistryMarkupUsesDefaultFetcher(t *testing.T) {
	reg := NewRegistry(fetcherStub{body: "default"})
	reg.RegisterMarkup("a-general", parserStub{}, nil)
	reg.RegisterMarkup("b-general", parserStub{}, fetcherStub{body: "custom"})

	_, fetcher, err := reg.Markup("a-general")
	require.NoError(t, err)
	body, _ := fetcher.Fetch(context.Background(), "")
	assert.Equal(t, "default", body)

	_, fetcher, err = reg.Markup("b-general")
	require.NoError(t, err)
	body, _ = fetcher.Fetch(context.Background(), "")
	assert.Equal(t, "custom", body)
}

func TestRegistryUnknownInstitution(t *testing.T) {
	reg := NewRegistry(nil)
	reg.RegisterInteractive("c-general", sessionStub{})

	_, _, err := reg.Markup("missing")
	assert.True(t, errors.Is(err, ErrAdapterNotFound))

	_, err = reg.Interactive("missing")
	assert.True(t, errors.Is(err, ErrAdapterNotFound))

	_, err = reg.Interactive("c-general")
	assert.NoError(t, err)

	assert.Equal(t, []string{"c-general"}, reg.Institutions()["interactive"])
}

func TestFetchErrorKeepsFirstStage(t *testing.T) {
	cause := errors.New("boom")
	err := FetchError("x", StageNavigate, cause)
	err = FetchError("x", StageTimeout, err)

	var fetchErr *SourceFetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, StageNavigate, fetchErr.Stage)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "source fetch failed for x at navigate")
	assert.NoError(t, FetchError("x", StageFetch, nil))
}
