package markup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/adapter"
)

// BoardConfig describes a notice board whose timetable post must be located before parsing.
type BoardConfig struct {
	Keyword      string
	MaxPages     int
	ListSelector string
	// PostXPath and PageXPath are format strings receiving the keyword and the next page number.
	PostXPath   string
	PageXPath   string
	LoadTimeout time.Duration
}

// DefaultBoardConfig matches the notice board layout used by the bundled static source.
func DefaultBoardConfig() BoardConfig {
	return BoardConfig{
		Keyword:      "시간표",
		MaxPages:     5,
		ListSelector: "div.board_list",
		PostXPath:    `//a[contains(., "%s")]`,
		PageXPath:    `//div[contains(@class, 'paging')]//a[normalize-space(text()) = '%d']`,
		LoadTimeout:  10 * time.Second,
	}
}

// BoardFetcher opens a board, follows the first post mentioning the keyword and returns its HTML.
type BoardFetcher struct {
	sessions adapter.SessionFactory
	cfg      BoardConfig
	logger   *zap.Logger
}

// NewBoardFetcher constructs a board fetcher over a browser session factory.
func NewBoardFetcher(sessions adapter.SessionFactory, cfg BoardConfig, logger *zap.Logger) *BoardFetcher {
	defaults := DefaultBoardConfig()
	if cfg.Keyword == "" {
		cfg.Keyword = defaults.Keyword
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaults.MaxPages
	}
	if cfg.ListSelector == "" {
		cfg.ListSelector = defaults.ListSelector
	}
	if cfg.PostXPath == "" {
		cfg.PostXPath = defaults.PostXPath
	}
	if cfg.PageXPath == "" {
		cfg.PageXPath = defaults.PageXPath
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaults.LoadTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BoardFetcher{sessions: sessions, cfg: cfg, logger: logger}
}

// Fetch implements adapter.Fetcher.
func (f *BoardFetcher) Fetch(ctx context.Context, url string) (string, error) {
	page, err := f.sessions.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if closeErr := page.Close(); closeErr != nil {
			f.logger.Warn("close board session", zap.Error(closeErr))
		}
	}()

	if err := page.Navigate(ctx, url); err != nil {
		return "", fmt.Errorf("navigate board: %w", err)
	}

	postXPath := fmt.Sprintf(f.cfg.PostXPath, f.cfg.Keyword)
	for current := 1; current <= f.cfg.MaxPages; current++ {
		f.logger.Debug("search board page", zap.String("keyword", f.cfg.Keyword), zap.Int("page", current))

		clicked, err := page.Click(ctx, postXPath)
		if err != nil {
			return "", fmt.Errorf("open post: %w", err)
		}
		if clicked {
			if err := page.WaitVisible(ctx, "body", f.cfg.LoadTimeout); err != nil {
				return "", fmt.Errorf("wait post: %w", err)
			}
			return page.HTML(ctx, "")
		}

		if current == f.cfg.MaxPages {
			break
		}
		next, err := page.Click(ctx, fmt.Sprintf(f.cfg.PageXPath, current+1))
		if err != nil {
			return "", fmt.Errorf("open page %d: %w", current+1, err)
		}
		if !next {
			f.logger.Warn("board pagination ended", zap.Int("page", current))
			break
		}
		if err := page.WaitVisible(ctx, f.cfg.ListSelector, f.cfg.LoadTimeout); err != nil {
			return "", fmt.Errorf("wait page %d: %w", current+1, err)
		}
	}
	return "", fmt.Errorf("no post containing %q within %d pages", f.cfg.Keyword, f.cfg.MaxPages)
}
