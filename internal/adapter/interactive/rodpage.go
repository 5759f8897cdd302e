package interactive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/adapter"
)

const jsClick = `function() { this.click() }`

// BrowserConfig controls how headless browser sessions are started.
type BrowserConfig struct {
	Headless   bool
	BinPath    string
	ControlURL string
	UserAgent  string

	PageTimeout    time.Duration
	CloseTimeout   time.Duration
	ListboxTimeout time.Duration
	ListboxPoll    time.Duration
	ListboxSettle  time.Duration

	ListboxSelector string
	ItemSelector    string
	DismissSelector string
}

// DefaultBrowserConfig matches the combobox widgets rendered by the bundled interactive source.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:        true,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		PageTimeout:     60 * time.Second,
		CloseTimeout:    10 * time.Second,
		ListboxTimeout:  10 * time.Second,
		ListboxPoll:     200 * time.Millisecond,
		ListboxSettle:   500 * time.Millisecond,
		ListboxSelector: `div[role="listbox"]`,
		ItemSelector:    `div[role="listbox"] li.cl-combobox-item`,
		DismissSelector: `div.cl-layout-content`,
	}
}

// RodSessions opens one isolated browser per session.
type RodSessions struct {
	cfg    BrowserConfig
	logger *zap.Logger
}

// NewRodSessions builds a session factory backed by go-rod.
func NewRodSessions(cfg BrowserConfig, logger *zap.Logger) *RodSessions {
	defaults := DefaultBrowserConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = defaults.PageTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = defaults.CloseTimeout
	}
	if cfg.ListboxTimeout <= 0 {
		cfg.ListboxTimeout = defaults.ListboxTimeout
	}
	if cfg.ListboxPoll <= 0 {
		cfg.ListboxPoll = defaults.ListboxPoll
	}
	if cfg.ListboxSettle < 0 {
		cfg.ListboxSettle = 0
	}
	if cfg.ListboxSelector == "" {
		cfg.ListboxSelector = defaults.ListboxSelector
	}
	if cfg.ItemSelector == "" {
		cfg.ItemSelector = defaults.ItemSelector
	}
	if cfg.DismissSelector == "" {
		cfg.DismissSelector = defaults.DismissSelector
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RodSessions{cfg: cfg, logger: logger}
}

// Open implements adapter.SessionFactory. The browser and tab live on a background context so they
// can still be closed after ctx ends; ctx only bounds the individual calls.
func (s *RodSessions) Open(ctx context.Context) (adapter.Page, error) {
	var l *launcher.Launcher
	controlURL := s.cfg.ControlURL
	if controlURL == "" {
		l = launcher.New().Headless(s.cfg.Headless)
		if s.cfg.BinPath != "" {
			l = l.Bin(s.cfg.BinPath)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Cleanup()
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	release := rodReleaser{browser: browser, launcher: l}
	closeTimeout := s.cfg.CloseTimeout

	if err := ctx.Err(); err != nil {
		_ = releaseWithin(release, closeTimeout)
		return nil, err
	}
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = releaseWithin(release, closeTimeout)
		return nil, fmt.Errorf("create page: %w", err)
	}
	release.page = page
	if err := page.Context(ctx).SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.cfg.UserAgent}); err != nil {
		s.logger.Warn("set user agent", zap.Error(err))
	}

	return &rodPage{cfg: s.cfg, page: page, release: release}, nil
}

// releaser tears down the tab and the browser behind a session.
type releaser interface {
	ClosePage(ctx context.Context) error
	CloseBrowser(ctx context.Context) error
}

type rodReleaser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func (r rodReleaser) ClosePage(ctx context.Context) error {
	if r.page == nil {
		return nil
	}
	return r.page.Context(ctx).Close()
}

func (r rodReleaser) CloseBrowser(ctx context.Context) error {
	err := r.browser.Context(ctx).Close()
	if r.launcher != nil {
		r.launcher.Cleanup()
	}
	return err
}

// releaseWithin closes the tab, then the browser, on a fresh context bounded by timeout. The browser
// is closed even when the tab close fails.
func releaseWithin(r releaser, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultBrowserConfig().CloseTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := r.ClosePage(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}
	if err := r.CloseBrowser(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	return errors.Join(errs...)
}

type rodPage struct {
	cfg     BrowserConfig
	page    *rod.Page
	release releaser
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "//") || strings.HasPrefix(selector, "(")
}

func (p *rodPage) find(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	page := p.page.Context(ctx).Timeout(timeout)
	if isXPath(selector) {
		return page.ElementX(selector)
	}
	return page.Element(selector)
}

func (p *rodPage) has(ctx context.Context, selector string) (bool, *rod.Element, error) {
	page := p.page.Context(ctx)
	if isXPath(selector) {
		return page.HasX(selector)
	}
	return page.Has(selector)
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx).Timeout(p.cfg.PageTimeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	return nil
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := p.find(ctx, selector, timeout)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	if err := el.Context(ctx).Timeout(timeout).WaitVisible(); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return nil
}

// Click performs a script click so overlays in front of the element do not swallow it.
func (p *rodPage) Click(ctx context.Context, selector string) (bool, error) {
	ok, el, err := p.has(ctx, selector)
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", selector, err)
	}
	if !ok {
		return false, nil
	}
	if _, err := el.Context(ctx).Eval(jsClick); err != nil {
		return false, fmt.Errorf("click %s: %w", selector, err)
	}
	return true, nil
}

func (p *rodPage) ComboOptions(ctx context.Context, buttonSelector string) ([]string, error) {
	items, err := p.openListbox(ctx, buttonSelector)
	if err != nil {
		return nil, err
	}
	options := make([]string, 0, len(items))
	for _, item := range items {
		text, err := item.Text()
		if err != nil {
			return nil, fmt.Errorf("read option: %w", err)
		}
		options = append(options, strings.TrimSpace(text))
	}
	p.dismiss(ctx)
	return options, sleepContext(ctx, p.cfg.ListboxSettle)
}

func (p *rodPage) ComboSelect(ctx context.Context, buttonSelector, option string) error {
	items, err := p.openListbox(ctx, buttonSelector)
	if err != nil {
		return err
	}
	for _, item := range items {
		text, err := item.Text()
		if err != nil {
			return fmt.Errorf("read option: %w", err)
		}
		if strings.TrimSpace(text) != option {
			continue
		}
		if _, err := item.Context(ctx).Eval(jsClick); err != nil {
			return fmt.Errorf("choose %q: %w", option, err)
		}
		return sleepContext(ctx, p.cfg.ListboxSettle)
	}
	p.dismiss(ctx)
	return fmt.Errorf("option %q not offered", option)
}

// openListbox clicks the combobox button and polls until its item list is rendered.
func (p *rodPage) openListbox(ctx context.Context, buttonSelector string) (rod.Elements, error) {
	button, err := p.find(ctx, buttonSelector, p.cfg.PageTimeout)
	if err != nil {
		return nil, fmt.Errorf("find combobox %s: %w", buttonSelector, err)
	}
	if _, err := button.Context(ctx).Eval(jsClick); err != nil {
		return nil, fmt.Errorf("open combobox: %w", err)
	}

	deadline := time.Now().Add(p.cfg.ListboxTimeout)
	for time.Now().Before(deadline) {
		if ok, box, err := p.page.Context(ctx).Has(p.cfg.ListboxSelector); err == nil && ok {
			if visible, _ := box.Visible(); visible {
				items, err := p.page.Context(ctx).Elements(p.cfg.ItemSelector)
				if err == nil && len(items) > 0 {
					return items, nil
				}
			}
		}
		if err := sleepContext(ctx, p.cfg.ListboxPoll); err != nil {
			return nil, err
		}
	}
	return nil, errors.New("combobox list did not appear")
}

func (p *rodPage) dismiss(ctx context.Context) {
	if ok, el, err := p.page.Context(ctx).Has(p.cfg.DismissSelector); err == nil && ok {
		_ = el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
	}
}

func (p *rodPage) HTML(ctx context.Context, selector string) (string, error) {
	if selector == "" {
		return p.page.Context(ctx).HTML()
	}
	el, err := p.find(ctx, selector, p.cfg.PageTimeout)
	if err != nil {
		return "", fmt.Errorf("find %s: %w", selector, err)
	}
	return el.HTML()
}

// Focus clicks the centre of the element so keyboard scrolling targets it.
func (p *rodPage) Focus(ctx context.Context, selector string) error {
	el, err := p.find(ctx, selector, p.cfg.PageTimeout)
	if err != nil {
		return fmt.Errorf("find %s: %w", selector, err)
	}
	return el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) ScrollDown(ctx context.Context) error {
	return p.page.Context(ctx).Keyboard.Press(input.PageDown)
}

// Close releases the session. It does not depend on the context the session was used with, so it
// also works after an ingestion timeout.
func (p *rodPage) Close() error {
	return releaseWithin(p.release, p.cfg.CloseTimeout)
}
