package interactive

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/adapter"
	"github.com/noah-isme/campus-timetable-api/internal/catalog"
)

// GachonInstitution identifies the general catalog of Gachon University.
const GachonInstitution = "gachon-general"

const (
	gachonUniversity = "가천대학교"
	notApplicable    = "N/A"
)

var leadingDigits = regexp.MustCompile(`^\d+(?:\.\d+)?`)

// GachonConfig holds the selectors and pacing of the course search screen.
type GachonConfig struct {
	CampusButton     string
	CompletionButton string
	YearButton       string
	SearchButton     string
	GridReady        string
	GridScroll       string
	Grid             string
	RowSelector      string
	CellSelector     string

	ReadyTimeout     time.Duration
	GridReadyTimeout time.Duration
	FilterSettle     time.Duration
	YearSettle       time.Duration
	GridSettle       time.Duration
	ScrollSettle     time.Duration

	// StopAfter is the number of consecutive scrolls without new rows that ends a grid scrape.
	StopAfter int
	MinCells  int
	// SkipOptions are exact option labels ignored during enumeration; SkipMarkers match by substring.
	SkipOptions []string
	SkipMarkers []string
}

// DefaultGachonConfig returns the selectors of the public course search screen.
func DefaultGachonConfig() GachonConfig {
	return GachonConfig{
		CampusButton:     `//div[.//div[text()='구분']]/preceding-sibling::div[contains(@class, 'cl-combobox')][1]//div[contains(@class, 'cl-combobox-button')]`,
		CompletionButton: `//div[.//div[text()='이수']]/preceding-sibling::div[contains(@class, 'cl-combobox')][1]//div[contains(@class, 'cl-combobox-button')]`,
		YearButton:       `//div[.//div[text()='학년']]/preceding-sibling::div[contains(@class, 'cl-combobox')][3]//div[contains(@class, 'cl-combobox-button')]`,
		SearchButton:     `//div[contains(@class, 'btn-search')]//div[text()='조회']`,
		GridReady:        `div.cl-grid-cell[data-cellindex="1"]`,
		GridScroll:       `div[role="grid"][aria-colcount="12"] div.cl-grid-detail`,
		Grid:             `div[role="grid"][aria-colcount="12"]`,
		RowSelector:      `div.cl-grid-row[role="row"]`,
		CellSelector:     `div.cl-grid-cell`,
		ReadyTimeout:     60 * time.Second,
		GridReadyTimeout: 5 * time.Second,
		FilterSettle:     time.Second,
		YearSettle:       500 * time.Millisecond,
		GridSettle:       time.Second,
		ScrollSettle:     500 * time.Millisecond,
		StopAfter:        3,
		MinCells:         12,
		SkipOptions:      []string{"", "전체"},
		SkipMarkers:      []string{"(폐기)"},
	}
}

// GachonGeneral enumerates every campus, completion type and year level filter and scrapes the
// virtualised result grid of each search.
type GachonGeneral struct {
	cfg        GachonConfig
	classifier catalog.Classifier
	tokenizer  catalog.Tokenizer
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewGachonGeneral constructs the session. Zero config fields are filled from DefaultGachonConfig,
// except the settle durations which may be zero.
func NewGachonGeneral(cfg GachonConfig, classifier catalog.Classifier, tokenizer catalog.Tokenizer, logger *zap.Logger) *GachonGeneral {
	defaults := DefaultGachonConfig()
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&cfg.CampusButton, defaults.CampusButton)
	fill(&cfg.CompletionButton, defaults.CompletionButton)
	fill(&cfg.YearButton, defaults.YearButton)
	fill(&cfg.SearchButton, defaults.SearchButton)
	fill(&cfg.GridReady, defaults.GridReady)
	fill(&cfg.GridScroll, defaults.GridScroll)
	fill(&cfg.Grid, defaults.Grid)
	fill(&cfg.RowSelector, defaults.RowSelector)
	fill(&cfg.CellSelector, defaults.CellSelector)
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaults.ReadyTimeout
	}
	if cfg.GridReadyTimeout <= 0 {
		cfg.GridReadyTimeout = defaults.GridReadyTimeout
	}
	if cfg.StopAfter <= 0 {
		cfg.StopAfter = defaults.StopAfter
	}
	if cfg.MinCells <= 0 {
		cfg.MinCells = defaults.MinCells
	}
	if cfg.SkipOptions == nil {
		cfg.SkipOptions = defaults.SkipOptions
	}
	if cfg.SkipMarkers == nil {
		cfg.SkipMarkers = defaults.SkipMarkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GachonGeneral{cfg: cfg, classifier: classifier, tokenizer: tokenizer, logger: logger, sleep: sleepContext}
}

// Config returns the effective configuration after defaults were applied.
func (g *GachonGeneral) Config() GachonConfig {
	return g.cfg
}

// Execute implements adapter.InteractiveSession.
func (g *GachonGeneral) Execute(ctx context.Context, page adapter.Page, entryURL string, year int, term string) (*catalog.Catalog, error) {
	if err := page.Navigate(ctx, entryURL); err != nil {
		return nil, adapter.FetchError(GachonInstitution, adapter.StageNavigate, err)
	}
	for _, sel := range []string{g.cfg.CampusButton, g.cfg.CompletionButton, g.cfg.YearButton, g.cfg.SearchButton} {
		if err := page.WaitVisible(ctx, sel, g.cfg.ReadyTimeout); err != nil {
			return nil, adapter.FetchError(GachonInstitution, stageFor(ctx, adapter.StageNavigate), err)
		}
	}

	campuses, err := g.options(ctx, page, g.cfg.CampusButton)
	if err != nil {
		return nil, adapter.FetchError(GachonInstitution, stageFor(ctx, adapter.StageFilter), err)
	}

	collected := newLectureSet()
	searches := 0
	for _, campus := range campuses {
		if err := g.choose(ctx, page, g.cfg.CampusButton, campus, g.cfg.FilterSettle); err != nil {
			return nil, adapter.FetchError(GachonInstitution, stageFor(ctx, adapter.StageFilter), err)
		}
		completions, err := g.options(ctx, page, g.cfg.CompletionButton)
		if err != nil {
			return nil, adapter.FetchError(GachonInstitution, stageFor(ctx, adapter.StageFilter), err)
		}

		for _, completion := range completions {
			if err := g.choose(ctx, page, g.cfg.CompletionButton, completion, g.cfg.FilterSettle); err != nil {
				return nil, adapter.FetchError(GachonInstitution, stageFor(ctx, adapter.StageFilter), err)
			}
			levels, err := g.options(ctx, page, g.cfg.YearButton)
			if err != nil {
				return nil, adapter.FetchError(GachonInstitution, stageFor(ctx, adapter.StageFilter), err)
			}

			for _, level := range levels {
				searches++
				lectures, err := g.search(ctx, page, campus, level)
				if err != nil {
					if ctx.Err() != nil {
						return nil, adapter.FetchError(GachonInstitution, adapter.StageTimeout, ctx.Err())
					}
					g.logger.Warn("gachon search failed",
						zap.String("campus", campus),
						zap.String("completion", completion),
						zap.String("level", level),
						zap.Error(err),
					)
					continue
				}
				g.logger.Debug("gachon search scraped",
					zap.String("campus", campus),
					zap.String("completion", completion),
					zap.String("level", level),
					zap.Int("rows", len(lectures)),
				)
				collected.addAll(lectures)
			}
		}
	}

	g.logger.Info("interactive scrape finished",
		zap.String("institution", GachonInstitution),
		zap.Int("searches", searches),
		zap.Int("lectures", collected.len()),
	)

	return &catalog.Catalog{
		University: gachonUniversity,
		Campus:     notApplicable,
		Department: notApplicable,
		Major:      notApplicable,
		Year:       year,
		Semester:   term,
		Lectures:   collected.values(),
	}, nil
}

func (g *GachonGeneral) options(ctx context.Context, page adapter.Page, button string) ([]string, error) {
	raw, err := page.ComboOptions(ctx, button)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, opt := range raw {
		opt = strings.TrimSpace(opt)
		if g.skip(opt) {
			continue
		}
		out = append(out, opt)
	}
	return out, nil
}

func (g *GachonGeneral) skip(option string) bool {
	for _, s := range g.cfg.SkipOptions {
		if option == s {
			return true
		}
	}
	for _, m := range g.cfg.SkipMarkers {
		if m != "" && strings.Contains(option, m) {
			return true
		}
	}
	return false
}

func (g *GachonGeneral) choose(ctx context.Context, page adapter.Page, button, option string, settle time.Duration) error {
	if err := page.ComboSelect(ctx, button, option); err != nil {
		return fmt.Errorf("select %q: %w", option, err)
	}
	return g.sleep(ctx, settle)
}

func (g *GachonGeneral) search(ctx context.Context, page adapter.Page, campus, level string) ([]catalog.Lecture, error) {
	if err := g.choose(ctx, page, g.cfg.YearButton, level, g.cfg.YearSettle); err != nil {
		return nil, err
	}
	clicked, err := page.Click(ctx, g.cfg.SearchButton)
	if err != nil {
		return nil, fmt.Errorf("click search: %w", err)
	}
	if !clicked {
		return nil, errors.New("search button not found")
	}
	return g.scrapeGrid(ctx, page, campus)
}

// scrapeGrid scrolls the virtualised grid until StopAfter consecutive passes add no rows.
func (g *GachonGeneral) scrapeGrid(ctx context.Context, page adapter.Page, campus string) ([]catalog.Lecture, error) {
	if err := page.WaitVisible(ctx, g.cfg.GridReady, g.cfg.GridReadyTimeout); err != nil {
		return nil, fmt.Errorf("wait grid: %w", err)
	}
	if err := g.sleep(ctx, g.cfg.GridSettle); err != nil {
		return nil, err
	}
	if err := page.Focus(ctx, g.cfg.GridScroll); err != nil {
		return nil, fmt.Errorf("focus grid: %w", err)
	}

	rows := newLectureSet()
	previous := -1
	stale := 0
	for {
		html, err := page.HTML(ctx, g.cfg.Grid)
		if err != nil {
			return nil, fmt.Errorf("read grid: %w", err)
		}
		parsed, err := g.parseRows(html, campus)
		if err != nil {
			return nil, err
		}
		rows.addAll(parsed)

		if rows.len() == previous {
			stale++
		} else {
			stale = 0
		}
		if stale >= g.cfg.StopAfter {
			break
		}
		previous = rows.len()

		if err := page.ScrollDown(ctx); err != nil {
			return nil, fmt.Errorf("scroll grid: %w", err)
		}
		if err := g.sleep(ctx, g.cfg.ScrollSettle); err != nil {
			return nil, err
		}
	}
	return rows.values(), nil
}

// parseRows reads the rendered window of the grid. Column indexes follow the 12-column layout.
func (g *GachonGeneral) parseRows(html, campus string) ([]catalog.Lecture, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse grid: %w", err)
	}
	out := make([]catalog.Lecture, 0)
	doc.Find(g.cfg.RowSelector).Each(func(_ int, row *goquery.Selection) {
		cells := make([]string, 0, g.cfg.MinCells)
		row.Find(g.cfg.CellSelector).Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.TrimSpace(cell.Text()))
		})
		if len(cells) < g.cfg.MinCells || cells[1] == "" {
			return
		}

		slots := g.tokenizer.Parse(cells[9], cells[10])
		if slots == nil {
			slots = []catalog.ScheduleSlot{}
		}
		out = append(out, catalog.Lecture{
			Group:      cells[7],
			CourseCode: cells[1],
			CourseName: cells[2],
			Hours:      catalog.CountHours(slots),
			Credits:    leadingNumber(cells[6]),
			Capacity:   int(leadingNumber(cells[11])),
			Instructor: cells[8],
			Schedule:   slots,
			Campus:     campus,
			Department: cells[7],
			CourseType: g.classifier.Label(cells[5], catalog.CourseTypeMajor),
		})
	})
	return out, nil
}

func leadingNumber(raw string) float64 {
	match := leadingDigits.FindString(strings.TrimSpace(raw))
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return v
}

func stageFor(ctx context.Context, stage string) string {
	if ctx.Err() != nil {
		return adapter.StageTimeout
	}
	return stage
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// lectureSet keeps first-seen order while dropping rows with a repeated dedup key.
type lectureSet struct {
	seen  map[string]struct{}
	items []catalog.Lecture
}

func newLectureSet() *lectureSet {
	return &lectureSet{seen: make(map[string]struct{})}
}

func (s *lectureSet) addAll(lectures []catalog.Lecture) {
	for _, lec := range lectures {
		key := catalog.DedupKey(lec)
		if _, ok := s.seen[key]; ok {
			continue
		}
		s.seen[key] = struct{}{}
		s.items = append(s.items, lec)
	}
}

func (s *lectureSet) len() int { return len(s.items) }

func (s *lectureSet) values() []catalog.Lecture {
	if s.items == nil {
		return []catalog.Lecture{}
	}
	return s.items
}
