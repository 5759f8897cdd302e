package markup

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/adapter"
	"github.com/noah-isme/campus-timetable-api/internal/catalog"
)

// EuljiInstitution identifies the general-education catalog of Eulji University.
const EuljiInstitution = "eulji-general"

const (
	euljiUniversity   = "을지대학교"
	euljiCampus       = "성남"
	euljiCodePrefix   = "EULJI"
	euljiTableSel     = `table[border="1"]`
	euljiRowSel       = "tbody tr"
	notApplicable     = "N/A"
	requiredNameMark  = "교과목명"
	requiredRoomMark  = "강의실"
	headerGeneral     = "영역명"
	headerUnion       = "구분"
	headerMajorTarget = "대상전공"
	headerMajorFree   = "이수구분"
)

var (
	capacityPattern = regexp.MustCompile(`수강제한\s*(\d+)\s*명`)
	leadingNumber   = regexp.MustCompile(`^\d+(?:\.\d+)?`)
	whitespace      = regexp.MustCompile(`\s+`)
)

type layout int

const (
	layoutUnknown layout = iota
	layoutGeneral
	layoutUnion
	layoutMajorRestricted
	layoutMajorFree
)

// rowState carries labels that the source prints only on the first row of a run.
type rowState struct {
	generalGroup   string
	generalRemarks string
	unionGroup     string
}

// rawRow holds the text cells of a row once its layout has been resolved.
type rawRow struct {
	group   string
	name    string
	credits string
	day     string
	period  string
	room    string
	remarks string
	target  string
}

// EuljiGeneral parses the general-education timetable notice published as HTML tables.
type EuljiGeneral struct {
	classifier catalog.Classifier
	tokenizer  catalog.Tokenizer
	logger     *zap.Logger
}

// NewEuljiGeneral constructs the parser.
func NewEuljiGeneral(classifier catalog.Classifier, tokenizer catalog.Tokenizer, logger *zap.Logger) *EuljiGeneral {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EuljiGeneral{classifier: classifier, tokenizer: tokenizer, logger: logger}
}

// Parse implements adapter.MarkupParser.
func (p *EuljiGeneral) Parse(html string, year int, term string) (*catalog.Catalog, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, adapter.FetchError(EuljiInstitution, adapter.StageParse, err)
	}

	lectures := make([]catalog.Lecture, 0)
	state := rowState{}
	tables := 0

	doc.Find(euljiTableSel).Each(func(_ int, table *goquery.Selection) {
		text := table.Text()
		if !strings.Contains(text, requiredNameMark) || !strings.Contains(text, requiredRoomMark) {
			return
		}
		kind := detectLayout(table)
		if kind == layoutUnknown {
			return
		}
		tables++

		table.Find(euljiRowSel).Each(func(i int, row *goquery.Selection) {
			if i == 0 {
				return
			}
			cells := cellTexts(row.Find("td"))

			var raw rawRow
			var ok bool
			state, raw, ok = foldRow(kind, state, cells)
			if !ok || raw.name == "" {
				p.logger.Debug("skip row", zap.Int("cells", len(cells)), zap.Int("layout", int(kind)))
				return
			}
			lectures = append(lectures, p.toLecture(raw))
		})
	})

	p.logger.Info("markup parsed",
		zap.String("institution", EuljiInstitution),
		zap.Int("tables", tables),
		zap.Int("lectures", len(lectures)),
	)

	return &catalog.Catalog{
		University: euljiUniversity,
		Campus:     euljiCampus,
		Department: notApplicable,
		Major:      notApplicable,
		Year:       year,
		Semester:   term,
		CourseType: catalog.CourseTypeGeneral,
		Lectures:   lectures,
	}, nil
}

func detectLayout(table *goquery.Selection) layout {
	header := table.Find("tr").First().Find("td, th")
	col0 := strings.TrimSpace(header.Eq(0).Text())
	col1 := strings.TrimSpace(header.Eq(1).Text())

	switch {
	case col0 == headerGeneral:
		return layoutGeneral
	case col0 == headerUnion:
		return layoutUnion
	case col0 == requiredNameMark && col1 == headerMajorTarget:
		return layoutMajorRestricted
	case col0 == headerMajorFree:
		return layoutMajorFree
	default:
		return layoutUnknown
	}
}

// foldRow interprets one row given the labels carried from earlier rows and returns the next state.
func foldRow(kind layout, state rowState, c []string) (rowState, rawRow, bool) {
	switch kind {
	case layoutGeneral:
		var row rawRow
		switch len(c) {
		case 9:
			state.generalGroup = whitespace.ReplaceAllString(c[0], " ")
			state.generalRemarks = c[8]
			row = rawRow{name: c[1], credits: c[4], day: c[5], period: c[6], room: c[7], remarks: c[8]}
		case 8:
			state.generalRemarks = c[7]
			row = rawRow{name: c[0], credits: c[3], day: c[4], period: c[5], room: c[6], remarks: c[7]}
		case 7:
			row = rawRow{name: c[0], credits: c[3], day: c[4], period: c[5], room: c[6], remarks: state.generalRemarks}
		default:
			return state, rawRow{}, false
		}
		row.group = state.generalGroup
		row.target = row.remarks
		return state, row, true

	case layoutUnion:
		offset := 0
		switch len(c) {
		case 8:
			state.unionGroup = c[0]
		case 7:
			offset = -1
		default:
			return state, rawRow{}, false
		}
		row := rawRow{
			group:   state.unionGroup,
			name:    c[1+offset],
			credits: c[3+offset],
			day:     c[4+offset],
			period:  c[5+offset],
			room:    c[6+offset],
			remarks: c[7+offset],
		}
		row.target = row.remarks
		return state, row, true

	case layoutMajorRestricted, layoutMajorFree:
		if len(c) != 9 {
			return state, rawRow{}, false
		}
		row := rawRow{credits: c[4], day: c[5], period: c[6], room: c[7], remarks: c[8]}
		if kind == layoutMajorFree {
			row.group, row.name, row.target = c[0], c[1], c[0]
		} else {
			row.group, row.name, row.target = c[1], c[0], c[1]
		}
		return state, row, true
	}
	return state, rawRow{}, false
}

func (p *EuljiGeneral) toLecture(raw rawRow) catalog.Lecture {
	var slots []catalog.ScheduleSlot
	day := strings.TrimSpace(raw.day)
	if day != "" && day != "-" {
		periods := strings.ReplaceAll(raw.period, "주", "")
		slots = p.tokenizer.Parse(day+periods, raw.room)
	}
	if slots == nil {
		slots = []catalog.ScheduleSlot{}
	}

	group := raw.group
	if group == "" {
		group = notApplicable
	}

	lec := catalog.Lecture{
		Group:      group,
		CourseName: raw.name,
		Hours:      catalog.CountHours(slots),
		Credits:    parseCredits(raw.credits),
		Capacity:   parseCapacity(raw.remarks),
		Instructor: notApplicable,
		Schedule:   slots,
		CourseType: p.classifier.Classify(raw.remarks, raw.target),
	}
	lec.CourseCode = catalog.SurrogateCode(euljiCodePrefix, lec)
	return lec
}

func cellTexts(cells *goquery.Selection) []string {
	out := make([]string, 0, cells.Length())
	cells.Each(func(_ int, cell *goquery.Selection) {
		out = append(out, strings.TrimSpace(cell.Text()))
	})
	return out
}

func parseCredits(raw string) float64 {
	match := leadingNumber.FindString(strings.TrimSpace(raw))
	if match == "" {
		return 0
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return value
}

func parseCapacity(remarks string) int {
	match := capacityPattern.FindStringSubmatch(remarks)
	if len(match) < 2 {
		return 0
	}
	value, _ := strconv.Atoi(match[1])
	return value
}
