package document

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/adapter"
	"github.com/noah-isme/campus-timetable-api/internal/catalog"
)

const (
	entityLectures   = "lectures"
	entityDepartment = "department"
	entityMajor      = "major"
	notApplicable    = "N/A"
)

var leadingNumber = regexp.MustCompile(`^\d+(?:\.\d+)?`)

// Extractor turns timetable PDFs into catalogs through a configured processor.
type Extractor struct {
	client     Client
	processors map[string]Processor
	tokenizer  catalog.Tokenizer
	logger     *zap.Logger
}

// NewExtractor constructs an extractor. A nil processor map uses DefaultProcessors.
func NewExtractor(client Client, processors map[string]Processor, tokenizer catalog.Tokenizer, logger *zap.Logger) *Extractor {
	if processors == nil {
		processors = DefaultProcessors()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{client: client, processors: processors, tokenizer: tokenizer, logger: logger}
}

// Institutions lists the ids with a configured processor.
func (e *Extractor) Institutions() []string {
	return ProcessorIDs(e.processors)
}

// Extract sends pdf to the institution's processor and reshapes the entities into a catalog.
func (e *Extractor) Extract(ctx context.Context, institution string, pdf []byte, year int, term string) (*catalog.Catalog, error) {
	proc, ok := e.processors[institution]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProcessorNotFound, institution)
	}

	e.logger.Info("document analysis started", zap.String("institution", institution), zap.Int("bytes", len(pdf)))
	doc, err := e.client.Process(ctx, proc.Endpoint, pdf)
	if err != nil {
		stage := adapter.StageProcess
		if ctx.Err() != nil {
			stage = adapter.StageTimeout
		}
		return nil, adapter.FetchError(institution, stage, err)
	}
	if doc == nil {
		return nil, adapter.FetchError(institution, adapter.StageReshape, fmt.Errorf("empty document"))
	}

	result, err := e.reshape(proc, doc, year, term)
	if err != nil {
		return nil, adapter.FetchError(institution, adapter.StageReshape, err)
	}
	e.logger.Info("document analysis finished", zap.String("institution", institution), zap.Int("lectures", len(result.Lectures)))
	return result, nil
}

func (e *Extractor) reshape(proc Processor, doc *Document, year int, term string) (*catalog.Catalog, error) {
	if proc.Strategy != StrategyPaginatedMajor && proc.Strategy != StrategyFlat {
		return nil, fmt.Errorf("unknown strategy %q", proc.Strategy)
	}
	courseType := catalog.CourseTypeMajor
	if strings.Contains(proc.ID, "general") {
		courseType = catalog.CourseTypeGeneral
	}

	department := firstMention(doc.Entities, entityDepartment)
	major := firstMention(doc.Entities, entityMajor)

	out := &catalog.Catalog{
		University: orNA(proc.University),
		Campus:     orNA(proc.Campus),
		Department: department,
		Major:      major,
		Year:       year,
		Semester:   term,
		CourseType: courseType,
		Lectures:   make([]catalog.Lecture, 0),
	}

	var pageMajor, pageDepartment string
	currentPage := -1
	for _, entity := range doc.Entities {
		switch proc.Strategy {
		case StrategyPaginatedMajor:
			if entity.Page != currentPage {
				currentPage = entity.Page
				pageMajor, pageDepartment = "", ""
			}
			switch entity.Type {
			case entityMajor:
				pageMajor = strings.TrimSpace(entity.MentionText)
				continue
			case entityDepartment:
				pageDepartment = strings.TrimSpace(entity.MentionText)
				continue
			}
		}
		if entity.Type != entityLectures {
			continue
		}

		lec := e.lecture(entity)
		lec.CourseType = courseType
		if pageMajor != "" {
			lec.Major = pageMajor
		}
		if pageDepartment != "" {
			lec.Department = pageDepartment
		}
		out.Lectures = append(out.Lectures, lec)
	}
	return out, nil
}

func (e *Extractor) lecture(entity Entity) catalog.Lecture {
	slots := e.tokenizer.Parse(entity.Property("schedule_raw"), entity.Property("classroom"))
	if slots == nil {
		slots = []catalog.ScheduleSlot{}
	}
	for i := range slots {
		if slots[i].IsCyber() {
			slots[i].Location = e.tokenizer.CyberLocation
		}
	}
	return catalog.Lecture{
		Group:      entity.Property("group_name"),
		CourseCode: entity.Property("course_code"),
		CourseName: entity.Property("course_name"),
		Hours:      int(parseNumber(entity.Property("hours"))),
		Credits:    parseNumber(entity.Property("credits")),
		Capacity:   int(parseNumber(entity.Property("capacity"))),
		Instructor: entity.Property("professor"),
		Schedule:   slots,
	}
}

func firstMention(entities []Entity, kind string) string {
	for _, e := range entities {
		if e.Type == kind && strings.TrimSpace(e.MentionText) != "" {
			return strings.TrimSpace(e.MentionText)
		}
	}
	return notApplicable
}

func orNA(v string) string {
	if v == "" {
		return notApplicable
	}
	return v
}

func parseNumber(raw string) float64 {
	match := leadingNumber.FindString(strings.TrimSpace(raw))
	if match == "" {
		return 0
	}
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return v
}
