package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/catalog"
	"github.com/noah-isme/campus-timetable-api/internal/dto"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	appErrors "github.com/noah-isme/campus-timetable-api/pkg/errors"
)

// NoFeasibleScheduleMessage accompanies an empty generation result.
const NoFeasibleScheduleMessage = "no feasible schedule matches the requested constraints"

const creditEpsilon = 1e-9

type generatorTimetableReader interface {
	FindByID(ctx context.Context, id string) (*models.Timetable, error)
}

type generatorCourseReader interface {
	ListForGeneration(ctx context.Context, university string, year int, semester string) ([]models.Course, error)
}

type generationObserver interface {
	ObserveGeneration(found int, duration time.Duration)
}

// ScheduleGeneratorConfig governs search bounds and scoring weights.
type ScheduleGeneratorConfig struct {
	MaxCombinations int
	EdgePenalty     int
	EarlyPeriodMax  int
	LatePeriodMin   int
	GapPenalty      int
	LunchPeriod     int
	// Seed fixes the shuffle of candidate pools. Zero seeds each call from the clock.
	Seed int64
}

// ScheduleGeneratorService proposes conflict-free course combinations around a timetable's fixed entries.
type ScheduleGeneratorService struct {
	timetables generatorTimetableReader
	courses    generatorCourseReader
	metrics    generationObserver
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ScheduleGeneratorConfig
}

// NewScheduleGeneratorService wires generator dependencies.
func NewScheduleGeneratorService(
	timetables generatorTimetableReader,
	courses generatorCourseReader,
	metrics generationObserver,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg ScheduleGeneratorConfig,
) *ScheduleGeneratorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxCombinations <= 0 {
		cfg.MaxCombinations = 500
	}
	if cfg.EdgePenalty < 0 {
		cfg.EdgePenalty = 0
	}
	if cfg.EarlyPeriodMax <= 0 {
		cfg.EarlyPeriodMax = 2
	}
	if cfg.LatePeriodMin <= 0 {
		cfg.LatePeriodMin = 8
	}
	if cfg.GapPenalty < 0 {
		cfg.GapPenalty = 0
	}
	if cfg.LunchPeriod <= 0 {
		cfg.LunchPeriod = 4
	}
	return &ScheduleGeneratorService{
		timetables: timetables,
		courses:    courses,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// Generate searches the term catalog of the student's university for combinations of majorCount major and
// geCount general courses that fit around the fixed entries of the timetable.
func (s *ScheduleGeneratorService) Generate(ctx context.Context, studentID, university string, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	started := time.Now()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid generation payload")
	}
	days, err := parsePreferredDays(req.PreferredDays)
	if err != nil {
		return nil, err
	}

	timetable, err := s.timetables.FindByID(ctx, req.TimetableID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
	}
	if timetable.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}

	courses, err := s.courses.ListForGeneration(ctx, NormalizeUniversity(university), timetable.Year, timetable.Semester)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}

	fixed := newFixedSet(timetable.Entries)
	opts := poolOptions{
		days:         days,
		avoidLunch:   req.AvoidLunch,
		lunchPeriod:  s.cfg.LunchPeriod,
		includeCyber: req.IncludeCyber,
	}
	target := strings.TrimSpace(req.TargetDepartment)
	var majors, ges []models.Course
	for _, course := range courses {
		switch catalog.CourseType(course.CourseType) {
		case catalog.CourseTypeMajor:
			if course.Department == target {
				majors = append(majors, course)
			}
		case catalog.CourseTypeGeneral:
			ges = append(ges, course)
		}
	}

	rng := rand.New(rand.NewSource(s.seed()))
	majorPool := shufflePool(rng, filterPool(majors, fixed, opts))
	gePool := shufflePool(rng, filterPool(ges, fixed, opts))

	search := newCombinationSearch(fixed, req.MajorCount, req.GECount, req.MinCredits, req.MaxCredits, s.cfg.MaxCombinations)
	found := search.run(majorPool, gePool)

	combinations := s.rank(fixed, found)
	resp := &dto.GenerateTimetableResponse{Combinations: combinations}
	if len(combinations) == 0 {
		resp.Message = NoFeasibleScheduleMessage
	}

	elapsed := time.Since(started)
	if s.metrics != nil {
		s.metrics.ObserveGeneration(len(found), elapsed)
	}
	s.logger.Info("timetable combinations generated",
		zap.String("timetable_id", timetable.ID),
		zap.Int("major_pool", len(majorPool)),
		zap.Int("ge_pool", len(gePool)),
		zap.Int("found", len(found)),
		zap.Int("returned", len(combinations)),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}

func (s *ScheduleGeneratorService) seed() int64 {
	if s.cfg.Seed != 0 {
		return s.cfg.Seed
	}
	return time.Now().UnixNano()
}

// rank buckets combinations by total credits and keeps the two lowest-scoring per bucket.
func (s *ScheduleGeneratorService) rank(fixed fixedSet, found []combination) []dto.Combination {
	type scored struct {
		combo combination
		score int
	}
	buckets := make(map[float64][]scored)
	for _, combo := range found {
		key := math.Round(combo.credits*10) / 10
		buckets[key] = append(buckets[key], scored{combo: combo, score: s.score(fixed, combo)})
	}

	totals := make([]float64, 0, len(buckets))
	for total := range buckets {
		totals = append(totals, total)
	}
	sort.Float64s(totals)

	out := make([]dto.Combination, 0, len(totals)*2)
	for _, total := range totals {
		bucket := buckets[total]
		sort.SliceStable(bucket, func(i, j int) bool { return bucket[i].score < bucket[j].score })
		limit := 1
		if len(bucket) > 1 {
			limit = 2
		}
		for _, item := range bucket[:limit] {
			out = append(out, dto.Combination{
				TotalCredits: total,
				Score:        item.score,
				Courses:      item.combo.courses,
			})
		}
	}
	return out
}

// score adds the edge-period penalty per occupied period and the gap penalty per idle period between the
// first and last period of each day. Lower is better.
func (s *ScheduleGeneratorService) score(fixed fixedSet, combo combination) int {
	perDay := make(map[catalog.Day]map[int]struct{})
	add := func(slots []catalog.ScheduleSlot) {
		for _, slot := range slots {
			if slot.IsCyber() {
				continue
			}
			set, ok := perDay[slot.Day]
			if !ok {
				set = make(map[int]struct{})
				perDay[slot.Day] = set
			}
			for _, p := range slot.Periods {
				set[p] = struct{}{}
			}
		}
	}
	add(fixed.slots)
	for _, course := range combo.courses {
		add(course.Slots())
	}

	total := 0
	for _, periods := range perDay {
		first, last := math.MaxInt, math.MinInt
		for p := range periods {
			if p <= s.cfg.EarlyPeriodMax || p >= s.cfg.LatePeriodMin {
				total += s.cfg.EdgePenalty
			}
			if p < first {
				first = p
			}
			if p > last {
				last = p
			}
		}
		gaps := (last - first + 1) - len(periods)
		total += gaps * s.cfg.GapPenalty
	}
	return total
}

func parsePreferredDays(raw []string) (map[catalog.Day]bool, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	days := make(map[catalog.Day]bool, len(raw))
	for _, value := range raw {
		day, ok := catalog.ParseDay(value)
		if !ok || day == catalog.DayCyber {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown preferred day: "+value)
		}
		days[day] = true
	}
	return days, nil
}

// NormalizeUniversity drops a trailing parenthesised campus qualifier, e.g. "가천대학교(글로벌)" becomes "가천대학교".
func NormalizeUniversity(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "("); idx > 0 && strings.HasSuffix(raw, ")") {
		return strings.TrimSpace(raw[:idx])
	}
	return raw
}

// --- search state ---

type slotKey struct {
	day    catalog.Day
	period int
}

type fixedSet struct {
	codes   map[string]bool
	names   map[string]bool
	slots   []catalog.ScheduleSlot
	credits float64
}

func newFixedSet(entries []models.TimetableEntry) fixedSet {
	set := fixedSet{codes: make(map[string]bool), names: make(map[string]bool)}
	for _, entry := range entries {
		if entry.CourseCode != "" && entry.CourseCode != models.CustomCourseCode {
			set.codes[entry.CourseCode] = true
		}
		if entry.CourseName != "" {
			set.names[entry.CourseName] = true
		}
		set.slots = append(set.slots, entry.Schedule...)
		set.credits += entry.Credits
	}
	return set
}

type poolOptions struct {
	days         map[catalog.Day]bool
	avoidLunch   bool
	lunchPeriod  int
	includeCyber bool
}

func filterPool(courses []models.Course, fixed fixedSet, opts poolOptions) []models.Course {
	out := make([]models.Course, 0, len(courses))
	for _, course := range courses {
		if fixed.codes[course.CourseCode] || fixed.names[course.CourseName] {
			continue
		}
		if !opts.admits(course.Slots()) {
			continue
		}
		out = append(out, course)
	}
	return out
}

// admits applies the request filters. A course whose own slots overlap is dropped since it can never
// sit conflict-free in a timetable.
func (o poolOptions) admits(slots []catalog.ScheduleSlot) bool {
	timed := 0
	seen := make(map[slotKey]bool)
	for _, slot := range slots {
		if slot.IsCyber() {
			if !o.includeCyber {
				return false
			}
			continue
		}
		timed++
		if o.days != nil && !o.days[slot.Day] {
			return false
		}
		for _, p := range slot.Periods {
			if o.avoidLunch && p == o.lunchPeriod {
				return false
			}
			key := slotKey{day: slot.Day, period: p}
			if seen[key] {
				return false
			}
			seen[key] = true
		}
	}
	return timed > 0 || o.includeCyber
}

func shufflePool(rng *rand.Rand, pool []models.Course) []models.Course {
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool
}

type combination struct {
	courses []models.Course
	credits float64
}

// combinationSearch is a bounded depth-first enumeration: major picks first, then general picks, each by
// increasing pool index.
type combinationSearch struct {
	majorCount int
	geCount    int
	minCredits float64
	maxCredits float64
	limit      int

	occupied map[slotKey]int
	names    map[string]bool
	chosen   []models.Course
	credits  float64
	results  []combination
}

func newCombinationSearch(fixed fixedSet, majorCount, geCount int, minCredits, maxCredits float64, limit int) *combinationSearch {
	search := &combinationSearch{
		majorCount: majorCount,
		geCount:    geCount,
		minCredits: minCredits,
		maxCredits: maxCredits,
		limit:      limit,
		occupied:   make(map[slotKey]int),
		names:      make(map[string]bool),
		credits:    fixed.credits,
	}
	for _, key := range timedKeys(fixed.slots) {
		search.occupied[key]++
	}
	return search
}

func (s *combinationSearch) run(majors, ges []models.Course) []combination {
	s.descend(majors, ges, 0, 0, false)
	return s.results
}

func (s *combinationSearch) descend(majors, ges []models.Course, start, picked int, general bool) {
	if len(s.results) >= s.limit {
		return
	}
	pool, need := majors, s.majorCount
	if general {
		pool, need = ges, s.geCount
	}
	if picked == need {
		if !general {
			s.descend(majors, ges, 0, 0, true)
			return
		}
		if s.credits+creditEpsilon >= s.minCredits && s.credits <= s.maxCredits+creditEpsilon {
			courses := make([]models.Course, len(s.chosen))
			copy(courses, s.chosen)
			s.results = append(s.results, combination{courses: courses, credits: s.credits})
		}
		return
	}

	for i := start; i < len(pool) && len(pool)-i >= need-picked; i++ {
		if len(s.results) >= s.limit {
			return
		}
		course := pool[i]
		if s.names[course.CourseName] || s.credits+course.Credits > s.maxCredits+creditEpsilon {
			continue
		}
		keys := timedKeys(course.Slots())
		if s.conflicts(keys) {
			continue
		}
		s.push(course, keys)
		s.descend(majors, ges, i+1, picked+1, general)
		s.pop(course, keys)
	}
}

func (s *combinationSearch) conflicts(keys []slotKey) bool {
	for _, key := range keys {
		if s.occupied[key] > 0 {
			return true
		}
	}
	return false
}

func (s *combinationSearch) push(course models.Course, keys []slotKey) {
	for _, key := range keys {
		s.occupied[key]++
	}
	s.names[course.CourseName] = true
	s.chosen = append(s.chosen, course)
	s.credits += course.Credits
}

func (s *combinationSearch) pop(course models.Course, keys []slotKey) {
	for _, key := range keys {
		s.occupied[key]--
	}
	delete(s.names, course.CourseName)
	s.chosen = s.chosen[:len(s.chosen)-1]
	s.credits -= course.Credits
}

func timedKeys(slots []catalog.ScheduleSlot) []slotKey {
	var keys []slotKey
	for _, slot := range slots {
		if slot.IsCyber() {
			continue
		}
		for _, p := range slot.Periods {
			keys = append(keys, slotKey{day: slot.Day, period: p})
		}
	}
	return keys
}
