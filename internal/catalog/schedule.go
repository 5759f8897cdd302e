package catalog

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Tokenizer converts raw day/period strings such as "월1~3", "월1,2,3/화4" or "월1,월2" into slots.
type Tokenizer struct {
	// CyberMarkers are segments that denote an asynchronous offering, compared case-insensitively.
	CyberMarkers []string
	// CyberLocation replaces an empty location on cyber slots.
	CyberLocation string
	// MaxPeriod bounds accepted periods. Ranges reaching past it are dropped whole. Zero means
	// DefaultMaxPeriod.
	MaxPeriod int
}

// DefaultMaxPeriod is the latest period any bundled institution schedules.
const DefaultMaxPeriod = 15

// DefaultTokenizer returns the tokenizer used by all bundled adapters.
func DefaultTokenizer() Tokenizer {
	return Tokenizer{
		CyberMarkers:  []string{"사", "사이버", "cyber", "온라인"},
		CyberLocation: "사이버강의",
		MaxPeriod:     DefaultMaxPeriod,
	}
}

var (
	dayPeriodPattern = regexp.MustCompile(`([월화수목금토일])\s*(\d+(?:\s*[~\-]\s*\d+)?(?:\s*,\s*\d+(?:\s*[~\-]\s*\d+)?)*)`)
	rangePattern     = regexp.MustCompile(`^(\d+)\s*[~\-]\s*(\d+)$`)
	singlePattern    = regexp.MustCompile(`^\d+$`)
)

// Parse tokenizes raw into slots sharing location. Unrecognised fragments are dropped.
func (t Tokenizer) Parse(raw, location string) []ScheduleSlot {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	periods := make(map[Day]map[int]struct{})
	cyber := false
	for _, segment := range strings.Split(raw, "/") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		if t.isCyber(segment) {
			cyber = true
			continue
		}
		for _, match := range dayPeriodPattern.FindAllStringSubmatch(segment, -1) {
			day := koreanDays[match[1]]
			for _, p := range expandList(match[2], t.maxPeriod()) {
				if periods[day] == nil {
					periods[day] = make(map[int]struct{})
				}
				periods[day][p] = struct{}{}
			}
		}
	}

	slots := make([]ScheduleSlot, 0, len(periods)+1)
	for _, day := range Weekdays {
		set, ok := periods[day]
		if !ok || len(set) == 0 {
			continue
		}
		list := make([]int, 0, len(set))
		for p := range set {
			list = append(list, p)
		}
		sort.Ints(list)
		slots = append(slots, ScheduleSlot{Day: day, Periods: list, Location: location})
	}
	if cyber {
		loc := location
		if loc == "" {
			loc = t.CyberLocation
		}
		slots = append(slots, ScheduleSlot{Day: DayCyber, Periods: []int{}, Location: loc})
	}
	return slots
}

func (t Tokenizer) maxPeriod() int {
	if t.MaxPeriod <= 0 {
		return DefaultMaxPeriod
	}
	return t.MaxPeriod
}

func (t Tokenizer) isCyber(segment string) bool {
	for _, marker := range t.CyberMarkers {
		if strings.EqualFold(segment, marker) {
			return true
		}
	}
	return false
}

// ExpandPeriods parses a period column such as "1~3", "2" or "1~3주" into ascending periods.
func ExpandPeriods(raw string) []int {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "주", ""))
	return expandList(raw, DefaultMaxPeriod)
}

func expandList(raw string, maxPeriod int) []int {
	var out []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		var from, to int
		switch {
		case rangePattern.MatchString(part):
			m := rangePattern.FindStringSubmatch(part)
			from, _ = strconv.Atoi(m[1])
			to, _ = strconv.Atoi(m[2])
		case singlePattern.MatchString(part):
			from, _ = strconv.Atoi(part)
			to = from
		default:
			continue
		}
		if to > maxPeriod {
			continue
		}
		for p := from; p <= to; p++ {
			if p <= 0 || seen[p] {
				continue
			}
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

// NormalizeSlots returns slots with periods sorted, deduplicated and limited to 1..maxPeriod. An
// unknown day, or a timed slot left without periods, is an error naming the slot index.
func NormalizeSlots(slots []ScheduleSlot, maxPeriod int) ([]ScheduleSlot, error) {
	if maxPeriod <= 0 {
		maxPeriod = DefaultMaxPeriod
	}
	out := make([]ScheduleSlot, 0, len(slots))
	for i, slot := range slots {
		if !slot.Day.Valid() {
			return nil, fmt.Errorf("slot %d: unknown day %q", i, slot.Day)
		}
		seen := make(map[int]bool, len(slot.Periods))
		periods := make([]int, 0, len(slot.Periods))
		for _, p := range slot.Periods {
			if p <= 0 || p > maxPeriod || seen[p] {
				continue
			}
			seen[p] = true
			periods = append(periods, p)
		}
		sort.Ints(periods)
		if len(periods) == 0 && !slot.IsCyber() {
			return nil, fmt.Errorf("slot %d: %s has no valid periods", i, slot.Day)
		}
		out = append(out, ScheduleSlot{Day: slot.Day, Periods: periods, Location: slot.Location})
	}
	return out, nil
}

// CountHours sums timed periods across slots.
func CountHours(slots []ScheduleSlot) int {
	total := 0
	for _, slot := range slots {
		if slot.IsCyber() {
			continue
		}
		total += len(slot.Periods)
	}
	return total
}
