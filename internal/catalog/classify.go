package catalog

import "strings"

// Classifier infers a course type from free text. The keyword lists are approximations of how
// institutions phrase remarks and change without notice, so they are configuration rather than code.
type Classifier struct {
	GeneralKeywords   []string
	MajorKeywords     []string
	RestrictionPrefix string
	OpenMajorMarker   string
	TargetMarker      string

	// GeneralLabels and MajorLabels normalise explicit type cells such as "교선" or "전필".
	GeneralLabels []string
	MajorLabels   []string
}

// DefaultClassifier returns the keyword lists observed on the bundled sources.
func DefaultClassifier() Classifier {
	return Classifier{
		GeneralKeywords:   []string{"교과목", "수업", "인정", "Tri-Learn", "Edu-Us", "수강제한", "온라인"},
		MajorKeywords:     []string{"학과", "학부", "전공", "A1", "A2", "A3"},
		RestrictionPrefix: "수강제한",
		OpenMajorMarker:   "자유전공학부",
		TargetMarker:      "대상",
		GeneralLabels:     []string{"교양", "교필", "교선", "일선", "일반"},
		MajorLabels:       []string{"전공", "전필", "전선", "전기", "복전"},
	}
}

// Classify inspects remarks and the target-major column.
func (c Classifier) Classify(remarks, target string) CourseType {
	text := strings.TrimSpace(remarks + " " + target)

	if !containsAny(text, c.GeneralKeywords) && c.RestrictionPrefix != "" && strings.HasPrefix(strings.TrimSpace(remarks), c.RestrictionPrefix) {
		return CourseTypeGeneral
	}

	if containsAny(text, c.MajorKeywords) {
		if c.OpenMajorMarker != "" && strings.Contains(text, c.OpenMajorMarker) && !strings.Contains(text, c.TargetMarker) {
			return CourseTypeGeneral
		}
		return CourseTypeMajor
	}
	return CourseTypeGeneral
}

// Label normalises an explicit type cell, returning fallback when the label is unknown.
func (c Classifier) Label(raw string, fallback CourseType) CourseType {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return fallback
	case containsAny(raw, c.GeneralLabels):
		return CourseTypeGeneral
	case containsAny(raw, c.MajorLabels):
		return CourseTypeMajor
	default:
		return fallback
	}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
