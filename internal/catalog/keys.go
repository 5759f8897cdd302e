package catalog

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// DedupKey identifies a scraped row by code, instructor and serialised schedule.
func DedupKey(l Lecture) string {
	return l.CourseCode + "#" + l.Instructor + "#" + l.ScheduleKey()
}

// SurrogateCode derives a stable course code for sources that publish none, so that the
// (university, year, semester, course code, campus) key still distinguishes sections.
func SurrogateCode(prefix string, l Lecture) string {
	sum := sha1.Sum([]byte(strings.Join([]string{l.Group, l.CourseName, l.ScheduleKey()}, "\x1f")))
	return prefix + "-" + strings.ToUpper(hex.EncodeToString(sum[:])[:10])
}
