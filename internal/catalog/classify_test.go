package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifierClassify(t *testing.T) {
	c := DefaultClassifier()

	cases := []struct {
		name    string
		remarks string
		target  string
		want    CourseType
	}{
		{name: "restriction only", remarks: "수강제한 40명", want: CourseTypeGeneral},
		{name: "target major", remarks: "", target: "간호학과", want: CourseTypeMajor},
		{name: "open major without target", remarks: "자유전공학부 개설", want: CourseTypeGeneral},
		{name: "open major with target", remarks: "자유전공학부 대상", want: CourseTypeMajor},
		{name: "major code", remarks: "A2 영역", want: CourseTypeMajor},
		{name: "nothing", remarks: "", want: CourseTypeGeneral},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, c.Classify(tc.remarks, tc.target))
		})
	}
}

func TestClassifierLabel(t *testing.T) {
	c := DefaultClassifier()
	assert.Equal(t, CourseTypeMajor, c.Label("전필", CourseTypeGeneral))
	assert.Equal(t, CourseTypeGeneral, c.Label("교선", CourseTypeMajor))
	assert.Equal(t, CourseTypeMajor, c.Label("", CourseTypeMajor))
	assert.Equal(t, CourseTypeGeneral, c.Label("기타", CourseTypeGeneral))
}
