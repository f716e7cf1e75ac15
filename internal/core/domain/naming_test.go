package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"lowercase letters", "lesson", false},
		{"digits", "19102026", false},
		{"token", "19102026a1b2c3d4e5", false},
		{"empty", "", true},
		{"uppercase", "Lesson", true},
		{"dash", "my-lesson", true},
		{"underscore", "my_lesson", true},
		{"dot", "lesson.html", true},
		{"leading slash", "/lesson", true},
		{"space", "my lesson", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNameFromContentPath(t *testing.T) {
	assert.Equal(t, "abc123", NameFromContentPath("/media/abc123/abc123.html"))
	assert.Equal(t, "lessonone", NameFromContentPath("LessonOne.HTML"))
	assert.Equal(t, "readme", NameFromContentPath("docs/readme"))
}
