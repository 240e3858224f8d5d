package services

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/imalive/server/models"
)

// MoodValidator decides which mood tags a check-in may carry.
type MoodValidator struct {
	allowed map[string]struct{}
	ordered []string
	any     bool
}

// NewMoodValidator accepts exactly the given tags; a "*" entry accepts any well-formed tag.
func NewMoodValidator(tags []string) MoodValidator {
	v := MoodValidator{allowed: make(map[string]struct{}, len(tags))}
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "*" {
			v.any = true
			continue
		}
		if _, dup := v.allowed[t]; t != "" && !dup {
			v.allowed[t] = struct{}{}
			v.ordered = append(v.ordered, t)
		}
	}
	return v
}

// Normalize trims the tag and validates it. An empty tag is valid: the mood is optional.
func (v MoodValidator) Normalize(mood string) (string, error) {
	mood = strings.TrimSpace(mood)
	if mood == "" {
		return "", nil
	}
	if !utf8.ValidString(mood) || utf8.RuneCountInString(mood) > models.MaxMoodLength {
		return "", fmt.Errorf("%w: too long", ErrInvalidMoodTag)
	}
	for _, r := range mood {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '<' || r == '>' {
			return "", fmt.Errorf("%w: unexpected character %q", ErrInvalidMoodTag, r)
		}
	}
	if v.any {
		return mood, nil
	}
	if _, ok := v.allowed[mood]; !ok {
		return "", fmt.Errorf("%w: %q is not an offered mood", ErrInvalidMoodTag, mood)
	}
	return mood, nil
}

// Tags lists the offered tags, or nil when any tag is accepted.
func (v MoodValidator) Tags() []string {
	if v.any {
		return nil
	}
	return append([]string(nil), v.ordered...)
}
