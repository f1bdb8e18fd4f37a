package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TagEntry is one value of the append-only tag vocabulary.
type TagEntry struct {
	ID        int64     `json:"id"`
	Level     Level     `json:"level"`
	Value     string    `json:"value"`
	CreatedAt time.Time `json:"created_at"`
}

// TagAssignment links a post to a vocabulary value at a given level.
type TagAssignment struct {
	PostID    string    `json:"post_id"`
	Level     Level     `json:"level"`
	Value     string    `json:"value"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// TagValue is a tag as shown on a post: the value plus its provenance.
// When decoding JSON, a bare string is accepted and leaves Source empty so the
// caller's default applies.
type TagValue struct {
	Value  string `json:"value"`
	Source Source `json:"source,omitempty"`
}

// UnmarshalJSON accepts either "value" or {"value": ..., "source": ...}.
func (t *TagValue) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = TagValue{Value: s}
		return nil
	}
	type plain TagValue
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("tag value must be a string or an object: %w", err)
	}
	*t = TagValue(p)
	return nil
}

// TagSet groups a post's tags by level.
//
// On save, a nil slice leaves that level untouched while a non-nil slice
// (including an empty one) replaces every assignment at that level.
type TagSet struct {
	Groups    []TagValue `json:"groups"`
	Subgroups []TagValue `json:"subgroups"`
	Tags      []TagValue `json:"tags"`
}

// EmptyTagSet returns a TagSet whose levels are all present and empty.
func EmptyTagSet() TagSet {
	return TagSet{Groups: []TagValue{}, Subgroups: []TagValue{}, Tags: []TagValue{}}
}

// ForLevel returns the values held at level l.
func (s TagSet) ForLevel(l Level) []TagValue {
	switch l {
	case LevelGroup:
		return s.Groups
	case LevelSubgroup:
		return s.Subgroups
	case LevelTag:
		return s.Tags
	}
	return nil
}

// Append adds v at level l.
func (s *TagSet) Append(l Level, v TagValue) {
	switch l {
	case LevelGroup:
		s.Groups = append(s.Groups, v)
	case LevelSubgroup:
		s.Subgroups = append(s.Subgroups, v)
	case LevelTag:
		s.Tags = append(s.Tags, v)
	}
}

// Validate normalizes every value in place and rejects unknown sources.
// Values that normalize to the empty string are dropped.
func (s *TagSet) Validate() error {
	for _, l := range Levels {
		vals := s.ForLevel(l)
		if vals == nil {
			continue
		}
		out := make([]TagValue, 0, len(vals))
		seen := make(map[string]bool, len(vals))
		for _, v := range vals {
			v.Value = NormalizeTagValue(v.Value)
			if v.Value == "" {
				continue
			}
			if v.Source != "" && !v.Source.IsValid() {
				return fmt.Errorf("%s %q: unknown source %q", l, v.Value, v.Source)
			}
			key := TagKey(v.Value)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, v)
		}
		switch l {
		case LevelGroup:
			s.Groups = out
		case LevelSubgroup:
			s.Subgroups = out
		case LevelTag:
			s.Tags = out
		}
	}
	return nil
}

// AvailableTags is the distinct vocabulary per level.
type AvailableTags struct {
	Groups    []string `json:"groups"`
	Subgroups []string `json:"subgroups"`
	Tags      []string `json:"tags"`
}

// NormalizeTagValue trims the value and collapses internal whitespace runs
// to a single space. Case is preserved for display.
func NormalizeTagValue(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// TagKey is the comparison key for a tag value: normalized and lower-cased.
// Two values with the same key are the same vocabulary entry.
func TagKey(v string) string {
	return strings.ToLower(NormalizeTagValue(v))
}
