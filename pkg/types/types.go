// Package types defines the core data structures for the forumlens annotation
// store: ingested forum posts, the uploads that produced them, the tag
// vocabulary, and the AI- and user-authored annotations attached to posts.
//
// Closed vocabularies (tag levels, provenance sources, feedback ratings,
// upload statuses) are modelled as string-backed types with explicit
// constructors so that invalid values are rejected at the store boundary.
package types

import (
	"fmt"
	"strings"
)

// Level identifies a tier of the hierarchical tag vocabulary.
type Level string

// Source records who produced a tag assignment.
type Source string

// Rating is the verdict attached to a piece of inference feedback.
type Rating string

// Tag vocabulary levels
const (
	// LevelGroup is the top-level grouping (e.g. "Medical")
	LevelGroup Level = "group"

	// LevelSubgroup refines a group (e.g. "Surgery Recovery")
	LevelSubgroup Level = "subgroup"

	// LevelTag is the most specific label (e.g. "Hysterectomy Recovery")
	LevelTag Level = "tag"
)

// Levels lists every tag level in display order.
var Levels = []Level{LevelGroup, LevelSubgroup, LevelTag}

// Tag assignment provenance
const (
	// SourceUser marks assignments chosen by a person in the dashboard
	SourceUser Source = "user"

	// SourceAI marks assignments produced by a model
	SourceAI Source = "ai"

	// SourceImport marks assignments seeded during ingestion
	SourceImport Source = "import"
)

// Feedback ratings. A nil/empty rating is valid and means "comment only".
const (
	RatingPositive Rating = "positive"
	RatingNegative Rating = "negative"
	RatingNone     Rating = ""

	// RatingTextUpdate is a submission-only marker: it replaces the feedback
	// text of an existing record while keeping the stored rating. It is never
	// persisted.
	RatingTextUpdate Rating = "text_update"
)

// ParseLevel converts a level name into a Level. Plural forms used by the
// dashboard ("groups", "subgroups", "tags") are accepted.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "group", "groups":
		return LevelGroup, nil
	case "subgroup", "subgroups":
		return LevelSubgroup, nil
	case "tag", "tags":
		return LevelTag, nil
	}
	return "", fmt.Errorf("unknown tag level %q", s)
}

// Plural returns the dashboard key for the level ("groups", "subgroups", "tags").
func (l Level) Plural() string {
	return string(l) + "s"
}

// IsValid reports whether l is one of the known levels.
func (l Level) IsValid() bool {
	return l == LevelGroup || l == LevelSubgroup || l == LevelTag
}

// ParseSource converts a provenance name into a Source.
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceUser:
		return SourceUser, nil
	case SourceAI:
		return SourceAI, nil
	case SourceImport:
		return SourceImport, nil
	}
	return "", fmt.Errorf("unknown tag source %q", s)
}

// IsValid reports whether s is one of the known sources.
func (s Source) IsValid() bool {
	return s == SourceUser || s == SourceAI || s == SourceImport
}

// ParseRating converts a submitted rating into a Rating.
// Empty input yields RatingNone.
func ParseRating(s string) (Rating, error) {
	switch Rating(strings.ToLower(strings.TrimSpace(s))) {
	case RatingNone:
		return RatingNone, nil
	case RatingPositive:
		return RatingPositive, nil
	case RatingNegative:
		return RatingNegative, nil
	case RatingTextUpdate:
		return RatingTextUpdate, nil
	}
	return "", fmt.Errorf("unknown rating %q", s)
}

// IsValid reports whether r may be submitted.
func (r Rating) IsValid() bool {
	switch r {
	case RatingNone, RatingPositive, RatingNegative, RatingTextUpdate:
		return true
	}
	return false
}
