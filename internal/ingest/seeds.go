package ingest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/forumlens/pkg/types"
)

// SeedTags maps cluster ids to tags applied to every post of that cluster on
// ingestion. The file format is:
//
//	clusters:
//	  3:
//	    groups: [Hardware]
//	    subgroups: [Battery]
//	    tags: [charging, swelling]
type SeedTags struct {
	Clusters map[int64]SeedEntry `yaml:"clusters"`
}

// SeedEntry lists the tags for one cluster, per level.
type SeedEntry struct {
	Groups    []string `yaml:"groups"`
	Subgroups []string `yaml:"subgroups"`
	Tags      []string `yaml:"tags"`
}

// LoadSeedTags reads a seed file. An empty path yields an empty mapping.
func LoadSeedTags(path string) (*SeedTags, error) {
	if path == "" {
		return &SeedTags{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed tags: %w", err)
	}
	return ParseSeedTags(data)
}

// ParseSeedTags decodes a seed mapping.
func ParseSeedTags(data []byte) (*SeedTags, error) {
	var s SeedTags
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed tags: %w", err)
	}
	return &s, nil
}

// Assignments returns the import-sourced tag assignments for cluster.
func (s *SeedTags) Assignments(cluster int64) []types.TagAssignment {
	if s == nil {
		return nil
	}
	entry, ok := s.Clusters[cluster]
	if !ok {
		return nil
	}
	var out []types.TagAssignment
	for _, lv := range []struct {
		level  types.Level
		values []string
	}{
		{types.LevelGroup, entry.Groups},
		{types.LevelSubgroup, entry.Subgroups},
		{types.LevelTag, entry.Tags},
	} {
		for _, v := range lv.values {
			if v = types.NormalizeTagValue(v); v != "" {
				out = append(out, types.TagAssignment{Level: lv.level, Value: v, Source: types.SourceImport})
			}
		}
	}
	return out
}
