package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

// PostID derives the id of a post from its owner and content. The same
// owner, forum, title and body always yield the same id, so re-uploading a
// file is idempotent while two users uploading one file get separate posts.
func PostID(owner int64, forum, title, body string) string {
	sum := sha256.Sum256([]byte(strconv.FormatInt(owner, 10) + "\x1f" + forum + "\x1f" + title + "\x1f" + body))
	return "post_" + hex.EncodeToString(sum[:12])
}

// buildRecords converts table rows into post records owned by owner, with
// their seed annotations and tags. Rows sharing an id collapse into the last
// one; the number collapsed is returned as dups.
func buildRecords(t *table, owner int64, modelVersion string, seeds *SeedTags) (recs []storage.PostRecord, dups int, problems []Problem) {
	position := make(map[string]int, len(t.rows))

	for i, row := range t.rows {
		rowNum := i + 1
		forum := t.get(row, "forum")
		title := t.get(row, "original_title")
		body := t.get(row, "original_post")

		if forum == "" {
			problems = append(problems, Problem{Row: rowNum, Column: "forum", Message: "forum is empty"})
			continue
		}
		if title == "" && body == "" {
			problems = append(problems, Problem{Row: rowNum, Message: "row has neither a title nor a post body"})
			continue
		}

		post := types.Post{
			ID:             t.get(row, "id"),
			Forum:          forum,
			PostType:       t.get(row, "post_type"),
			Username:       t.get(row, "username"),
			OriginalTitle:  title,
			OriginalPost:   body,
			PostURL:        t.get(row, "post_url"),
			DatePosted:     t.get(row, "date_posted"),
			ClusterLabel:   t.get(row, "cluster_label"),
			LLMClusterName: t.get(row, "llm_cluster_name"),
		}
		if post.ID == "" {
			post.ID = PostID(owner, forum, title, body)
		}

		var bad bool
		if raw := t.get(row, "cluster"); raw != "" {
			c, err := parseCluster(raw)
			if err != nil {
				problems = append(problems, Problem{Row: rowNum, Column: "cluster", Message: "cluster must be an integer"})
				bad = true
			} else {
				post.Cluster = &c
			}
		}
		for _, f := range []struct {
			col string
			dst **float64
		}{{"umap_1", &post.UMAP1}, {"umap_2", &post.UMAP2}, {"umap_3", &post.UMAP3}} {
			raw := t.get(row, f.col)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				problems = append(problems, Problem{Row: rowNum, Column: f.col, Message: "not a number"})
				bad = true
				continue
			}
			*f.dst = &v
		}
		if bad {
			continue
		}

		rec := storage.PostRecord{Post: post}
		if q := t.get(row, "LLM_inferred_question"); q != "" {
			rec.Questions = append(rec.Questions, types.AIQuestion{Text: q, ModelVersion: modelVersion})
		}
		if name := post.LLMClusterName; name != "" {
			rec.Categories = append(rec.Categories, types.AICategory{
				CategoryType: string(types.LevelGroup), CategoryValue: name, ModelVersion: modelVersion,
			})
			rec.Tags = append(rec.Tags, types.TagAssignment{Level: types.LevelGroup, Value: name, Source: types.SourceAI})
		}
		if post.Cluster != nil {
			rec.Tags = append(rec.Tags, seeds.Assignments(*post.Cluster)...)
		}

		if at, seen := position[post.ID]; seen {
			recs[at] = rec
			dups++
			continue
		}
		position[post.ID] = len(recs)
		recs = append(recs, rec)
	}
	return recs, dups, problems
}

// parseCluster accepts "3" and the "3.0" spelling spreadsheet exports produce.
func parseCluster(raw string) (int64, error) {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, strconv.ErrSyntax
	}
	return int64(f), nil
}
