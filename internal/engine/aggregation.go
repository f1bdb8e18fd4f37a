package engine

import (
	"sort"
	"strings"

	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

// DatatableColumns is the fixed column order of the flattened view.
var DatatableColumns = []string{
	"id", "forum", "post_type", "username", "original_title", "original_post",
	"post_url", "cluster", "cluster_label", "date_posted",
	"umap_1", "umap_2", "umap_3", "upload_id", "all_questions", "all_categories",
}

// LegacyColumns is the column order of the row-per-post view.
var LegacyColumns = []string{
	"id", "forum", "post_type", "username", "original_title", "original_post",
	"post_url", "date_posted", "cluster", "cluster_label", "llm_cluster_name",
	"umap_1", "umap_2", "umap_3", "upload_id", "LLM_inferred_question",
}

// Table is a column-ordered tabular projection, ready for a data grid.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// LegacyRow is one post with its newest AI question, or nil when it has none.
type LegacyRow struct {
	types.Post
	LLMInferredQuestion *string `json:"LLM_inferred_question"`
}

// Values returns the row in LegacyColumns order.
func (r LegacyRow) Values() []any {
	return []any{
		r.ID, r.Forum, r.PostType, r.Username, r.OriginalTitle, r.OriginalPost,
		r.PostURL, r.DatePosted, r.Cluster, r.ClusterLabel, r.LLMClusterName,
		r.UMAP1, r.UMAP2, r.UMAP3, r.UploadID, r.LLMInferredQuestion,
	}
}

// DatatableRow is one merged row of the flattened view. Field order follows
// DatatableColumns so the JSON encoding keeps the same order.
type DatatableRow struct {
	ID            string   `json:"id"`
	Forum         string   `json:"forum"`
	PostType      string   `json:"post_type"`
	Username      string   `json:"username"`
	OriginalTitle string   `json:"original_title"`
	OriginalPost  string   `json:"original_post"`
	PostURL       string   `json:"post_url"`
	Cluster       *int64   `json:"cluster"`
	ClusterLabel  string   `json:"cluster_label"`
	DatePosted    string   `json:"date_posted"`
	UMAP1         *float64 `json:"umap_1"`
	UMAP2         *float64 `json:"umap_2"`
	UMAP3         *float64 `json:"umap_3"`
	UploadID      int64    `json:"upload_id"`
	AllQuestions  string   `json:"all_questions"`
	AllCategories string   `json:"all_categories"`
}

// Values returns the row in DatatableColumns order.
func (r DatatableRow) Values() []any {
	return []any{
		r.ID, r.Forum, r.PostType, r.Username, r.OriginalTitle, r.OriginalPost,
		r.PostURL, r.Cluster, r.ClusterLabel, r.DatePosted,
		r.UMAP1, r.UMAP2, r.UMAP3, r.UploadID, r.AllQuestions, r.AllCategories,
	}
}

// Bulleted returns a copy with the aggregated columns rendered as bullet lists.
func (r DatatableRow) Bulleted() DatatableRow {
	r.AllQuestions = Bulletize(r.AllQuestions)
	r.AllCategories = Bulletize(r.AllCategories)
	return r
}

// Bullet prefixes each rendered line of an aggregated column.
const Bullet = "• "

// Bulletize prefixes every non-empty line of text with Bullet. Blank lines
// are dropped.
func Bulletize(text string) string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, Bullet+line)
	}
	return strings.Join(out, "\n")
}

// LegacyView projects posts one row each, ordered by date_posted descending
// then id, like ListPosts.
func LegacyView(posts []storage.AnnotatedPost) []LegacyRow {
	rows := make([]LegacyRow, 0, len(posts))
	for _, p := range posts {
		row := LegacyRow{Post: p.Post}
		if n := len(p.AIQuestions); n > 0 {
			// children arrive oldest first
			text := p.AIQuestions[n-1].Text
			row.LLMInferredQuestion = &text
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].DatePosted != rows[j].DatePosted {
			return rows[i].DatePosted > rows[j].DatePosted
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

// DatatableView flattens posts into one row per original title. Posts sharing
// a title merge into a single row represented by the smallest post id, whose
// question and category columns hold the union of every merged post's AI
// children, oldest first, newline-joined. Posts with an empty title are never
// merged.
//
// Rows are ordered by date_posted descending, then title, then id.
func DatatableView(posts []storage.AnnotatedPost) []DatatableRow {
	type group struct {
		rep        types.Post
		questions  []types.AIQuestion
		categories []types.AICategory
	}
	groups := make(map[string]*group)
	var order []string

	for _, p := range posts {
		key := "t:" + p.OriginalTitle
		if strings.TrimSpace(p.OriginalTitle) == "" {
			key = "id:" + p.ID
		}
		g, ok := groups[key]
		if !ok {
			g = &group{rep: p.Post}
			groups[key] = g
			order = append(order, key)
		} else if p.ID < g.rep.ID {
			g.rep = p.Post
		}
		g.questions = append(g.questions, p.AIQuestions...)
		g.categories = append(g.categories, p.AICategories...)
	}

	rows := make([]DatatableRow, 0, len(order))
	for _, key := range order {
		g := groups[key]
		sort.SliceStable(g.questions, func(i, j int) bool {
			return olderFirst(g.questions[i].CreatedAt.UnixNano(), g.questions[i].ID,
				g.questions[j].CreatedAt.UnixNano(), g.questions[j].ID)
		})
		sort.SliceStable(g.categories, func(i, j int) bool {
			return olderFirst(g.categories[i].CreatedAt.UnixNano(), g.categories[i].ID,
				g.categories[j].CreatedAt.UnixNano(), g.categories[j].ID)
		})

		qs := make([]string, 0, len(g.questions))
		for _, q := range g.questions {
			qs = append(qs, q.Text)
		}
		cs := make([]string, 0, len(g.categories))
		for _, c := range g.categories {
			cs = append(cs, c.CategoryValue)
		}

		p := g.rep
		rows = append(rows, DatatableRow{
			ID:            p.ID,
			Forum:         p.Forum,
			PostType:      p.PostType,
			Username:      p.Username,
			OriginalTitle: p.OriginalTitle,
			OriginalPost:  p.OriginalPost,
			PostURL:       p.PostURL,
			Cluster:       p.Cluster,
			ClusterLabel:  p.ClusterLabel,
			DatePosted:    p.DatePosted,
			UMAP1:         p.UMAP1,
			UMAP2:         p.UMAP2,
			UMAP3:         p.UMAP3,
			UploadID:      p.UploadID,
			AllQuestions:  joinDistinct(qs),
			AllCategories: joinDistinct(cs),
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.DatePosted != b.DatePosted {
			return a.DatePosted > b.DatePosted
		}
		if a.OriginalTitle != b.OriginalTitle {
			return a.OriginalTitle < b.OriginalTitle
		}
		return a.ID < b.ID
	})
	return rows
}

// LegacyTable renders rows as a Table in LegacyColumns order.
func LegacyTable(rows []LegacyRow) Table {
	t := Table{Columns: LegacyColumns, Rows: make([][]any, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, r.Values())
	}
	return t
}

// DatatableTable renders rows as a Table in DatatableColumns order, with the
// aggregated columns bulleted.
func DatatableTable(rows []DatatableRow) Table {
	t := Table{Columns: DatatableColumns, Rows: make([][]any, 0, len(rows))}
	for _, r := range rows {
		t.Rows = append(t.Rows, r.Bulleted().Values())
	}
	return t
}

func olderFirst(aTime, aID, bTime, bID int64) bool {
	if aTime != bTime {
		return aTime < bTime
	}
	return aID < bID
}

// joinDistinct newline-joins values, skipping blanks and repeats while
// keeping first-seen order.
func joinDistinct(values []string) string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return strings.Join(out, "\n")
}

