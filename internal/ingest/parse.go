package ingest

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
)

// RequiredColumns must be present (after alias resolution) in every upload.
var RequiredColumns = []string{"forum", "original_title", "original_post"}

// columnAliases maps accepted header spellings to canonical column names.
var columnAliases = map[string]string{
	"title":                 "original_title",
	"body":                  "original_post",
	"post":                  "original_post",
	"llm_inferred_question": "LLM_inferred_question",
	"umap_x":                "umap_1",
	"umap_y":                "umap_2",
	"umap_z":                "umap_3",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeDataURL splits "data:<mime>[;base64],<payload>" into its MIME type
// and decoded bytes.
func decodeDataURL(s string) (string, []byte, error) {
	if !strings.HasPrefix(s, "data:") {
		return "", nil, errors.New("contents are not a data URL")
	}
	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return "", nil, errors.New("data URL has no payload")
	}

	mime := meta
	isBase64 := false
	if m, ok := strings.CutSuffix(meta, ";base64"); ok {
		mime, isBase64 = m, true
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}

	if isBase64 {
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			return "", nil, fmt.Errorf("decode base64 payload: %w", err)
		}
		return mime, data, nil
	}
	text, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode payload: %w", err)
	}
	return mime, []byte(text), nil
}

// delimiterFor picks tab for TSV uploads and comma otherwise.
func delimiterFor(mime, filename string) rune {
	mime = strings.ToLower(mime)
	if strings.Contains(mime, "tab-separated") || strings.EqualFold(filepath.Ext(filename), ".tsv") {
		return '\t'
	}
	return ','
}

// table is a decoded upload with canonical column names.
type table struct {
	columns []string       // canonical names in file order, unknown columns kept as-is
	index   map[string]int // canonical name -> position
	rows    [][]string
}

// parseTable decodes delimited text. The first record is the header. Blank
// lines are skipped; ragged rows are padded or truncated to the header width.
func parseTable(data []byte, delim rune) (*table, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	t := &table{columns: make([]string, len(header)), index: make(map[string]int)}
	for i, h := range header {
		t.columns[i] = canonicalColumn(h)
	}
	// Exact canonical names win over aliases of the same column.
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == t.columns[i] {
			if _, dup := t.index[name]; !dup {
				t.index[name] = i
			}
		}
	}
	for i, col := range t.columns {
		if _, taken := t.index[col]; !taken {
			t.index[col] = i
		}
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.rows)+1, err)
		}
		if blankRecord(rec) {
			continue
		}
		row := make([]string, len(header))
		copy(row, rec)
		t.rows = append(t.rows, row)
	}
	return t, nil
}

func canonicalColumn(h string) string {
	name := strings.TrimSpace(h)
	if alias, ok := columnAliases[strings.ToLower(name)]; ok {
		return alias
	}
	if strings.EqualFold(name, "LLM_inferred_question") {
		return "LLM_inferred_question"
	}
	return strings.ToLower(name)
}

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// missing returns the required columns the table lacks.
func (t *table) missing() []string {
	var out []string
	for _, col := range RequiredColumns {
		if _, ok := t.index[col]; !ok {
			out = append(out, col)
		}
	}
	return out
}

// get returns the trimmed value of col in row, or "" if the column is absent.
func (t *table) get(row []string, col string) string {
	i, ok := t.index[col]
	if !ok {
		return ""
	}
	return strings.TrimSpace(row[i])
}
