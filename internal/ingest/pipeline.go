// Package ingest turns uploaded CSV/TSV files into posts, seed annotations
// and seed tags, committed atomically as one upload.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/scrypster/forumlens/internal/notify"
	"github.com/scrypster/forumlens/internal/storage"
	"github.com/scrypster/forumlens/pkg/types"
)

// DefaultModelVersion labels AI annotations seeded from upload columns.
const DefaultModelVersion = "upload_v1"

// Options configures a Pipeline.
type Options struct {
	// MaxBytes caps the decoded file size. Zero means no limit.
	MaxBytes int64

	// ModelVersion labels seeded AI annotations. Defaults to DefaultModelVersion.
	ModelVersion string

	// Seeds maps clusters to import tags. Nil disables cluster seeding.
	Seeds *SeedTags

	// Events is told about every upload that stored new posts. Optional.
	Events notify.Publisher

	Logger *zap.Logger
}

// Pipeline runs uploads through received → parsed → validated → committed,
// or stops at rejected. It holds no per-upload state and is safe for
// concurrent use.
type Pipeline struct {
	store  storage.UploadStore
	opts   Options
	logger *zap.Logger
}

// NewPipeline creates a pipeline writing to store.
func NewPipeline(store storage.UploadStore, opts Options) *Pipeline {
	if opts.ModelVersion == "" {
		opts.ModelVersion = DefaultModelVersion
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: store, opts: opts, logger: logger}
}

// Run ingests one upload. On rejection the returned Result explains why and
// the error is a *ValidationError, storage.ErrForbidden, a context error or a
// storage error; nothing is written in that case.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	return p.run(ctx, req, nil)
}

func (p *Pipeline) run(ctx context.Context, req Request, onStage func(Stage)) (*Result, error) {
	advance := func(s Stage) {
		if onStage != nil {
			onStage(s)
		}
	}
	log := p.logger.With(zap.String("filename", req.Filename), zap.Int64("user_id", req.UserID))

	reject := func(err error) (*Result, error) {
		advance(StageRejected)
		res := &Result{Stage: StageRejected, Message: rejectionMessage(err)}
		var verr *ValidationError
		if errors.As(err, &verr) {
			res.Validation = verr
		}
		log.Info("Upload rejected", zap.Error(err))
		return res, err
	}

	advance(StageReceived)
	if req.UserID <= 0 {
		return reject(fmt.Errorf("%w: authentication required to upload files", storage.ErrForbidden))
	}
	data, mime, err := p.payload(req)
	if err != nil {
		return reject(err)
	}

	t, err := parseTable(data, delimiterFor(mime, req.Filename))
	if err != nil {
		return reject(&ValidationError{Reason: err.Error()})
	}
	if missing := t.missing(); len(missing) > 0 {
		return reject(&ValidationError{MissingColumns: missing})
	}
	advance(StageParsed)

	recs, dups, problems := buildRecords(t, req.UserID, p.opts.ModelVersion, p.opts.Seeds)
	if len(problems) > 0 {
		return reject(&ValidationError{Problems: problems})
	}
	if len(recs) == 0 {
		return reject(&ValidationError{Reason: "file contains no rows"})
	}
	advance(StageValidated)

	if err := ctx.Err(); err != nil {
		return reject(err)
	}

	commit, err := p.store.CommitUpload(ctx, storage.UploadBatch{
		Upload: types.Upload{
			UserID:       req.UserID,
			Filename:     req.Filename,
			ReadableName: readableName(req),
			Comment:      strings.TrimSpace(req.Comment),
		},
		Posts:     recs,
		Overwrite: req.Overwrite,
	})
	if err != nil {
		return reject(err)
	}
	advance(StageCommitted)

	res := &Result{
		Success:           true,
		Stage:             StageCommitted,
		PostsInserted:     commit.Inserted,
		PostsUpdated:      commit.Updated,
		DuplicatesSkipped: dups + commit.Skipped,
		TotalProcessed:    len(t.rows),
		UploadID:          commit.UploadID,
	}
	res.Message = summaryMessage(res)

	fields := []zap.Field{
		zap.Int("inserted", res.PostsInserted),
		zap.Int("updated", res.PostsUpdated),
		zap.Int("duplicates", res.DuplicatesSkipped),
	}
	if res.UploadID != nil {
		fields = append(fields, zap.Int64("upload_id", *res.UploadID))
	}
	log.Info("Upload ingested", fields...)

	if res.UploadID != nil && p.opts.Events != nil {
		evt := notify.Event{
			Type:     notify.UploadCommitted,
			UserID:   req.UserID,
			UploadID: *res.UploadID,
			Posts:    res.PostsInserted + res.PostsUpdated,
		}
		if err := p.opts.Events.Publish(evt); err != nil {
			log.Warn("Failed to publish upload event", zap.Error(err))
		}
	}
	return res, nil
}

// Preview decodes and validates an upload without writing it. rows caps the
// number of sample rows returned. For a valid file it also reports how many
// posts are already stored.
func (p *Pipeline) Preview(ctx context.Context, req Request, rows int) (*Preview, error) {
	data, mime, err := p.payload(req)
	if err != nil {
		return nil, err
	}
	t, err := parseTable(data, delimiterFor(mime, req.Filename))
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	pv := &Preview{TotalRows: len(t.rows), Columns: t.columns, Rows: []map[string]string{}, ValidationErrors: []string{}}
	for i := 0; i < len(t.rows) && i < rows; i++ {
		m := make(map[string]string, len(t.columns))
		for j, col := range t.columns {
			m[col] = t.rows[i][j]
		}
		pv.Rows = append(pv.Rows, m)
	}

	var recs []storage.PostRecord
	verr := &ValidationError{MissingColumns: t.missing()}
	if len(verr.MissingColumns) == 0 {
		recs, _, verr.Problems = buildRecords(t, req.UserID, p.opts.ModelVersion, nil)
	}
	if len(t.rows) == 0 {
		verr.Reason = "file contains no rows"
	}
	pv.Valid = verr.empty()
	if !pv.Valid {
		pv.ValidationErrors = validationLines(verr)
		return pv, nil
	}

	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.Post.ID
	}
	existing, err := p.store.ExistingPostIDs(ctx, req.UserID, ids)
	if err != nil {
		return nil, err
	}
	pv.ExistingRows = len(existing)
	return pv, nil
}

// payload returns the decoded file bytes and their MIME type.
func (p *Pipeline) payload(req Request) ([]byte, string, error) {
	data, mime := req.Data, req.MIMEType
	if req.Contents != "" {
		declared, decoded, err := decodeDataURL(req.Contents)
		if err != nil {
			return nil, "", &ValidationError{Reason: err.Error()}
		}
		data = decoded
		if mime == "" {
			mime = declared
		}
	}
	if len(data) == 0 {
		return nil, "", &ValidationError{Reason: "file is empty"}
	}
	if p.opts.MaxBytes > 0 && int64(len(data)) > p.opts.MaxBytes {
		return nil, "", &ValidationError{Reason: fmt.Sprintf("file is %d bytes, limit is %d", len(data), p.opts.MaxBytes)}
	}
	return data, mime, nil
}

func readableName(req Request) string {
	if name := strings.TrimSpace(req.ReadableName); name != "" {
		return name
	}
	base := filepath.Base(req.Filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func summaryMessage(r *Result) string {
	if r.UploadID == nil {
		return fmt.Sprintf("No new records: all %d posts already exist", r.DuplicatesSkipped)
	}
	msg := fmt.Sprintf("Added %d new records", r.PostsInserted)
	if r.PostsUpdated > 0 {
		msg += fmt.Sprintf(", updated %d", r.PostsUpdated)
	}
	if r.DuplicatesSkipped > 0 {
		msg += fmt.Sprintf(", skipped %d duplicates", r.DuplicatesSkipped)
	}
	return msg
}

func rejectionMessage(err error) string {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return "Forum data validation failed:\n" + strings.Join(validationLines(verr), "\n")
	case errors.Is(err, storage.ErrForbidden):
		return "Authentication required to upload files"
	case errors.Is(err, context.Canceled):
		return "Upload cancelled"
	default:
		return "Upload failed: " + err.Error()
	}
}

func validationLines(e *ValidationError) []string {
	var lines []string
	if e.Reason != "" {
		lines = append(lines, e.Reason)
	}
	if len(e.MissingColumns) > 0 {
		lines = append(lines, "Missing required columns: "+strings.Join(e.MissingColumns, ", "))
	}
	for _, p := range e.Problems {
		line := fmt.Sprintf("Row %d: %s", p.Row, p.Message)
		if p.Column != "" {
			line = fmt.Sprintf("Row %d, %s: %s", p.Row, p.Column, p.Message)
		}
		lines = append(lines, line)
	}
	return lines
}
