// Package pipeline orchestrates document processing: rasterize pages,
// OCR each page, assemble the canonical record, recognize entities, and
// write the structured output. Each document runs under its own
// deadline with an independent record builder, so concurrent documents
// never share state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ktanaka/medscan/internal/audit"
	"github.com/ktanaka/medscan/internal/canonical"
	"github.com/ktanaka/medscan/internal/providers"
	"github.com/ktanaka/medscan/internal/rasterize"
	"github.com/ktanaka/medscan/internal/sink"
)

const (
	// DefaultTimeout is the per-document processing deadline.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxWorkers caps concurrently processed documents.
	DefaultMaxWorkers = 4

	// Adapter calls get one initial attempt plus maxRetries retries with
	// exponential backoff starting at baseDelay (500ms, 1s, 2s).
	maxRetries = 3
	baseDelay  = 500 * time.Millisecond
)

// Options configures a pipeline run.
type Options struct {
	OCRProvider string
	NERProvider string
	Format      sink.Format
	Timeout     time.Duration
	MaxWorkers  int
}

// Runner processes documents end to end.
type Runner struct {
	registry *providers.Registry
	sink     *sink.Sink
	log      *audit.Log
	logger   *slog.Logger
	opts     Options
}

// New creates a pipeline runner. Zero-valued option fields get defaults.
func New(registry *providers.Registry, snk *sink.Sink, log *audit.Log, logger *slog.Logger, opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = DefaultMaxWorkers
	}
	if opts.Format == "" {
		opts.Format = sink.FormatJSON
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry: registry,
		sink:     snk,
		log:      log,
		logger:   logger,
		opts:     opts,
	}
}

// Source yields the page images of one document. *rasterize.Input is
// the file-backed implementation.
type Source interface {
	DocumentID() string
	Pages(ctx context.Context) ([][]byte, error)
}

// Result is the outcome of processing one input file.
type Result struct {
	Path       string
	DocumentID string
	OutputPath string
	Document   *canonical.Document
	Err        error
}

// ProcessAll runs every input concurrently, up to MaxWorkers at a time.
// Documents are independent: one failing does not stop the others. The
// returned slice is ordered like paths.
func (r *Runner) ProcessAll(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))

	g := new(errgroup.Group)
	g.SetLimit(r.opts.MaxWorkers)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = r.Process(ctx, path)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Process runs one document through the full pipeline under the
// per-document deadline.
func (r *Runner) Process(ctx context.Context, path string) Result {
	res := Result{Path: path}
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID, "input", path)

	in, err := rasterize.Load(path)
	if err != nil {
		res.Err = err
		logger.Error("input rejected", "error", err)
		return res
	}
	res.DocumentID = in.DocumentID()
	logger = logger.With("document_id", res.DocumentID)

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	doc, outPath, err := r.process(ctx, logger, in)
	res.Document = doc
	res.OutputPath = outPath
	res.Err = err
	if err != nil {
		logger.Error("document failed", "error", err)
	} else {
		logger.Info("document complete", "output", outPath,
			"pages", len(doc.Pages), "entities", len(doc.Entities))
	}
	return res
}

func (r *Runner) process(ctx context.Context, logger *slog.Logger, in Source) (*canonical.Document, string, error) {
	ocr, err := r.registry.GetOCR(r.opts.OCRProvider)
	if err != nil {
		return nil, "", err
	}
	ner, err := r.registry.GetNER(r.opts.NERProvider)
	if err != nil {
		return nil, "", err
	}

	// OCR stage: rasterize, then extract text page by page.
	pages, err := r.runOCR(ctx, logger, in, ocr)
	if err != nil {
		r.audit(in.DocumentID(), audit.StageOCR, audit.StatusFailed, err.Error())
		return nil, "", err
	}
	r.audit(in.DocumentID(), audit.StageOCR, audit.StatusOK,
		fmt.Sprintf("%d pages via %s", len(pages), ocr.Name()))

	builder := canonical.NewBuilder(in.DocumentID())
	for _, page := range pages {
		if err := builder.AddPage(page); err != nil {
			r.audit(in.DocumentID(), audit.StageNER, audit.StatusFailed, err.Error())
			return nil, "", err
		}
	}

	// Persist the normalized OCR output before entity recognition so a
	// later NER failure still leaves the raw extraction on disk.
	if _, err := r.sink.WriteRaw(in.DocumentID(), pages); err != nil {
		logger.Warn("failed to write raw OCR results", "error", err)
	}

	// NER stage: recognize entities per page so every entity carries
	// its source page.
	entityCount, err := r.runNER(ctx, logger, builder, pages, ner)
	if err != nil {
		r.audit(in.DocumentID(), audit.StageNER, audit.StatusFailed, err.Error())
		return nil, "", err
	}

	doc, err := builder.Finalize()
	if err != nil {
		r.audit(in.DocumentID(), audit.StageNER, audit.StatusFailed, err.Error())
		return nil, "", err
	}
	r.audit(in.DocumentID(), audit.StageNER, audit.StatusOK,
		fmt.Sprintf("%d entities via %s", entityCount, ner.Name()))

	// Sink stage writes its own audit entry, success or failure.
	outPath, err := r.sink.Write(doc, r.opts.Format)
	if err != nil {
		return nil, "", err
	}
	return doc, outPath, nil
}

// runOCR rasterizes the input and extracts text from every page.
func (r *Runner) runOCR(ctx context.Context, logger *slog.Logger, in Source, ocr providers.OCRProvider) ([]canonical.PageText, error) {
	images, err := in.Pages(ctx)
	if err != nil {
		return nil, err
	}

	limiter := r.registry.Limiter(ocr.Name())
	pages := make([]canonical.PageText, 0, len(images))
	for i, image := range images {
		pageNum := i + 1

		var page *canonical.PageText
		err := r.withRetry(ctx, limiter, ocr.Name(), func() error {
			var ocrErr error
			page, ocrErr = ocr.RunOCR(ctx, image, pageNum)
			return ocrErr
		})
		if err != nil {
			return nil, fmt.Errorf("OCR page %d: %w", pageNum, err)
		}

		logger.Debug("page extracted", "page", pageNum, "chars", len(page.Text))
		pages = append(pages, *page)
	}
	return pages, nil
}

// runNER recognizes entities on each non-empty page and adds them to
// the builder, stamped with their source page.
func (r *Runner) runNER(ctx context.Context, logger *slog.Logger, builder *canonical.Builder, pages []canonical.PageText, ner providers.NERProvider) (int, error) {
	limiter := r.registry.Limiter(ner.Name())
	total := 0
	for _, page := range pages {
		if page.Text == "" {
			continue
		}

		var entities []canonical.Entity
		err := r.withRetry(ctx, limiter, ner.Name(), func() error {
			var nerErr error
			entities, nerErr = ner.RunNER(ctx, page.Text)
			return nerErr
		})
		if err != nil {
			return 0, fmt.Errorf("NER page %d: %w", page.PageNumber, err)
		}

		for i := range entities {
			entities[i].SourcePage = page.PageNumber
		}
		builder.AddEntities(entities)
		total += len(entities)
		logger.Debug("entities recognized", "page", page.PageNumber, "count", len(entities))
	}
	return total, nil
}

// withRetry runs one adapter call with rate limiting and the standard
// retry policy. Invalid-input failures never retry. When all attempts
// fail on transient errors the result is an unavailable adapter error.
func (r *Runner) withRetry(ctx context.Context, limiter *providers.RateLimiter, provider string, op func() error) error {
	err := retry.Do(
		func() error {
			if err := limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			return op()
		},
		retry.Context(ctx),
		retry.Attempts(maxRetries+1),
		retry.Delay(baseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && providers.Retryable(err)
		}),
		retry.LastErrorOnly(true),
	)
	if err == nil {
		return nil
	}
	if providers.IsKind(err, providers.InvalidInput) || ctx.Err() != nil {
		return err
	}
	var adapterErr *providers.AdapterError
	if errors.As(err, &adapterErr) {
		return err
	}
	return &providers.AdapterError{Kind: providers.Unavailable, Provider: provider, Err: err}
}

func (r *Runner) audit(documentID string, stage audit.Stage, status audit.Status, detail string) {
	entry := audit.Entry{
		DocumentID: documentID,
		Stage:      stage,
		Status:     status,
		Detail:     detail,
	}
	if err := r.log.Append(entry); err != nil {
		r.logger.Error("failed to append audit entry", "stage", stage, "error", err)
	}
}
