// Package ingest runs submissions end to end: discover the files, stage
// them by content fingerprint, parse and canonicalize them over a worker
// pool, and refresh the derived verdicts for every asset-day the batch
// touched.
//
// Staging is idempotent. A file whose fingerprint already parsed
// successfully is skipped unless force-reparse is set, so resubmitting an
// archive only pays for what actually changed.
package ingest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fiscalflow/fiscalflow/internal/canon"
	"github.com/fiscalflow/fiscalflow/internal/classify"
	"github.com/fiscalflow/fiscalflow/internal/config"
	"github.com/fiscalflow/fiscalflow/internal/crossval"
	"github.com/fiscalflow/fiscalflow/internal/domain"
	applog "github.com/fiscalflow/fiscalflow/internal/log"
	"github.com/fiscalflow/fiscalflow/internal/metrics"
	"github.com/fiscalflow/fiscalflow/internal/parse"
	"github.com/fiscalflow/fiscalflow/internal/parse/archive"
	"github.com/fiscalflow/fiscalflow/internal/parse/mpfm"
	"github.com/fiscalflow/fiscalflow/internal/parse/regxml"
	"github.com/fiscalflow/fiscalflow/internal/parse/sheet"
	"github.com/fiscalflow/fiscalflow/internal/persistence"
)

// Reconciler recomputes the hourly-vs-daily verdicts of one asset-day.
type Reconciler interface {
	Reconcile(ctx context.Context, assetTag, businessDate string) ([]persistence.ReconciliationVerdict, error)
}

// CrossValidator reclassifies the cross-source observations of one asset-day.
type CrossValidator interface {
	ValidatePair(ctx context.Context, assetTag, businessDate string) ([]persistence.CrossVerdict, crossval.PairOutcome, error)
}

// Pipeline is the ingestion service. One Pipeline serves many batches; all
// state lives in the repository.
type Pipeline struct {
	repo       *persistence.Repository
	cfg        *config.Config
	metrics    *metrics.MetricsRegistry
	reconciler Reconciler
	validator  CrossValidator

	sheetParser  parse.Parser
	mpfmParser   parse.Parser
	regxmlParser parse.Parser

	now     func() time.Time
	backoff time.Duration
}

// New builds the ingestion pipeline. Reconciler and validator may be nil;
// the batch then lands facts without refreshing derived verdicts.
func New(repo *persistence.Repository, cfg *config.Config, reg *metrics.MetricsRegistry, rec Reconciler, val CrossValidator) *Pipeline {
	return &Pipeline{
		repo:         repo,
		cfg:          cfg,
		metrics:      reg,
		reconciler:   rec,
		validator:    val,
		sheetParser:  sheet.New(),
		mpfmParser:   mpfm.New(),
		regxmlParser: regxml.New(),
		now:          time.Now,
		backoff:      100 * time.Millisecond,
	}
}

// Run ingests one submission path: a single report file, a directory of
// reports, or a zip archive. The returned summary mirrors the JSON artifact
// left in the export folder.
func (p *Pipeline) Run(ctx context.Context, path string) (*BatchSummary, error) {
	disc, cleanup, err := Discover(path, archive.Limits{
		MaxUncompressedBytes: p.cfg.Archive.MaxUncompressedBytes,
		MaxEntries:           p.cfg.Archive.MaxEntries,
	})
	if err != nil {
		return nil, err
	}
	defer cleanup()

	prior, err := p.repo.Batches.GetByFingerprint(ctx, disc.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to check submission fingerprint: %w", err)
	}
	if prior != nil {
		log.Warn().
			Str("batch_id", prior.ID).
			Str("name", disc.Name).
			Msg("Submission content seen before, already parsed files will be skipped")
	}

	started := p.now()
	batch := persistence.Batch{
		ID:          uuid.NewString(),
		Name:        disc.Name,
		Fingerprint: disc.Fingerprint,
		FileCount:   len(disc.Items),
		Status:      domain.BatchProcessing,
		StartedAt:   started,
	}
	if err := p.repo.Batches.Create(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	log.Info().
		Str("batch_id", batch.ID).
		Str("name", batch.Name).
		Int("files", len(disc.Items)).
		Int("workers", p.cfg.EffectiveWorkers()).
		Msg("Ingestion batch started")

	results := p.parseAll(ctx, batch.ID, disc.Items)
	summary := p.summarize(batch, disc, results)

	p.writeManifests(ctx, batch.ID, results, summary)
	p.recompute(ctx, touchedPairs(results), summary)

	completed := p.now()
	status := batchStatus(ctx, results)
	finishCtx := ctx
	if ctx.Err() != nil {
		// The terminal status still has to land after a cancellation.
		finishCtx = context.Background()
	}
	if err := p.repo.Batches.Finish(finishCtx, batch.ID, status, completed); err != nil {
		log.Error().Err(err).Str("batch_id", batch.ID).Msg("Batch finalization write failed")
	}

	summary.Status = status
	summary.CompletedAt = completed
	summary.DurationSeconds = completed.Sub(started).Seconds()
	p.metrics.RecordBatch(string(status), completed.Sub(started))

	if snap, err := p.metrics.Snapshot(); err == nil {
		summary.Metrics = snap
	}
	if p.cfg.ExportFolder != "" {
		artifact, err := writeSummary(p.cfg.ExportFolder, summary)
		if err != nil {
			log.Error().Err(err).Str("batch_id", batch.ID).Msg("Batch summary artifact write failed")
		} else {
			summary.ArtifactPath = artifact
		}
	}

	log.Info().
		Str("batch_id", batch.ID).
		Str("status", string(status)).
		Int("parsed", summary.FilesParsed).
		Int("partial", summary.FilesPartial).
		Int("failed", summary.FilesFailed).
		Int("skipped", summary.FilesSkipped).
		Int("records", summary.RecordsStaged).
		Float64("duration_seconds", summary.DurationSeconds).
		Msg("Ingestion batch finished")
	return summary, nil
}

// parseAll fans the files out over a bounded worker pool. Workers pull from
// a shared channel; cancellation stops the feed and whatever is already
// queued drains normally.
func (p *Pipeline) parseAll(ctx context.Context, batchID string, items []Item) []fileResult {
	workers := p.cfg.EffectiveWorkers()
	if workers > len(items) {
		workers = len(items)
	}

	prog := applog.NewProgress("parse", len(items))
	tasks := make(chan Item)
	results := make(chan fileResult, len(items))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range tasks {
				r := p.processFile(ctx, batchID, item)
				prog.Step(r.status != domain.ParseFailed)
				results <- r
			}
		}()
	}

	sent := 0
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		select {
		case tasks <- item:
			sent++
		case <-ctx.Done():
		}
	}
	close(tasks)
	wg.Wait()
	close(results)

	out := make([]fileResult, 0, len(items))
	for r := range results {
		out = append(out, r)
	}
	// Files the cancellation kept out of the pool still count as failed in
	// the batch summary. They were never staged, so a rerun picks them up.
	for _, item := range items[sent:] {
		out = append(out, fileResult{
			item:   item,
			shape:  domain.ShapeUnknown,
			status: domain.ParseFailed,
			errors: []string{"ingestion cancelled before parse"},
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].item.Name < out[j].item.Name })
	return out
}

// fileResult is the in-memory outcome of one staged file.
type fileResult struct {
	item    Item
	shape   domain.Shape
	status  domain.ParseStatus
	skipped bool
	records int
	errors  []string
	pairs   []persistence.AssetDate
	deltas  map[persistence.AssetDate]manifestDelta
}

// processFile runs one file through stage, parse, canonicalize and persist.
// Failures are written back to the staged row; the returned result only
// feeds the batch summary and manifests.
func (p *Pipeline) processFile(ctx context.Context, batchID string, item Item) fileResult {
	shape := classify.Detect(item.Name, snifferFor(item.Path))
	res := fileResult{item: item, shape: shape}

	timer := p.metrics.StartParseTimer(string(shape))

	raw := persistence.RawFile{
		Fingerprint: item.Fingerprint,
		Filename:    item.Name,
		SizeBytes:   item.SizeBytes,
		Shape:       shape,
		ParseStatus: domain.ParsePending,
		SourcePath:  item.Origin,
		BatchID:     &batchID,
		StagedAt:    p.now(),
	}
	var claimed bool
	var existing *persistence.RawFile
	err := p.retry(ctx, func() error {
		var err error
		claimed, existing, err = p.repo.RawFiles.Claim(ctx, raw)
		return err
	})
	if err != nil {
		res.status = domain.ParseFailed
		res.errors = []string{fmt.Sprintf("stage file: %v", err)}
		timer.Stop(string(res.status))
		log.Error().Err(err).Str("file", item.Name).Msg("Staging failed")
		return res
	}
	if !claimed && existing != nil && existing.ParseStatus == domain.ParseSuccess && !p.cfg.ForceReparse {
		res.skipped = true
		res.status = existing.ParseStatus
		res.records = existing.RecordCount
		timer.Stop("SKIPPED")
		log.Debug().
			Str("file", item.Name).
			Str("fingerprint", shortFingerprint(item.Fingerprint)).
			Msg("Already ingested, skipping")
		return res
	}

	parser := p.parserFor(shape)
	if parser == nil {
		res.status = domain.ParseFailed
		res.errors = []string{fmt.Sprintf("unrecognized report shape for %s", item.Name)}
		p.markParsed(ctx, item.Fingerprint, res.status, 0, nil, res.errors)
		timer.Stop(string(res.status))
		log.Warn().Str("file", item.Name).Msg("Unrecognized report shape")
		return res
	}

	pctx, cancel := context.WithTimeout(ctx, p.cfg.ParseTimeout())
	defer cancel()
	outcome, err := parser.Parse(pctx, parse.File{Path: item.Path, Name: item.Name, Shape: shape})
	if err != nil {
		res.status = domain.ParseFailed
		res.errors = []string{err.Error()}
		p.markParsed(ctx, item.Fingerprint, res.status, 0, outcome.Warnings, res.errors)
		timer.Stop(string(res.status))
		log.Warn().Err(err).Str("file", item.Name).Str("shape", string(shape)).Msg("Parse failed")
		return res
	}

	canonical := canon.Canonicalize(canon.Input{
		Fingerprint: item.Fingerprint,
		Filename:    item.Name,
		Shape:       shape,
		Records:     outcome.Records,
	})
	warnings := append(append([]string{}, outcome.Warnings...), canonical.Warnings...)

	if outcome.Success {
		persistWarnings, err := p.persist(ctx, item.Fingerprint, canonical)
		if err != nil {
			res.status = domain.ParseFailed
			res.errors = append(outcome.Errors, fmt.Sprintf("store canonical rows: %v", err))
			p.markParsed(ctx, item.Fingerprint, res.status, len(outcome.Records), warnings, res.errors)
			timer.Stop(string(res.status))
			log.Error().Err(err).Str("file", item.Name).Msg("Canonical store failed")
			return res
		}
		warnings = append(warnings, persistWarnings...)
		res.pairs = canonical.AssetDates()
		res.deltas = manifestDeltas(canonical)
	}

	res.records = len(outcome.Records)
	res.errors = outcome.Errors
	switch {
	case !outcome.Success:
		res.status = domain.ParseFailed
	case len(warnings) > 0:
		res.status = domain.ParsePartial
	default:
		res.status = domain.ParseSuccess
	}
	p.markParsed(ctx, item.Fingerprint, res.status, res.records, warnings, res.errors)
	p.metrics.RecordStaged(string(shape), res.records)
	timer.Stop(string(res.status))
	return res
}

// persist lands the canonical rows of one file. Every store call replaces
// by natural key, so the whole group is safe to retry as a unit.
func (p *Pipeline) persist(ctx context.Context, fingerprint string, res *canon.Result) ([]string, error) {
	var warnings []string
	err := p.retry(ctx, func() error {
		warnings = warnings[:0]
		for _, a := range res.Assets {
			stored, err := p.repo.Assets.Ensure(ctx, a)
			if err != nil {
				return fmt.Errorf("ensure asset %s: %w", a.Tag, err)
			}
			if msg := canon.DimensionMismatch(stored, a); msg != "" {
				warnings = append(warnings, msg)
			}
		}
		if err := p.repo.Facts.UpsertProductionBatch(ctx, res.Facts); err != nil {
			return fmt.Errorf("store production facts: %w", err)
		}
		for _, c := range res.Calibrations {
			if err := p.repo.Facts.UpsertCalibration(ctx, c); err != nil {
				return fmt.Errorf("store calibration %s: %w", c.CalibrationNo, err)
			}
		}
		if len(res.Observations) > 0 {
			if err := p.repo.Observations.UpsertBatch(ctx, res.Observations); err != nil {
				return fmt.Errorf("store observations: %w", err)
			}
		}
		if len(res.GasBalance) > 0 {
			if err := p.repo.GasBalance.ReplaceForFile(ctx, fingerprint, res.GasBalance); err != nil {
				return fmt.Errorf("store gas balance lines: %w", err)
			}
		}
		for _, b := range res.Regulatory {
			if err := p.repo.Regulatory.ReplaceForFile(ctx, b); err != nil {
				return fmt.Errorf("store regulatory bundle %s: %w", b.AssetTag, err)
			}
		}
		return nil
	})
	return warnings, err
}

// markParsed writes the parse outcome back to the staged row. The row is
// bookkeeping; a failed write-back is logged but never fails the file.
func (p *Pipeline) markParsed(ctx context.Context, fingerprint string, status domain.ParseStatus, records int, warnings, errs []string) {
	err := p.retry(ctx, func() error {
		return p.repo.RawFiles.MarkParsed(ctx, fingerprint, status, records, warnings, errs, p.now())
	})
	if err != nil {
		log.Error().Err(err).Str("fingerprint", shortFingerprint(fingerprint)).Msg("Parse status write-back failed")
	}
}

// recompute refreshes the derived verdicts of every asset-day the batch
// touched. Pairs arrive sorted by asset then date; the streak arithmetic
// needs each asset's dates in ascending order.
func (p *Pipeline) recompute(ctx context.Context, pairs []persistence.AssetDate, summary *BatchSummary) {
	groups := persistence.GroupByAsset(pairs)

	workers := p.cfg.EffectiveWorkers()
	if workers > len(groups) {
		workers = len(groups)
	}

	var mu sync.Mutex
	tasks := make(chan []persistence.AssetDate)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// One asset's days stay on one worker in date order, which
			// the streak arithmetic depends on.
			for group := range tasks {
				for _, pair := range group {
					if ctx.Err() != nil {
						break
					}
					p.recomputePair(ctx, pair, summary, &mu)
				}
			}
		}()
	}

	for _, group := range groups {
		select {
		case <-ctx.Done():
		case tasks <- group:
		}
	}
	close(tasks)
	wg.Wait()
}

// recomputePair reruns both derived layers for one asset-day. Failures are
// logged, never fatal: the facts are already durable and a later
// reconcile or cross-validate run converges.
func (p *Pipeline) recomputePair(ctx context.Context, pair persistence.AssetDate, summary *BatchSummary, mu *sync.Mutex) {
	if p.reconciler != nil {
		verdicts, err := p.reconciler.Reconcile(ctx, pair.AssetTag, pair.BusinessDate)
		if err != nil {
			log.Error().Err(err).
				Str("asset", pair.AssetTag).
				Str("business_date", pair.BusinessDate).
				Msg("Reconciliation failed")
		} else {
			mu.Lock()
			summary.ReconcileVerdicts += len(verdicts)
			mu.Unlock()
		}
	}
	if p.validator != nil {
		verdicts, outcome, err := p.validator.ValidatePair(ctx, pair.AssetTag, pair.BusinessDate)
		if err != nil {
			log.Error().Err(err).
				Str("asset", pair.AssetTag).
				Str("business_date", pair.BusinessDate).
				Msg("Cross-validation failed")
		} else {
			mu.Lock()
			summary.CrossVerdicts += len(verdicts)
			summary.StreaksResolved += outcome.Resolved
			summary.Escalations += outcome.Escalated
			mu.Unlock()
		}
	}
}

func (p *Pipeline) writeManifests(ctx context.Context, batchID string, results []fileResult, summary *BatchSummary) {
	manifests := buildManifests(batchID, results)
	for _, m := range manifests {
		if err := p.repo.Manifests.Upsert(ctx, m); err != nil {
			log.Error().Err(err).
				Str("asset", m.AssetTag).
				Str("business_date", m.BusinessDate).
				Msg("Manifest write failed")
		}
	}
	summary.AssetDays = len(manifests)
}

func (p *Pipeline) summarize(batch persistence.Batch, disc *Discovery, results []fileResult) *BatchSummary {
	s := &BatchSummary{
		BatchID:         batch.ID,
		Name:            batch.Name,
		Fingerprint:     batch.Fingerprint,
		StartedAt:       batch.StartedAt,
		FilesDiscovered: len(disc.Items),
		SkippedInputs:   disc.Skipped,
	}
	for _, r := range results {
		if r.skipped {
			s.FilesSkipped++
			continue
		}
		switch r.status {
		case domain.ParseSuccess:
			s.FilesParsed++
		case domain.ParsePartial:
			s.FilesPartial++
		case domain.ParseFailed:
			s.FilesFailed++
			if len(s.Failures) < maxFailureExamples {
				s.Failures = append(s.Failures, FileFailure{Filename: r.item.Name, Errors: r.errors})
			}
		}
		s.RecordsStaged += r.records
	}
	return s
}

// maxFailureExamples caps the example failures carried in the summary; the
// full detail stays on the staged rows.
const maxFailureExamples = 5

func (p *Pipeline) parserFor(shape domain.Shape) parse.Parser {
	switch {
	case shape.IsSpreadsheet():
		return p.sheetParser
	case shape.IsMPFM():
		return p.mpfmParser
	case shape.IsXML():
		return p.regxmlParser
	}
	return nil
}

// retry runs op up to three times with doubling backoff. The parallel pool
// contends on the store; a short retry clears transient lock errors without
// failing the file.
func (p *Pipeline) retry(ctx context.Context, op func() error) error {
	backoff := p.backoff
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}

// batchStatus derives the terminal batch state. Cancellation wins; a batch
// where no file survived parsing has failed as a whole; everything else
// completed, with the per-file statuses carrying the detail.
func batchStatus(ctx context.Context, results []fileResult) domain.BatchStatus {
	if ctx.Err() != nil {
		return domain.BatchCancelled
	}
	failed := 0
	for _, r := range results {
		if r.status == domain.ParseFailed {
			failed++
		}
	}
	if len(results) > 0 && failed == len(results) {
		return domain.BatchFailed
	}
	return domain.BatchCompleted
}

func touchedPairs(results []fileResult) []persistence.AssetDate {
	seen := map[persistence.AssetDate]bool{}
	for _, r := range results {
		for _, ad := range r.pairs {
			seen[ad] = true
		}
	}
	out := make([]persistence.AssetDate, 0, len(seen))
	for ad := range seen {
		out = append(out, ad)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssetTag != out[j].AssetTag {
			return out[i].AssetTag < out[j].AssetTag
		}
		return out[i].BusinessDate < out[j].BusinessDate
	})
	return out
}

// snifferFor picks the content sampler for a file. Filename rules answer
// first in classify.Detect; the sampler only runs when they are silent.
func snifferFor(path string) classify.SniffFunc {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt":
		return func() (string, error) { return mpfm.FirstPage(path) }
	case ".xlsx":
		return func() (string, error) { return sheet.Sample(path) }
	default:
		return func() (string, error) { return headSample(path) }
	}
}

// headSample reads the leading bytes of a file as text.
func headSample(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s for sniffing: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 4096)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("sniff %s: %w", path, err)
	}
	return string(buf[:n]), nil
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
