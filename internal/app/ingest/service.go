package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/adscanio/api/internal/app/platforms"
	"github.com/adscanio/api/internal/metrics"
	"github.com/adscanio/api/pkg/domain/content"
	"github.com/adscanio/api/pkg/domain/publisher"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
	"github.com/adscanio/api/pkg/transcript"
)

// Analyzer receives complete content items for compliance analysis.
type Analyzer interface {
	AnalyzeItem(ctx context.Context, job *scanjob.ScanJob, item *content.Item, assets []*content.MediaAsset) error
}

// TextFetcher retrieves out-of-band text payloads (subtitle files) by
// URL from the scraping platform's content store.
type TextFetcher interface {
	FetchStoredText(ctx context.Context, url string) (string, error)
}

// Result summarizes one run's ingestion.
type Result struct {
	ItemsProcessed int
	ItemErrors     int
}

// Ingester turns the raw result items of a completed run into content
// items and hands each complete one to the analyzer.
type Ingester struct {
	registry    *platforms.Registry
	media       *MediaProcessor
	contentRepo content.Repository
	textFetcher TextFetcher
	analyzer    Analyzer
	logger      *logger.Logger
}

// NewIngester creates a result ingester.
func NewIngester(
	registry *platforms.Registry,
	media *MediaProcessor,
	contentRepo content.Repository,
	textFetcher TextFetcher,
	analyzer Analyzer,
	log *logger.Logger,
) *Ingester {
	return &Ingester{
		registry:    registry,
		media:       media,
		contentRepo: contentRepo,
		textFetcher: textFetcher,
		analyzer:    analyzer,
		logger:      log.With("component", "ingester"),
	}
}

// IngestRun processes every raw result item of a run. One item's
// failure is counted and never aborts the rest of the batch.
func (s *Ingester) IngestRun(ctx context.Context, job *scanjob.ScanJob, run *scanjob.Run, channel *publisher.Channel, items []json.RawMessage) Result {
	log := s.logger.With("scan_job_id", job.ID, "run_id", run.ID, "platform", run.Platform)

	adapter, ok := s.registry.Get(run.Platform)
	if !ok {
		log.Warn("no adapter for platform, dropping all items", "items", len(items))
		return Result{ItemErrors: len(items)}
	}

	var result Result
	for _, raw := range items {
		if err := s.ingestItem(ctx, job, run, channel, adapter, raw); err != nil {
			log.WithError(err).Warn("item ingestion failed")
			metrics.ItemsIngestedTotal.WithLabelValues(run.Platform, "error").Inc()
			result.ItemErrors++
			continue
		}
		metrics.ItemsIngestedTotal.WithLabelValues(run.Platform, "success").Inc()
		result.ItemsProcessed++
	}
	return result
}

func (s *Ingester) ingestItem(ctx context.Context, job *scanjob.ScanJob, run *scanjob.Run, channel *publisher.Channel, adapter platforms.Adapter, raw json.RawMessage) error {
	parsed, err := adapter.ParseResultItem(raw)
	if err != nil {
		return fmt.Errorf("adapter parse: %w", err)
	}

	item, err := content.NewItem(job.ID, run.ID, channel.PublisherID, channel.ID, run.Platform, parsed.ExternalID, parsed.URL)
	if err != nil {
		return err
	}
	item.Title = parsed.Title
	item.Caption = parsed.Caption
	item.Raw = raw
	item.Transcript = s.resolveTranscript(ctx, parsed)

	if err := s.contentRepo.Create(ctx, item); err != nil {
		return fmt.Errorf("persist content item: %w", err)
	}

	assets, allStored := s.processMedia(ctx, item.ID, parsed.Media)

	// A single failed media download suppresses analysis for the item;
	// evaluating against incomplete visual context is worse than
	// skipping.
	if !allStored {
		s.logger.Warn("media incomplete, skipping analysis",
			"content_item_id", item.ID, "stored", len(assets), "referenced", len(parsed.Media))
		return nil
	}

	if job.BypassAI {
		return nil
	}

	if err := s.analyzer.AnalyzeItem(ctx, job, item, assets); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}
	return nil
}

// resolveTranscript parses the subtitle payload when one is available,
// fetching it from the content store first if only a reference URL was
// delivered. Parse failures degrade to an empty transcript.
func (s *Ingester) resolveTranscript(ctx context.Context, parsed *platforms.ResultItem) []transcript.Segment {
	text := parsed.TranscriptText
	if text == "" && parsed.TranscriptURL != "" {
		fetched, err := s.textFetcher.FetchStoredText(ctx, parsed.TranscriptURL)
		if err != nil {
			s.logger.WithError(err).Warn("transcript fetch failed", "url", parsed.TranscriptURL)
			return nil
		}
		text = fetched
	}
	if text == "" {
		return nil
	}
	return transcript.Parse(text)
}

// processMedia stores all referenced media concurrently and reports
// whether every reference was stored.
func (s *Ingester) processMedia(ctx context.Context, itemID shared.ID, refs []platforms.MediaRef) ([]*content.MediaAsset, bool) {
	if len(refs) == 0 {
		return nil, true
	}

	var (
		mu     sync.Mutex
		assets []*content.MediaAsset
		failed bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			asset := s.media.Process(gctx, itemID, ref)
			mu.Lock()
			defer mu.Unlock()
			if asset == nil {
				failed = true
			} else {
				assets = append(assets, asset)
			}
			return nil
		})
	}
	_ = g.Wait()

	return assets, !failed
}
