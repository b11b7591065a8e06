package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/adscanio/api/internal/infra/llm"
	"github.com/adscanio/api/internal/metrics"
	"github.com/adscanio/api/pkg/domain/content"
	"github.com/adscanio/api/pkg/domain/flag"
	"github.com/adscanio/api/pkg/domain/rule"
	"github.com/adscanio/api/pkg/domain/scanjob"
	"github.com/adscanio/api/pkg/domain/shared"
	"github.com/adscanio/api/pkg/logger"
)

// MediaStore retrieves stored media bytes for media-modality analysis.
type MediaStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Pipeline runs the two-pass compliance analysis over one content
// item: an advertiser-global pass and one pass per product linked to
// the owning scan job. Extraction runs once per modality and is shared
// across passes; identical rulings across passes are deduplicated.
type Pipeline struct {
	resolver  *RuleResolver
	extractor *Extractor
	evaluator *Evaluator
	flagRepo  flag.Repository
	store     MediaStore
	logger    *logger.Logger
}

// NewPipeline creates a compliance analysis pipeline.
func NewPipeline(
	resolver *RuleResolver,
	extractor *Extractor,
	evaluator *Evaluator,
	flagRepo flag.Repository,
	store MediaStore,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		resolver:  resolver,
		extractor: extractor,
		evaluator: evaluator,
		flagRepo:  flagRepo,
		store:     store,
		logger:    log.With("component", "analysis_pipeline"),
	}
}

// pass is one rule-resolution scope the item is evaluated under.
type pass struct {
	productID *shared.ID
	rules     []*rule.Rule
}

// modality is one analyzable facet of a content item with its
// extracted mentions.
type modality struct {
	kind     flag.Modality
	source   string
	media    *llm.Part
	mentions []Mention
}

// AnalyzeItem runs all passes over all modalities of one item. AI call
// failures degrade to "no output" for that context and never abort the
// item.
func (p *Pipeline) AnalyzeItem(ctx context.Context, job *scanjob.ScanJob, item *content.Item, assets []*content.MediaAsset) error {
	log := p.logger.With("content_item_id", item.ID, "scan_job_id", job.ID)

	passes, err := p.resolvePasses(ctx, job, item.Platform)
	if err != nil {
		return err
	}
	if len(passes) == 0 {
		log.Debug("no applicable rules, skipping analysis")
		return nil
	}

	modalities := p.extractModalities(ctx, item, assets, log)

	// Identical rulings found in multiple passes collapse to one flag;
	// the first pass to produce a span owns it.
	seen := make(map[string]bool)

	for _, ps := range passes {
		for _, mod := range modalities {
			for _, mention := range mod.mentions {
				p.evaluateMention(ctx, job, item, ps, mod, mention, seen, log)
			}
		}
	}
	return nil
}

// resolvePasses builds the advertiser-global pass plus one pass per
// linked product, dropping passes with no applicable rules.
func (p *Pipeline) resolvePasses(ctx context.Context, job *scanjob.ScanJob, platform string) ([]pass, error) {
	var passes []pass

	global, err := p.resolver.GlobalRules(ctx, job.AdvertiserID, platform)
	if err != nil {
		return nil, fmt.Errorf("resolve global rules: %w", err)
	}
	if len(global) > 0 {
		passes = append(passes, pass{rules: global})
	}

	for _, productID := range job.ProductIDs {
		productID := productID
		rules, err := p.resolver.ProductRules(ctx, job.AdvertiserID, productID, platform)
		if err != nil {
			return nil, fmt.Errorf("resolve product rules: %w", err)
		}
		if len(rules) > 0 {
			passes = append(passes, pass{productID: &productID, rules: rules})
		}
	}
	return passes, nil
}

// extractModalities runs extraction once per present modality.
// Extraction failures leave that modality without mentions.
func (p *Pipeline) extractModalities(ctx context.Context, item *content.Item, assets []*content.MediaAsset, log *logger.Logger) []modality {
	var modalities []modality

	if text := buildTextDocument(item); text != "" {
		mentions, err := p.extractor.ExtractText(ctx, text, "text")
		if err != nil {
			log.WithError(err).Warn("text extraction failed")
		} else if len(mentions) > 0 {
			modalities = append(modalities, modality{kind: flag.ModalityText, source: "text", mentions: mentions})
		}
	}

	imageIdx, videoIdx := 0, 0
	for _, asset := range assets {
		var kind flag.Modality
		var source string
		switch asset.Type {
		case content.MediaTypeImage:
			kind, source = flag.ModalityImage, fmt.Sprintf("image:%d", imageIdx)
			imageIdx++
		case content.MediaTypeVideo:
			kind, source = flag.ModalityVideo, fmt.Sprintf("video:%d", videoIdx)
			videoIdx++
		default:
			continue
		}

		data, err := p.store.Download(ctx, asset.StoragePath)
		if err != nil {
			log.WithError(err).Warn("media download for analysis failed", "path", asset.StoragePath)
			continue
		}
		part := llm.MediaPart(asset.MimeType, data)

		mentions, err := p.extractor.ExtractMedia(ctx, asset.MimeType, data, source)
		if err != nil {
			log.WithError(err).Warn("media extraction failed", "source", source)
			continue
		}
		if len(mentions) > 0 {
			modalities = append(modalities, modality{kind: kind, source: source, media: &part, mentions: mentions})
		}
	}

	return modalities
}

// evaluateMention evaluates one mention under one pass and persists
// the accepted rulings.
func (p *Pipeline) evaluateMention(ctx context.Context, job *scanjob.ScanJob, item *content.Item, ps pass, mod modality, mention Mention, seen map[string]bool, log *logger.Logger) {
	evaluation, err := p.evaluator.Evaluate(ctx, mention, ps.rules, mod.media)
	if err != nil {
		// Treated as no output for this context. Silent under-detection
		// is an accepted risk here; the error is still surfaced in logs.
		log.WithError(err).Warn("evaluation failed", "source", mod.source)
		return
	}
	if evaluation.RawOutput == "" {
		return
	}

	ruleIndex := make(map[shared.ID]*rule.Rule, len(ps.rules))
	for _, rl := range ps.rules {
		ruleIndex[rl.ID] = rl
	}

	for _, parsed := range parseFlagBlocks(evaluation.RawOutput, log) {
		rl, ok := ruleIndex[parsed.RuleID]
		if !ok {
			log.Warn("dropping ruling for rule outside the pass", "rule_id", parsed.RuleID)
			continue
		}

		dedupeKey := fmt.Sprintf("%s|%s|%s|%s", rl.ID, mod.kind, parsed.Ruling, parsed.ContextText)
		if seen[dedupeKey] {
			continue
		}
		seen[dedupeKey] = true

		if err := p.persistFlag(ctx, job, item, ps, mod, rl, parsed, evaluation); err != nil {
			log.WithError(err).Error("failed to persist flag", "rule_id", rl.ID)
		}
	}
}

func (p *Pipeline) persistFlag(ctx context.Context, job *scanjob.ScanJob, item *content.Item, ps pass, mod modality, rl *rule.Rule, parsed ParsedFlag, evaluation *Evaluation) error {
	f, err := flag.New(item.ID, job.ID, rl.ID, rl.Type, rl.Version, mod.kind, parsed.Ruling)
	if err != nil {
		return err
	}
	f.ProductID = ps.productID
	f.ContextText = parsed.ContextText
	f.SourceLocation = mod.source
	f.Confidence = parsed.Confidence
	f.Reasoning = parsed.Reasoning
	f.TranscriptStartMs = parsed.StartMs
	f.TranscriptEndMs = parsed.EndMs
	f.LibrarianConsulted = evaluation.LibrarianConsulted
	f.LibrarianExampleCount = evaluation.ExampleCount

	// The per-rule bypass threshold finalizes high-confidence rulings at
	// creation time, independent of the organization's auto-disposition
	// policy.
	f.ApplyBypass(rl.BypassThreshold)

	if err := p.flagRepo.Create(ctx, f); err != nil {
		return err
	}

	metrics.FlagsCreatedTotal.WithLabelValues(string(f.Ruling), string(f.Status)).Inc()
	return nil
}

// buildTextDocument combines the textual facets of an item into one
// extraction input. Transcript lines carry their time range so rulings
// can point back into the video.
func buildTextDocument(item *content.Item) string {
	var b strings.Builder
	if item.Title != "" {
		b.WriteString("Title: " + item.Title + "\n")
	}
	if item.Caption != "" {
		b.WriteString("Caption: " + item.Caption + "\n")
	}
	if item.HasTranscript() {
		b.WriteString("Transcript:\n")
		for _, seg := range item.Transcript {
			fmt.Fprintf(&b, "[%d-%d] %s\n", seg.StartMs, seg.EndMs, seg.Text)
		}
	}
	return strings.TrimSpace(b.String())
}
