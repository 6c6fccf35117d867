package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"clinical-dss-be/internal/config"
	"clinical-dss-be/internal/constant"
	"clinical-dss-be/internal/dto"
	"clinical-dss-be/internal/entity"
	"clinical-dss-be/internal/evidence"
	"clinical-dss-be/internal/guard"
	"clinical-dss-be/internal/pipeline/synth"
	"clinical-dss-be/internal/pkg/apperr"
	"clinical-dss-be/internal/pkg/logger"
	"clinical-dss-be/internal/repository/contract"
	"clinical-dss-be/pkg/clinical"
	"clinical-dss-be/pkg/embedding"
	"clinical-dss-be/pkg/events"
	"clinical-dss-be/pkg/literature"
)

// EventsTopic is the in-process topic carrying run events to the broadcaster.
const EventsTopic = "pipeline.events"

// MetaSessionId carries the owning session through message metadata so the
// payload never exposes it to clients.
const MetaSessionId = "session_id"

// AuditPublisher receives terminal run events for the audit trail.
type AuditPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// AlertSender notifies an operator about internal failures.
type AlertSender interface {
	SendOperatorAlert(runId, stage, detail string) error
}

// Orchestrator drives one clinical query through the stage machine. Each
// run executes on its own goroutine; all cross-run shared state lives in
// the cache and the guards, which are safe for concurrent use.
type Orchestrator struct {
	log       logger.ILogger
	cfg       config.PipelineConfig
	sanitizer *Sanitizer
	cache     *evidence.Cache

	extractor clinical.Extractor
	searcher  literature.Searcher
	embedder  embedding.Provider
	papers    contract.EvidencePaperRepository
	guards    map[string]*guard.Guard

	publisher message.Publisher
	audit     AuditPublisher
	alerts    AlertSender

	now func() time.Time
}

func NewOrchestrator(
	log logger.ILogger,
	cfg config.PipelineConfig,
	cache *evidence.Cache,
	extractor clinical.Extractor,
	searcher literature.Searcher,
	embedder embedding.Provider,
	papers contract.EvidencePaperRepository,
	guards map[string]*guard.Guard,
	publisher message.Publisher,
	audit AuditPublisher,
	alerts AlertSender,
) *Orchestrator {
	return &Orchestrator{
		log:       log,
		cfg:       cfg,
		sanitizer: NewSanitizer(cfg.MinQueryLength, cfg.MaxQueryLength),
		cache:     cache,
		extractor: extractor,
		searcher:  searcher,
		embedder:  embedder,
		papers:    papers,
		guards:    guards,
		publisher: publisher,
		audit:     audit,
		alerts:    alerts,
		now:       time.Now,
	}
}

type embeddingResult struct {
	QueryVector []float32
	Documents   []entity.EvidenceDocument
}

// Execute walks the run through every stage to a terminal status. It never
// returns an error: failures become the run's terminal state and are
// reported to the client through the event stream.
func (o *Orchestrator) Execute(ctx context.Context, run *entity.PipelineRun) {
	o.log.Info("pipeline", "Run started", map[string]interface{}{
		"run_id":     run.Id.String(),
		"session_id": run.SessionId,
	})

	// Received is bookkeeping only.
	if !o.localStage(run, constant.StageReceived, func() (string, error) {
		return constant.StageOutcomeOK, nil
	}) {
		return
	}

	if !o.localStage(run, constant.StageSanitizing, func() (string, error) {
		sanitized, err := o.sanitizer.Sanitize(run.Query.RawText)
		if err != nil {
			return constant.StageOutcomeFailed, err
		}
		run.Query.SanitizedText = sanitized
		return constant.StageOutcomeOK, nil
	}) {
		return
	}

	var extraction *clinical.Extraction
	if !o.externalStage(ctx, run, constant.StageEntityExtraction, constant.CollaboratorEntityExtraction,
		func(ctx context.Context) (interface{}, error) {
			return o.extractor.Extract(ctx, run.Query.SanitizedText)
		},
		func(v interface{}) { extraction = v.(*clinical.Extraction) },
	) {
		return
	}

	var retrieved []entity.EvidenceDocument
	if !o.externalStage(ctx, run, constant.StageLiteratureRetrieval, constant.CollaboratorLiterature,
		func(ctx context.Context) (interface{}, error) {
			return o.searcher.Search(ctx, extraction.SearchTerms, o.cfg.MaxSearchResults, o.cfg.LiteratureDaysBack)
		},
		func(v interface{}) { retrieved = v.([]entity.EvidenceDocument) },
	) {
		return
	}

	var embedded embeddingResult
	if !o.externalStage(ctx, run, constant.StageEmbedding, constant.CollaboratorEmbedding,
		func(ctx context.Context) (interface{}, error) {
			return o.embedDocuments(ctx, extraction.EnhancedQuery, retrieved)
		},
		func(v interface{}) { embedded = v.(embeddingResult) },
	) {
		return
	}

	var similar []entity.EvidenceDocument
	if !o.externalStage(ctx, run, constant.StageSimilaritySearch, constant.CollaboratorVectorStore,
		func(ctx context.Context) (interface{}, error) {
			return o.similaritySearch(ctx, embedded)
		},
		func(v interface{}) { similar = v.([]entity.EvidenceDocument) },
	) {
		return
	}

	var ranked []entity.EvidenceDocument
	if !o.localStage(run, constant.StageEvidenceRanking, func() (string, error) {
		ranked = RankEvidence(similar, o.now())
		if len(ranked) == 0 {
			return constant.StageOutcomeLowConfidence, nil
		}
		return constant.StageOutcomeOK, nil
	}) {
		return
	}

	var recommendation *entity.Recommendation
	if !o.localStage(run, constant.StageRecommendationSynthesis, func() (string, error) {
		recommendation = synth.Synthesize(ranked, run.Query.PatientContext, run.Query.SanitizedText, o.now())
		if recommendation == nil {
			return constant.StageOutcomeFailed, apperr.New(apperr.KindInternal, "recommendation synthesis produced no result")
		}
		return constant.StageOutcomeOK, nil
	}) {
		return
	}

	run.SetTerminal(constant.RunStatusCompleted)
	o.publishResponse(run, recommendation, ranked)
	o.auditEvent(ctx, events.PipelineCompleted(run.Id.String(), run.SessionId, recommendation.Confidence, recommendation.EvidenceLevel))

	o.log.Info("pipeline", "Run completed", map[string]interface{}{
		"run_id":         run.Id.String(),
		"confidence":     recommendation.Confidence,
		"evidence_level": recommendation.EvidenceLevel,
	})
}

// localStage runs a stage with no external calls. Returns false when the
// run reached a terminal status and execution must stop.
func (o *Orchestrator) localStage(run *entity.PipelineRun, stage string, body func() (string, error)) bool {
	if o.checkCancelled(run, stage) {
		return false
	}

	run.EnterStage(stage, o.now())
	outcome, err := body()
	run.ExitStage(outcome, o.now())

	if err != nil {
		o.failRun(run, stage, err)
		return false
	}

	o.publishStep(run, stage, outcome)
	return true
}

// externalStage wraps one collaborator call with fingerprint caching,
// guard admission and the retry budget. The cache is consulted before the
// guard so a hit never spends rate-limit tokens.
func (o *Orchestrator) externalStage(
	ctx context.Context,
	run *entity.PipelineRun,
	stage string,
	collaborator string,
	call func(ctx context.Context) (interface{}, error),
	assign func(v interface{}),
) bool {
	if o.checkCancelled(run, stage) {
		return false
	}

	run.EnterStage(stage, o.now())

	fp := Fingerprint(stage, run.Query.SanitizedText, run.Query.PatientContext)
	value, fromCache, err := o.cache.GetOrCompute(ctx, fp, func(ctx context.Context) (interface{}, error) {
		return o.callWithRetry(ctx, run, collaborator, call)
	})

	if err != nil {
		outcome := constant.StageOutcomeFailed
		if apperr.KindOf(err) == apperr.KindCancelled {
			if run.CancelRequested() {
				outcome = constant.StageOutcomeCancelled
			} else {
				// Another run cancelled the shared flight this one joined.
				err = apperr.Wrap(apperr.KindUpstreamTransient, "shared upstream call aborted", err)
			}
		}
		run.ExitStage(outcome, o.now())
		o.failRun(run, stage, err)
		return false
	}

	outcome := constant.StageOutcomeOK
	if fromCache {
		outcome = constant.StageOutcomeCacheHit
	}
	assign(value)
	run.ExitStage(outcome, o.now())
	o.publishStep(run, stage, outcome)
	return true
}

// callWithRetry applies the per-stage retry budget: transient failures
// back off exponentially and retry, everything else surfaces immediately.
// Each attempt gets its own call timeout. A pending cancel is honored
// between attempts, so a cancel never waits out the whole budget.
func (o *Orchestrator) callWithRetry(ctx context.Context, run *entity.PipelineRun, collaborator string, call func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	g := o.guards[collaborator]

	var lastErr error
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		if run.CancelRequested() {
			return nil, apperr.New(apperr.KindCancelled, "run cancelled")
		}
		var value interface{}
		err := g.Do(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
			defer cancel()
			var callErr error
			value, callErr = call(callCtx)
			return callErr
		})
		if err == nil {
			return value, nil
		}
		lastErr = err

		if !apperr.IsTransient(err) {
			return nil, err
		}

		o.log.Warn("pipeline", "Transient collaborator failure", map[string]interface{}{
			"collaborator": collaborator,
			"attempt":      attempt,
			"error":        err.Error(),
		})

		if attempt < o.cfg.MaxAttempts {
			backoff := o.cfg.RetryBaseDelay * (1 << (attempt - 1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, apperr.Wrap(apperr.KindCancelled, "call aborted during retry backoff", ctx.Err())
			}
		}
	}
	return nil, lastErr
}

// DirectSearch serves a standalone literature lookup outside the stage
// machine. The query passes the same sanitization and the literature
// guard's admission as the retrieval stage; results belong to no run and
// are never cached.
func (o *Orchestrator) DirectSearch(ctx context.Context, query string, maxResults int) ([]entity.EvidenceDocument, error) {
	sanitized, err := o.sanitizer.Sanitize(query)
	if err != nil {
		return nil, err
	}
	if maxResults <= 0 || maxResults > o.cfg.MaxSearchResults {
		maxResults = o.cfg.MaxSearchResults
	}

	g := o.guards[constant.CollaboratorLiterature]
	var docs []entity.EvidenceDocument
	err = g.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
		var callErr error
		docs, callErr = o.searcher.Search(callCtx, []string{sanitized}, maxResults, o.cfg.LiteratureDaysBack)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (o *Orchestrator) embedDocuments(ctx context.Context, enhancedQuery string, docs []entity.EvidenceDocument) (embeddingResult, error) {
	texts := make([]string, 0, len(docs)+1)
	texts = append(texts, enhancedQuery)
	for _, d := range docs {
		texts = append(texts, d.Title+" "+d.Abstract)
	}

	vectors, err := o.embedder.Embed(ctx, texts)
	if err != nil {
		return embeddingResult{}, err
	}
	if len(vectors) != len(texts) {
		return embeddingResult{}, apperr.New(apperr.KindUpstreamPermanent, "embedding batch size mismatch")
	}

	out := embeddingResult{QueryVector: vectors[0], Documents: make([]entity.EvidenceDocument, len(docs))}
	copy(out.Documents, docs)
	for i := range out.Documents {
		out.Documents[i].Embedding = vectors[i+1]
	}
	return out, nil
}

func (o *Orchestrator) similaritySearch(ctx context.Context, embedded embeddingResult) ([]entity.EvidenceDocument, error) {
	docs := make([]*entity.EvidenceDocument, len(embedded.Documents))
	for i := range embedded.Documents {
		docs[i] = &embedded.Documents[i]
	}
	if err := o.papers.UpsertBulk(ctx, docs); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamTransient, "failed to store retrieved papers", err)
	}

	scored, err := o.papers.SearchSimilarWithScore(ctx, embedded.QueryVector, o.cfg.TopK, 0)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstreamTransient, "similarity search failed", err)
	}

	out := make([]entity.EvidenceDocument, 0, len(scored))
	for _, s := range scored {
		doc := *s.Document
		doc.Relevance = s.Similarity
		out = append(out, doc)
	}
	return out, nil
}

// checkCancelled honors a pending cancel request at a stage boundary.
func (o *Orchestrator) checkCancelled(run *entity.PipelineRun, stage string) bool {
	if !run.CancelRequested() {
		return false
	}

	run.SetTerminal(constant.RunStatusCancelled)
	o.publishError(run, stage, apperr.New(apperr.KindCancelled, "run cancelled"))
	o.auditEvent(context.Background(), events.PipelineCancelled(run.Id.String(), run.SessionId, stage))

	o.log.Info("pipeline", "Run cancelled", map[string]interface{}{
		"run_id": run.Id.String(),
		"stage":  stage,
	})
	return true
}

func (o *Orchestrator) failRun(run *entity.PipelineRun, stage string, err error) {
	kind := apperr.KindOf(err)

	if kind == apperr.KindCancelled {
		run.SetTerminal(constant.RunStatusCancelled)
	} else {
		run.SetTerminal(constant.RunStatusFailed)
	}
	o.publishError(run, stage, err)
	o.auditEvent(context.Background(), events.PipelineFailed(run.Id.String(), run.SessionId, stage, string(kind)))

	o.log.Error("pipeline", "Run failed", map[string]interface{}{
		"run_id": run.Id.String(),
		"stage":  stage,
		"kind":   string(kind),
		"error":  err.Error(),
	})

	if kind == apperr.KindInternal && o.alerts != nil {
		if alertErr := o.alerts.SendOperatorAlert(run.Id.String(), stage, err.Error()); alertErr != nil {
			o.log.Warn("pipeline", "Operator alert delivery failed", map[string]interface{}{
				"run_id": run.Id.String(),
				"error":  alertErr.Error(),
			})
		}
	}
}

func (o *Orchestrator) publishStep(run *entity.PipelineRun, stage, outcome string) {
	o.publishEvent(run, dto.PipelineEvent{
		Type:    constant.EventTypeProcessingStep,
		Stage:   stage,
		Outcome: outcome,
	})
}

func (o *Orchestrator) publishError(run *entity.PipelineRun, stage string, err error) {
	o.publishEvent(run, dto.PipelineEvent{
		Type:    constant.EventTypeError,
		Stage:   stage,
		Kind:    string(apperr.KindOf(err)),
		Message: apperr.ClientMessage(err),
	})
}

func (o *Orchestrator) publishResponse(run *entity.PipelineRun, rec *entity.Recommendation, ranked []entity.EvidenceDocument) {
	sources := make([]dto.SourceDTO, len(ranked))
	for i, doc := range ranked {
		sources[i] = dto.SourceDTO{
			ExternalId:     doc.ExternalId,
			Title:          doc.Title,
			Authors:        doc.Authors,
			Journal:        doc.Journal,
			PublishedAt:    doc.PublishedAt,
			RelevanceScore: doc.Relevance,
		}
	}

	o.publishEvent(run, dto.PipelineEvent{
		Type:           constant.EventTypeClinicalResponse,
		Recommendation: rec,
		Sources:        sources,
	})
}

// publishEvent assigns the run's next sequence number and hands the event
// to the bus synchronously. The next stage never starts before this
// handoff returns, which keeps per-run delivery ordered.
func (o *Orchestrator) publishEvent(run *entity.PipelineRun, event dto.PipelineEvent) {
	event.RunId = run.Id
	event.SessionId = run.SessionId
	event.Seq = run.NextSeq()
	event.Timestamp = o.now()

	payload, err := json.Marshal(event)
	if err != nil {
		o.log.Error("pipeline", "Failed to marshal event", map[string]interface{}{
			"run_id": run.Id.String(),
			"error":  err.Error(),
		})
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetaSessionId, run.SessionId)

	if err := o.publisher.Publish(EventsTopic, msg); err != nil {
		o.log.Error("pipeline", "Failed to publish event", map[string]interface{}{
			"run_id": run.Id.String(),
			"error":  err.Error(),
		})
	}
}

func (o *Orchestrator) auditEvent(ctx context.Context, event events.Event) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Publish(ctx, event); err != nil {
		o.log.Warn("pipeline", "Audit publish failed", map[string]interface{}{
			"event": event.EventType(),
			"error": err.Error(),
		})
	}
}
