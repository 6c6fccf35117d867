package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinical-dss-be/internal/dto"
	"clinical-dss-be/internal/entity"
	"clinical-dss-be/internal/pkg/apperr"
	"clinical-dss-be/internal/pkg/logger"
	"clinical-dss-be/internal/pkg/serverutils"
	"clinical-dss-be/internal/session"
)

const healthGateTimeout = 2 * time.Second

type IPipelineService interface {
	HandleQuery(sessionId string, req dto.ClinicalQueryRequest) error
	LiteratureSearch(sessionId, query string, maxResults int) ([]entity.EvidenceDocument, error)
	Cancel(sessionId string, runId uuid.UUID) error
	Touch(sessionId string)
	Snapshot(runId uuid.UUID) (entity.RunSnapshot, error)
}

// runExecutor is the orchestrator surface the service drives.
type runExecutor interface {
	Execute(ctx context.Context, run *entity.PipelineRun)
	DirectSearch(ctx context.Context, query string, maxResults int) ([]entity.EvidenceDocument, error)
}

type pipelineService struct {
	log      logger.ILogger
	registry *session.Registry
	executor runExecutor
	health   IHealthService
}

func NewPipelineService(log logger.ILogger, registry *session.Registry, executor runExecutor, health IHealthService) IPipelineService {
	return &pipelineService{
		log:      log,
		registry: registry,
		executor: executor,
		health:   health,
	}
}

// HandleQuery admits a query and starts its run. Validation, capacity and
// dependency-health failures are returned synchronously; everything after
// admission reaches the client through the event stream.
func (s *pipelineService) HandleQuery(sessionId string, req dto.ClinicalQueryRequest) error {
	if err := serverutils.ValidateRequest(&req); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthGateTimeout)
	defer cancel()
	if report := s.health.Check(ctx); report.Status != "ok" {
		s.log.Warn("service", "Query rejected, dependencies degraded", map[string]interface{}{
			"session_id":   sessionId,
			"dependencies": report.Dependencies,
		})
		return apperr.New(apperr.KindUpstreamUnavailable, "service dependencies degraded, try again later")
	}

	query := &entity.ClinicalQuery{
		Id:             uuid.New(),
		RawText:        req.Query,
		PatientContext: req.PatientContext.ToEntity(),
		SubmittedAt:    time.Now(),
	}
	run := entity.NewPipelineRun(sessionId, query)

	if err := s.registry.Submit(sessionId, run); err != nil {
		return err
	}

	s.log.Info("service", "Query admitted", map[string]interface{}{
		"session_id": sessionId,
		"run_id":     run.Id.String(),
	})

	go s.executor.Execute(context.Background(), run)
	return nil
}

// LiteratureSearch performs one standalone retrieval outside the stage
// machine. Results return synchronously to the caller's connection.
func (s *pipelineService) LiteratureSearch(sessionId, query string, maxResults int) ([]entity.EvidenceDocument, error) {
	s.registry.Touch(sessionId)

	docs, err := s.executor.DirectSearch(context.Background(), query, maxResults)
	if err != nil {
		return nil, err
	}

	s.log.Info("service", "Literature search served", map[string]interface{}{
		"session_id": sessionId,
		"results":    len(docs),
	})
	return docs, nil
}

func (s *pipelineService) Cancel(sessionId string, runId uuid.UUID) error {
	return s.registry.Cancel(sessionId, runId)
}

func (s *pipelineService) Touch(sessionId string) {
	s.registry.Touch(sessionId)
}

func (s *pipelineService) Snapshot(runId uuid.UUID) (entity.RunSnapshot, error) {
	return s.registry.Run(runId)
}
