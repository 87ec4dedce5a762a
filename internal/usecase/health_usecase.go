package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"rerank-orchestrator/internal/domain"
)

// HealthUsecase probes both downstream services concurrently. It reports
// status rather than returning errors so callers always get a full picture.
type HealthUsecase interface {
	Execute(ctx context.Context) domain.HealthStatus
}

type healthUsecase struct {
	searchClient domain.SearchClient
	reranker     domain.Reranker
	logger       *slog.Logger
}

// NewHealthUsecase creates a new HealthUsecase.
func NewHealthUsecase(searchClient domain.SearchClient, reranker domain.Reranker, logger *slog.Logger) HealthUsecase {
	return &healthUsecase{
		searchClient: searchClient,
		reranker:     reranker,
		logger:       logger,
	}
}

func (u *healthUsecase) Execute(ctx context.Context) domain.HealthStatus {
	status := domain.HealthStatus{CheckedAt: time.Now()}

	var g errgroup.Group
	g.Go(func() error {
		status.Search = u.searchClient.CheckHealth(ctx)
		return nil
	})
	g.Go(func() error {
		status.Reranker = u.reranker.CheckHealth(ctx)
		return nil
	})
	_ = g.Wait()

	status.Status = status.Search.Status.Worse(status.Reranker.Status)
	if status.Status != domain.HealthHealthy {
		u.logger.Warn("health_check_degraded",
			slog.String("overall", string(status.Status)),
			slog.String("search", string(status.Search.Status)),
			slog.String("reranker", string(status.Reranker.Status)))
	}
	return status
}
