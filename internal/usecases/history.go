package usecases

import (
	"context"
	"deploy-wizard-cli/internal/domain"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Default number of workers for concurrent per-service lookups
const defaultServiceWorkers = 5

// HistoryResponse summarizes a history run
type HistoryResponse struct {
	TotalServices    int `json:"total_services"`
	TotalDeployments int `json:"total_deployments"`
	FailedServices   int `json:"failed_services"`
}

// HistoryUseCase reads deployment history from the backend and renders it
type HistoryUseCase struct {
	reader    domain.DeploymentReader
	generator domain.ReportGenerator
	workers   int
	logger    *zap.Logger
}

// NewHistoryUseCase creates a new history use case with dependency injection
func NewHistoryUseCase(
	reader domain.DeploymentReader,
	generator domain.ReportGenerator,
	logger *zap.Logger,
) *HistoryUseCase {
	return &HistoryUseCase{
		reader:    reader,
		generator: generator,
		workers:   defaultServiceWorkers,
		logger:    logger,
	}
}

// ServiceHistory renders the full deployment history of one service.
func (uc *HistoryUseCase) ServiceHistory(ctx context.Context, serviceID int, format string) (*HistoryResponse, error) {
	uc.logger.Info("Fetching deployment history", zap.Int("service_id", serviceID))

	records, err := uc.reader.ListDeployments(ctx, serviceID)
	if err != nil {
		uc.logger.Error("Failed to fetch deployment history", zap.Int("service_id", serviceID), zap.Error(err))
		return nil, err
	}

	if err := uc.render(ctx, format, records); err != nil {
		return nil, err
	}

	return &HistoryResponse{TotalServices: 1, TotalDeployments: len(records)}, nil
}

// UserLatest renders the newest deployment of every service owned by userID.
// Services whose lookup fails are logged and skipped.
func (uc *HistoryUseCase) UserLatest(ctx context.Context, userID int, format string) (*HistoryResponse, error) {
	uc.logger.Info("Fetching services for user", zap.Int("user_id", userID))

	services, err := uc.reader.ListServicesByUser(ctx, userID)
	if err != nil {
		uc.logger.Error("Failed to fetch services", zap.Int("user_id", userID), zap.Error(err))
		return nil, err
	}

	results := uc.latestConcurrently(ctx, services)

	var records []*domain.DeploymentRecord
	failed := 0
	for _, result := range results {
		if result.Err != "" {
			failed++
			continue
		}
		if result.Latest != nil {
			records = append(records, result.Latest)
		}
	}

	if err := uc.render(ctx, format, records); err != nil {
		return nil, err
	}

	response := &HistoryResponse{
		TotalServices:    len(services),
		TotalDeployments: len(records),
		FailedServices:   failed,
	}

	uc.logger.Info("Latest deployments collected",
		zap.Int("total_services", response.TotalServices),
		zap.Int("total_deployments", response.TotalDeployments),
		zap.Int("failed_services", response.FailedServices))

	return response, nil
}

// latestConcurrently looks up the newest deployment of each service using a
// bounded worker pool. Results keep the order of services.
func (uc *HistoryUseCase) latestConcurrently(
	ctx context.Context,
	services []*domain.ServiceInfo,
) []*domain.ServiceDeployment {
	results := make([]*domain.ServiceDeployment, len(services))
	if len(services) == 0 {
		return results
	}

	workers := uc.workers
	if len(services) < workers {
		workers = len(services)
	}

	type job struct {
		index   int
		service *domain.ServiceInfo
	}
	jobs := make(chan job, len(services))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			uc.logger.Debug("Started service worker", zap.Int("worker_id", workerID))

			for j := range jobs {
				latest, err := uc.latestDeployment(ctx, j.service.ServiceID)
				result := &domain.ServiceDeployment{Service: *j.service, Latest: latest}
				if err != nil {
					result.Err = err.Error()
					uc.logger.Warn("Failed to fetch latest deployment",
						zap.Int("worker_id", workerID),
						zap.Int("service_id", j.service.ServiceID),
						zap.String("service", j.service.Name),
						zap.Error(err))
				}
				// each index is written by exactly one worker
				results[j.index] = result
			}
		}(i)
	}

	for i, service := range services {
		jobs <- job{index: i, service: service}
	}
	close(jobs)

	wg.Wait()
	return results
}

// latestDeployment resolves the latest deploy id to its full record.
func (uc *HistoryUseCase) latestDeployment(ctx context.Context, serviceID int) (*domain.DeploymentRecord, error) {
	latest, err := uc.reader.GetLatestDeploy(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	records, err := uc.reader.ListDeployments(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	for _, record := range records {
		if record.DeployID == latest.DeployID {
			return record, nil
		}
	}

	// no record carries the latest id; use the highest id instead
	if len(records) == 0 {
		return nil, nil
	}
	sorted := append([]*domain.DeploymentRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DeployID > sorted[j].DeployID })
	return sorted[0], nil
}

func (uc *HistoryUseCase) render(ctx context.Context, format string, records []*domain.DeploymentRecord) error {
	var err error
	switch format {
	case "", "table":
		err = uc.generator.GenerateTable(ctx, records)
	case "json":
		err = uc.generator.GenerateJSON(ctx, records)
	case "csv":
		err = uc.generator.GenerateCSV(ctx, records)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
	if err != nil {
		uc.logger.Error("Failed to render deployment history", zap.String("format", format), zap.Error(err))
		return err
	}
	return nil
}
