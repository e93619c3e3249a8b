package usecases_test

import (
	"context"
	"deploy-wizard-cli/internal/domain"

	"github.com/stretchr/testify/mock"
)

// MockResolver for testing
type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, repoURL, token string) (*domain.RepositoryInfo, error) {
	args := m.Called(ctx, repoURL, token)
	info, _ := args.Get(0).(*domain.RepositoryInfo)
	return info, args.Error(1)
}

// MockDeploySubmitter for testing
type MockDeploySubmitter struct {
	mock.Mock
}

func (m *MockDeploySubmitter) AutoDeploy(ctx context.Context, req *domain.DeployRequest) (*domain.DeployResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*domain.DeployResult)
	return result, args.Error(1)
}

func (m *MockDeploySubmitter) PostDeploy(ctx context.Context, payload any) (*domain.DeployResult, error) {
	args := m.Called(ctx, payload)
	result, _ := args.Get(0).(*domain.DeployResult)
	return result, args.Error(1)
}

// MockDeploymentReader for testing
type MockDeploymentReader struct {
	mock.Mock
}

func (m *MockDeploymentReader) GetService(ctx context.Context, serviceID int) (*domain.ServiceInfo, error) {
	args := m.Called(ctx, serviceID)
	service, _ := args.Get(0).(*domain.ServiceInfo)
	return service, args.Error(1)
}

func (m *MockDeploymentReader) ListServicesByUser(ctx context.Context, userID int) ([]*domain.ServiceInfo, error) {
	args := m.Called(ctx, userID)
	services, _ := args.Get(0).([]*domain.ServiceInfo)
	return services, args.Error(1)
}

func (m *MockDeploymentReader) GetLatestDeploy(ctx context.Context, serviceID int) (*domain.LatestDeploy, error) {
	args := m.Called(ctx, serviceID)
	latest, _ := args.Get(0).(*domain.LatestDeploy)
	return latest, args.Error(1)
}

func (m *MockDeploymentReader) ListDeployments(
	ctx context.Context,
	serviceID int,
) ([]*domain.DeploymentRecord, error) {
	args := m.Called(ctx, serviceID)
	records, _ := args.Get(0).([]*domain.DeploymentRecord)
	return records, args.Error(1)
}

// MockReportGenerator for testing
type MockReportGenerator struct {
	mock.Mock
}

func (m *MockReportGenerator) GenerateTable(ctx context.Context, records []*domain.DeploymentRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockReportGenerator) GenerateCSV(ctx context.Context, records []*domain.DeploymentRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockReportGenerator) GenerateJSON(ctx context.Context, records []*domain.DeploymentRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}
