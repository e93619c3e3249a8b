package generator

import (
	"context"
	"deploy-wizard-cli/internal/domain"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	reportTitle     = "Deployment History"
	shortCommitSize = 7
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	successStyle = cellStyle.Foreground(lipgloss.Color("#00FA9A"))
	failedStyle  = cellStyle.Foreground(lipgloss.Color("#FF4C4C"))
	runningStyle = cellStyle.Foreground(lipgloss.Color("#F5C542"))
)

// Generator renders deployment history to a file or to stdout
type Generator struct {
	outputPath string
	stdout     io.Writer
}

// NewGenerator creates a new report generator. An empty outputPath writes to stdout.
func NewGenerator(outputPath string, stdout io.Writer) *Generator {
	if stdout == nil {
		stdout = os.Stdout
	}
	return &Generator{
		outputPath: outputPath,
		stdout:     stdout,
	}
}

// OutputPath returns the output path
func (g *Generator) OutputPath() string {
	return g.outputPath
}

// GenerateSummary counts deployments per status
func (g *Generator) GenerateSummary(ctx context.Context, records []*domain.DeploymentRecord) map[string]interface{} {
	statuses := make(map[string]int)
	services := make(map[int]bool)
	for _, record := range records {
		statuses[record.Status]++
		services[record.ServiceID] = true
	}

	return map[string]interface{}{
		"total_deployments": len(records),
		"total_services":    len(services),
		"statuses":          statuses,
	}
}

// GenerateTable writes a bordered table, newest deployment first
func (g *Generator) GenerateTable(ctx context.Context, records []*domain.DeploymentRecord) error {
	return g.write(func(w io.Writer) error {
		sorted := sortNewestFirst(records)

		rows := make([][]string, 0, len(sorted))
		for _, record := range sorted {
			rows = append(rows, []string{
				strconv.Itoa(record.DeployID),
				strconv.Itoa(record.ServiceID),
				record.GitBranch,
				shortCommit(record.CommitID),
				record.Status,
				record.CreatedDate,
				record.UpdatedDate,
			})
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("DEPLOY", "SERVICE", "BRANCH", "COMMIT", "STATUS", "CREATED", "UPDATED").
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				if col == 4 && row >= 0 && row < len(sorted) {
					return statusStyle(sorted[row].Status)
				}
				return cellStyle
			})

		if _, err := fmt.Fprintln(w, t.String()); err != nil {
			return fmt.Errorf("failed to write table: %w", err)
		}
		return nil
	})
}

// GenerateCSV writes one CSV row per deployment
func (g *Generator) GenerateCSV(ctx context.Context, records []*domain.DeploymentRecord) error {
	return g.write(func(w io.Writer) error {
		writer := csv.NewWriter(w)

		header := []string{
			"Deploy ID",
			"Service ID",
			"Branch",
			"Commit ID",
			"Commit Message",
			"Status",
			"Created",
			"Updated",
		}
		if err := writer.Write(header); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}

		for _, record := range sortNewestFirst(records) {
			row := []string{
				strconv.Itoa(record.DeployID),
				strconv.Itoa(record.ServiceID),
				record.GitBranch,
				record.CommitID,
				record.CommitMessage,
				record.Status,
				record.CreatedDate,
				record.UpdatedDate,
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV record: %w", err)
			}
		}

		writer.Flush()
		return writer.Error()
	})
}

// GenerateJSON writes the deployments with a status summary
func (g *Generator) GenerateJSON(ctx context.Context, records []*domain.DeploymentRecord) error {
	return g.write(func(w io.Writer) error {
		sorted := sortNewestFirst(records)
		if sorted == nil {
			sorted = []*domain.DeploymentRecord{}
		}

		reportData := struct {
			Deployments []*domain.DeploymentRecord `json:"deployments"`
			Summary     map[string]interface{}     `json:"summary"`
			Title       string                     `json:"title"`
		}{
			Deployments: sorted,
			Summary:     g.GenerateSummary(ctx, records),
			Title:       reportTitle,
		}

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(reportData); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	})
}

func (g *Generator) write(render func(io.Writer) error) error {
	if g.outputPath == "" {
		return render(g.stdout)
	}

	// Create output directory if it doesn't exist
	dir := filepath.Dir(g.outputPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(g.outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	if err := render(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func sortNewestFirst(records []*domain.DeploymentRecord) []*domain.DeploymentRecord {
	if records == nil {
		return nil
	}
	sorted := make([]*domain.DeploymentRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DeployID > sorted[j].DeployID
	})
	return sorted
}

func shortCommit(commitID string) string {
	if len(commitID) > shortCommitSize {
		return commitID[:shortCommitSize]
	}
	return commitID
}

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "success":
		return successStyle
	case "failed", "failure", "error":
		return failedStyle
	case "running", "pending", "in_progress":
		return runningStyle
	default:
		return cellStyle
	}
}
