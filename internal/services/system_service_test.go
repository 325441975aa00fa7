package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/evergrove/storefront/internal/domain"
)

type stubHealthRepo struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepo) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func TestNewSystemServiceRequiresHealthRepository(t *testing.T) {
	if _, err := NewSystemService(SystemServiceDeps{}); err == nil {
		t.Fatal("expected error without health repository")
	}
}

func TestHealthReportStampsBuildMetadata(t *testing.T) {
	started := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := started.Add(45 * time.Minute)

	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepo{report: domain.SystemHealthReport{
			Status: domain.HealthStatusOK,
			Checks: map[string]domain.SystemHealthCheck{
				"guestCartStore": {Status: domain.HealthStatusOK, Detail: "ok"},
			},
		}},
		Clock: func() time.Time { return now },
		Build: BuildInfo{
			Version:     "2.0.1",
			CommitSHA:   "abc1234",
			Environment: "production",
			StartedAt:   started,
		},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}

	report, err := svc.HealthReport(context.Background())
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Version != "2.0.1" || report.CommitSHA != "abc1234" || report.Environment != "production" {
		t.Fatalf("build metadata = %q %q %q", report.Version, report.CommitSHA, report.Environment)
	}
	if report.Uptime != 45*time.Minute {
		t.Fatalf("uptime = %s", report.Uptime)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("status = %q", report.Status)
	}
}

func TestHealthReportPropagatesCollectErrors(t *testing.T) {
	svc, err := NewSystemService(SystemServiceDeps{
		HealthRepository: &stubHealthRepo{err: errors.New("probe runner down")},
	})
	if err != nil {
		t.Fatalf("NewSystemService: %v", err)
	}
	if _, err := svc.HealthReport(context.Background()); err == nil {
		t.Fatal("expected collect error to propagate")
	}
}
