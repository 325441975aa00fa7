package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/evergrove/storefront/internal/domain"
	"github.com/evergrove/storefront/internal/services"
)

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(_ context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

func TestHealthzReportsBuildMetadata(t *testing.T) {
	started := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := started.Add(90 * time.Minute)

	h := NewHealthHandlers(
		WithHealthBuildInfo(services.BuildInfo{
			Version:     "1.4.0",
			CommitSHA:   "abc1234",
			Environment: "production",
			StartedAt:   started,
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["status"] != domain.HealthStatusOK {
		t.Fatalf("status = %v", payload["status"])
	}
	if payload["version"] != "1.4.0" || payload["commitSha"] != "abc1234" || payload["environment"] != "production" {
		t.Fatalf("payload = %v", payload)
	}
	if payload["uptime"] != "1h30m0s" {
		t.Fatalf("uptime = %v", payload["uptime"])
	}
}

func TestReadyzWithoutSystemServiceIsOK(t *testing.T) {
	h := NewHealthHandlers()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestReadyzHealthyReport(t *testing.T) {
	checkedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{
		report: services.SystemHealthReport{
			Status: domain.HealthStatusOK,
			Checks: map[string]domain.SystemHealthCheck{
				"guestCartStore":  {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond, CheckedAt: checkedAt},
				"commerceBackend": {Status: domain.HealthStatusOK, Latency: 40 * time.Millisecond, CheckedAt: checkedAt},
			},
			Version: "1.4.0",
			Uptime:  time.Hour,
		},
	}))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Status  string                    `json:"status"`
		Checks  map[string]map[string]any `json:"checks"`
		Details []string                  `json:"details"`
		Version string                    `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != domain.HealthStatusOK || payload.Version != "1.4.0" {
		t.Fatalf("payload = %+v", payload)
	}
	if len(payload.Checks) != 2 {
		t.Fatalf("checks = %+v", payload.Checks)
	}
	if payload.Checks["guestCartStore"]["latency_ms"] != float64(12) {
		t.Fatalf("guestCartStore check = %+v", payload.Checks["guestCartStore"])
	}
	if len(payload.Details) != 0 {
		t.Fatalf("details = %v", payload.Details)
	}
}

func TestReadyzUnhealthyReportIs503WithSortedDetails(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{
		report: services.SystemHealthReport{
			Status: domain.HealthStatusError,
			Checks: map[string]domain.SystemHealthCheck{
				"secretManager":   {Status: domain.HealthStatusError, Error: "permission denied"},
				"commerceBackend": {Status: domain.HealthStatusError, Error: "connection refused"},
				"guestCartStore":  {Status: domain.HealthStatusOK},
			},
		},
	}))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload struct {
		Status  string   `json:"status"`
		Details []string `json:"details"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Status != domain.HealthStatusError {
		t.Fatalf("status = %q", payload.Status)
	}
	want := []string{"commerceBackend: connection refused", "secretManager: permission denied"}
	if len(payload.Details) != 2 || payload.Details[0] != want[0] || payload.Details[1] != want[1] {
		t.Fatalf("details = %v, want %v", payload.Details, want)
	}
}

func TestReadyzCollectionFailureIs503(t *testing.T) {
	h := NewHealthHandlers(WithHealthSystemService(&stubSystemService{
		err: errors.New("collection timed out"),
	}))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}
