package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/auditsnap/internal/audit"
	"github.com/JakeFAU/auditsnap/internal/auth"
	"github.com/JakeFAU/auditsnap/internal/lifecycle"
)

const maxBodyBytes = 1 << 20

type submitRequest struct {
	URL string `json:"url"`
}

type reportSummary struct {
	ID           string       `json:"report_id"`
	URL          string       `json:"url"`
	Status       audit.Status `json:"status"`
	OverallScore *int         `json:"overall_score,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

type advanceRequest struct {
	Status     string            `json:"status"`
	ReportData *audit.ReportData `json:"report_data"`
	Error      string            `json:"error"`
}

func (s *Server) submitReport(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	handle, err := s.lifecycle.Submit(r.Context(), auth.SessionFrom(r.Context()), req.URL)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, handle)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snaps, err := s.lifecycle.History(r.Context(), auth.SessionFrom(r.Context()), limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]reportSummary, 0, len(snaps))
	for _, snap := range snaps {
		sum := reportSummary{
			ID:          snap.ID,
			URL:         snap.URL,
			Status:      snap.Status,
			CreatedAt:   snap.CreatedAt,
			CompletedAt: snap.CompletedAt,
		}
		if snap.Data != nil {
			score := snap.Data.OverallScore
			sum.OverallScore = &score
		}
		out = append(out, sum)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"reports": out})
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.lifecycle.FetchOwned(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "report_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, audit.SnapshotOf(report))
}

func (s *Server) watchReport(w http.ResponseWriter, r *http.Request) {
	wait := s.maxWatchWait
	if raw := r.URL.Query().Get("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid wait")
			return
		}
		wait = min(d, s.maxWatchWait)
	}
	reportID := chi.URLParam(r, "report_id")
	if _, err := s.lifecycle.FetchOwned(r.Context(), auth.SessionFrom(r.Context()), reportID); err != nil {
		s.fail(w, r, err)
		return
	}
	snap, err := s.lifecycle.Await(r.Context(), reportID, lifecycle.WatchOptions{MaxWait: wait})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.lifecycle.FetchOwned(r.Context(), auth.SessionFrom(r.Context()), chi.URLParam(r, "report_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if report.Status != audit.StatusCompleted || report.Data == nil {
		s.writeError(w, http.StatusConflict, fmt.Sprintf("report is %s", report.Status))
		return
	}
	body, err := json.MarshalIndent(report.Data, "", "  ")
	if err != nil {
		s.fail(w, r, fmt.Errorf("encode report: %w", err))
		return
	}
	filename := fmt.Sprintf("auditsnap_%s_%s.json",
		audit.SanitizeForFilename(report.URL), s.clock.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("download write failed", zap.String("report_id", report.ID), zap.Error(err))
	}
}

func (s *Server) getSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := s.lifecycle.Subscription(r.Context(), auth.SessionFrom(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sub)
}

func (s *Server) advanceReport(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	status, err := audit.ParseStatus(req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	reportID := chi.URLParam(r, "report_id")
	if status == audit.StatusFailed {
		if req.ReportData != nil {
			s.fail(w, r, fmt.Errorf("%w: payload not accepted with failed", audit.ErrInvalidTransition))
			return
		}
		err = s.lifecycle.Fail(r.Context(), reportID, req.Error)
	} else {
		err = s.lifecycle.Advance(r.Context(), reportID, status, req.ReportData)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"report_id": reportID, "status": string(status)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

func parseLimitOffset(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		limit = val
	}
	offset := 0
	if raw := q.Get("offset"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
