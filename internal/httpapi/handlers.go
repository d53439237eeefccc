package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sotruth/dualtrack/infrastructure/llm"
	"github.com/sotruth/dualtrack/internal/domain"
	"github.com/sotruth/dualtrack/internal/ports"
)

type errResp struct {
	Error string `json:"error"`
}

type rubricAnalysisRequest struct {
	ApplicationIDs []int64 `json:"applicationIds"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) scoreApplication(w http.ResponseWriter, r *http.Request) {
	rubricID, ok := s.idParam(w, r, "rubricID")
	if !ok {
		return
	}
	appID, ok := s.idParam(w, r, "applicationID")
	if !ok {
		return
	}

	eval, err := s.svc.ScoreApplication(r.Context(), appID, rubricID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

func (s *Server) analyzeRubric(w http.ResponseWriter, r *http.Request) {
	rubricID, ok := s.idParam(w, r, "rubricID")
	if !ok {
		return
	}
	var req rubricAnalysisRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	analysis, err := s.svc.AnalyzeRubric(r.Context(), rubricID, req.ApplicationIDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) analyzeBias(w http.ResponseWriter, r *http.Request) {
	var in domain.BiasAnalysisInput
	if !s.decode(w, r, &in, false) {
		return
	}

	analysis, err := s.svc.AnalyzeBias(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	var analysis domain.BiasAnalysis
	if !s.decode(w, r, &analysis, false) {
		return
	}
	if err := analysis.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.svc.Report(analysis))
}

func (s *Server) eligibility(w http.ResponseWriter, r *http.Request) {
	appID, ok := s.idParam(w, r, "applicationID")
	if !ok {
		return
	}
	e, err := s.svc.CheckEligibility(r.Context(), appID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errResp{fmt.Sprintf("%s must be a positive integer", name)})
		return 0, false
	}
	return id, true
}

// decode reads a JSON body into v. With optional set an empty body is
// accepted and leaves v untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeJSON(w, http.StatusBadRequest, errResp{"invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	}
	writeJSON(w, code, errResp{err.Error()})
}

func statusFor(err error) int {
	var (
		validationErr *domain.ValidationError
		parseErr      *domain.ParseError
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &validationErr), errors.Is(err, domain.ErrEmptyRubric):
		return http.StatusUnprocessableEntity
	case errors.As(err, &parseErr), errors.Is(err, ports.ErrTokenLimitExceeded):
		return http.StatusBadGateway
	case errors.Is(err, ports.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, llm.ErrCircuitOpen), errors.Is(err, ports.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ports.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
