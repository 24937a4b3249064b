package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/PageInsights/internal/database"
	"github.com/TobiSchelling/PageInsights/internal/insights"
	"github.com/TobiSchelling/PageInsights/internal/llm"
	"github.com/TobiSchelling/PageInsights/internal/pipeline"
	"github.com/TobiSchelling/PageInsights/internal/reconcile"
)

var errHistoryDisabled = errors.New("run history is disabled")

// apiRequest is the body of the analysis and insight routes. It is read
// from JSON, from a multipart upload (one part per file under "files") or
// from a raw text/csv body.
type apiRequest struct {
	Files    []pipeline.Input `json:"files"`
	Author   string           `json:"author"`
	Provider string           `json:"provider"`
	Model    string           `json:"model"`
	DryRun   bool             `json:"dry_run"`
}

type errorResponse struct {
	Error string         `json:"error"`
	Stage pipeline.Stage `json:"stage,omitempty"`
}

type compareResponse struct {
	Periods *reconcile.PeriodComparison `json:"periods"`
	Sources *reconcile.SourceComparison `json:"sources,omitempty"`
}

type insightResponse struct {
	Mode     insights.Mode     `json:"mode"`
	Insight  *insights.Insight `json:"insight,omitempty"`
	Markdown string            `json:"markdown,omitempty"`
	RunID    string            `json:"run_id,omitempty"`
	Prompt   string            `json:"prompt,omitempty"`
	Error    string            `json:"error,omitempty"`
	Stage    pipeline.Stage    `json:"stage,omitempty"`
}

type insightsResponse struct {
	Analysis *pipeline.Analysis    `json:"analysis,omitempty"`
	Insights []insightResponse     `json:"insights"`
	Steps    []pipeline.StepResult `json:"steps"`
	Error    string                `json:"error,omitempty"`
	Stage    pipeline.Stage        `json:"stage,omitempty"`
}

type feedbackRequest struct {
	Rating string `json:"rating"`
	Note   string `json:"note"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	a, err := s.pipe.Analyze(req.Files)
	if err != nil {
		s.writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}
	if len(req.Files) < 2 {
		s.writeStageError(w, &pipeline.StageError{
			Stage: pipeline.StageAggregate,
			Err:   fmt.Errorf("%w: compare needs at least 2 datasets, got %d", pipeline.ErrDatasetCount, len(req.Files)),
		})
		return
	}
	a, err := s.pipe.Analyze(req.Files)
	if err != nil {
		s.writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, compareResponse{Periods: a.Periods, Sources: a.Sources})
}

// handleInsights generates one mode, or every applicable mode for "all".
// Parse and aggregate failures are the caller's data (400); generate and
// decode failures are the narrative service (502). The analysis is returned
// either way once it exists.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readRequest(w, r)
	if !ok {
		return
	}

	var modes []insights.Mode
	if name := r.PathValue("mode"); name == "all" {
		modes = insights.Applicable(len(req.Files), req.Author)
		if len(modes) == 0 {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("no insight mode applies to %d datasets", len(req.Files)), "")
			return
		}
	} else {
		mode, err := insights.ParseMode(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		modes = []insights.Mode{mode}
	}

	var kind llm.Kind
	if req.Provider != "" {
		k, err := llm.ParseKind(req.Provider)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), "")
			return
		}
		kind = k
	}

	res, err := s.pipe.Run(r.Context(), pipeline.Request{
		Inputs:   req.Files,
		Modes:    modes,
		Author:   req.Author,
		Provider: kind,
		Model:    req.Model,
		DryRun:   req.DryRun,
	})

	resp := insightsResponse{Analysis: res.Analysis, Steps: res.Steps, Insights: []insightResponse{}}
	for _, ir := range res.Insights {
		out := insightResponse{Mode: ir.Mode, Insight: ir.Insight, RunID: ir.RunID, Prompt: ir.Prompt}
		if ir.Err != nil {
			out.Error = ir.Err.Error()
			out.Stage, _ = pipeline.StageOf(ir.Err)
			out.Insight = nil
		} else if ir.Insight != nil {
			out.Markdown = ir.Insight.Markdown()
		}
		resp.Insights = append(resp.Insights, out)
	}

	status := http.StatusOK
	if err != nil {
		status, resp.Stage = statusFor(err)
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusNotFound, errHistoryDisabled.Error(), "")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", "")
			return
		}
		limit = n
	}

	runs, err := s.db.ListRuns(r.URL.Query().Get("mode"), limit)
	if err != nil {
		s.logger.Error("listing runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error", "")
		return
	}
	if runs == nil {
		runs = []database.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusNotFound, errHistoryDisabled.Error(), "")
		return
	}
	run, err := s.db.GetRun(r.PathValue("id"))
	if err != nil {
		s.logger.Error("loading run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error", "")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, database.ErrRunNotFound.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleRateRun(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeError(w, http.StatusNotFound, errHistoryDisabled.Error(), "")
		return
	}
	var body feedbackRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", "")
		return
	}

	id := r.PathValue("id")
	if err := s.db.RateRun(id, body.Rating, body.Note); err != nil {
		s.writeRateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "rating": body.Rating})
}

func (s *Server) writeRateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "")
	case errors.Is(err, database.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, err.Error(), "")
	default:
		s.logger.Error("rating run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error", "")
	}
}

// readRequest decodes the request body. It writes the error response
// itself and reports false when the body is unusable.
func (s *Server) readRequest(w http.ResponseWriter, r *http.Request) (*apiRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	req, err := decodeRequest(r, s.opts.MaxUploadBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), pipeline.StageParse)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, err.Error(), pipeline.StageParse)
		return nil, false
	}
	return req, true
}

func decodeRequest(r *http.Request, maxMemory int64) (*apiRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return nil, fmt.Errorf("reading upload: %w", err)
		}
		req := &apiRequest{
			Author:   r.FormValue("author"),
			Provider: r.FormValue("provider"),
			Model:    r.FormValue("model"),
		}
		req.DryRun, _ = strconv.ParseBool(r.FormValue("dry_run"))
		for _, fh := range r.MultipartForm.File["files"] {
			f, err := fh.Open()
			if err != nil {
				return nil, fmt.Errorf("opening %s: %w", fh.Filename, err)
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
			}
			req.Files = append(req.Files, pipeline.Input{Label: fileLabel(fh.Filename), Text: string(data)})
		}
		return req, nil

	case "text/csv", "text/plain":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}
		q := r.URL.Query()
		req := &apiRequest{
			Files:    []pipeline.Input{{Label: q.Get("label"), Text: string(data)}},
			Author:   q.Get("author"),
			Provider: q.Get("provider"),
			Model:    q.Get("model"),
		}
		req.DryRun, _ = strconv.ParseBool(q.Get("dry_run"))
		return req, nil

	default:
		var req apiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return nil, err
			}
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		return &req, nil
	}
}

// fileLabel turns an uploaded filename into a dataset label.
func fileLabel(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func statusFor(err error) (int, pipeline.Stage) {
	stage, ok := pipeline.StageOf(err)
	switch {
	case !ok:
		return http.StatusInternalServerError, ""
	case stage.Boundary():
		return http.StatusBadGateway, stage
	default:
		return http.StatusBadRequest, stage
	}
}

func (s *Server) writeStageError(w http.ResponseWriter, err error) {
	status, stage := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error(), stage)
}

func writeError(w http.ResponseWriter, status int, msg string, stage pipeline.Stage) {
	writeJSON(w, status, errorResponse{Error: msg, Stage: stage})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
