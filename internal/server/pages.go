package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/TobiSchelling/PageInsights/internal/insights"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"Modes":          insights.Modes,
		"HistoryEnabled": s.db != nil,
	}
	if s.db != nil {
		mode := r.URL.Query().Get("mode")
		runs, err := s.db.ListRuns(mode, 100)
		if err != nil {
			s.logger.Error("listing runs", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		stats, err := s.db.GetStats()
		if err != nil {
			s.logger.Error("loading history stats", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		data["Runs"] = runs
		data["Stats"] = stats
		data["Mode"] = mode
	}
	s.render(w, http.StatusOK, "index.html", data)
}

func (s *Server) handleRunPage(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		http.NotFound(w, r)
		return
	}
	run, err := s.db.GetRun(r.PathValue("id"))
	if err != nil {
		s.logger.Error("loading run", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	var feedbackNote string
	if run == nil {
		status = http.StatusNotFound
	} else if fb, _ := s.db.GetRunFeedback(run.ID); fb != nil && fb.Note != nil {
		feedbackNote = *fb.Note
	}
	s.render(w, status, "run.html", map[string]any{
		"Run":  run,
		"Note": feedbackNote,
		"ID":   r.PathValue("id"),
	})
}

func (s *Server) handleRunFeedbackForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if s.db == nil {
		http.NotFound(w, r)
		return
	}
	rating := strings.TrimSpace(r.FormValue("rating"))
	note := strings.TrimSpace(r.FormValue("note"))
	if err := s.db.RateRun(id, rating, note); err != nil {
		s.logger.Warn("rating run", zap.String("id", id), zap.Error(err))
	}
	http.Redirect(w, r, "/runs/"+id+"#feedback", http.StatusFound)
}
