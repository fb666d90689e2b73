package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/attune-hq/attune/internal/core"
)

// --- Suggestions ---

func (s *Server) handleGetSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.engine.PendingSuggestions()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if suggestions == nil {
		suggestions = []core.Suggestion{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

func (s *Server) handleGenerateSuggestions(w http.ResponseWriter, r *http.Request) {
	count, warnings := s.engine.GenerateSuggestions()

	warningStrs := []string{}
	for _, warn := range warnings {
		warningStrs = append(warningStrs, warn.Error())
	}

	if count > 0 {
		s.Broadcast("suggestions.new", map[string]int{"count": count})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"inserted": count,
		"warnings": warningStrs,
	})
}

func (s *Server) handleAcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	s.resolveSuggestion(w, r, s.engine.AcceptSuggestion)
}

func (s *Server) handleDismissSuggestion(w http.ResponseWriter, r *http.Request) {
	s.resolveSuggestion(w, r, s.engine.DismissSuggestion)
}

func (s *Server) resolveSuggestion(w http.ResponseWriter, r *http.Request, resolve func(int64) (*core.Suggestion, error)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid suggestion id")
		return
	}

	sg, err := resolve(id)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrSuggestionNotFound):
			s.respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, core.ErrSuggestionResolved):
			s.respondError(w, http.StatusConflict, err.Error())
		default:
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.Broadcast("suggestion.resolved", map[string]interface{}{"id": sg.ID, "status": sg.Status})
	s.respondJSON(w, http.StatusOK, sg)
}

// --- Contacts ---

func (s *Server) handleGetContacts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	contacts, err := s.engine.TopContacts(limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if contacts == nil {
		contacts = []core.Contact{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"contacts": contacts,
		"count":    len(contacts),
	})
}

func (s *Server) handleGetContactInsight(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")

	insight, err := s.engine.ContactInsight(email)
	if err != nil {
		if errors.Is(err, core.ErrRecordNotFound) {
			s.respondError(w, http.StatusNotFound, "contact not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, insight)
}

// --- Emails ---

func (s *Server) handleGetUnanswered(w http.ResponseWriter, r *http.Request) {
	unanswered, err := s.engine.UnansweredEmails(20)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if unanswered == nil {
		unanswered = []core.UnansweredEmail{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"emails": unanswered,
		"count":  len(unanswered),
	})
}

// --- Observation ---

func (s *Server) handleObserveCalendar(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.ObserveCalendar(r.Context())
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	if count > 0 {
		s.Broadcast("observation.calendar", map[string]int{"count": count})
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"observed": count})
}

func (s *Server) handleObserveEmail(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.ObserveEmail(r.Context())
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	if count > 0 {
		s.Broadcast("observation.email", map[string]int{"count": count})
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"observed": count})
}

// --- Autonomy ---

func (s *Server) handleGetAutonomy(w http.ResponseWriter, r *http.Request) {
	settings, err := s.engine.AutonomySettings()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if settings == nil {
		settings = []core.AutonomySetting{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"settings": settings})
}

type setLevelRequest struct {
	Level string `json:"level"`
}

func (s *Server) handleSetAutonomyLevel(w http.ResponseWriter, r *http.Request) {
	activity, err := core.ParseActivityType(chi.URLParam(r, "activity"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req setLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	level, err := core.ParseLevel(req.Level)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.engine.SetAutonomyLevel(activity, level); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{
		"activity_type": string(activity),
		"level":         string(level),
	})
}

func (s *Server) handleGetPromotionEligible(w http.ResponseWriter, r *http.Request) {
	eligible, err := s.engine.PromotionEligible()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if eligible == nil {
		eligible = []core.AutonomySetting{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"eligible": eligible})
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	activity, err := core.ParseActivityType(chi.URLParam(r, "activity"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	setting, err := s.engine.Promote(activity)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNotEligible):
			s.respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, core.ErrRecordNotFound):
			s.respondError(w, http.StatusNotFound, err.Error())
		default:
			s.respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.Broadcast("autonomy.promoted", map[string]string{
		"activity_type": string(setting.ActivityType),
		"level":         string(setting.Level),
	})
	s.respondJSON(w, http.StatusOK, setting)
}

// --- Stats ---

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": s.engine.Tasks(),
		"stats": s.engine.TaskStats(),
	})
}

// --- Data management ---

func (s *Server) handleClearData(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearAllData(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.Broadcast("data.cleared", nil)
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
