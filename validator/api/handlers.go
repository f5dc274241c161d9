package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cast"
)

// ScoreEntry is one uid's moving-average score.
type ScoreEntry struct {
	UID    int     `json:"uid"`
	Hotkey string  `json:"hotkey,omitempty"`
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleState handles GET /api/v1/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "validator has not published state yet")
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{Data: st, Step: st.Step, UpdatedAt: st.LastRoundAt})
}

// handleScores handles GET /api/v1/scores
func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "validator has not published state yet")
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{Data: scoreEntries(st.Scores, st.Hotkeys), Step: st.Step, UpdatedAt: st.LastRoundAt})
}

// handleScore handles GET /api/v1/scores/{uid}
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	if st == nil {
		writeError(w, http.StatusServiceUnavailable, "validator has not published state yet")
		return
	}
	uid, err := strconv.Atoi(mux.Vars(r)["uid"])
	if err != nil || uid >= len(st.Scores) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("uid %s not found", mux.Vars(r)["uid"]))
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{Data: scoreEntries(st.Scores, st.Hotkeys)[uid], Step: st.Step, UpdatedAt: st.LastRoundAt})
}

// handleCommits handles GET /api/v1/commits?limit=<n>
func (s *Server) handleCommits(w http.ResponseWriter, r *http.Request) {
	if s.commits == nil {
		writeError(w, http.StatusNotFound, "commit history is not available")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := cast.ToIntE(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	commits, err := s.commits.RecentCommits(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read commit history")
		writeError(w, http.StatusInternalServerError, "failed to read commit history")
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{Data: commits, UpdatedAt: time.Now().UTC()})
}

// handleLedger handles GET /api/v1/ledger
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		writeError(w, http.StatusNotFound, "ledger pool is not configured")
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{Data: s.pool.Stats(), UpdatedAt: time.Now().UTC()})
}

func scoreEntries(scores []float64, hotkeys []string) []ScoreEntry {
	var total float64
	for _, v := range scores {
		total += v
	}
	out := make([]ScoreEntry, len(scores))
	for uid, v := range scores {
		out[uid] = ScoreEntry{UID: uid, Score: v}
		if uid < len(hotkeys) {
			out[uid].Hotkey = hotkeys[uid]
		}
		if total > 0 {
			out[uid].Weight = v / total
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
