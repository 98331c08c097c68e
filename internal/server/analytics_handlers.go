package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"quizparty/internal/analytics"
	"quizparty/internal/db"
)

const (
	defaultStatsLimit = 10
	maxStatsLimit     = 100
)

// queries returns nil and answers 503 when no archive is configured.
func (s *Server) queries(w http.ResponseWriter) *analytics.Queries {
	if s.DB == nil {
		writeError(w, http.StatusServiceUnavailable, "stats require a database connection")
		return nil
	}
	return analytics.NewQueries(s.DB)
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultStatsLimit
	}
	return min(n, maxStatsLimit)
}

func (s *Server) statsError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	s.logger().Error("stats query failed", "what", what, "error", err)
	writeError(w, http.StatusInternalServerError, "error loading "+what)
}

func (s *Server) handleStatsLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := s.queries(w)
	if q == nil {
		return
	}
	category := r.URL.Query().Get("cat")
	if category == "" {
		category = "score"
	}

	entries, err := q.GetLeaderboard(r.Context(), category, limitParam(r))
	if err != nil {
		if errors.Is(err, analytics.ErrUnknownCategory) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.statsError(w, err, "leaderboard")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleStatsPlayer(w http.ResponseWriter, r *http.Request) {
	q := s.queries(w)
	if q == nil {
		return
	}
	stats, err := q.GetPlayerLifetimeStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.statsError(w, err, "player")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if s.queries(w) == nil {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.DB.GetPlayer(r.Context(), id); err != nil {
		s.statsError(w, err, "player")
		return
	}
	games, err := s.DB.PlayerHistory(r.Context(), id, limitParam(r))
	if err != nil {
		s.statsError(w, err, "history")
		return
	}
	if games == nil {
		games = []db.PlayerGame{}
	}
	writeJSON(w, http.StatusOK, games)
}

// gameID reads the {id} param. Archive ids are UUIDs, so anything else is
// answered 404 without a query.
func gameID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, "game not found")
		return "", false
	}
	return id, true
}

func (s *Server) handleStatsGame(w http.ResponseWriter, r *http.Request) {
	q := s.queries(w)
	if q == nil {
		return
	}
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	recap, err := q.GetGameRecap(r.Context(), id)
	if err != nil {
		s.statsError(w, err, "game")
		return
	}
	writeJSON(w, http.StatusOK, recap)
}

func (s *Server) handleStatsGamePlayer(w http.ResponseWriter, r *http.Request) {
	q := s.queries(w)
	if q == nil {
		return
	}
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	stats, err := q.GetPlayerGameStats(r.Context(), id, chi.URLParam(r, "playerId"))
	if err != nil {
		s.statsError(w, err, "game player")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type awardedBadge struct {
	analytics.Badge
	GameID    *string   `json:"gameId,omitempty"`
	AwardedAt time.Time `json:"awardedAt"`
}

func (s *Server) handleStatsBadges(w http.ResponseWriter, r *http.Request) {
	if s.queries(w) == nil {
		return
	}
	stored, err := s.DB.GetPlayerBadges(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.statsError(w, err, "badges")
		return
	}

	out := make([]awardedBadge, 0, len(stored))
	for _, b := range stored {
		badge, ok := analytics.AllBadges[analytics.BadgeID(b.BadgeID)]
		if !ok {
			// retired badge
			continue
		}
		out = append(out, awardedBadge{Badge: badge, GameID: b.GameID, AwardedAt: b.AwardedAt})
	}
	writeJSON(w, http.StatusOK, out)
}
