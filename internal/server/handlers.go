package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"quizparty/internal/broadcast"
	"quizparty/internal/db"
	"quizparty/internal/leaderboard"
	"quizparty/internal/quiz"
	"quizparty/internal/rooms"
	"quizparty/internal/wshub"
)

const (
	qrSize           = 320
	leaderboardLimit = 10
)

type Server struct {
	Registry    *rooms.Registry
	Hub         *wshub.Hub
	Catalog     *quiz.Catalog
	Feed        *broadcast.Broadcaster
	DB          *db.DB              // nil if no database configured
	Leaderboard *leaderboard.Mirror // nil if no redis configured
	Origins     []string
	Logger      *slog.Logger
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func roomCode(r *http.Request) string {
	return wshub.NormalizeCode(chi.URLParam(r, "code"))
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Catalog.List())
}

type createRoomRequest struct {
	PlayerID string `json:"playerId"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PlayerID == "" {
		req.PlayerID = uuid.NewString()
	}

	state, err := s.Registry.CreateRoom(req.PlayerID)
	if err != nil {
		s.logger().Error("create room failed", "error", err)
		if errors.Is(err, rooms.ErrCodeGeneration) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create room")
		return
	}
	s.logger().Info("room created", "room", state.Code, "creator", req.PlayerID)
	writeJSON(w, http.StatusCreated, state)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	state, err := s.Registry.GetRoom(roomCode(r))
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleRoomExists(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.Exists(roomCode(r)))
}

// handleRoomQR renders a PNG pointing at the join page for the room.
func (s *Server) handleRoomQR(w http.ResponseWriter, r *http.Request) {
	code := roomCode(r)
	if !s.Registry.Exists(code).Exists {
		writeError(w, http.StatusNotFound, rooms.ErrRoomNotFound.Error())
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	join := url.URL{Scheme: scheme, Host: r.Host, Path: "/", RawQuery: url.Values{"room": {code}}.Encode()}

	png, err := qrcode.Encode(join.String(), qrcode.Medium, qrSize)
	if err != nil {
		s.logger().Error("qr generation failed", "room", code, "error", err)
		writeError(w, http.StatusInternalServerError, "qr generation failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

type roomLeaderboardResponse struct {
	Source  string              `json:"source"`
	Entries []leaderboard.Entry `json:"entries"`
	// PlayerRank answers ?player=; 0 when the player has no score yet.
	PlayerRank int `json:"playerRank,omitempty"`
}

// handleRoomLeaderboard serves the mirrored ranking when Redis is configured
// and falls back to the live room otherwise. ?player= adds that player's rank.
func (s *Server) handleRoomLeaderboard(w http.ResponseWriter, r *http.Request) {
	code := roomCode(r)
	player := r.URL.Query().Get("player")
	if s.Leaderboard != nil {
		entries, err := s.Leaderboard.Top(r.Context(), code, leaderboardLimit)
		if err == nil && len(entries) > 0 {
			res := roomLeaderboardResponse{Source: "redis", Entries: entries}
			if player != "" {
				if res.PlayerRank, err = s.Leaderboard.RankOf(r.Context(), code, player); err != nil {
					s.logger().Warn("leaderboard rank read failed", "room", code, "player", player, "error", err)
				}
			}
			writeJSON(w, http.StatusOK, res)
			return
		}
		if err != nil {
			s.logger().Warn("leaderboard mirror read failed", "room", code, "error", err)
		}
	}

	state, err := s.Registry.GetRoom(code)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	res := roomLeaderboardResponse{Source: "room", Entries: []leaderboard.Entry{}}
	for i, st := range state.Standings() {
		if st.ID == player {
			res.PlayerRank = i + 1
		}
		if len(res.Entries) < leaderboardLimit {
			res.Entries = append(res.Entries, leaderboard.Entry{PlayerID: st.ID, Score: st.Score, Rank: st.Rank})
		}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.DB != nil {
		if err := s.DB.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db_error", "error": err.Error()})
			return
		}
	}
	if s.Leaderboard != nil {
		if err := s.Leaderboard.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "redis_error", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rooms": s.Registry.Len()})
}

// handleWS upgrades the request and hands the connection to the hub for
// its lifetime.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.Origins,
	})
	if err != nil {
		s.logger().Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	client := wshub.NewClient(conn)
	s.logger().Debug("client connected", "client", client.ID)
	s.Hub.Serve(r.Context(), client)
	conn.Close(websocket.StatusNormalClosure, "")
}

// handleRoomEvents streams the room's lifecycle events as server-sent
// events until the client goes away.
func (s *Server) handleRoomEvents(w http.ResponseWriter, r *http.Request) {
	code := roomCode(r)
	if s.Feed == nil {
		writeError(w, http.StatusServiceUnavailable, "event feed disabled")
		return
	}
	if !s.Registry.Exists(code).Exists {
		writeError(w, http.StatusNotFound, rooms.ErrRoomNotFound.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	msgChan := s.Feed.Subscribe(code)
	defer s.Feed.Unsubscribe(code, msgChan)
	s.logger().Debug("feed subscribed", "room", code, "subscribers", s.Feed.Subscribers(code))

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\n", msg.Event)
			for _, line := range strings.Split(msg.Data, "\n") {
				fmt.Fprintf(w, "data: %s\n", line)
			}
			fmt.Fprint(w, "\n")
			flusher.Flush()
		}
	}
}
