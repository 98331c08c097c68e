package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"quizparty/internal/quiz"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrRoomFull          = errors.New("room is full")
	ErrAlreadyStarted    = errors.New("game already started")
	ErrNotStarted        = errors.New("game not started")
	ErrNoCurrentQuestion = errors.New("no current question")
	ErrAlreadyAnswered   = errors.New("already answered")
	ErrCodeGeneration    = errors.New("could not generate a unique room code")
	ErrNoQuestions       = errors.New("quiz has no questions")
	ErrQuestionClosed    = errors.New("question already revealed")
)

// Registry is the only owner of Room values. Every operation locks the room
// it touches, so operations on different rooms never contend.
type Registry struct {
	mu      sync.Mutex // guards create and delete against each other
	store   Storage
	bank    quiz.Bank
	rng     Rand
	newCode CodeGenerator
	now     func() time.Time
	logger  *slog.Logger
	timer   int // default seconds per question
}

type Option func(*Registry)

func WithStorage(s Storage) Option { return func(r *Registry) { r.store = s } }

func WithRand(rng Rand) Option { return func(r *Registry) { r.rng = rng } }

func WithCodeGenerator(g CodeGenerator) Option { return func(r *Registry) { r.newCode = g } }

func WithClock(now func() time.Time) Option { return func(r *Registry) { r.now = now } }

func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.logger = l } }

// WithDefaultTimer sets the seconds per question used when a host does not
// pick one. Values below one are ignored.
func WithDefaultTimer(seconds int) Option {
	return func(r *Registry) {
		if seconds > 0 {
			r.timer = seconds
		}
	}
}

func NewRegistry(bank quiz.Bank, opts ...Option) *Registry {
	r := &Registry{
		bank:   bank,
		now:    time.Now,
		logger: slog.Default(),
		timer:  DefaultTimerDuration,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.store == nil {
		r.store = NewMemoryStore()
	}
	if r.rng == nil {
		r.rng = NewRand(0)
	}
	if r.newCode == nil {
		r.newCode = NewCodeGenerator(r.rng)
	}
	r.logger = r.logger.With("component", "rooms")
	return r
}

// StartSettings are supplied by the host when starting a game.
type StartSettings struct {
	GameID        string `json:"gameId"`
	TimerDuration int    `json:"timerDuration"`
}

type LeaveResult struct {
	// Room is nil when the room was deleted.
	Room    *RoomState
	Deleted bool
}

type AnswerResult struct {
	Correct     bool
	Score       int
	AllAnswered bool
	Room        RoomState
}

type AdvanceResult struct {
	GameOver bool
	Question *QuestionView
	Room     RoomState
}

type ExistsResult struct {
	Exists      bool   `json:"exists"`
	Joinable    bool   `json:"joinable"`
	Status      Status `json:"status,omitempty"`
	PlayerCount int    `json:"playerCount"`
}

// withRoom runs fn with the room locked. A room deleted while the caller
// waited for the lock reports ErrRoomNotFound.
func (r *Registry) withRoom(code string, fn func(room *Room) error) error {
	room, ok := r.store.Get(code)
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.removed {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	return fn(room)
}

// deleteLocked removes a room whose lock is held by the caller.
func (r *Registry) deleteLocked(room *Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room.removed = true
	r.store.Delete(room.Code)
}

func (r *Registry) CreateRoom(creatorID string) (RoomState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for range maxCodeAttempts {
		code := r.newCode()
		if _, exists := r.store.Get(code); exists {
			continue
		}
		room := &Room{
			Code:          code,
			CreatorID:     creatorID,
			Status:        StatusWaiting,
			TimerDuration: r.timer,
			Players:       []*Player{},
			Viewers:       []*Viewer{},
			CreatedAt:     r.now(),
		}
		r.store.Put(room)
		r.logger.Info("room created", "code", code, "creator", creatorID)
		return room.snapshot(), nil
	}
	return RoomState{}, fmt.Errorf("%w after %d attempts", ErrCodeGeneration, maxCodeAttempts)
}

func (r *Registry) GetRoom(code string) (RoomState, error) {
	var state RoomState
	err := r.withRoom(code, func(room *Room) error {
		state = room.snapshot()
		return nil
	})
	return state, err
}

// Exists reports whether a room is live and still accepts players.
func (r *Registry) Exists(code string) ExistsResult {
	var res ExistsResult
	_ = r.withRoom(code, func(room *Room) error {
		res = ExistsResult{
			Exists:      true,
			Joinable:    room.Status == StatusWaiting && len(room.Players) < MaxPlayers,
			Status:      room.Status,
			PlayerCount: len(room.Players),
		}
		return nil
	})
	return res
}

// JoinRoom adds user to a waiting room. A user already seated is treated as
// a profile refresh and starts again from zero.
func (r *Registry) JoinRoom(code string, user User) (RoomState, error) {
	var state RoomState
	err := r.withRoom(code, func(room *Room) error {
		if room.Status != StatusWaiting {
			return ErrAlreadyStarted
		}
		if len(room.Players) >= MaxPlayers {
			return ErrRoomFull
		}
		if p, _ := room.player(user.ID); p != nil {
			p.Username = user.Username
			p.ProfilePicture = user.ProfilePicture
			p.Mode = user.Mode
			p.HasAnswered = false
			p.Score = 0
			p.IsConnected = true
		} else {
			room.Players = append(room.Players, &Player{
				ID:             user.ID,
				Username:       user.Username,
				ProfilePicture: user.ProfilePicture,
				Mode:           user.Mode,
				IsConnected:    true,
			})
		}
		if c, _ := room.player(room.CreatorID); c == nil {
			room.CreatorID = user.ID
		}
		state = room.snapshot()
		return nil
	})
	return state, err
}

// RejoinRoom reconnects a seated player without touching score.
func (r *Registry) RejoinRoom(code, playerID string) (RoomState, error) {
	var state RoomState
	err := r.withRoom(code, func(room *Room) error {
		p, _ := room.player(playerID)
		if p == nil {
			return fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
		}
		p.IsConnected = true
		state = room.snapshot()
		return nil
	})
	return state, err
}

// LeaveRoom removes a player from a waiting room, deleting the room when it
// empties. Once a game has started the seat is kept and only marked offline.
func (r *Registry) LeaveRoom(code, playerID string) (LeaveResult, error) {
	var res LeaveResult
	err := r.withRoom(code, func(room *Room) error {
		p, i := room.player(playerID)
		if p == nil {
			return fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
		}
		if room.Status != StatusWaiting {
			p.IsConnected = false
			state := room.snapshot()
			res.Room = &state
			return nil
		}

		room.Players = append(room.Players[:i], room.Players[i+1:]...)
		if len(room.Players) == 0 {
			r.deleteLocked(room)
			res.Deleted = true
			r.logger.Info("room deleted", "code", room.Code)
			return nil
		}
		if room.CreatorID == playerID {
			room.CreatorID = room.Players[0].ID
			r.logger.Debug("creator changed", "code", room.Code, "creator", room.CreatorID)
		}
		state := room.snapshot()
		res.Room = &state
		return nil
	})
	return res, err
}

// StartGame loads the quiz and opens its first question. The quiz is loaded
// before the room is locked.
func (r *Registry) StartGame(ctx context.Context, code string, settings StartSettings) (RoomState, error) {
	if !r.Exists(code).Exists {
		return RoomState{}, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	q, err := r.bank.Load(ctx, settings.GameID)
	if err != nil {
		return RoomState{}, fmt.Errorf("loading quiz %s: %w", settings.GameID, err)
	}
	if len(q.Questions) == 0 {
		return RoomState{}, fmt.Errorf("%w: %s", ErrNoQuestions, settings.GameID)
	}
	view, err := buildQuestionView(q, 0, r.rng)
	if err != nil {
		return RoomState{}, fmt.Errorf("preparing first question: %w", err)
	}

	var state RoomState
	err = r.withRoom(code, func(room *Room) error {
		if room.Status != StatusWaiting {
			return ErrAlreadyStarted
		}
		now := r.now()
		room.Status = StatusPlaying
		room.Game = q
		room.StartedAt = &now
		room.CurrentQuestionIndex = 0
		room.CurrentQuestion = view
		room.QuestionClosed = false
		room.TimerDuration = settings.TimerDuration
		if room.TimerDuration <= 0 {
			room.TimerDuration = r.timer
		}
		for _, p := range room.Players {
			p.HasAnswered = false
		}
		state = room.snapshot()
		return nil
	})
	if err == nil {
		r.logger.Info("game started", "code", code, "quiz", q.ID, "questions", len(q.Questions))
	}
	return state, err
}

// SubmitAnswer scores a player's first answer to the current question.
func (r *Registry) SubmitAnswer(code, playerID, answer string) (AnswerResult, error) {
	var res AnswerResult
	err := r.withRoom(code, func(room *Room) error {
		p, _ := room.player(playerID)
		if p == nil {
			return fmt.Errorf("%w: %s", ErrPlayerNotFound, playerID)
		}
		if room.Status != StatusPlaying {
			return ErrNotStarted
		}
		if room.CurrentQuestion == nil || room.Game == nil || room.CurrentQuestionIndex >= len(room.Game.Questions) {
			return ErrNoCurrentQuestion
		}
		if room.QuestionClosed {
			return ErrQuestionClosed
		}
		if p.HasAnswered {
			return ErrAlreadyAnswered
		}
		if answer == room.Game.Questions[room.CurrentQuestionIndex].Answer {
			p.Score += CorrectAnswerPoints
			res.Correct = true
		}
		p.HasAnswered = true
		res.Score = p.Score
		res.AllAnswered = room.allAnswered()
		res.Room = room.snapshot()
		return nil
	})
	return res, err
}

// NextQuestion moves to the following question or finishes the game.
func (r *Registry) NextQuestion(code string) (AdvanceResult, error) {
	var res AdvanceResult
	err := r.withRoom(code, func(room *Room) error {
		if room.Status == StatusWaiting {
			return ErrNotStarted
		}
		room.CurrentQuestionIndex++
		total := 0
		if room.Game != nil {
			total = len(room.Game.Questions)
		}
		if room.Status == StatusFinished || room.CurrentQuestionIndex >= total {
			r.finishLocked(room)
			res.GameOver = true
			res.Room = room.snapshot()
			return nil
		}
		view, err := buildQuestionView(room.Game, room.CurrentQuestionIndex, r.rng)
		if err != nil {
			r.logger.Warn("question view failed, ending game", "code", room.Code, "index", room.CurrentQuestionIndex, "error", err)
			r.finishLocked(room)
			res.GameOver = true
			res.Room = room.snapshot()
			return nil
		}
		for _, p := range room.Players {
			p.HasAnswered = false
		}
		room.CurrentQuestion = view
		room.QuestionClosed = false
		res.Room = room.snapshot()
		res.Question = res.Room.CurrentQuestion
		return nil
	})
	return res, err
}

func (r *Registry) finishLocked(room *Room) {
	if room.Status == StatusPlaying {
		r.logger.Info("game finished", "code", room.Code)
	}
	room.Status = StatusFinished
	room.CurrentQuestion = nil
	room.QuestionClosed = false
}

// CloseQuestion marks the current question as revealed. Later answers are
// refused until the room moves on.
func (r *Registry) CloseQuestion(code string) error {
	return r.withRoom(code, func(room *Room) error {
		if room.Status != StatusPlaying || room.CurrentQuestion == nil {
			return ErrNoCurrentQuestion
		}
		room.QuestionClosed = true
		return nil
	})
}

// GetCorrectAnswer returns the answer for questionID in the room's loaded quiz.
func (r *Registry) GetCorrectAnswer(code, questionID string) (string, bool) {
	var answer string
	var found bool
	_ = r.withRoom(code, func(room *Room) error {
		if room.Game == nil {
			return nil
		}
		for _, q := range room.Game.Questions {
			if q.ID == questionID {
				answer, found = q.Answer, true
				break
			}
		}
		return nil
	})
	return answer, found
}

// ResetGame puts the room back in the lobby with everyone's score at zero.
func (r *Registry) ResetGame(code string) (RoomState, error) {
	var state RoomState
	err := r.withRoom(code, func(room *Room) error {
		room.Status = StatusWaiting
		room.Game = nil
		room.CurrentQuestion = nil
		room.QuestionClosed = false
		room.CurrentQuestionIndex = 0
		room.StartedAt = nil
		for _, p := range room.Players {
			p.Score = 0
			p.HasAnswered = false
		}
		state = room.snapshot()
		return nil
	})
	return state, err
}

// AddViewer attaches a spectator. Viewers never affect scoring or phase.
func (r *Registry) AddViewer(code, viewerID string) (RoomState, error) {
	var state RoomState
	err := r.withRoom(code, func(room *Room) error {
		if v, _ := room.viewer(viewerID); v != nil {
			v.IsConnected = true
		} else {
			room.Viewers = append(room.Viewers, &Viewer{ID: viewerID, IsConnected: true})
		}
		state = room.snapshot()
		return nil
	})
	return state, err
}

func (r *Registry) RemoveViewer(code, viewerID string) error {
	return r.withRoom(code, func(room *Room) error {
		if _, i := room.viewer(viewerID); i >= 0 {
			room.Viewers = append(room.Viewers[:i], room.Viewers[i+1:]...)
		}
		return nil
	})
}

// AllAnswered reports whether every connected player answered the current question.
func (r *Registry) AllAnswered(code string) bool {
	var all bool
	_ = r.withRoom(code, func(room *Room) error {
		all = room.Status == StatusPlaying && room.CurrentQuestion != nil && room.allAnswered()
		return nil
	})
	return all
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	return len(r.store.List())
}

// SweepFinished deletes finished rooms created before cutoff and returns
// their codes.
func (r *Registry) SweepFinished(cutoff time.Time) []string {
	var swept []string
	for _, room := range r.store.List() {
		room.mu.Lock()
		if !room.removed && room.Status == StatusFinished && room.CreatedAt.Before(cutoff) {
			r.deleteLocked(room)
			swept = append(swept, room.Code)
		}
		room.mu.Unlock()
	}
	return swept
}

// RunSweeper removes stale finished rooms every interval until ctx is done.
// A non-positive ttl or interval disables it.
func (r *Registry) RunSweeper(ctx context.Context, interval, ttl time.Duration) {
	if ttl <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if swept := r.SweepFinished(r.now().Add(-ttl)); len(swept) > 0 {
				r.logger.Info("swept finished rooms", "count", len(swept))
			}
		}
	}
}

// Close discards every room.
func (r *Registry) Close() {
	for _, room := range r.store.List() {
		room.mu.Lock()
		room.removed = true
		room.mu.Unlock()
	}
	r.mu.Lock()
	r.store.Clear()
	r.mu.Unlock()
}
