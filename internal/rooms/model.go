package rooms

import (
	"sort"
	"sync"
	"time"

	"quizparty/internal/quiz"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

const (
	MaxPlayers           = 10
	CorrectAnswerPoints  = 100
	DefaultTimerDuration = 15
	choiceOptionCount    = 4
)

// User is the identity a client presents when joining.
type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
	Mode           string `json:"mode"`
}

type Player struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
	Mode           string `json:"mode"`
	Score          int    `json:"score"`
	HasAnswered    bool   `json:"hasAnswered"`
	IsConnected    bool   `json:"isConnected"`
}

type Viewer struct {
	ID          string `json:"id"`
	IsConnected bool   `json:"isConnected"`
}

// QuestionView is what players see for the current question. It never
// carries the answer.
type QuestionView struct {
	ID      string        `json:"id"`
	Index   int           `json:"index"`
	Total   int           `json:"total"`
	Prompt  string        `json:"prompt"`
	Image   string        `json:"image,omitempty"`
	Kind    quiz.Kind     `json:"kind"`
	Options []quiz.Option `json:"options"`
}

// Room is owned by the registry and only touched with mu held.
type Room struct {
	mu      sync.Mutex
	removed bool

	Code                 string
	CreatorID            string
	Status               Status
	TimerDuration        int
	Players              []*Player
	Viewers              []*Viewer
	Game                 *quiz.Quiz
	CurrentQuestionIndex int
	CurrentQuestion      *QuestionView
	QuestionClosed       bool
	StartedAt            *time.Time
	CreatedAt            time.Time
}

// RoomState is a detached copy of a Room safe to hand to other goroutines.
type RoomState struct {
	Code                 string        `json:"code"`
	CreatorID            string        `json:"creatorId"`
	Status               Status        `json:"status"`
	TimerDuration        int           `json:"timerDuration"`
	Players              []Player      `json:"players"`
	Viewers              []Viewer      `json:"viewers"`
	Game                 *quiz.Preview `json:"game"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	CurrentQuestion      *QuestionView `json:"currentQuestion"`
	QuestionClosed       bool          `json:"questionClosed"`
	StartedAt            *time.Time    `json:"startedAt"`
}

// Standing is one row of a final ranking.
type Standing struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
	Score          int    `json:"score"`
	Rank           int    `json:"rank"`
}

func (r *Room) snapshot() RoomState {
	s := RoomState{
		Code:                 r.Code,
		CreatorID:            r.CreatorID,
		Status:               r.Status,
		TimerDuration:        r.TimerDuration,
		Players:              make([]Player, len(r.Players)),
		Viewers:              make([]Viewer, len(r.Viewers)),
		CurrentQuestionIndex: r.CurrentQuestionIndex,
		QuestionClosed:       r.QuestionClosed,
	}
	for i, p := range r.Players {
		s.Players[i] = *p
	}
	for i, v := range r.Viewers {
		s.Viewers[i] = *v
	}
	if r.Game != nil {
		p := r.Game.Preview()
		s.Game = &p
	}
	if r.CurrentQuestion != nil {
		q := *r.CurrentQuestion
		q.Options = append([]quiz.Option(nil), r.CurrentQuestion.Options...)
		s.CurrentQuestion = &q
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		s.StartedAt = &t
	}
	return s
}

func (r *Room) player(id string) (*Player, int) {
	for i, p := range r.Players {
		if p.ID == id {
			return p, i
		}
	}
	return nil, -1
}

func (r *Room) viewer(id string) (*Viewer, int) {
	for i, v := range r.Viewers {
		if v.ID == id {
			return v, i
		}
	}
	return nil, -1
}

func (r *Room) allAnswered() bool {
	connected := 0
	for _, p := range r.Players {
		if !p.IsConnected {
			continue
		}
		connected++
		if !p.HasAnswered {
			return false
		}
	}
	return connected > 0
}

// Player finds a player in the snapshot.
func (s RoomState) Player(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Scores maps player ID to score.
func (s RoomState) Scores() map[string]int {
	scores := make(map[string]int, len(s.Players))
	for _, p := range s.Players {
		scores[p.ID] = p.Score
	}
	return scores
}

// Standings ranks players by score, highest first. Ties share a rank and
// keep roster order.
func (s RoomState) Standings() []Standing {
	out := make([]Standing, len(s.Players))
	for i, p := range s.Players {
		out[i] = Standing{ID: p.ID, Username: p.Username, ProfilePicture: p.ProfilePicture, Score: p.Score}
	}
	sortStandings(out)
	return out
}

func sortStandings(out []Standing) {
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	for i := range out {
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
		} else {
			out[i].Rank = i + 1
		}
	}
}
