package events

import (
	"time"
)

const bufferSize = 64

// GameStarted is published when a host starts a quiz in a room.
type GameStarted struct {
	RoomCode      string    `json:"roomCode"`
	HostID        string    `json:"hostId"`
	QuizID        string    `json:"quizId"`
	TimerDuration int       `json:"timerDuration"`
	QuestionCount int       `json:"questionCount"`
	StartedAt     time.Time `json:"startedAt"`
}

// ScoresRevealed is published after every question reveal.
type ScoresRevealed struct {
	RoomCode   string         `json:"roomCode"`
	QuestionID string         `json:"questionId"`
	Scores     map[string]int `json:"scores"`
}

type PlayerResult struct {
	PlayerID       string `json:"playerId"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
	Score          int    `json:"score"`
	Rank           int    `json:"rank"`
}

// GameFinished carries the final ranking of a room.
type GameFinished struct {
	RoomCode string         `json:"roomCode"`
	Results  []PlayerResult `json:"results"`
	EndedAt  time.Time      `json:"endedAt"`
}

// Bus carries game lifecycle events from the hub to background workers.
// Publishing never blocks; events are dropped when a buffer is full.
type Bus struct {
	GameStarts chan GameStarted
	Reveals    chan ScoresRevealed
	GameEnds   chan GameFinished
}

func NewBus() *Bus {
	return &Bus{
		GameStarts: make(chan GameStarted, bufferSize),
		Reveals:    make(chan ScoresRevealed, bufferSize),
		GameEnds:   make(chan GameFinished, bufferSize),
	}
}

func (b *Bus) PublishStart(ev GameStarted) bool {
	if b == nil {
		return false
	}
	select {
	case b.GameStarts <- ev:
		return true
	default:
		return false
	}
}

func (b *Bus) PublishReveal(ev ScoresRevealed) bool {
	if b == nil {
		return false
	}
	select {
	case b.Reveals <- ev:
		return true
	default:
		return false
	}
}

func (b *Bus) PublishEnd(ev GameFinished) bool {
	if b == nil {
		return false
	}
	select {
	case b.GameEnds <- ev:
		return true
	default:
		return false
	}
}
