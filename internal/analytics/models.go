package analytics

import "time"

type PlayerGameStats struct {
	PlayerID       string  `json:"playerId"`
	Username       string  `json:"username"`
	ProfilePicture string  `json:"profilePicture"`
	GameID         string  `json:"gameId"`
	Score          int     `json:"score"`
	Rank           int     `json:"rank"`
	QuestionCount  int     `json:"questionCount"`
	Correct        int     `json:"correct"`
	Accuracy       float64 `json:"accuracy"` // percentage of questions answered correctly
	Badges         []Badge `json:"badges,omitempty"`
}

type PlayerLifetimeStats struct {
	PlayerID       string  `json:"playerId"`
	Username       string  `json:"username"`
	ProfilePicture string  `json:"profilePicture"`
	GamesPlayed    int     `json:"gamesPlayed"`
	TotalScore     int     `json:"totalScore"`
	BestGame       int     `json:"bestGame"`
	WinCount       int     `json:"winCount"`
	WinStreak      int     `json:"winStreak"`
	Badges         []Badge `json:"badges"`
}

type LeaderboardEntry struct {
	PlayerID       string `json:"playerId"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
	Value          int    `json:"value"`
	Rank           int    `json:"rank"`
}

type GameRecap struct {
	GameID        string            `json:"gameId"`
	RoomCode      string            `json:"roomCode"`
	QuizID        string            `json:"quizId"`
	QuestionCount int               `json:"questionCount"`
	StartedAt     *time.Time        `json:"startedAt"`
	EndedAt       *time.Time        `json:"endedAt"`
	Players       []PlayerGameStats `json:"players"`
}
