package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type GameRecord struct {
	ID            string     `json:"id"`
	RoomCode      string     `json:"roomCode"`
	HostID        string     `json:"hostId"`
	QuizID        string     `json:"quizId"`
	TimerSeconds  int        `json:"timerSeconds"`
	QuestionCount int        `json:"questionCount"`
	StartedAt     time.Time  `json:"startedAt"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
}

// Result is one player's line in a finished game.
type Result struct {
	PlayerID       string
	Username       string
	ProfilePicture string
	Score          int
	Rank           int
}

// PlayerGame is a finished game seen from one player.
type PlayerGame struct {
	GameID     string    `json:"gameId"`
	RoomCode   string    `json:"roomCode"`
	QuizID     string    `json:"quizId"`
	FinalScore int       `json:"finalScore"`
	Rank       int       `json:"rank"`
	EndedAt    time.Time `json:"endedAt"`
}

func (d *DB) CreateGame(ctx context.Context, g GameRecord) (string, error) {
	id := uuid.NewString()
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO games (id, room_code, host_id, quiz_id, timer_seconds, question_count, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, g.RoomCode, g.HostID, g.QuizID, g.TimerSeconds, g.QuestionCount, g.StartedAt)
	if err != nil {
		return "", fmt.Errorf("creating game: %w", err)
	}
	return id, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func endGame(ctx context.Context, ex execer, gameID string, endedAt time.Time) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE games SET ended_at = $2 WHERE id = $1
	`, gameID, endedAt)
	if err != nil {
		return fmt.Errorf("ending game: %w", err)
	}
	return nil
}

func addGamePlayer(ctx context.Context, ex execer, gameID, playerID string, finalScore, rank int) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO game_players (game_id, player_id, final_score, rank)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (game_id, player_id) DO UPDATE SET final_score = $3, rank = $4
	`, gameID, playerID, finalScore, rank)
	if err != nil {
		return fmt.Errorf("adding game player %s: %w", playerID, err)
	}
	return nil
}

// RecordResults closes a game and stores every player's final line in one
// transaction.
func (d *DB) RecordResults(ctx context.Context, gameID string, endedAt time.Time, results []Result) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := endGame(ctx, tx, gameID, endedAt); err != nil {
		return err
	}
	for _, r := range results {
		if err := upsertPlayer(ctx, tx, r.PlayerID, r.Username, r.ProfilePicture); err != nil {
			return err
		}
		if err := addGamePlayer(ctx, tx, gameID, r.PlayerID, r.Score, r.Rank); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// PlayerHistory lists a player's finished games, newest first.
func (d *DB) PlayerHistory(ctx context.Context, playerID string, limit int) ([]PlayerGame, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT g.id, g.room_code, g.quiz_id, gp.final_score, gp.rank, g.ended_at
		FROM game_players gp
		JOIN games g ON g.id = gp.game_id
		WHERE gp.player_id = $1 AND g.ended_at IS NOT NULL
		ORDER BY g.ended_at DESC
		LIMIT $2
	`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying player history: %w", err)
	}
	defer rows.Close()

	var games []PlayerGame
	for rows.Next() {
		var g PlayerGame
		if err := rows.Scan(&g.GameID, &g.RoomCode, &g.QuizID, &g.FinalScore, &g.Rank, &g.EndedAt); err != nil {
			return nil, fmt.Errorf("scanning player history: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}
