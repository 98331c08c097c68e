package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quizparty/internal/db"
)

var ErrUnknownCategory = errors.New("unknown leaderboard category")

type Queries struct {
	DB *db.DB
}

func NewQueries(database *db.DB) *Queries {
	return &Queries{DB: database}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return db.ErrNotFound
	}
	return err
}

func (q *Queries) GetPlayerGameStats(ctx context.Context, gameID, playerID string) (*PlayerGameStats, error) {
	stats := &PlayerGameStats{
		GameID:   gameID,
		PlayerID: playerID,
	}

	err := q.DB.QueryRow(ctx, `
		SELECT p.username, p.profile_picture, gp.final_score, gp.rank, g.question_count
		FROM game_players gp
		JOIN players p ON p.id = gp.player_id
		JOIN games g ON g.id = gp.game_id
		WHERE gp.game_id = $1 AND gp.player_id = $2
	`, gameID, playerID).Scan(&stats.Username, &stats.ProfilePicture, &stats.Score, &stats.Rank, &stats.QuestionCount)
	if err != nil {
		return nil, fmt.Errorf("getting game player: %w", notFound(err))
	}

	stats.fillDerived()
	stats.Badges = EvaluateGameBadges(*stats)
	return stats, nil
}

func (q *Queries) GetPlayerLifetimeStats(ctx context.Context, playerID string) (*PlayerLifetimeStats, error) {
	stats := &PlayerLifetimeStats{
		PlayerID: playerID,
	}

	err := q.DB.QueryRow(ctx, `SELECT username, profile_picture FROM players WHERE id = $1`, playerID).
		Scan(&stats.Username, &stats.ProfilePicture)
	if err != nil {
		return nil, fmt.Errorf("getting player: %w", notFound(err))
	}

	err = q.DB.QueryRow(ctx, `
		SELECT
			COUNT(*) as games_played,
			COALESCE(SUM(final_score), 0) as total_score,
			COALESCE(MAX(final_score), 0) as best_game,
			COUNT(*) FILTER (WHERE rank = 1) as win_count
		FROM game_players
		WHERE player_id = $1
	`, playerID).Scan(&stats.GamesPlayed, &stats.TotalScore, &stats.BestGame, &stats.WinCount)
	if err != nil {
		return nil, fmt.Errorf("getting lifetime stats: %w", err)
	}

	// most recent consecutive wins
	rows, err := q.DB.Query(ctx, `
		SELECT gp.rank
		FROM game_players gp
		JOIN games g ON g.id = gp.game_id
		WHERE gp.player_id = $1 AND g.ended_at IS NOT NULL
		ORDER BY g.ended_at DESC
	`, playerID)
	if err != nil {
		return nil, fmt.Errorf("getting win streak: %w", err)
	}
	defer rows.Close()

	streak := 0
	for rows.Next() {
		var rank int
		if err := rows.Scan(&rank); err != nil {
			return nil, err
		}
		if rank != 1 {
			break
		}
		streak++
	}
	stats.WinStreak = streak

	stats.Badges = EvaluateLifetimeBadges(*stats)
	return stats, nil
}

var leaderboardQueries = map[string]string{
	"score": `
		SELECT p.id, p.username, p.profile_picture, COALESCE(SUM(gp.final_score), 0) as value
		FROM players p
		JOIN game_players gp ON gp.player_id = p.id
		GROUP BY p.id, p.username, p.profile_picture
		ORDER BY value DESC
		LIMIT $1`,
	"wins": `
		SELECT p.id, p.username, p.profile_picture, COUNT(*) FILTER (WHERE gp.rank = 1) as value
		FROM players p
		JOIN game_players gp ON gp.player_id = p.id
		GROUP BY p.id, p.username, p.profile_picture
		ORDER BY value DESC
		LIMIT $1`,
	"games": `
		SELECT p.id, p.username, p.profile_picture, COUNT(*) as value
		FROM players p
		JOIN game_players gp ON gp.player_id = p.id
		GROUP BY p.id, p.username, p.profile_picture
		ORDER BY value DESC
		LIMIT $1`,
	"best": `
		SELECT p.id, p.username, p.profile_picture, COALESCE(MAX(gp.final_score), 0) as value
		FROM players p
		JOIN game_players gp ON gp.player_id = p.id
		GROUP BY p.id, p.username, p.profile_picture
		ORDER BY value DESC
		LIMIT $1`,
}

// GetLeaderboard ranks archived players by one of score, wins, games or best.
// Equal values share a rank.
func (q *Queries) GetLeaderboard(ctx context.Context, category string, limit int) ([]LeaderboardEntry, error) {
	query, ok := leaderboardQueries[category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, category)
	}

	rows, err := q.DB.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []LeaderboardEntry{}
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.PlayerID, &e.Username, &e.ProfilePicture, &e.Value); err != nil {
			return nil, err
		}
		e.Rank = len(entries) + 1
		if n := len(entries); n > 0 && entries[n-1].Value == e.Value {
			e.Rank = entries[n-1].Rank
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (q *Queries) GetGameRecap(ctx context.Context, gameID string) (*GameRecap, error) {
	recap := &GameRecap{GameID: gameID}

	err := q.DB.QueryRow(ctx, `
		SELECT room_code, quiz_id, question_count, started_at, ended_at FROM games WHERE id = $1
	`, gameID).Scan(&recap.RoomCode, &recap.QuizID, &recap.QuestionCount, &recap.StartedAt, &recap.EndedAt)
	if err != nil {
		return nil, fmt.Errorf("getting game: %w", notFound(err))
	}

	rows, err := q.DB.Query(ctx, `
		SELECT gp.player_id, p.username, p.profile_picture, gp.final_score, gp.rank
		FROM game_players gp
		JOIN players p ON p.id = gp.player_id
		WHERE gp.game_id = $1
		ORDER BY gp.rank, p.username
	`, gameID)
	if err != nil {
		return nil, fmt.Errorf("getting game players: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var playerID, username, picture string
		var score, rank int
		if err := rows.Scan(&playerID, &username, &picture, &score, &rank); err != nil {
			return nil, err
		}
		s := GameStats(gameID, playerID, score, rank, recap.QuestionCount)
		s.Username, s.ProfilePicture = username, picture
		recap.Players = append(recap.Players, s)
	}
	return recap, rows.Err()
}
