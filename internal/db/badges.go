package db

import (
	"context"
	"fmt"
	"time"
)

type AwardedBadge struct {
	BadgeID   string    `json:"badgeId"`
	GameID    *string   `json:"gameId,omitempty"`
	AwardedAt time.Time `json:"awardedAt"`
}

// AwardBadge records a badge once per player. gameID is nil for badges
// earned across games.
func (d *DB) AwardBadge(ctx context.Context, playerID, badgeID string, gameID *string) error {
	_, err := d.conn.ExecContext(ctx, `
		INSERT INTO player_badges (player_id, badge_id, game_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id, badge_id) DO NOTHING
	`, playerID, badgeID, gameID)
	if err != nil {
		return fmt.Errorf("awarding badge: %w", err)
	}
	return nil
}

func (d *DB) GetPlayerBadges(ctx context.Context, playerID string) ([]AwardedBadge, error) {
	rows, err := d.conn.QueryContext(ctx, `
		SELECT badge_id, game_id, awarded_at FROM player_badges WHERE player_id = $1 ORDER BY awarded_at
	`, playerID)
	if err != nil {
		return nil, fmt.Errorf("getting badges: %w", err)
	}
	defer rows.Close()

	badges := []AwardedBadge{}
	for rows.Next() {
		var b AwardedBadge
		if err := rows.Scan(&b.BadgeID, &b.GameID, &b.AwardedAt); err != nil {
			return nil, err
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}
