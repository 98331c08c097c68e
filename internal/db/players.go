package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

type PlayerRecord struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	ProfilePicture string    `json:"profilePicture"`
	CreatedAt      time.Time `json:"createdAt"`
}

func upsertPlayer(ctx context.Context, ex execer, id, username, profilePicture string) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO players (id, username, profile_picture)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET username = $2, profile_picture = $3, updated_at = now()
	`, id, username, profilePicture)
	if err != nil {
		return fmt.Errorf("upserting player %s: %w", id, err)
	}
	return nil
}

func (d *DB) GetPlayer(ctx context.Context, id string) (*PlayerRecord, error) {
	var p PlayerRecord
	err := d.conn.QueryRowContext(ctx, `
		SELECT id, username, profile_picture, created_at FROM players WHERE id = $1
	`, id).Scan(&p.ID, &p.Username, &p.ProfilePicture, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting player: %w", err)
	}
	return &p, nil
}
