package server

import (
	"context"
	"log/slog"
	"time"

	"quizparty/internal/analytics"
	"quizparty/internal/broadcast"
	"quizparty/internal/db"
	"quizparty/internal/events"
	"quizparty/internal/leaderboard"
)

const storeTimeout = 5 * time.Second

// Feed event names.
const (
	feedGameStarted = "gameStarted"
	feedScores      = "scores"
	feedGameEnded   = "gameEnded"
)

// archiver drains the event bus into the room event feed and the optional
// backends. It runs on a single goroutine, so games needs no lock.
type archiver struct {
	feed   *broadcast.Broadcaster
	db     *db.DB                  // nil if no database configured
	mirror *leaderboard.Mirror     // nil if no redis configured
	logger *slog.Logger
	games  map[string]archivedGame // by room code
}

type archivedGame struct {
	id        string
	questions int
}

func newArchiver(feed *broadcast.Broadcaster, database *db.DB, mirror *leaderboard.Mirror, logger *slog.Logger) *archiver {
	if logger == nil {
		logger = slog.Default()
	}
	if feed == nil {
		feed = broadcast.New()
	}
	return &archiver{
		feed:   feed,
		db:     database,
		mirror: mirror,
		logger: logger.With("component", "archiver"),
		games:  make(map[string]archivedGame),
	}
}

func (a *archiver) run(ctx context.Context, bus *events.Bus) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-bus.GameStarts:
			a.gameStarted(ctx, ev)
		case ev := <-bus.Reveals:
			a.scoresRevealed(ctx, ev)
		case ev := <-bus.GameEnds:
			// a start queued behind this end must be recorded first
			a.drainStarts(ctx, bus)
			a.gameFinished(ctx, ev)
		}
	}
}

func (a *archiver) drainStarts(ctx context.Context, bus *events.Bus) {
	for {
		select {
		case ev := <-bus.GameStarts:
			a.gameStarted(ctx, ev)
		default:
			return
		}
	}
}

func (a *archiver) gameStarted(ctx context.Context, ev events.GameStarted) {
	a.feed.Publish(ev.RoomCode, feedGameStarted, ev)
	if a.mirror != nil {
		// a new round starts from an empty board
		mctx, cancel := context.WithTimeout(ctx, storeTimeout)
		if err := a.mirror.Forget(mctx, ev.RoomCode); err != nil {
			a.logger.Warn("clearing leaderboard failed", "room", ev.RoomCode, "error", err)
		}
		cancel()
	}
	if a.db == nil {
		return
	}
	dctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	id, err := a.db.CreateGame(dctx, db.GameRecord{
		RoomCode:      ev.RoomCode,
		HostID:        ev.HostID,
		QuizID:        ev.QuizID,
		TimerSeconds:  ev.TimerDuration,
		QuestionCount: ev.QuestionCount,
		StartedAt:     ev.StartedAt,
	})
	if err != nil {
		a.logger.Error("archiving game start failed", "room", ev.RoomCode, "error", err)
		delete(a.games, ev.RoomCode)
		return
	}
	a.games[ev.RoomCode] = archivedGame{id: id, questions: ev.QuestionCount}
	a.logger.Debug("game archived", "room", ev.RoomCode, "game", id)
}

func (a *archiver) scoresRevealed(ctx context.Context, ev events.ScoresRevealed) {
	a.feed.Publish(ev.RoomCode, feedScores, ev)
	a.mirrorScores(ctx, ev.RoomCode, ev.Scores)
}

func (a *archiver) mirrorScores(ctx context.Context, roomCode string, scores map[string]int) {
	if a.mirror == nil {
		return
	}
	mctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := a.mirror.Publish(mctx, roomCode, scores); err != nil {
		a.logger.Warn("publishing leaderboard failed", "room", roomCode, "error", err)
	}
}

func (a *archiver) gameFinished(ctx context.Context, ev events.GameFinished) {
	a.feed.Publish(ev.RoomCode, feedGameEnded, ev)
	if a.mirror != nil {
		scores := make(map[string]int, len(ev.Results))
		for _, r := range ev.Results {
			scores[r.PlayerID] = r.Score
		}
		a.mirrorScores(ctx, ev.RoomCode, scores)
	}
	if a.db == nil {
		return
	}
	game, ok := a.games[ev.RoomCode]
	if !ok {
		a.logger.Warn("finished game was never archived", "room", ev.RoomCode)
		return
	}
	delete(a.games, ev.RoomCode)

	results := make([]db.Result, len(ev.Results))
	for i, r := range ev.Results {
		results[i] = db.Result{
			PlayerID:       r.PlayerID,
			Username:       r.Username,
			ProfilePicture: r.ProfilePicture,
			Score:          r.Score,
			Rank:           r.Rank,
		}
	}
	dctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := a.db.RecordResults(dctx, game.id, ev.EndedAt, results); err != nil {
		a.logger.Error("archiving results failed", "room", ev.RoomCode, "game", game.id, "error", err)
		return
	}
	a.logger.Info("results archived", "room", ev.RoomCode, "game", game.id, "players", len(results))
	a.awardBadges(dctx, game, ev.Results)
}

// awardBadges stores the per-game and lifetime badges each player earned.
func (a *archiver) awardBadges(ctx context.Context, game archivedGame, results []events.PlayerResult) {
	q := analytics.NewQueries(a.db)
	for _, r := range results {
		stats := analytics.GameStats(game.id, r.PlayerID, r.Score, r.Rank, game.questions)
		for _, b := range stats.Badges {
			gameID := game.id
			if err := a.db.AwardBadge(ctx, r.PlayerID, string(b.ID), &gameID); err != nil {
				a.logger.Warn("awarding badge failed", "player", r.PlayerID, "badge", b.ID, "error", err)
			}
		}

		lifetime, err := q.GetPlayerLifetimeStats(ctx, r.PlayerID)
		if err != nil {
			a.logger.Warn("lifetime stats failed", "player", r.PlayerID, "error", err)
			continue
		}
		for _, b := range lifetime.Badges {
			if err := a.db.AwardBadge(ctx, r.PlayerID, string(b.ID), nil); err != nil {
				a.logger.Warn("awarding badge failed", "player", r.PlayerID, "badge", b.ID, "error", err)
			}
		}
	}
}
