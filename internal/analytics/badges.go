package analytics

import "quizparty/internal/rooms"

type BadgeID string

const (
	BadgeChampion      BadgeID = "champion"
	BadgeCenturion     BadgeID = "centurion"
	BadgeSharp         BadgeID = "sharp"
	BadgePerfectionist BadgeID = "perfectionist"
	BadgeUnstoppable   BadgeID = "unstoppable"
	BadgeVeteran       BadgeID = "veteran"
	BadgeScholar       BadgeID = "scholar"
)

type Badge struct {
	ID          BadgeID `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Icon        string  `json:"icon"`
}

var AllBadges = map[BadgeID]Badge{
	BadgeChampion:      {ID: BadgeChampion, Name: "Champion", Description: "Finished a game in first place", Icon: "🏆"},
	BadgeCenturion:     {ID: BadgeCenturion, Name: "Centurion", Description: "500+ points in a single game", Icon: "💯"},
	BadgeSharp:         {ID: BadgeSharp, Name: "Sharp", Description: "75%+ correct answers in a game", Icon: "🎯"},
	BadgePerfectionist: {ID: BadgePerfectionist, Name: "Perfectionist", Description: "Every question right in a game", Icon: "✨"},
	BadgeUnstoppable:   {ID: BadgeUnstoppable, Name: "Unstoppable", Description: "3-game win streak", Icon: "🔥"},
	BadgeVeteran:       {ID: BadgeVeteran, Name: "Veteran", Description: "Played 10+ games", Icon: "🏅"},
	BadgeScholar:       {ID: BadgeScholar, Name: "Scholar", Description: "5000+ points across all games", Icon: "📚"},
}

// correctAnswers derives how many questions a final score stands for.
func correctAnswers(score int) int {
	if score <= 0 {
		return 0
	}
	return score / rooms.CorrectAnswerPoints
}

// fillDerived sets Correct and Accuracy from Score and QuestionCount.
func (s *PlayerGameStats) fillDerived() {
	s.Correct = correctAnswers(s.Score)
	if s.QuestionCount > 0 {
		s.Accuracy = float64(s.Correct) / float64(s.QuestionCount) * 100
	}
}

// EvaluateGameBadges checks which badges a player earned in a single game.
func EvaluateGameBadges(stats PlayerGameStats) []Badge {
	var earned []Badge

	if stats.Rank == 1 && stats.Score > 0 {
		earned = append(earned, AllBadges[BadgeChampion])
	}

	if stats.Score >= 500 {
		earned = append(earned, AllBadges[BadgeCenturion])
	}

	if stats.QuestionCount > 0 && stats.Accuracy >= 75.0 {
		earned = append(earned, AllBadges[BadgeSharp])
	}

	if stats.QuestionCount > 0 && stats.Correct >= stats.QuestionCount {
		earned = append(earned, AllBadges[BadgePerfectionist])
	}

	return earned
}

// EvaluateLifetimeBadges checks which badges a player earned across their career.
func EvaluateLifetimeBadges(stats PlayerLifetimeStats) []Badge {
	var earned []Badge

	if stats.WinStreak >= 3 {
		earned = append(earned, AllBadges[BadgeUnstoppable])
	}

	if stats.GamesPlayed >= 10 {
		earned = append(earned, AllBadges[BadgeVeteran])
	}

	if stats.TotalScore >= 5000 {
		earned = append(earned, AllBadges[BadgeScholar])
	}

	return earned
}

// GameStats builds a player's line for a finished game with its derived
// fields and badges filled in.
func GameStats(gameID, playerID string, score, rank, questionCount int) PlayerGameStats {
	s := PlayerGameStats{
		GameID:        gameID,
		PlayerID:      playerID,
		Score:         score,
		Rank:          rank,
		QuestionCount: questionCount,
	}
	s.fillDerived()
	s.Badges = EvaluateGameBadges(s)
	return s
}
