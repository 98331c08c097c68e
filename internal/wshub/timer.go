package wshub

import (
	"sync"
	"time"

	"quizparty/internal/events"
	"quizparty/internal/rooms"
)

// countdown is the handle of one scheduled timer. A goroutine holding a
// handle only acts while it is still the room's current timer.
type countdown struct {
	stop chan struct{}
	once sync.Once
}

func newCountdown() *countdown {
	return &countdown{stop: make(chan struct{})}
}

func (cd *countdown) cancel() {
	cd.once.Do(func() { close(cd.stop) })
}

// cancelTimerLocked stops the room's timer. Safe when none is running.
func (h *Hub) cancelTimerLocked(rc *roomConns) {
	if rc.timer != nil {
		rc.timer.cancel()
		rc.timer = nil
	}
}

// startCountdownLocked opens the answer window: the full duration is sent
// at once, then one tick per elapsed second until zero forces a reveal.
func (h *Hub) startCountdownLocked(rc *roomConns, seconds int) {
	h.cancelTimerLocked(rc)
	if seconds <= 0 {
		seconds = rooms.DefaultTimerDuration
	}
	cd := newCountdown()
	rc.timer = cd
	rc.phase = phaseCounting
	h.broadcastLocked(rc, nil, TypeTimerTick, TimerTickPayload{TimeLeft: seconds})
	go h.runCountdown(rc, cd, seconds)
}

func (h *Hub) runCountdown(rc *roomConns, cd *countdown, seconds int) {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()
	left := seconds
	for {
		select {
		case <-cd.stop:
			return
		case <-ticker.C:
		}

		rc.mu.Lock()
		if rc.timer != cd {
			rc.mu.Unlock()
			return
		}
		left--
		h.broadcastLocked(rc, nil, TypeTimerTick, TimerTickPayload{TimeLeft: left})
		if left <= 0 {
			h.revealLocked(rc)
			rc.mu.Unlock()
			return
		}
		rc.mu.Unlock()
	}
}

// checkEarlyCompletionLocked reveals as soon as every connected player has
// answered.
func (h *Hub) checkEarlyCompletionLocked(rc *roomConns) {
	if rc.phase == phaseCounting && h.registry.AllAnswered(rc.code) {
		h.revealLocked(rc)
	}
}

// revealLocked closes the current question, sends the answer and scores
// once, then schedules the advance. It does nothing outside the answer window.
func (h *Hub) revealLocked(rc *roomConns) {
	if rc.phase != phaseCounting {
		return
	}
	h.cancelTimerLocked(rc)
	rc.phase = phaseRevealing

	state, err := h.registry.GetRoom(rc.code)
	if err != nil || state.CurrentQuestion == nil {
		h.logger.Warn("nothing to reveal", "room", rc.code, "error", err)
		rc.phase = phaseOver
		return
	}
	if err := h.registry.CloseQuestion(rc.code); err != nil {
		h.logger.Warn("closing question failed", "room", rc.code, "error", err)
	}
	answer, _ := h.registry.GetCorrectAnswer(rc.code, state.CurrentQuestion.ID)
	scores := state.Scores()
	h.broadcastLocked(rc, nil, TypeQuestionResult, QuestionResultPayload{
		QuestionID:    state.CurrentQuestion.ID,
		CorrectAnswer: answer,
		Scores:        scores,
	})
	if h.bus != nil && !h.bus.PublishReveal(events.ScoresRevealed{RoomCode: rc.code, QuestionID: state.CurrentQuestion.ID, Scores: scores}) {
		h.logger.Warn("reveal event dropped", "room", rc.code)
	}

	h.scheduleAdvanceLocked(rc)
}

// scheduleAdvanceLocked moves to the next question after the reveal pause.
// The pause occupies the room's timer slot so a manual advance cancels it.
func (h *Hub) scheduleAdvanceLocked(rc *roomConns) {
	cd := newCountdown()
	rc.timer = cd
	go func() {
		t := time.NewTimer(h.revealPause)
		defer t.Stop()
		select {
		case <-cd.stop:
			return
		case <-t.C:
		}

		rc.mu.Lock()
		defer rc.mu.Unlock()
		if rc.timer != cd {
			return
		}
		rc.timer = nil
		if err := h.advanceLocked(rc); err != nil {
			h.logger.Warn("advance failed, ending game", "room", rc.code, "error", err)
			rc.phase = phaseOver
		}
	}()
}

// advanceLocked asks the registry for the next question and either opens it
// or ends the game.
func (h *Hub) advanceLocked(rc *roomConns) error {
	h.cancelTimerLocked(rc)
	res, err := h.registry.NextQuestion(rc.code)
	if err != nil {
		return err
	}
	if res.GameOver {
		h.gameOverLocked(rc, res.Room)
		return nil
	}
	h.broadcastLocked(rc, nil, TypeNewQuestion, res.Question)
	h.startCountdownLocked(rc, res.Room.TimerDuration)
	return nil
}

func (h *Hub) gameOverLocked(rc *roomConns, state rooms.RoomState) {
	h.cancelTimerLocked(rc)
	rc.phase = phaseOver
	standings := state.Standings()
	h.broadcastLocked(rc, nil, TypeGameEnded, GameEndedPayload{FinalScores: standings})

	results := make([]events.PlayerResult, len(standings))
	for i, s := range standings {
		results[i] = events.PlayerResult{
			PlayerID:       s.ID,
			Username:       s.Username,
			ProfilePicture: s.ProfilePicture,
			Score:          s.Score,
			Rank:           s.Rank,
		}
	}
	if h.bus != nil && !h.bus.PublishEnd(events.GameFinished{RoomCode: rc.code, Results: results, EndedAt: h.now()}) {
		h.logger.Warn("game end event dropped", "room", rc.code)
	}
	h.logger.Info("game over", "room", rc.code, "players", len(standings))
}
