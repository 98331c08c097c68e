package wshub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"quizparty/internal/events"
	"quizparty/internal/rooms"
)

var (
	ErrMalformedEnvelope = errors.New("malformed message")
	ErrUnknownType       = errors.New("unknown message type")
)

// NormalizeCode upper-cases a user supplied room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Dispatch handles one inbound frame from c. Errors are answered to c only;
// a panic in a handler becomes an error frame too.
func (h *Hub) Dispatch(ctx context.Context, c *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("dispatch panic", "client", c.ID, "panic", r)
			h.sendError(c, "internal error")
		}
	}()

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		h.sendError(c, ErrMalformedEnvelope.Error())
		return
	}

	var err error
	switch msg.Type {
	case TypeJoin:
		var p JoinPayload
		if err = decode(msg, &p); err == nil {
			err = h.handleJoin(c, p)
		}
	case TypeJoinAsViewer:
		var p JoinAsViewerPayload
		if err = decode(msg, &p); err == nil {
			err = h.handleJoinAsViewer(c, p)
		}
	case TypeRejoin:
		var p PlayerPayload
		if err = decode(msg, &p); err == nil {
			err = h.handleRejoin(c, p)
		}
	case TypeLeave:
		var p PlayerPayload
		if err = decode(msg, &p); err == nil {
			err = h.handleLeave(p)
		}
	case TypeStart:
		var p StartPayload
		if err = decode(msg, &p); err == nil {
			err = h.handleStart(ctx, p)
		}
	case TypeAnswer:
		var p AnswerPayload
		if err = decode(msg, &p); err == nil {
			err = h.handleAnswer(p)
		}
	case TypeNextQuestion:
		var p RoomPayload
		if err = decode(msg, &p); err == nil {
			err = h.handleNextQuestion(p)
		}
	case TypeNewGame:
		var p RoomPayload
		if err = decode(msg, &p); err == nil {
			err = h.handleNewGame(p)
		}
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownType, msg.Type)
	}

	if err != nil {
		h.logger.Debug("message rejected", "client", c.ID, "type", msg.Type, "error", err)
		h.sendError(c, err.Error())
	}
}

func decode(msg ClientMessage, v any) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedEnvelope, msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedEnvelope, msg.Type, err)
	}
	return nil
}

func requireCode(code string) (string, error) {
	code = NormalizeCode(code)
	if code == "" {
		return "", fmt.Errorf("%w: missing roomCode", ErrMalformedEnvelope)
	}
	return code, nil
}

// checkBinding refuses to move a connection into a second room.
func checkBinding(c *Client, code string) error {
	if b := c.binding(); b.role != roleNone && b.room != code {
		return fmt.Errorf("already in room %s", b.room)
	}
	return nil
}

func (h *Hub) handleJoin(c *Client, p JoinPayload) error {
	code, err := requireCode(p.RoomCode)
	if err != nil {
		return err
	}
	if p.PlayerID == "" {
		return fmt.Errorf("%w: missing playerId", ErrMalformedEnvelope)
	}
	if err := checkBinding(c, code); err != nil {
		return err
	}

	rc := h.lockRoom(code)
	defer h.unlockRoom(rc)

	state, err := h.registry.JoinRoom(code, rooms.User{
		ID:             p.PlayerID,
		Username:       p.Username,
		ProfilePicture: p.ProfilePicture,
		Mode:           p.Mode,
	})
	if err != nil {
		return err
	}
	h.attachLocked(rc, c, rolePlayer, p.PlayerID)
	h.SendTo(c, TypeRoomState, state)
	player, _ := state.Player(p.PlayerID)
	h.broadcastLocked(rc, c, TypePlayerJoined, PlayerJoinedPayload{Player: player, Room: state})
	h.logger.Info("player joined", "room", code, "player", p.PlayerID)
	return nil
}

func (h *Hub) handleJoinAsViewer(c *Client, p JoinAsViewerPayload) error {
	code, err := requireCode(p.RoomCode)
	if err != nil {
		return err
	}
	if p.ViewerID == "" {
		p.ViewerID = c.ID
	}
	if err := checkBinding(c, code); err != nil {
		return err
	}

	rc := h.lockRoom(code)
	defer h.unlockRoom(rc)

	state, err := h.registry.AddViewer(code, p.ViewerID)
	if err != nil {
		return err
	}
	h.attachLocked(rc, c, roleViewer, p.ViewerID)
	h.SendTo(c, TypeRoomState, state)
	h.broadcastLocked(rc, c, TypeViewerJoined, ViewerJoinedPayload{ViewerID: p.ViewerID, Room: state})
	return nil
}

func (h *Hub) handleRejoin(c *Client, p PlayerPayload) error {
	code, err := requireCode(p.RoomCode)
	if err != nil {
		return err
	}
	if err := checkBinding(c, code); err != nil {
		return err
	}

	rc := h.lockRoom(code)
	defer h.unlockRoom(rc)

	state, err := h.registry.RejoinRoom(code, p.PlayerID)
	if err != nil {
		return err
	}
	h.attachLocked(rc, c, rolePlayer, p.PlayerID)
	h.SendTo(c, TypeRoomState, state)
	h.broadcastLocked(rc, c, TypePlayerReconnected, PlayerReconnectedPayload{PlayerID: p.PlayerID, Room: state})

	// the timer was dropped when the room emptied: a revealed question moves
	// on, an open one gets a fresh countdown
	if state.Status == rooms.StatusPlaying && state.CurrentQuestion != nil && rc.timer == nil && rc.phase == phaseIdle {
		if state.QuestionClosed {
			if err := h.advanceLocked(rc); err != nil {
				h.logger.Warn("advance on rejoin failed", "room", code, "error", err)
			}
		} else {
			h.startCountdownLocked(rc, state.TimerDuration)
		}
	}
	h.logger.Info("player reconnected", "room", code, "player", p.PlayerID)
	return nil
}

func (h *Hub) handleLeave(p PlayerPayload) error {
	code, err := requireCode(p.RoomCode)
	if err != nil {
		return err
	}

	rc := h.lockRoom(code)
	defer h.unlockRoom(rc)

	res, err := h.registry.LeaveRoom(code, p.PlayerID)
	if err != nil {
		return err
	}
	h.detachPlayerLocked(rc, p.PlayerID)
	h.broadcastLocked(rc, nil, TypePlayerLeft, PlayerLeftPayload{
		PlayerID:    p.PlayerID,
		Room:        res.Room,
		RoomDeleted: res.Deleted,
	})
	h.logger.Info("player left", "room", code, "player", p.PlayerID, "roomDeleted", res.Deleted)
	h.checkEarlyCompletionLocked(rc)
	return nil
}

func (h *Hub) handleStart(ctx context.Context, p StartPayload) error {
	code, err := requireCode(p.RoomCode)
	if err != nil {
		return err
	}

	rc := h.lockRoom(code)
	defer h.unlockRoom(rc)

	state, err := h.registry.StartGame(ctx, code, rooms.StartSettings{
		GameID:        p.GameID,
		TimerDuration: p.TimerDuration,
	})
	if err != nil {
		return err
	}
	h.broadcastLocked(rc, nil, TypeGameStarted, state)
	h.startCountdownLocked(rc, state.TimerDuration)

	ev := events.GameStarted{
		RoomCode:      code,
		HostID:        state.CreatorID,
		QuizID:        p.GameID,
		TimerDuration: state.TimerDuration,
		StartedAt:     h.now(),
	}
	if state.StartedAt != nil {
		ev.StartedAt = *state.StartedAt
	}
	if state.Game != nil {
		ev.QuestionCount = state.Game.QuestionCount
	}
	if h.bus != nil && !h.bus.PublishStart(ev) {
		h.logger.Warn("game start event dropped", "room", code)
	}
	return nil
}

func (h *Hub) handleAnswer(p AnswerPayload) error {
	code, err := requireCode(p.RoomCode)
	if err != nil {
		return err
	}

	rc := h.lockRoom(code)
	defer h.unlockRoom(rc)

	if rc.phase != phaseCounting {
		return errors.New("answers are closed for this question")
	}
	res, err := h.registry.SubmitAnswer(code, p.PlayerID, p.Answer)
	if err != nil {
		return err
	}
	h.broadcastLocked(rc, nil, TypePlayerAnswered, PlayerAnsweredPayload{PlayerID: p.PlayerID})
	if res.AllAnswered {
		h.revealLocked(rc)
	}
	return nil
}

func (h *Hub) handleNextQuestion(p RoomPayload) error {
	code, err := requireCode(p.RoomCode)
	if err != nil {
		return err
	}

	rc := h.lockRoom(code)
	defer h.unlockRoom(rc)

	return h.advanceLocked(rc)
}

func (h *Hub) handleNewGame(p RoomPayload) error {
	code, err := requireCode(p.RoomCode)
	if err != nil {
		return err
	}

	rc := h.lockRoom(code)
	defer h.unlockRoom(rc)

	state, err := h.registry.ResetGame(code)
	if err != nil {
		return err
	}
	h.cancelTimerLocked(rc)
	rc.phase = phaseIdle
	h.broadcastLocked(rc, nil, TypeGameReset, state)
	return nil
}
