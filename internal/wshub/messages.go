package wshub

import (
	"encoding/json"

	"quizparty/internal/rooms"
)

// Client to server message types.
const (
	TypeJoin         = "join"
	TypeJoinAsViewer = "joinAsViewer"
	TypeRejoin       = "rejoin"
	TypeLeave        = "leave"
	TypeStart        = "start"
	TypeAnswer       = "answer"
	TypeNextQuestion = "nextQuestion"
	TypeNewGame      = "newGame"
)

// Server to client message types.
const (
	TypeRoomState         = "roomState"
	TypePlayerJoined      = "playerJoined"
	TypeViewerJoined      = "viewerJoined"
	TypePlayerLeft        = "playerLeft"
	TypePlayerReconnected = "playerReconnected"
	TypeGameStarted       = "gameStarted"
	TypeTimerTick         = "timerTick"
	TypePlayerAnswered    = "playerAnswered"
	TypeQuestionResult    = "questionResult"
	TypeNewQuestion       = "newQuestion"
	TypeGameEnded         = "gameEnded"
	TypeGameReset         = "gameReset"
	TypeError             = "error"
)

// ClientMessage is the envelope received from clients.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerMessage is the envelope sent to clients.
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type JoinPayload struct {
	RoomCode       string `json:"roomCode"`
	PlayerID       string `json:"playerId"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profilePicture"`
	Mode           string `json:"mode"`
}

type JoinAsViewerPayload struct {
	RoomCode string `json:"roomCode"`
	ViewerID string `json:"viewerId"`
}

// PlayerPayload is shared by rejoin and leave.
type PlayerPayload struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type StartPayload struct {
	RoomCode      string `json:"roomCode"`
	GameID        string `json:"gameId"`
	TimerDuration int    `json:"timerDuration"`
}

type AnswerPayload struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
	Answer   string `json:"answer"`
}

type RoomPayload struct {
	RoomCode string `json:"roomCode"`
}

type PlayerJoinedPayload struct {
	Player rooms.Player    `json:"player"`
	Room   rooms.RoomState `json:"room"`
}

type ViewerJoinedPayload struct {
	ViewerID string          `json:"viewerId"`
	Room     rooms.RoomState `json:"room"`
}

type PlayerLeftPayload struct {
	PlayerID    string           `json:"playerId"`
	Room        *rooms.RoomState `json:"room"`
	RoomDeleted bool             `json:"roomDeleted"`
}

type PlayerReconnectedPayload struct {
	PlayerID string          `json:"playerId"`
	Room     rooms.RoomState `json:"room"`
}

type TimerTickPayload struct {
	TimeLeft int `json:"timeLeft"`
}

type PlayerAnsweredPayload struct {
	PlayerID string `json:"playerId"`
}

type QuestionResultPayload struct {
	QuestionID    string         `json:"questionId"`
	CorrectAnswer string         `json:"correctAnswer"`
	Scores        map[string]int `json:"scores"`
}

type GameEndedPayload struct {
	FinalScores []rooms.Standing `json:"finalScores"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
