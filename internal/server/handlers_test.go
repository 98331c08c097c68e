package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"quizparty/internal/analytics"
	"quizparty/internal/broadcast"
	"quizparty/internal/db"
	"quizparty/internal/events"
	"quizparty/internal/leaderboard"
	"quizparty/internal/quiz"
	"quizparty/internal/rooms"
	"quizparty/internal/wshub"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	catalog, err := quiz.NewCatalog(nil)
	if err != nil {
		t.Fatal(err)
	}
	registry := rooms.NewRegistry(catalog, rooms.WithRand(rooms.NewRand(1)))
	hub := wshub.NewHub(registry, wshub.WithTick(time.Hour), wshub.WithRevealPause(time.Hour))
	t.Cleanup(hub.Close)

	srv := &Server{
		Registry: registry,
		Hub:      hub,
		Catalog:  catalog,
		Feed:     broadcast.New(),
		Origins:  []string{"*"},
	}
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func newMockDB(t *testing.T) (*db.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New() error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		conn.Close()
	})
	return db.New(conn), mock
}

func createRoom(t *testing.T, baseURL, playerID string) rooms.RoomState {
	t.Helper()
	body := strings.NewReader(`{"playerId":"` + playerID + `"}`)
	resp, err := http.Post(baseURL+"/room/create", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	var state rooms.RoomState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatal(err)
	}
	return state
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decoding %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestListGames(t *testing.T) {
	_, ts := newTestServer(t)

	var previews []quiz.Preview
	if status := getJSON(t, ts.URL+"/games", &previews); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	found := false
	for _, p := range previews {
		if p.ID == "capitals" {
			found = true
			if p.QuestionCount == 0 {
				t.Error("capitals preview has no questions")
			}
		}
	}
	if !found {
		t.Errorf("catalogue %+v is missing capitals", previews)
	}
}

func TestCreateRoom(t *testing.T) {
	_, ts := newTestServer(t)

	state := createRoom(t, ts.URL, "host-1")
	if len(state.Code) != 6 {
		t.Errorf("code = %q, want 6 characters", state.Code)
	}
	if state.CreatorID != "host-1" {
		t.Errorf("creatorId = %q, want host-1", state.CreatorID)
	}
	if state.Status != rooms.StatusWaiting {
		t.Errorf("status = %q, want waiting", state.Status)
	}
}

func TestCreateRoom_GeneratesCreatorID(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/room/create", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var state rooms.RoomState
	json.NewDecoder(resp.Body).Decode(&state)
	if resp.StatusCode != http.StatusCreated || state.CreatorID == "" {
		t.Errorf("status = %d creatorId = %q", resp.StatusCode, state.CreatorID)
	}
}

func TestCreateRoom_BadBody(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/room/create", "application/json", strings.NewReader("{nope"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetRoom(t *testing.T) {
	_, ts := newTestServer(t)
	created := createRoom(t, ts.URL, "host-1")

	var state rooms.RoomState
	if status := getJSON(t, ts.URL+"/room/"+strings.ToLower(created.Code), &state); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if state.Code != created.Code {
		t.Errorf("code = %q, want %q", state.Code, created.Code)
	}

	if status := getJSON(t, ts.URL+"/room/ZZZZZZ", nil); status != http.StatusNotFound {
		t.Errorf("missing room status = %d, want 404", status)
	}
}

func TestRoomExists(t *testing.T) {
	srv, ts := newTestServer(t)
	created := createRoom(t, ts.URL, "host-1")
	srv.Registry.JoinRoom(created.Code, rooms.User{ID: "host-1", Username: "Host"})

	var res rooms.ExistsResult
	getJSON(t, ts.URL+"/room/"+created.Code+"/exists", &res)
	if !res.Exists || !res.Joinable || res.PlayerCount != 1 {
		t.Errorf("exists = %+v", res)
	}

	res = rooms.ExistsResult{}
	if status := getJSON(t, ts.URL+"/room/ZZZZZZ/exists", &res); status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if res.Exists {
		t.Error("missing room reported as existing")
	}
}

func TestRoomQR(t *testing.T) {
	_, ts := newTestServer(t)
	created := createRoom(t, ts.URL, "host-1")

	resp, err := http.Get(ts.URL + "/room/" + created.Code + "/qr")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Error("body is not a PNG")
	}

	if status := getJSON(t, ts.URL+"/room/ZZZZZZ/qr", nil); status != http.StatusNotFound {
		t.Errorf("missing room status = %d, want 404", status)
	}
}

func TestRoomLeaderboard_FallsBackToRoom(t *testing.T) {
	srv, ts := newTestServer(t)
	created := createRoom(t, ts.URL, "a")
	srv.Registry.JoinRoom(created.Code, rooms.User{ID: "a", Username: "Alice"})
	srv.Registry.JoinRoom(created.Code, rooms.User{ID: "b", Username: "Bob"})
	state, err := srv.Registry.StartGame(context.Background(), created.Code, rooms.StartSettings{GameID: "capitals"})
	if err != nil {
		t.Fatal(err)
	}
	answer, _ := srv.Registry.GetCorrectAnswer(created.Code, state.CurrentQuestion.ID)
	if _, err := srv.Registry.SubmitAnswer(created.Code, "b", answer); err != nil {
		t.Fatal(err)
	}

	var res roomLeaderboardResponse
	if status := getJSON(t, ts.URL+"/room/"+created.Code+"/leaderboard", &res); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if res.Source != "room" {
		t.Errorf("source = %q, want room", res.Source)
	}
	want := []leaderboard.Entry{
		{PlayerID: "b", Score: rooms.CorrectAnswerPoints, Rank: 1},
		{PlayerID: "a", Score: 0, Rank: 2},
	}
	if len(res.Entries) != len(want) {
		t.Fatalf("entries = %+v, want %+v", res.Entries, want)
	}
	for i := range want {
		if res.Entries[i] != want[i] {
			t.Errorf("entries[%d] = %+v, want %+v", i, res.Entries[i], want[i])
		}
	}

	var ranked roomLeaderboardResponse
	getJSON(t, ts.URL+"/room/"+created.Code+"/leaderboard?player=a", &ranked)
	if ranked.PlayerRank != 2 {
		t.Errorf("playerRank = %d, want 2", ranked.PlayerRank)
	}
	if res.PlayerRank != 0 {
		t.Errorf("playerRank without ?player = %d, want 0", res.PlayerRank)
	}

	if status := getJSON(t, ts.URL+"/room/ZZZZZZ/leaderboard", nil); status != http.StatusNotFound {
		t.Errorf("missing room status = %d, want 404", status)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t)
	createRoom(t, ts.URL, "a")

	var body struct {
		Status string `json:"status"`
		Rooms  int    `json:"rooms"`
	}
	if status := getJSON(t, ts.URL+"/health", &body); status != http.StatusOK {
		t.Errorf("status = %d, want 200", status)
	}
	if body.Status != "ok" || body.Rooms != 1 {
		t.Errorf("body = %+v, want ok with 1 room", body)
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	srv, ts := newTestServer(t)
	database, mock := newMockDB(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	srv.DB = database

	var body map[string]string
	if status := getJSON(t, ts.URL+"/health", &body); status != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", status)
	}
	if body["status"] != "db_error" {
		t.Errorf("body = %v", body)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, ts := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/room/create", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("preflight response has no Access-Control-Allow-Origin")
	}
}

func TestStats_RequireDatabase(t *testing.T) {
	_, ts := newTestServer(t)

	for _, path := range []string{"/stats/leaderboard", "/stats/players/a", "/stats/players/a/history", "/stats/games/g1"} {
		if status := getJSON(t, ts.URL+path, nil); status != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, status)
		}
	}
}

func TestStatsLeaderboard(t *testing.T) {
	srv, ts := newTestServer(t)
	database, mock := newMockDB(t)
	srv.DB = database

	mock.ExpectQuery("COUNT\\(\\*\\) FILTER").WithArgs(5).WillReturnRows(
		sqlmock.NewRows([]string{"id", "username", "profile_picture", "value"}).AddRow("a", "Alice", "", 3))

	var entries []map[string]any
	if status := getJSON(t, ts.URL+"/stats/leaderboard?cat=wins&limit=5", &entries); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if len(entries) != 1 || entries[0]["playerId"] != "a" {
		t.Errorf("entries = %v", entries)
	}

	if status := getJSON(t, ts.URL+"/stats/leaderboard?cat=reaction", nil); status != http.StatusBadRequest {
		t.Errorf("unknown category status = %d, want 400", status)
	}
}

func TestStatsPlayer_NotFound(t *testing.T) {
	srv, ts := newTestServer(t)
	database, mock := newMockDB(t)
	srv.DB = database

	mock.ExpectQuery("FROM players WHERE id").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"username", "profile_picture"}))

	if status := getJSON(t, ts.URL+"/stats/players/ghost", nil); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestStatsHistory(t *testing.T) {
	srv, ts := newTestServer(t)
	database, mock := newMockDB(t)
	srv.DB = database

	mock.ExpectQuery("FROM players WHERE id").WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "profile_picture", "created_at"}).AddRow("a", "Alice", "", time.Now()))
	mock.ExpectQuery("FROM game_players gp").WithArgs("a", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_code", "quiz_id", "final_score", "rank", "ended_at"}))
	mock.ExpectQuery("FROM players WHERE id").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "profile_picture", "created_at"}))

	var games []db.PlayerGame
	if status := getJSON(t, ts.URL+"/stats/players/a/history", &games); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if games == nil || len(games) != 0 {
		t.Errorf("games = %#v, want an empty list", games)
	}

	if status := getJSON(t, ts.URL+"/stats/players/ghost/history", nil); status != http.StatusNotFound {
		t.Errorf("unknown player status = %d, want 404", status)
	}
}

func TestStatsGame_NonUUIDIsNotFound(t *testing.T) {
	srv, ts := newTestServer(t)
	database, _ := newMockDB(t)
	srv.DB = database

	// no expectations: a malformed id must not reach the database
	for _, path := range []string{"/stats/games/not-a-uuid", "/stats/games/g1/players/a"} {
		if status := getJSON(t, ts.URL+path, nil); status != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, status)
		}
	}
}

func TestStatsBadges(t *testing.T) {
	srv, ts := newTestServer(t)
	database, mock := newMockDB(t)
	srv.DB = database

	awarded := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM player_badges").WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"badge_id", "game_id", "awarded_at"}).
			AddRow("champion", "game-1", awarded).
			AddRow("retired", nil, awarded).
			AddRow("veteran", nil, awarded))

	var badges []awardedBadge
	if status := getJSON(t, ts.URL+"/stats/players/a/badges", &badges); status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if len(badges) != 2 {
		t.Fatalf("got %d badges, want 2: %#v", len(badges), badges)
	}
	if badges[0].ID != analytics.BadgeChampion || badges[0].GameID == nil || *badges[0].GameID != "game-1" {
		t.Errorf("first badge = %#v, want champion from game-1", badges[0])
	}
	if badges[1].ID != analytics.BadgeVeteran || badges[1].GameID != nil {
		t.Errorf("second badge = %#v, want veteran with no game", badges[1])
	}
	if badges[1].Name == "" {
		t.Error("badge details not filled in")
	}
}

func TestLimitParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", defaultStatsLimit},
		{"limit=3", 3},
		{"limit=-1", defaultStatsLimit},
		{"limit=abc", defaultStatsLimit},
		{"limit=5000", maxStatsLimit},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/stats/leaderboard?"+tt.query, nil)
		if got := limitParam(r); got != tt.want {
			t.Errorf("limitParam(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

// readUntil reads frames until one of the wanted type arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string) wshub.ClientMessage {
	t.Helper()
	for {
		var msg wshub.ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

func dial(t *testing.T, ctx context.Context, baseURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(baseURL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestWebSocket_JoinStartLeave(t *testing.T) {
	_, ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created := createRoom(t, ts.URL, "a")
	alice := dial(t, ctx, ts.URL)
	bob := dial(t, ctx, ts.URL)

	join := func(conn *websocket.Conn, id, name string) {
		err := wsjson.Write(ctx, conn, wshub.ServerMessage{Type: wshub.TypeJoin, Payload: wshub.JoinPayload{
			RoomCode: strings.ToLower(created.Code), PlayerID: id, Username: name,
		}})
		if err != nil {
			t.Fatal(err)
		}
	}

	join(alice, "a", "Alice")
	readUntil(t, ctx, alice, wshub.TypeRoomState)
	join(bob, "b", "Bob")
	msg := readUntil(t, ctx, bob, wshub.TypeRoomState)
	var state rooms.RoomState
	if err := json.Unmarshal(msg.Payload, &state); err != nil {
		t.Fatal(err)
	}
	if len(state.Players) != 2 || state.CreatorID != "a" {
		t.Errorf("room state = %+v", state)
	}
	readUntil(t, ctx, alice, wshub.TypePlayerJoined)

	err := wsjson.Write(ctx, alice, wshub.ServerMessage{Type: wshub.TypeStart, Payload: wshub.StartPayload{
		RoomCode: created.Code, GameID: "capitals", TimerDuration: 7,
	}})
	if err != nil {
		t.Fatal(err)
	}
	for _, conn := range []*websocket.Conn{alice, bob} {
		readUntil(t, ctx, conn, wshub.TypeGameStarted)
		tick := readUntil(t, ctx, conn, wshub.TypeTimerTick)
		var p wshub.TimerTickPayload
		json.Unmarshal(tick.Payload, &p)
		if p.TimeLeft != 7 {
			t.Errorf("first tick = %d, want 7", p.TimeLeft)
		}
	}

	bob.Close(websocket.StatusNormalClosure, "")
	left := readUntil(t, ctx, alice, wshub.TypePlayerLeft)
	var lp wshub.PlayerLeftPayload
	json.Unmarshal(left.Payload, &lp)
	if lp.PlayerID != "b" || lp.RoomDeleted {
		t.Errorf("playerLeft = %+v", lp)
	}
}

func TestWebSocket_MalformedFrame(t *testing.T) {
	_, ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dial(t, ctx, ts.URL)
	if err := conn.Write(ctx, websocket.MessageText, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	msg := readUntil(t, ctx, conn, wshub.TypeError)
	var p wshub.ErrorPayload
	json.Unmarshal(msg.Payload, &p)
	if p.Message == "" {
		t.Error("error frame has no message")
	}
}

func TestArchiver_RecordsGame(t *testing.T) {
	database, mock := newMockDB(t)
	a := newArchiver(nil, database, nil, nil)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ended := started.Add(3 * time.Minute)

	mock.ExpectExec("INSERT INTO games").
		WithArgs(sqlmock.AnyArg(), "ABCDEF", "a", "capitals", 15, 10, started).
		WillReturnResult(sqlmock.NewResult(0, 1))
	a.gameStarted(ctx, events.GameStarted{
		RoomCode: "ABCDEF", HostID: "a", QuizID: "capitals", TimerDuration: 15, QuestionCount: 10, StartedAt: started,
	})
	gameID := a.games["ABCDEF"].id
	if gameID == "" {
		t.Fatal("game id not tracked after start")
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE games SET ended_at").WithArgs(gameID, ended).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO players").WithArgs("a", "Alice", "").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO game_players").WithArgs(gameID, "a", 300, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	// 3 of 10 right in first place earns Champion only
	mock.ExpectExec("INSERT INTO player_badges").WithArgs("a", "champion", gameID).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT username, profile_picture FROM players").WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"username", "profile_picture"}).AddRow("Alice", ""))
	mock.ExpectQuery("FROM game_players").WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"games_played", "total_score", "best_game", "win_count"}).AddRow(10, 300, 300, 1))
	mock.ExpectQuery("ORDER BY g.ended_at DESC").WithArgs("a").
		WillReturnRows(sqlmock.NewRows([]string{"rank"}).AddRow(1))
	mock.ExpectExec("INSERT INTO player_badges").WithArgs("a", "veteran", nil).WillReturnResult(sqlmock.NewResult(0, 1))

	a.gameFinished(ctx, events.GameFinished{
		RoomCode: "ABCDEF",
		Results:  []events.PlayerResult{{PlayerID: "a", Username: "Alice", Score: 300, Rank: 1}},
		EndedAt:  ended,
	})
	if _, ok := a.games["ABCDEF"]; ok {
		t.Error("game id still tracked after finish")
	}
}

func TestArchiver_FinishWithoutStart(t *testing.T) {
	database, _ := newMockDB(t)
	a := newArchiver(nil, database, nil, nil)

	// no expectations: nothing may reach the database
	a.gameFinished(context.Background(), events.GameFinished{RoomCode: "ZZZZZZ"})
}

func TestArchiver_DrainStarts(t *testing.T) {
	database, mock := newMockDB(t)
	a := newArchiver(nil, database, nil, nil)
	bus := events.NewBus()

	mock.ExpectExec("INSERT INTO games").WithArgs(sqlmock.AnyArg(), "ABCDEF", "", "", 0, 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO games").WithArgs(sqlmock.AnyArg(), "BCDEFG", "", "", 0, 0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	bus.PublishStart(events.GameStarted{RoomCode: "ABCDEF", StartedAt: time.Now()})
	bus.PublishStart(events.GameStarted{RoomCode: "BCDEFG", StartedAt: time.Now()})
	a.drainStarts(context.Background(), bus)

	if len(a.games) != 2 {
		t.Errorf("tracked games = %v, want 2", a.games)
	}
	if len(bus.GameStarts) != 0 {
		t.Errorf("%d starts left on the bus", len(bus.GameStarts))
	}
}

func TestArchiver_RunStopsOnCancel(t *testing.T) {
	a := newArchiver(nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.run(ctx, events.NewBus())
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestArchiver_PublishesToFeed(t *testing.T) {
	feed := broadcast.New()
	a := newArchiver(feed, nil, nil, nil)
	sub := feed.Subscribe("ABCDEF")

	a.scoresRevealed(context.Background(), events.ScoresRevealed{RoomCode: "ABCDEF", QuestionID: "q1", Scores: map[string]int{"a": 100}})
	a.gameFinished(context.Background(), events.GameFinished{
		RoomCode: "ABCDEF",
		Results:  []events.PlayerResult{{PlayerID: "a", Score: 100, Rank: 1}},
	})

	for _, want := range []string{feedScores, feedGameEnded} {
		select {
		case msg := <-sub:
			if msg.Event != want {
				t.Errorf("event = %q, want %q", msg.Event, want)
			}
			if !strings.Contains(msg.Data, `"roomCode":"ABCDEF"`) {
				t.Errorf("data = %s", msg.Data)
			}
		case <-time.After(time.Second):
			t.Fatalf("no %s message", want)
		}
	}
}

func TestRoomEvents_StreamsFeed(t *testing.T) {
	srv, ts := newTestServer(t)
	created := createRoom(t, ts.URL, "a")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/room/"+created.Code+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	for srv.Feed.Subscribers(created.Code) == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("stream never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}
	srv.Feed.Publish(created.Code, feedScores, map[string]int{"a": 100})

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		lines = append(lines, strings.TrimSpace(line))
	}
	if lines[0] != "event: scores" || lines[1] != `data: {"a":100}` {
		t.Errorf("stream = %q", lines)
	}
}

func TestRoomEvents_MissingRoom(t *testing.T) {
	_, ts := newTestServer(t)
	if status := getJSON(t, ts.URL+"/room/ZZZZZZ/events", nil); status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}
