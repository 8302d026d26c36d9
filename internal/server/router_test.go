package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/auth"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/canvas"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/decay"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/kvstore"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/players"
	"github.com/ChaitanyaManik17/pixel-defence-reddit/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type apiFixture struct {
	handler    http.Handler
	sessions   *auth.SessionManager
	canvas     *canvas.Store
	dispatcher *realtime.Dispatcher
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.AutoMigrate(kvstore.Models()...); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	kv, err := kvstore.NewStore(kvstore.Config{Database: db})
	if err != nil {
		t.Fatalf("failed to build kv store: %v", err)
	}

	canvasStore, err := canvas.NewStore(canvas.StoreConfig{KV: kv})
	if err != nil {
		t.Fatalf("failed to build canvas store: %v", err)
	}
	targetStore, err := canvas.NewTargetStore(canvas.StoreConfig{KV: kv})
	if err != nil {
		t.Fatalf("failed to build target store: %v", err)
	}
	cooldowns, err := players.NewCooldownGuard(players.CooldownGuardConfig{KV: kv, Duration: 10 * time.Second})
	if err != nil {
		t.Fatalf("failed to build cooldown guard: %v", err)
	}
	presence, err := players.NewPresenceTracker(players.PresenceTrackerConfig{KV: kv})
	if err != nil {
		t.Fatalf("failed to build presence tracker: %v", err)
	}
	leaderboard, err := players.NewLeaderboard(players.LeaderboardConfig{KV: kv})
	if err != nil {
		t.Fatalf("failed to build leaderboard: %v", err)
	}
	dispatcher := realtime.NewDispatcher()
	// A long interval keeps the lazy decay check from ever firing mid-test.
	engine, err := decay.NewEngine(decay.Config{
		KV:          kv,
		Canvas:      canvasStore,
		Broadcaster: dispatcher,
		Interval:    time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to build decay engine: %v", err)
	}
	sessions, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "pixel-defence-auth",
		Audience:      "pixel-defence-api",
	})
	if err != nil {
		t.Fatalf("failed to build session manager: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Sessions:    sessions,
		Canvas:      canvasStore,
		Targets:     targetStore,
		Cooldowns:   cooldowns,
		Presence:    presence,
		Leaderboard: leaderboard,
		Decay:       engine,
		Dispatcher:  dispatcher,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	return &apiFixture{
		handler:    handler,
		sessions:   sessions,
		canvas:     canvasStore,
		dispatcher: dispatcher,
	}
}

func (f *apiFixture) token(t *testing.T, username string, moderator bool) string {
	t.Helper()
	token, _, err := f.sessions.IssueSessionToken(username, moderator)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func TestRequestsWithoutSessionAreRejected(t *testing.T) {
	fixture := newAPIFixture(t)
	for _, path := range []string{"/api/init", "/api/status"} {
		recorder := fixture.do(t, http.MethodGet, path, "", nil)
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for %s, got %d", path, recorder.Code)
		}
	}
	recorder := fixture.do(t, http.MethodPost, "/api/paint", "", map[string]interface{}{"x": 0, "y": 0, "color": "#FF4500"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthenticated paint, got %d", recorder.Code)
	}
}

func TestRequestsWithGarbageTokenAreRejected(t *testing.T) {
	fixture := newAPIFixture(t)
	recorder := fixture.do(t, http.MethodGet, "/api/init", "not-a-token", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed session, got %d", recorder.Code)
	}
}

func TestInitReturnsSnapshot(t *testing.T) {
	fixture := newAPIFixture(t)
	token := fixture.token(t, "alice", false)

	recorder := fixture.do(t, http.MethodGet, "/api/init", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var response initResponsePayload
	decodeBody(t, recorder, &response)
	if response.Type != "init" || response.Username != "alice" {
		t.Fatalf("unexpected init payload: %+v", response)
	}
	if response.CooldownEndsAt != 0 {
		t.Fatalf("expected no cooldown for fresh user, got %d", response.CooldownEndsAt)
	}
	if response.LogoCompletionPct != 100 {
		t.Fatalf("expected vacuous completion on empty target, got %g", response.LogoCompletionPct)
	}
	if response.NextGlitchTime == 0 {
		t.Fatal("expected the init to seed the decay schedule")
	}
	if response.IsModerator {
		t.Fatal("expected non-moderator session")
	}
}

func TestPaintRejectsOutOfBoundsWithoutMutation(t *testing.T) {
	fixture := newAPIFixture(t)
	token := fixture.token(t, "alice", false)

	bad := []map[string]interface{}{
		{"x": -1, "y": 0, "color": "#FF4500"},
		{"x": 0, "y": 50, "color": "#FF4500"},
		{"x": 50, "y": 0, "color": "#FF4500"},
		{"x": 0, "y": 0, "color": "orange"},
		{"x": 0, "y": 0, "color": "#FF450"},
		{"y": 0, "color": "#FF4500"},
	}
	for _, payload := range bad {
		recorder := fixture.do(t, http.MethodPost, "/api/paint", token, payload)
		if recorder.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d", payload, recorder.Code)
		}
	}

	state, err := fixture.canvas.GetAll(context.Background())
	if err != nil {
		t.Fatalf("unexpected canvas read error: %v", err)
	}
	if len(state) != 0 {
		t.Fatalf("expected rejected paints to leave the canvas untouched, got %d cells", len(state))
	}
}

func TestPaintSuccessThenCooldown(t *testing.T) {
	fixture := newAPIFixture(t)
	token := fixture.token(t, "alice", false)
	payload := map[string]interface{}{"x": 3, "y": 7, "color": "#FF4500"}

	recorder := fixture.do(t, http.MethodPost, "/api/paint", token, payload)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var response paintResponsePayload
	decodeBody(t, recorder, &response)
	if response.Status != "success" || response.X != 3 || response.Y != 7 {
		t.Fatalf("unexpected paint payload: %+v", response)
	}
	if response.Data.Owner != "alice" || response.Data.Color != "#FF4500" {
		t.Fatalf("unexpected painted pixel: %+v", response.Data)
	}
	if response.CooldownEndsAt <= time.Now().UnixMilli() {
		t.Fatalf("expected future cooldown expiry, got %d", response.CooldownEndsAt)
	}

	pixel, err := fixture.canvas.Get(context.Background(), 3, 7)
	if err != nil {
		t.Fatalf("unexpected canvas read error: %v", err)
	}
	if pixel.Owner != "alice" {
		t.Fatalf("expected stored owner alice, got %q", pixel.Owner)
	}

	retry := fixture.do(t, http.MethodPost, "/api/paint", token, payload)
	if retry.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 inside cooldown, got %d", retry.Code)
	}
	var denied struct {
		RemainingMs int64 `json:"remainingMs"`
	}
	decodeBody(t, retry, &denied)
	if denied.RemainingMs <= 0 {
		t.Fatalf("expected remaining-time hint, got %d", denied.RemainingMs)
	}
}

func TestPaintBroadcastsDeltas(t *testing.T) {
	fixture := newAPIFixture(t)
	token := fixture.token(t, "alice", false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, cleanup := fixture.dispatcher.Subscribe(ctx)
	defer cleanup()

	recorder := fixture.do(t, http.MethodPost, "/api/paint", token, map[string]interface{}{"x": 1, "y": 2, "color": "#0079D3"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	sawPaint := false
	sawPresence := false
	timeout := time.After(time.Second)
	for !(sawPaint && sawPresence) {
		select {
		case event := <-stream:
			switch typed := event.(type) {
			case realtime.PaintEvent:
				if typed.X != 1 || typed.Y != 2 || typed.Data.Owner != "alice" {
					t.Fatalf("unexpected paint event: %+v", typed)
				}
				sawPaint = true
			case realtime.PresenceEvent:
				if len(typed.Users) != 1 || typed.Users[0] != "alice" {
					t.Fatalf("unexpected presence event: %+v", typed)
				}
				sawPresence = true
			}
		case <-timeout:
			t.Fatalf("expected paint and presence events, saw paint=%v presence=%v", sawPaint, sawPresence)
		}
	}
}

func TestSetTargetRequiresModerator(t *testing.T) {
	fixture := newAPIFixture(t)
	token := fixture.token(t, "alice", false)

	recorder := fixture.do(t, http.MethodPost, "/api/set-target", token, map[string]interface{}{
		"target": map[string]string{"3:4": "#ABCDEF"},
	})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-moderator, got %d", recorder.Code)
	}
}

func TestSetTargetAcceptsValidSubset(t *testing.T) {
	fixture := newAPIFixture(t)
	token := fixture.token(t, "mod", true)

	recorder := fixture.do(t, http.MethodPost, "/api/set-target", token, map[string]interface{}{
		"target": map[string]string{
			"3:4":  "#ABCDEF",
			"99:4": "#ABCDEF",
			"5:5":  "nope",
		},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var response setTargetResponsePayload
	decodeBody(t, recorder, &response)
	if response.PixelCount != 1 {
		t.Fatalf("expected one accepted pixel, got %d", response.PixelCount)
	}
}

func TestSetTargetRejectsAllInvalid(t *testing.T) {
	fixture := newAPIFixture(t)
	token := fixture.token(t, "mod", true)

	recorder := fixture.do(t, http.MethodPost, "/api/set-target", token, map[string]interface{}{
		"target": map[string]string{"99:99": "#ABCDEF", "1:1": "red"},
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for all-invalid target, got %d", recorder.Code)
	}
}

func TestStatusReflectsGameState(t *testing.T) {
	fixture := newAPIFixture(t)
	modToken := fixture.token(t, "mod", true)
	aliceToken := fixture.token(t, "alice", false)

	if recorder := fixture.do(t, http.MethodPost, "/api/set-target", modToken, map[string]interface{}{
		"target": map[string]string{"0:0": "#FF0000"},
	}); recorder.Code != http.StatusOK {
		t.Fatalf("failed to seed target: %d", recorder.Code)
	}
	if recorder := fixture.do(t, http.MethodPost, "/api/paint", aliceToken, map[string]interface{}{
		"x": 0, "y": 0, "color": "#FF0000",
	}); recorder.Code != http.StatusOK {
		t.Fatalf("failed to paint: %d", recorder.Code)
	}

	recorder := fixture.do(t, http.MethodGet, "/api/status", aliceToken, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	var response statusResponsePayload
	decodeBody(t, recorder, &response)

	if response.IntegrityPct != 100 {
		t.Fatalf("expected full integrity without decay, got %g", response.IntegrityPct)
	}
	if response.LogoCompletionPct != 100 {
		t.Fatalf("expected completed target, got %g", response.LogoCompletionPct)
	}
	if response.IsWaveNext {
		t.Fatal("expected no wave forecast before any decay")
	}
	if response.YourRank == nil || *response.YourRank != 1 {
		t.Fatalf("expected rank 1 for alice, got %v", response.YourRank)
	}
	if response.YourPlaced == nil || *response.YourPlaced != 1 {
		t.Fatalf("expected one placement, got %v", response.YourPlaced)
	}
	if len(response.TopDefenders) != 1 || response.TopDefenders[0].User != "alice" {
		t.Fatalf("unexpected leaderboard: %+v", response.TopDefenders)
	}
	if len(response.ActiveUsers) != 1 || response.ActiveUsers[0] != "alice" {
		t.Fatalf("expected alice active after painting, got %v", response.ActiveUsers)
	}
	if response.IsModerator {
		t.Fatal("expected alice not to be a moderator")
	}
}

func TestStatusRankAbsentForNewUser(t *testing.T) {
	fixture := newAPIFixture(t)
	token := fixture.token(t, "fresh", false)

	recorder := fixture.do(t, http.MethodGet, "/api/status", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var response statusResponsePayload
	decodeBody(t, recorder, &response)
	if response.YourRank != nil || response.YourPlaced != nil {
		t.Fatalf("expected null rank for user who never placed, got %v/%v", response.YourRank, response.YourPlaced)
	}
}
