package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fedfollow/internal/activitypub"
	"fedfollow/internal/handler"
	"fedfollow/internal/model"
	"fedfollow/internal/repository"
	"fedfollow/internal/service"
)

// ============================================================================
// Test Setup
// ============================================================================

const (
	testSecret  = "test-secret"
	testBaseURL = "https://local.example"
)

type recordingGateway struct {
	mu      sync.Mutex
	inboxes []string
}

func (g *recordingGateway) Deliver(ctx context.Context, activity *activitypub.Activity, inboxURL string, actor *model.Actor) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inboxes = append(g.inboxes, inboxURL)
	return nil
}

type testServer struct {
	router  http.Handler
	store   *repository.MemoryStore
	gateway *recordingGateway
	alice   *model.Actor
	carol   *model.Actor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := repository.NewMemoryStore()
	ts := &testServer{store: store, gateway: &recordingGateway{}}
	ts.alice = store.PutActor(SeedActor("alice"))
	ts.carol = store.PutActor(SeedActor("carol:manual"))
	store.PutActor(model.Actor{
		Username:         "bob@remote.example",
		IsRemote:         true,
		ExternalActorURL: "https://remote.example/users/bob",
		InboxURL:         "https://remote.example/users/bob/inbox",
	})

	resolver := service.NewActorResolver(store, testBaseURL, 16, time.Minute)
	svc := service.NewFollowService(resolver, store, activitypub.NewBuilder(), ts.gateway, nil)
	ts.router = NewRouter(RouterConfig{
		FollowHandler: handler.NewFollowHandler(svc),
		JWTSecret:     testSecret,
	})
	return ts
}

func tokenFor(t *testing.T, userID int64, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func (ts *testServer) do(t *testing.T, method, path string, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID, time.Now().Add(time.Hour)))
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error.Code
}

// ============================================================================
// Tests
// ============================================================================

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", 0)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestFollowRemote_ThenStatusAndUnfollow(t *testing.T) {
	ts := newTestServer(t)

	// Follow
	rec := ts.do(t, http.MethodPost, "/users/bob@remote.example/follow", ts.alice.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("follow status = %d body=%s", rec.Code, rec.Body.String())
	}
	var result map[string]interface{}
	decode(t, rec, &result)
	if result["remote"] != true || result["actor_url"] != "https://remote.example/users/bob" {
		t.Errorf("result = %v", result)
	}
	if _, ok := result["accepted"]; ok {
		t.Errorf("remote follow result must not carry accepted, got %v", result)
	}
	if len(ts.gateway.inboxes) != 1 || ts.gateway.inboxes[0] != "https://remote.example/users/bob/inbox" {
		t.Errorf("deliveries = %v", ts.gateway.inboxes)
	}

	// Status while pending
	rec = ts.do(t, http.MethodGet, "/users/bob@remote.example/follow-status", ts.alice.ID)
	var status map[string]bool
	decode(t, rec, &status)
	if !status["isFollowing"] || status["isAccepted"] {
		t.Errorf("status = %v, want following but not accepted", status)
	}

	// Unfollow cancels the pending request
	rec = ts.do(t, http.MethodDelete, "/users/bob@remote.example/follow", ts.alice.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("unfollow status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodDelete, "/users/bob@remote.example/follow", ts.alice.ID)
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != model.CodeNotFollowing {
		t.Errorf("second unfollow = %d %s", rec.Code, rec.Body.String())
	}
}

func TestFollowStatus_Anonymous(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/users/carol/follow-status", 0)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var status map[string]bool
	decode(t, rec, &status)
	if status["isFollowing"] || status["isAccepted"] {
		t.Errorf("anonymous status = %v, want all false", status)
	}
}

func TestFollow_ErrorCodes(t *testing.T) {
	ts := newTestServer(t)

	// self follow and unknown target
	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   string
	}{
		{"self", "/users/alice/follow", http.StatusBadRequest, model.CodeSelfFollow},
		{"unknown", "/users/nobody/follow", http.StatusNotFound, model.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, tt.path, ts.alice.ID)
			if rec.Code != tt.wantStatus || errorCode(t, rec) != tt.wantCode {
				t.Errorf("got %d %s, want %d %s", rec.Code, rec.Body.String(), tt.wantStatus, tt.wantCode)
			}
		})
	}

	// carol follows alice (auto accept), then again
	if rec := ts.do(t, http.MethodPost, "/users/alice/follow", ts.carol.ID); rec.Code != http.StatusOK {
		t.Fatalf("follow = %d %s", rec.Code, rec.Body.String())
	}
	rec := ts.do(t, http.MethodPost, "/users/alice/follow", ts.carol.ID)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != model.CodeAlreadyFollowing {
		t.Errorf("duplicate follow = %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		header   string
		wantCode string
	}{
		{"no token", "", model.CodeUnauthorized},
		{"garbage", "Bearer not-a-jwt", model.CodeTokenInvalid},
		{"expired", "Bearer " + tokenFor(t, ts.alice.ID, time.Now().Add(-time.Hour)), model.CodeTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/followers/pending", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ts.router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != tt.wantCode {
				t.Errorf("got %d %s, want 401 %s", rec.Code, rec.Body.String(), tt.wantCode)
			}
		})
	}
}

func TestManualReview_AcceptFlow(t *testing.T) {
	ts := newTestServer(t)

	if rec := ts.do(t, http.MethodPost, "/users/carol/follow", ts.alice.ID); rec.Code != http.StatusOK {
		t.Fatalf("follow = %d %s", rec.Code, rec.Body.String())
	}

	rec := ts.do(t, http.MethodGet, "/followers/pending", ts.carol.ID)
	var pending model.PendingFollowersResponse
	decode(t, rec, &pending)
	if len(pending.Followers) != 1 || pending.Followers[0].ActorURL != testBaseURL+"/users/alice" {
		t.Fatalf("pending = %+v", pending)
	}
	followerPath := "/followers/" + strconv.FormatInt(pending.Followers[0].ID, 10)

	// alice cannot act on carol's follower record, and cannot tell it exists
	rec = ts.do(t, http.MethodPost, followerPath+"/accept", ts.alice.ID)
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != model.CodeNotFound {
		t.Errorf("foreign accept = %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, followerPath+"/accept", ts.carol.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept = %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, followerPath+"/accept", ts.carol.ID)
	if rec.Code != http.StatusConflict || errorCode(t, rec) != model.CodeAlreadyAccepted {
		t.Errorf("second accept = %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodGet, "/users/carol/follow-status", ts.alice.ID)
	var status map[string]bool
	decode(t, rec, &status)
	if !status["isFollowing"] || !status["isAccepted"] {
		t.Errorf("status after accept = %v", status)
	}
}

func TestReject_InvalidAndMissing(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/followers/abc/reject", ts.carol.ID)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != model.CodeBadRequest {
		t.Errorf("bad id = %d %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/followers/9999/reject", ts.carol.ID)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing follower = %d %s", rec.Code, rec.Body.String())
	}
}

func TestSeedActor(t *testing.T) {
	tests := []struct {
		entry      string
		wantName   string
		wantPolicy model.AcceptPolicy
	}{
		{"alice", "alice", model.AcceptPolicyAuto},
		{"carol:manual", "carol", model.AcceptPolicyManual},
		{" dave : MANUAL ", "dave", model.AcceptPolicyManual},
		{"erin:auto", "erin", model.AcceptPolicyAuto},
	}
	for _, tt := range tests {
		a := SeedActor(tt.entry)
		if a.Username != tt.wantName || model.PolicyFromSetting(a.AutoAccept) != tt.wantPolicy {
			t.Errorf("SeedActor(%q) = %s/%s, want %s/%s", tt.entry, a.Username,
				model.PolicyFromSetting(a.AutoAccept), tt.wantName, tt.wantPolicy)
		}
	}
}
