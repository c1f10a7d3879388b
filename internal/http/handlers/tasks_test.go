package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"reelgen/internal/credit"
	"reelgen/internal/domain"
	"reelgen/internal/middleware"
	"reelgen/internal/provider"
	"reelgen/internal/publish"
	"reelgen/internal/task"
	"reelgen/internal/testkit"
)

const testUserID = "2f7c4a1e-5b90-4d3c-8e6f-1a2b3c4d5e6f"

func newTestApp(t *testing.T) (*App, *testkit.Store, *testkit.Gateway) {
	t.Helper()
	store := testkit.NewStore()
	gateway := &testkit.Gateway{}
	logger := zerolog.Nop()
	ledger := credit.NewLedger(store, logger)
	app := &App{
		SQL:    store,
		Logger: logger,
		Tasks: task.NewManager(task.ManagerOptions{
			SQL:     store,
			Gateway: gateway,
			Ledger:  ledger,
			Logger:  logger,
		}),
		Publisher: publish.NewController(store, logger),
		Ledger:    ledger,
	}
	return app, store, gateway
}

// authedRequest builds a request carrying the authenticated user and, when a
// task id is given, the chi route parameter the handlers read.
func authedRequest(method, target, taskID, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := middleware.ContextWithUserID(req.Context(), testUserID)
	if taskID != "" {
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("task_id", taskID)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	}
	return req.WithContext(ctx)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestTasksCreateRequiresUser(t *testing.T) {
	app, _, _ := newTestApp(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	app.TasksCreate(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestTasksCreateRejectsUnknownFields(t *testing.T) {
	app, store, _ := newTestApp(t)
	store.SeedCredits(testUserID, 50)

	// A client-chosen destination URL is not part of the contract and must
	// not be silently dropped.
	body := `{"prompt":"p","model":"reel-lite","duration_seconds":5,"aspect_ratio":"16:9","destination_url":"https://evil.example"}`
	rec := httptest.NewRecorder()
	app.TasksCreate(rec, authedRequest(http.MethodPost, "/v1/tasks", "", body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if store.BalanceOf(testUserID) != 50 {
		t.Fatalf("rejected request must not debit")
	}
}

func TestTasksCreateInvalidSpec(t *testing.T) {
	app, store, _ := newTestApp(t)
	store.SeedCredits(testUserID, 50)

	body := `{"prompt":"p","model":"reel-lite","duration_seconds":7,"aspect_ratio":"16:9"}`
	rec := httptest.NewRecorder()
	app.TasksCreate(rec, authedRequest(http.MethodPost, "/v1/tasks", "", body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTasksCreateInsufficientCredits(t *testing.T) {
	app, store, _ := newTestApp(t)
	store.SeedCredits(testUserID, 1)

	body := `{"prompt":"p","model":"reel-pro","duration_seconds":20,"aspect_ratio":"16:9"}`
	rec := httptest.NewRecorder()
	app.TasksCreate(rec, authedRequest(http.MethodPost, "/v1/tasks", "", body))
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402, got %d", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["error"] != "insufficient_credits" {
		t.Fatalf("expected insufficient_credits, got %q", resp["error"])
	}
}

func TestTasksCreateHappyPath(t *testing.T) {
	app, store, _ := newTestApp(t)
	store.SeedCredits(testUserID, 10)

	body := `{"prompt":"a cat surfing","model":"reel-lite","duration_seconds":5,"aspect_ratio":"9:16"}`
	rec := httptest.NewRecorder()
	app.TasksCreate(rec, authedRequest(http.MethodPost, "/v1/tasks", "", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp taskResponse
	decodeBody(t, rec, &resp)
	if resp.Status != string(domain.TaskStatusPending) {
		t.Fatalf("expected PENDING, got %s", resp.Status)
	}
	if resp.CreditsDebited != 1 {
		t.Fatalf("expected debit of 1, got %d", resp.CreditsDebited)
	}
	if store.BalanceOf(testUserID) != 9 {
		t.Fatalf("expected balance 9, got %d", store.BalanceOf(testUserID))
	}
}

func TestTasksCreateProviderRejection(t *testing.T) {
	app, store, gateway := newTestApp(t)
	store.SeedCredits(testUserID, 10)
	gateway.SubmitFn = func(ctx context.Context, spec provider.SubmitSpec) (string, error) {
		return "", &provider.SubmitError{Code: provider.FailureContentPolicy, Detail: "blocked"}
	}

	body := `{"prompt":"p","model":"reel-lite","duration_seconds":5,"aspect_ratio":"16:9"}`
	rec := httptest.NewRecorder()
	app.TasksCreate(rec, authedRequest(http.MethodPost, "/v1/tasks", "", body))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if store.BalanceOf(testUserID) != 10 {
		t.Fatalf("expected refunded balance 10, got %d", store.BalanceOf(testUserID))
	}
}

func TestTaskStatusNotFound(t *testing.T) {
	app, _, _ := newTestApp(t)
	rec := httptest.NewRecorder()
	app.TaskStatus(rec, authedRequest(http.MethodGet, "/v1/tasks/x", "9e8d7c6b-0000-4000-8000-000000000000", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestTaskStatusReflectsProviderResult(t *testing.T) {
	app, store, gateway := newTestApp(t)
	store.SeedCredits(testUserID, 10)

	body := `{"prompt":"p","model":"reel-lite","duration_seconds":5,"aspect_ratio":"16:9"}`
	rec := httptest.NewRecorder()
	app.TasksCreate(rec, authedRequest(http.MethodPost, "/v1/tasks", "", body))
	var created taskResponse
	decodeBody(t, rec, &created)

	gateway.PollFn = func(ctx context.Context, handle string) (provider.Status, error) {
		return provider.Status{Kind: provider.StatusSucceeded, AssetURL: "https://cdn.example/v.mp4", Cost: 1}, nil
	}

	rec = httptest.NewRecorder()
	app.TaskStatus(rec, authedRequest(http.MethodGet, "/v1/tasks/"+created.ID, created.ID, ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp taskResponse
	decodeBody(t, rec, &resp)
	if resp.Status != string(domain.TaskStatusSucceeded) {
		t.Fatalf("expected SUCCEEDED, got %s", resp.Status)
	}
	if resp.PublishStatus != string(domain.PublishStatusDraft) {
		t.Fatalf("expected DRAFT, got %s", resp.PublishStatus)
	}
	if resp.DraftAssetURL == "" {
		t.Fatal("expected draft asset url")
	}
}

func publishableTask(store *testkit.Store, id string) {
	now := time.Now()
	store.PutTask(domain.GenerationTask{
		ID:            id,
		OwnerID:       testUserID,
		Prompt:        "p",
		Model:         "reel-lite",
		Status:        domain.TaskStatusSucceeded,
		PublishStatus: domain.PublishStatusDraft,
		DraftAssetURL: "https://cdn.example/draft.mp4",
		CreatedAt:     now,
		CompletedAt:   &now,
	})
}

func TestTaskPublishHappyPath(t *testing.T) {
	const taskID = "11111111-2222-4333-8444-555555555555"
	app, store, _ := newTestApp(t)
	publishableTask(store, taskID)

	body := `{"description":"first reel","hashtags":["#Fun"],"music":{"title":"Track","artist":"Band"}}`
	rec := httptest.NewRecorder()
	app.TaskPublish(rec, authedRequest(http.MethodPost, "/v1/tasks/"+taskID+"/publish", taskID, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp videoResponse
	decodeBody(t, rec, &resp)
	if resp.VideoURL != "https://cdn.example/draft.mp4" {
		t.Fatalf("video url must come from the draft, got %q", resp.VideoURL)
	}
	if resp.SourceTaskID != taskID {
		t.Fatalf("expected source task %s, got %s", taskID, resp.SourceTaskID)
	}
	if len(resp.Hashtags) != 1 || resp.Hashtags[0] != "fun" {
		t.Fatalf("expected normalized hashtags, got %v", resp.Hashtags)
	}
}

func TestTaskPublishConflictAfterReject(t *testing.T) {
	const taskID = "21111111-2222-4333-8444-555555555555"
	app, store, _ := newTestApp(t)
	publishableTask(store, taskID)

	rec := httptest.NewRecorder()
	app.TaskReject(rec, authedRequest(http.MethodPost, "/v1/tasks/"+taskID+"/reject", taskID, ""))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.TaskPublish(rec, authedRequest(http.MethodPost, "/v1/tasks/"+taskID+"/publish", taskID, `{}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["error"] != "invalid_task_state" {
		t.Fatalf("expected invalid_task_state, got %q", resp["error"])
	}
}

func TestTaskRejectNotFound(t *testing.T) {
	app, _, _ := newTestApp(t)
	rec := httptest.NewRecorder()
	app.TaskReject(rec, authedRequest(http.MethodPost, "/v1/tasks/x/reject", "31111111-2222-4333-8444-555555555555", ""))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestMeCredits(t *testing.T) {
	app, store, _ := newTestApp(t)
	store.SeedCredits(testUserID, 42)

	rec := httptest.NewRecorder()
	app.MeCredits(rec, authedRequest(http.MethodGet, "/v1/me/credits", "", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp map[string]int64
	decodeBody(t, rec, &resp)
	if resp["balance"] != 42 {
		t.Fatalf("expected balance 42, got %d", resp["balance"])
	}
}

func TestMeLedger(t *testing.T) {
	app, store, _ := newTestApp(t)
	store.SeedCredits(testUserID, 30)

	body := `{"prompt":"p","model":"reel-lite","duration_seconds":5,"aspect_ratio":"16:9"}`
	rec := httptest.NewRecorder()
	app.TasksCreate(rec, authedRequest(http.MethodPost, "/v1/tasks", "", body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.MeLedger(rec, authedRequest(http.MethodGet, "/v1/me/ledger", "", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Items []ledgerEntryResponse `json:"items"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Items) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Items))
	}
	if resp.Items[0].Reason != string(domain.ReasonGenerationDebit) || resp.Items[0].Delta != -1 {
		t.Fatalf("expected the debit first, got %+v", resp.Items[0])
	}
}

func TestVideosFeed(t *testing.T) {
	const taskID = "41111111-2222-4333-8444-555555555555"
	app, store, _ := newTestApp(t)
	publishableTask(store, taskID)

	rec := httptest.NewRecorder()
	app.TaskPublish(rec, authedRequest(http.MethodPost, "/v1/tasks/"+taskID+"/publish", taskID, `{"description":"clip"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("publish failed: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.VideosFeed(rec, authedRequest(http.MethodGet, "/v1/videos", "", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Items []videoResponse `json:"items"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 video, got %d", len(resp.Items))
	}
}
