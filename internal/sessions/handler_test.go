package sessions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/heritagehub/backend/internal/middleware"
)

func newFeedbackRouter(t *testing.T, userID uuid.UUID) (*gin.Engine, uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, _ := newTestService(t)
	owner := instructor()
	s := createSession(t, svc, owner, 5)
	ctx := context.Background()
	if _, err := svc.Register(ctx, s.ID, userID); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Start(ctx, owner, s.ID, "https://meet.example/x"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.MarkJoined(ctx, s.ID, userID); err != nil {
		t.Fatalf("mark joined: %v", err)
	}
	if _, err := svc.End(ctx, owner, s.ID, ""); err != nil {
		t.Fatalf("end: %v", err)
	}

	h := NewHandler(svc, nil)
	router := gin.New()
	router.POST("/sessions/:id/feedback", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextUserRole, "student")
	}, h.SubmitFeedback)
	return router, s.ID
}

func TestSubmitFeedbackHandlerRatingRange(t *testing.T) {
	userID := uuid.New()
	router, sessionID := newFeedbackRouter(t, userID)

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost,
			"/sessions/"+sessionID.String()+"/feedback", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	// A zero rating must fall through binding and hit the range check.
	w := post(`{"rating": 0}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("rating 0: status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "rating must be between 1 and 5") {
		t.Fatalf("rating 0: body = %s, want range error", w.Body.String())
	}

	w = post(`{"rating": 6}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("rating 6: status = %d, want 400", w.Code)
	}

	w = post(`{"rating": 4, "comment": "lovely walkthrough"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("rating 4: status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"average_rating":4`) {
		t.Fatalf("rating 4: body = %s, want average_rating 4", w.Body.String())
	}
}
