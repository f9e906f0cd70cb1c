package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutoring-booking-api/internal/middleware"
	"github.com/noah-isme/tutoring-booking-api/internal/models"
)

var (
	studentActor = models.Actor{UserID: "student-1", Role: models.RoleStudent, Email: "sam@example.com"}
	teacherActor = models.Actor{UserID: "teacher-1", Role: models.RoleTeacher, Email: "alice@example.com"}
	adminActor   = models.Actor{UserID: "admin-1", Role: models.RoleAdmin, Email: "ada@example.com"}
)

func newTestContext(t *testing.T, method, target string, body interface{}, actor *models.Actor) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		payload, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if actor != nil {
		c.Set(middleware.ContextActorKey, *actor)
	}
	return c, w
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *struct{ Code string } `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

type pingStub struct{ err error }

func (p pingStub) PingContext(context.Context) error { return p.err }
