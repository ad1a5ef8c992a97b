package httpapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ztime/internal/adapter/scheduler"
	"ztime/pkg/ztime"
)

// Среда.
var fixedNow = time.Date(2024, time.May, 15, 10, 20, 30, 0, time.UTC)

type midRand struct{}

// Int64N always picks the middle value, so the jitter offset is zero.
func (midRand) Int64N(n int64) int64 { return n / 2 }

type fakeJobs []scheduler.LoopJobInfo

func (f fakeJobs) LoopJobs() []scheduler.LoopJobInfo { return f }

func newTestRouter(jobs JobLister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(Options{
		Clock: ztime.FixedClock{At: fixedNow},
		Rand:  midRand{},
		Jobs:  jobs,
	})
	return h.Router()
}

func do(t *testing.T, r http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func TestHealth(t *testing.T) {
	w, out := do(t, newTestRouter(nil), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "2024-05-15T10:20:30.000Z", out["now"])
}

func TestResolve(t *testing.T) {
	r := newTestRouter(nil)

	tests := []struct {
		expr string
		want string
	}{
		{"", "2024-05-15T10:20:30.000Z"},
		{"12:00 +00:30", "2024-05-15T12:30:00.000Z"},
		{"friday", "2024-05-17T10:20:30.000Z"},
		{"2022-02-28T12:34:56Z -1d", "2022-02-27T12:34:56.000Z"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			w, out := do(t, r, http.MethodGet, "/v1/resolve?expr="+url.QueryEscape(tt.expr), "")
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, out["at"])

			want, err := time.Parse(time.RFC3339, tt.want)
			require.NoError(t, err)
			assert.EqualValues(t, want.UnixMilli(), out["millis"])
		})
	}
}

func TestResolveWithJitter(t *testing.T) {
	w, out := do(t, newTestRouter(nil), http.MethodGet, "/v1/resolve?expr=12:00&jitter=1s", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2024-05-15T12:00:00.000Z", out["at"])
}

func TestResolveErrors(t *testing.T) {
	r := newTestRouter(nil)

	tests := []struct {
		target string
		code   string
	}{
		{"/v1/resolve?expr=someday", ztime.CodeUnknownOrigin},
		{"/v1/resolve?expr=" + url.QueryEscape("now +soon"), ztime.CodeInvalidDuration},
		{"/v1/resolve?expr=2022-02-30Z", ztime.CodeInvalidDate},
		{"/v1/resolve?expr=now&jitter=lots", ""},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w, out := do(t, r, http.MethodGet, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, out["error"])
			if tt.code != "" {
				assert.Equal(t, tt.code, out["code"])
			}
		})
	}
}

func TestShift(t *testing.T) {
	r := newTestRouter(nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"plus object", `{"at":"2022-02-28T12:34:56Z","op":"plus","duration":{"hours":2,"minutes":30}}`, "2022-02-28T15:04:56.000Z"},
		{"minus clock text", `{"at":"2022-02-28T12:34:56Z","op":"minus","duration":"00:34:56"}`, "2022-02-28T12:00:00.000Z"},
		{"plus millis", `{"at":1646051696789,"op":"plus","duration":211}`, "2022-02-28T12:34:57.000Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, out := do(t, r, http.MethodPost, "/v1/shift", tt.body)
			require.Equal(t, http.StatusOK, w.Code, out)
			assert.Equal(t, tt.want, out["at"])
		})
	}
}

func TestShiftErrors(t *testing.T) {
	r := newTestRouter(nil)

	for _, body := range []string{
		`{"op":"plus","duration":1}`,
		`{"at":"now","op":"times","duration":1}`,
		`{"at":"whenever","op":"plus","duration":1}`,
		`{"at":"now","op":"plus","duration":"forever"}`,
		`not json`,
	} {
		t.Run(body, func(t *testing.T) {
			w, out := do(t, r, http.MethodPost, "/v1/shift", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestJitter(t *testing.T) {
	r := newTestRouter(nil)

	w, out := do(t, r, http.MethodPost, "/v1/jitter", `{"at":"2022-02-28T12:34:56Z","amplitude":"10s"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2022-02-28T12:34:56.000Z", out["at"])

	w, out = do(t, r, http.MethodPost, "/v1/jitter", `{"at":"2022-02-28T12:34:56Z"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2022-02-28T12:34:56.000Z", out["at"], "zero amplitude keeps the instant")
}

func TestRouter_RebuiltRouterKeepsValidationTags(t *testing.T) {
	var logs bytes.Buffer
	h := New(Options{
		Logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Clock:  ztime.FixedClock{At: fixedNow},
		Rand:   midRand{},
	})
	_ = h.Router()
	r := h.Router()

	w, out := do(t, r, http.MethodGet, "/v1/resolve?expr=12:00&jitter=soon", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, out["error"])
	assert.NotContains(t, logs.String(), "register validation tags")
}

func TestJobs(t *testing.T) {
	w, out := do(t, newTestRouter(nil), http.MethodGet, "/v1/jobs", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, out["error"])

	jobs := fakeJobs{{ID: 1, Name: "heartbeat", State: "waiting", Next: ztime.FromTime(fixedNow), Runs: 3}}
	w, out = do(t, newTestRouter(jobs), http.MethodGet, "/v1/jobs", "")
	require.Equal(t, http.StatusOK, w.Code)

	list, ok := out["jobs"].([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	job := list[0].(map[string]any)
	assert.Equal(t, "heartbeat", job["name"])
	assert.Equal(t, "2024-05-15T10:20:30.000Z", job["next"])
	assert.EqualValues(t, 3, job["runs"])
}
