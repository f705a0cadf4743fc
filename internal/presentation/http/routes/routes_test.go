package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AtRiskMedia/tractstack-attribution/internal/application/container"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/persistence/memory"
	"github.com/AtRiskMedia/tractstack-attribution/internal/infrastructure/security"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var conversionTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newRouter(t *testing.T, jwtSecret string) *gin.Engine {
	t.Helper()
	c := container.NewContainer(memory.NewStore(), logging.NewDiscardLogger(), performance.NewTracker(nil), container.Options{
		ReportingJWTSecret: jwtSecret,
	})
	return SetupRoutes(c)
}

func do(t *testing.T, r http.Handler, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var decoded map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	}
	return w, decoded
}

func seedScenario(t *testing.T, r http.Handler) {
	t.Helper()
	for _, tp := range []struct {
		content string
		offset  time.Duration
	}{
		{"A", -10 * 24 * time.Hour},
		{"B", -3 * 24 * time.Hour},
		{"C", -24 * time.Hour},
	} {
		w, _ := do(t, r, http.MethodPost, "/api/v1/touchpoints", map[string]any{
			"userId": "U", "contentId": tp.content, "sessionId": "s1",
			"timestamp": conversionTime.Add(tp.offset).Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, body := do(t, r, http.MethodPost, "/api/v1/conversions", map[string]any{
		"userId": "U", "conversionType": "purchase", "revenue": 100,
		"timestamp": conversionTime.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, w.Code)
	conversion := body["conversion"].(map[string]any)
	assert.Equal(t, float64(3), conversion["touchpointCount"])
}

func TestIngestionAndQueries(t *testing.T) {
	r := newRouter(t, "")
	seedScenario(t, r)

	w, body := do(t, r, http.MethodGet, "/api/v1/attribution/content/B?model=position_based", nil)
	require.Equal(t, http.StatusOK, w.Code)
	attributed := body["attribution"].(map[string]any)
	assert.InDelta(t, 20.0, attributed["totalRevenue"], 1e-9)
	assert.Equal(t, "position_based", attributed["model"])

	w, body = do(t, r, http.MethodGet, "/api/v1/attribution/content/A", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "linear", body["attribution"].(map[string]any)["model"])

	w, body = do(t, r, http.MethodGet, "/api/v1/attribution/content/A/roi?cost=50&model=linear", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, -33.33, body["roi"].(map[string]any)["roiPercentage"], 0.01)

	w, body = do(t, r, http.MethodGet, "/api/v1/attribution/top?limit=2&model=last_touch", nil)
	require.Equal(t, http.StatusOK, w.Code)
	content := body["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "C", content[0].(map[string]any)["contentId"])

	w, body = do(t, r, http.MethodGet, "/api/v1/attribution/paths?minTouchpoints=3", nil)
	require.Equal(t, http.StatusOK, w.Code)
	paths := body["paths"].([]any)
	require.Len(t, paths, 1)
	assert.Equal(t, "A -> B -> C", paths[0].(map[string]any)["path"])

	w, body = do(t, r, http.MethodGet, "/api/v1/attribution/customers/U/ltv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 100.0, body["customer"].(map[string]any)["lifetimeValue"], 1e-9)

	w, body = do(t, r, http.MethodGet, "/api/v1/attribution/customers/U/journey?at="+conversionTime.Format(time.RFC3339)+"&lookbackDays=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["journey"], 2)

	w, body = do(t, r, http.MethodGet, "/api/v1/attribution/customers/U/conversions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["conversions"], 1)

	w, body = do(t, r, http.MethodGet, "/api/v1/attribution/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := body["summary"].(map[string]any)
	assert.InDelta(t, 100.0, summary["totalRevenue"], 1e-9)
	assert.Equal(t, float64(3), summary["totalTouchpoints"])

	w, body = do(t, r, http.MethodGet, "/api/v1/attribution/overview?model=time_decay&limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	overview := body["overview"].(map[string]any)
	assert.Len(t, overview["topContent"], 1)

	w, body = do(t, r, http.MethodGet, "/api/v1/system/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	counters := body["metrics"].(map[string]any)["counters"].(map[string]any)
	assert.Equal(t, float64(1), counters["conversions_tracked"])
}

func TestBadRequests(t *testing.T) {
	r := newRouter(t, "")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"unknown model", http.MethodGet, "/api/v1/attribution/content/A?model=w_shaped", nil},
		{"empty model", http.MethodGet, "/api/v1/attribution/top?model=", nil},
		{"bad start", http.MethodGet, "/api/v1/attribution/content/A?start=yesterday", nil},
		{"bad limit", http.MethodGet, "/api/v1/attribution/top?limit=ten", nil},
		{"missing cost", http.MethodGet, "/api/v1/attribution/content/A/roi", nil},
		{"NaN cost", http.MethodGet, "/api/v1/attribution/content/A/roi?cost=NaN", nil},
		{"infinite cost", http.MethodGet, "/api/v1/attribution/content/A/roi?cost=-Inf", nil},
		{"negative revenue", http.MethodPost, "/api/v1/conversions", map[string]any{
			"userId": "u1", "conversionType": "purchase", "revenue": -1,
		}},
		{"missing revenue", http.MethodPost, "/api/v1/conversions", map[string]any{
			"userId": "u1", "conversionType": "purchase",
		}},
		{"missing content id", http.MethodPost, "/api/v1/touchpoints", map[string]any{"userId": "u1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, body := do(t, r, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestZeroRevenueConversionIsAccepted(t *testing.T) {
	r := newRouter(t, "")
	w, body := do(t, r, http.MethodPost, "/api/v1/conversions", map[string]any{
		"userId": "u1", "conversionType": "signup", "revenue": 0,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(0), body["conversion"].(map[string]any)["touchpointCount"])
}

func TestReportingAuth(t *testing.T) {
	const secret = "reporting-secret"
	r := newRouter(t, secret)

	w, _ := do(t, r, http.MethodGet, "/api/v1/attribution/summary", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/attribution/summary", nil, "Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := security.GenerateReportingToken("dashboard", secret, time.Hour)
	require.NoError(t, err)
	w, _ = do(t, r, http.MethodGet, "/api/v1/attribution/summary", nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/attribution/summary?token="+token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Ingestion stays open.
	w, _ = do(t, r, http.MethodPost, "/api/v1/touchpoints", map[string]any{"userId": "u1", "contentId": "A"})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestLogLevels(t *testing.T) {
	r := newRouter(t, "")

	w, body := do(t, r, http.MethodPost, "/api/v1/system/logs/levels", map[string]any{"channel": "attribution", "level": "debug"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DEBUG", body["levels"].(map[string]any)["attribution"])

	w, _ = do(t, r, http.MethodPost, "/api/v1/system/logs/levels", map[string]any{"channel": "nope", "level": "debug"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConversionStream(t *testing.T) {
	c := container.NewContainer(memory.NewStore(), logging.NewDiscardLogger(), performance.NewTracker(nil), container.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Broadcaster.Run(ctx)

	server := httptest.NewServer(SetupRoutes(c))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/api/v1/attribution/stream", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return c.Broadcaster.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	resp, err := http.Post(server.URL+"/api/v1/conversions", "application/json",
		strings.NewReader(`{"userId":"u1","conversionType":"purchase","revenue":12.5}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var event struct {
		Type       string `json:"type"`
		Conversion struct {
			UserID  string  `json:"userId"`
			Revenue float64 `json:"revenue"`
		} `json:"conversion"`
	}
	require.NoError(t, json.Unmarshal(raw, &event))
	assert.Equal(t, "conversion", event.Type)
	assert.Equal(t, "u1", event.Conversion.UserID)
	assert.InDelta(t, 12.5, event.Conversion.Revenue, 1e-9)
}
