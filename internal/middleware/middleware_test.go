package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dreambot-go/internal/config"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nullLogger() *logrus.Logger {
	l, _ := test.NewNullLogger()
	return l
}

func TestRateLimiterAllowsBurstThenThrottles(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, Burst: 2}, NewMetrics(), nullLogger())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	before := testutil.ToFloat64(rateLimitExceeded)

	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u2"), "limits are per user")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("u1"))

	assert.Equal(t, before+1, testutil.ToFloat64(rateLimitExceeded))

	rl.Reset("u1")
	assert.True(t, rl.Allow("u1"))
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 10, Burst: 1}, nil, nullLogger())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("idle")
	now = now.Add(2 * time.Hour)
	rl.Allow("active")

	assert.Equal(t, 1, rl.Cleanup(time.Hour))
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "active")
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: false}, nil, nullLogger())
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("u1"))
	}
	assert.Equal(t, 0, rl.Cleanup(0))
}

func TestSanitizeOutput(t *testing.T) {
	s := NewSecurityMiddleware(nullLogger())

	assert.Equal(t, "hello", s.SanitizeOutput("hello"))
	assert.NotContains(t, s.SanitizeOutput("wake up @everyone"), "@everyone")
	assert.NotContains(t, s.SanitizeOutput("@here o bearer mine"), "@here")

	long := s.SanitizeOutput(strings.Repeat("ж", 2500))
	assert.Equal(t, MaxMessageRunes, utf8.RuneCountInString(long))
	assert.True(t, strings.HasSuffix(long, "..."))
}

func TestValidateInput(t *testing.T) {
	s := NewSecurityMiddleware(nullLogger())

	assert.NoError(t, s.ValidateInput("thoughts on minecraft?"))
	assert.Error(t, s.ValidateInput(strings.Repeat("a", 4001)))
	assert.Error(t, s.ValidateInput(string([]byte{0xff, 0xfe})))
}

func TestServerRoutes(t *testing.T) {
	cfg := &config.MonitoringConfig{
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	srv := NewServer(cfg, func() Status {
		return Status{Online: true, TrackedUsers: 7, StartedAt: started}
	}, nullLogger())

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	get := func(path string) (int, string) {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "OK", body)

	code, body = get("/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "ONLINE")
	assert.Contains(t, body, "Tracked dreamers: 7")

	NewMetrics().RecordEscape()
	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "dreambot_escapes_total")

	code, _ = get("/missing")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestMetricsRecordResponse(t *testing.T) {
	m := NewMetrics()
	before := testutil.ToFloat64(responsesTotal.WithLabelValues("vague", "none"))
	beforeIntent := testutil.ToFloat64(intentsTotal.WithLabelValues("none"))

	m.RecordResponse("", "vague", "", 5*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(responsesTotal.WithLabelValues("vague", "none")))
	assert.Equal(t, beforeIntent+1, testutil.ToFloat64(intentsTotal.WithLabelValues("none")))

	m.SetTrackedUsers(12)
	assert.Equal(t, float64(12), testutil.ToFloat64(trackedUsers))
}
