package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"airflow-service/app/src/shared/constants"
)

const (
	defaultBaseURL      = "http://localhost:8080"
	defaultMetricsURL   = "http://localhost:2112/metrics"
	defaultTimeout      = 60 * time.Second
	requestTimeout      = 10 * time.Second
	maxLoggedBodyLength = 500
)

type e2eConfig struct {
	BaseURL    string
	MetricsURL string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type airflowResponse struct {
	RoomID     string  `json:"room_id"`
	ACH        float64 `json:"ach"`
	AirflowM3H float64 `json:"airflow_m3h"`
	AirflowCFM float64 `json:"airflow_cfm"`
	Confidence float64 `json:"confidence"`
	Samples    int     `json:"samples"`
	Bucket     string  `json:"bucket"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

func loadConfig() e2eConfig {
	cfg := e2eConfig{
		BaseURL:    envOr("E2E_BASE_URL", defaultBaseURL),
		MetricsURL: envOr("E2E_METRICS_URL", defaultMetricsURL),
		Timeout:    defaultTimeout,
		HTTPClient: &http.Client{Timeout: requestTimeout},
	}
	if raw := strings.TrimSpace(os.Getenv("E2E_TIMEOUT_SECONDS")); raw != "" {
		if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
			cfg.Timeout = time.Duration(seconds) * time.Second
		}
	}
	return cfg
}

// TestE2E drives a running service: the room must be in ROOMS_FILE or
// AUTO_REGISTER_ROOMS must be enabled.
func TestE2E(t *testing.T) {
	if strings.TrimSpace(os.Getenv("RUN_E2E")) == "" {
		t.Skip("skipping end-to-end test (set RUN_E2E=1 to run)")
	}
	if testing.Short() {
		t.Skip("skipping end-to-end test in short mode")
	}

	cfg := loadConfig()
	room := envOr("E2E_ROOM", "e2e-"+constants.GenerateUUID()[:8])
	started := time.Now()

	t.Logf("Step 1: waiting for %s/healthz", cfg.BaseURL)
	waitForHealth(t, cfg)

	metricsBefore := scrapeCounter(t, cfg, "http_requests_total")

	t.Logf("Step 2: posting an exact decay series for room %s", room)
	var readings []map[string]float64
	for i := 0; i < 8; i++ {
		ts := float64(i * 30)
		readings = append(readings, map[string]float64{
			"timestamp":         ts,
			"concentration_ppm": 450 * math.Exp(-0.0015*ts),
		})
	}
	body, err := json.Marshal(readings)
	require.NoError(t, err)

	status, respBody := do(t, cfg, http.MethodPost, "/rooms/"+room+"/measurements", body)
	require.Equal(t, http.StatusAccepted, status, truncate(respBody))

	t.Log("Step 3: reading the airflow estimate back")
	status, respBody = do(t, cfg, http.MethodGet, "/rooms/"+room+"/airflow", nil)
	require.Equal(t, http.StatusOK, status, truncate(respBody))

	var estimate airflowResponse
	require.NoError(t, json.Unmarshal([]byte(respBody), &estimate))
	require.InDelta(t, 5.4, estimate.ACH, 0.01)
	require.Equal(t, 8, estimate.Samples)
	require.Equal(t, "high", estimate.Bucket)

	t.Log("Step 4: a rising reading turns the window into not_decaying")
	status, respBody = do(t, cfg, http.MethodPost, "/rooms/"+room+"/measurements",
		[]byte(`{"timestamp": 240, "concentration_ppm": 1000}`))
	require.Equal(t, http.StatusAccepted, status, truncate(respBody))

	status, respBody = do(t, cfg, http.MethodGet, "/rooms/"+room+"/airflow", nil)
	require.Equal(t, http.StatusUnprocessableEntity, status, truncate(respBody))
	var noResult errorResponse
	require.NoError(t, json.Unmarshal([]byte(respBody), &noResult))
	require.Equal(t, "not_decaying", noResult.Reason)

	t.Log("Step 5: request counter moved")
	metricsAfter := scrapeCounter(t, cfg, "http_requests_total")
	require.Greater(t, metricsAfter, metricsBefore)

	t.Logf("end-to-end flow finished in %s", time.Since(started).Round(time.Millisecond))
}

func waitForHealth(t *testing.T, cfg e2eConfig) {
	t.Helper()
	deadline := time.Now().Add(cfg.Timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		resp, err := cfg.HTTPClient.Get(cfg.BaseURL + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
		} else {
			lastErr = err
		}
		time.Sleep(time.Second)
	}
	t.Fatalf("service not healthy after %s: %v", cfg.Timeout, lastErr)
}

func do(t *testing.T, cfg e2eConfig, method, path string, body []byte) (int, string) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, cfg.BaseURL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := cfg.HTTPClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

// scrapeCounter returns the value of an unlabelled metric, or 0 if absent.
func scrapeCounter(t *testing.T, cfg e2eConfig, name string) float64 {
	t.Helper()
	resp, err := cfg.HTTPClient.Get(cfg.MetricsURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 2 && fields[0] == name {
			value, err := strconv.ParseFloat(fields[1], 64)
			require.NoError(t, err)
			return value
		}
	}
	require.NoError(t, scanner.Err())
	return 0
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func truncate(s string) string {
	if len(s) <= maxLoggedBodyLength {
		return s
	}
	return s[:maxLoggedBodyLength]
}
