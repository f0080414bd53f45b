package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/geoenrich/internal/config"
	"grimm.is/geoenrich/internal/enrich"
	"grimm.is/geoenrich/internal/health"
	"grimm.is/geoenrich/internal/logging"
)

const quietConfig = `
logging {
  level = "error"
}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "geoenrich.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func testRuntime(t *testing.T) *runtime {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Level = "error"
	rt, err := newRuntime(cfg, io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	return rt
}

func TestRunCheck_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
enrichment {
  sample_rate = 0.5
}
cache {
  max_size = 2000
}
`)
	var out bytes.Buffer
	require.NoError(t, RunCheck(path, true, &out))
	assert.Contains(t, out.String(), "Configuration valid!")
	assert.Contains(t, out.String(), "Sample rate:")
	assert.Contains(t, out.String(), "fallback tiers only")
}

func TestRunCheck_InvalidConfig(t *testing.T) {
	var out bytes.Buffer

	path := writeConfig(t, `enrichment {`)
	assert.Error(t, RunCheck(path, false, &out))

	path = writeConfig(t, `cache { ttl = "soon" }`)
	err := RunCheck(path, false, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)

	assert.Error(t, RunCheck("", false, &out))
}

func TestRunCheck_Warning(t *testing.T) {
	path := writeConfig(t, `enrichment { sample_rate = 0 }`)
	var out bytes.Buffer
	require.NoError(t, RunCheck(path, false, &out))
	assert.Contains(t, out.String(), "Warning: enrichment.sample_rate")
}

func TestRunCheck_MissingDatabase(t *testing.T) {
	path := writeConfig(t, `geoip { city_database = "/nonexistent/city.mmdb" }`)
	var out bytes.Buffer
	require.NoError(t, RunCheck(path, false, &out))
	assert.Error(t, RunCheck(path, true, &out))
}

func TestRunLookup(t *testing.T) {
	path := writeConfig(t, quietConfig)
	var out bytes.Buffer
	require.NoError(t, RunLookup(context.Background(), path, []string{"8.8.8.8", "10.0.0.1"}, &out))

	sc := bufio.NewScanner(&out)
	var lines []map[string]any
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)

	assert.Equal(t, "8.8.8.8", lines[0]["ip"])
	res := lines[0]["result"].(map[string]any)
	assert.Equal(t, "secondary", res["source"])
	assert.Equal(t, true, res["success"])
	assert.Equal(t, "US", res["data"].(map[string]any)["country_code"])

	res = lines[1]["result"].(map[string]any)
	assert.Equal(t, "failed", res["source"])
	assert.Nil(t, res["data"])

	assert.Error(t, RunLookup(context.Background(), path, nil, &out))
}

func TestEnrichStream(t *testing.T) {
	engine := enrich.New(enrich.DefaultOptions(), nil, nil)

	inputs := map[string]string{
		"array": `[{"src_ip": "8.8.8.8", "n": 1}, {"src_ip": "192.168.1.1"}, {"other": true}]`,
		"lines": "{\"src_ip\": \"8.8.8.8\", \"n\": 1}\n{\"src_ip\": \"192.168.1.1\"}\n\n{\"other\": true}\n",
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			var out bytes.Buffer
			n, err := enrichStream(context.Background(), engine, nil, strings.NewReader("  \n"+in), &out)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			lines := strings.Split(strings.TrimSpace(out.String()), "\n")
			require.Len(t, lines, 3)

			var first map[string]any
			require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
			assert.Contains(t, first, "src_ip_geo")
			assert.Equal(t, float64(1), first["n"])
			assert.NotContains(t, lines[1], "_geo")
			assert.JSONEq(t, `{"other": true}`, lines[2])
		})
	}
}

func TestEnrichStream_Empty(t *testing.T) {
	engine := enrich.New(enrich.DefaultOptions(), nil, nil)
	for _, in := range []string{"", "   ", "[]"} {
		var out bytes.Buffer
		n, err := enrichStream(context.Background(), engine, nil, strings.NewReader(in), &out)
		require.NoError(t, err, "input %q", in)
		assert.Zero(t, n)
		assert.Empty(t, out.String())
	}
}

func TestEnrichStream_Chunks(t *testing.T) {
	engine := enrich.New(enrich.DefaultOptions(), nil, nil)
	var in strings.Builder
	total := enrichChunk*2 + 3
	for i := 0; i < total; i++ {
		in.WriteString(`{"ip": "8.8.4.4"}` + "\n")
	}
	var out bytes.Buffer
	n, err := enrichStream(context.Background(), engine, []string{"ip"}, strings.NewReader(in.String()), &out)
	require.NoError(t, err)
	assert.Equal(t, total, n)
	assert.Equal(t, total, strings.Count(out.String(), "ip_geo"))
}

func TestEnrichStream_Invalid(t *testing.T) {
	engine := enrich.New(enrich.DefaultOptions(), nil, nil)
	var out bytes.Buffer
	_, err := enrichStream(context.Background(), engine, nil, strings.NewReader(`{"ip": "8.8.8.8"} {bad`), &out)
	assert.Error(t, err)

	_, err = enrichStream(context.Background(), engine, nil, strings.NewReader(`["not an object"]`), &out)
	assert.Error(t, err)
}

func TestRunEnrich(t *testing.T) {
	path := writeConfig(t, quietConfig)
	var out, stats bytes.Buffer
	opts := EnrichOptions{ConfigFile: path, Fields: []string{"device.ip"}}
	in := strings.NewReader(`{"device": {"ip": "1.1.1.1"}}`)

	require.NoError(t, RunEnrich(context.Background(), opts, in, &out, &stats))
	assert.Contains(t, out.String(), `"ip_geo"`)
	assert.Contains(t, stats.String(), "Enriched 1 objects")
}

func TestHandler(t *testing.T) {
	rt := testRuntime(t)
	srv := httptest.NewServer(newHandler(rt))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/enrich?ip=8.8.8.8")
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "secondary", res["source"])

	resp, err = http.Get(srv.URL + "/enrich?ip=8.8.8.8&ip=1.1.1.1")
	require.NoError(t, err)
	var batch map[string]map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&batch))
	resp.Body.Close()
	assert.Len(t, batch, 2)
	assert.Equal(t, "cache", batch["8.8.8.8"]["source"])

	resp, err = http.Get(srv.URL + "/enrich")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/enrich?field=addr", "application/json", strings.NewReader(`{"addr": "8.8.8.8", "count": 12345678901}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `"addr_geo"`)
	assert.Contains(t, string(body), `12345678901`)

	resp, err = http.Post(srv.URL+"/enrich", "application/json", strings.NewReader(`[{"src_ip": "8.8.8.8"}, {"dst_ip": "1.1.1.1"}]`))
	require.NoError(t, err)
	var objs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&objs))
	resp.Body.Close()
	require.Len(t, objs, 2)
	assert.Contains(t, objs[0], "src_ip_geo")
	assert.Contains(t, objs[1], "dst_ip_geo")

	for _, bad := range []string{`"string"`, `[1]`, `{`} {
		resp, err = http.Post(srv.URL+"/enrich", "application/json", strings.NewReader(bad))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %s", bad)
	}
}

func TestHandler_Stats(t *testing.T) {
	rt := testRuntime(t)
	h := newHandler(rt)
	rt.engine.EnrichIP(context.Background(), "8.8.8.8")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var stats statsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, uint64(1), stats.Enrichment.TotalRequests)
	assert.Equal(t, 1, stats.Cache.Size)
	assert.True(t, stats.PerformingWell)
	assert.True(t, stats.FallbackEnabled)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats?format=text", nil)
	req.Header.Set("Accept-Language", "en")
	h.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "Requests:        1")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/stats/reset", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rt.engine.Stats().TotalRequests)
}

func TestHandler_Metrics(t *testing.T) {
	rt := testRuntime(t)
	h := newHandler(rt)
	rt.engine.EnrichIP(context.Background(), "8.8.8.8")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "enrich_requests_total")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	var report health.Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, health.StatusDegraded, report.Status, "no database configured")
	assert.Len(t, report.Checks, 3)
}

func TestRunCheck_Sample(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, RunCheck(filepath.Join("..", "configs", "geoenrich.hcl"), true, &out))
	assert.Contains(t, out.String(), "Secondary table")
}

func TestRuntimeReload(t *testing.T) {
	path := writeConfig(t, quietConfig)
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	rt, err := newRuntime(cfg, io.Discard)
	require.NoError(t, err)
	defer rt.Close()
	assert.Equal(t, logging.LevelError, rt.logger.GetLevel())

	require.NoError(t, os.WriteFile(path, []byte(`logging { level = "debug" }`), 0o644))
	require.NoError(t, rt.reload(path))
	assert.Equal(t, logging.LevelDebug, rt.logger.GetLevel())

	// A broken file keeps the running level.
	require.NoError(t, os.WriteFile(path, []byte(`logging {`), 0o644))
	assert.Error(t, rt.reload(path))
	assert.Equal(t, logging.LevelDebug, rt.logger.GetLevel())
}
