package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/melih/lighthouse-classroom/internal/adapters/storage/boltdb"
	"github.com/melih/lighthouse-classroom/internal/core/domain"
	"github.com/melih/lighthouse-classroom/internal/core/services"
	"github.com/melih/lighthouse-classroom/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app      *fiber.App
	engine   *testutil.FakeEngine
	registry *services.Registry
}

func newTestServer(t *testing.T, rng domain.PortRange) *testServer {
	t.Helper()

	store, err := boltdb.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	engine := testutil.NewFakeEngine()
	allocator, err := services.NewPortAllocator(rng)
	require.NoError(t, err)
	registry := services.NewRegistry(store, allocator)
	builder, err := services.NewImageBuilder(engine, "", domain.ContainerPort)
	require.NoError(t, err)
	lifecycle := services.NewLifecycle(engine, rng)
	coordinator := services.NewCoordinator(registry, store, builder, lifecycle, domain.ContainerPort)
	resources, err := services.NewResourceService(store, coordinator, nil, t.TempDir())
	require.NoError(t, err)

	app := NewApp(Deps{
		Resources:   resources,
		Coordinator: coordinator,
		Registry:    registry,
		Engine:      engine,
		ProxyHost:   "127.0.0.1",
	})
	return &testServer{app: app, engine: engine, registry: registry}
}

type createResponse struct {
	Resource domain.Resource        `json:"resource"`
	Record   domain.ContainerRecord `json:"record"`
}

func (s *testServer) upload(t *testing.T, filename, body string) createResponse {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("content", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/resources", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var out createResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (s *testServer) do(t *testing.T, method, target string, body io.Reader) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.app.Test(httptest.NewRequest(method, target, body), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, domain.DefaultPortRange())

	resp, _ := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	s.engine.PingErr = fmt.Errorf("%w: dial unix /var/run/docker.sock", domain.ErrEngineUnreachable)
	resp, body := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), "unreachable")
}

func TestCreateAndPublish(t *testing.T) {
	s := newTestServer(t, domain.DefaultPortRange())

	created := s.upload(t, "intro.html", "<h1>intro</h1>")
	assert.Equal(t, 10000, created.Record.HostPort)
	assert.Equal(t, "intro.html", created.Resource.Filename)

	resp, body := s.do(t, http.MethodPost, "/api/v1/resources/"+created.Resource.ID+"/publish", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"host_port":10000}`, string(body))

	resp, _ = s.do(t, http.MethodPost, "/api/v1/resources/"+created.Resource.ID+"/publish", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, s.engine.Count("build"))

	resp, body = s.do(t, http.MethodGet, "/api/v1/records", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	var records []domain.ContainerRecord
	require.NoError(t, json.Unmarshal(body, &records))
	require.Len(t, records, 1)
	assert.False(t, records[0].NeedsRebuild)
}

func TestCreateResource_MissingContent(t *testing.T) {
	s := newTestServer(t, domain.DefaultPortRange())

	resp, _ := s.do(t, http.MethodPost, "/api/v1/resources", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestPublish_UnknownResource(t *testing.T) {
	s := newTestServer(t, domain.DefaultPortRange())

	resp, body := s.do(t, http.MethodPost, "/api/v1/resources/missing/publish", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "error")
}

func TestPublish_BuildFailure(t *testing.T) {
	s := newTestServer(t, domain.DefaultPortRange())
	created := s.upload(t, "intro.html", "<h1>intro</h1>")

	s.engine.BuildErr = errors.New("COPY failed")
	resp, _ := s.do(t, http.MethodPost, "/api/v1/resources/"+created.Resource.ID+"/publish", nil)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
}

func TestUpdateContentFlagsRebuild(t *testing.T) {
	s := newTestServer(t, domain.DefaultPortRange())
	created := s.upload(t, "intro.html", "v1")
	id := created.Resource.ID

	resp, _ := s.do(t, http.MethodPost, "/api/v1/resources/"+id+"/publish", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := s.do(t, http.MethodPut, "/api/v1/resources/"+id+"/content", bytes.NewBufferString("v2"))
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	rec, err := s.registry.Get(t.Context(), id)
	require.NoError(t, err)
	assert.True(t, rec.NeedsRebuild)
}

func TestDeleteResource(t *testing.T) {
	s := newTestServer(t, domain.DefaultPortRange())
	created := s.upload(t, "intro.html", "<h1>intro</h1>")
	id := created.Resource.ID

	resp, _ := s.do(t, http.MethodPost, "/api/v1/resources/"+id+"/publish", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, http.MethodDelete, "/api/v1/resources/"+id, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	_, ok := s.engine.Container(created.Record.UniqueName)
	assert.False(t, ok)

	resp, _ = s.do(t, http.MethodGet, "/api/v1/resources/"+id, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, http.MethodPost, "/api/v1/resources/"+id+"/publish", nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestRecordLogs(t *testing.T) {
	s := newTestServer(t, domain.DefaultPortRange())
	created := s.upload(t, "intro.html", "<h1>intro</h1>")
	id := created.Resource.ID

	resp, _ := s.do(t, http.MethodPost, "/api/v1/resources/"+id+"/publish", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	s.engine.Logs = "GET / 200\n"
	resp, body := s.do(t, http.MethodGet, "/api/v1/records/"+id+"/logs?tail=10", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "GET / 200\n", string(body))

	resp, _ = s.do(t, http.MethodGet, "/api/v1/records/"+id+"/logs?tail=abc", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestImport_NotConfigured(t *testing.T) {
	s := newTestServer(t, domain.DefaultPortRange())

	resp, _ := s.do(t, http.MethodPost, "/api/v1/resources/import", bytes.NewBufferString("{}"))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, domain.DefaultPortRange())
	s.do(t, http.MethodGet, "/healthz", nil)

	resp, body := s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "lighthouse_api_requests_total")
}

func TestRender_ProxiesToContainerPort(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "path=%s query=%s", r.URL.Path, r.URL.RawQuery)
	}))
	defer backend.Close()

	_, portStr, err := net.SplitHostPort(backend.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	// the only allocatable port is the backend's, so the published port points at it
	s := newTestServer(t, domain.PortRange{Min: port, Max: port})
	created := s.upload(t, "intro.html", "<h1>intro</h1>")

	resp, body := s.do(t, http.MethodGet, "/render/"+created.Resource.ID+"/page.html?x=1", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "path=/page.html query=x=1", string(body))
	assert.Equal(t, 1, s.engine.Count("start"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrRecordNotFound, fiber.StatusNotFound},
		{domain.ErrResourceNotFound, fiber.StatusNotFound},
		{domain.ErrDuplicateRecord, fiber.StatusConflict},
		{domain.ErrNameInUse, fiber.StatusConflict},
		{domain.ErrInvalidName, fiber.StatusUnprocessableEntity},
		{domain.ErrContentMissing, fiber.StatusUnprocessableEntity},
		{domain.ErrBuildFailure, fiber.StatusBadGateway},
		{fmt.Errorf("%w: %w", domain.ErrRenderFailed, domain.ErrContainerStartFailure), fiber.StatusBadGateway},
		{domain.ErrEngineUnreachable, fiber.StatusServiceUnavailable},
		{domain.ErrPortRangeExhausted, fiber.StatusServiceUnavailable},
		{errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
