package http

import (
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/melih/lighthouse-classroom/internal/core/services"
	"github.com/melih/lighthouse-classroom/internal/log"
	"github.com/rs/zerolog"
)

// RenderHandler publishes a resource on demand and reverse-proxies the
// request to its container.
type RenderHandler struct {
	coordinator *services.Coordinator
	host        string
	logger      zerolog.Logger
}

// NewRenderHandler proxies to host:<published port>.
func NewRenderHandler(coordinator *services.Coordinator, host string) *RenderHandler {
	if host == "" {
		host = "127.0.0.1"
	}
	return &RenderHandler{coordinator: coordinator, host: host, logger: log.WithComponent("render")}
}

// Render serves /render/:id/* from the resource's container.
func (h *RenderHandler) Render(c *fiber.Ctx) error {
	id := c.Params("id")
	port, err := h.coordinator.Publish(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}

	remote, err := url.Parse("http://" + net.JoinHostPort(h.host, strconv.Itoa(port)))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Invalid target URL")
	}
	path := "/" + c.Params("*")

	proxy := httputil.NewSingleHostReverseProxy(remote)

	// Rewrite Host and strip the /render/:id prefix so the container sees a
	// request for its own root.
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)
		req.Host = remote.Host
		req.URL.Path = path
		req.URL.RawPath = ""
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		h.logger.Warn().Err(err).Str("resource_id", id).Str("target", remote.Host).Msg("proxy error")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(fmt.Sprintf("Proxy Info: target=%s error=%v", remote.Host, err)))
	}

	// Fiber <-> Net/HTTP Adaptor
	return adaptor.HTTPHandler(proxy)(c)
}
