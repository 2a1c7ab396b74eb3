// Package http implements harness.SyncProtocol over HTTP, using gin for the
// mock/proxy server side and net/http for the client side — the same split
// codeready-toolchain-tarsy uses (gin.Default() in cmd/tarsy/main.go,
// net/http.Client built by pkg/mcp/transport.go's buildHTTPClient).
package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meshtest/harness/pkg/harness"
)

// Protocol is harness.SyncProtocol's HTTP implementation.
type Protocol struct {
	Logger *slog.Logger
}

// New returns an HTTP Protocol with the given logger (slog.Default() if nil).
func New(logger *slog.Logger) *Protocol {
	if logger == nil {
		logger = slog.Default()
	}
	return &Protocol{Logger: logger}
}

func (p *Protocol) NewClient() harness.SyncClientAdapter {
	return &client{logger: p.Logger}
}

func (p *Protocol) NewServer(target *harness.Address) harness.SyncServerAdapter {
	return &server{logger: p.Logger, target: target}
}

// client is harness.SyncClientAdapter over net/http. Message.Type is
// "METHOD /path"; Payload is the raw request/response body.
type client struct {
	logger  *slog.Logger
	baseURL string
	http    *http.Client
}

func (c *client) Connect(ctx context.Context, addr harness.Address) error {
	c.baseURL = fmt.Sprintf("http://%s", addr.HostPort())
	transport := http.DefaultTransport
	c.http = &http.Client{Transport: transport, Timeout: 30 * time.Second}
	return nil
}

func (c *client) Close(ctx context.Context) error { return nil }

func (c *client) NativeClient() any { return c.http }

// Request parses msg.Type as "METHOD /path", sends Payload as the body, and
// returns the response with Type set to the status line ("200", "404", ...).
func (c *client) Request(ctx context.Context, msg *harness.Message) (*harness.Message, error) {
	method, path, err := splitMethodPath(msg.Type)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(msg.Payload))
	if err != nil {
		return nil, fmt.Errorf("protocols/http: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if msg.TraceID != "" {
		req.Header.Set("X-Trace-Id", msg.TraceID)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("protocols/http: do request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("protocols/http: read response: %w", err)
	}
	return &harness.Message{Type: fmt.Sprintf("%d", resp.StatusCode), Payload: body, TraceID: msg.TraceID}, nil
}

func splitMethodPath(msgType string) (method, path string, err error) {
	parts := strings.SplitN(msgType, " ", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("protocols/http: message type %q is not \"METHOD /path\"", msgType)
	}
	return strings.ToUpper(parts[0]), parts[1], nil
}

// server is harness.SyncServerAdapter over gin. In proxy mode (target
// non-nil) it also implements harness.Forwarder.
type server struct {
	logger  *slog.Logger
	target  *harness.Address
	handler func(ctx context.Context, msg *harness.Message) (*harness.Message, error)
	srv     *http.Server
	client  *http.Client

	mu      sync.Mutex
	running bool
}

func (s *server) IsProxy() bool { return s.target != nil }

func (s *server) SetHandler(fn func(ctx context.Context, msg *harness.Message) (*harness.Message, error)) {
	s.handler = fn
}

// templateVar matches both "{id}" and ":id" path-template syntax (spec
// §4.5), converting either to a regexp with a single segment wildcard.
var templateVar = regexp.MustCompile(`\{[^/]+\}|:[^/]+`)

func templateToPattern(tpl string) *regexp.Regexp {
	escaped := regexp.QuoteMeta(tpl)
	escaped = templateVar.ReplaceAllStringFunc(escaped, func(string) string { return "[^/]+" })
	return regexp.MustCompile("^" + escaped + "$")
}

// MessageTypeMatcher builds an IsMatch predicate for an onRequest/waitRequest
// step, matching requests whose method equals method and whose path matches
// pathTemplate (spec §4.5's "{id}" and ":id" template syntax).
func MessageTypeMatcher(method, pathTemplate string) func(*harness.Message) bool {
	pattern := templateToPattern(pathTemplate)
	method = strings.ToUpper(method)
	return func(msg *harness.Message) bool {
		gotMethod, gotPath, err := splitMethodPath(msg.Type)
		if err != nil {
			return false
		}
		return gotMethod == method && pattern.MatchString(gotPath)
	}
}

func listenTCP(hostport string) (net.Listener, error) {
	return net.Listen("tcp", hostport)
}

func (s *server) Listen(ctx context.Context, addr harness.Address) error {
	router := gin.New()
	router.Use(gin.Recovery())

	if s.target != nil {
		s.client = &http.Client{Timeout: 30 * time.Second}
	}

	router.NoRoute(func(c *gin.Context) {
		body, _ := io.ReadAll(c.Request.Body)
		msgType := fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
		msg := &harness.Message{Type: msgType, Payload: body, TraceID: c.GetHeader("X-Trace-Id")}

		if s.handler == nil {
			c.Status(http.StatusNotFound)
			return
		}
		resp, err := s.handler(c.Request.Context(), msg)
		if err != nil {
			s.logger.Error("protocols/http: handler error", "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		if resp == nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.Data(http.StatusOK, "application/json", resp.Payload)
	})

	s.srv = &http.Server{Addr: addr.HostPort(), Handler: router}
	ln, err := listenTCP(addr.HostPort())
	if err != nil {
		return fmt.Errorf("protocols/http: listen: %w", err)
	}
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("protocols/http: serve error", "error", err)
		}
	}()
	return nil
}

func (s *server) Close(ctx context.Context) error {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()
	if !running || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Forward implements harness.Forwarder for proxy-mode servers: it replays
// msg against the configured target address unchanged.
func (s *server) Forward(ctx context.Context, msg *harness.Message) (*harness.Message, error) {
	if s.target == nil {
		return nil, harness.ErrProxyMode
	}
	method, path, err := splitMethodPath(msg.Type)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("http://%s%s", s.target.HostPort(), path)
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(msg.Payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &harness.Message{Type: fmt.Sprintf("%d", resp.StatusCode), Payload: body, TraceID: msg.TraceID}, nil
}
