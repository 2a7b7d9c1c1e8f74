package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kingrea/editorbridge/internal/collect"
	"github.com/kingrea/editorbridge/internal/command"
)

// ServerStatus reports runtime lifecycle states for the HTTP server.
type ServerStatus string

const (
	StatusStarting ServerStatus = "starting"
	StatusReady    ServerStatus = "ready"
	StatusDraining ServerStatus = "draining"
)

// ErrDisabled is returned by Start when the bridge is switched off.
var ErrDisabled = errors.New("bridge: server disabled")

// Server accepts commands over HTTP. Every request runs on its own goroutine,
// so an orchestrated command parked on its run never stalls the listeners.
type Server struct {
	settings Settings
	registry *command.Registry
	runs     RunLister
	logger   Logger
	clock    func() time.Time

	inFlight atomic.Int64

	mu        sync.RWMutex
	server    *http.Server
	listeners []net.Listener
	status    ServerStatus
	startTime time.Time
	serving   sync.WaitGroup
}

// Option customizes server construction.
type Option func(*Server)

// WithRegistry sets the commands the server routes to.
func WithRegistry(r *command.Registry) Option {
	return func(s *Server) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithRuns exposes orchestrated runs on /runs.
func WithRuns(r RunLister) Option {
	return func(s *Server) {
		s.runs = r
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(l Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock allows tests to control timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewServer prepares a bridge server using the provided settings.
func NewServer(settings Settings, opts ...Option) *Server {
	settings.normalize()
	s := &Server{
		settings: settings,
		registry: command.NewRegistry(),
		logger:   nopLogger{},
		clock:    func() time.Time { return time.Now().UTC() },
		status:   StatusStarting,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start binds one listener per configured address and begins serving. If any
// address fails to bind, the ones already bound are released.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("bridge: server is nil")
	}
	if !s.settings.Enabled {
		return ErrDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("bridge: server already started")
	}
	listeners := make([]net.Listener, 0, len(s.settings.Addresses))
	for _, addr := range s.settings.Addresses {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return fmt.Errorf("bridge: listen %s: %w", addr, err)
		}
		listeners = append(listeners, listener)
	}
	s.listeners = listeners
	s.startTime = s.clock()
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.server = server
	s.status = StatusReady
	for _, listener := range listeners {
		s.serving.Add(1)
		go func(l net.Listener) {
			defer s.serving.Done()
			if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Printf("bridge: serve %s: %v", l.Addr(), err)
			}
		}(listener)
		s.logger.Printf("bridge: listening on %s", listener.Addr().String())
	}
	return nil
}

// Shutdown stops accepting connections on every listener and waits for
// in-flight requests, including parked orchestrated ones, until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	server := s.server
	if server == nil {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusDraining
	s.mu.Unlock()

	deadline := ctx
	if deadline == nil {
		var cancel context.CancelFunc
		deadline, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	err := server.Shutdown(deadline)
	s.serving.Wait()

	s.mu.Lock()
	s.listeners = nil
	s.server = nil
	s.mu.Unlock()
	return err
}

// Addrs returns every bound address once the server has started.
func (s *Server) Addrs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addrs := make([]string, 0, len(s.listeners))
	for _, l := range s.listeners {
		addrs = append(addrs, l.Addr().String())
	}
	return addrs
}

// Addr returns the first bound address.
func (s *Server) Addr() string {
	addrs := s.Addrs()
	if len(addrs) == 0 {
		return ""
	}
	return addrs[0]
}

// BaseURL returns the HTTP base URL (scheme + host:port) of the first listener.
func (s *Server) BaseURL() string {
	addr := s.Addr()
	if addr == "" {
		return s.settings.URL()
	}
	return "http://" + addr
}

// Status reports the server's lifecycle state.
func (s *Server) Status() ServerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Handler returns the routing handler with panic recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/runs", s.handleRuns)
	mux.HandleFunc("/", s.handleCommand)
	return s.recoverPanics(mux)
}

func (s *Server) uptimeSeconds() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int64(s.clock().Sub(s.startTime).Seconds())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.methodNotAllowed(w, r, http.MethodGet, http.MethodHead)
		return
	}
	writePayload(w, r, http.StatusOK, Health{
		Status:        string(s.Status()),
		Version:       ProtocolVersion,
		Addresses:     s.Addrs(),
		Commands:      s.registry.Names(),
		InFlight:      s.inFlight.Load(),
		UptimeSeconds: s.uptimeSeconds(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.methodNotAllowed(w, r, http.MethodGet)
		return
	}
	resp := RunsResponse{Runs: []collect.Snapshot{}}
	if s.runs != nil {
		resp.Runs = s.runs.Runs()
	}
	writePayload(w, r, http.StatusOK, resp)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(r.URL.Path, "/")
	cmd, ok := s.registry.Resolve(name)
	if !ok || name == "" {
		writePayload(w, r, http.StatusNotFound, command.Failure(command.UnknownCommand))
		return
	}
	if r.Method != http.MethodPost {
		s.methodNotAllowed(w, r, http.MethodPost)
		return
	}
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)

	body, err := s.readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	req, err := command.Decode(cmd.Kind, r.Header.Get("Content-Type"), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !cmd.Orchestrated() {
		resp, err := cmd.Sync(r.Context(), req)
		if err != nil {
			s.logger.Printf("bridge: %s failed: %v", name, err)
			s.writeError(w, r, err)
			return
		}
		writePayload(w, r, http.StatusOK, resp)
		return
	}
	s.awaitPending(w, r, name, cmd, req)
}

// awaitPending starts an orchestrated command and parks the request goroutine
// until it resolves. The connection's deadlines are lifted first since a run
// has no timeout; an expired read deadline would otherwise cancel the request
// context through the server's background read.
func (s *Server) awaitPending(w http.ResponseWriter, r *http.Request, name string, cmd command.Command, req command.Request) {
	pending, err := cmd.Start(req)
	if err != nil {
		s.logger.Printf("bridge: %s rejected: %v", name, err)
		s.writeError(w, r, err)
		return
	}
	rc := http.NewResponseController(w)
	if err := rc.SetReadDeadline(time.Time{}); err != nil {
		s.logger.Printf("bridge: %s: clear read deadline: %v", name, err)
	}
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Printf("bridge: %s: clear write deadline: %v", name, err)
	}
	select {
	case <-pending.Done():
	case <-r.Context().Done():
		// Nobody is left to read a response, so none is written. The run still
		// completes and persists; its outcome goes to the log instead.
		s.logger.Printf("bridge: %s: client went away, run continues", name)
		go func() {
			<-pending.Done()
			resp, err := pending.Result()
			if err != nil {
				s.logger.Printf("bridge: %s finished without a client: %v", name, err)
				return
			}
			s.logger.Printf("bridge: %s finished without a client: %s", name, resp.Message)
		}()
		return
	}
	resp, err := pending.Result()
	if err != nil {
		s.logger.Printf("bridge: %s failed: %v", name, err)
		if resp.Message == "" {
			resp = command.Failure(err.Error())
		}
		resp.Success = false
		writePayload(w, r, http.StatusInternalServerError, resp)
		return
	}
	writePayload(w, r, http.StatusOK, resp)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, command.BadRequest("empty body")
	}
	reader := http.MaxBytesReader(w, r.Body, s.settings.MaxBodyBytes)
	defer reader.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &command.DecodeError{Status: http.StatusRequestEntityTooLarge, Message: "payload exceeds limit"}
		}
		return nil, command.BadRequest("unable to read body")
	}
	return body, nil
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writePayload(w, r, http.StatusMethodNotAllowed, command.Failure("method not allowed"))
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if decodeErr, ok := command.AsDecodeError(err); ok {
		writePayload(w, r, decodeErr.Status, command.Failure(decodeErr.Message))
		return
	}
	writePayload(w, r, http.StatusInternalServerError, command.Failure(err.Error()))
}

// recoverPanics answers a panicking handler with a 500 envelope.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.logger.Printf("bridge: panic serving %s %s: %v", r.Method, r.URL.Path, rec)
			writePayload(w, r, http.StatusInternalServerError, command.Failure("internal error"))
		}()
		next.ServeHTTP(w, r)
	})
}

func writePayload(w http.ResponseWriter, r *http.Request, status int, payload any) {
	data, contentType, err := command.Encode(r.Header.Get("Accept"), payload)
	if err != nil {
		data, contentType, _ = command.Encode("", command.Failure("unable to encode response"))
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
