package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/engine/pg"
	"github.com/gclaussn/go-extask/http/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func New(e engine.Engine, customizers ...func(*Options)) (*Server, error) {
	options := NewOptions()
	for _, customizer := range customizers {
		customizer(&options)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	var handler http.Handler = &metricsHandler{handler: mux}
	if options.ApiKeyManager != nil {
		handler = &authHandler{
			apiKeyManager: options.ApiKeyManager,
			handler:       handler,
		}
	} else {
		handler = &tokenAuthHandler{
			tokens:  options.Tokens,
			handler: handler,
		}
	}

	handler = http.TimeoutHandler(handler, options.HandlerTimeout, "handler timed out")
	handler = otelhttp.NewHandler(handler, "go-extask")

	// server-wide context for incoming requests
	httpServerCtx, httpServerCanel := context.WithCancel(context.Background())

	httpServer := http.Server{
		Addr: options.BindAddress,
		BaseContext: func(_ net.Listener) context.Context {
			return httpServerCtx
		},
		Handler:      handler,
		IdleTimeout:  options.IdleTimeout,
		ReadTimeout:  options.ReadTimeout,
		WriteTimeout: options.WriteTimeout,
	}

	if options.Configure != nil {
		options.Configure(&httpServer)
	}

	server := Server{
		engine:           e,
		httpServer:       &httpServer,
		httpServerCtx:    httpServerCtx,
		httpServerCancel: httpServerCanel,
		options:          options,
	}

	// operations:start
	mux.HandleFunc("POST "+common.PathFetchAndLock, server.fetchAndLock)

	mux.HandleFunc("POST "+common.PathTaskExtendLock, server.extendLock)
	mux.HandleFunc("POST "+common.PathTaskFinish, server.finishExternalTask)
	mux.HandleFunc("POST "+common.PathTaskHandleBpmnError, server.handleBpmnError)
	mux.HandleFunc("POST "+common.PathTaskHandleServiceError, server.handleServiceError)

	mux.HandleFunc("POST "+common.PathTasks, server.createExternalTask)
	mux.HandleFunc("POST "+common.PathTasksQuery, server.queryExternalTasks)
	mux.HandleFunc("POST "+common.PathTasksUnlock, server.unlockExternalTasks)

	mux.Handle("GET "+common.PathMetrics, promhttp.Handler())
	mux.HandleFunc("GET "+common.PathReadiness, server.checkReadiness)
	mux.HandleFunc("PATCH "+common.PathTime, server.setTime)
	// operations:end

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	return &server, nil
}

func NewOptions() Options {
	return Options{
		BindAddress: "127.0.0.1:8080",

		HandlerTimeout: 90 * time.Second,
		IdleTimeout:    120 * time.Second,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   95 * time.Second,

		ShutdownDelay:       5 * time.Second,
		ShutdownPeriod:      30 * time.Second,
		ShutdownForcePeriod: 5 * time.Second,
	}
}

type Options struct {
	BindAddress string // TCP address for the server to listen on.

	HandlerTimeout time.Duration // Time limit for HTTP handler - when reached, the handler responds with HTTP 503. Must exceed the maximum long polling timeout.
	IdleTimeout    time.Duration // Maximum amount of time to wait for the next request, when keep-alives are enabled - see http.Server#IdleTimeout
	ReadTimeout    time.Duration // Maximum duration for reading the entire request - see http.Server#ReadTimeout
	WriteTimeout   time.Duration // Maximum duration before timing out writing the response - see http.Server#WriteTimeout

	ShutdownDelay       time.Duration // Delay between the shutdown signal and the actual shutdown, used to propagate readiness.
	ShutdownPeriod      time.Duration // Period for a graceful shutdown without interrupting ongoing requests.
	ShutdownForcePeriod time.Duration // Period for a forced shutdown, where ongoing requests are canceled.

	ApiKeyManager pg.ApiKeyManager // Used for API key based authentication.
	Tokens        []string         // Accepted plain bearer tokens - only required if ApiKeyManager is not configured.

	SetTimeEnabled bool // Determines if the set time operation is permitted.

	Configure func(*http.Server) // Optional function, used to configure the underlying HTTP server if needed.
}

func (o Options) Validate() error {
	if o.ApiKeyManager == nil {
		return validateTokens(o.Tokens)
	}
	return nil
}

type Server struct {
	engine           engine.Engine
	httpServer       *http.Server
	httpServerCtx    context.Context    // server-wide base context for incoming requests
	httpServerCancel context.CancelFunc // invoked after server shutdown to cancel to ongoing requests
	isShuttingDown   atomic.Bool
	options          Options
}

func (s *Server) ListenAndServe() {
	go func() {
		log.Printf("server listening on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("failed to listen and serve HTTP: %v", err)
		}
	}()
}

func (s *Server) Shutdown() {
	s.isShuttingDown.Store(true)
	log.Println("server is shutting down")

	time.Sleep(s.options.ShutdownDelay)
	log.Println("server is shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.options.ShutdownPeriod)
	defer shutdownCancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.httpServerCancel()
	if err != nil {
		log.Printf("failed to shutdown HTTP server: %v", err)
		time.Sleep(s.options.ShutdownForcePeriod)
	}

	s.engine.Shutdown()
	log.Println("server shut down")
}

// external task handler

func (s *Server) extendLock(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.ExtendLockCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.TaskId = id

	if err := s.engine.ExtendLock(r.Context(), identityFromContext(r.Context()), cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fetchAndLock(w http.ResponseWriter, r *http.Request) {
	var cmd engine.FetchAndLockCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	tasks, err := s.engine.FetchAndLockExternalTasks(r.Context(), identityFromContext(r.Context()), cmd)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	encodeJSONResponseBody(w, r, tasks, http.StatusOK)
}

func (s *Server) finishExternalTask(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.FinishExternalTaskCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.TaskId = id

	if err := s.engine.FinishExternalTask(r.Context(), identityFromContext(r.Context()), cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBpmnError(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.HandleBpmnErrorCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.TaskId = id

	if err := s.engine.HandleBpmnError(r.Context(), identityFromContext(r.Context()), cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleServiceError(w http.ResponseWriter, r *http.Request) {
	id, err := parseId(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var cmd engine.HandleServiceErrorCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	cmd.TaskId = id

	if err := s.engine.HandleServiceError(r.Context(), identityFromContext(r.Context()), cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// command handler

func (s *Server) createExternalTask(w http.ResponseWriter, r *http.Request) {
	var cmd engine.CreateExternalTaskCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	task, err := s.engine.CreateExternalTask(r.Context(), cmd)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	encodeJSONResponseBody(w, r, task, http.StatusCreated)
}

func (s *Server) setTime(w http.ResponseWriter, r *http.Request) {
	if !s.options.SetTimeEnabled {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	var cmd engine.SetTimeCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	if err := s.engine.SetTime(r.Context(), cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unlockExternalTasks(w http.ResponseWriter, r *http.Request) {
	var cmd engine.UnlockExternalTasksCmd
	if err := decodeJSONRequestBody(w, r, &cmd); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	count, err := s.engine.UnlockExternalTasks(r.Context(), cmd)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	encodeJSONResponseBody(w, r, common.CountRes{Count: count}, http.StatusOK)
}

// query handler

func (s *Server) queryExternalTasks(w http.ResponseWriter, r *http.Request) {
	options, err := parseQueryOptions(r)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	var criteria engine.ExternalTaskCriteria
	if err := decodeJSONRequestBody(w, r, &criteria); err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	q := s.engine.CreateQuery()
	q.SetOptions(options)

	results, err := q.QueryExternalTasks(r.Context(), criteria)
	if err != nil {
		encodeJSONProblemResponseBody(w, r, err)
		return
	}

	resBody := common.ExternalTaskRes{
		Count:   len(results),
		Results: results,
	}

	encodeJSONResponseBody(w, r, resBody, http.StatusOK)
}

// management

func (s *Server) checkReadiness(w http.ResponseWriter, r *http.Request) {
	if s.isShuttingDown.Load() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ready"))
}
