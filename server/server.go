// Package server serves the command protocol and the HTTP API on one port.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/notifylist/keyspace"
	"github.com/maxpert/notifylist/notifylist"
	"github.com/maxpert/notifylist/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/soheilhy/cmux"
)

// Config holds listener settings
type Config struct {
	Address        string
	MaxConnections int           // 0 = unlimited
	IdleTimeout    time.Duration // 0 = never time out idle clients
}

// Server multiplexes RESP clients and HTTP requests on one listener
type Server struct {
	config Config
	module *notifylist.Module
	store  keyspace.Store

	api     http.Handler
	metrics http.Handler

	listener   net.Listener
	mux        cmux.CMux
	httpServer *http.Server

	quit      chan struct{}
	wg        sync.WaitGroup
	connIDGen atomic.Uint64
	connCount atomic.Int64

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// New creates a server. api is mounted at /api and metrics at /metrics; either may be nil.
func New(config Config, module *notifylist.Module, store keyspace.Store, api, metrics http.Handler) *Server {
	return &Server{
		config:  config,
		module:  module,
		store:   store,
		api:     api,
		metrics: metrics,
		quit:    make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start listens on the configured address and serves until Stop
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.listener = listener
	s.mux = cmux.New(listener)

	// HTTP1 parses the whole request line; HTTP1Fast would also claim inline GET commands
	httpListener := s.mux.Match(cmux.HTTP1())
	respListener := s.mux.Match(cmux.Any())

	s.httpServer = &http.Server{
		Handler:           s.httpHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(httpListener); err != nil && !isClosedErr(err) {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	s.wg.Add(1)
	go s.acceptLoop(respListener)

	go func() {
		if err := s.mux.Serve(); err != nil && !isClosedErr(err) {
			log.Error().Err(err).Msg("cmux failed")
		}
	}()

	log.Info().Str("address", listener.Addr().String()).Msg("Server started")
	return nil
}

// Addr returns the bound address, useful when listening on port 0
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for handlers to return
func (s *Server) Stop() {
	select {
	case <-s.quit:
		return
	default:
	}
	close(s.quit)

	log.Info().Msg("Stopping server")

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown failed")
		}
		cancel()
	}
	if s.mux != nil {
		s.mux.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
}

func (s *Server) httpHandler() http.Handler {
	r := chi.NewRouter()

	if s.api != nil {
		r.Mount("/api", s.api)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.HandleFunc("/debug/pprof/*", pprof.Index)
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return r
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, cmux.ErrListenerClosed) ||
		errors.Is(err, cmux.ErrServerClosed)
}

func (s *Server) acceptLoop(l net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			if isClosedErr(err) {
				return
			}
			log.Error().Err(err).Msg("Accept error")
			continue
		}

		if max := s.config.MaxConnections; max > 0 && s.connCount.Load() >= int64(max) {
			w := NewWriter(conn)
			w.WriteError("ERR max number of clients reached")
			w.Flush()
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn, add bool) {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		s.connCount.Add(1)
		telemetry.CommandConnections.Inc()
	} else {
		delete(s.conns, conn)
		s.connCount.Add(-1)
		telemetry.CommandConnections.Dec()
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	s.track(conn, true)
	defer s.track(conn, false)

	connID := s.connIDGen.Add(1)
	log.Debug().Uint64("conn_id", connID).Str("remote", conn.RemoteAddr().String()).Msg("New connection")

	reader := NewReader(conn)
	writer := NewWriter(conn)

	for {
		if s.config.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.config.IdleTimeout))
		}

		args, err := reader.ReadCommand()
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				writer.WriteError("ERR " + perr.Error())
				writer.Flush()
			} else if !errors.Is(err, io.EOF) && !isClosedErr(err) {
				log.Debug().Err(err).Uint64("conn_id", connID).Msg("Connection read failed")
			}
			return
		}
		if len(args) == 0 {
			continue
		}

		quit := s.execute(writer, args)
		if err := writer.Flush(); err != nil {
			log.Debug().Err(err).Uint64("conn_id", connID).Msg("Connection write failed")
			return
		}
		if quit {
			return
		}
	}
}

// execute runs one command and writes its reply. It reports whether the client asked to quit.
func (s *Server) execute(w *Writer, args []string) bool {
	cmd, ok := lookupCommand(args[0])
	if !ok {
		telemetry.CommandsTotal.With("unknown", "error").Inc()
		w.WriteError(unknownCommandError(args))
		return false
	}
	if !cmd.checkArity(len(args)) {
		telemetry.CommandsTotal.With(cmd.name, "error").Inc()
		w.WriteError(arityError(args[0]))
		return false
	}

	start := time.Now()
	err := cmd.fn(context.Background(), s, w, args)
	telemetry.CommandDurationSeconds.With(cmd.name).Observe(time.Since(start).Seconds())

	if errors.Is(err, errQuit) {
		telemetry.CommandsTotal.With(cmd.name, "ok").Inc()
		return true
	}
	if err != nil {
		telemetry.CommandsTotal.With(cmd.name, "error").Inc()
		log.Debug().Err(err).Str("command", strings.ToLower(args[0])).Msg("Command failed")
		w.WriteError(replyError(err))
		return false
	}

	telemetry.CommandsTotal.With(cmd.name, "ok").Inc()
	return false
}
