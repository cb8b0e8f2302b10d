package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/hybrid-chain-logger/metrics"
	"github.com/bft-labs/hybrid-chain-logger/types"
	"go.uber.org/zap"
)

const (
	DefaultReadTimeout = time.Minute
	DefaultBufferSize  = 1024
)

// Recorder is the durable sink every received message is appended to.
type Recorder interface {
	Record(message string, at time.Time) error
}

// Options tunes per-connection behavior.
type Options struct {
	// ReadTimeout closes a connection that sends nothing for this long.
	ReadTimeout time.Duration
	// BufferSize bounds one read; each read is handled as one message.
	BufferSize int
}

// Server accepts node connections and feeds what they send into the
// primary log and the aggregator. All message processing, including any
// triggered group computation, runs under one lock.
type Server struct {
	opts   Options
	logger *zap.Logger
	now    func() time.Time

	mu         sync.Mutex
	recorder   Recorder
	aggregator *metrics.Aggregator

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	closing bool
	wg      sync.WaitGroup

	accepted       atomic.Uint64
	active         atomic.Int64
	messages       atomic.Uint64
	statistics     atomic.Uint64
	malformed      atomic.Uint64
	recordFailures atomic.Uint64
}

// New creates a Server. Zero options fall back to the defaults.
func New(opts Options, recorder Recorder, aggregator *metrics.Aggregator, logger *zap.Logger) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		opts:       opts,
		logger:     logger,
		now:        time.Now,
		recorder:   recorder,
		aggregator: aggregator,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections on ln and handles each on its own goroutine.
// It returns nil once ctx is cancelled, after the listener and every live
// connection are closed and their handlers have exited.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info("start listening for connections", zap.String("addr", ln.Addr().String()))

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.shutdown()
				return nil
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Error("accept failed", zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.accepted.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(conn)
		}()
	}
}

func (s *Server) shutdown() {
	s.connsMu.Lock()
	s.closing = true
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	s.wg.Wait()
	s.logger.Info("stopped listening for connections")
}

func (s *Server) register(conn net.Conn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) unregister(conn net.Conn) {
	s.connsMu.Lock()
	delete(s.conns, conn)
	s.connsMu.Unlock()
}

// ServeConn reads from conn until the peer disconnects, the idle timeout
// expires, or a message cannot be processed, then closes conn.
func (s *Server) ServeConn(conn net.Conn) {
	logger := s.logger.With(zap.String("peer", conn.RemoteAddr().String()))
	if !s.register(conn) {
		conn.Close()
		return
	}
	s.active.Add(1)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while handling client", zap.Any("panic", r))
		}
		s.unregister(conn)
		s.active.Add(-1)
		conn.Close()
		logger.Info("close client connection")
	}()

	logger.Info("client connected")

	buf := make([]byte, s.opts.BufferSize)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
			logger.Warn("failed to set read deadline", zap.Error(err))
			return
		}

		n, err := conn.Read(buf)
		if n > 0 {
			if perr := s.process(buf[:n]); perr != nil {
				logger.Error("failed to process message", zap.Error(perr))
				return
			}
		}

		switch {
		case err == nil && n > 0:
			continue
		case err == nil, errors.Is(err, io.EOF):
			logger.Info("client disconnected")
		case errors.Is(err, os.ErrDeadlineExceeded):
			logger.Info("client idle timeout", zap.Duration("timeout", s.opts.ReadTimeout))
		default:
			logger.Info("client read failed", zap.Error(err))
		}
		return
	}
}

// process records one payload and, for block reports, feeds the aggregator.
func (s *Server) process(data []byte) error {
	msg := types.ParseMessage(strings.TrimRight(string(data), "\r\n"))

	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.now()
	if err := s.recorder.Record(msg.Text, at); err != nil {
		s.recordFailures.Add(1)
		return fmt.Errorf("record message: %w", err)
	}
	s.messages.Add(1)
	s.logger.Debug("message received", zap.String("message", msg.Text), zap.Stringer("kind", msg.Kind))

	switch msg.Kind {
	case types.MessageStatistics:
		s.statistics.Add(1)
		s.aggregator.Append(types.NewObservation(msg.Reporter, msg.Tag, msg.Height, at))
	case types.MessageMalformed:
		s.malformed.Add(1)
		s.logger.Warn("dropping malformed statistics message",
			zap.String("message", msg.Text),
			zap.Error(msg.Err),
		)
	}
	return nil
}

// View runs fn with the aggregator while holding the processing lock.
func (s *Server) View(fn func(agg *metrics.Aggregator)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.aggregator)
}

// Stats returns connection and message counters.
func (s *Server) Stats() types.ServerStats {
	return types.ServerStats{
		AcceptedConnections: s.accepted.Load(),
		ActiveConnections:   s.active.Load(),
		Messages:            s.messages.Load(),
		StatisticsMessages:  s.statistics.Load(),
		MalformedMessages:   s.malformed.Load(),
		RecordFailures:      s.recordFailures.Load(),
	}
}
