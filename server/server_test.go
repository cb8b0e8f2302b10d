package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/hybrid-chain-logger/logwriter"
	"github.com/bft-labs/hybrid-chain-logger/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// memRecorder has no lock of its own; the server must serialize calls.
type memRecorder struct {
	lines []string
}

func (r *memRecorder) Record(message string, _ time.Time) error {
	r.lines = append(r.lines, message)
	return nil
}

type failingRecorder struct{}

func (failingRecorder) Record(string, time.Time) error {
	return errors.New("disk full")
}

func newTestServer(rec Recorder, groupSize int, opts Options) *Server {
	agg := metrics.NewAggregator(groupSize, epoch, metrics.WithClock(func() time.Time { return epoch }))
	s := New(opts, rec, agg, zap.NewNop())
	var tick time.Duration
	s.now = func() time.Time {
		tick += time.Second
		return epoch.Add(tick)
	}
	return s
}

func (s *Server) recorded() []string {
	var out []string
	s.View(func(*metrics.Aggregator) {
		out = append(out, s.recorder.(*memRecorder).lines...)
	})
	return out
}

// pipeConn starts a handler for the server side of a pipe and returns the
// client side plus a channel closed when the handler exits.
func pipeConn(s *Server) (net.Conn, <-chan struct{}) {
	client, srv := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ServeConn(srv)
	}()
	return client, done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("connection handler did not exit")
	}
}

func TestConcurrentClientsWriteWholeLines(t *testing.T) {
	const (
		clients  = 50
		messages = 100
	)

	w, err := logwriter.OpenPrimary(t.TempDir(), epoch)
	require.NoError(t, err)
	s := New(Options{}, w, metrics.NewAggregator(5, epoch), zap.NewNop())

	var wg sync.WaitGroup
	for c := 0; c < clients; c++ {
		client, done := pipeConn(s)
		wg.Add(1)
		go func(c int) {
			defer wg.Done()
			for m := 0; m < messages; m++ {
				_, err := fmt.Fprintf(client, "node%02d,message %03d", c, m)
				assert.NoError(t, err)
			}
			client.Close()
			<-done
		}(c)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	f, err := os.Open(w.Path())
	require.NoError(t, err)
	defer f.Close()

	line := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{6}: node(\d{2}),message (\d{3})$`)
	next := make(map[int]int)
	total := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m := line.FindStringSubmatch(sc.Text())
		require.NotNil(t, m, "unexpected line %q", sc.Text())
		node, _ := strconv.Atoi(m[1])
		seq, _ := strconv.Atoi(m[2])
		assert.Equal(t, next[node], seq, "node %d out of order", node)
		next[node] = seq + 1
		total++
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, clients*messages, total)

	stats := s.Stats()
	assert.Equal(t, uint64(clients*messages), stats.Messages)
	assert.Zero(t, stats.ActiveConnections)
}

func TestZeroByteConnectionRecordsNothing(t *testing.T) {
	rec := &memRecorder{}
	s := newTestServer(rec, 5, Options{})

	client, done := pipeConn(s)
	require.NoError(t, client.Close())
	waitDone(t, done)

	assert.Empty(t, s.recorded())
	assert.Zero(t, s.Stats().Messages)
}

func TestTrailingNewlineTrimmed(t *testing.T) {
	rec := &memRecorder{}
	s := newTestServer(rec, 5, Options{})

	client, done := pipeConn(s)
	_, err := client.Write([]byte("hello there\r\n"))
	require.NoError(t, err)
	_, err = client.Write([]byte("A,PoW,1\n"))
	require.NoError(t, err)
	client.Close()
	waitDone(t, done)

	assert.Equal(t, []string{"hello there", "A,PoW,1"}, s.recorded())
	assert.Equal(t, uint64(1), s.Stats().StatisticsMessages)
}

func TestStatisticsMessagesTriggerGroup(t *testing.T) {
	rec := &memRecorder{}
	s := newTestServer(rec, 1, Options{})

	client, done := pipeConn(s)
	for _, msg := range []string{"A,PoW,1", "just chatting", "A,PoS,2", "A,PoW,3"} {
		_, err := client.Write([]byte(msg))
		require.NoError(t, err)
	}
	client.Close()
	waitDone(t, done)

	s.View(func(agg *metrics.Aggregator) {
		info := agg.Info()
		assert.Equal(t, 3, info.Observations)
		assert.Equal(t, uint64(3), info.HighestHeight)
		assert.Equal(t, 1, info.GroupsComputed)

		summary, ok := agg.Summary(2)
		require.True(t, ok)
		assert.Equal(t, uint64(1), summary.StartHeight)
		// height 1 at +1s, height 2 at +3s (the chat line took +2s)
		assert.Equal(t, 2*time.Second, summary.PoS.Mining.Max)
		assert.Equal(t, 1, summary.PoW.InvolvedNodes)
	})
	stats := s.Stats()
	assert.Equal(t, uint64(4), stats.Messages)
	assert.Equal(t, uint64(3), stats.StatisticsMessages)
}

func TestMalformedStatisticsRecordedNotAggregated(t *testing.T) {
	rec := &memRecorder{}
	s := newTestServer(rec, 5, Options{})

	client, done := pipeConn(s)
	_, err := client.Write([]byte("A,PoW,abc"))
	require.NoError(t, err)
	_, err = client.Write([]byte(" ,PoW,4"))
	require.NoError(t, err)
	client.Close()
	waitDone(t, done)

	assert.Equal(t, []string{"A,PoW,abc", " ,PoW,4"}, s.recorded())
	assert.Equal(t, uint64(2), s.Stats().MalformedMessages)
	s.View(func(agg *metrics.Aggregator) {
		assert.Zero(t, agg.Info().Observations)
	})
}

func TestIdleTimeoutClosesConnection(t *testing.T) {
	s := newTestServer(&memRecorder{}, 5, Options{ReadTimeout: 50 * time.Millisecond})

	client, done := pipeConn(s)
	defer client.Close()
	waitDone(t, done)

	_, err := client.Write([]byte("too late"))
	assert.Error(t, err)
}

func TestRecordFailureClosesConnection(t *testing.T) {
	s := newTestServer(failingRecorder{}, 5, Options{})

	client, done := pipeConn(s)
	defer client.Close()
	_, err := client.Write([]byte("A,PoW,1"))
	require.NoError(t, err)
	waitDone(t, done)

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.RecordFailures)
	assert.Zero(t, stats.Messages)
}

func TestServeOverTCP(t *testing.T) {
	rec := &memRecorder{}
	s := newTestServer(rec, 5, Options{})

	ln, err := Listen("127.0.0.1", 0, 20)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()

	// A peer that connects and leaves without sending must not disturb
	// the accept loop.
	silent, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, silent.Close())

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	_, err = conn.Write([]byte("node-1,hello"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(s.recorded()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"node-1,hello"}, s.recorded())
	assert.Equal(t, uint64(2), s.Stats().AcceptedConnections)

	// Shutdown closes the still-open connection.
	cancel()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err = conn.Read(make([]byte, 1))
	assert.Error(t, err)
	conn.Close()
	assert.Zero(t, s.Stats().ActiveConnections)
}

func TestListenRebindsImmediately(t *testing.T) {
	ln, err := Listen("127.0.0.1", 0, 20)
	require.NoError(t, err)
	_, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)

	// Leave a connection in TIME_WAIT on the port.
	go func() {
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()
	c, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	c.Close()
	require.NoError(t, ln.Close())

	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	again, err := Listen("127.0.0.1", p, 20)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(again.Addr().String(), ":"+port))
	require.NoError(t, again.Close())
}
