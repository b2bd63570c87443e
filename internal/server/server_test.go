package server

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/skshohagmiah/sockit/internal/kv"
	"github.com/skshohagmiah/sockit/pkg/protocol"
)

func newService(t *testing.T, mutate func(*Config)) *Service {
	t.Helper()
	store, err := kv.NewMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := DefaultConfig()
	cfg.TCP.Address = "127.0.0.1"
	cfg.TCP.ClientTimeout = 0
	cfg.UDP.BindAddr = "127.0.0.1"
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := New(store, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	t.Cleanup(func() { _ = svc.Stop() })
	return svc
}

func dialService(t *testing.T, svc *Service) net.Conn {
	t.Helper()
	nc, err := net.DialTimeout("tcp", svc.TCPAddr().String(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nc.Close() })
	require.NoError(t, nc.SetDeadline(time.Now().Add(3*time.Second)))
	return nc
}

// readResponse reads exactly one frame off nc.
func readResponse(t *testing.T, nc net.Conn) *protocol.Response {
	t.Helper()
	hdr := make([]byte, protocol.HeaderSize)
	_, err := io.ReadFull(nc, hdr)
	require.NoError(t, err)
	size, err := protocol.FrameSize(hdr)
	require.NoError(t, err)

	frame := make([]byte, size)
	copy(frame, hdr)
	_, err = io.ReadFull(nc, frame[protocol.HeaderSize:])
	require.NoError(t, err)

	resp, err := protocol.DecodeResponse(frame)
	require.NoError(t, err)
	return resp
}

func TestServicePipelinedRequests(t *testing.T) {
	svc := newService(t, nil)
	nc := dialService(t, svc)

	set, err := protocol.EncodeSetRequest("k", []byte("v"), 0)
	require.NoError(t, err)
	get, err := protocol.EncodeGetRequest("k")
	require.NoError(t, err)
	incr, err := protocol.EncodeIncrRequest("n")
	require.NoError(t, err)

	// three frames in one write, answered in order
	var stream []byte
	stream = append(stream, set.Bytes()...)
	stream = append(stream, get.Bytes()...)
	stream = append(stream, incr.Bytes()...)
	_, err = nc.Write(stream)
	require.NoError(t, err)

	assert.Equal(t, protocol.StatusOK, readResponse(t, nc).Status)
	got := readResponse(t, nc)
	assert.Equal(t, protocol.StatusValue, got.Status)
	assert.Equal(t, []byte("v"), got.Value)
	n := readResponse(t, nc)
	assert.Equal(t, protocol.StatusInt, n.Status)
	assert.Equal(t, int64(1), n.Int)

	assert.Equal(t, uint64(3), svc.Stats().OpsProcessed)
}

func TestServiceSplitRequest(t *testing.T) {
	svc := newService(t, nil)
	nc := dialService(t, svc)

	req, err := protocol.EncodeExistsRequest("missing")
	require.NoError(t, err)
	data := req.Bytes()

	_, err = nc.Write(data[:5])
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = nc.Write(data[5:])
	require.NoError(t, err)

	resp := readResponse(t, nc)
	assert.Equal(t, protocol.StatusInt, resp.Status)
	assert.Zero(t, resp.Int)
}

func TestServiceUnknownOpKeepsConnection(t *testing.T) {
	svc := newService(t, nil)
	nc := dialService(t, svc)

	_, err := nc.Write([]byte{0x7F, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	resp := readResponse(t, nc)
	assert.Equal(t, protocol.StatusError, resp.Status)
	assert.Contains(t, resp.Error, "unknown op")

	get, err := protocol.EncodeGetRequest("nope")
	require.NoError(t, err)
	_, err = nc.Write(get.Bytes())
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusNotFound, readResponse(t, nc).Status)
	assert.Equal(t, uint64(1), svc.Stats().OpsErrors)
}

func TestServiceMalformedHeaderDropsClient(t *testing.T) {
	svc := newService(t, nil)
	nc := dialService(t, svc)

	_, err := nc.Write([]byte{0x02, 0, 0, 0, 3, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusError, readResponse(t, nc).Status)

	_, err = nc.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Eventually(t, func() bool {
		return svc.Stats().ActiveConnections == 0 && svc.Stats().RegisteredClients == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestServiceRejectsOverLimit(t *testing.T) {
	svc := newService(t, func(cfg *Config) { cfg.TCP.MaxConnections = 1 })

	first := dialService(t, svc)
	get, err := protocol.EncodeGetRequest("k")
	require.NoError(t, err)
	_, err = first.Write(get.Bytes())
	require.NoError(t, err)
	readResponse(t, first)

	second := dialService(t, svc)
	_, err = second.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
	assert.Eventually(t, func() bool {
		return svc.Stats().RejectedConnections == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(1), svc.Stats().ActiveConnections)
}

func TestServiceUDPEcho(t *testing.T) {
	svc := newService(t, func(cfg *Config) {
		cfg.EnableUDP = true
		cfg.UDP.Alignment = 8
	})
	require.NotNil(t, svc.UDPAddr())

	pc, err := net.DialUDP("udp", nil, svc.UDPAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer pc.Close()
	require.NoError(t, pc.SetDeadline(time.Now().Add(3*time.Second)))

	_, err = pc.Write([]byte("probe-123"))
	require.NoError(t, err)
	reply := make([]byte, 64)
	n, err := pc.Read(reply)
	require.NoError(t, err)
	assert.Equal(t, "probe-123", string(reply[:n]), "no alignment padding in the echo")

	assert.Eventually(t, func() bool {
		return svc.Stats().DatagramsEchoed == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestServiceUDPEchoRateLimited(t *testing.T) {
	svc := newService(t, func(cfg *Config) {
		cfg.EnableUDP = true
		cfg.EchoRate = 0.001
		cfg.EchoBurst = 1
	})

	pc, err := net.DialUDP("udp", nil, svc.UDPAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer pc.Close()
	require.NoError(t, pc.SetDeadline(time.Now().Add(3*time.Second)))

	for i := 0; i < 3; i++ {
		_, err = pc.Write([]byte("probe"))
		require.NoError(t, err)
	}
	_, err = pc.Read(make([]byte, 64))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		st := svc.Stats()
		return st.DatagramsEchoed == 1 && st.EchoDropped == 2
	}, 3*time.Second, 10*time.Millisecond)
}

func TestServiceStop(t *testing.T) {
	svc := newService(t, nil)
	nc := dialService(t, svc)
	assert.Nil(t, svc.UDPAddr())

	require.NoError(t, svc.Stop())
	assert.Nil(t, svc.TCPAddr())

	_, err := nc.Read(make([]byte, 1))
	assert.Error(t, err)
}
