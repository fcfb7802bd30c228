package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"catsync/pkg/metrics"
	"catsync/pkg/rpc"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type mockFrames struct {
	frames []*rpc.PutFrame
	err    error
}

func (m *mockFrames) Recv() (*rpc.PutFrame, error) {
	if len(m.frames) == 0 {
		if m.err != nil {
			return nil, m.err
		}
		return nil, io.EOF
	}
	f := m.frames[0]
	m.frames = m.frames[1:]
	return f, nil
}

func TestStreamReader(t *testing.T) {
	src := &mockFrames{frames: []*rpc.PutFrame{
		{Chunk: []byte("hello ")},
		{},
		{Meta: &rpc.PutMeta{Target: "/ignored"}},
		{Chunk: []byte("world")},
	}}

	data, err := io.ReadAll(newStreamReader(src))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestStreamReader_Error(t *testing.T) {
	boom := errors.New("stream broken")
	r := newStreamReader(&mockFrames{frames: []*rpc.PutFrame{{Chunk: []byte("abc")}}, err: boom})

	var buf bytes.Buffer
	_, err := io.Copy(&buf, r)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "abc", buf.String())

	// 错误是粘滞的
	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, boom)
}

func TestRecoveryInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: rpc.FullMethod(rpc.MethodRegister)}
	_, err := UnaryRecoveryInterceptor(zerolog.Nop())(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))

	sinfo := &grpc.StreamServerInfo{FullMethod: rpc.FullMethod(rpc.MethodPut)}
	err = StreamRecoveryInterceptor(zerolog.Nop())(nil, nil, sinfo, func(any, grpc.ServerStream) error {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestLoggingInterceptor_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	var logs bytes.Buffer
	log := zerolog.New(&logs)

	info := &grpc.UnaryServerInfo{FullMethod: rpc.FullMethod(rpc.MethodReplicas)}
	_, err := UnaryLoggingInterceptor(log, m)(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "missing")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCs.WithLabelValues(rpc.MethodReplicas, "NotFound")))
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), rpc.FullMethod(rpc.MethodReplicas))
}

func TestLogicalPath_Strict(t *testing.T) {
	p, err := logicalPath("/zoneA/home/out.txt")
	require.NoError(t, err)
	assert.Equal(t, "/zoneA/home/out.txt", p.String())

	for _, bad := range []string{"", "zoneA/out.txt", "/zoneA/../etc", "/zoneA/"} {
		_, err := logicalPath(bad)
		assert.Equal(t, codes.InvalidArgument, status.Code(err), bad)
	}
}
