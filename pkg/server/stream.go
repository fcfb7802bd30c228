package server

import (
	"catsync/pkg/rpc"
)

// frameReceiver 是 Put 流所需的最小接口，方便测试 Mock
type frameReceiver interface {
	Recv() (*rpc.PutFrame, error)
}

// streamReader 将 gRPC Put 流包装为 io.Reader
type streamReader struct {
	stream frameReceiver
	buf    []byte // 从 Recv 拿到、还没被 Read 读走的数据
	err    error  // 流的终止状态 (如 io.EOF)
}

func newStreamReader(stream frameReceiver) *streamReader {
	return &streamReader{stream: stream}
}

func (r *streamReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		frame, err := r.stream.Recv()
		if err != nil {
			r.err = err
			return 0, err
		}
		// 中途出现的 Meta 帧没有意义，跳过
		r.buf = frame.Chunk
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
