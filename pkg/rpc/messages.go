package rpc

// 所有请求 / 响应消息。字段使用整数 key 以缩短编码
type Empty struct{}

type PathRequest struct {
	Path string `cbor:"1,keyasint"`
}

type ExistsResponse struct {
	Exists bool `cbor:"1,keyasint"`
}

type RegisterRequest struct {
	PhysicalPath string            `cbor:"1,keyasint"`
	Target       string            `cbor:"2,keyasint"`
	Options      map[string]string `cbor:"3,keyasint,omitempty"`
}

// PutFrame 是 Put 流中的一帧: 第一帧只带 Meta，之后每帧只带 Chunk
type PutFrame struct {
	Meta  *PutMeta `cbor:"1,keyasint,omitempty"`
	Chunk []byte   `cbor:"2,keyasint,omitempty"`
}

type PutMeta struct {
	Target  string            `cbor:"1,keyasint"`
	Size    int64             `cbor:"2,keyasint"`
	Options map[string]string `cbor:"3,keyasint,omitempty"`
}

type Replica struct {
	Number       int    `cbor:"1,keyasint"`
	ResourceName string `cbor:"2,keyasint"`
	ResourceHier string `cbor:"3,keyasint,omitempty"`
	PhysicalPath string `cbor:"4,keyasint"`
	Size         int64  `cbor:"5,keyasint"`
	ModifyTime   int64  `cbor:"6,keyasint"`
	Checksum     string `cbor:"7,keyasint,omitempty"`
	Status       string `cbor:"8,keyasint,omitempty"`
	Registered   bool   `cbor:"9,keyasint,omitempty"`
}

type ReplicasResponse struct {
	Replicas []Replica `cbor:"1,keyasint"`
}

type ModifyMetadataRequest struct {
	Path         string            `cbor:"1,keyasint"`
	ResourceName string            `cbor:"2,keyasint,omitempty"`
	ResourceHier string            `cbor:"3,keyasint,omitempty"`
	Size         *int64            `cbor:"4,keyasint,omitempty"`
	ModifyTime   *int64            `cbor:"5,keyasint,omitempty"`
	Options      map[string]string `cbor:"6,keyasint,omitempty"`
	PhysicalPath string            `cbor:"7,keyasint,omitempty"`
}
