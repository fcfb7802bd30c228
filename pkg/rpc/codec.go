// Package rpc 定义 catalog 服务的 gRPC 契约：CBOR codec、消息与服务描述。
// 消息是普通的 Go struct，由 CBOR 编码，不依赖 protobuf 代码生成。
package rpc

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"google.golang.org/grpc/encoding"
)

// CodecName 作为 gRPC content-subtype: application/grpc+cbor
const CodecName = "cbor"

// 编码选项: 确定性输出，禁止不定长编码
var encOptions = cbor.EncOptions{
	Sort:          cbor.SortCanonical,
	ShortestFloat: cbor.ShortestFloatNone,
	Time:          cbor.TimeUnix,
	TimeTag:       cbor.EncTagNone,
	IndefLength:   cbor.IndefLengthForbidden,
	BigIntConvert: cbor.BigIntConvertShortest,
}

// 解码选项: 限制容器大小与嵌套深度，防止恶意请求耗尽内存
var decOptions = cbor.DecOptions{
	MaxArrayElements: 100000,
	MaxMapPairs:      10000,
	MaxNestedLevels:  32,
	IndefLength:      cbor.IndefLengthForbidden,
	DupMapKey:        cbor.DupMapKeyEnforcedAPF,
	BignumTag:        cbor.BignumTagForbidden,
	TimeTag:          cbor.DecTagIgnored,
}

var (
	em cbor.EncMode
	dm cbor.DecMode
)

func init() {
	var err error
	if em, err = encOptions.EncMode(); err != nil {
		panic(fmt.Sprintf("invalid cbor encode options: %v", err))
	}
	if dm, err = decOptions.DecMode(); err != nil {
		panic(fmt.Sprintf("invalid cbor decode options: %v", err))
	}
	encoding.RegisterCodec(Codec{})
}

// Codec 实现 grpc encoding.Codec
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	return em.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}

func (Codec) Name() string { return CodecName }
