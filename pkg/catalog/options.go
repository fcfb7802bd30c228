package catalog

import (
	"maps"
	"slices"
	"strings"
)

// 常用的 option key，沿用 catalog 协议中的名字
const (
	OptDestResource    = "destRescName"
	OptRegisterReplica = "regRepl"
	OptForce           = "forceFlag" // Register: 覆盖同一 resource 上已登记的 replica
)

// Options 是贯穿每个操作的开放选项包 (SyncOptions)
// 引擎只会往里面添加字段；每个 writer 拿到的都是一份拷贝。
type Options map[string]string

func (o Options) Clone() Options {
	out := make(Options, len(o))
	maps.Copy(out, o)
	return out
}

func (o Options) Get(key string) (string, bool) {
	v, ok := o[key]
	return v, ok
}

// Has 用于 "presence flag" 类型的选项，例如 regRepl
func (o Options) Has(key string) bool {
	_, ok := o[key]
	return ok
}

func (o Options) DestResource() string { return o[OptDestResource] }

// String 按 key 排序输出，保证日志稳定
func (o Options) String() string {
	keys := slices.Sorted(maps.Keys(o))
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(o[k])
	}
	b.WriteByte('}')
	return b.String()
}
