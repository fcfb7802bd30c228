package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptions_CloneIsIndependent(t *testing.T) {
	orig := Options{OptDestResource: "rescA"}
	cp := orig.Clone()
	cp[OptRegisterReplica] = ""

	assert.False(t, orig.Has(OptRegisterReplica), "Clone must not leak writes back")
	assert.True(t, cp.Has(OptRegisterReplica))
	assert.Equal(t, "rescA", cp.DestResource())
}

func TestOptions_NilClone(t *testing.T) {
	var o Options
	cp := o.Clone()
	assert.NotNil(t, cp)
	cp["k"] = "v" // 不应 panic
	assert.False(t, o.Has("k"))
}

func TestOptions_String(t *testing.T) {
	o := Options{"b": "2", "a": "1", OptRegisterReplica: ""}
	assert.Equal(t, "{a=1, b=2, regRepl=}", o.String())
	assert.Equal(t, "{}", Options{}.String())
}

func TestIdentity_String(t *testing.T) {
	assert.Equal(t, "<ambient>", Identity{}.String())
	assert.Equal(t, "alice#zoneA", Identity{Zone: "zoneA", User: "alice"}.String())
}
