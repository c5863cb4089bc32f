package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	var _ Value = Null{}
	var _ Value = String("x")
	var _ Value = Int(1)
	var _ Value = Bool(true)
	var _ Value = Array{}
	var _ Value = Object{}
}

func TestDecode(t *testing.T) {
	v, err := Decode([]byte(`{"duel_id":"0x1f","lives":3,"ok":true,"opt":null,"ts":{"start":10,"end":0},"ids":[1,2]}`))
	require.NoError(t, err)

	obj, ok := v.(Object)
	require.True(t, ok)
	assert.Equal(t, String("0x1f"), obj["duel_id"])
	assert.Equal(t, Int(3), obj["lives"])
	assert.Equal(t, Bool(true), obj["ok"])
	assert.Equal(t, Null{}, obj["opt"])
	assert.Equal(t, Array{Int(1), Int(2)}, obj["ids"])
}

func TestDecodeRejectsFloats(t *testing.T) {
	_, err := Decode([]byte(`{"x":1.5}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`1e3`))
	assert.Error(t, err)
}

func TestDecodeWideIntegerKeptAsString(t *testing.T) {
	v, err := Decode([]byte(`340282366920938463463374607431768211455`))
	require.NoError(t, err)
	assert.Equal(t, String("340282366920938463463374607431768211455"), v)
}

func TestObjectJSONRoundTrip(t *testing.T) {
	obj := Object{"b": Int(2), "a": Strings("x", "y"), "n": Null{}}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x","y"],"b":2,"n":null}`, string(data))

	var back Object
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, obj, back)
}

func TestObjectGetPath(t *testing.T) {
	obj := Object{"timestamps": Object{"start": Int(50), "end": Int(0)}}

	v, ok := obj.Get("timestamps.start")
	require.True(t, ok)
	assert.Equal(t, Int(50), v)

	_, ok = obj.Get("timestamps.missing")
	assert.False(t, ok)

	_, ok = obj.Get("timestamps.start.deeper")
	assert.False(t, ok)
}

func TestObjectCloneIsDeep(t *testing.T) {
	orig := Object{"inner": Object{"x": Int(1)}, "arr": Array{Int(1)}}
	clone := orig.Clone()

	clone["inner"].(Object)["x"] = Int(2)
	clone["arr"].(Array)[0] = Int(9)

	assert.Equal(t, Int(1), orig["inner"].(Object)["x"])
	assert.Equal(t, Int(1), orig["arr"].(Array)[0])
}

func TestFromAnyYAMLShapes(t *testing.T) {
	v, err := FromAny(map[string]any{"n": 5, "s": "a", "l": []any{true, nil}})
	require.NoError(t, err)
	assert.Equal(t, Object{"n": Int(5), "s": String("a"), "l": Array{Bool(true), Null{}}}, v)

	_, err = FromAny(map[string]any{"f": 1.25})
	assert.Error(t, err)
}
