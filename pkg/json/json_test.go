package json

import (
	"strings"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchBody struct {
	ShowInactive  bool     `json:"showInactive"`
	Fields        []string `json:"fields,omitempty"`
	HumanReadable string   `json:"humanReadable,omitempty"`
}

func TestEncodeToBuffer(t *testing.T) {
	buf, err := EncodeToBuffer(searchBody{ShowInactive: true, Fields: []string{"root.id", "a<b"}})
	require.NoError(t, err)
	defer PutBuffer(buf)

	assert.Equal(t, `{"showInactive":true,"fields":["root.id","a<b"]}`, buf.String())
}

func TestDecodeUsesNumber(t *testing.T) {
	var out map[string]interface{}
	require.NoError(t, Decode(strings.NewReader(`{"id": 12345678901234567890}`), &out))

	assert.Equal(t, gojson.Number("12345678901234567890"), out["id"])
}

func TestMarshalUnmarshal(t *testing.T) {
	data, err := Marshal(map[string][]string{"employees": {"id"}})
	require.NoError(t, err)

	var back map[string][]string
	require.NoError(t, Unmarshal(data, &back))
	assert.Equal(t, []string{"id"}, back["employees"])

	pretty, err := MarshalIndent(back, "", "  ")
	require.NoError(t, err)
	assert.Contains(t, string(pretty), "\n  \"employees\"")
}

func TestBufferPoolReset(t *testing.T) {
	buf := GetBuffer()
	buf.WriteString("stale")
	PutBuffer(buf)

	again := GetBuffer()
	assert.Equal(t, 0, again.Len())
	PutBuffer(again)
}
