package testutil

import (
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHAR_ChromeExport(t *testing.T) {
	data := []byte(`{"log":{"version":"1.2","entries":[{
		"request":{"method":"POST","url":"https://neo.vpbank.com.vn/x","headers":[{"name":"A","value":"1"}],
			"postData":{"mimeType":"application/json","text":"{\"a\":1}"}},
		"response":{"status":201,"headers":[{"name":"tokenkey","value":"T"}],"content":{"mimeType":"application/json","text":"{}"}}
	}]}}`)

	har, err := ParseHAR(data)
	require.NoError(t, err)
	require.Len(t, har.Entries, 1)

	e := har.Entries[0]
	assert.Equal(t, "POST", e.Request.Method)
	assert.Equal(t, `{"a":1}`, e.Request.Body)
	assert.Equal(t, 201, e.Response.Status)
	assert.Equal(t, "T", e.Response.Header("TokenKey"))
}

func TestParseHAR_Simplified(t *testing.T) {
	data := []byte(`{"entries":[{"request":{"method":"GET","url":"https://x/y"},"response":{"status":200,"content":{"text":"ok"}}}]}`)

	har, err := ParseHAR(data)
	require.NoError(t, err)
	require.Len(t, har.Entries, 1)
	assert.Equal(t, []byte("ok"), har.Entries[0].Response.Body())
}

func TestParseHAR_Invalid(t *testing.T) {
	_, err := ParseHAR([]byte("not json"))
	assert.Error(t, err)
}

func TestHARResponse_Base64Body(t *testing.T) {
	resp := HARResponse{Content: HARContent{
		Text:     base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff}),
		Encoding: "base64",
	}}
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, resp.Body())
}

func TestSaveAndLoadHAR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.har.json")
	in := &HARLog{Entries: []HAREntry{{
		Request:  HARRequest{Method: "GET", URL: "https://x/"},
		Response: HARResponse{Status: 204},
	}}}

	require.NoError(t, SaveHAR(path, in))
	out := MustLoadHAR(t, path)
	assert.Equal(t, in, out)
}
