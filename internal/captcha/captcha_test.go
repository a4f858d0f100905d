package captcha

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{name: "text field", body: `{"text":"ab12"}`, want: "ab12"},
		{name: "first non-empty wins", body: `{"text":"","result":"  ","captcha":"xy9","code":"zz"}`, want: "xy9"},
		{name: "order beats position", body: `{"prediction":"last","data":"first"}`, want: "first"},
		{name: "numeric code", body: `{"code":4821}`, want: "4821"},
		{name: "bare string", body: `"k3m9"`, want: "k3m9"},
		{name: "nothing usable", body: `{"status":"ok"}`, wantErr: ErrNoText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractText([]byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSolve_JSONMode(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"result":"q7w8"}`)
	}))
	defer srv.Close()

	text, err := New(srv.URL).Solve(context.Background(), Image{Base64: "aGVsbG8=", MimeType: "image/jpeg"})

	require.NoError(t, err)
	assert.Equal(t, "q7w8", text)
	assert.Equal(t, map[string]string{"image": "aGVsbG8=", "mimeType": "image/jpeg"}, got)
}

func TestSolve_MultipartMode(t *testing.T) {
	img := []byte{0xff, 0xd8, 0xff, 0xe0, 'j', 'p', 'g'}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()

		data, err := io.ReadAll(f)
		require.NoError(t, err)
		assert.Equal(t, img, data)
		assert.Equal(t, "captcha.png", hdr.Filename)

		_, _ = io.WriteString(w, `{"text":"m5n6"}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithMode(ModeMultipart))
	text, err := c.Solve(context.Background(), Image{
		Base64:   base64.StdEncoding.EncodeToString(img),
		MimeType: "image/png",
	})

	require.NoError(t, err)
	assert.Equal(t, "m5n6", text)
}

func TestSolve_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Solve(context.Background(), Image{Base64: "aGVsbG8="})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "overloaded")
}
