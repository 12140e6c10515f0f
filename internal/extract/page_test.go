package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMediaURL(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "play addr with escapes",
			html: `{"video":{"playAddr":"https:\u002F\u002Fv16.example.com\u002Fvideo.mp4?a=1\u0026b=2"}}`,
			want: "https://v16.example.com/video.mp4?a=1&b=2",
		},
		{
			name: "protocol relative",
			html: `"playAddr": "\/\/cdn.example.com\/v.mp4"`,
			want: "https://cdn.example.com/v.mp4",
		},
		{
			name: "download addr fallback",
			html: `{"playAddr":"","downloadAddr":"https://cdn.example.com/d.mp4"}`,
			want: "https://cdn.example.com/d.mp4",
		},
		{
			name: "relative path rejected",
			html: `{"playAddr":"/local/v.mp4"}`,
			want: "",
		},
		{
			name: "missing",
			html: `<html></html>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMediaURL(tt.html))
		})
	}
}

func TestHostAllowed(t *testing.T) {
	hosts := []string{"tiktok.com", "vm.tiktok.com"}

	assert.True(t, HostAllowed("https://www.tiktok.com/@a/video/1", hosts))
	assert.True(t, HostAllowed("https://tiktok.com/@a/video/1", hosts))
	assert.True(t, HostAllowed(" https://VM.TikTok.com/xyz ", hosts))
	assert.False(t, HostAllowed("https://evil-tiktok.com/video/1", hosts))
	assert.False(t, HostAllowed("https://tiktok.com.evil.io/video/1", hosts))
	assert.False(t, HostAllowed("not a url", hosts))
}

func TestPageExtractorExtract(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/embed/v2/7300000000000000001":
			assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte(`<script>{"playAddr":"` + srv.URL + `/media.mp4"}</script>`))
		case "/media.mp4":
			w.Header().Set("Content-Type", "video/mp4")
			_, _ = w.Write([]byte("mp4-bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ext := NewPageExtractor("test-agent", 5*time.Second, discardLogger(),
		WithHTTPClient(srv.Client()),
		WithEmbedBase(srv.URL+"/embed/v2/"),
	)

	content, err := ext.Extract(context.Background(), srv.URL+"/@someone/video/7300000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(content.Data))
	assert.Equal(t, "video/mp4", content.ContentType)

	_, err = ext.Extract(context.Background(), srv.URL+"/@someone/photo/1")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = ext.Extract(context.Background(), srv.URL+"/@someone/video/42")
	assert.ErrorIs(t, err, ErrUpstream)
}
