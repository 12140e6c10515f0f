package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/clipguess/internal/extract"
	"github.com/immxrtalbeast/clipguess/internal/preload"
	"github.com/immxrtalbeast/clipguess/internal/ratelimit"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFetcher struct {
	mu     sync.Mutex
	calls  []string
	result extract.Result
}

func (f *stubFetcher) Fetch(_ context.Context, ref string, _ time.Duration) extract.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, ref)
	return f.result
}

const clipURL = "https://www.tiktok.com/@a/video/123"

func newVideoRouter(t *testing.T, fetcher Fetcher, limit int) (*gin.Engine, *preload.Cache) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cache := preload.NewCache(5, discardLogger())
	controller := NewVideoController(
		cache,
		fetcher,
		ratelimit.New(time.Minute, limit, 100),
		[]string{"tiktok.com"},
		time.Second,
		discardLogger(),
	)
	return SetupRouter(nil, Controllers{Video: controller}), cache
}

func getVideo(router http.Handler, params url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/video?"+params.Encode(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestVideoServedFromCache(t *testing.T) {
	fetcher := &stubFetcher{}
	router, cache := newVideoRouter(t, fetcher, 10)

	entry := preload.NewEntry(2)
	entry.Store(1, clipURL, &extract.Content{Data: []byte("mp4-bytes"), ContentType: "video/mp4"})
	require.NoError(t, cache.Set("ABCDEF", entry))

	w := getVideo(router, url.Values{"url": {clipURL}, "room": {"abcdef"}, "index": {"1"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mp4-bytes", w.Body.String())
	assert.Equal(t, "video/mp4", w.Header().Get("Content-Type"))
	assert.Equal(t, "9", w.Header().Get("Content-Length"))
	assert.Equal(t, "hit", w.Header().Get("X-Cache"))
	assert.Empty(t, fetcher.calls)
}

func TestVideoExtractedOnDemand(t *testing.T) {
	fetcher := &stubFetcher{result: extract.Result{Content: &extract.Content{Data: []byte("fresh"), ContentType: "video/mp4"}}}
	router, cache := newVideoRouter(t, fetcher, 10)

	entry := preload.NewEntry(1)
	entry.Store(0, "https://www.tiktok.com/@a/video/999", &extract.Content{Data: []byte("other")})
	require.NoError(t, cache.Set("ABCDEF", entry))

	w := getVideo(router, url.Values{"url": {clipURL}, "room": {"ABCDEF"}, "index": {"0"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fresh", w.Body.String())
	assert.Equal(t, "miss", w.Header().Get("X-Cache"))
	assert.Equal(t, []string{clipURL}, fetcher.calls)
}

func TestVideoFallbackOnFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "timeout", err: extract.ErrTimeout, want: "extraction timed out"},
		{name: "upstream", err: extract.ErrNoPlayURL, want: "extraction failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newVideoRouter(t, &stubFetcher{result: extract.Result{Err: tt.err}}, 10)

			w := getVideo(router, url.Values{"url": {clipURL}})
			require.Equal(t, http.StatusOK, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, clipURL, body["fallbackUrl"])
			assert.Equal(t, tt.want, body["error"])
		})
	}
}

func TestVideoRejectsBadRequests(t *testing.T) {
	fetcher := &stubFetcher{}
	router, _ := newVideoRouter(t, fetcher, 10)

	assert.Equal(t, http.StatusBadRequest, getVideo(router, url.Values{}).Code)
	assert.Equal(t, http.StatusBadRequest, getVideo(router, url.Values{"url": {"https://evil.example/video/1"}}).Code)
	assert.Empty(t, fetcher.calls)
}

func TestVideoRateLimited(t *testing.T) {
	fetcher := &stubFetcher{result: extract.Result{Content: &extract.Content{Data: []byte("x"), ContentType: "video/mp4"}}}
	router, _ := newVideoRouter(t, fetcher, 2)

	params := url.Values{"url": {clipURL}}
	assert.Equal(t, http.StatusOK, getVideo(router, params).Code)
	assert.Equal(t, http.StatusOK, getVideo(router, params).Code)
	assert.Equal(t, http.StatusTooManyRequests, getVideo(router, params).Code)
	assert.Len(t, fetcher.calls, 2)
}
