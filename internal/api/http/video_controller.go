package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/clipguess/internal/extract"
	"github.com/immxrtalbeast/clipguess/internal/preload"
	"github.com/immxrtalbeast/clipguess/internal/ratelimit"
	"github.com/immxrtalbeast/clipguess/internal/registry"
)

// Fetcher extracts video bytes on demand.
type Fetcher interface {
	Fetch(ctx context.Context, ref string, timeout time.Duration) extract.Result
}

type VideoController struct {
	cache        *preload.Cache
	fetcher      Fetcher
	limiter      *ratelimit.Limiter
	allowedHosts []string
	timeout      time.Duration
	log          *slog.Logger
}

func NewVideoController(
	cache *preload.Cache,
	fetcher Fetcher,
	limiter *ratelimit.Limiter,
	allowedHosts []string,
	timeout time.Duration,
	log *slog.Logger,
) *VideoController {
	return &VideoController{
		cache:        cache,
		fetcher:      fetcher,
		limiter:      limiter,
		allowedHosts: allowedHosts,
		timeout:      timeout,
		log:          log,
	}
}

// GetVideo serves a round's video from the preload cache, extracting it on
// demand when absent. Extraction failures answer 200 with a fallback URL the
// client can embed instead.
func (c *VideoController) GetVideo(ctx *gin.Context) {
	const op = "http.video.GetVideo"

	if !c.limiter.Allow(ctx.ClientIP()) {
		ctx.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
		return
	}

	videoURL := ctx.Query("url")
	if videoURL == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	if !extract.HostAllowed(videoURL, c.allowedHosts) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "url not allowed"})
		return
	}

	if content, ok := c.cached(ctx.Query("room"), ctx.Query("index"), videoURL); ok {
		c.serve(ctx, content, "hit")
		return
	}

	res := c.fetcher.Fetch(ctx.Request.Context(), videoURL, c.timeout)
	if !res.OK() {
		msg := "extraction failed"
		if errors.Is(res.Err, extract.ErrTimeout) {
			msg = "extraction timed out"
		}
		c.log.Warn("on-demand extraction failed",
			slog.String("op", op),
			slog.String("url", videoURL),
			slog.String("error", res.Err.Error()),
		)
		ctx.JSON(http.StatusOK, gin.H{"fallbackUrl": videoURL, "error": msg})
		return
	}
	c.serve(ctx, res.Content, "miss")
}

func (c *VideoController) cached(room, index, videoURL string) (*extract.Content, bool) {
	if room == "" || index == "" {
		return nil, false
	}
	i, err := strconv.Atoi(index)
	if err != nil {
		return nil, false
	}
	entry, ok := c.cache.Get(registry.NormalizeCode(room))
	if !ok {
		return nil, false
	}
	return entry.Lookup(i, videoURL)
}

func (c *VideoController) serve(ctx *gin.Context, content *extract.Content, source string) {
	ctx.Header("Cache-Control", "no-store")
	ctx.Header("X-Cache", source)
	ctx.Header("Content-Length", strconv.Itoa(content.Len()))
	ctx.Data(http.StatusOK, content.ContentType, content.Data)
}
