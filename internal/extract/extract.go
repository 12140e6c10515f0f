package extract

import (
	"context"
	"errors"
)

const DefaultContentType = "video/mp4"

var (
	ErrTimeout      = errors.New("extraction timed out")
	ErrNoPlayURL    = errors.New("no playable url in page")
	ErrInvalidURL   = errors.New("invalid video url")
	ErrUpstream     = errors.New("upstream returned non-success status")
	ErrEmptyContent = errors.New("empty video content")
)

// Content is the playable payload of one video.
type Content struct {
	Data        []byte
	ContentType string
}

func (c *Content) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Data)
}

// Result is delivered exactly once per submission. Exactly one of Content and
// Err is set.
type Result struct {
	Content *Content
	Err     error
}

func (r Result) OK() bool {
	return r.Err == nil && r.Content != nil
}

// Extractor turns a video page reference into playable bytes.
type Extractor interface {
	Extract(ctx context.Context, ref string) (*Content, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(ctx context.Context, ref string) (*Content, error)

func (f ExtractorFunc) Extract(ctx context.Context, ref string) (*Content, error) {
	return f(ctx, ref)
}
