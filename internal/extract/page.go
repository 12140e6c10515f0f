package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/immxrtalbeast/clipguess/internal/domain"
)

const embedBase = "https://www.tiktok.com/embed/v2/"

var (
	playAddrPattern     = regexp.MustCompile(`"playAddr"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	downloadAddrPattern = regexp.MustCompile(`"downloadAddr"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	addrUnescaper       = strings.NewReplacer(
		`\u002F`, "/",
		`\u0026`, "&",
		`\/`, "/",
		`\"`, `"`,
		`\\`, `\`,
	)
)

// PageExtractor resolves the direct media address from a video's embed page
// and downloads it.
type PageExtractor struct {
	client    *http.Client
	userAgent string
	maxBytes  int64
	embedBase string
	log       *slog.Logger
}

type PageExtractorOption func(*PageExtractor)

func WithHTTPClient(client *http.Client) PageExtractorOption {
	return func(e *PageExtractor) { e.client = client }
}

func WithEmbedBase(base string) PageExtractorOption {
	return func(e *PageExtractor) { e.embedBase = base }
}

func WithMaxBytes(n int64) PageExtractorOption {
	return func(e *PageExtractor) { e.maxBytes = n }
}

func NewPageExtractor(userAgent string, requestTimeout time.Duration, log *slog.Logger, opts ...PageExtractorOption) *PageExtractor {
	if log == nil {
		log = slog.Default()
	}
	e := &PageExtractor{
		client:    &http.Client{Timeout: requestTimeout},
		userAgent: userAgent,
		maxBytes:  64 << 20,
		embedBase: embedBase,
		log:       log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *PageExtractor) Extract(ctx context.Context, ref string) (*Content, error) {
	const op = "extract.page.extract"

	pageURL := strings.TrimSpace(ref)
	if !strings.Contains(pageURL, "/video/") {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidURL)
	}

	mediaURL, err := e.ResolveMediaURL(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	content, err := e.download(ctx, mediaURL, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	e.log.Debug("video extracted",
		slog.String("op", op),
		slog.String("ref", pageURL),
		slog.Int("bytes", len(content.Data)),
	)
	return content, nil
}

// ResolveMediaURL tries the embed page first and the page itself second.
func (e *PageExtractor) ResolveMediaURL(ctx context.Context, pageURL string) (string, error) {
	var candidates []string
	if id := domain.VideoID(pageURL); id != "" {
		candidates = append(candidates, e.embedBase+id)
	}
	candidates = append(candidates, pageURL)

	var lastErr error = ErrNoPlayURL
	for _, candidate := range candidates {
		html, err := e.get(ctx, candidate, "text/html,application/xhtml+xml")
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if addr := ParseMediaURL(string(html)); addr != "" {
			return addr, nil
		}
	}
	return "", lastErr
}

func (e *PageExtractor) download(ctx context.Context, mediaURL, referer string) (*Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	e.setHeaders(req, "*/*")
	req.Header.Set("Referer", strings.SplitN(referer, "?", 2)[0])
	req.Header.Set("Origin", "https://www.tiktok.com")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUpstream, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyContent
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = DefaultContentType
	}
	return &Content{Data: data, ContentType: contentType}, nil
}

func (e *PageExtractor) get(ctx context.Context, target, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	e.setHeaders(req, accept)
	req.Header.Set("Referer", "https://www.tiktok.com/")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUpstream, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

func (e *PageExtractor) setHeaders(req *http.Request, accept string) {
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	req.Header.Set("Accept", accept)
}

// ParseMediaURL pulls the escaped playAddr (or downloadAddr) out of page
// JSON. Protocol-relative addresses are upgraded to https.
func ParseMediaURL(html string) string {
	m := playAddrPattern.FindStringSubmatch(html)
	if len(m) < 2 || m[1] == "" {
		m = downloadAddrPattern.FindStringSubmatch(html)
	}
	if len(m) < 2 || m[1] == "" {
		return ""
	}

	addr := addrUnescaper.Replace(m[1])
	switch {
	case strings.HasPrefix(addr, "//"):
		return "https:" + addr
	case strings.HasPrefix(addr, "http"):
		return addr
	default:
		return ""
	}
}

// HostAllowed reports whether rawURL points at one of hosts or a subdomain of one.
func HostAllowed(rawURL string, hosts []string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, allowed := range hosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
