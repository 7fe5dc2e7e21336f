package local

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vfaronov/httpheader"
	"golang.org/x/time/rate"

	"github.com/surge-downloader/batchget/internal/engine"
	"github.com/surge-downloader/batchget/internal/engine/types"
	"github.com/surge-downloader/batchget/internal/utils"
)

// probeResult is what a server tells us before the body is fetched.
type probeResult struct {
	FileSize      int64 // -1 when unknown
	SupportsRange bool
	Filename      string
	ContentType   string
}

func newHTTPClient(opts engine.Options) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   types.DialTimeout,
			KeepAlive: types.KeepAliveDuration,
		}).DialContext,
		MaxIdleConns:          types.DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   opts.GetSplit() * opts.GetMaxConcurrentDownloads(),
		IdleConnTimeout:       types.DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   types.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: types.DefaultResponseHeaderTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !opts.CheckCertificate, //nolint:gosec // user opted out of verification
		},
	}
	return &http.Client{Transport: transport}
}

// probeServer asks for the first byte of rawurl to learn its size, range
// support and name. Servers that reject ranged requests are retried with a
// plain GET.
func probeServer(ctx context.Context, client *http.Client, rawurl, userAgent string) (*probeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, types.ProbeTimeout)
	defer cancel()

	resp, err := doProbe(ctx, client, rawurl, userAgent, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusMethodNotAllowed ||
		resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		utils.Debug("probe: %s rejected range request (%d), retrying without", rawurl, resp.StatusCode)
		drainClose(resp)
		resp, err = doProbe(ctx, client, rawurl, userAgent, false)
		if err != nil {
			return nil, err
		}
	}
	defer drainClose(resp)

	result := &probeResult{FileSize: -1}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		result.SupportsRange = true
		if total, ok := parseContentRangeTotal(resp.Header.Get("Content-Range")); ok {
			result.FileSize = total
		}
	case http.StatusOK:
		if resp.ContentLength >= 0 {
			result.FileSize = resp.ContentLength
		}
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	result.Filename = filenameFromResponse(resp, rawurl)
	result.ContentType, _ = httpheader.ContentType(resp.Header)
	return result, nil
}

func doProbe(ctx context.Context, client *http.Client, rawurl, userAgent string, ranged bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if ranged {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe request failed: %w", err)
	}
	return resp, nil
}

func drainClose(resp *http.Response) {
	_, _ = io.CopyN(io.Discard, resp.Body, 64*types.KB)
	_ = resp.Body.Close()
}

// parseContentRangeTotal extracts the complete length from "bytes a-b/total".
func parseContentRangeTotal(v string) (int64, bool) {
	i := strings.LastIndexByte(v, '/')
	if i < 0 || i == len(v)-1 {
		return 0, false
	}
	total, err := strconv.ParseInt(strings.TrimSpace(v[i+1:]), 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}

// filenameFromResponse picks the display name: Content-Disposition first,
// then the last URL path element, then index.html.
func filenameFromResponse(resp *http.Response, rawurl string) string {
	if _, name, _ := httpheader.ContentDisposition(resp.Header); name != "" {
		if clean := sanitizeFilename(name); clean != "" {
			return clean
		}
	}
	// Redirects change the URL the body came from
	if resp.Request != nil && resp.Request.URL != nil {
		if name := filenameFromURL(resp.Request.URL.String()); name != "" {
			return name
		}
	}
	if name := filenameFromURL(rawurl); name != "" {
		return name
	}
	return "index.html"
}

func filenameFromURL(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return ""
	}
	p, err := url.PathUnescape(u.EscapedPath())
	if err != nil {
		p = u.Path
	}
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	return sanitizeFilename(path.Base(p))
}

func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(filepath.FromSlash(name))
	name = strings.TrimSpace(name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// rangeFetcher streams one byte range of rawurl into w.
type rangeFetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// fetchRange copies [offset, offset+length) into dst, or from offset to EOF
// when length < 0. onBytes is called after each write. It returns the number
// of bytes written.
func (f *rangeFetcher) fetchRange(ctx context.Context, rawurl string, offset, length int64, dst io.WriterAt, onBytes func(int)) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	if length > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	} else if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusPartialContent:
	case resp.StatusCode == http.StatusOK && offset == 0:
	case resp.StatusCode == http.StatusOK:
		return 0, errRangeIgnored
	default:
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if length > 0 {
		body = io.LimitReader(resp.Body, length)
	}

	buf := make([]byte, types.WorkerBuffer)
	var written int64
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if err := f.wait(ctx, n); err != nil {
				return written, err
			}
			if _, werr := dst.WriteAt(buf[:n], offset+written); werr != nil {
				return written, fmt.Errorf("write failed: %w", werr)
			}
			written += int64(n)
			if onBytes != nil {
				onBytes(n)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return written, ctx.Err()
			}
			return written, rerr
		}
	}

	if length > 0 && written < length {
		return written, fmt.Errorf("short read: got %d of %d bytes", written, length)
	}
	return written, nil
}

func (f *rangeFetcher) wait(ctx context.Context, n int) error {
	if f.limiter == nil {
		return nil
	}
	burst := f.limiter.Burst()
	for n > 0 {
		step := n
		if step > burst {
			step = burst
		}
		if err := f.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

var errRangeIgnored = errors.New("server ignored range request")

// newLimiter returns nil for an unlimited rate.
func newLimiter(bytesPerSec int64) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := int(bytesPerSec)
	if burst < types.WorkerBuffer {
		burst = types.WorkerBuffer
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}
