package gofootprint

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/valyala/fasthttp"
)

// Read-ahead window for sequential access. Directory entries and block
// offset arrays are small and usually adjacent, so one window covers most
// of a GeoTIFF header.
const defaultReadAheadSize = 64 * 1024

// HTTPRangeReader is an io.ReadSeeker over a remote file, fetching bytes
// with HTTP range requests. It is safe for concurrent use.
type HTTPRangeReader struct {
	url    string
	client *fasthttp.Client
	size   int64

	mu        sync.Mutex
	pos       int64
	window    []byte
	windowPos int64
	readAhead int
	requests  int
}

func newHTTPClient() *fasthttp.Client {
	return &fasthttp.Client{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// NewHTTPRangeReader issues a HEAD request for the file size. A nil client
// gets a default client with 30 second timeouts.
func NewHTTPRangeReader(url string, client *fasthttp.Client) (*HTTPRangeReader, error) {
	if client == nil {
		client = newHTTPClient()
	}
	rr := &HTTPRangeReader{
		url:       url,
		client:    client,
		size:      -1,
		windowPos: -1,
		readAhead: defaultReadAheadSize,
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodHead)
	if err := client.Do(req, resp); err != nil {
		return nil, fmt.Errorf("HEAD %s: %w", url, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("HEAD %s: unexpected status code %d", url, code)
	}
	if n := resp.Header.ContentLength(); n > 0 {
		rr.size = int64(n)
	}
	return rr, nil
}

// SetReadAheadSize sets the read-ahead window. Non-positive sizes disable
// read-ahead.
func (rr *HTTPRangeReader) SetReadAheadSize(size int) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.readAhead = max(size, 0)
	rr.window, rr.windowPos = nil, -1
}

// Read reads from the current position, serving from the read-ahead window
// when possible.
func (rr *HTTPRangeReader) Read(p []byte) (int, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if len(p) == 0 {
		return 0, nil
	}
	if rr.size >= 0 && rr.pos >= rr.size {
		return 0, io.EOF
	}

	if rr.windowPos < 0 || rr.pos < rr.windowPos || rr.pos >= rr.windowPos+int64(len(rr.window)) {
		fetch := max(len(p), rr.readAhead)
		data, err := rr.fetchRange(rr.pos, rr.pos+int64(fetch)-1)
		if err != nil {
			return 0, err
		}
		if len(data) == 0 {
			return 0, io.EOF
		}
		rr.window, rr.windowPos = data, rr.pos
	}

	n := copy(p, rr.window[rr.pos-rr.windowPos:])
	rr.pos += int64(n)
	return n, nil
}

// fetchRange fetches the inclusive byte range [start, end].
func (rr *HTTPRangeReader) fetchRange(start, end int64) ([]byte, error) {
	if rr.size >= 0 && end >= rr.size {
		end = rr.size - 1
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	if err := rr.client.Do(req, resp); err != nil {
		return nil, fmt.Errorf("GET %s bytes %d-%d: %w", rr.url, start, end, err)
	}
	rr.requests++

	body := resp.Body()
	switch resp.StatusCode() {
	case fasthttp.StatusPartialContent:
	case fasthttp.StatusOK:
		// Server ignored the range and sent the whole file.
		if start >= int64(len(body)) {
			return nil, nil
		}
		body = body[start:min(end+1, int64(len(body)))]
	default:
		return nil, fmt.Errorf("GET %s: unexpected status code %d", rr.url, resp.StatusCode())
	}

	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// Seek sets the offset for the next Read.
func (rr *HTTPRangeReader) Seek(offset int64, whence int) (int64, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = rr.pos + offset
	case io.SeekEnd:
		if rr.size < 0 {
			return 0, fmt.Errorf("cannot seek from end: file size unknown")
		}
		pos = rr.size + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}
	if pos < 0 {
		return 0, fmt.Errorf("negative position: %d", pos)
	}
	rr.pos = pos
	return pos, nil
}

// Size returns the file size, or -1 if unknown
func (rr *HTTPRangeReader) Size() int64 {
	return rr.size
}

// Requests returns the number of range requests issued.
func (rr *HTTPRangeReader) Requests() int {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.requests
}
