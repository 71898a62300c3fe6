package netfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	derrors "github.com/marmos91/dittonet/pkg/errors"
)

// httpProto streams GET bodies and uploads writes with a single PUT on
// Close. DELETE, MOVE and MKCOL back the extended operations on servers
// that accept them (WebDAV).
type httpProto struct {
	client  *http.Client
	timeout time.Duration

	u     *ParsedURL
	mode  Mode
	body  *stream
	size  int64
	pos   int64
	wbuf  bytes.Buffer
	dirty bool
}

// newHTTPClient builds the client shared by every http(s) session. Header
// and dial timeouts are enforced by the transport because the response
// body outlives the OPEN command's context.
func newHTTPClient(dialTimeout time.Duration) *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext
	tr.ResponseHeaderTimeout = dialTimeout
	tr.TLSHandshakeTimeout = dialTimeout
	return &http.Client{Transport: tr}
}

func newHTTPProto(client *http.Client, timeout time.Duration) Factory {
	return func() Protocol { return &httpProto{client: client, timeout: timeout} }
}

func (p *httpProto) Open(ctx context.Context, u *ParsedURL, mode Mode) error {
	p.u = u
	p.mode = mode
	if mode.Has(ModeWrite) && !mode.Has(ModeRead) {
		p.dirty = true
		return nil
	}
	return p.get(ctx, 0)
}

// get issues a GET starting at offset. ctx bounds only the wait for the
// response headers; the body is read on a detached session context.
func (p *httpProto) get(ctx context.Context, offset int64) error {
	session, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)

	req, err := http.NewRequestWithContext(session, http.MethodGet, p.u.String(), nil)
	if err != nil {
		stop()
		cancel()
		return derrors.BadRequest("http.open", "%v", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := p.client.Do(req)
	expired := !stop()
	if err != nil {
		cancel()
		if expired {
			return derrors.Open("http.open", ctx.Err())
		}
		return derrors.Open("http.open", err)
	}

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		_ = resp.Body.Close()
		cancel()
		p.body = newStream(io.NopCloser(bytes.NewReader(nil)), 0)
		p.size = offset
		p.pos = offset
		return nil
	case offset > 0 && resp.StatusCode != http.StatusPartialContent:
		_ = resp.Body.Close()
		cancel()
		return derrors.Unsupported("http.seek")
	case resp.StatusCode >= 300:
		_ = resp.Body.Close()
		cancel()
		return statusError("http.open", resp.StatusCode)
	}

	p.body = newStream(&cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, resp.ContentLength)
	p.size = -1
	if resp.ContentLength >= 0 {
		p.size = offset + resp.ContentLength
	}
	p.pos = offset
	return nil
}

func (p *httpProto) Read(ctx context.Context, buf []byte) (int, error) {
	if p.body == nil {
		return 0, derrors.BadRequest("http.read", "opened write-only")
	}
	n, err := p.body.Read(ctx, buf)
	p.pos += int64(n)
	return n, err
}

func (p *httpProto) Write(_ context.Context, buf []byte) (int, error) {
	if !p.mode.Has(ModeWrite) {
		return 0, derrors.BadRequest("http.write", "opened read-only")
	}
	p.dirty = true
	return p.wbuf.Write(buf)
}

// Close uploads buffered writes and releases the response body.
func (p *httpProto) Close() error {
	var err error
	if p.body != nil {
		_ = p.body.Close()
		p.body = nil
	}
	if p.dirty && p.u != nil {
		err = p.put()
		p.dirty = false
		p.wbuf.Reset()
	}
	return err
}

func (p *httpProto) put() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.u.String(), bytes.NewReader(p.wbuf.Bytes()))
	if err != nil {
		return derrors.BadRequest("http.put", "%v", err)
	}
	return p.do(req, "http.put")
}

func (p *httpProto) Available() int {
	if p.body == nil {
		return 0
	}
	return p.body.Available()
}

func (p *httpProto) EOF() bool {
	return p.body != nil && p.body.EOF()
}

// Seek restarts the transfer with a Range request.
func (p *httpProto) Seek(ctx context.Context, pos int64) error {
	if p.body == nil {
		return derrors.Unsupported("http.seek")
	}
	_ = p.body.Close()
	p.body = nil
	return p.get(ctx, pos)
}

func (p *httpProto) Remove(ctx context.Context, u *ParsedURL) error {
	return p.method(ctx, http.MethodDelete, "http.delete", u, nil)
}

func (p *httpProto) Rename(ctx context.Context, from, to *ParsedURL) error {
	return p.method(ctx, "MOVE", "http.rename", from, http.Header{"Destination": {to.String()}})
}

func (p *httpProto) Mkdir(ctx context.Context, u *ParsedURL) error {
	return p.method(ctx, "MKCOL", "http.mkdir", u, nil)
}

func (p *httpProto) method(ctx context.Context, method, op string, u *ParsedURL, h http.Header) error {
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return derrors.BadRequest(op, "%v", err)
	}
	for k, v := range h {
		req.Header[k] = v
	}
	return p.do(req, op)
}

func (p *httpProto) do(req *http.Request, op string) error {
	resp, err := p.client.Do(req)
	if err != nil {
		return derrors.IO(op, err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(op, resp.StatusCode)
	}
	return nil
}

func statusError(op string, code int) error {
	err := fmt.Errorf("server returned %d %s", code, http.StatusText(code))
	switch code {
	case http.StatusNotFound, http.StatusGone:
		return derrors.E(derrors.KindNotFound, op, err)
	case http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return derrors.E(derrors.KindUnsupported, op, err)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return derrors.E(derrors.KindBusy, op, err)
	default:
		return derrors.Open(op, err)
	}
}

// cancelOnClose releases the session context with the body.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
