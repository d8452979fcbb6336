package csw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/iziplay/csw-harvester/pkg/tree"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

var (
	pathExceptionReport = tree.Keys("ows:ExceptionReport")
	pathExceptionCode   = tree.Keys("ows:ExceptionReport", "ows:Exception", "@_exceptionCode")
	pathExceptionLoc    = tree.Keys("ows:ExceptionReport", "ows:Exception", "@_locator")
	pathExceptionText   = tree.Keys("ows:ExceptionReport", "ows:Exception", "ows:ExceptionText")
	pathSearchResults   = tree.Keys("csw:GetRecordsResponse", "csw:SearchResults")
	pathMatched         = pathSearchResults.Join(tree.Key("@_numberOfRecordsMatched"))
	pathMetadata        = pathSearchResults.Join(tree.Key("gmd:MD_Metadata"))
)

// ClientOptions configures a Client
type ClientOptions struct {
	// HTTPClient defaults to a client with an otelhttp transport
	HTTPClient *http.Client
	// RequestsPerSecond paces all requests of the client, 0 disables pacing
	RequestsPerSecond float64
}

// Client talks to CSW endpoints
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(opts ClientOptions) *Client {
	c := &Client{http: opts.HTTPClient}
	if c.http == nil {
		c.http = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(math.Ceil(opts.RequestsPerSecond))
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return c
}

// ListPages asks the endpoint for its record count with a one record probe
// and returns one request per page of src.Limit records
func (c *Client) ListPages(ctx context.Context, src Source) ([]PageRequest, error) {
	if src.Limit <= 0 {
		return nil, fmt.Errorf("invalid page size %d", src.Limit)
	}

	probe, err := src.PageRequest(1, 1)
	if err != nil {
		return nil, err
	}
	probe.Options.Timeout = ProbeTimeout

	n, err := c.fetchTree(ctx, probe)
	if err != nil {
		return nil, err
	}

	matched, ok := tree.GetFirst(tree.OnlySimple(tree.Traverse(n, pathMatched))).Float()
	if !ok {
		return nil, fmt.Errorf("%w: no numberOfRecordsMatched in %s", ErrMalformedResponse, src.URL)
	}
	total := int(matched)

	pages := int(math.Ceil(float64(total) / float64(src.Limit)))
	requests := make([]PageRequest, 0, pages)
	for p := 0; p < pages; p++ {
		r, err := src.PageRequest(p*src.Limit+1, src.Limit)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}

	slog.Debug("Listed CSW pages", "url", src.URL, "records", total, "pages", pages)
	return requests, nil
}

// FetchPage performs one page request and maps every returned metadata record
func (c *Client) FetchPage(ctx context.Context, req PageRequest) ([]Record, error) {
	n, err := c.fetchTree(ctx, req)
	if err != nil {
		return nil, err
	}

	if tree.Traverse(n, pathSearchResults).IsNull() {
		return nil, fmt.Errorf("%w: no SearchResults in response from %s", ErrMalformedResponse, req.URL)
	}

	return MapRecords(tree.Traverse(n, pathMetadata)), nil
}

// fetchTree performs the request and parses the body, turning exception
// reports into errors
func (c *Client) fetchTree(ctx context.Context, req PageRequest) (tree.Node, error) {
	body, err := c.do(ctx, req)
	if err != nil {
		return tree.Null, err
	}

	n, err := tree.ParseXMLBytes(body, tree.ParseOptions{StripNamespaces: true})
	if err != nil {
		return tree.Null, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	if !tree.Traverse(n, pathExceptionReport).IsNull() {
		return tree.Null, &ExceptionError{
			Code:    firstString(n, pathExceptionCode),
			Locator: firstString(n, pathExceptionLoc),
			Text:    firstString(n, pathExceptionText),
		}
	}

	return n, nil
}

func (c *Client) do(ctx context.Context, req PageRequest) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if req.Options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Options.Timeout)
		defer cancel()
	}

	method := req.Options.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if req.Options.Body != "" {
		body = strings.NewReader(req.Options.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range req.Options.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

func firstString(n tree.Node, p tree.Path) string {
	return tree.GetFirst(tree.OnlySimple(tree.Traverse(n, p))).String()
}

// IsPageError reports whether err concerns the page itself rather than the
// transport, i.e. retrying the same request would fail again
func IsPageError(err error) bool {
	var statusErr *StatusError
	return errors.Is(err, ErrException) || errors.Is(err, ErrMalformedResponse) || errors.As(err, &statusErr)
}
