package console

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// PageResult is the console server's answer to a page request.
type PageResult struct {
	Status   int
	Location string
}

// Authenticated reports whether the route guard let the request through.
func (r PageResult) Authenticated() bool {
	return r.Status >= 200 && r.Status <= 299
}

// PageClient requests console pages with the same cookie jar the session
// bridge writes to. Redirects are reported, not followed.
type PageClient struct {
	base   *url.URL
	client *http.Client
}

func NewPageClient(base *url.URL, client *http.Client) *PageClient {
	c := http.Client{}
	if client != nil {
		c = *client
	}
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &PageClient{base: base, client: &c}
}

// Open issues GET for path relative to the console origin.
func (p *PageClient) Open(ctx context.Context, path string) (PageResult, error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return PageResult{}, errors.Wrapf(err, "page path %q", path)
	}
	target := p.base.ResolveReference(ref).String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return PageResult{}, errors.Wrap(err, "build page request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return PageResult{}, errors.Wrapf(err, "GET %s", target)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return PageResult{Status: resp.StatusCode, Location: resp.Header.Get("Location")}, nil
}
