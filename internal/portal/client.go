package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"zilazol/internal/logger"
)

var ErrStatus = errors.New("portal request failed")

// Client is the HTTP plumbing shared by every portal. Each request is a single
// attempt; callers decide whether a failed fetch is worth repeating.
type Client struct {
	httpClient *http.Client
	limiter    *RateLimiter
	log        *logrus.Entry
}

func NewClient(opts Options) *Client {
	jar, _ := cookiejar.New(nil)
	hc := &http.Client{Timeout: opts.Timeout, Jar: jar}
	if opts.Transport != nil {
		hc.Transport = opts.Transport
	}
	return &Client{
		httpClient: hc,
		limiter:    NewRateLimiter(opts.RateLimitRPS),
		log:        logger.WithModule("portal"),
	}
}

func (c *Client) get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	if len(query) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, err
		}
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		rawURL = u.String()
	}
	return c.do(ctx, http.MethodGet, rawURL, nil, "")
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string) ([]byte, error) {
	if err := c.limiter.WaitTurn(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	blob, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err := checkResponse(req, resp); err != nil {
		return nil, err
	}
	if readErr != nil {
		return nil, readErr
	}

	c.log.WithFields(logrus.Fields{"method": method, "url": rawURL, "bytes": len(blob)}).Debug("portal request")
	return blob, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	blob, err := c.get(ctx, rawURL, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(blob, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

func (c *Client) getHTML(ctx context.Context, rawURL string, query url.Values) (*goquery.Document, error) {
	blob, err := c.get(ctx, rawURL, query)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(blob))
}

func checkResponse(req *http.Request, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("%w: %s %s status=%d", ErrStatus, req.Method, req.URL, resp.StatusCode)
}

// cookie returns the value of the named cookie the jar holds for rawURL.
func (c *Client) cookie(rawURL, name string) string {
	u, err := url.Parse(rawURL)
	if err != nil || c.httpClient.Jar == nil {
		return ""
	}
	for _, ck := range c.httpClient.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func resolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base + "/")
	if err != nil {
		return "", err
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return b.ResolveReference(r).String(), nil
}

// rowCells collects a table row's cells, preferring a link's href over the
// cell text, the way the portals' file tables are laid out.
func rowCells(row *goquery.Selection) []string {
	var cells []string
	row.Find("td").Each(func(_ int, cell *goquery.Selection) {
		if href, ok := cell.Find("a").First().Attr("href"); ok {
			cells = append(cells, strings.TrimSpace(href))
			return
		}
		cells = append(cells, strings.TrimSpace(cell.Text()))
	})
	return cells
}
