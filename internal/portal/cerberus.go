package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"zilazol/internal"
)

var ErrNoCSRFToken = errors.New("csrf token not found")

// cerberus serves the chains hosted on url.publishedprices.co.il. Every fetch
// logs in as the chain, lists matching files and downloads them.
type cerberus struct {
	client  *Client
	baseURL string
}

type cerberusListing struct {
	AaData []struct {
		Fname string `json:"fname"`
		Time  string `json:"time"`
	} `json:"aaData"`
}

func (c *cerberus) Fetch(ctx context.Context, chain internal.Chain, category internal.Category, max int) ([]File, error) {
	if err := checkChain(internal.DialectCerberus, chain, max); err != nil {
		return nil, err
	}
	param, err := CategoryParameter(internal.DialectCerberus, category)
	if err != nil {
		return nil, err
	}

	csrf, err := c.login(ctx, chain)
	if err != nil {
		return nil, fmt.Errorf("cerberus login %s: %w", chain.Name, err)
	}

	form := url.Values{
		"iDisplayLength": {strconv.Itoa(max)},
		"mDataProp_1":    {"typeLabel"},
		"sSearch_1":      {"file"},
		"sSearch":        {param + chain.ID},
		"csrftoken":      {csrf},
	}
	blob, err := c.client.postForm(ctx, c.baseURL+"/file/json/dir", form)
	if err != nil {
		return nil, err
	}
	var listing cerberusListing
	if err := json.Unmarshal(blob, &listing); err != nil {
		return nil, fmt.Errorf("cerberus file list: %w", err)
	}

	entries := listing.AaData
	sort.SliceStable(entries, func(i, j int) bool {
		return cerberusTime(entries[i].Time).After(cerberusTime(entries[j].Time))
	})
	if len(entries) > max {
		entries = entries[:max]
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		cat, ok := resolveCategory(category, entry.Fname)
		if !ok {
			c.client.log.WithField("file", entry.Fname).Warn("cannot tell file category, skipped")
			continue
		}
		raw, err := c.client.get(ctx, c.baseURL+"/file/d/"+url.PathEscape(entry.Fname), nil)
		if err != nil {
			return nil, err
		}
		content, err := c.unpack(raw, cat)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Fname, err)
		}
		files = append(files, File{Name: entry.Fname, Content: content, Chain: chain, Category: cat, Dialect: internal.DialectCerberus})
	}
	return files, nil
}

// Stores files are served as plain XML, everything else gzipped.
func (c *cerberus) unpack(raw []byte, category internal.Category) ([]byte, error) {
	if category == internal.CategoryStores {
		return Decompress(raw)
	}
	return Gunzip(raw)
}

func (c *cerberus) login(ctx context.Context, chain internal.Chain) (string, error) {
	page, err := c.client.get(ctx, c.baseURL+"/login", nil)
	if err != nil {
		return "", err
	}
	csrf, err := csrfToken(page)
	if err != nil {
		return "", err
	}

	form := url.Values{
		"r":         {""},
		"username":  {chain.Username},
		"password":  {chain.Password},
		"Submit":    {"Sign in"},
		"csrftoken": {csrf},
	}
	page, err = c.client.postForm(ctx, c.baseURL+"/login/user", form)
	if err != nil {
		return "", err
	}
	if c.client.cookie(c.baseURL, "cftpSID") == "" {
		c.client.log.WithField("chain", chain.Name).Debug("no cftpSID cookie after login")
	}
	// The file page carries a fresh token; fall back to the login one.
	if fresh, err := csrfToken(page); err == nil {
		return fresh, nil
	}
	return csrf, nil
}

func csrfToken(page []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", err
	}
	token, ok := doc.Find(`meta[name="csrftoken"]`).First().Attr("content")
	if !ok || strings.TrimSpace(token) == "" {
		return "", ErrNoCSRFToken
	}
	return token, nil
}

func cerberusTime(v string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05Z", strings.TrimSpace(v))
	if err != nil {
		return time.Time{}
	}
	return t
}
