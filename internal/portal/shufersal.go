package portal

import (
	"context"
	"fmt"
	"net/url"
	"path"

	"github.com/PuerkitoBio/goquery"

	"zilazol/internal"
)

type shufersal struct {
	client  *Client
	baseURL string
}

const shufersalLinkCol = 0

func (s *shufersal) Fetch(ctx context.Context, chain internal.Chain, category internal.Category, max int) ([]File, error) {
	if err := checkChain(internal.DialectShufersal, chain, max); err != nil {
		return nil, err
	}
	param, err := CategoryParameter(internal.DialectShufersal, category)
	if err != nil {
		return nil, err
	}

	doc, err := s.client.getHTML(ctx, s.baseURL+"/FileObject/UpdateCategory", url.Values{"catID": {param}, "storeId": {"0"}})
	if err != nil {
		return nil, err
	}

	var rows [][]string
	doc.Find("tr.webgrid-row-style, tr.webgrid-alternating-row").Each(func(_ int, row *goquery.Selection) {
		if cells := rowCells(row); len(cells) > shufersalLinkCol && cells[shufersalLinkCol] != "" {
			rows = append(rows, cells)
		}
	})
	if len(rows) > max {
		rows = rows[:max]
	}

	files := make([]File, 0, len(rows))
	for _, cells := range rows {
		link, err := resolveURL(s.baseURL, cells[shufersalLinkCol])
		if err != nil {
			return nil, err
		}
		name := linkName(link)
		cat, ok := resolveCategory(category, name)
		if !ok {
			s.client.log.WithField("file", name).Warn("cannot tell file category, skipped")
			continue
		}
		raw, err := s.client.get(ctx, link, nil)
		if err != nil {
			return nil, err
		}
		content, err := Gunzip(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		files = append(files, File{Name: name, Content: content, Chain: chain, Category: cat, Dialect: internal.DialectShufersal})
	}
	return files, nil
}

// linkName is the last path segment of a download link, without the query
// string the blob storage links carry.
func linkName(link string) string {
	if u, err := url.Parse(link); err == nil {
		return path.Base(u.Path)
	}
	return link
}
