package portal

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"zilazol/internal"
)

type nibit struct {
	client  *Client
	baseURL string
	now     func() time.Time
}

const (
	nibitNameCol = 0
	nibitLinkCol = 7
)

func (n *nibit) Fetch(ctx context.Context, chain internal.Chain, category internal.Category, max int) ([]File, error) {
	if err := checkChain(internal.DialectNibit, chain, max); err != nil {
		return nil, err
	}
	param, err := CategoryParameter(internal.DialectNibit, category)
	if err != nil {
		return nil, err
	}

	query := url.Values{"code": {chain.ID}, "date": {n.now().Format("02/01/2006")}, "fileType": {param}}
	doc, err := n.client.getHTML(ctx, n.baseURL+"/", query)
	if err != nil {
		return nil, err
	}

	// The listing can be long; stop reading rows once max are collected.
	var rows [][]string
	doc.Find("#download_content table").First().Find("tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		if i == 0 {
			return true
		}
		if cells := rowCells(row); len(cells) > nibitLinkCol {
			rows = append(rows, cells)
		}
		return len(rows) < max
	})

	files := make([]File, 0, len(rows))
	for _, cells := range rows {
		link, err := resolveURL(n.baseURL, cells[nibitLinkCol])
		if err != nil {
			return nil, err
		}
		name := cells[nibitNameCol]
		if name == "" {
			name = linkName(link)
		}
		cat, ok := resolveCategory(category, name)
		if !ok {
			n.client.log.WithField("file", name).Warn("cannot tell file category, skipped")
			continue
		}
		raw, err := n.client.get(ctx, link, nil)
		if err != nil {
			return nil, err
		}
		content, err := Gunzip(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		files = append(files, File{Name: name, Content: content, Chain: chain, Category: cat, Dialect: internal.DialectNibit})
	}
	return files, nil
}
