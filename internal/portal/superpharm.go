package portal

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"zilazol/internal"
)

type superPharm struct {
	client  *Client
	baseURL string
	now     func() time.Time
}

const (
	superPharmNameCol = 1
	superPharmLinkCol = 5
)

type superPharmDescriptor struct {
	Href string `json:"href"`
}

func (s *superPharm) Fetch(ctx context.Context, chain internal.Chain, category internal.Category, max int) ([]File, error) {
	if err := checkChain(internal.DialectSuperPharm, chain, max); err != nil {
		return nil, err
	}
	param, err := CategoryParameter(internal.DialectSuperPharm, category)
	if err != nil {
		return nil, err
	}

	query := url.Values{"type": {param}, "date": {s.now().Format("2006-01-02")}, "store": {""}}
	doc, err := s.client.getHTML(ctx, s.baseURL+"/", query)
	if err != nil {
		return nil, err
	}

	var rows [][]string
	doc.Find(".file_list table tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		if cells := rowCells(row); len(cells) > superPharmLinkCol {
			rows = append(rows, cells)
		}
	})
	if len(rows) > max {
		rows = rows[:max]
	}

	files := make([]File, 0, len(rows))
	for _, cells := range rows {
		name := cells[superPharmNameCol]
		cat, ok := resolveCategory(category, name)
		if !ok {
			s.client.log.WithField("file", name).Warn("cannot tell file category, skipped")
			continue
		}
		content, err := s.download(ctx, cells[superPharmLinkCol])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		files = append(files, File{Name: name, Content: content, Chain: chain, Category: cat, Dialect: internal.DialectSuperPharm})
	}
	return files, nil
}

// download follows the JSON descriptor the file link returns to the archive
// itself. The session cookie set by the listing page rides along in the jar.
func (s *superPharm) download(ctx context.Context, link string) ([]byte, error) {
	descURL, err := resolveURL(s.baseURL, link)
	if err != nil {
		return nil, err
	}
	var desc superPharmDescriptor
	if err := s.client.getJSON(ctx, descURL, nil, &desc); err != nil {
		return nil, err
	}
	if desc.Href == "" {
		return nil, fmt.Errorf("download descriptor without href")
	}
	fileURL, err := resolveURL(s.baseURL, desc.Href)
	if err != nil {
		return nil, err
	}
	raw, err := s.client.get(ctx, fileURL, nil)
	if err != nil {
		return nil, err
	}
	return Decompress(raw)
}
