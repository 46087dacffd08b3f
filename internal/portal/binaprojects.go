package portal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"zilazol/internal"
)

var ErrNoSubdomain = errors.New("chain has no binaprojects subdomain")

// binaProjects hosts every chain on its own subdomain and answers with JSON
// rather than HTML tables.
type binaProjects struct {
	client  *Client
	baseURL string
	now     func() time.Time
}

type binaEntry struct {
	FileNm string `json:"FileNm"`
}

type binaLocation struct {
	SPath string `json:"SPath"`
}

func (b *binaProjects) Fetch(ctx context.Context, chain internal.Chain, category internal.Category, max int) ([]File, error) {
	if err := checkChain(internal.DialectBinaProjects, chain, max); err != nil {
		return nil, err
	}
	param, err := CategoryParameter(internal.DialectBinaProjects, category)
	if err != nil {
		return nil, err
	}
	base, err := b.chainURL(chain)
	if err != nil {
		return nil, err
	}

	now := b.now()
	query := url.Values{
		"_":         {strconv.FormatInt(now.Unix(), 10)},
		"WStore":    {"0"},
		"WFileType": {param},
		"WDate":     {now.Format("02/01/2006")},
	}
	var entries []binaEntry
	if err := b.client.getJSON(ctx, base+"/MainIO_Hok.aspx", query, &entries); err != nil {
		return nil, err
	}
	if len(entries) > max {
		entries = entries[:max]
	}

	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		cat, ok := resolveCategory(category, entry.FileNm)
		if !ok {
			b.client.log.WithField("file", entry.FileNm).Warn("cannot tell file category, skipped")
			continue
		}
		var locations []binaLocation
		if err := b.client.getJSON(ctx, base+"/Download.aspx", url.Values{"FileNm": {entry.FileNm}}, &locations); err != nil {
			return nil, err
		}
		if len(locations) == 0 || locations[0].SPath == "" {
			return nil, fmt.Errorf("%s: no download location", entry.FileNm)
		}
		fileURL, err := resolveURL(base, locations[0].SPath)
		if err != nil {
			return nil, err
		}
		raw, err := b.client.get(ctx, fileURL, nil)
		if err != nil {
			return nil, err
		}
		content, err := Decompress(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.FileNm, err)
		}
		files = append(files, File{Name: entry.FileNm, Content: content, Chain: chain, Category: cat, Dialect: internal.DialectBinaProjects})
	}
	return files, nil
}

func (b *binaProjects) chainURL(chain internal.Chain) (string, error) {
	if !strings.Contains(b.baseURL, "%s") {
		return b.baseURL, nil
	}
	if strings.TrimSpace(chain.Subdomain) == "" {
		return "", fmt.Errorf("%w: %s", ErrNoSubdomain, chain.Name)
	}
	return fmt.Sprintf(b.baseURL, chain.Subdomain), nil
}
