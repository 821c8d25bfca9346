package sources

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/japanese"

	"boorubot/internal/logging"
	"boorubot/internal/similarity"
)

const asdbBaseURL = "http://seesaawiki.jp"

// ASDB looks up works in the Anime Staff Database, a seesaawiki site
// that still serves EUC-JP. Queries are encoded to EUC-JP before URL
// escaping and responses are decoded the same way.
type ASDB struct {
	client *Client
	logger *slog.Logger

	// BaseURL is overridable for tests.
	BaseURL string
}

// NewASDB builds the Anime Staff Database adapter.
func NewASDB(client *Client) *ASDB {
	return &ASDB{client: client, logger: client.Logger(), BaseURL: asdbBaseURL}
}

// Name identifies the adapter in logs.
func (a *ASDB) Name() string { return "Anime Staff Database" }

// GetInfo searches every given name and returns the best page match.
func (a *ASDB) GetInfo(ctx context.Context, names ...string) *Info {
	items := gather(ctx, a.search, "anime_staff_database_link", 10, names, a.logger, a.Name())
	sel := &matcher{
		source:   a.Name(),
		pkKey:    "anime_staff_database_link",
		minRatio: 0.95,
		weights:  similarity.Weights{Contains: 0.3, Reverse: 0.5},
		nameKeys: []string{"name_ja"},
		logger:   a.logger,
	}
	best := sel.best(items, names...)
	if best == nil {
		a.logger.Info("no matching result",
			logging.String(logging.FieldSource, a.Name()),
			logging.Any("names", names))
		return NewInfo()
	}
	return best
}

func (a *ASDB) search(ctx context.Context, name string) ([]*Info, error) {
	encoded, err := japanese.EUCJP.NewEncoder().String(name)
	if err != nil {
		// Characters outside EUC-JP cannot match a page name anyway.
		encoded = name
	}
	target := a.BaseURL + "/w/radioi_34/search?search_target=page_name&keywords=" + url.QueryEscape(encoded)
	doc, err := a.client.FetchDocDecoded(ctx, target, nil, japanese.EUCJP.NewDecoder())
	if err != nil {
		return nil, err
	}

	var items []*Info
	doc.Find("h3.keyword").Each(func(_ int, sel *goquery.Selection) {
		anchor := sel.Find("a").First()
		link, _ := anchor.Attr("href")
		title := strings.TrimSpace(anchor.Text())
		if link == "" || title == "" {
			return
		}
		info := NewInfo()
		info.Set("anime_staff_database_link", link)
		info.Set("name_ja", title)
		items = append(items, info)
	})
	return items, nil
}
