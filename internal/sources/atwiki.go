package sources

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"boorubot/internal/logging"
)

const atwikiBaseURL = "https://atwiki.jp"

var (
	sakugaWikiPattern = regexp.MustCompile(`atwiki\.jp/sakuga/pages/(\d+)\.html`)
	animeWikiPattern  = regexp.MustCompile(`atwiki\.jp/anime_wiki/pages/(\d+)\.html`)
)

// Atwiki looks up page ids on the sakuga and anime @wiki sites through
// the shared atwiki search. Only results whose title matches the
// queried Japanese name exactly are taken, and hits from both wikis
// merge into one result.
type Atwiki struct {
	client *Client
	logger *slog.Logger

	// BaseURL is overridable for tests.
	BaseURL string
}

// NewAtwiki builds the @wiki adapter.
func NewAtwiki(client *Client) *Atwiki {
	return &Atwiki{client: client, logger: client.Logger(), BaseURL: atwikiBaseURL}
}

// Name identifies the adapter in logs.
func (a *Atwiki) Name() string { return "AtWiki" }

// GetInfo searches for the given names and merges the wiki page ids of
// every exact title match. The queried name itself is not part of the
// result.
func (a *Atwiki) GetInfo(ctx context.Context, names ...string) *Info {
	merged := NewInfo()
	for _, name := range names {
		items, err := a.search(ctx, name)
		if err != nil {
			a.logger.Warn("search failed",
				logging.String(logging.FieldSource, a.Name()),
				logging.String("name", name),
				logging.Error(err))
			continue
		}
		for _, item := range items {
			if item.GetString("name_ja") == name {
				merged.Merge(item)
			}
		}
	}
	merged.Delete("name_ja")
	if merged.Empty() {
		a.logger.Info("no matching result",
			logging.String(logging.FieldSource, a.Name()),
			logging.Any("names", names))
	}
	return merged
}

func (a *Atwiki) search(ctx context.Context, name string) ([]*Info, error) {
	doc, err := a.client.FetchDoc(ctx, a.BaseURL+"/wiki/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}

	var items []*Info
	doc.Find("a.atwiki_search_title").Each(func(_ int, sel *goquery.Selection) {
		link, _ := sel.Attr("href")
		title := sel.Text()
		if idx := strings.LastIndex(title, "-"); idx >= 0 {
			title = title[idx+1:]
		}
		title = strings.TrimSpace(title)
		for code, pattern := range map[string]*regexp.Regexp{
			"sakuga_wiki_id": sakugaWikiPattern,
			"anime_wiki_id":  animeWikiPattern,
		} {
			match := pattern.FindStringSubmatch(link)
			if match == nil {
				continue
			}
			info := NewInfo()
			info.Set(code, match[1])
			info.Set("name_ja", title)
			items = append(items, info)
		}
	})
	return items, nil
}
