package sources

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"boorubot/internal/logging"
	"boorubot/internal/similarity"
)

const malBaseURL = "https://myanimelist.net"

// MAL looks up anime titles on MyAnimeList. The search page embeds the
// anime id in element ids shaped "sinfo<N>"; the anime page lists the
// Japanese title in its information sidebar.
type MAL struct {
	client *Client
	logger *slog.Logger

	// BaseURL is overridable for tests.
	BaseURL string
}

// NewMAL builds the MyAnimeList adapter.
func NewMAL(client *Client) *MAL {
	return &MAL{client: client, logger: client.Logger(), BaseURL: malBaseURL}
}

// Name identifies the adapter in logs.
func (m *MAL) Name() string { return "MyAnimeList" }

// GetInfo searches every given name and returns the best anime match
// with the Japanese title merged in.
func (m *MAL) GetInfo(ctx context.Context, names ...string) *Info {
	items := gather(ctx, m.search, "mal_aid", 10, names, m.logger, m.Name())
	sel := &matcher{
		source:   m.Name(),
		pkKey:    "mal_aid",
		minRatio: 0.9,
		weights:  similarity.Weights{Contains: 0.5, Reverse: 0.5},
		nameKeys: []string{"name_en"},
		logger:   m.logger,
	}
	best := sel.best(items, names...)
	if best == nil {
		m.logger.Info("no matching result",
			logging.String(logging.FieldSource, m.Name()),
			logging.Any("names", names))
		return NewInfo()
	}
	if detail := m.animeDetail(ctx, best.GetString("mal_aid")); detail != nil {
		best.Merge(detail)
	}
	return best
}

func (m *MAL) search(ctx context.Context, name string) ([]*Info, error) {
	doc, err := m.client.FetchDoc(ctx, m.BaseURL+"/anime.php", url.Values{"q": {name}})
	if err != nil {
		return nil, err
	}

	var items []*Info
	doc.Find("a.hoverinfo_trigger.fw-b.fl-l").Each(func(_ int, sel *goquery.Selection) {
		id, _ := sel.Attr("id")
		aid, err := strconv.Atoi(strings.TrimPrefix(id, "sinfo"))
		if err != nil || aid == 0 {
			return
		}
		name := sel.Find("strong").First().Text()
		if name == "" {
			return
		}
		info := NewInfo()
		info.Set("mal_aid", aid)
		info.Set("name_en", name)
		items = append(items, info)
	})
	return items, nil
}

func (m *MAL) animeDetail(ctx context.Context, aid string) *Info {
	doc, err := m.client.FetchDoc(ctx, m.BaseURL+"/anime/"+aid, nil)
	if err != nil {
		m.logger.Warn("anime detail failed",
			logging.String(logging.FieldSource, m.Name()),
			logging.String("mal_aid", aid),
			logging.Error(err))
		return nil
	}
	var name string
	doc.Find("span").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.TrimSpace(sel.Text()) != "Japanese:" {
			return true
		}
		name = strings.TrimSpace(strings.ReplaceAll(sel.Parent().Text(), "Japanese:", ""))
		return false
	})
	if name == "" {
		return nil
	}
	info := NewInfo()
	info.Set("name_ja", name)
	return info
}
