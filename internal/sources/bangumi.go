package sources

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"boorubot/internal/logging"
	"boorubot/internal/similarity"
)

const bangumiBaseURL = "https://api.bgm.tv"

// Titles often carry a trailing bracketed katakana reading that the
// search API matches poorly.
var bracketedKatakana = regexp.MustCompile(`[\(\[〈][^\p{Han}]*\p{Katakana}[^\p{Han}]*[\)\]〉]$`)

// Bangumi looks up anime subjects through the bgm.tv JSON API.
type Bangumi struct {
	client *Client
	logger *slog.Logger

	// BaseURL is overridable for tests.
	BaseURL string
}

// NewBangumi builds the Bangumi adapter.
func NewBangumi(client *Client) *Bangumi {
	return &Bangumi{client: client, logger: client.Logger(), BaseURL: bangumiBaseURL}
}

// Name identifies the adapter in logs.
func (b *Bangumi) Name() string { return "Bangumi" }

type bangumiSearchResponse struct {
	List []struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		NameCN string `json:"name_cn"`
	} `json:"list"`
}

type bangumiSubject struct {
	Summary string `json:"summary"`
}

// GetInfo searches every given name, with trailing bracketed katakana
// stripped from the queries, and merges the subject summary into the
// best match.
func (b *Bangumi) GetInfo(ctx context.Context, names ...string) *Info {
	queries := make([]string, 0, len(names))
	for _, name := range names {
		queries = append(queries, strings.TrimSpace(bracketedKatakana.ReplaceAllString(name, "")))
	}
	items := gather(ctx, b.search, "bgm_sid", 20, queries, b.logger, b.Name())
	sel := &matcher{
		source:   b.Name(),
		pkKey:    "bgm_sid",
		minRatio: 0.95,
		weights:  similarity.Weights{Contains: 0.07, Reverse: 0.3},
		nameKeys: []string{"name_ja", "name_zh"},
		logger:   b.logger,
	}
	best := sel.best(items, queries...)
	if best == nil {
		b.logger.Info("no matching result",
			logging.String(logging.FieldSource, b.Name()),
			logging.Any("names", queries))
		return NewInfo()
	}
	if detail := b.subjectDetail(ctx, best.GetString("bgm_sid")); detail != nil {
		best.Merge(detail)
	}
	return best
}

func (b *Bangumi) search(ctx context.Context, name string) ([]*Info, error) {
	var resp bangumiSearchResponse
	err := b.client.FetchJSON(ctx, b.BaseURL+"/search/subject/"+url.QueryEscape(name), url.Values{
		"type":        {"2"},
		"max_results": {"20"},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.List == nil {
		b.logger.Warn("incorrect search result",
			logging.String(logging.FieldSource, b.Name()),
			logging.String("name", name))
		return nil, nil
	}

	var items []*Info
	for _, subject := range resp.List {
		name := strings.TrimSpace(subject.Name)
		if subject.ID == 0 || name == "" {
			continue
		}
		info := NewInfo()
		info.Set("bgm_sid", subject.ID)
		info.Set("name_ja", name)
		if nameZH := strings.TrimSpace(subject.NameCN); nameZH != "" {
			info.Set("name_zh", nameZH)
		}
		items = append(items, info)
	}
	return items, nil
}

func (b *Bangumi) subjectDetail(ctx context.Context, sid string) *Info {
	var subject bangumiSubject
	if err := b.client.FetchJSON(ctx, b.BaseURL+"/subject/"+sid, nil, &subject); err != nil {
		b.logger.Warn("subject detail failed",
			logging.String(logging.FieldSource, b.Name()),
			logging.String("bgm_sid", sid),
			logging.Error(err))
		return nil
	}
	summary := strings.TrimSpace(subject.Summary)
	if summary == "" {
		return nil
	}
	info := NewInfo()
	info.Set("description", summary)
	return info
}
