package sources

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"boorubot/internal/logging"
	"boorubot/internal/similarity"
)

const annBaseURL = "http://www.animenewsnetwork.com"

var (
	annPeopleHref = regexp.MustCompile(`/encyclopedia/people\.php\?id=`)
	annDigits     = regexp.MustCompile(`\d+`)
	asciiWord     = regexp.MustCompile(`[\da-zA-Z]`)
)

// ANN looks up animators on Anime News Network. The search page links
// people with an italicized role description; the person page carries
// the native-script name.
type ANN struct {
	client *Client
	logger *slog.Logger

	// BaseURL is overridable for tests.
	BaseURL string
}

// NewANN builds the Anime News Network adapter.
func NewANN(client *Client) *ANN {
	return &ANN{client: client, logger: client.Logger(), BaseURL: annBaseURL}
}

// Name identifies the adapter in logs.
func (a *ANN) Name() string { return "Anime News Network" }

// GetInfo searches every given name and returns the best person match
// with the detail page merged in. Lookups degrade to an empty result.
func (a *ANN) GetInfo(ctx context.Context, names ...string) *Info {
	items := gather(ctx, a.search, "ann_pid", 10, names, a.logger, a.Name())
	m := &matcher{
		source:   a.Name(),
		pkKey:    "ann_pid",
		minRatio: 1.0,
		weights:  similarity.Weights{Contains: 0.1, Reverse: 0.1},
		nameKeys: []string{"name_en"},
		itemWeight: func(item *Info) float64 {
			if strings.Contains(strings.ToLower(item.GetString("description")), "animator") {
				return 0.03
			}
			return 0
		},
		logger: a.logger,
	}
	best := m.best(items, names...)
	if best == nil {
		a.logger.Info("no matching result",
			logging.String(logging.FieldSource, a.Name()),
			logging.Any("names", names))
		return NewInfo()
	}
	if detail := a.personDetail(ctx, best.GetString("ann_pid")); detail != nil {
		best.Merge(detail)
	}
	return best
}

func (a *ANN) search(ctx context.Context, name string) ([]*Info, error) {
	doc, err := a.client.FetchDoc(ctx, a.BaseURL+"/encyclopedia/search/name", url.Values{
		"only": {"person"},
		"q":    {name},
	})
	if err != nil {
		return nil, err
	}

	var items []*Info
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !annPeopleHref.MatchString(href) {
			return
		}
		info := NewInfo()
		if role := sel.Find("i"); role.Length() > 0 {
			if description := strings.TrimSpace(role.First().Text()); description != "" {
				info.Set("description", description)
			}
			role.Remove()
		}
		idText := annDigits.FindString(href)
		pid, err := strconv.Atoi(idText)
		if err != nil {
			return
		}
		info.Set("ann_pid", pid)
		info.Set("name_en", strings.TrimSpace(sel.Text()))
		items = append(items, info)
	})
	return items, nil
}

// personDetail fetches the person page for the native name. Names with
// no ASCII letters are a Japanese name plus a single separating space,
// which the page renders with a space the booru form does not use.
func (a *ANN) personDetail(ctx context.Context, pid string) *Info {
	doc, err := a.client.FetchDoc(ctx, a.BaseURL+"/encyclopedia/people.php", url.Values{"id": {pid}})
	if err != nil {
		a.logger.Warn("person detail failed",
			logging.String(logging.FieldSource, a.Name()),
			logging.String("ann_pid", pid),
			logging.Error(err))
		return nil
	}
	title := doc.Find("#page-title").First()
	if title.Length() == 0 {
		return nil
	}
	title.Find("h1").Remove()
	name := strings.TrimSpace(title.Text())
	if !asciiWord.MatchString(name) && strings.Count(name, " ") == 1 {
		name = strings.ReplaceAll(name, " ", "")
	}
	if name == "" {
		return nil
	}
	info := NewInfo()
	info.Set("name_ja", name)
	return info
}
