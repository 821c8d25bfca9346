package sources

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"boorubot/internal/logging"
	"boorubot/internal/similarity"
)

const (
	kgsBaseURL   = "https://kgsearch.googleapis.com"
	kgsEntityURI = "http://g.co/kg/"

	kgsMinResultScore = 20
)

var kgsLanguages = []string{"zh", "ja", "en"}

// KGS looks up entities in the Google Knowledge Graph Search API. Two
// flavors exist: a person search used for artists and a thing search
// used as a last-resort for works. Both prefer Chinese values, then
// Japanese, then English.
type KGS struct {
	client *Client
	logger *slog.Logger
	apiKey string

	excludeTypes      []string
	descriptionFilter []string

	// BaseURL is overridable for tests.
	BaseURL string
}

// NewKGSPerson builds the person-flavored Knowledge Graph adapter.
// Candidates must look like animators: location and organization types
// are excluded and the description has to mention animation work.
func NewKGSPerson(client *Client, apiKey string) *KGS {
	return &KGS{
		client:            client,
		logger:            client.Logger(),
		apiKey:            apiKey,
		excludeTypes:      []string{"City", "Event", "Organization", "Place"},
		descriptionFilter: []string{"动画师", "動畫師", "アニメーター", "Animator"},
		BaseURL:           kgsBaseURL,
	}
}

// NewKGSThing builds the thing-flavored Knowledge Graph adapter used
// for works; people are excluded along with locations and events.
func NewKGSThing(client *Client, apiKey string) *KGS {
	return &KGS{
		client:       client,
		logger:       client.Logger(),
		apiKey:       apiKey,
		excludeTypes: []string{"Person", "City", "Event", "Organization", "Place"},
		BaseURL:      kgsBaseURL,
	}
}

// Name identifies the adapter in logs.
func (k *KGS) Name() string { return "Google KGS" }

// langValue is one localized value; the API serves either single
// objects or arrays, so the list form normalizes both.
type langValue struct {
	Language    string `json:"@language"`
	Value       string `json:"@value"`
	InLanguage  string `json:"inLanguage"`
	ArticleBody string `json:"articleBody"`
	URL         string `json:"url"`
}

type langValues []langValue

func (l *langValues) UnmarshalJSON(data []byte) error {
	var list []langValue
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}
	var single langValue
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	*l = langValues{single}
	return nil
}

type kgsResult struct {
	ID                  string     `json:"@id"`
	Types               []string   `json:"@type"`
	Name                langValues `json:"name"`
	Description         langValues `json:"description"`
	DetailedDescription langValues `json:"detailedDescription"`
}

type kgsSearchResponse struct {
	ItemListElement []struct {
		Result      kgsResult `json:"result"`
		ResultScore float64   `json:"resultScore"`
	} `json:"itemListElement"`
}

// GetInfo searches every given name and returns the best entity match.
func (k *KGS) GetInfo(ctx context.Context, names ...string) *Info {
	items := gather(ctx, k.search, "kgs_url", 5, names, k.logger, k.Name())
	sel := &matcher{
		source:   k.Name(),
		pkKey:    "kgs_url",
		minRatio: 0.93,
		weights:  similarity.Weights{Contains: 0.07, Reverse: 0.3},
		logger:   k.logger,
	}
	best := sel.best(items, names...)
	if best == nil {
		k.logger.Info("no matching result",
			logging.String(logging.FieldSource, k.Name()),
			logging.Any("names", names))
		return NewInfo()
	}
	return best
}

func (k *KGS) search(ctx context.Context, name string) ([]*Info, error) {
	var resp kgsSearchResponse
	err := k.client.FetchJSON(ctx, k.BaseURL+"/v1/entities:search", url.Values{
		"key":       {k.apiKey},
		"query":     {name},
		"languages": {strings.Join(kgsLanguages, ",")},
		"limit":     {strconv.Itoa(5)},
	}, &resp)
	if err != nil {
		return nil, err
	}

	var items []*Info
	for _, element := range resp.ItemListElement {
		result := element.Result
		info := NewInfo()
		info.Set("kgs_url", kgsEntityURI+strings.TrimPrefix(result.ID, "kg:/"))

		if element.ResultScore < kgsMinResultScore {
			k.logger.Debug("result score too low",
				logging.String(logging.FieldSource, k.Name()),
				logging.String("kgs_id", result.ID))
			continue
		}
		if k.hasExcludedType(result.Types) {
			k.logger.Debug("excluded entity type",
				logging.String(logging.FieldSource, k.Name()),
				logging.String("kgs_id", result.ID))
			continue
		}

		descriptions := pickByLanguage(result.Description, func(v langValue) string { return v.Language })
		if len(k.descriptionFilter) > 0 && !k.descriptionMatches(descriptions) {
			k.logger.Debug("filtered by description",
				logging.String(logging.FieldSource, k.Name()),
				logging.String("kgs_id", result.ID))
			continue
		}
		if len(descriptions) > 0 {
			info.Set("description", descriptions[0].value.Value)
		}

		for _, picked := range pickByLanguage(result.Name, func(v langValue) string { return v.Language }) {
			info.Set("name_"+picked.language, picked.value.Value)
		}

		wikis := pickByLanguage(result.DetailedDescription, func(v langValue) string { return v.InLanguage })
		if len(wikis) > 0 {
			if body := wikis[0].value.ArticleBody; body != "" {
				info.Set("description", body)
			}
			for _, picked := range wikis {
				if picked.value.URL != "" {
					info.Set("wiki_"+picked.language, picked.value.URL)
				}
			}
		}
		items = append(items, info)
	}
	return items, nil
}

func (k *KGS) hasExcludedType(types []string) bool {
	for _, t := range types {
		for _, excluded := range k.excludeTypes {
			if t == excluded {
				return true
			}
		}
	}
	return false
}

func (k *KGS) descriptionMatches(descriptions []pickedValue) bool {
	var joined strings.Builder
	for i, d := range descriptions {
		if i > 0 {
			joined.WriteByte(',')
		}
		joined.WriteString(d.value.Value)
	}
	summary := joined.String()
	for _, marker := range k.descriptionFilter {
		if strings.Contains(summary, marker) {
			return true
		}
	}
	return false
}

type pickedValue struct {
	language string
	value    langValue
}

// pickByLanguage selects at most one value per preferred language, in
// preference order. Chinese accepts the Taiwan and Hong Kong variants.
// A value consumed for one language is not reconsidered for the next.
func pickByLanguage(values langValues, langOf func(langValue) string) []pickedValue {
	pool := make([]langValue, len(values))
	copy(pool, values)
	var picked []pickedValue
	for _, want := range kgsLanguages {
		accepted := []string{want}
		if want == "zh" {
			accepted = append(accepted, "zh-TW", "zh-HK")
		}
		found := false
		for _, lang := range accepted {
			for i, v := range pool {
				if langOf(v) == lang && (v.Value != "" || v.ArticleBody != "" || v.URL != "") {
					picked = append(picked, pickedValue{language: want, value: v})
					pool = append(pool[:i], pool[i+1:]...)
					found = true
					break
				}
			}
			if found {
				break
			}
		}
	}
	return picked
}
