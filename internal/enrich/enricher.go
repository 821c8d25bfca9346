package enrich

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"boorubot/internal/config"
	"boorubot/internal/hub"
	"boorubot/internal/logging"
	"boorubot/internal/schema"
	"boorubot/internal/sources"
)

// Source is one reference-site adapter.
type Source interface {
	Name() string
	GetInfo(ctx context.Context, names ...string) *sources.Info
}

// Adapters bundles the sources the enricher consults. Fields left nil
// disable that site, which tests use to mock individual flows.
type Adapters struct {
	ANN       Source
	KGSPerson Source
	MAL       Source
	Bangumi   Source
	KGSThing  Source
	Atwiki    Source
	ASDB      Source
}

// DefaultAdapters wires every adapter against the live sites.
func DefaultAdapters(client *sources.Client, cfg *config.Config) Adapters {
	return Adapters{
		ANN:       sources.NewANN(client),
		KGSPerson: sources.NewKGSPerson(client, cfg.Sources.KGSAPIKey),
		MAL:       sources.NewMAL(client),
		Bangumi:   sources.NewBangumi(client),
		KGSThing:  sources.NewKGSThing(client, cfg.Sources.KGSAPIKey),
		Atwiki:    sources.NewAtwiki(client),
		ASDB:      sources.NewASDB(client),
	}
}

// Enricher updates one tag at a time.
type Enricher struct {
	store    *hub.Store
	adapters Adapters
	logger   *slog.Logger
}

// New builds an enricher over the given store and adapters.
func New(store *hub.Store, adapters Adapters, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Enricher{
		store:    store,
		adapters: adapters,
		logger:   logger.With(logging.String(logging.FieldComponent, "enrich")),
	}
}

// gathered is one adapter's result plus the attribute codes the merge
// policy lets it overwrite.
type gathered struct {
	info      *sources.Info
	overwrite map[string]bool
}

// UpdateTagInfo runs the lookup flow for one tag and persists whatever
// was collected. Lookups that fail contribute nothing; the save still
// happens so partial results are never lost.
func (e *Enricher) UpdateTagInfo(ctx context.Context, tagName string) error {
	tag, err := e.store.GetTag(ctx, tagName)
	if err != nil {
		return err
	}

	var results []gathered
	switch tag.Type {
	case schema.TagArtist:
		results = e.gatherArtist(ctx, tag)
	case schema.TagCopyright:
		results = e.gatherCopyright(ctx, tag)
	default:
		return nil
	}
	// Reload so a concurrent edit between lookup and save is not
	// clobbered by the stale copy used for querying.
	fresh, err := e.store.GetTag(ctx, tagName)
	if err != nil {
		return err
	}
	// The structured results land before the wiki pass runs, so a
	// name_ja resolved in this run drives the Japanese-title lookups.
	e.apply(fresh, results)
	e.apply(fresh, e.gatherSecondary(ctx, fresh))
	return e.store.SaveTag(ctx, fresh, "")
}

func (e *Enricher) gatherArtist(ctx context.Context, tag *hub.Tag) []gathered {
	name := queryName(tag)
	var results []gathered
	queries := []string{name}
	if e.adapters.ANN != nil {
		annInfo := e.adapters.ANN.GetInfo(ctx, name)
		results = append(results, gathered{info: annInfo})
		if ja := annInfo.GetString("name_ja"); ja != "" {
			queries = append(queries, ja)
		}
	}
	if e.adapters.KGSPerson != nil {
		results = append(results, gathered{
			info:      e.adapters.KGSPerson.GetInfo(ctx, queries...),
			overwrite: map[string]bool{"description": true},
		})
	}
	return results
}

func (e *Enricher) gatherCopyright(ctx context.Context, tag *hub.Tag) []gathered {
	name := queryName(tag)
	var results []gathered

	if e.adapters.MAL != nil {
		malInfo := e.adapters.MAL.GetInfo(ctx, name)
		if !malInfo.Empty() {
			results = append(results, gathered{info: malInfo})
			if e.adapters.Bangumi != nil {
				queries := []string{}
				if ja := malInfo.GetString("name_ja"); ja != "" {
					queries = append(queries, ja)
				}
				queries = append(queries, name)
				results = append(results, gathered{
					info:      e.adapters.Bangumi.GetInfo(ctx, queries...),
					overwrite: map[string]bool{"name_ja": true},
				})
			}
		}
	}

	if collectedEmpty(results) && e.adapters.KGSThing != nil && e.fallbackAllowed(ctx, tag) {
		results = append(results, gathered{info: e.adapters.KGSThing.GetInfo(ctx, name)})
	}
	return results
}

// fallbackAllowed guards the thing search: short tag names and tags
// whose earliest post cites a real source URL are too ambiguous for a
// general knowledge-graph lookup.
func (e *Enricher) fallbackAllowed(ctx context.Context, tag *hub.Tag) bool {
	if len(tag.Name) <= 6 {
		return false
	}
	source, err := e.store.EarliestPostSource(ctx, tag.Name)
	if err != nil {
		e.logger.Warn("earliest post source lookup failed",
			logging.String(logging.FieldTag, tag.Name),
			logging.Error(err))
		return false
	}
	if len(source) < 10 {
		return true
	}
	parsed, err := url.Parse(source)
	return err != nil || parsed.Host == ""
}

func (e *Enricher) gatherSecondary(ctx context.Context, tag *hub.Tag) []gathered {
	if tag.Type != schema.TagArtist && tag.Type != schema.TagCopyright {
		return nil
	}
	name := tag.JaName()
	if name == "" {
		name = queryName(tag)
	}
	var results []gathered
	if e.adapters.Atwiki != nil {
		results = append(results, gathered{info: e.adapters.Atwiki.GetInfo(ctx, name)})
	}
	if tag.Type == schema.TagCopyright && e.adapters.ASDB != nil {
		results = append(results, gathered{info: e.adapters.ASDB.GetInfo(ctx, name)})
	}
	return results
}

// apply merges the gathered results into the tag in lookup order.
// Values that fail attribute validation are logged and skipped.
func (e *Enricher) apply(tag *hub.Tag, results []gathered) {
	reg := e.store.Registry()
	for _, r := range results {
		if r.info == nil {
			continue
		}
		for _, key := range r.info.Keys() {
			value, _ := r.info.Get(key)
			if value == nil || r.info.GetString(key) == "" {
				continue
			}
			if err := tag.SaveToDetail(reg, key, value, r.overwrite[key]); err != nil {
				e.logger.Warn("discarded attribute value",
					logging.String(logging.FieldTag, tag.Name),
					logging.String("code", key),
					logging.Error(err))
			}
		}
	}
}

func collectedEmpty(results []gathered) bool {
	for _, r := range results {
		if !r.info.Empty() {
			return false
		}
	}
	return true
}

func queryName(tag *hub.Tag) string {
	return strings.ReplaceAll(tag.Name, "_", " ")
}
