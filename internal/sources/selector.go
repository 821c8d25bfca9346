package sources

import (
	"context"
	"log/slog"

	"boorubot/internal/logging"
	"boorubot/internal/similarity"
)

// matcher scores candidates against the queried names and keeps the
// best one above a per-source threshold.
type matcher struct {
	source     string
	pkKey      string
	minRatio   float64
	weights    similarity.Weights
	nameKeys   []string              // empty means every "name"-prefixed key
	itemWeight func(*Info) float64
	logger     *slog.Logger
}

// best returns the highest scoring candidate, or nil when nothing
// clears the threshold. A winner that is not an exact match logs a
// warning so inexact matches can be audited later.
func (m *matcher) best(items []*Info, names ...string) *Info {
	maxRatio := 0.0
	var target *Info
	for _, item := range items {
		targetNames := item.NameValues(m.nameKeys...)
		ratio := 0.0
		for _, original := range names {
			for _, candidate := range targetNames {
				if score := similarity.Score(original, candidate, m.weights); score > ratio {
					ratio = score
				}
			}
		}
		if m.itemWeight != nil {
			ratio += m.itemWeight(item)
		}
		if ratio < m.minRatio {
			continue
		}
		if ratio > maxRatio {
			maxRatio = ratio
			target = item
		}
	}
	if target != nil && maxRatio > 0 && maxRatio < similarity.ExactMatch {
		m.logger.Warn("inexact match",
			logging.String(logging.FieldSource, m.source),
			logging.Any("names", names),
			logging.Float64("ratio", maxRatio),
			logging.String(m.pkKey, target.GetString(m.pkKey)))
	}
	return target
}

type searchFunc func(ctx context.Context, name string) ([]*Info, error)

// gather runs one search per queried name, caps each result list, and
// merges the lists deduplicating by primary key. The first sighting of
// a key decides its position; later sightings replace the candidate.
func gather(ctx context.Context, search searchFunc, pkKey string, cap int, names []string, logger *slog.Logger, source string) []*Info {
	order := make([]string, 0, cap)
	byPK := make(map[string]*Info)
	for _, name := range names {
		items, err := search(ctx, name)
		if err != nil {
			logger.Warn("search failed",
				logging.String(logging.FieldSource, source),
				logging.String("name", name),
				logging.Error(err))
			continue
		}
		if cap > 0 && len(items) > cap {
			items = items[:cap]
		}
		for _, item := range items {
			pk := item.GetString(pkKey)
			if _, seen := byPK[pk]; !seen {
				order = append(order, pk)
			}
			byPK[pk] = item
		}
	}
	out := make([]*Info, 0, len(order))
	for _, pk := range order {
		out = append(out, byPK[pk])
	}
	return out
}
