package codes

import (
	"context"
	"sort"

	"alwaysattend/internal/config"
	"alwaysattend/internal/logging"
)

// Resolver walks the ranked source chain and merges results first-wins per
// slot label. Sources that error are skipped; the run proceeds on whatever
// the remaining sources deliver.
type Resolver struct {
	sources []Source
	mirror  *Mirror
}

// NewResolver builds the source chain from configuration. Only configured
// sources join the chain, already ordered by rank.
func NewResolver(cfg config.CodesConfig) *Resolver {
	r := &Resolver{}

	if len(cfg.Overrides) > 0 {
		r.sources = append(r.sources, &OverridesSource{Overrides: cfg.Overrides})
	}
	if len(cfg.Pairs) > 0 {
		r.sources = append(r.sources, &PairsSource{Pairs: cfg.Pairs})
	}
	if cfg.File != "" {
		r.sources = append(r.sources, &FileSource{Path: cfg.File})
	}
	if cfg.URL != "" {
		r.sources = append(r.sources, &URLSource{
			URL:     cfg.URL,
			Timeout: cfg.FetchTimeout(),
			Retries: cfg.FetchRetries,
		})
	}
	if cfg.BaseURL != "" {
		r.sources = append(r.sources, &AutoSource{
			Base:    cfg.BaseURL,
			Course:  cfg.Course,
			Week:    cfg.Week,
			Timeout: cfg.FetchTimeout(),
			Retries: cfg.FetchRetries,
		})
	}
	if cfg.DatabaseRoot != "" && cfg.Course != "" {
		r.sources = append(r.sources, &DatabaseSource{
			Root:   cfg.DatabaseRoot,
			Course: cfg.Course,
			Week:   cfg.Week,
		})
		if cfg.MirrorRepo != "" {
			r.mirror = &Mirror{
				Repo:   cfg.MirrorRepo,
				Branch: cfg.MirrorBranch,
				Dir:    cfg.DatabaseRoot,
			}
		}
	}
	return r
}

// Sources returns the configured chain in rank order.
func (r *Resolver) Sources() []Source { return r.sources }

// Resolve runs every configured source and merges their records. The first
// record seen for a slot label wins; within a single source a dated record
// beats an undated one for the same label. Output order is stable: ranked by
// source, then by the source's own ordering.
func (r *Resolver) Resolve(ctx context.Context) ([]Record, error) {
	if r.mirror != nil {
		if err := r.mirror.Sync(ctx); err != nil {
			logging.CodesWarn("code database sync failed, using local copy: %v", err)
		}
	}

	seen := make(map[string]int) // slot label -> index into merged
	var merged []Record

	for _, src := range r.sources {
		timer := logging.StartTimer(logging.CategoryCodes, "resolve "+src.Name())
		records, err := src.Resolve(ctx)
		timer.Stop()
		if err != nil {
			logging.CodesWarn("source %s (rank %d) skipped: %v", src.Name(), src.Rank(), err)
			continue
		}
		logging.Codes("source %s (rank %d) delivered %d records", src.Name(), src.Rank(), len(records))

		for _, rec := range records {
			idx, exists := seen[rec.Slot]
			if !exists {
				seen[rec.Slot] = len(merged)
				merged = append(merged, rec)
				continue
			}
			held := merged[idx]
			// Same-rank duplicates: a dated record is more specific than an
			// undated one. Across ranks the earlier (higher-priority) holds.
			if held.SourceRank == rec.SourceRank && held.Date == nil && rec.Date != nil {
				merged[idx] = rec
			}
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].SourceRank < merged[j].SourceRank
	})
	return merged, nil
}
