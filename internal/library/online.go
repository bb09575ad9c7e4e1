package library

import (
	"context"
	"slices"
	"strings"

	"github.com/mwantia/comicshelf/pkg/db/models"
)

// OnlinePayload is pushed by the browser companion script.
type OnlinePayload struct {
	// CoverURLs maps every tracked title to its cover URL.
	CoverURLs map[string]string `json:"comicSrcs"`
	// PageURLs maps titles to their page URL.
	PageURLs map[string]string `json:"comicLinks"`
	// Tags maps titles to their source tags.
	Tags map[string][]string `json:"comicTags"`
}

type SyncResult struct {
	Removed int64 `json:"removed"`
	Updated int   `json:"updated"`
}

// SyncOnline reconciles the online records with payload. Online-only comics
// missing from the payload are dropped, every title with a page URL is
// upserted and a non-empty tag list replaces its source tags.
func (l *Library) SyncOnline(ctx context.Context, payload OnlinePayload) (*SyncResult, error) {
	keep := make(map[string]struct{}, len(payload.CoverURLs))
	titles := make([]string, 0, len(payload.CoverURLs))
	for title := range payload.CoverURLs {
		keep[title] = struct{}{}
		titles = append(titles, title)
	}
	slices.Sort(titles)

	removed, err := l.store.PruneOnlineOnly(ctx, keep)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Removed: removed}
	for _, title := range titles {
		url := strings.TrimSpace(payload.PageURLs[title])
		if title == "" || url == "" {
			continue
		}

		var tags []string
		if list := models.CleanTerms(payload.Tags[title]); len(list) > 0 {
			tags = list
		}
		online := models.OnlineInfo{URL: url, CoverURL: payload.CoverURLs[title]}
		if err := l.upsertOnline(ctx, title, online, tags); err != nil {
			return nil, err
		}
		result.Updated++
	}

	if err := l.Classify(ctx); err != nil {
		return nil, err
	}
	l.log.Info("Online sync: %d updated, %d removed", result.Updated, result.Removed)
	return result, nil
}

func (l *Library) upsertOnline(ctx context.Context, title string, online models.OnlineInfo, tags []string) error {
	unlock := l.locks.Lock(title)
	defer unlock()

	return l.store.UpsertOnline(ctx, title, online, tags, l.now())
}
