package library

import (
	"context"

	"github.com/mwantia/comicshelf/pkg/classify"
	"github.com/mwantia/comicshelf/pkg/db/models"
	"github.com/mwantia/comicshelf/pkg/db/store"
)

// Classify recomputes the auto-folder memberships of the whole catalog and
// commits every change in one transaction.
func (l *Library) Classify(ctx context.Context) error {
	l.classifyMu.Lock()
	defer l.classifyMu.Unlock()

	folders, err := l.store.ListFolders(ctx)
	if err != nil {
		return err
	}
	titles, err := l.store.ListTitles(ctx)
	if err != nil {
		return err
	}
	assignments, err := l.store.ListTagAssignments(ctx)
	if err != nil {
		return err
	}
	memberships, err := l.store.ListMemberships(ctx)
	if err != nil {
		return err
	}

	index := make(map[string]int, len(titles))
	inputs := make([]classify.Input, len(titles))
	for i, title := range titles {
		index[title] = i
		inputs[i].Title = title
	}
	for _, a := range assignments {
		i, ok := index[a.ComicTitle]
		if !ok {
			continue
		}
		switch a.Type {
		case models.TagSource:
			inputs[i].SourceTags = append(inputs[i].SourceTags, a.Name)
		case models.TagAdded:
			inputs[i].AddedTags = append(inputs[i].AddedTags, a.Name)
		case models.TagRemoved:
			inputs[i].RemovedTags = append(inputs[i].RemovedTags, a.Name)
		}
	}
	for _, m := range memberships {
		if i, ok := index[m.ComicTitle]; ok {
			inputs[i].Memberships = append(inputs[i].Memberships, m.FolderID)
		}
	}

	decisions := classify.New(folders).ClassifyAll(inputs)
	changes := make([]store.MembershipChange, 0, len(decisions))
	for _, d := range decisions {
		changes = append(changes, store.MembershipChange{
			Title:  d.Title,
			Remove: d.CurrentAuto,
			Add:    d.Matched,
		})
	}
	if len(changes) == 0 {
		return nil
	}

	if err := l.store.ApplyMemberships(ctx, changes); err != nil {
		return err
	}
	l.log.Debug("Classification updated %d comic(s)", len(changes))
	return nil
}
