package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mwantia/comicshelf/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultListLimit = 30
	maxListLimit     = 500
)

// Comic reads

func (s *SQLiteStore) GetComic(ctx context.Context, title string) (*models.Comic, error) {
	var comic models.Comic
	err := s.db.WithContext(ctx).Where("title = ?", title).First(&comic).Error
	if err != nil {
		return nil, translate("get comic", err)
	}
	return &comic, nil
}

func (s *SQLiteStore) GetComicDetails(ctx context.Context, title string) (*models.Comic, error) {
	var comic models.Comic
	err := s.db.WithContext(ctx).
		Preload("Tags.Tag").
		Preload("Folders.Folder").
		Where("title = ?", title).
		First(&comic).Error
	if err != nil {
		return nil, translate("get comic details", err)
	}
	return &comic, nil
}

func (s *SQLiteStore) FindComicByPath(ctx context.Context, path string) (*models.Comic, error) {
	var comic models.Comic
	err := s.db.WithContext(ctx).Where("local_path = ?", path).First(&comic).Error
	if err != nil {
		return nil, translate("find comic by path", err)
	}
	return &comic, nil
}

func (s *SQLiteStore) ListComics(ctx context.Context, query ComicQuery) ([]models.Comic, int64, error) {
	build := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&models.Comic{})

		switch query.Filter {
		case "", FilterAll:
		case FilterFavorites:
			q = q.Where("is_favorite = ?", true)
		case FilterWeb:
			q = q.Where(hasOnline)
		case FilterDownloaded:
			q = q.Where(hasLocal)
		case FilterUndownloaded:
			q = q.Where(hasOnline).Where(noLocal)
		default:
			members := s.db.Table("comic_folders").
				Select("comic_folders.comic_title").
				Joins("JOIN folders ON folders.id = comic_folders.folder_id").
				Where("folders.name = ?", string(query.Filter))
			q = q.Where("title IN (?)", members)
		}

		if search := strings.TrimSpace(query.Search); search != "" {
			pattern := "%" + search + "%"
			tagged := s.db.Table("comic_tags").
				Select("comic_tags.comic_title").
				Joins("JOIN tags ON tags.id = comic_tags.tag_id").
				Where("comic_tags.type IN ?", []models.TagType{models.TagSource, models.TagAdded}).
				Where("tags.name LIKE ?", pattern)
			q = q.Where("display_name LIKE ? OR title IN (?)", pattern, tagged)
		}
		return q
	}

	var total int64
	if err := build().Count(&total).Error; err != nil {
		return nil, 0, translate("count comics", err)
	}

	column := "date_added"
	if query.SortBy == "name" {
		column = "display_name"
	}
	desc := !strings.EqualFold(query.SortOrder, "asc")

	limit := query.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := query.Offset
	if offset < 0 {
		offset = 0
	}

	var comics []models.Comic
	err := build().
		Preload("Tags.Tag").
		Preload("Folders.Folder").
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: desc}).
		Order("title").
		Limit(limit).
		Offset(offset).
		Find(&comics).Error
	if err != nil {
		return nil, 0, translate("list comics", err)
	}
	return comics, total, nil
}

func (s *SQLiteStore) ListLocalComics(ctx context.Context) ([]models.Comic, error) {
	var comics []models.Comic
	err := s.db.WithContext(ctx).Where(hasLocal).Order("title").Find(&comics).Error
	return comics, translate("list local comics", err)
}

func (s *SQLiteStore) ListTitles(ctx context.Context) ([]string, error) {
	var titles []string
	err := s.db.WithContext(ctx).Model(&models.Comic{}).Order("title").Pluck("title", &titles).Error
	return titles, translate("list titles", err)
}

func (s *SQLiteStore) LocalPaths(ctx context.Context) (map[string]struct{}, error) {
	var paths []string
	err := s.db.WithContext(ctx).Model(&models.Comic{}).Where(hasLocal).Pluck("local_path", &paths).Error
	if err != nil {
		return nil, translate("list local paths", err)
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*ComicStats, error) {
	stats := &ComicStats{Folders: make(map[string]int64)}
	db := s.db.WithContext(ctx)

	counts := []struct {
		dst   *int64
		query func(*gorm.DB) *gorm.DB
	}{
		{&stats.All, func(q *gorm.DB) *gorm.DB { return q }},
		{&stats.Favorites, func(q *gorm.DB) *gorm.DB { return q.Where("is_favorite = ?", true) }},
		{&stats.Web, func(q *gorm.DB) *gorm.DB { return q.Where(hasOnline) }},
		{&stats.Downloaded, func(q *gorm.DB) *gorm.DB { return q.Where(hasLocal) }},
		{&stats.Undownloaded, func(q *gorm.DB) *gorm.DB { return q.Where(hasOnline).Where(noLocal) }},
	}
	for _, c := range counts {
		if err := c.query(db.Model(&models.Comic{})).Count(c.dst).Error; err != nil {
			return nil, translate("count stats", err)
		}
	}

	var rows []struct {
		Name  string
		Count int64
	}
	err := db.Table("folders").
		Select("folders.name AS name, COUNT(comic_folders.comic_title) AS count").
		Joins("JOIN comic_folders ON comic_folders.folder_id = folders.id").
		Group("folders.name").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("count folder stats", err)
	}
	for _, row := range rows {
		stats.Folders[row.Name] = row.Count
	}
	return stats, nil
}

// Provenance

func (s *SQLiteStore) AddLocal(ctx context.Context, title string, local models.LocalInfo, now time.Time) (AddLocalResult, error) {
	result := LocalUnchanged
	err := s.transaction(ctx, "add local comic", func(tx *gorm.DB) error {
		existing, err := loadComic(tx, title)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			comic := models.Comic{
				Title:             title,
				DisplayName:       title,
				DateAdded:         now,
				LocalPath:         models.StringPtr(local.Path),
				LocalSourceFolder: models.StringPtr(local.SourceFolder),
			}
			if local.Covers != nil {
				comic.CoverThumbnail = models.StringPtr(local.Covers.Thumbnail)
				comic.CoverMedium = models.StringPtr(local.Covers.Medium)
				comic.CoverLarge = models.StringPtr(local.Covers.Large)
			}
			if err := tx.Omit(clause.Associations).Create(&comic).Error; err != nil {
				return err
			}
			result = LocalInserted
			return nil
		}
		if err != nil {
			return err
		}
		if existing.HasLocal() {
			return nil
		}

		result = LocalAttached
		return tx.Model(&models.Comic{}).Where("title = ?", title).Updates(localColumns(local)).Error
	})
	if err != nil {
		return LocalUnchanged, err
	}
	return result, nil
}

func (s *SQLiteStore) AttachCovers(ctx context.Context, title string, covers models.CoverSet) error {
	return s.transaction(ctx, "attach covers", func(tx *gorm.DB) error {
		res := tx.Model(&models.Comic{}).
			Where("title = ?", title).
			Where(hasLocal).
			Updates(map[string]any{
				"cover_thumbnail": covers.Thumbnail,
				"cover_medium":    covers.Medium,
				"cover_large":     covers.Large,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("comic %q has no local provenance: %w", title, ErrNotFound)
		}
		return nil
	})
}

// ReleaseLocal drops a comic's local provenance. The row is deleted when no
// online provenance remains.
func (s *SQLiteStore) ReleaseLocal(ctx context.Context, title string) (bool, error) {
	deleted := false
	err := s.transaction(ctx, "release local comic", func(tx *gorm.DB) error {
		comic, err := loadComic(tx, title)
		if err != nil {
			return err
		}
		if !comic.HasOnline() {
			deleted = true
			return deleteComicRows(tx, []string{title})
		}
		return tx.Model(&models.Comic{}).Where("title = ?", title).Updates(clearedLocalColumns()).Error
	})
	return deleted, err
}

func (s *SQLiteStore) RelocateLocal(ctx context.Context, moves []LocalMove) error {
	if len(moves) == 0 {
		return nil
	}
	return s.transaction(ctx, "relocate local comics", func(tx *gorm.DB) error {
		for _, move := range moves {
			err := tx.Model(&models.Comic{}).Where("title = ?", move.Title).Updates(map[string]any{
				"local_path":          move.Path,
				"local_source_folder": nullable(move.SourceFolder),
			}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// RenameComic moves a comic and every tag and folder row to newTitle in one
// transaction. When newTitle names an online-only comic the two are merged;
// a newTitle that already has local provenance is a conflict.
func (s *SQLiteStore) RenameComic(ctx context.Context, oldTitle, newTitle string, local models.LocalInfo) error {
	return s.transaction(ctx, "rename comic", func(tx *gorm.DB) error {
		old, err := loadComic(tx, oldTitle)
		if err != nil {
			return err
		}
		if oldTitle == newTitle {
			return tx.Model(&models.Comic{}).Where("title = ?", oldTitle).Updates(localColumns(local)).Error
		}

		target, err := loadComic(tx, newTitle)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			renamed := *old
			renamed.Title = newTitle
			if old.DisplayName == oldTitle {
				renamed.DisplayName = newTitle
			}
			renamed.Tags = nil
			renamed.Folders = nil
			applyLocal(&renamed, local)
			if err := tx.Omit(clause.Associations).Create(&renamed).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.ComicTag{}).Where("comic_title = ?", oldTitle).Update("comic_title", newTitle).Error; err != nil {
				return err
			}
			if err := tx.Model(&models.ComicFolder{}).Where("comic_title = ?", oldTitle).Update("comic_title", newTitle).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if target.HasLocal() {
				return fmt.Errorf("comic %q already has a local file: %w", newTitle, ErrConflict)
			}
			updates := localColumns(local)
			if old.IsFavorite {
				updates["is_favorite"] = true
			}
			if err := tx.Model(&models.Comic{}).Where("title = ?", newTitle).Updates(updates).Error; err != nil {
				return err
			}
			if err := moveAssociations(tx, oldTitle, newTitle); err != nil {
				return err
			}
		}

		return deleteComicRows(tx, []string{oldTitle})
	})
}

// MergeComics moves the local provenance of localTitle onto the online comic
// onlineTitle and removes localTitle. A non-nil covers replaces the recorded
// cover paths.
func (s *SQLiteStore) MergeComics(ctx context.Context, onlineTitle, localTitle string, covers *models.CoverSet) error {
	return s.transaction(ctx, "merge comics", func(tx *gorm.DB) error {
		local, err := loadComic(tx, localTitle)
		if err != nil {
			return err
		}
		if !local.HasLocal() {
			return fmt.Errorf("comic %q has no local file: %w", localTitle, ErrNotFound)
		}
		online, err := loadComic(tx, onlineTitle)
		if err != nil {
			return err
		}
		if !online.HasOnline() {
			return fmt.Errorf("comic %q has no online record: %w", onlineTitle, ErrNotFound)
		}
		if onlineTitle == localTitle {
			return nil
		}

		info := local.Local()
		if covers != nil {
			info.Covers = covers
		}
		if err := tx.Model(&models.Comic{}).Where("title = ?", onlineTitle).Updates(localColumns(*info)).Error; err != nil {
			return err
		}
		if err := moveAssociations(tx, localTitle, onlineTitle); err != nil {
			return err
		}
		return deleteComicRows(tx, []string{localTitle})
	})
}

func (s *SQLiteStore) UpsertOnline(ctx context.Context, title string, online models.OnlineInfo, sourceTags []string, now time.Time) error {
	return s.transaction(ctx, "upsert online comic", func(tx *gorm.DB) error {
		comic := models.Comic{
			Title:          title,
			DisplayName:    title,
			DateAdded:      now,
			OnlineURL:      models.StringPtr(online.URL),
			OnlineCoverURL: models.StringPtr(online.CoverURL),
		}
		err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "title"}},
			DoUpdates: clause.AssignmentColumns([]string{"online_url", "online_cover_url"}),
		}).Create(&comic).Error
		if err != nil {
			return err
		}
		if sourceTags == nil {
			return nil
		}
		return replaceSourceTags(tx, title, sourceTags)
	})
}

// PruneOnlineOnly deletes online-only comics whose titles are not in keep.
func (s *SQLiteStore) PruneOnlineOnly(ctx context.Context, keep map[string]struct{}) (int64, error) {
	var removed int64
	err := s.transaction(ctx, "prune online comics", func(tx *gorm.DB) error {
		var titles []string
		if err := tx.Model(&models.Comic{}).Where(hasOnline).Where(noLocal).Pluck("title", &titles).Error; err != nil {
			return err
		}
		var stale []string
		for _, title := range titles {
			if _, ok := keep[title]; !ok {
				stale = append(stale, title)
			}
		}
		if len(stale) == 0 {
			return nil
		}
		removed = int64(len(stale))
		return deleteComicRows(tx, stale)
	})
	return removed, err
}

func (s *SQLiteStore) DeleteComics(ctx context.Context, titles []string) (int64, error) {
	if len(titles) == 0 {
		return 0, nil
	}
	var deleted int64
	err := s.transaction(ctx, "delete comics", func(tx *gorm.DB) error {
		if err := deleteAssociations(tx, titles); err != nil {
			return err
		}
		res := tx.Where("title IN ?", titles).Delete(&models.Comic{})
		deleted = res.RowsAffected
		return res.Error
	})
	return deleted, err
}

func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	return s.transaction(ctx, "clear catalog", func(tx *gorm.DB) error {
		for _, table := range []string{"comic_folders", "comic_tags", "folders", "tags", "comics"} {
			if err := tx.Exec("DELETE FROM " + table).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Comic attributes

func (s *SQLiteStore) SetFavorite(ctx context.Context, titles []string, favorite *bool) error {
	if len(titles) == 0 {
		return nil
	}
	return s.transaction(ctx, "set favorite", func(tx *gorm.DB) error {
		q := tx.Model(&models.Comic{}).Where("title IN ?", titles)
		if favorite == nil {
			return q.Update("is_favorite", gorm.Expr("NOT is_favorite")).Error
		}
		return q.Update("is_favorite", *favorite).Error
	})
}

func (s *SQLiteStore) SetDisplayName(ctx context.Context, title, name string) error {
	return s.updateOne(ctx, "set display name", "title = ?", title, "display_name", name)
}

func (s *SQLiteStore) SetCurrentPage(ctx context.Context, path string, page int) error {
	return s.updateOne(ctx, "set current page", "local_path = ?", path, "current_page", page)
}

func (s *SQLiteStore) SetTotalPages(ctx context.Context, path string, pages int) error {
	return s.updateOne(ctx, "set total pages", "local_path = ?", path, "total_pages", pages)
}

func (s *SQLiteStore) updateOne(ctx context.Context, op, where string, key any, column string, value any) error {
	return s.transaction(ctx, op, func(tx *gorm.DB) error {
		res := tx.Model(&models.Comic{}).Where(where, key).Update(column, value)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Helpers

const (
	hasLocal  = "local_path IS NOT NULL AND local_path <> ''"
	noLocal   = "(local_path IS NULL OR local_path = '')"
	hasOnline = "online_url IS NOT NULL AND online_url <> ''"
)

func loadComic(tx *gorm.DB, title string) (*models.Comic, error) {
	var comic models.Comic
	if err := tx.Where("title = ?", title).First(&comic).Error; err != nil {
		return nil, err
	}
	return &comic, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func localColumns(local models.LocalInfo) map[string]any {
	columns := map[string]any{
		"local_path":          local.Path,
		"local_source_folder": nullable(local.SourceFolder),
		"cover_thumbnail":     nil,
		"cover_medium":        nil,
		"cover_large":         nil,
	}
	if local.Covers != nil {
		columns["cover_thumbnail"] = nullable(local.Covers.Thumbnail)
		columns["cover_medium"] = nullable(local.Covers.Medium)
		columns["cover_large"] = nullable(local.Covers.Large)
	}
	return columns
}

func clearedLocalColumns() map[string]any {
	return map[string]any{
		"local_path":          nil,
		"local_source_folder": nil,
		"cover_thumbnail":     nil,
		"cover_medium":        nil,
		"cover_large":         nil,
	}
}

func applyLocal(comic *models.Comic, local models.LocalInfo) {
	comic.LocalPath = models.StringPtr(local.Path)
	comic.LocalSourceFolder = models.StringPtr(local.SourceFolder)
	comic.CoverThumbnail, comic.CoverMedium, comic.CoverLarge = nil, nil, nil
	if local.Covers != nil {
		comic.CoverThumbnail = models.StringPtr(local.Covers.Thumbnail)
		comic.CoverMedium = models.StringPtr(local.Covers.Medium)
		comic.CoverLarge = models.StringPtr(local.Covers.Large)
	}
}

func moveAssociations(tx *gorm.DB, from, to string) error {
	if err := tx.Exec(
		"INSERT OR IGNORE INTO comic_tags (comic_title, tag_id, type) SELECT ?, tag_id, type FROM comic_tags WHERE comic_title = ?",
		to, from).Error; err != nil {
		return err
	}
	return tx.Exec(
		"INSERT OR IGNORE INTO comic_folders (comic_title, folder_id) SELECT ?, folder_id FROM comic_folders WHERE comic_title = ?",
		to, from).Error
}

func deleteAssociations(tx *gorm.DB, titles []string) error {
	if err := tx.Where("comic_title IN ?", titles).Delete(&models.ComicTag{}).Error; err != nil {
		return err
	}
	return tx.Where("comic_title IN ?", titles).Delete(&models.ComicFolder{}).Error
}

func deleteComicRows(tx *gorm.DB, titles []string) error {
	if err := deleteAssociations(tx, titles); err != nil {
		return err
	}
	return tx.Where("title IN ?", titles).Delete(&models.Comic{}).Error
}
