package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mwantia/comicshelf/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttachTag records a tag on a comic. Adding and removing are mutually
// exclusive, so attaching one drops the other.
func (s *SQLiteStore) AttachTag(ctx context.Context, title, name string, tagType models.TagType) error {
	name = strings.TrimSpace(name)
	if name == "" || !tagType.Valid() {
		return fmt.Errorf("invalid tag %q of type %q: %w", name, tagType, ErrInvalid)
	}

	return s.transaction(ctx, "attach tag", func(tx *gorm.DB) error {
		if _, err := loadComic(tx, title); err != nil {
			return err
		}
		tagID, err := ensureTag(tx, name)
		if err != nil {
			return err
		}

		var opposite models.TagType
		switch tagType {
		case models.TagAdded:
			opposite = models.TagRemoved
		case models.TagRemoved:
			opposite = models.TagAdded
		}
		if opposite != "" {
			err := tx.Where("comic_title = ? AND tag_id = ? AND type = ?", title, tagID, opposite).
				Delete(&models.ComicTag{}).Error
			if err != nil {
				return err
			}
		}

		return insertComicTags(tx, []models.ComicTag{{ComicTitle: title, TagID: tagID, Type: tagType}})
	})
}

func (s *SQLiteStore) DetachTag(ctx context.Context, title, name string, tagType models.TagType) error {
	return s.transaction(ctx, "detach tag", func(tx *gorm.DB) error {
		var tag models.Tag
		err := tx.Where("name = ?", strings.TrimSpace(name)).First(&tag).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return tx.Where("comic_title = ? AND tag_id = ? AND type = ?", title, tag.ID, tagType).
			Delete(&models.ComicTag{}).Error
	})
}

func (s *SQLiteStore) ListTagAssignments(ctx context.Context) ([]models.TagAssignment, error) {
	var rows []models.TagAssignment
	err := s.db.WithContext(ctx).Table("comic_tags").
		Select("comic_tags.comic_title AS comic_title, tags.name AS name, comic_tags.type AS type").
		Joins("JOIN tags ON tags.id = comic_tags.tag_id").
		Order("comic_tags.comic_title").
		Scan(&rows).Error
	return rows, translate("list tag assignments", err)
}

func ensureTag(tx *gorm.DB, name string) (uint, error) {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Tag{Name: name}).Error
	if err != nil {
		return 0, err
	}
	var tag models.Tag
	if err := tx.Where("name = ?", name).First(&tag).Error; err != nil {
		return 0, err
	}
	return tag.ID, nil
}

func insertComicTags(tx *gorm.DB, rows []models.ComicTag) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// replaceSourceTags swaps the source-typed tags of a comic for names.
// Added and removed tags are left untouched.
func replaceSourceTags(tx *gorm.DB, title string, names []string) error {
	err := tx.Where("comic_title = ? AND type = ?", title, models.TagSource).Delete(&models.ComicTag{}).Error
	if err != nil {
		return err
	}

	var rows []models.ComicTag
	for _, name := range models.CleanTerms(names) {
		tagID, err := ensureTag(tx, name)
		if err != nil {
			return err
		}
		rows = append(rows, models.ComicTag{ComicTitle: title, TagID: tagID, Type: models.TagSource})
	}
	return insertComicTags(tx, rows)
}
