package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mwantia/comicshelf/pkg/db/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *SQLiteStore) CreateFolder(ctx context.Context, folder *models.Folder) error {
	folder.Name = strings.TrimSpace(folder.Name)
	if folder.Name == "" {
		return fmt.Errorf("folder name is required: %w", ErrInvalid)
	}
	folder.NameIncludes = datatypes.JSONSlice[string](models.CleanTerms(folder.NameIncludes))
	folder.TagIncludes = datatypes.JSONSlice[string](models.CleanTerms(folder.TagIncludes))

	return s.transaction(ctx, "create folder", func(tx *gorm.DB) error {
		if err := folderNameFree(tx, folder.Name); err != nil {
			return err
		}
		return tx.Create(folder).Error
	})
}

func (s *SQLiteStore) GetFolder(ctx context.Context, name string) (*models.Folder, error) {
	var folder models.Folder
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&folder).Error; err != nil {
		return nil, translate("get folder", err)
	}
	return &folder, nil
}

func (s *SQLiteStore) ListFolders(ctx context.Context) ([]models.Folder, error) {
	var folders []models.Folder
	err := s.db.WithContext(ctx).Order("name").Find(&folders).Error
	return folders, translate("list folders", err)
}

func (s *SQLiteStore) UpdateFolder(ctx context.Context, name string, patch FolderPatch) (*models.Folder, error) {
	var folder models.Folder
	err := s.transaction(ctx, "update folder", func(tx *gorm.DB) error {
		if err := tx.Where("name = ?", name).First(&folder).Error; err != nil {
			return err
		}

		updates := make(map[string]any)
		if patch.Name != nil {
			newName := strings.TrimSpace(*patch.Name)
			if newName == "" {
				return fmt.Errorf("folder name is required: %w", ErrInvalid)
			}
			if newName != folder.Name {
				if err := folderNameFree(tx, newName); err != nil {
					return err
				}
				updates["name"] = newName
			}
		}
		if patch.Auto != nil {
			updates["auto"] = *patch.Auto
		}
		if patch.NameIncludes != nil {
			updates["name_includes"] = datatypes.JSONSlice[string](models.CleanTerms(*patch.NameIncludes))
		}
		if patch.TagIncludes != nil {
			updates["tag_includes"] = datatypes.JSONSlice[string](models.CleanTerms(*patch.TagIncludes))
		}
		if len(updates) == 0 {
			return nil
		}

		if err := tx.Model(&models.Folder{}).Where("id = ?", folder.ID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", folder.ID).First(&folder).Error
	})
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

func (s *SQLiteStore) DeleteFolder(ctx context.Context, name string) error {
	return s.transaction(ctx, "delete folder", func(tx *gorm.DB) error {
		var folder models.Folder
		if err := tx.Where("name = ?", name).First(&folder).Error; err != nil {
			return err
		}
		if err := tx.Where("folder_id = ?", folder.ID).Delete(&models.ComicFolder{}).Error; err != nil {
			return err
		}
		return tx.Delete(&folder).Error
	})
}

// AssignFolder adds titles to a folder, ignoring titles that are unknown or
// already members.
func (s *SQLiteStore) AssignFolder(ctx context.Context, titles []string, folderID uint) error {
	if len(titles) == 0 {
		return nil
	}
	return s.transaction(ctx, "assign folder", func(tx *gorm.DB) error {
		var folder models.Folder
		if err := tx.Where("id = ?", folderID).First(&folder).Error; err != nil {
			return err
		}

		var known []string
		if err := tx.Model(&models.Comic{}).Where("title IN ?", titles).Pluck("title", &known).Error; err != nil {
			return err
		}
		rows := make([]models.ComicFolder, 0, len(known))
		for _, title := range known {
			rows = append(rows, models.ComicFolder{ComicTitle: title, FolderID: folderID})
		}
		return insertComicFolders(tx, rows)
	})
}

func (s *SQLiteStore) RemoveFromAllFolders(ctx context.Context, titles []string) error {
	if len(titles) == 0 {
		return nil
	}
	return s.transaction(ctx, "remove from folders", func(tx *gorm.DB) error {
		return tx.Where("comic_title IN ?", titles).Delete(&models.ComicFolder{}).Error
	})
}

func (s *SQLiteStore) ListMemberships(ctx context.Context) ([]models.ComicFolder, error) {
	var rows []models.ComicFolder
	err := s.db.WithContext(ctx).Order("comic_title").Order("folder_id").Find(&rows).Error
	return rows, translate("list memberships", err)
}

// ApplyMemberships commits every change of one classification pass.
func (s *SQLiteStore) ApplyMemberships(ctx context.Context, changes []MembershipChange) error {
	if len(changes) == 0 {
		return nil
	}
	return s.transaction(ctx, "apply memberships", func(tx *gorm.DB) error {
		titles := make([]string, 0, len(changes))
		for _, change := range changes {
			titles = append(titles, change.Title)
		}
		var known []string
		if err := tx.Model(&models.Comic{}).Where("title IN ?", titles).Pluck("title", &known).Error; err != nil {
			return err
		}
		present := make(map[string]struct{}, len(known))
		for _, title := range known {
			present[title] = struct{}{}
		}

		for _, change := range changes {
			// Titles renamed or deleted since the pass read the catalog.
			if _, ok := present[change.Title]; !ok {
				continue
			}
			if len(change.Remove) > 0 {
				err := tx.Where("comic_title = ? AND folder_id IN ?", change.Title, change.Remove).
					Delete(&models.ComicFolder{}).Error
				if err != nil {
					return err
				}
			}
			rows := make([]models.ComicFolder, 0, len(change.Add))
			for _, id := range change.Add {
				rows = append(rows, models.ComicFolder{ComicTitle: change.Title, FolderID: id})
			}
			if err := insertComicFolders(tx, rows); err != nil {
				return err
			}
		}
		return nil
	})
}

func folderNameFree(tx *gorm.DB, name string) error {
	var existing models.Folder
	err := tx.Where("name = ?", name).First(&existing).Error
	if err == nil {
		return fmt.Errorf("folder %q already exists: %w", name, ErrConflict)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

func insertComicFolders(tx *gorm.DB, rows []models.ComicFolder) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}
