package models

import (
	"strings"

	"gorm.io/datatypes"
)

// Folder groups comics either by manual assignment or by match rules
type Folder struct {
	ID           uint                        `gorm:"primaryKey"`
	Name         string                      `gorm:"type:text;not null;uniqueIndex"`
	Auto         bool                        `gorm:"default:false"`
	NameIncludes datatypes.JSONSlice[string] `gorm:"type:text"`
	TagIncludes  datatypes.JSONSlice[string] `gorm:"type:text"`
}

// ComicFolder is a comic's membership in a folder
type ComicFolder struct {
	ComicTitle string `gorm:"primaryKey;type:text;index:idx_comic_folders_comic_title"`
	FolderID   uint   `gorm:"primaryKey;autoIncrement:false;index:idx_comic_folders_folder_id"`

	// Relationships
	Folder Folder `gorm:"foreignKey:FolderID;references:ID;constraint:OnDelete:CASCADE"`
}

// CleanTerms trims rule terms, drops empties and duplicates while keeping order.
func CleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out
}
