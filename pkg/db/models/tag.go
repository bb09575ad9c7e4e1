package models

// TagType records where a comic/tag association came from.
type TagType string

const (
	TagSource  TagType = "source"
	TagAdded   TagType = "added"
	TagRemoved TagType = "removed"
)

func (t TagType) Valid() bool {
	switch t {
	case TagSource, TagAdded, TagRemoved:
		return true
	}
	return false
}

// Tag is a globally unique tag name
type Tag struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"type:text;not null;uniqueIndex"`
}

// ComicTag attaches a tag to a comic with a provenance type
type ComicTag struct {
	ComicTitle string  `gorm:"primaryKey;type:text;index:idx_comic_tags_comic_title"`
	TagID      uint    `gorm:"primaryKey;autoIncrement:false;index:idx_comic_tags_tag_id"`
	Type       TagType `gorm:"primaryKey;type:text"`

	// Relationships
	Tag Tag `gorm:"foreignKey:TagID;references:ID;constraint:OnDelete:CASCADE"`
}

// TagAssignment is a flattened (comic, tag name, type) row.
type TagAssignment struct {
	ComicTitle string
	Name       string
	Type       TagType
}
