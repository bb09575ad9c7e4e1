package models

import (
	"time"
)

// Comic is a catalog entry keyed by its title, which is also the base name
// of the local archive file.
type Comic struct {
	Title       string    `gorm:"primaryKey;type:text"`
	DisplayName string    `gorm:"type:text;index:idx_comics_display_name"`
	IsFavorite  bool      `gorm:"default:false;index:idx_comics_is_favorite"`
	CurrentPage int       `gorm:"default:0"`
	TotalPages  int       `gorm:"default:0"`
	DateAdded   time.Time `gorm:"index:idx_comics_date_added"`

	// Local provenance
	LocalPath         *string `gorm:"type:text;index:idx_comics_local_path"`
	LocalSourceFolder *string `gorm:"type:text"`
	CoverThumbnail    *string `gorm:"type:text"`
	CoverMedium       *string `gorm:"type:text"`
	CoverLarge        *string `gorm:"type:text"`

	// Online provenance
	OnlineURL      *string `gorm:"type:text"`
	OnlineCoverURL *string `gorm:"type:text"`

	// Relationships
	Tags    []ComicTag    `gorm:"foreignKey:ComicTitle;references:Title;constraint:OnDelete:CASCADE"`
	Folders []ComicFolder `gorm:"foreignKey:ComicTitle;references:Title;constraint:OnDelete:CASCADE"`
}

// LocalInfo is the file-backed provenance block.
type LocalInfo struct {
	Path         string
	SourceFolder string
	Covers       *CoverSet
}

// CoverSet holds the web paths of the three cover renditions.
type CoverSet struct {
	Thumbnail string
	Medium    string
	Large     string
}

// OnlineInfo is the provenance block pushed in by online ingestion.
type OnlineInfo struct {
	URL      string
	CoverURL string
}

func (c *Comic) HasLocal() bool {
	return c.LocalPath != nil && *c.LocalPath != ""
}

func (c *Comic) HasOnline() bool {
	return c.OnlineURL != nil && *c.OnlineURL != ""
}

// Local returns the local provenance block or nil.
func (c *Comic) Local() *LocalInfo {
	if !c.HasLocal() {
		return nil
	}
	info := &LocalInfo{
		Path:         *c.LocalPath,
		SourceFolder: deref(c.LocalSourceFolder),
	}
	if c.CoverThumbnail != nil && *c.CoverThumbnail != "" {
		info.Covers = &CoverSet{
			Thumbnail: *c.CoverThumbnail,
			Medium:    deref(c.CoverMedium),
			Large:     deref(c.CoverLarge),
		}
	}
	return info
}

// Covers returns the recorded cover renditions or nil.
func (c *Comic) Covers() *CoverSet {
	if local := c.Local(); local != nil {
		return local.Covers
	}
	return nil
}

// Online returns the online provenance block or nil.
func (c *Comic) Online() *OnlineInfo {
	if !c.HasOnline() {
		return nil
	}
	return &OnlineInfo{
		URL:      *c.OnlineURL,
		CoverURL: deref(c.OnlineCoverURL),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns nil for empty strings.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
