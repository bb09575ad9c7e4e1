package api

import (
	"time"

	"github.com/mwantia/comicshelf/pkg/db/models"
)

type coverView struct {
	Thumbnail string `json:"thumbnail"`
	Medium    string `json:"medium"`
	Large     string `json:"large"`
}

type localView struct {
	Path         string     `json:"path"`
	SourceFolder string     `json:"source_folder"`
	CoverPaths   *coverView `json:"cover_paths"`
}

type onlineView struct {
	URL      string `json:"url"`
	CoverURL string `json:"cover_url"`
}

type comicView struct {
	Title       string      `json:"title"`
	DisplayName string      `json:"displayName"`
	IsFavorite  bool        `json:"is_favorite"`
	CurrentPage int         `json:"currentPage"`
	TotalPages  int         `json:"totalPages"`
	DateAdded   time.Time   `json:"date_added"`
	LocalInfo   *localView  `json:"local_info"`
	OnlineInfo  *onlineView `json:"online_info"`
	SourceTags  []string    `json:"source_tags"`
	AddedTags   []string    `json:"added_tags"`
	RemovedTags []string    `json:"removed_tags"`
	Folders     []string    `json:"folders"`
}

func newComicView(c *models.Comic) comicView {
	v := comicView{
		Title:       c.Title,
		DisplayName: c.DisplayName,
		IsFavorite:  c.IsFavorite,
		CurrentPage: c.CurrentPage,
		TotalPages:  c.TotalPages,
		DateAdded:   c.DateAdded,
		SourceTags:  []string{},
		AddedTags:   []string{},
		RemovedTags: []string{},
		Folders:     []string{},
	}
	if local := c.Local(); local != nil {
		v.LocalInfo = &localView{Path: local.Path, SourceFolder: local.SourceFolder}
		if local.Covers != nil {
			v.LocalInfo.CoverPaths = &coverView{
				Thumbnail: local.Covers.Thumbnail,
				Medium:    local.Covers.Medium,
				Large:     local.Covers.Large,
			}
		}
	}
	if online := c.Online(); online != nil {
		v.OnlineInfo = &onlineView{URL: online.URL, CoverURL: online.CoverURL}
	}
	for _, tag := range c.Tags {
		switch tag.Type {
		case models.TagSource:
			v.SourceTags = append(v.SourceTags, tag.Tag.Name)
		case models.TagAdded:
			v.AddedTags = append(v.AddedTags, tag.Tag.Name)
		case models.TagRemoved:
			v.RemovedTags = append(v.RemovedTags, tag.Tag.Name)
		}
	}
	for _, membership := range c.Folders {
		v.Folders = append(v.Folders, membership.Folder.Name)
	}
	return v
}

type folderView struct {
	Name         string   `json:"name"`
	Auto         bool     `json:"auto"`
	NameIncludes []string `json:"name_includes"`
	TagIncludes  []string `json:"tag_includes"`
}

func newFolderView(f *models.Folder) folderView {
	v := folderView{
		Name:         f.Name,
		Auto:         f.Auto,
		NameIncludes: append([]string{}, f.NameIncludes...),
		TagIncludes:  append([]string{}, f.TagIncludes...),
	}
	return v
}
