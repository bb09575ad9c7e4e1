package store

import (
	"context"
	"time"

	"github.com/mwantia/comicshelf/pkg/db/models"
)

// CatalogStore defines the interface for catalog persistence. Every mutating
// method commits as a single transaction.
type CatalogStore interface {
	// Lifecycle
	Connect(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
	Health(ctx context.Context) error

	// Comic reads
	GetComic(ctx context.Context, title string) (*models.Comic, error)
	GetComicDetails(ctx context.Context, title string) (*models.Comic, error)
	FindComicByPath(ctx context.Context, path string) (*models.Comic, error)
	ListComics(ctx context.Context, query ComicQuery) ([]models.Comic, int64, error)
	ListLocalComics(ctx context.Context) ([]models.Comic, error)
	ListTitles(ctx context.Context) ([]string, error)
	LocalPaths(ctx context.Context) (map[string]struct{}, error)
	Stats(ctx context.Context) (*ComicStats, error)

	// Provenance
	AddLocal(ctx context.Context, title string, local models.LocalInfo, now time.Time) (AddLocalResult, error)
	AttachCovers(ctx context.Context, title string, covers models.CoverSet) error
	ReleaseLocal(ctx context.Context, title string) (deleted bool, err error)
	RelocateLocal(ctx context.Context, moves []LocalMove) error
	RenameComic(ctx context.Context, oldTitle, newTitle string, local models.LocalInfo) error
	MergeComics(ctx context.Context, onlineTitle, localTitle string, covers *models.CoverSet) error
	UpsertOnline(ctx context.Context, title string, online models.OnlineInfo, sourceTags []string, now time.Time) error
	PruneOnlineOnly(ctx context.Context, keep map[string]struct{}) (int64, error)
	DeleteComics(ctx context.Context, titles []string) (int64, error)
	ClearAll(ctx context.Context) error

	// Comic attributes
	SetFavorite(ctx context.Context, titles []string, favorite *bool) error
	SetDisplayName(ctx context.Context, title, name string) error
	SetCurrentPage(ctx context.Context, path string, page int) error
	SetTotalPages(ctx context.Context, path string, pages int) error

	// Tags
	AttachTag(ctx context.Context, title, name string, tagType models.TagType) error
	DetachTag(ctx context.Context, title, name string, tagType models.TagType) error
	ListTagAssignments(ctx context.Context) ([]models.TagAssignment, error)

	// Folders
	CreateFolder(ctx context.Context, folder *models.Folder) error
	GetFolder(ctx context.Context, name string) (*models.Folder, error)
	ListFolders(ctx context.Context) ([]models.Folder, error)
	UpdateFolder(ctx context.Context, name string, patch FolderPatch) (*models.Folder, error)
	DeleteFolder(ctx context.Context, name string) error
	AssignFolder(ctx context.Context, titles []string, folderID uint) error
	RemoveFromAllFolders(ctx context.Context, titles []string) error
	ListMemberships(ctx context.Context) ([]models.ComicFolder, error)
	ApplyMemberships(ctx context.Context, changes []MembershipChange) error
}

// AddLocalResult reports what AddLocal did to the catalog.
type AddLocalResult int

const (
	// LocalUnchanged means the title already had local provenance.
	LocalUnchanged AddLocalResult = iota
	// LocalInserted means a new local-only comic was created.
	LocalInserted
	// LocalAttached means local provenance was merged onto an online comic.
	LocalAttached
)

func (r AddLocalResult) String() string {
	switch r {
	case LocalInserted:
		return "inserted"
	case LocalAttached:
		return "attached"
	default:
		return "unchanged"
	}
}

// LocalMove rewrites one comic's local path and source folder.
type LocalMove struct {
	Title        string
	Path         string
	SourceFolder string
}

// MembershipChange replaces the auto-folder portion of one comic's memberships.
type MembershipChange struct {
	Title  string
	Remove []uint
	Add    []uint
}

// FolderPatch updates the given non-nil fields of a folder.
type FolderPatch struct {
	Name         *string
	Auto         *bool
	NameIncludes *[]string
	TagIncludes  *[]string
}

// ComicFilter selects a subset of the catalog.
type ComicFilter string

const (
	FilterAll          ComicFilter = "all"
	FilterFavorites    ComicFilter = "favorites"
	FilterWeb          ComicFilter = "web"
	FilterDownloaded   ComicFilter = "downloaded"
	FilterUndownloaded ComicFilter = "undownloaded"
)

// ComicQuery drives listing. Filter values other than the predefined ones
// are treated as folder names.
type ComicQuery struct {
	Search    string
	Filter    ComicFilter
	SortBy    string // "date" or "name"
	SortOrder string // "asc" or "desc"
	Limit     int
	Offset    int
}

type ComicStats struct {
	All          int64            `json:"all"`
	Favorites    int64            `json:"favorites"`
	Web          int64            `json:"web"`
	Downloaded   int64            `json:"downloaded"`
	Undownloaded int64            `json:"undownloaded"`
	Folders      map[string]int64 `json:"folders"`
}
