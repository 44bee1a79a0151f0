package catalog

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DefaultNotePrice is assigned to products discovered in Drive.
const DefaultNotePrice = 10.0

var moduleCode = regexp.MustCompile(`^[A-Za-z]{2,4}\d{4}[A-Za-z]?\b`)

// DriveFolder is a Drive folder holding the files of one note.
type DriveFolder struct {
	ID          string
	Name        string
	Description string
}

// DriveSync turns the sub-folders of a master Drive folder into catalog products.
type DriveSync struct {
	files *drive.FilesService
}

// NewDriveSync builds a read-only Drive client. opts usually carry service account credentials.
func NewDriveSync(ctx context.Context, opts ...option.ClientOption) (*DriveSync, error) {
	opts = append([]option.ClientOption{option.WithScopes(drive.DriveReadonlyScope)}, opts...)
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("catalog: drive client: %w", err)
	}
	return &DriveSync{files: svc.Files}, nil
}

// Folders lists the non-trashed folders directly inside parentID, following pagination.
func (d *DriveSync) Folders(ctx context.Context, parentID string) ([]DriveFolder, error) {
	parentID = strings.TrimSpace(parentID)
	if parentID == "" {
		return nil, fmt.Errorf("catalog: master folder id is required")
	}
	q := fmt.Sprintf("'%s' in parents and mimeType = '%s' and trashed = false", strings.ReplaceAll(parentID, "'", `\'`), folderMimeType)
	var out []DriveFolder
	err := d.files.List().
		Q(q).
		Fields("nextPageToken, files(id, name, description)").
		PageSize(200).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				out = append(out, DriveFolder{ID: f.Id, Name: f.Name, Description: f.Description})
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("catalog: list drive folders: %w", err)
	}
	return out, nil
}

// Products lists parentID and converts every folder, sorted by name.
func (d *DriveSync) Products(ctx context.Context, parentID string) ([]Product, error) {
	folders, err := d.Folders(ctx, parentID)
	if err != nil {
		return nil, err
	}
	products := make([]Product, 0, len(folders))
	for _, f := range folders {
		products = append(products, ProductFromFolder(f))
	}
	sort.SliceStable(products, func(i, j int) bool { return products[i].Name < products[j].Name })
	return products, nil
}

// ProductFromFolder maps a Drive folder to a note at the default price.
func ProductFromFolder(f DriveFolder) Product {
	name := strings.TrimSpace(f.Name)
	desc := strings.TrimSpace(f.Description)
	if desc == "" {
		desc = "No description available."
	}
	return Product{
		ID:             f.ID,
		Code:           strings.ToUpper(moduleCode.FindString(name)),
		Name:           name,
		Description:    desc,
		Price:          DefaultNotePrice,
		Category:       "Note",
		Tags:           []string{"notes", "auto-generated"},
		Image:          "https://placehold.co/600x400/000000/FFFFFF?text=" + url.QueryEscape(name),
		FilterCategory: GuessFilter(name),
		GoogleDriveID:  f.ID,
	}
}

// GuessFilter picks the filter category named in a folder name, defaulting to
// "Technical Elective".
func GuessFilter(name string) string {
	lower := strings.ToLower(name)
	for _, f := range filters {
		if f == FilterAll || f == "Others" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(f)) {
			return f
		}
	}
	return "Technical Elective"
}
