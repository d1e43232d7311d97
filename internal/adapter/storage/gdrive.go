package storage

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/semmidev/dbkeeper/internal/config"
)

type GDriveStorage struct {
	service  *drive.Service
	folderID string
}

// NewGDrive accepts a service account key or an authorized user file as
// produced by "dbkeeper auth gdrive".
func NewGDrive(ctx context.Context, cfg *config.UploadTarget) (*GDriveStorage, error) {
	service, err := drive.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveStorage{
		service:  service,
		folderID: cfg.FolderID,
	}, nil
}

func (g *GDriveStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileMetadata := &drive.File{
		Name:    remoteName,
		Parents: []string{g.folderID},
	}

	_, err = g.service.Files.Create(fileMetadata).
		Media(file).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w", err)
	}

	return nil
}

func (g *GDriveStorage) List(ctx context.Context) ([]string, error) {
	var files []string
	err := g.each(ctx, folderQuery(g.folderID), func(f *drive.File) {
		files = append(files, f.Name)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// Delete removes every file carrying remoteName; Drive allows duplicates.
func (g *GDriveStorage) Delete(ctx context.Context, remoteName string) error {
	query := folderQuery(g.folderID) + fmt.Sprintf(" and name = '%s'", escapeQuery(remoteName))

	var ids []string
	if err := g.each(ctx, query, func(f *drive.File) { ids = append(ids, f.Id) }); err != nil {
		return fmt.Errorf("failed to find file: %w", err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("file not found: %s", remoteName)
	}

	for _, id := range ids {
		if err := g.service.Files.Delete(id).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to delete file: %w", err)
		}
	}
	return nil
}

func (g *GDriveStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	query := folderQuery(g.folderID) +
		fmt.Sprintf(" and createdTime < '%s'", cutoffTime.UTC().Format(time.RFC3339))

	var files []string
	if err := g.each(ctx, query, func(f *drive.File) { files = append(files, f.Name) }); err != nil {
		return nil, fmt.Errorf("failed to list old files: %w", err)
	}
	return files, nil
}

func (g *GDriveStorage) each(ctx context.Context, query string, fn func(*drive.File)) error {
	return g.service.Files.List().
		Q(query).
		Fields("nextPageToken, files(id, name, createdTime)").
		PageSize(100).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				fn(f)
			}
			return nil
		})
}

func folderQuery(folderID string) string {
	return fmt.Sprintf("'%s' in parents and trashed = false", escapeQuery(folderID))
}

// escapeQuery quotes a value for a Drive query string literal.
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
