// Package registry stores connection profiles and backup history in a single
// YAML catalog file. Every mutation rewrites the file atomically, so a crash
// mid-write leaves the previous catalog in place.
package registry

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// Sealer protects credentials at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

type Catalog struct {
	path   string
	sealer Sealer
	now    func() time.Time

	mu sync.Mutex
}

type catalogFile struct {
	Connections []connectionEntry `yaml:"connections"`
	Backups     []backupEntry     `yaml:"backups"`
}

type connectionEntry struct {
	ID         string    `yaml:"id"`
	Name       string    `yaml:"name"`
	Engine     string    `yaml:"engine"`
	Host       string    `yaml:"host"`
	Port       int       `yaml:"port"`
	Database   string    `yaml:"database"`
	Username   string    `yaml:"username"`
	Credential string    `yaml:"credential,omitempty"`
	CreatedAt  time.Time `yaml:"created_at"`
}

type backupEntry struct {
	Connection    string    `yaml:"connection"`
	Engine        string    `yaml:"engine"`
	Status        string    `yaml:"status"`
	FilePath      string    `yaml:"file_path"`
	FileSizeBytes int64     `yaml:"file_size_bytes,omitempty"`
	ErrorMessage  string    `yaml:"error_message,omitempty"`
	CreatedAt     time.Time `yaml:"created_at"`
	CompletedAt   time.Time `yaml:"completed_at"`
}

func New(path string, sealer Sealer) (*Catalog, error) {
	if path == "" {
		return nil, errors.New("catalog path is required")
	}
	if sealer == nil {
		return nil, errors.New("sealer is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create catalog directory")
	}
	return &Catalog{path: path, sealer: sealer, now: time.Now}, nil
}

func (c *Catalog) Path() string {
	return c.path
}

func (c *Catalog) Lookup(ctx context.Context, name string) (domain.ConnectionProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := c.load()
	if err != nil {
		return domain.ConnectionProfile{}, err
	}

	for _, entry := range file.Connections {
		if entry.Name == name {
			return c.toProfile(entry)
		}
	}

	return domain.ConnectionProfile{}, domain.NewError(domain.KindConnectionNotFound, name,
		"no connection with this name is registered", nil)
}

func (c *Catalog) Enumerate(ctx context.Context) ([]domain.ConnectionProfile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := c.load()
	if err != nil {
		return nil, err
	}

	profiles := make([]domain.ConnectionProfile, 0, len(file.Connections))
	for _, entry := range file.Connections {
		profile, err := c.toProfile(entry)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, profile)
	}

	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

func (c *Catalog) Create(ctx context.Context, profile domain.ConnectionProfile) (string, error) {
	if err := profile.Validate(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := c.load()
	if err != nil {
		return "", err
	}

	for _, entry := range file.Connections {
		if entry.Name == profile.Name {
			return "", domain.NewError(domain.KindDuplicateName, profile.Name,
				"a connection with this name already exists", nil)
		}
	}

	sealed, err := c.sealer.Seal(profile.Credential.Reveal())
	if err != nil {
		return "", errors.Wrapf(err, "failed to seal credential for %s", profile.Name)
	}

	id := uuid.NewString()
	file.Connections = append(file.Connections, connectionEntry{
		ID:         id,
		Name:       profile.Name,
		Engine:     profile.Engine.String(),
		Host:       profile.Host,
		Port:       profile.Port,
		Database:   profile.Database,
		Username:   profile.Username,
		Credential: sealed,
		CreatedAt:  c.now().UTC(),
	})

	if err := c.save(file); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes the profile. Its backup history is kept.
func (c *Catalog) Delete(ctx context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := c.load()
	if err != nil {
		return false, err
	}

	kept := file.Connections[:0]
	found := false
	for _, entry := range file.Connections {
		if entry.Name == name {
			found = true
			continue
		}
		kept = append(kept, entry)
	}
	if !found {
		return false, nil
	}

	file.Connections = kept
	if err := c.save(file); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Catalog) Append(ctx context.Context, record domain.BackupRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := c.load()
	if err != nil {
		return err
	}

	file.Backups = append(file.Backups, backupEntry{
		Connection:    record.ConnectionName,
		Engine:        record.Engine.String(),
		Status:        string(record.Status),
		FilePath:      record.FilePath,
		FileSizeBytes: record.FileSizeBytes,
		ErrorMessage:  record.ErrorMessage,
		CreatedAt:     record.CreatedAt,
		CompletedAt:   record.CompletedAt,
	})

	return c.save(file)
}

func (c *Catalog) EnumerateByConnection(ctx context.Context, name string) ([]domain.BackupRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	file, err := c.load()
	if err != nil {
		return nil, err
	}

	records := make([]domain.BackupRecord, 0)
	for _, entry := range file.Backups {
		if entry.Connection != name {
			continue
		}
		records = append(records, domain.BackupRecord{
			ConnectionName: entry.Connection,
			Engine:         domain.Engine(entry.Engine),
			Status:         domain.BackupStatus(entry.Status),
			FilePath:       entry.FilePath,
			FileSizeBytes:  entry.FileSizeBytes,
			ErrorMessage:   entry.ErrorMessage,
			CreatedAt:      entry.CreatedAt,
			CompletedAt:    entry.CompletedAt,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

func (c *Catalog) toProfile(entry connectionEntry) (domain.ConnectionProfile, error) {
	secret, err := c.sealer.Open(entry.Credential)
	if err != nil {
		return domain.ConnectionProfile{}, errors.Wrapf(err, "failed to open credential for %s", entry.Name)
	}

	return domain.ConnectionProfile{
		ID:         entry.ID,
		Name:       entry.Name,
		Engine:     domain.Engine(entry.Engine),
		Host:       entry.Host,
		Port:       entry.Port,
		Database:   entry.Database,
		Username:   entry.Username,
		Credential: domain.NewCredential(secret),
		CreatedAt:  entry.CreatedAt,
	}, nil
}

func (c *Catalog) load() (*catalogFile, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return &catalogFile{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read catalog")
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "failed to parse catalog %s", c.path)
	}
	return &file, nil
}

func (c *Catalog) save(file *catalogFile) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return errors.Wrap(err, "failed to encode catalog")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, "failed to encode catalog")
	}

	if err := atomic.WriteFile(c.path, &buf); err != nil {
		return errors.Wrap(err, "failed to write catalog")
	}
	return nil
}
