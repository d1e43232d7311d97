package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/semmidev/dbkeeper/internal/domain"
)

// memStore is an in-memory registry and history.
type memStore struct {
	mu       sync.Mutex
	profiles map[string]domain.ConnectionProfile
	records  []domain.BackupRecord
	nextID   int
}

func newMemStore(profiles ...domain.ConnectionProfile) *memStore {
	s := &memStore{profiles: map[string]domain.ConnectionProfile{}}
	for _, p := range profiles {
		s.profiles[p.Name] = p
	}
	return s
}

func (s *memStore) Lookup(ctx context.Context, name string) (domain.ConnectionProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[name]
	if !ok {
		return domain.ConnectionProfile{}, domain.NewError(domain.KindConnectionNotFound, name, "no such connection", nil)
	}
	return p, nil
}

func (s *memStore) Enumerate(ctx context.Context) ([]domain.ConnectionProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ConnectionProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) Create(ctx context.Context, profile domain.ConnectionProfile) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[profile.Name]; ok {
		return "", domain.NewError(domain.KindDuplicateName, profile.Name, "already exists", nil)
	}
	s.nextID++
	profile.ID = fmt.Sprintf("id-%d", s.nextID)
	s.profiles[profile.Name] = profile
	return profile.ID, nil
}

func (s *memStore) Delete(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.profiles[name]
	delete(s.profiles, name)
	return ok, nil
}

func (s *memStore) Append(ctx context.Context, record domain.BackupRecord) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *memStore) EnumerateByConnection(ctx context.Context, name string) ([]domain.BackupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.BackupRecord{}
	for _, r := range s.records {
		if r.ConnectionName == name {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// fakeAdapter writes a small artifact and reports lines, or blocks until
// released or cancelled.
type fakeAdapter struct {
	engine   domain.Engine
	lines    []string
	content  string
	dumpErr  error
	block    chan struct{}
	started  chan struct{}
	reach    bool
	dumps    int32
	restores int32

	mu           sync.Mutex
	restoredFrom string
	restoredData string
}

func newFakeAdapter(engine domain.Engine) *fakeAdapter {
	return &fakeAdapter{
		engine:  engine,
		lines:   []string{"dumping schema", "dumping data"},
		content: "-- dump\n",
		reach:   true,
		started: make(chan struct{}, 16),
	}
}

func (f *fakeAdapter) Engine() domain.Engine { return f.engine }

func (f *fakeAdapter) TestConnection(ctx context.Context, profile domain.ConnectionProfile) (bool, error) {
	if err := profile.Validate(); err != nil {
		return false, err
	}
	return f.reach, nil
}

func (f *fakeAdapter) Dump(ctx context.Context, req domain.DumpRequest, progress domain.ProgressFunc) (domain.DumpOutcome, error) {
	atomic.AddInt32(&f.dumps, 1)
	f.started <- struct{}{}

	for _, line := range f.lines {
		if progress != nil {
			progress(ctx, line)
		}
	}

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return domain.DumpOutcome{}, domain.NewError(domain.KindCancelled, req.Profile.Name, "dump was cancelled", ctx.Err())
		}
	}
	if f.dumpErr != nil {
		return domain.DumpOutcome{}, f.dumpErr
	}

	if err := os.MkdirAll(req.Directory, 0755); err != nil {
		return domain.DumpOutcome{}, err
	}
	path := filepath.Join(req.Directory, domain.ArtifactName(req.Profile.Name, req.Profile.Engine, req.Timestamp))
	if _, err := os.Stat(path); err == nil {
		return domain.DumpOutcome{}, domain.NewError(domain.KindDumpFailed, req.Profile.Name, "artifact exists", nil)
	}
	if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
		return domain.DumpOutcome{}, err
	}
	info, _ := os.Stat(path)
	return domain.DumpOutcome{FilePath: path, SizeBytes: info.Size()}, nil
}

func (f *fakeAdapter) Restore(ctx context.Context, profile domain.ConnectionProfile, sourcePath string, progress domain.ProgressFunc) error {
	atomic.AddInt32(&f.restores, 1)
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return domain.NewError(domain.KindBackupFileNotFound, profile.Name, err.Error(), err)
	}
	f.mu.Lock()
	f.restoredFrom = sourcePath
	f.restoredData = string(data)
	f.mu.Unlock()
	if progress != nil {
		progress(ctx, "restored")
	}
	return nil
}

func (f *fakeAdapter) dumpCount() int    { return int(atomic.LoadInt32(&f.dumps)) }
func (f *fakeAdapter) restoreCount() int { return int(atomic.LoadInt32(&f.restores)) }

// memStorage is an upload target kept in memory.
type memStorage struct {
	mu      sync.Mutex
	files   map[string]string
	created map[string]time.Time
	fail    error
	listErr error
}

func newMemStorage() *memStorage {
	return &memStorage{files: map[string]string{}, created: map[string]time.Time{}}
}

func (m *memStorage) Upload(ctx context.Context, localPath, remoteName string) error {
	if m.fail != nil {
		return m.fail
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[remoteName] = string(data)
	m.created[remoteName] = time.Now()
	return nil
}

func (m *memStorage) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := []string{}
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *memStorage) Delete(ctx context.Context, remoteName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[remoteName]; !ok {
		return errors.New("not found")
	}
	delete(m.files, remoteName)
	return nil
}

func (m *memStorage) GetOldFiles(ctx context.Context, cutoff time.Time) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var old []string
	for name, at := range m.created {
		if _, ok := m.files[name]; ok && at.Before(cutoff) {
			old = append(old, name)
		}
	}
	sort.Strings(old)
	return old, nil
}

func (m *memStorage) names() []string {
	names, _ := m.List(context.Background())
	return names
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(ctx context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type recordingMetrics struct {
	mu      sync.Mutex
	results []string
	uploads map[string]int
}

func (r *recordingMetrics) ObserveOperation(op domain.Operation, engine domain.Engine, result string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, fmt.Sprintf("%s/%s/%s", op, engine, result))
}

func (r *recordingMetrics) ObserveArtifact(engine domain.Engine, sizeBytes int64) {}

func (r *recordingMetrics) ObserveUpload(target string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uploads == nil {
		r.uploads = map[string]int{}
	}
	r.uploads[target]++
}

func (r *recordingMetrics) ObserveDeletions(location string, n int) {}

func (r *recordingMetrics) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.results...)
}

func testProfile(name string, engine domain.Engine) domain.ConnectionProfile {
	p := domain.ConnectionProfile{
		ID:         "id-" + name,
		Name:       name,
		Engine:     engine,
		Host:       "localhost",
		Database:   "app",
		Username:   "admin",
		Credential: domain.NewCredential("s3cret"),
	}
	p.Normalize()
	return p
}

// steppedClock returns t0, then advances by step on each call.
func steppedClock(t0 time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	current := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := current
		current = current.Add(step)
		return now
	}
}
