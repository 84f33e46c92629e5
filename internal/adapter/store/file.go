package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"procmux/internal/domain"
)

const recordSuffix = ".info"

// FileRepository persists reference records under a data directory: one
// sub-directory per group key, one <ctx>_<callerID>.info file per reference
// inside it. The reference count of a group key is the number of files in
// its directory.
type FileRepository struct {
	dataDir string
	alive   func(pid string) bool
	logger  domain.Logger
}

// NewFileRepository creates a repository rooted at dataDir. The alive check
// decides process liveness for orphan detection.
func NewFileRepository(dataDir string, alive func(pid string) bool, logger domain.Logger) *FileRepository {
	return &FileRepository{dataDir: dataDir, alive: alive, logger: logger}
}

// EnsureDir creates the data directory if it does not exist.
func (r *FileRepository) EnsureDir() error {
	return os.MkdirAll(r.dataDir, 0o755)
}

// recordName builds the filename encoding (ctx, caller) — deliberately not
// the group key, so multiple records can alias one key.
func recordName(ctxID, callerID string) string {
	return ctxID + "_" + callerID + recordSuffix
}

// FindByGroupKey returns the descriptor of the first record under key's
// directory, or domain.ErrNotFound.
func (r *FileRepository) FindByGroupKey(key string) (*domain.ServerProcess, error) {
	entries, err := os.ReadDir(filepath.Join(r.dataDir, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("read group dir %q: %w", key, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), recordSuffix) {
			continue
		}
		s, err := r.readRecord(filepath.Join(r.dataDir, key, e.Name()))
		if err != nil {
			r.logger.Debug("skipping unreadable record", "file", e.Name(), "err", err)
			continue
		}
		return s, nil
	}
	return nil, domain.ErrNotFound
}

// Put writes or overwrites the record at (ctxID, callerID) with a full copy
// of the descriptor.
func (r *FileRepository) Put(ctxID, callerID string, s *domain.ServerProcess) error {
	dir := filepath.Join(r.dataDir, s.GroupKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create group dir %q: %w", s.GroupKey, err)
	}
	data, err := s.Serialize()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, recordName(ctxID, callerID))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write record %q: %w", path, err)
	}
	return nil
}

// Get locates the record for (ctxID, callerID) across all group directories
// and returns its path and descriptor.
func (r *FileRepository) Get(ctxID, callerID string) (string, *domain.ServerProcess, error) {
	location, err := r.findRecord(recordName(ctxID, callerID))
	if err != nil {
		return "", nil, err
	}
	s, err := r.readRecord(location)
	if err != nil {
		return "", nil, err
	}
	return location, s, nil
}

// Delete removes the record for (ctxID, callerID) and its group directory
// when the directory becomes empty. A missing record is not an error.
func (r *FileRepository) Delete(ctxID, callerID string) error {
	location, err := r.findRecord(recordName(ctxID, callerID))
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.deleteAt(location)
}

// IsSoleReference reports whether the record at location is the only file
// in its group directory.
func (r *FileRepository) IsSoleReference(location string) (bool, error) {
	entries, err := os.ReadDir(filepath.Dir(location))
	if err != nil {
		return false, fmt.Errorf("read group dir of %q: %w", location, err)
	}
	return len(entries) == 1 && entries[0].Name() == filepath.Base(location), nil
}

// OrphanCandidates returns all records whose owning context process is no
// longer alive or whose backend process is gone. A non-empty ctxID narrows
// the scan to that context's records.
func (r *FileRepository) OrphanCandidates(ctxID string) ([]domain.Reference, error) {
	var orphans []domain.Reference
	err := r.walkRecords(func(location string, s *domain.ServerProcess) {
		name := filepath.Base(location)
		if ctxID != "" && !strings.HasPrefix(name, ctxID+"_") {
			return
		}
		if !r.alive(s.ParentCtx) || !r.alive(strconv.Itoa(s.PID)) {
			ctx, caller := splitRecordName(name)
			orphans = append(orphans, domain.Reference{
				Location: location,
				CtxID:    ctx,
				CallerID: caller,
				Server:   s,
			})
		}
	})
	if err != nil {
		return nil, err
	}
	return orphans, nil
}

// All returns every readable record keyed by its location.
func (r *FileRepository) All() (map[string]*domain.ServerProcess, error) {
	servers := make(map[string]*domain.ServerProcess)
	err := r.walkRecords(func(location string, s *domain.ServerProcess) {
		servers[location] = s
	})
	if err != nil {
		return nil, err
	}
	return servers, nil
}

func (r *FileRepository) deleteAt(location string) error {
	if err := os.Remove(location); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove record %q: %w", location, err)
	}
	// Drop the group directory once its last reference is gone.
	dir := filepath.Dir(location)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if err := os.Remove(dir); err != nil {
			r.logger.Debug("could not remove empty group dir", "dir", dir, "err", err)
		}
	}
	return nil
}

func (r *FileRepository) findRecord(name string) (string, error) {
	var found string
	err := filepath.WalkDir(r.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() && d.Name() == name {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan data dir: %w", err)
	}
	if found == "" {
		return "", domain.ErrNotFound
	}
	return found, nil
}

func (r *FileRepository) walkRecords(visit func(location string, s *domain.ServerProcess)) error {
	err := filepath.WalkDir(r.dataDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), recordSuffix) {
			return nil
		}
		s, readErr := r.readRecord(path)
		if readErr != nil {
			r.logger.Debug("skipping unreadable record", "file", path, "err", readErr)
			return nil
		}
		visit(path, s)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan data dir: %w", err)
	}
	return nil
}

func (r *FileRepository) readRecord(path string) (*domain.ServerProcess, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("read record %q: %w", path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("record %q is empty", path)
	}
	return domain.Deserialize(data)
}

// splitRecordName recovers (ctx, callerID) from a record filename. The
// context id never contains an underscore; the caller id may.
func splitRecordName(name string) (string, string) {
	name = strings.TrimSuffix(name, recordSuffix)
	ctx, caller, _ := strings.Cut(name, "_")
	return ctx, caller
}
