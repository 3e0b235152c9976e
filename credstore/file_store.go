package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/donmezahmet/ring-unlock/ring"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps the session in a single JSON file. Saves go through a
// temporary file in the same directory followed by a rename, so a crash
// mid-write never corrupts the previous good session.
type FileStore struct {
	path string
	lock sync.Mutex
}

// NewFileStore creates a file-backed store at the given path. The parent
// directory is created if missing.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrapf(ErrStorage, "[NewFileStore] create directory: %v", err)
	}
	return &FileStore{path: path}, nil
}

// Load reads the persisted session. A missing file means no session has ever
// been saved. A corrupt file is a storage failure, not absence, so the bad
// file stays on disk for diagnostics.
func (fs *FileStore) Load() (*ring.Session, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	raw, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(ErrStorage, "[FileStore.Load] %v", err)
	}

	var session ring.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, errors.Wrapf(ErrStorage, "[FileStore.Load] corrupt session file: %v", err)
	}
	return &session, nil
}

// Save atomically overwrites the slot with the given session.
func (fs *FileStore) Save(session *ring.Session) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	raw, err := json.Marshal(session)
	if err != nil {
		return errors.Wrapf(ErrStorage, "[FileStore.Save] marshal: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), filepath.Base(fs.path)+".tmp-*")
	if err != nil {
		return errors.Wrapf(ErrStorage, "[FileStore.Save] create temp file: %v", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrapf(ErrStorage, "[FileStore.Save] write: %v", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(ErrStorage, "[FileStore.Save] close: %v", err)
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(ErrStorage, "[FileStore.Save] rename: %v", err)
	}
	return nil
}
