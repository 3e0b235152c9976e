package storefake

import (
	"sync"

	"github.com/donmezahmet/ring-unlock/credstore"
	"github.com/donmezahmet/ring-unlock/ring"
)

var _ credstore.Store = (*FakeStore)(nil)

// FakeStore is an in-memory credential store with failure injection for tests.
type FakeStore struct {
	lock    sync.Mutex
	session *ring.Session

	LoadErr   error
	SaveErr   error
	SaveCalls int
}

func NewFakeStore() *FakeStore {
	return &FakeStore{}
}

func (fs *FakeStore) Load() (*ring.Session, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	if fs.LoadErr != nil {
		return nil, fs.LoadErr
	}
	if fs.session == nil {
		return nil, nil
	}
	copied := *fs.session
	return &copied, nil
}

func (fs *FakeStore) Save(session *ring.Session) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	fs.SaveCalls++
	if fs.SaveErr != nil {
		return fs.SaveErr
	}
	copied := *session
	fs.session = &copied
	return nil
}

// Seed places a session in the slot without counting as a Save.
func (fs *FakeStore) Seed(session *ring.Session) {
	fs.lock.Lock()
	defer fs.lock.Unlock()

	copied := *session
	fs.session = &copied
}
