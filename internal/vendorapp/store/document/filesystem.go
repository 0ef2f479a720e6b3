// Package document stores uploaded application artifacts and hands back
// opaque references. The lifecycle core never reads these files again; the
// reference is all it keeps.
package document

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"mercato/internal/vendorapp/models"
	id "mercato/pkg/domain"
	dErrors "mercato/pkg/domain-errors"
)

// FilesystemStore writes artifacts under root/<account>/<uuid>_<filename>.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) *FilesystemStore {
	return &FilesystemStore{root: root}
}

func (s *FilesystemStore) Save(_ context.Context, accountID id.AccountID, filename string, content []byte) (models.DocumentRef, error) {
	dir := filepath.Join(s.root, accountID.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not create document directory")
	}

	// Base strips any path components a client smuggled into the filename.
	name := fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(filename))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o640); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not write document")
	}
	return models.DocumentRef(path), nil
}

// InMemoryStore keeps artifacts in a map, for tests and dev wiring.
type InMemoryStore struct {
	mu    sync.Mutex
	blobs map[models.DocumentRef][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[models.DocumentRef][]byte)}
}

func (s *InMemoryStore) Save(_ context.Context, accountID id.AccountID, filename string, content []byte) (models.DocumentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ref := models.DocumentRef(fmt.Sprintf("mem://%s/%s_%s", accountID, uuid.NewString(), filename))
	s.blobs[ref] = append([]byte(nil), content...)
	return ref, nil
}

// Get returns a stored blob, for test assertions.
func (s *InMemoryStore) Get(ref models.DocumentRef) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob, ok := s.blobs[ref]
	return blob, ok
}
