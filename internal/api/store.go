package api

import (
	"sync"

	"github.com/samcharles93/ckptinspect/internal/inspect"
)

// DefaultStoreLimit is the number of documents kept when no limit is given.
const DefaultStoreLimit = 64

// DocumentStore keeps the most recent documents by ID. Once full, saving a
// new document evicts the oldest.
type DocumentStore struct {
	mu    sync.Mutex
	docs  map[string]*inspect.Document
	order []string
	limit int
}

func NewDocumentStore(limit int) *DocumentStore {
	if limit <= 0 {
		limit = DefaultStoreLimit
	}
	return &DocumentStore{
		docs:  make(map[string]*inspect.Document),
		limit: limit,
	}
}

func (s *DocumentStore) Save(doc *inspect.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.ID]; !ok {
		s.order = append(s.order, doc.ID)
	}
	s.docs[doc.ID] = doc
	for len(s.order) > s.limit {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.docs, oldest)
	}
}

func (s *DocumentStore) Get(id string) (*inspect.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	return doc, ok
}

func (s *DocumentStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return false
	}
	delete(s.docs, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *DocumentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}
