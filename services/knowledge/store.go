package knowledge

import (
	"github.com/upb/llm-chat-gateway/models"
)

// recordStore keeps document records addressed by index position. Each
// position records the id that was inserted there; the document body is
// looked up by id, so re-adding an id replaces the content every one of its
// positions resolves to.
type recordStore struct {
	ids       []string
	docs      map[string]*models.Document
	tombstone []bool
	live      int
}

func newRecordStore() *recordStore {
	return &recordStore{docs: make(map[string]*models.Document)}
}

// append registers doc at the next position, which must match the index position
func (s *recordStore) append(doc *models.Document) int {
	s.ids = append(s.ids, doc.ID)
	s.tombstone = append(s.tombstone, false)
	s.docs[doc.ID] = doc
	s.live++
	return len(s.ids) - 1
}

func (s *recordStore) size() int { return len(s.ids) }

func (s *recordStore) isLive(pos int) bool {
	return pos >= 0 && pos < len(s.ids) && !s.tombstone[pos]
}

func (s *recordStore) at(pos int) *models.Document {
	return s.docs[s.ids[pos]]
}

func (s *recordStore) get(id string) (*models.Document, bool) {
	doc, ok := s.docs[id]
	return doc, ok
}

// remove tombstones every position holding id. Returns false if id is unknown.
func (s *recordStore) remove(id string) bool {
	if _, ok := s.docs[id]; !ok {
		return false
	}
	delete(s.docs, id)
	for pos, existing := range s.ids {
		if existing == id && !s.tombstone[pos] {
			s.tombstone[pos] = true
			s.live--
		}
	}
	return true
}

// livePositions lists positions not removed, in ascending order
func (s *recordStore) livePositions() []int {
	out := make([]int, 0, s.live)
	for pos := range s.ids {
		if !s.tombstone[pos] {
			out = append(out, pos)
		}
	}
	return out
}
