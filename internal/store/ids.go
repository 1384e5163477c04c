package store

import "github.com/RoaringBitmap/roaring/v2"

// idSet tracks ids in use and hands out the smallest unused one.
type idSet struct {
	used *roaring.Bitmap
}

func newIDSet() *idSet {
	return &idSet{used: roaring.New()}
}

// next returns the smallest non-negative id not in use. It does not reserve it.
func (s *idSet) next() int {
	if s.used.IsEmpty() {
		return 0
	}
	top := uint64(s.used.Maximum())
	if s.used.GetCardinality() == top+1 {
		return int(top + 1)
	}
	gaps := roaring.Flip(s.used, 0, top+1)
	return int(gaps.Minimum())
}

func (s *idSet) add(id int)           { s.used.Add(uint32(id)) }
func (s *idSet) remove(id int)        { s.used.Remove(uint32(id)) }
func (s *idSet) contains(id int) bool { return s.used.Contains(uint32(id)) }
func (s *idSet) len() int             { return int(s.used.GetCardinality()) }

// sameAs reports whether ids holds exactly the ids in the set.
func (s *idSet) sameAs(ids []int) bool {
	other := roaring.New()
	for _, id := range ids {
		if id < 0 {
			return false
		}
		other.Add(uint32(id))
	}
	return len(ids) == s.len() && other.Equals(s.used)
}
