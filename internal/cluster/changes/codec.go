package changes

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/multiformats/go-varint"

	"github.com/yndnr/docmesh-go/internal/core/domain"
)

// formatV1 is the only encoding currently produced.
const formatV1 byte = 1

// Serialize encodes the change-set. Encoding an empty change-set is a
// caller bug and fails with domain.ErrEmptyChangeSet.
func (m *MergedChanges) Serialize() ([]byte, error) {
	if m == nil || m.IsEmpty() {
		return nil, domain.ErrEmptyChangeSet
	}

	size := 1
	for _, s := range []DocumentSet{m.Inserts, m.Updates, m.Deletes} {
		size += varint.UvarintSize(uint64(len(s))) + len(s)*2
	}

	out := make([]byte, 0, size)
	out = append(out, formatV1)
	out = appendSet(out, m.Inserts)
	out = appendSet(out, m.Updates)
	out = appendSet(out, m.Deletes)
	return out, nil
}

func appendSet(out []byte, s DocumentSet) []byte {
	out = append(out, varint.ToUvarint(uint64(len(s)))...)
	var prev uint64
	for i, id := range s.Sorted() {
		v := uint64(id)
		if i > 0 {
			v -= prev
		}
		out = append(out, varint.ToUvarint(v)...)
		prev = uint64(id)
	}
	return out
}

// Deserialize decodes a change-set produced by Serialize.
func Deserialize(data []byte) (*MergedChanges, error) {
	if len(data) == 0 {
		return nil, domain.ErrCorruptChangeSet.WithDetails("empty payload")
	}
	if data[0] != formatV1 {
		return nil, domain.ErrCorruptChangeSet.WithDetails(fmt.Sprintf("unknown format %d", data[0]))
	}

	r := bytes.NewReader(data[1:])
	m := New()
	sets := []DocumentSet{m.Inserts, m.Updates, m.Deletes}
	for i, s := range sets {
		if err := readSet(r, s, sets[:i]); err != nil {
			return nil, domain.ErrCorruptChangeSet.WithCause(err)
		}
	}
	if r.Len() != 0 {
		return nil, domain.ErrCorruptChangeSet.WithDetails(fmt.Sprintf("%d trailing bytes", r.Len()))
	}
	if m.IsEmpty() {
		return nil, domain.ErrCorruptChangeSet.WithDetails("no changes")
	}
	return m, nil
}

var errNonIncreasing = errors.New("ids not strictly increasing")

// readSet decodes one id set into s. Ids already present in one of the
// earlier sets are rejected.
func readSet(r *bytes.Reader, s DocumentSet, earlier []DocumentSet) error {
	count, err := varint.ReadUvarint(r)
	if err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	if count > uint64(r.Len()) {
		return fmt.Errorf("count %d exceeds payload", count)
	}

	var prev uint64
	for i := uint64(0); i < count; i++ {
		v, err := varint.ReadUvarint(r)
		if err != nil {
			return fmt.Errorf("read id %d: %w", i, err)
		}
		if v > math.MaxUint32 {
			return fmt.Errorf("id %d out of range", v)
		}
		if i > 0 {
			if v == 0 {
				return errNonIncreasing
			}
			v += prev
			if v > math.MaxUint32 {
				return fmt.Errorf("id %d out of range", v)
			}
		}
		id := domain.DocumentID(v)
		for _, e := range earlier {
			if e.Contains(id) {
				return fmt.Errorf("id %d in more than one set", id)
			}
		}
		s[id] = struct{}{}
		prev = v
	}
	return nil
}
