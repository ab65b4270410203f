package vm

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// StringImageVersion is bumped whenever the image layout changes.
const StringImageVersion = 1

// StringImage is a portable snapshot of a string table's contents.
type StringImage struct {
	Version  uint32             `cbor:"1,keyasint"`
	Seed     uint32             `cbor:"2,keyasint"`
	Capacity int                `cbor:"3,keyasint"`
	Entries  []StringImageEntry `cbor:"4,keyasint,omitempty"`
}

// StringImageEntry records one interned string.
type StringImageEntry struct {
	Bytes []byte `cbor:"1,keyasint"`
	Hash  uint32 `cbor:"2,keyasint"`
	Extra uint8  `cbor:"3,keyasint,omitempty"`
}

// Canonical mode keeps images byte-identical for identical tables.
var imageEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	imageEncMode = em
}

// MarshalStringImage serializes img to CBOR bytes.
func MarshalStringImage(img *StringImage) ([]byte, error) {
	return imageEncMode.Marshal(img)
}

// UnmarshalStringImage deserializes a StringImage from CBOR bytes.
func UnmarshalStringImage(data []byte) (*StringImage, error) {
	var img StringImage
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal string image: %w", err)
	}
	if img.Version != StringImageVersion {
		return nil, fmt.Errorf("vm: unsupported string image version %d", img.Version)
	}
	return &img, nil
}

// Snapshot captures every interned string in bucket order.
func (t *StringTable) Snapshot() *StringImage {
	img := &StringImage{
		Version:  StringImageVersion,
		Seed:     t.seed,
		Capacity: len(t.buckets),
		Entries:  make([]StringImageEntry, 0, t.nuse),
	}
	t.Each(func(s *String) bool {
		b := make([]byte, s.Len())
		copy(b, s.Bytes())
		img.Entries = append(img.Entries, StringImageEntry{
			Bytes: b,
			Hash:  s.hash,
			Extra: s.extra,
		})
		return true
	})
	return img
}

// Restore interns every entry of img and copies its extra byte. Hashes are
// recomputed with this table's seed; an image taken with the same seed must
// agree with them, and a disagreeing image is rejected before anything is
// interned.
func (t *StringTable) Restore(img *StringImage) error {
	sameSeed := img.Seed == t.seed
	if sameSeed {
		for i, e := range img.Entries {
			if h := HashBytes(t.seed, e.Bytes); h != e.Hash {
				return fmt.Errorf("%w: restore entry %d: hash %#x, image has %#x",
					ErrInvariantViolation, i, h, e.Hash)
			}
		}
	}
	for i, e := range img.Entries {
		ref, err := t.Intern(e.Bytes)
		if err != nil {
			return fmt.Errorf("restore entry %d: %w", i, err)
		}
		s := t.heap.objects[ref]
		if e.Extra != 0 {
			s.extra = e.Extra
		}
	}
	return nil
}
