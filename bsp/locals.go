package bsp

import (
	"github.com/dtnd/bpagent/bpblock"
	"github.com/dtnd/bpagent/sdnv"
)

// Tag identifies one security-parameter or security-result field (§3).
type Tag byte

const (
	TagIV           Tag = 1
	TagKeyInfo      Tag = 3
	TagFragment     Tag = 4
	TagSignature    Tag = 5
	TagSalt         Tag = 7
	TagICV          Tag = 8
	TagEncapBlock   Tag = 10
)

// LocalFlags are the BP_Local_CS presence bits (§3).
type LocalFlags uint8

const (
	HasSource LocalFlags = 1 << iota
	HasDest
	HasParams
	HasCorrelator
	HasResult
)

// Has reports whether all bits of mask are set.
func (f LocalFlags) Has(mask LocalFlags) bool { return f&mask == mask }

// TagMap is the ordered, tag-keyed byte-string map used for both
// security-parameters and security-result (§3). Insertion order is
// preserved because canonicalization and wire encoding are both
// order-sensitive.
type TagMap struct {
	tags   []Tag
	values map[Tag][]byte
}

// Set inserts or replaces the value for tag, preserving first-insertion
// order.
func (m *TagMap) Set(tag Tag, value []byte) {
	if m.values == nil {
		m.values = make(map[Tag][]byte)
	}
	if _, ok := m.values[tag]; !ok {
		m.tags = append(m.tags, tag)
	}
	m.values[tag] = value
}

// Get returns the value for tag, if present.
func (m *TagMap) Get(tag Tag) ([]byte, bool) {
	v, ok := m.values[tag]
	return v, ok
}

// Tags returns the tags in insertion order.
func (m *TagMap) Tags() []Tag { return m.tags }

// Empty reports whether the map holds no entries.
func (m *TagMap) Empty() bool { return len(m.tags) == 0 }

// Encode appends the wire form {tag(1) len(SDNV) value(len bytes)}* to
// buf, in insertion order.
func (m *TagMap) Encode(buf []byte) []byte {
	for _, t := range m.tags {
		v := m.values[t]
		buf = append(buf, byte(t))
		buf = sdnv.Append(buf, uint64(len(v)))
		buf = append(buf, v...)
	}
	return buf
}

// DecodeTagMap parses a {tag(1) len(SDNV) value(len bytes)}* sequence
// filling all of buf.
func DecodeTagMap(buf []byte) (*TagMap, error) {
	m := &TagMap{}
	off := 0
	for off < len(buf) {
		if off+1 > len(buf) {
			return nil, ErrMalformedSecurityField
		}
		tag := Tag(buf[off])
		off++
		l, n := sdnv.Decode(buf[off:])
		if n < 0 {
			return nil, ErrMalformedSecurityField
		}
		off += n
		if off+int(l) > len(buf) {
			return nil, ErrMalformedSecurityField
		}
		m.Set(tag, append([]byte(nil), buf[off:off+int(l)]...))
		off += int(l)
	}
	return m, nil
}

// Locals is the per-block BSP security state (BP_Local_CS, §3).
type Locals struct {
	CSNum      uint16
	Flags      LocalFlags
	Correlator uint64
	SecSource  bpblock.EID
	SecDest    bpblock.EID
	Params     TagMap
	Result     TagMap
}
