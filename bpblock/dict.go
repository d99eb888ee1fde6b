package bpblock

// Dictionary is the ordered, unique set of scheme and SSP strings shared
// across a bundle's block vector, referenced by byte offset into the
// dictionary's serialized form: each string NUL-terminated and
// concatenated in insertion order, per §3/§4.C.
type Dictionary struct {
	buf     []byte
	offsets map[string]uint64
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{offsets: make(map[string]uint64)}
}

// intern inserts s if new and returns its stable byte offset.
func (d *Dictionary) intern(s string) uint64 {
	if off, ok := d.offsets[s]; ok {
		return off
	}
	off := uint64(len(d.buf))
	d.offsets[s] = off
	d.buf = append(d.buf, s...)
	d.buf = append(d.buf, 0)
	return off
}

// AddEID inserts the scheme and SSP of e if new, and returns their stable
// offsets.
func (d *Dictionary) AddEID(e EID) (schemeOff, sspOff uint64) {
	return d.intern(e.Scheme), d.intern(e.SSP)
}

// Offsets returns the offsets of an already-interned EID's scheme and
// SSP. The second return is false if either string was never interned.
func (d *Dictionary) Offsets(e EID) (schemeOff, sspOff uint64, ok bool) {
	so, ok1 := d.offsets[e.Scheme]
	po, ok2 := d.offsets[e.SSP]
	return so, po, ok1 && ok2
}

// ExtractEID reconstructs an EID from the scheme and SSP offsets into the
// dictionary's serialized form.
func (d *Dictionary) ExtractEID(schemeOff, sspOff uint64) (EID, bool) {
	scheme, ok := d.stringAt(schemeOff)
	if !ok {
		return EID{}, false
	}
	ssp, ok := d.stringAt(sspOff)
	if !ok {
		return EID{}, false
	}
	return EID{Scheme: scheme, SSP: ssp}, true
}

func (d *Dictionary) stringAt(off uint64) (string, bool) {
	if off > uint64(len(d.buf)) {
		return "", false
	}
	i := int(off)
	for j := i; j < len(d.buf); j++ {
		if d.buf[j] == 0 {
			return string(d.buf[i:j]), true
		}
	}
	return "", false
}

// Bytes returns the dictionary's serialized form as it will appear on the
// wire inside the primary block.
func (d *Dictionary) Bytes() []byte {
	return d.buf
}

// LoadBytes replaces the dictionary's contents with a previously
// serialized buffer, as read from an incoming primary block, and rebuilds
// the offset index used by AddEID for outgoing reuse.
func (d *Dictionary) LoadBytes(buf []byte) {
	d.buf = append([]byte(nil), buf...)
	d.offsets = make(map[string]uint64)
	start := 0
	for i, b := range d.buf {
		if b == 0 {
			d.offsets[string(d.buf[start:i])] = uint64(start)
			start = i + 1
		}
	}
}
