package bsp

import "github.com/dtnd/bpagent/sdnv"

// serializeBSPBody encodes a Locals into the BSP block body shape
// `csnum(SDNV) flags(SDNV) [correlator(SDNV)]? [params-len(SDNV) params]?
// [result-len(SDNV) result]?` (§6).
func serializeBSPBody(l *Locals) []byte {
	var body []byte
	body = sdnv.Append(body, uint64(l.CSNum))
	body = sdnv.Append(body, uint64(l.Flags))
	if l.Flags.Has(HasCorrelator) {
		body = sdnv.Append(body, l.Correlator)
	}
	if l.Flags.Has(HasParams) {
		enc := l.Params.Encode(nil)
		body = sdnv.Append(body, uint64(len(enc)))
		body = append(body, enc...)
	}
	if l.Flags.Has(HasResult) {
		enc := l.Result.Encode(nil)
		body = sdnv.Append(body, uint64(len(enc)))
		body = append(body, enc...)
	}
	return body
}

// parseBSPBody decodes a BSP block body into a Locals.
func parseBSPBody(buf []byte) (*Locals, error) {
	l := &Locals{}
	off := 0

	csnum, n := sdnv.Decode(buf[off:])
	if n < 0 {
		return nil, ErrMalformedSecurityField
	}
	off += n
	l.CSNum = uint16(csnum)

	flags, n := sdnv.Decode(buf[off:])
	if n < 0 {
		return nil, ErrMalformedSecurityField
	}
	off += n
	l.Flags = LocalFlags(flags)

	if l.Flags.Has(HasCorrelator) {
		corr, n := sdnv.Decode(buf[off:])
		if n < 0 {
			return nil, ErrMalformedSecurityField
		}
		off += n
		l.Correlator = corr
	}
	if l.Flags.Has(HasParams) {
		plen, n := sdnv.Decode(buf[off:])
		if n < 0 || off+n+int(plen) > len(buf) {
			return nil, ErrMalformedSecurityField
		}
		off += n
		m, err := DecodeTagMap(buf[off : off+int(plen)])
		if err != nil {
			return nil, err
		}
		l.Params = *m
		off += int(plen)
	}
	if l.Flags.Has(HasResult) {
		rlen, n := sdnv.Decode(buf[off:])
		if n < 0 || off+n+int(rlen) > len(buf) {
			return nil, ErrMalformedSecurityField
		}
		off += n
		m, err := DecodeTagMap(buf[off : off+int(rlen)])
		if err != nil {
			return nil, err
		}
		l.Result = *m
		off += int(rlen)
	}
	return l, nil
}

// paramsEndOffset returns the byte offset, within a generated BSP body,
// immediately after the params field (i.e. where the result-length SDNV
// would begin) — used by BAB canonicalization to exclude a trailing
// block's own result from its digest coverage (§4.E).
func paramsEndOffset(l *Locals) int {
	body := serializeBSPBody(&Locals{CSNum: l.CSNum, Flags: l.Flags &^ HasResult, Correlator: l.Correlator, Params: l.Params})
	return len(body)
}
