package bsp

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/dtnd/bpagent/bpblock"
	"github.com/dtnd/bpagent/bundle"
	"github.com/dtnd/bpagent/bsp/keystore"
)

// babHash returns the keyed-hash constructor for a BAB ciphersuite's
// Hash choice.
func babHash(h Hash) func() hash.Hash {
	switch h {
	case HashSHA1:
		return sha1.New
	case HashSHA384:
		return sha512.New384
	default:
		return sha256.New
	}
}

// BABEngine implements the BAB lifecycle hooks (§4.E). Leading and
// trailing blocks of one protection instance share a correlator whose
// high 16 bits are the ciphersuite number; the low bit distinguishes
// trailing (1) from leading (0), operationalizing the spec's "the
// trailing block carries sequence=1" — an Open Question resolution
// recorded in DESIGN.md.
type BABEngine struct {
	Keys *keystore.Store
}

// Prepare inserts a correlated leading/trailing BAB block pair: leading
// immediately after the primary, trailing as the bundle's last block.
func (e *BABEngine) Prepare(bd *bundle.Bundle, csnum uint16, secDest bpblock.EID) (leading, trailing *bpblock.BlockInfo, err error) {
	prim, ok := Family[csnum]
	if !ok || prim.Kind != KindBAB {
		return nil, nil, ErrUnknownCiphersuite
	}

	pairs := 0
	for _, blk := range bd.Blocks {
		if blk.Type == bundle.TypeBAB {
			pairs++
		}
	}
	pairID := uint64(pairs / 2)
	base := uint64(csnum)<<48 | pairID<<1

	leading = &bpblock.BlockInfo{Locals: &Locals{
		CSNum:      csnum,
		Flags:      HasDest | HasCorrelator,
		Correlator: base,
		SecDest:    secDest,
	}}
	trailing = &bpblock.BlockInfo{Locals: &Locals{
		CSNum:      csnum,
		Flags:      HasDest | HasCorrelator | HasResult,
		Correlator: base | 1,
		SecDest:    secDest,
	}}

	bd.InsertAfter(-1, leading)
	bd.Append(trailing)
	return leading, trailing, nil
}

// Generate serializes a BAB block's current Locals state into wire
// bytes, reserving HMAC-length zero bytes as the trailing block's
// result placeholder.
func (e *BABEngine) Generate(blk *bpblock.BlockInfo, dict *bpblock.Dictionary, typ byte) ([]byte, error) {
	l := blk.Locals.(*Locals)
	if l.Flags.Has(HasResult) && l.Result.Empty() {
		n := Family[l.CSNum].Hash.HMACLen()
		l.Result.Set(TagSignature, make([]byte, n))
	}
	body := serializeBSPBody(l)
	blk.GeneratePreamble(dict, typ, bpblock.ReportOnError, nil, uint64(len(body)))
	blk.SetPayload(body)
	return body, nil
}

// Finalize computes the HMAC over the bundle's blocks as they currently
// stand (called on the leading block, after every other block has been
// generated) and back-patches the result into the trailing block.
func (e *BABEngine) Finalize(bd *bundle.Bundle, leading, trailing *bpblock.BlockInfo, primaryBytes []byte) error {
	l := leading.Locals.(*Locals)
	prim := Family[l.CSNum]

	key, ok := e.Keys.Lookup(l.SecDest.String(), l.CSNum)
	if !ok {
		return ErrKeyNotFound
	}

	mac := hmac.New(babHash(prim.Hash), key.Symmetric)
	mac.Write(primaryBytes)
	for _, blk := range bd.Blocks {
		if blk == trailing {
			tl := trailing.Locals.(*Locals)
			if err := WriteBABCanonicalBlock(mac, blk, blk.DataOffset+paramsEndOffset(tl), true); err != nil {
				return err
			}
			continue
		}
		if err := WriteBABCanonicalBlock(mac, blk, 0, false); err != nil {
			return err
		}
	}
	sum := mac.Sum(nil)

	tl := trailing.Locals.(*Locals)
	tl.Result.Set(TagSignature, sum)
	body := serializeBSPBody(tl)
	trailing.SetPayload(body)
	return nil
}

// Validate recomputes the HMAC over the received blocks and compares it
// to the trailing block's carried result.
func (e *BABEngine) Validate(bd *bundle.Bundle, leading, trailing *bpblock.BlockInfo, primaryBytes []byte) error {
	l := leading.Locals.(*Locals)
	prim := Family[l.CSNum]

	key, ok := e.Keys.Lookup(l.SecDest.String(), l.CSNum)
	if !ok {
		return ErrKeyNotFound
	}

	mac := hmac.New(babHash(prim.Hash), key.Symmetric)
	mac.Write(primaryBytes)
	for _, blk := range bd.Blocks {
		if blk == trailing {
			tl := trailing.Locals.(*Locals)
			if err := WriteBABCanonicalBlock(mac, blk, blk.DataOffset+paramsEndOffset(tl), true); err != nil {
				return err
			}
			continue
		}
		if err := WriteBABCanonicalBlock(mac, blk, 0, false); err != nil {
			return err
		}
	}
	sum := mac.Sum(nil)

	tl := trailing.Locals.(*Locals)
	got, ok := tl.Result.Get(TagSignature)
	if !ok || !hmac.Equal(sum, got) {
		return ErrSecurityFailed
	}
	return nil
}
