package bsp

import (
	"github.com/dtnd/bpagent/bpblock"
	"github.com/dtnd/bpagent/bundle"
)

// icvLen is the GCM authentication tag length reserved for the leading
// block's result and appended to every encapsulated block's result.
const icvLen = 16

// Seal is the combined prepare/generate/finalize pass for a PCB or ESB
// protection instance (§4.E): it inserts and fully serializes the
// leading block and, for every target block, the encapsulated
// replacement. Unlike BAB/PIB, PCB/ESB's generate and finalize are not
// split across the driver's two passes here — the AES key only exists
// once, at seal time, so key generation and encryption happen together.
func (e *ConfidentialityEngine) Seal(bd *bundle.Bundle, csnum uint16, secDest bpblock.EID, targets []*bpblock.BlockInfo, dict *bpblock.Dictionary, correlatorSeq uint64) (*bpblock.BlockInfo, error) {
	prim, ok := Family[csnum]
	if !ok || (prim.Kind != KindPCB && prim.Kind != KindESB) {
		return nil, ErrUnknownCiphersuite
	}

	dest, ok := e.Keys.Lookup(secDest.String(), csnum)
	if !ok {
		return nil, ErrKeyNotFound
	}

	key := randBytes(prim.AESBits / 8)
	salt := randBytes(4)
	iv := randBytes(8)
	wrappedKey, err := kemWrap(prim, dest, key)
	if err != nil {
		return nil, err
	}

	leader := &bpblock.BlockInfo{Locals: &Locals{
		CSNum:   csnum,
		Flags:   HasDest | HasParams | HasResult,
		SecDest: secDest,
	}}
	l := leader.Locals.(*Locals)
	l.Params.Set(TagKeyInfo, wrappedKey)
	l.Params.Set(TagSalt, salt)
	l.Params.Set(TagIV, iv)

	insertAt := -1
	if i := bd.LastIndexOfType(bundle.TypeBAB); i >= 0 {
		insertAt = i
	}
	bd.InsertAfter(insertAt, leader)

	if prim.Kind == KindPCB {
		payload := bd.Payload()
		ciphertext, tag, err := gcmSeal(key, salt, iv, payload.Payload())
		if err != nil {
			return nil, err
		}
		if err := payload.Mutate(payload.DataOffset, len(payload.Payload()), func(b []byte) error {
			copy(b, ciphertext)
			return nil
		}); err != nil {
			return nil, err
		}
		l.Result.Set(TagICV, tag)
	}

	if len(targets) > 0 {
		l.Flags |= HasCorrelator
		l.Correlator = uint64(csnum)<<48 | correlatorSeq

		for _, t := range targets {
			ivI := randBytes(8)
			plaintext := append([]byte(nil), t.Contents...)
			ciphertext, tagI, err := gcmSeal(key, salt, ivI, plaintext)
			if err != nil {
				return nil, err
			}

			tl := &Locals{CSNum: csnum, Flags: HasCorrelator | HasParams | HasResult, Correlator: l.Correlator}
			tl.Params.Set(TagIV, ivI)
			tl.Result.Set(TagEncapBlock, append(ciphertext, tagI...))

			t.Locals = tl
			body := serializeBSPBody(tl)
			t.GeneratePreamble(dict, e.BlockType, bpblock.ReportOnError, nil, uint64(len(body)))
			t.SetPayload(body)
		}
	}

	body := serializeBSPBody(l)
	leader.GeneratePreamble(dict, e.BlockType, bpblock.ReportOnError, nil, uint64(len(body)))
	leader.SetPayload(body)
	return leader, nil
}

// Open reverses Seal on receipt: unwraps the content-encryption key,
// decrypts the payload (PCB only), and restores every block sharing the
// leading block's correlator from its encapsulated form.
func (e *ConfidentialityEngine) Open(bd *bundle.Bundle, leader *bpblock.BlockInfo) error {
	l := leader.Locals.(*Locals)
	prim := Family[l.CSNum]

	dest, ok := e.Keys.Lookup(l.SecDest.String(), l.CSNum)
	if !ok {
		return ErrKeyNotFound
	}
	wrappedKey, ok := l.Params.Get(TagKeyInfo)
	if !ok {
		return ErrSecurityFailed
	}
	key, err := kemUnwrap(prim, dest, wrappedKey)
	if err != nil {
		return ErrSecurityFailed
	}
	salt, _ := l.Params.Get(TagSalt)
	iv, _ := l.Params.Get(TagIV)

	if prim.Kind == KindPCB {
		payload := bd.Payload()
		tag, ok := l.Result.Get(TagICV)
		if !ok {
			return ErrSecurityFailed
		}
		plain, err := gcmOpen(key, salt, iv, payload.Payload(), tag)
		if err != nil {
			return ErrSecurityFailed
		}
		if err := payload.Mutate(payload.DataOffset, len(payload.Payload()), func(b []byte) error {
			copy(b, plain)
			return nil
		}); err != nil {
			return err
		}
	}

	if !l.Flags.Has(HasCorrelator) {
		return nil
	}

	for i, blk := range bd.Blocks {
		if blk == leader || blk.Type != e.BlockType {
			continue
		}
		bl, ok := blk.Locals.(*Locals)
		if !ok || bl.Correlator != l.Correlator {
			continue
		}

		ivI, _ := bl.Params.Get(TagIV)
		encap, ok := bl.Result.Get(TagEncapBlock)
		if !ok || len(encap) < icvLen {
			return ErrSecurityFailed
		}
		ciphertext, tagI := encap[:len(encap)-icvLen], encap[len(encap)-icvLen:]
		plain, err := gcmOpen(key, salt, ivI, ciphertext, tagI)
		if err != nil {
			return ErrSecurityFailed
		}

		inner := &bpblock.BlockInfo{}
		if _, err := inner.Consume(plain); err != nil || !inner.Complete() {
			return ErrSecurityFailed
		}
		inner.Metadata = append(inner.Metadata, bpblock.MetadataEntry{
			CSNum: l.CSNum, SecSource: l.SecSource, SecDest: l.SecDest, Encapsulated: true,
		})
		bd.Blocks[i] = inner
	}
	return nil
}
