package bsp

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/dtnd/bpagent/bpblock"
	"github.com/dtnd/bpagent/bsp/keystore"
	"github.com/dtnd/bpagent/bundle"
)

func pibHash(h Hash) (func() hash.Hash, crypto.Hash) {
	if h == HashSHA384 {
		return sha512.New384, crypto.SHA384
	}
	return sha256.New, crypto.SHA256
}

// PIBEngine implements the PIB lifecycle hooks (§4.E, §4.F). It covers
// the primary block, the payload, and every extension block other than
// itself, BAB, PCB, and ESB blocks — those carry their own, independently
// layered integrity/confidentiality mechanisms.
type PIBEngine struct {
	Keys *keystore.Store
}

func (e *PIBEngine) covered(blk *bpblock.BlockInfo, pib *bpblock.BlockInfo) bool {
	if blk == pib {
		return false
	}
	switch blk.Type {
	case bundle.TypeBAB, bundle.TypePCB, bundle.TypeESB:
		return false
	}
	return true
}

// Prepare inserts one PIB block after the primary (after a leading BAB
// block if the bundle's first block is one).
func (e *PIBEngine) Prepare(bd *bundle.Bundle, csnum uint16, secDest bpblock.EID) (*bpblock.BlockInfo, error) {
	prim, ok := Family[csnum]
	if !ok || prim.Kind != KindPIB {
		return nil, ErrUnknownCiphersuite
	}
	pib := &bpblock.BlockInfo{Locals: &Locals{
		CSNum:   csnum,
		Flags:   HasDest,
		SecDest: secDest,
	}}
	at := -1 // front of Blocks: right after the primary
	if len(bd.Blocks) > 0 && bd.Blocks[0].Type == bundle.TypeBAB {
		at = 0 // after the leading BAB block
	}
	bd.InsertAfter(at, pib)
	return pib, nil
}

func (e *PIBEngine) digest(bd *bundle.Bundle, pib *bpblock.BlockInfo, primaryBytes []byte, h hash.Hash, self *pibSelfFields) error {
	h.Write(primaryBytes)
	for _, blk := range bd.Blocks {
		var s *pibSelfFields
		if blk == pib {
			s = self
		}
		if !e.covered(blk, pib) && blk != pib {
			continue
		}
		if err := WriteCanonicalExtensionBlock(h, blk, bd.Primary.Dictionary, s); err != nil {
			return err
		}
	}
	return nil
}

// Generate reserves signature-result space and writes the PIB block.
func (e *PIBEngine) Generate(bd *bundle.Bundle, pib *bpblock.BlockInfo, dict *bpblock.Dictionary) ([]byte, error) {
	l := pib.Locals.(*Locals)
	prim := Family[l.CSNum]

	key, ok := e.Keys.Lookup(l.SecDest.String(), l.CSNum)
	if !ok {
		return nil, ErrKeyNotFound
	}

	var sigLen int
	switch prim.Sig {
	case SigRSA:
		sigLen = key.RSAKey.Size()
	case SigECDSA:
		sigLen = 2 * ((prim.Curve.Params().BitSize + 7) / 8) // loose upper bound for ASN.1 DER
	}

	l.Flags |= HasResult
	l.Result.Set(TagSignature, make([]byte, sigLen))
	body := serializeBSPBody(l)
	pib.GeneratePreamble(dict, bundle.TypePIB, bpblock.ReportOnError, nil, uint64(len(body)))
	pib.SetPayload(body)
	return body, nil
}

// Finalize computes the digest and signs it, back-patching the
// signature into the reserved result slot.
func (e *PIBEngine) Finalize(bd *bundle.Bundle, pib *bpblock.BlockInfo, primaryBytes []byte) error {
	l := pib.Locals.(*Locals)
	prim := Family[l.CSNum]
	hashCtor, cryptoHash := pibHash(prim.Hash)

	key, ok := e.Keys.Lookup(l.SecDest.String(), l.CSNum)
	if !ok {
		return ErrKeyNotFound
	}

	params := l.Params.Encode(nil)
	self := &pibSelfFields{CSNum: l.CSNum, Flags: l.Flags, HasCorrelator: l.Flags.Has(HasCorrelator), Correlator: l.Correlator, Params: params}
	if l.CSNum == 2 {
		if sig, ok := l.Result.Get(TagSignature); ok {
			self.SigResultLen = len(sig)
		}
	}

	h := hashCtor()
	if err := e.digest(bd, pib, primaryBytes, h, self); err != nil {
		return err
	}
	digest := h.Sum(nil)

	var sig []byte
	var err error
	switch prim.Sig {
	case SigRSA:
		sig, err = rsa.SignPKCS1v15(rand.Reader, key.RSAKey, cryptoHash, digest)
	case SigECDSA:
		sig, err = ecdsa.SignASN1(rand.Reader, key.ECDSAKey, digest)
	}
	if err != nil {
		return err
	}

	l.Result.Set(TagSignature, sig)
	body := serializeBSPBody(l)
	pib.SetPayload(body)
	return nil
}

// Validate reconstructs the digest and verifies the carried signature.
func (e *PIBEngine) Validate(bd *bundle.Bundle, pib *bpblock.BlockInfo, primaryBytes []byte) error {
	l := pib.Locals.(*Locals)
	prim := Family[l.CSNum]
	hashCtor, cryptoHash := pibHash(prim.Hash)

	key, ok := e.Keys.Lookup(l.SecDest.String(), l.CSNum)
	if !ok {
		return ErrKeyNotFound
	}
	sig, ok := l.Result.Get(TagSignature)
	if !ok {
		return ErrSecurityFailed
	}

	params := l.Params.Encode(nil)
	self := &pibSelfFields{CSNum: l.CSNum, Flags: l.Flags, HasCorrelator: l.Flags.Has(HasCorrelator), Correlator: l.Correlator, Params: params}
	if l.CSNum == 2 {
		self.SigResultLen = len(sig)
	}

	h := hashCtor()
	if err := e.digest(bd, pib, primaryBytes, h, self); err != nil {
		return err
	}
	digest := h.Sum(nil)

	switch prim.Sig {
	case SigRSA:
		if err := rsa.VerifyPKCS1v15(&key.RSAKey.PublicKey, cryptoHash, digest, sig); err != nil {
			return ErrSecurityFailed
		}
	case SigECDSA:
		pub, ok := key.Certificate.PublicKey.(*ecdsa.PublicKey)
		if !ok || !ecdsa.VerifyASN1(pub, digest, sig) {
			return ErrSecurityFailed
		}
	}
	return nil
}
