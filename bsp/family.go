// Package bsp implements the Bundle Security Protocol ciphersuite engine:
// BAB/PIB/PCB/ESB block lifecycle hooks, mutable canonicalization, and
// the incoming/outgoing security policy (§4.D-§4.G).
//
// Grounded on dtn7-dtn7-gold's BCB-IOP AES-GCM block for the seal/open +
// nonce-construction idiom, and on the teacher's monitor.go Monitor[...]
// per-kind dispatch-table pattern for the ciphersuite-strategy-keyed-by-
// number design: rather than DTNME's one C++ subclass per ciphersuite
// number (Ciphersuite_BA9, Ciphersuite_PI6, Ciphersuite_PI10, ...), a
// single shared engine exists per Kind, parameterized by a Primitives
// selection struct.
package bsp

import "crypto/elliptic"

// Kind is the block category a ciphersuite number belongs to.
type Kind int

const (
	KindBAB Kind = iota
	KindPIB
	KindPCB
	KindESB
)

// Hash identifies the digest/HMAC primitive a ciphersuite number uses.
type Hash int

const (
	HashSHA1 Hash = iota
	HashSHA256
	HashSHA384
)

// Sig identifies the signature scheme a PIB ciphersuite number uses.
type Sig int

const (
	SigNone Sig = iota
	SigRSA
	SigECDSA
)

// KEM identifies the key-encapsulation scheme a PCB/ESB ciphersuite
// number uses to wrap its AES key to the security destination.
type KEM int

const (
	KEMNone KEM = iota
	KEMRSA
	KEMECDH
)

// Primitives names the concrete cryptographic choices a ciphersuite
// number makes, shared by the one engine implementation for its Kind.
type Primitives struct {
	Kind     Kind
	Hash     Hash
	Sig      Sig
	KEM      KEM
	Curve    elliptic.Curve // for ECDSA/ECDH KEMs
	AESBits  int            // 128 or 256, for PCB/ESB
}

// Family is the registered set of ciphersuite numbers (§4.E's table).
var Family = map[uint16]Primitives{
	1:  {Kind: KindBAB, Hash: HashSHA1},
	2:  {Kind: KindPIB, Hash: HashSHA256, Sig: SigRSA},
	3:  {Kind: KindPCB, KEM: KEMRSA, AESBits: 128},
	4:  {Kind: KindESB, KEM: KEMRSA, AESBits: 128},
	5:  {Kind: KindBAB, Hash: HashSHA256},
	6:  {Kind: KindPIB, Hash: HashSHA256, Sig: SigECDSA, Curve: elliptic.P256()},
	7:  {Kind: KindPCB, KEM: KEMECDH, Curve: elliptic.P256(), AESBits: 128},
	8:  {Kind: KindESB, KEM: KEMECDH, Curve: elliptic.P256(), AESBits: 128},
	9:  {Kind: KindBAB, Hash: HashSHA384},
	10: {Kind: KindPIB, Hash: HashSHA384, Sig: SigECDSA, Curve: elliptic.P384()},
	11: {Kind: KindPCB, KEM: KEMECDH, Curve: elliptic.P384(), AESBits: 256},
	12: {Kind: KindESB, KEM: KEMECDH, Curve: elliptic.P384(), AESBits: 256},
}

// HMACLen returns the HMAC output length in bytes for a BAB hash choice.
func (h Hash) HMACLen() int {
	switch h {
	case HashSHA1:
		return 20
	case HashSHA256:
		return 32
	case HashSHA384:
		return 48
	default:
		return 0
	}
}
