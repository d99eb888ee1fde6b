// Package keystore implements the BSP key store (§4.D): an ordered list
// of key entries keyed by (host, ciphersuite number), with first-match
// lookup and a wildcard host sorted last. Grounded on DTNME's
// KeyDB.{cc,h} (PEM-file-backed key material) and on the teacher's
// TCPConfig.check() "zero value means default, invalid value panics at
// construction" validation idiom, applied here to BAB key-length checks.
package keystore

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sort"
)

// Entry is one key-store row. Exactly one of Symmetric or the
// certificate/private-key pair is populated, depending on the
// ciphersuite's Kind.
type Entry struct {
	Host   string // "*" is the wildcard, always sorted last
	CSNum  uint16

	Symmetric []byte // raw BAB HMAC key

	Certificate *x509.Certificate
	RSAKey      *rsa.PrivateKey
	ECDSAKey    *ecdsa.PrivateKey
}

// requiredHMACLen returns the mandated BAB key length for a ciphersuite
// number, or 0 if csnum is not a BAB ciphersuite (§4.D).
func requiredHMACLen(csnum uint16) int {
	switch csnum {
	case 1:
		return 20 // HMAC-SHA1
	case 5:
		return 32 // HMAC-SHA256
	case 9:
		return 48 // HMAC-SHA384
	default:
		return 0
	}
}

// Store is the ordered key-entry list.
type Store struct {
	entries []Entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// Add validates and inserts an entry, keeping wildcard hosts sorted
// after all concrete hosts. It panics if a BAB entry's symmetric key
// length does not match its ciphersuite's required HMAC output length,
// mirroring the teacher's "invalid value panics at construction"
// defaulting convention — this is a configuration-time check, not a
// runtime data-path error.
func (s *Store) Add(e Entry) {
	if n := requiredHMACLen(e.CSNum); n != 0 && len(e.Symmetric) != n {
		panic(fmt.Sprintf("keystore: BAB key for host %q CS#%d must be %d bytes, got %d",
			e.Host, e.CSNum, n, len(e.Symmetric)))
	}
	s.entries = append(s.entries, e)
	sort.SliceStable(s.entries, func(i, j int) bool {
		iw, jw := s.entries[i].Host == "*", s.entries[j].Host == "*"
		if iw != jw {
			return !iw
		}
		return false
	})
}

// Lookup returns the first entry matching host and csnum, falling back
// to a wildcard-host entry for the same csnum.
func (s *Store) Lookup(host string, csnum uint16) (Entry, bool) {
	for _, e := range s.entries {
		if e.CSNum == csnum && (e.Host == host || e.Host == "*") {
			return e, true
		}
	}
	return Entry{}, false
}

// LoadPEMDir populates certificate/private-key entries for a (host,
// csnum) pair from a directory containing "cert.pem" and "key.pem",
// per DTNME's KeyDB directory layout.
func LoadPEMDir(dir, host string, csnum uint16) (Entry, error) {
	certPEM, err := os.ReadFile(dir + "/cert.pem")
	if err != nil {
		return Entry{}, fmt.Errorf("keystore: read cert.pem: %w", err)
	}
	keyPEM, err := os.ReadFile(dir + "/key.pem")
	if err != nil {
		return Entry{}, fmt.Errorf("keystore: read key.pem: %w", err)
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return Entry{}, errors.New("keystore: cert.pem has no PEM block")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return Entry{}, fmt.Errorf("keystore: parse certificate: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return Entry{}, errors.New("keystore: key.pem has no PEM block")
	}

	e := Entry{Host: host, CSNum: csnum, Certificate: cert}
	if key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes); err == nil {
		e.RSAKey = key
		return e, nil
	}
	key, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return Entry{}, fmt.Errorf("keystore: parse private key: %w", err)
	}
	e.ECDSAKey = key
	return e, nil
}
