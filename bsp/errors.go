package bsp

import "errors"

var (
	// ErrMalformedSecurityField signals an undecodable security-parameter
	// or security-result tag sequence — a protocol violation (§5).
	ErrMalformedSecurityField = errors.New("bsp: malformed security field")

	// ErrSecurityFailed signals a ciphersuite validate hook rejecting a
	// block: HMAC mismatch, bad signature, bad tag, or missing key. The
	// bundle is deleted with REASON_SECURITY_FAILED; the connection
	// continues (§5).
	ErrSecurityFailed = errors.New("bsp: security validation failed")

	// ErrKeyNotFound signals a keystore lookup miss for the (host,
	// ciphersuite) pair a block's security source/destination requires.
	ErrKeyNotFound = errors.New("bsp: no matching key store entry")

	// ErrUnknownCiphersuite signals a CS# absent from the Family table —
	// a protocol violation (§5).
	ErrUnknownCiphersuite = errors.New("bsp: unknown ciphersuite number")
)
