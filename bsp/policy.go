// Security policy (§4.G): ordered incoming/outgoing rule lists deciding
// which ciphersuites protect which bundles, and verifying on receipt
// that every applicable rule was satisfied. Grounded on DTNME's
// SecurityConfig.cc; rule-failure aggregation uses
// github.com/hashicorp/go-multierror the way the teacher's TCPConfig
// validation reports every bad field at once rather than stopping at
// the first.
package bsp

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/dtnd/bpagent/bpblock"
	"github.com/dtnd/bpagent/bundle"
)

// Rule is one outgoing or incoming security-policy entry (§4.G).
type Rule struct {
	Source      bpblock.Pattern
	Destination bpblock.Pattern

	// SecSource and SecDest are the null pattern when unconstrained —
	// an outgoing SecDest is resolved to the rule's default by
	// resolveSecDest; VerifyInPolicy skips a null pattern.
	SecSource bpblock.Pattern
	SecDest   bpblock.Pattern

	// CSNums holds the acceptable ciphersuite numbers for an incoming
	// rule, or exactly one chosen ciphersuite for an outgoing rule.
	CSNums []uint16
}

func (r Rule) matchesEndpoints(src, dst bpblock.EID) bool {
	return r.Source.Match(src) && r.Destination.Match(dst)
}

// Policy holds the ordered incoming and outgoing rule lists.
type Policy struct {
	Incoming []Rule
	Outgoing []Rule
}

func resolveSecDest(r Rule, bd *bundle.Bundle, localEID bpblock.EID, isBAB bool) bpblock.EID {
	if !r.SecDest.IsNullPattern() {
		return bpblock.EID{Scheme: r.SecDest.Scheme, SSP: r.SecDest.SSP}
	}
	if isBAB {
		return localEID
	}
	return bd.Primary.Destination
}

// Engines bundles the per-Kind ciphersuite engines a policy drives.
type Engines struct {
	BAB *BABEngine
	PIB *PIBEngine
	PCB *ConfidentialityEngine
	ESB *ConfidentialityEngine
}

// PrepareOutBlocks consults the outgoing rule list against the bundle's
// source/destination and calls each chosen ciphersuite's prepare hook,
// marking the security destination on the new block (§4.G). Security
// blocks already in the bundle are not consulted: no existing
// security-destination is looked up, and no check is made that a rule's
// security destination agrees with an outer encapsulation already present.
func (p *Policy) PrepareOutBlocks(bd *bundle.Bundle, localEID bpblock.EID, dict *bpblock.Dictionary, eng Engines, corrSeq *uint64) error {
	var errs error
	for _, r := range p.Outgoing {
		if !r.matchesEndpoints(bd.Primary.Source, bd.Primary.Destination) {
			continue
		}
		if len(r.CSNums) != 1 {
			errs = multierror.Append(errs, fmt.Errorf("bsp: outgoing rule must name exactly one ciphersuite, got %d", len(r.CSNums)))
			continue
		}
		csnum := r.CSNums[0]
		prim, ok := Family[csnum]
		if !ok {
			errs = multierror.Append(errs, fmt.Errorf("bsp: outgoing rule names unknown ciphersuite %d", csnum))
			continue
		}

		secDest := resolveSecDest(r, bd, localEID, prim.Kind == KindBAB)
		switch prim.Kind {
		case KindBAB:
			if _, _, err := eng.BAB.Prepare(bd, csnum, secDest); err != nil {
				errs = multierror.Append(errs, err)
			}
		case KindPIB:
			if _, err := eng.PIB.Prepare(bd, csnum, secDest); err != nil {
				errs = multierror.Append(errs, err)
			}
		case KindPCB:
			*corrSeq++
			targets := PCBTargets(bd)
			if _, err := eng.PCB.Seal(bd, csnum, secDest, targets, dict, *corrSeq); err != nil {
				errs = multierror.Append(errs, err)
			}
		case KindESB:
			*corrSeq++
			targets := ESBTargets(bd)
			if _, err := eng.ESB.Seal(bd, csnum, secDest, targets, dict, *corrSeq); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs
}

// VerifyInPolicy iterates the incoming rule list and requires, for every
// rule whose source/destination patterns match the bundle, that at
// least one ciphersuite in the rule's set yielded a valid security block
// matching the rule's security-source/destination patterns (§4.G). Any
// failed rule is reported; the caller deletes the bundle with
// BUNDLE_DELETED: SECURITY_FAILED on a non-nil return.
func (p *Policy) VerifyInPolicy(bd *bundle.Bundle, present map[uint16][]*Locals) error {
	var errs error
	for _, r := range p.Incoming {
		if !r.matchesEndpoints(bd.Primary.Source, bd.Primary.Destination) {
			continue
		}
		satisfied := false
		for _, cs := range r.CSNums {
			for _, l := range present[cs] {
				if (r.SecSource.IsNullPattern() || r.SecSource.Match(l.SecSource)) &&
					(r.SecDest.IsNullPattern() || r.SecDest.Match(l.SecDest)) {
					satisfied = true
				}
			}
		}
		if !satisfied {
			errs = multierror.Append(errs, fmt.Errorf(
				"bsp: no satisfying security block for rule %s->%s among CS# %v",
				r.Source, r.Destination, r.CSNums))
		}
	}
	return errs
}
