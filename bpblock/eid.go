package bpblock

import "strings"

// EID is an endpoint identifier: a URI-style scheme plus a scheme-specific
// part. The zero value is the null EID, "dtn:none"'s sentinel meaning.
type EID struct {
	Scheme string
	SSP    string
}

// NullEID is the distinguished sentinel endpoint, "dtn:none".
var NullEID = EID{Scheme: "dtn", SSP: "none"}

// IsNull reports whether e is the null EID.
func (e EID) IsNull() bool { return e == NullEID || (e.Scheme == "" && e.SSP == "") }

// String renders the EID as "scheme:ssp".
func (e EID) String() string {
	if e.Scheme == "" && e.SSP == "" {
		return NullEID.String()
	}
	return e.Scheme + ":" + e.SSP
}

// Pattern matches a set of EIDs. The null pattern (zero value) means
// "unconstrained", which callers default per the rules of the component
// consulting it (§4.G).
type Pattern struct {
	Scheme string // "*" matches any scheme
	SSP    string // "*" as a trailing wildcard matches any suffix
}

// IsNullPattern reports whether p is the distinguished "unconstrained"
// pattern.
func (p Pattern) IsNullPattern() bool { return p.Scheme == "" && p.SSP == "" }

// Match reports whether e satisfies p. The null pattern has no special
// case here: it matches only the zero EID. Callers that treat a null
// pattern as unconstrained check IsNullPattern before calling Match.
func (p Pattern) Match(e EID) bool {
	if p.Scheme != "*" && p.Scheme != e.Scheme {
		return false
	}
	if p.SSP == "*" {
		return true
	}
	if strings.HasSuffix(p.SSP, "*") {
		return strings.HasPrefix(e.SSP, strings.TrimSuffix(p.SSP, "*"))
	}
	return p.SSP == e.SSP
}
