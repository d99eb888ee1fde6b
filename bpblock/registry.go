package bpblock

// Processor implements the per-block-type behavior a bundle agent needs
// around a block: decoding its payload into a usable form, preparing it
// before transmission, generating its wire bytes, and validating it on
// receipt. A Registry maps block-type octets to a Processor so the
// dispatch stays data-driven instead of a type-switch per call site
// (§9's extensibility note).
type Processor interface {
	// Consume is called once a BlockInfo is Complete, to parse its
	// Payload into whatever the processor's block type needs.
	Consume(b *BlockInfo) error

	// Prepare is called before a bundle is forwarded, to let the
	// processor update the block ahead of Generate (e.g. recomputing
	// a digest over newly finalized sibling blocks).
	Prepare(b *BlockInfo) error

	// Generate serializes the processor's in-memory state for b into
	// wire bytes, returning the block's Payload.
	Generate(b *BlockInfo, dict *Dictionary) ([]byte, error)

	// Finalize is called after every other block in the bundle has
	// been generated, for processors whose content depends on the
	// full block vector (e.g. a BAB trailer's HMAC).
	Finalize(b *BlockInfo) error

	// Validate is called on receipt, after Consume, to check the
	// block's content against bundle-level context (e.g. a PIB
	// signature against the blocks it covers).
	Validate(b *BlockInfo) error
}

// Registry maps block-type octets to the Processor responsible for
// them. It is passed explicitly to the codec and BSP engine rather than
// held as a package global, so a single process can run independent
// registries (e.g. one per test case) without interference.
type Registry struct {
	byType map[byte]Processor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[byte]Processor)}
}

// Register associates typ with p, replacing any previous registration.
func (r *Registry) Register(typ byte, p Processor) {
	r.byType[typ] = p
}

// Lookup returns the Processor registered for typ, if any.
func (r *Registry) Lookup(typ byte) (Processor, bool) {
	p, ok := r.byType[typ]
	return p, ok
}
