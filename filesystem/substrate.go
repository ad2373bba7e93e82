package filesystem

// SubstrateIdentifiable is an optional capability a FileSystem may
// implement to report which concrete substrate backs it (e.g. "native",
// "memory", "browser"). SyncTarget uses this, when available, to verify
// that a FileSystem bound via Initialize matches the substrate kind the
// target was declared with, per spec.md §4.3. Substrates that don't
// implement this interface are accepted unconditionally, since the
// check is a convenience, not a safety requirement of the contract
// itself.
type SubstrateIdentifiable interface {
	// SubstrateKind returns a short, stable name for the substrate.
	SubstrateKind() string
}

const (
	// SubstrateKindNative identifies the native host filesystem
	// substrate (filesystem/nativefs).
	SubstrateKindNative = "native"
	// SubstrateKindMemory identifies the sandboxed in-process
	// filesystem substrate (filesystem/memfs).
	SubstrateKindMemory = "memory"
)
