package backup

// MembershipSet is the durable set of fingerprints the Scanner has already
// offered for upload. It is a separate store from the Catalog and only grows.
// Implementations must be safe for concurrent use.
type MembershipSet interface {
	// Contains reports whether the fingerprint has been seen.
	Contains(fingerprint string) bool

	// Add records the fingerprint and reports whether it was new.
	Add(fingerprint string) bool

	// Len returns the number of fingerprints in the set.
	Len() int

	// Flush persists the set.
	Flush() error
}
