// Package capability defines the value types shared by the consent coordinator.
//
// A capability is a named grant (for example "android.permission.CAMERA") that an
// external authority either grants or denies. Callers ask for capabilities in sets.
//
// # Canonical Keys
//
// Two sets that name the same capabilities are the same request, regardless of order
// or repetition. Key normalizes every name to NFC, removes duplicates, sorts the result
// byte-wise and joins it with Delimiter:
//
//	Key("B", "A", "A") == Key("A", "B") == "A|B"
//
// The delimiter is rejected inside names, so distinct sets never collide.
//
// # Results
//
// ResultSet is the immutable outcome of one resolved request. It is built from two
// parallel sequences (names, outcomes) of equal length; a length mismatch is reported
// as ErrMalformedResult.
package capability
