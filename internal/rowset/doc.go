// Package rowset defines the row and query model shared by the change
// tracker and the SQLite store.
//
//   - Row / Rows: immutable snapshots of fetched result rows
//   - Query: an opaque SQL statement with bound arguments
//   - Region: the (table, column) pairs a query may read, used to decide
//     whether a commit can affect a tracked query
//   - Reader / Writer: the capabilities the tracker needs from a database
//
// The package sits below both internal/track and internal/store so the
// store can satisfy the tracker's database interface without either
// importing the other.
//
// # Value Model
//
// Row values carry the SQLite scalar set: nil, int64, float64, bool,
// string, []byte, and time.Time. Equality is by content ([]byte compared
// byte-wise, time.Time via Equal), never by pointer.
//
// MarshalCanonical serializes values to RFC 8785 canonical JSON (UTF-16
// sorted keys, NFC strings, no HTML escaping) so change traces compare
// byte-identical across runs.
package rowset
