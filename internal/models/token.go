package models

// StateToken is the opaque set of hidden form fields the catalog server
// requires to be echoed back byte-for-byte on the next postback. Every
// response yields a fresh token set that invalidates the previous one.
//
// Seq orders token sets within a single traversal session; it is assigned
// by the traversal engine when the token is extracted, never by the server.
type StateToken struct {
	Seq    uint64
	Fields map[string]string
}

// IsZero reports whether the token carries no extracted fields.
func (t StateToken) IsZero() bool {
	return len(t.Fields) == 0
}

// WithSeq returns a copy of the token stamped with the given sequence number.
func (t StateToken) WithSeq(seq uint64) StateToken {
	t.Seq = seq
	return t
}
