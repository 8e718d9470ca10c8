package domain

// Cursor is the identifier of the newest post already processed.
// The zero value means nothing has been processed yet.
type Cursor string

// IsZero reports whether the cursor is unset.
func (c Cursor) IsZero() bool {
	return c == ""
}

// Admits reports whether id is strictly newer than the cursor.
// Identifiers are compared byte-wise; an empty id is never admitted.
func (c Cursor) Admits(id string) bool {
	if id == "" {
		return false
	}
	return c.IsZero() || id > string(c)
}

// Advance returns the larger of the cursor and id.
func (c Cursor) Advance(id string) Cursor {
	if c.Admits(id) {
		return Cursor(id)
	}
	return c
}

// String renders the cursor for logs.
func (c Cursor) String() string {
	if c.IsZero() {
		return "none"
	}
	return string(c)
}
