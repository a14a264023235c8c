package audit

import "strings"

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Query selects a page of the audit trail, newest first.
type Query struct {
	Username string
	Page     int
	Size     int
}

// Window turns page and size into an offset and a clamped limit. Pages
// start at 1.
func (q Query) Window() (from, limit int) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.Size
	if size <= 0 {
		size = DefaultLimit
	}
	size = min(size, MaxLimit)
	return (page - 1) * size, size
}

func (q Query) User() string {
	return strings.TrimSpace(q.Username)
}
