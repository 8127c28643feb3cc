package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed identifier built from a v7 UUID, so ids of one
// prefix sort by creation time.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "-" + strings.ReplaceAll(id.String(), "-", "")
}
