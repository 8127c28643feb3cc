package xid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		id := New("ord")
		require.True(t, strings.HasPrefix(id, "ord-"), id)
		require.Len(t, id, len("ord-")+32)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}
