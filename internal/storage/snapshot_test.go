package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotPath(t *testing.T) {
	t.Parallel()

	p, err := SnapshotPath("k1", "c1", "abc")
	require.NoError(t, err)
	assert.Equal(t, "snapshots/k1/c1/abc.txt", p)

	for _, tc := range [][3]string{
		{"", "c1", "abc"},
		{"k1", "", "abc"},
		{"k1", "c1", " "},
		{"k1", "../c1", "abc"},
		{"k1", "..", "abc"},
	} {
		_, err := SnapshotPath(tc[0], tc[1], tc[2])
		assert.Error(t, err, "%v", tc)
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()

	uri, err := Discard{}.PutObject(context.Background(), "x", SnapshotContentType, strings.NewReader("body"))
	require.NoError(t, err)
	assert.Empty(t, uri)
}
