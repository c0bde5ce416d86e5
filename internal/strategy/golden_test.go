package strategy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/skipif/internal/testutil"
)

func TestMarkerLayoutGolden(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	// Flat mode, success.
	flat := NewMarkers(Retriable(isTransient))
	touch(t, filepath.Join(root, "t"))
	require.NoError(t, flat.Callback(ctx, Outcome{}, filepath.Join(root, "t"), fp(1, 1)))

	// Folder mode, permanent failure.
	folder := NewMarkers(Folder(), Retriable(isTransient))
	require.NoError(t, folder.Callback(ctx, Outcome{Err: errPermanent}, filepath.Join(root, "d"), fp(1, 1)))

	// Flat mode without hashes, retriable failure after a success.
	bare := NewMarkers(WithoutHashes(), Retriable(isTransient))
	touch(t, filepath.Join(root, "u"))
	require.NoError(t, bare.Callback(ctx, Outcome{}, filepath.Join(root, "u"), fp(2, 2)))
	require.NoError(t, bare.Callback(ctx, Outcome{Err: errTransient}, filepath.Join(root, "u"), fp(2, 2)))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "marker_layout", testutil.DumpTree(t, root))
}
