package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CePseudoBE/digitaltwin-sub001/internal/component"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue/memqueue"
	"github.com/CePseudoBE/digitaltwin-sub001/internal/queue/redisqueue"
	"github.com/CePseudoBE/digitaltwin-sub001/pkg/config"
)

func TestBuildRecordStoreDefaultsToMemoryWhenDSNEmpty(t *testing.T) {
	cfg := config.Default()
	cfg.Database.DSN = ""

	store, closeFn, err := buildRecordStore(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, store)
	closeFn()
}

func TestBuildBlobStoreDefaultsToMemoryWhenDirEmpty(t *testing.T) {
	store := buildBlobStore("")
	require.NotNil(t, store)
}

func TestBuildBlobStoreUsesFilesystemWhenDirSet(t *testing.T) {
	store := buildBlobStore(t.TempDir())
	require.NotNil(t, store)
}

func TestBuildQueueSelectsBackendByName(t *testing.T) {
	cfg := config.Default()

	mem := buildQueue("memory", cfg, nil)
	require.IsType(t, &memqueue.Queue{}, mem)

	redis := buildQueue("redis", cfg, nil)
	require.IsType(t, &redisqueue.Queue{}, redis)

	fallback := buildQueue("", cfg, nil)
	require.IsType(t, &memqueue.Queue{}, fallback)
}

// TestExampleComponentsCoverAllFiveVariants ensures the demo wiring exercises
// one of each of the §4.1 variants, each under a distinct name.
func TestExampleComponentsCoverAllFiveVariants(t *testing.T) {
	comps := exampleComponents()
	require.Len(t, comps, 5)

	seenVariants := map[component.Variant]bool{}
	seenNames := map[string]bool{}
	for _, c := range comps {
		cfg := c.Configuration()
		require.NotEmpty(t, cfg.Name)
		require.False(t, seenNames[cfg.Name], "duplicate component name %q", cfg.Name)
		seenNames[cfg.Name] = true
		seenVariants[cfg.Variant] = true
	}

	for _, v := range []component.Variant{
		component.VariantCollector,
		component.VariantHarvester,
		component.VariantHandler,
		component.VariantAssetsManager,
		component.VariantCustomTableManager,
	} {
		require.True(t, seenVariants[v], "missing variant %s", v)
	}
}
