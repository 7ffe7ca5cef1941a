package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yejune/jsbind/internal/transpile"
)

func TestLocalCacheBuilds(t *testing.T) {
	c := NewLocalCache()

	_, found, err := c.GetBuild("/app/mod.js")
	require.NoError(t, err)
	assert.False(t, found)

	build := transpile.BuildResult{GlobalName: "__m_abc", JS: "var __m_abc = {};"}
	require.NoError(t, c.SetBuild("/app/mod.js", build))

	got, found, err := c.GetBuild("/app/mod.js")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, build, got)

	require.NoError(t, c.RemoveBuild("/app/mod.js"))
	_, found, _ = c.GetBuild("/app/mod.js")
	assert.False(t, found)
}

func TestLocalCacheModuleMapping(t *testing.T) {
	c := NewLocalCache()
	require.NoError(t, c.SetSourceFile("__m_a", "/app/a.js"))
	require.NoError(t, c.SetSourceFile("__m_b", "/app/b.js"))

	ids, err := c.GetModuleIDsForSourceFile("/app/a.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"__m_a"}, ids)

	all, err := c.GetAllModuleIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"__m_a", "__m_b"}, all)
}

func TestLocalCacheDependencyIndex(t *testing.T) {
	c := NewLocalCache()
	require.NoError(t, c.SetSourceFile("__m_a", "/app/a.js"))
	require.NoError(t, c.SetModuleDependencies("/app/a.js", []string{"/app/lib/util.js"}))

	// A change to the dependency maps back to the module that bundled it.
	ids, err := c.GetModuleIDsWithFile("/app/lib/util.js")
	require.NoError(t, err)
	assert.Equal(t, []string{"__m_a"}, ids)

	// Re-setting dependencies drops stale reverse mappings.
	require.NoError(t, c.SetModuleDependencies("/app/a.js", []string{"/app/lib/other.js"}))
	sources, err := c.GetSourceFilesFromDependency("/app/lib/util.js")
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestLocalCacheClear(t *testing.T) {
	c := NewLocalCache()
	require.NoError(t, c.SetBuild("/app/a.js", transpile.BuildResult{GlobalName: "__m_a"}))
	require.NoError(t, c.SetSourceFile("__m_a", "/app/a.js"))

	require.NoError(t, c.Clear())

	_, found, _ := c.GetBuild("/app/a.js")
	assert.False(t, found)
	all, _ := c.GetAllModuleIDs()
	assert.Empty(t, all)
}

func TestNewCacheDefaultsToLocal(t *testing.T) {
	c, err := NewCache(CacheConfig{})
	require.NoError(t, err)
	assert.IsType(t, &LocalCache{}, c)
}
