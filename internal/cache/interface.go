package cache

import (
	"github.com/yejune/jsbind/internal/transpile"
)

// Cache defines the interface for module build caching
type Cache interface {
	// GetBuild retrieves a bundled module from cache
	GetBuild(filePath string) (transpile.BuildResult, bool, error)
	// SetBuild stores a bundled module in cache
	SetBuild(filePath string, build transpile.BuildResult) error
	// RemoveBuild removes a bundled module from cache
	RemoveBuild(filePath string) error

	// Module mapping
	SetSourceFile(moduleID, filePath string) error
	GetModuleIDsForSourceFile(filePath string) ([]string, error)
	GetAllModuleIDs() ([]string, error)
	GetModuleIDsWithFile(filePath string) ([]string, error)

	// Dependencies
	SetModuleDependencies(filePath string, dependencies []string) error
	GetSourceFilesFromDependency(dependencyPath string) ([]string, error)

	// Clear removes all cached data
	Clear() error
}

// CacheType represents the type of cache to use
type CacheType string

const (
	CacheTypeLocal CacheType = "local" // In-memory cache (default)
	CacheTypeRedis CacheType = "redis" // Redis distributed cache
)

// CacheConfig configures the cache
type CacheConfig struct {
	Type CacheType // "local" or "redis"

	// Redis options (only used if Type is "redis")
	RedisAddr     string // Redis address (e.g., "localhost:6379")
	RedisPassword string // Redis password
	RedisDB       int    // Redis database number
	RedisTLS      bool   // Enable TLS for Redis connection
}
