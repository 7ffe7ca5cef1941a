package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yejune/jsbind/internal/transpile"
)

// RedisCache provides distributed caching via Redis, so a fleet of hosts
// can share one set of bundled modules
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisConfig configures the Redis cache
type RedisConfig struct {
	Addr     string        // Redis address (e.g., "localhost:6379")
	Password string        // Redis password (empty for no auth)
	DB       int           // Redis database number
	TTL      time.Duration // Cache TTL (0 = no expiration)
	Prefix   string        // Key prefix (default: "jsbind:")
	UseTLS   bool          // Enable TLS connection
}

// NewRedisCache creates a new Redis cache
func NewRedisCache(config RedisConfig) (*RedisCache, error) {
	opts := &redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	}

	// Enable TLS if configured
	if config.UseTLS {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "jsbind:"
	}

	return &RedisCache{
		client: client,
		ttl:    config.TTL,
		prefix: prefix,
	}, nil
}

// GetBuild retrieves a bundled module from Redis
func (rc *RedisCache) GetBuild(filePath string) (transpile.BuildResult, bool, error) {
	ctx := context.Background()
	key := rc.prefix + "build:" + filePath
	data, err := rc.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return transpile.BuildResult{}, false, nil
	}
	if err != nil {
		return transpile.BuildResult{}, false, err
	}

	var result transpile.BuildResult
	if err := json.Unmarshal(data, &result); err != nil {
		return transpile.BuildResult{}, false, err
	}

	return result, true, nil
}

// SetBuild stores a bundled module in Redis
func (rc *RedisCache) SetBuild(filePath string, build transpile.BuildResult) error {
	ctx := context.Background()
	key := rc.prefix + "build:" + filePath
	data, err := json.Marshal(build)
	if err != nil {
		return err
	}

	return rc.client.Set(ctx, key, data, rc.ttl).Err()
}

// RemoveBuild removes a bundled module from Redis
func (rc *RedisCache) RemoveBuild(filePath string) error {
	ctx := context.Background()
	key := rc.prefix + "build:" + filePath
	return rc.client.Del(ctx, key).Err()
}

// SetSourceFile maps a moduleID to its source file path
func (rc *RedisCache) SetSourceFile(moduleID, filePath string) error {
	ctx := context.Background()
	key := rc.prefix + "modules"
	return rc.client.HSet(ctx, key, moduleID, filePath).Err()
}

// GetModuleIDsForSourceFile returns all module IDs for a given file path
func (rc *RedisCache) GetModuleIDsForSourceFile(filePath string) ([]string, error) {
	ctx := context.Background()
	key := rc.prefix + "modules"
	result, err := rc.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var moduleIDs []string
	for moduleID, file := range result {
		if file == filePath {
			moduleIDs = append(moduleIDs, moduleID)
		}
	}
	return moduleIDs, nil
}

// GetAllModuleIDs returns all module IDs
func (rc *RedisCache) GetAllModuleIDs() ([]string, error) {
	ctx := context.Background()
	key := rc.prefix + "modules"
	result, err := rc.client.HKeys(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetModuleIDsWithFile returns module IDs associated with a file
func (rc *RedisCache) GetModuleIDsWithFile(filePath string) ([]string, error) {
	sourceFilesWithDependency, err := rc.GetSourceFilesFromDependency(filePath)
	if err != nil {
		return nil, err
	}
	if len(sourceFilesWithDependency) == 0 {
		sourceFilesWithDependency = []string{filePath}
	}
	var moduleIDs []string
	for _, sourceFile := range sourceFilesWithDependency {
		ids, err := rc.GetModuleIDsForSourceFile(sourceFile)
		if err != nil {
			return nil, err
		}
		moduleIDs = append(moduleIDs, ids...)
	}
	return moduleIDs, nil
}

// SetModuleDependencies sets dependencies for a source file with reverse index
func (rc *RedisCache) SetModuleDependencies(filePath string, dependencies []string) error {
	ctx := context.Background()

	// Get old dependencies to remove from reverse index
	oldDepsKey := rc.prefix + "deps:" + filePath
	oldDepsData, err := rc.client.Get(ctx, oldDepsKey).Bytes()
	var oldDeps []string
	if err == nil {
		json.Unmarshal(oldDepsData, &oldDeps)
	}

	// Remove from reverse index for old dependencies
	reverseKey := rc.prefix + "revdeps"
	for _, dep := range oldDeps {
		rc.client.SRem(ctx, reverseKey+":"+dep, filePath)
	}

	// Set forward index
	data, err := json.Marshal(dependencies)
	if err != nil {
		return err
	}
	if err := rc.client.Set(ctx, oldDepsKey, data, rc.ttl).Err(); err != nil {
		return err
	}

	// Add to reverse index for new dependencies
	for _, dep := range dependencies {
		if err := rc.client.SAdd(ctx, reverseKey+":"+dep, filePath).Err(); err != nil {
			return err
		}
		// Set TTL on reverse index key if TTL is configured
		if rc.ttl > 0 {
			rc.client.Expire(ctx, reverseKey+":"+dep, rc.ttl)
		}
	}

	return nil
}

// GetSourceFilesFromDependency returns source files that depend on a given file using reverse index
func (rc *RedisCache) GetSourceFilesFromDependency(dependencyPath string) ([]string, error) {
	ctx := context.Background()
	reverseKey := rc.prefix + "revdeps:" + dependencyPath

	result, err := rc.client.SMembers(ctx, reverseKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Clear removes all jsbind keys from cache
func (rc *RedisCache) Clear() error {
	ctx := context.Background()
	pattern := rc.prefix + "*"
	var cursor uint64
	for {
		keys, nextCursor, err := rc.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return err
		}

		if len(keys) > 0 {
			if err := rc.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return nil
}

// Invalidate removes a specific module build from cache
func (rc *RedisCache) Invalidate(filePath string) error {
	ctx := context.Background()
	return rc.client.Del(ctx, rc.prefix+"build:"+filePath).Err()
}

// Close closes the Redis connection
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Stats returns cache statistics
func (rc *RedisCache) Stats(ctx context.Context) (map[string]interface{}, error) {
	info, err := rc.client.Info(ctx, "stats").Result()
	if err != nil {
		return nil, err
	}

	// Count jsbind keys
	pattern := rc.prefix + "*"
	var count int64
	var cursor uint64
	for {
		keys, nextCursor, err := rc.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		count += int64(len(keys))
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return map[string]interface{}{
		"type":       "redis",
		"key_count":  count,
		"prefix":     rc.prefix,
		"redis_info": info,
	}, nil
}
