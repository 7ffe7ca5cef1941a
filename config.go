package jsbind

import (
	"fmt"
	"os"
	"time"

	"github.com/yejune/jsbind/internal/cache"
	"github.com/yejune/jsbind/internal/utils"
)

// Config is the config for creating a context
type Config struct {
	Timeout             time.Duration     // Budget for each evaluation, 0 means unbounded
	MaxHeapSize         uint64            // Engine heap ceiling in bytes, 0 means engine default
	WorkDir             string            // Base directory for module resolution, working directory by default
	PoolSize            int               // The number of contexts to keep in a pool, 10 by default
	CacheConfig         cache.CacheConfig // Module build cache configuration (local or redis)
	HotReloadServerPort int               // The port to run the hot reload server on, 3001 by default
	IsDev               bool              // Development mode - enables the module watcher and hot reload
}

// Validate validates the config
func (c *Config) Validate() error {
	if c.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		c.WorkDir = wd
	} else {
		c.WorkDir = utils.GetFullFilePath(c.WorkDir)
		info, err := os.Stat(c.WorkDir)
		if err != nil {
			return fmt.Errorf("work dir at %s does not exist", c.WorkDir)
		}
		if !info.IsDir() {
			return fmt.Errorf("work dir at %s: %w", c.WorkDir, ErrNotADirectory)
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.HotReloadServerPort == 0 {
		c.HotReloadServerPort = 3001
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	return nil
}
