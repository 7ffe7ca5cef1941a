package cache

import (
	"sync"

	"github.com/yejune/jsbind/internal/transpile"
)

// LocalCache is an in-memory cache implementation
// It implements the Cache interface
type LocalCache struct {
	builds               *builds
	moduleIDToSourceFile *moduleIDToSourceFile
	sourceFileToDeps     *sourceFileToDeps
	// Reverse index: dependency -> source files
	depToSourceFiles *depToSourceFiles
}

// NewLocalCache creates a new in-memory cache
func NewLocalCache() *LocalCache {
	return &LocalCache{
		builds: &builds{
			builds: make(map[string]transpile.BuildResult),
			lock:   sync.RWMutex{},
		},
		moduleIDToSourceFile: &moduleIDToSourceFile{
			sourceFiles: make(map[string]string),
			lock:        sync.RWMutex{},
		},
		sourceFileToDeps: &sourceFileToDeps{
			dependencies: make(map[string][]string),
			lock:         sync.RWMutex{},
		},
		depToSourceFiles: &depToSourceFiles{
			sources: make(map[string]map[string]struct{}),
			lock:    sync.RWMutex{},
		},
	}
}

type builds struct {
	builds map[string]transpile.BuildResult
	lock   sync.RWMutex
}

func (cm *LocalCache) GetBuild(filePath string) (transpile.BuildResult, bool, error) {
	cm.builds.lock.RLock()
	defer cm.builds.lock.RUnlock()
	build, ok := cm.builds.builds[filePath]
	return build, ok, nil
}

func (cm *LocalCache) SetBuild(filePath string, build transpile.BuildResult) error {
	cm.builds.lock.Lock()
	defer cm.builds.lock.Unlock()
	cm.builds.builds[filePath] = build
	return nil
}

func (cm *LocalCache) RemoveBuild(filePath string) error {
	cm.builds.lock.Lock()
	defer cm.builds.lock.Unlock()
	delete(cm.builds.builds, filePath)
	return nil
}

type moduleIDToSourceFile struct {
	sourceFiles map[string]string
	lock        sync.RWMutex
}

func (cm *LocalCache) SetSourceFile(moduleID, filePath string) error {
	cm.moduleIDToSourceFile.lock.Lock()
	defer cm.moduleIDToSourceFile.lock.Unlock()
	cm.moduleIDToSourceFile.sourceFiles[moduleID] = filePath
	return nil
}

func (cm *LocalCache) GetModuleIDsForSourceFile(filePath string) ([]string, error) {
	cm.moduleIDToSourceFile.lock.RLock()
	defer cm.moduleIDToSourceFile.lock.RUnlock()
	var moduleIDs []string
	for moduleID, file := range cm.moduleIDToSourceFile.sourceFiles {
		if file == filePath {
			moduleIDs = append(moduleIDs, moduleID)
		}
	}
	return moduleIDs, nil
}

func (cm *LocalCache) GetAllModuleIDs() ([]string, error) {
	cm.moduleIDToSourceFile.lock.RLock()
	defer cm.moduleIDToSourceFile.lock.RUnlock()
	moduleIDs := make([]string, 0, len(cm.moduleIDToSourceFile.sourceFiles))
	for moduleID := range cm.moduleIDToSourceFile.sourceFiles {
		moduleIDs = append(moduleIDs, moduleID)
	}
	return moduleIDs, nil
}

func (cm *LocalCache) GetModuleIDsWithFile(filePath string) ([]string, error) {
	sourceFilesWithDependency, err := cm.GetSourceFilesFromDependency(filePath)
	if err != nil {
		return nil, err
	}
	if len(sourceFilesWithDependency) == 0 {
		sourceFilesWithDependency = []string{filePath}
	}
	var moduleIDs []string
	for _, sourceFile := range sourceFilesWithDependency {
		ids, err := cm.GetModuleIDsForSourceFile(sourceFile)
		if err != nil {
			return nil, err
		}
		moduleIDs = append(moduleIDs, ids...)
	}
	return moduleIDs, nil
}

type sourceFileToDeps struct {
	dependencies map[string][]string
	lock         sync.RWMutex
}

// depToSourceFiles is a reverse index for O(1) lookup
type depToSourceFiles struct {
	sources map[string]map[string]struct{} // dependency -> set of source files
	lock    sync.RWMutex
}

func (cm *LocalCache) SetModuleDependencies(filePath string, dependencies []string) error {
	// Update forward index
	cm.sourceFileToDeps.lock.Lock()
	oldDeps := cm.sourceFileToDeps.dependencies[filePath]
	cm.sourceFileToDeps.dependencies[filePath] = dependencies
	cm.sourceFileToDeps.lock.Unlock()

	// Update reverse index
	cm.depToSourceFiles.lock.Lock()
	defer cm.depToSourceFiles.lock.Unlock()

	// Remove old reverse mappings
	for _, dep := range oldDeps {
		if sources, ok := cm.depToSourceFiles.sources[dep]; ok {
			delete(sources, filePath)
			if len(sources) == 0 {
				delete(cm.depToSourceFiles.sources, dep)
			}
		}
	}

	// Add new reverse mappings
	for _, dep := range dependencies {
		if cm.depToSourceFiles.sources[dep] == nil {
			cm.depToSourceFiles.sources[dep] = make(map[string]struct{})
		}
		cm.depToSourceFiles.sources[dep][filePath] = struct{}{}
	}

	return nil
}

func (cm *LocalCache) GetSourceFilesFromDependency(dependencyPath string) ([]string, error) {
	cm.depToSourceFiles.lock.RLock()
	defer cm.depToSourceFiles.lock.RUnlock()

	sources, ok := cm.depToSourceFiles.sources[dependencyPath]
	if !ok {
		return nil, nil
	}

	result := make([]string, 0, len(sources))
	for source := range sources {
		result = append(result, source)
	}
	return result, nil
}

// Clear removes all cached data
func (cm *LocalCache) Clear() error {
	cm.builds.lock.Lock()
	cm.builds.builds = make(map[string]transpile.BuildResult)
	cm.builds.lock.Unlock()

	cm.moduleIDToSourceFile.lock.Lock()
	cm.moduleIDToSourceFile.sourceFiles = make(map[string]string)
	cm.moduleIDToSourceFile.lock.Unlock()

	cm.sourceFileToDeps.lock.Lock()
	cm.sourceFileToDeps.dependencies = make(map[string][]string)
	cm.sourceFileToDeps.lock.Unlock()

	cm.depToSourceFiles.lock.Lock()
	cm.depToSourceFiles.sources = make(map[string]map[string]struct{})
	cm.depToSourceFiles.lock.Unlock()

	return nil
}

// NewCache creates a cache based on the config
func NewCache(config CacheConfig) (Cache, error) {
	switch config.Type {
	case CacheTypeRedis:
		return NewRedisCache(RedisConfig{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
			UseTLS:   config.RedisTLS,
		})
	case CacheTypeLocal, "":
		return NewLocalCache(), nil
	default:
		return NewLocalCache(), nil
	}
}
