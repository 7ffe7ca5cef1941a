//go:build !prod

package jsbind

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"github.com/yejune/jsbind/internal/utils"
)

// HotReload watches module sources and tells connected clients which
// modules went stale. Stale bundles are dropped from the build cache so
// the next LoadModule rebuilds them.
type HotReload struct {
	ctx              *Context
	logger           *slog.Logger
	connectedClients map[string][]*websocket.Conn
	clientsMu        sync.Mutex
}

// newHotReload creates a new HotReload instance
func newHotReload(ctx *Context) *HotReload {
	return &HotReload{
		ctx:              ctx,
		logger:           ctx.logger,
		connectedClients: make(map[string][]*websocket.Conn),
	}
}

// initDevTools starts the module watcher when running in dev mode
func (c *Context) initDevTools() error {
	if !c.config.IsDev {
		return nil
	}
	c.hotReload = newHotReload(c)
	c.hotReload.Start()
	return nil
}

// stopHotReload disconnects all hot reload clients
func (c *Context) stopHotReload() {
	if c.hotReload == nil {
		return
	}
	c.hotReload.stop()
}

// Start starts the hot reload server and watcher
func (hr *HotReload) Start() {
	go hr.startServer()
	go hr.startWatcher()
}

// startServer starts the hot reload websocket server
func (hr *HotReload) startServer() {
	hr.logger.Info("Hot reload websocket running", "port", hr.ctx.config.HotReloadServerPort)
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hr.logger.Error("Failed to upgrade websocket", "error", err)
			return
		}
		// Client should send the module ID it watches as first message
		_, moduleID, err := ws.ReadMessage()
		if err != nil {
			hr.logger.Error("Failed to read message from websocket", "error", err)
			return
		}
		err = ws.WriteMessage(websocket.TextMessage, []byte("Connected"))
		if err != nil {
			hr.logger.Error("Failed to write message to websocket", "error", err)
			return
		}
		// Add client to connectedClients
		hr.clientsMu.Lock()
		hr.connectedClients[string(moduleID)] = append(hr.connectedClients[string(moduleID)], ws)
		hr.clientsMu.Unlock()
	})
	err := http.ListenAndServe(fmt.Sprintf(":%d", hr.ctx.config.HotReloadServerPort), nil)
	if err != nil {
		hr.logger.Error("Hot reload server quit unexpectedly", "error", err)
	}
}

// startWatcher starts the file watcher over the work directory
func (hr *HotReload) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		hr.logger.Error("Failed to start watcher", "error", err)
		return
	}
	defer watcher.Close()
	// Walk through all directories under the work dir and add them to the watcher
	if err = filepath.Walk(hr.ctx.config.WorkDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.Mode().IsDir() {
			return watcher.Add(path)
		}
		return nil
	}); err != nil {
		hr.logger.Error("Failed to add files in directory to watcher", "error", err)
		return
	}

	for {
		select {
		case event := <-watcher.Events:
			// Watch for file created, deleted, updated, or renamed events
			if event.Op.String() == "CHMOD" {
				continue
			}
			filePath := utils.GetFullFilePath(event.Name)
			if !isModuleFile(filePath) {
				continue
			}
			hr.logger.Info("Module source changed, reloading", "file", filePath)
			// Modules that bundled this file, directly or as a dependency
			moduleIDs, err := hr.ctx.cache.GetModuleIDsWithFile(filePath)
			if err != nil {
				hr.logger.Error("Failed to get module IDs with file", "error", err)
				continue
			}
			// Drop stale bundles so the next load rebuilds them
			sourceFiles, err := hr.ctx.cache.GetSourceFilesFromDependency(filePath)
			if err != nil {
				hr.logger.Error("Failed to get source files from dependency", "error", err)
			}
			sourceFiles = append(sourceFiles, filePath)
			for _, sourceFile := range sourceFiles {
				if err := hr.ctx.cache.RemoveBuild(sourceFile); err != nil {
					hr.logger.Error("Failed to remove build", "error", err)
				}
			}
			// Notify any clients watching the stale modules
			go hr.broadcastFileUpdateToClients(moduleIDs)
		case err := <-watcher.Errors:
			hr.logger.Error("Error watching files", "error", err)
		}
	}
}

// broadcastFileUpdateToClients sends a reload message to all clients
// watching the given modules
func (hr *HotReload) broadcastFileUpdateToClients(moduleIDs []string) {
	hr.clientsMu.Lock()
	defer hr.clientsMu.Unlock()
	for _, moduleID := range moduleIDs {
		clients := hr.connectedClients[moduleID]
		alive := clients[:0]
		for _, ws := range clients {
			// Send reload message to client
			if err := ws.WriteMessage(websocket.TextMessage, []byte("reload")); err == nil {
				alive = append(alive, ws)
			}
			// drop client if browser is closed or page changed
		}
		hr.connectedClients[moduleID] = alive
	}
}

// stop disconnects all connected clients
func (hr *HotReload) stop() {
	hr.clientsMu.Lock()
	defer hr.clientsMu.Unlock()
	for moduleID, clients := range hr.connectedClients {
		for _, ws := range clients {
			_ = ws.Close()
		}
		delete(hr.connectedClients, moduleID)
	}
}
