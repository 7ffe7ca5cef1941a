//go:build prod

package jsbind

// HotReload is compiled out of prod builds.
type HotReload struct{}

func (c *Context) initDevTools() error { return nil }

func (c *Context) stopHotReload() {}
