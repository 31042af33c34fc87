// File: control/control.go
// Author: momentics <momentics@gmail.com>
//
// Control bundles the config store and metrics registry behind api.Control.

package control

import (
	"github.com/momentics/hioload-io/api"
)

type controlImpl struct {
	cfg     *ConfigStore
	metrics *MetricsRegistry
}

// New returns an api.Control over the given store and registry.
func New(cfg *ConfigStore, metrics *MetricsRegistry) api.Control {
	return &controlImpl{cfg: cfg, metrics: metrics}
}

func (c *controlImpl) GetConfig() map[string]any { return c.cfg.GetSnapshot() }

func (c *controlImpl) SetConfig(cfg map[string]any) error {
	c.cfg.SetConfig(cfg)
	return nil
}

func (c *controlImpl) Stats() map[string]any { return c.metrics.GetSnapshot() }

func (c *controlImpl) OnReload(fn func()) { c.cfg.OnReload(fn) }
