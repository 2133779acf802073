package capture

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/wingman-cli/api/schemas"
	"github.com/xkilldash9x/wingman-cli/internal/config"
)

// Capturer assembles one Observation per call from the driver's page source,
// foreground package, and (optionally) a screenshot. The returned Observation
// has ScreenType unset; classification happens downstream.
type Capturer struct {
	driver schemas.Driver
	cfg    config.CaptureConfig
	logger *zap.Logger
}

// NewCapturer wires a capturer over an active driver.
func NewCapturer(driver schemas.Driver, cfg config.CaptureConfig, logger *zap.Logger) *Capturer {
	return &Capturer{
		driver: driver,
		cfg:    cfg,
		logger: logger.Named("capture"),
	}
}

// GetObservation captures the current screen state. withScreenshot overrides
// nothing when false; it adds a screenshot on top of the configured default
// when true (LLM cycles need pixels even if plain capture does not).
func (c *Capturer) GetObservation(ctx context.Context, withScreenshot bool) (*schemas.Observation, error) {
	raw, err := c.driver.PageSource(ctx)
	if err != nil {
		return nil, err
	}

	hierarchy, err := ParseHierarchy(raw)
	if err != nil {
		return nil, err
	}
	if hierarchy.Truncated {
		c.logger.Warn("Accessibility hierarchy truncated",
			zap.Int("node_cap", maxHierarchyNodes))
	}

	obs := &schemas.Observation{
		ScreenType:  schemas.ScreenUnknown,
		PackageName: hierarchy.PackageName,
		Nodes:       hierarchy.Nodes,
		RawStrings:  CollectStrings(hierarchy.Nodes, c.cfg.MaxStrings),
		RawXML:      string(raw),
		CapturedAt:  time.Now().UTC(),
	}

	// The driver's view of the foreground package wins over what the XML
	// claims; an overlay from another app dumps under its own package.
	if pkg, err := c.driver.CurrentPackage(ctx); err == nil && pkg != "" {
		obs.PackageName = pkg
	} else if err != nil {
		c.logger.Warn("Could not read foreground package, using hierarchy package",
			zap.Error(err))
	}

	if withScreenshot || c.cfg.Screenshot {
		shot, err := c.driver.Screenshot(ctx)
		if err != nil {
			c.logger.Warn("Screenshot capture failed", zap.Error(err))
		} else {
			obs.Screenshot = shot
		}
	}

	return obs, nil
}
