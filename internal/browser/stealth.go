package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080
)

// newStealthPage opens the session's single page with the stealth evasions
// installed before any document script runs.
func newStealthPage(b *rod.Browser, userAgent string) (*rod.Page, error) {
	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("create stealth page: %w", err)
	}

	if userAgent != "" {
		if err := setUserAgent(page, userAgent); err != nil {
			log.Warn().Err(err).Msg("Failed to override user agent")
		}
	}
	if err := setViewport(page, viewportWidth, viewportHeight); err != nil {
		log.Warn().Err(err).Msg("Failed to set viewport")
	}
	return page, nil
}

func setUserAgent(page *rod.Page, userAgent string) error {
	return proto.NetworkSetUserAgentOverride{
		UserAgent:      userAgent,
		AcceptLanguage: "en-US,en;q=0.9",
	}.Call(page)
}

func setViewport(page *rod.Page, width, height int) error {
	return page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
}
