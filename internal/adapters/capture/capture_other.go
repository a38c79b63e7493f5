//go:build !linux

package capture

import (
	"context"

	"github.com/dkeye/Meet/internal/core"
	"github.com/rs/zerolog/log"
)

// New returns a device without capture drivers; peers still receive.
func New(opts Options) (*Device, error) {
	opts.defaults()
	log.Warn().Str("module", "capture").Msg("no capture drivers on this platform, joining receive-only")
	return &Device{opts: opts}, nil
}

func (d *Device) UserMedia(context.Context, core.Constraints) (core.Stream, error) {
	return nil, core.ErrNoCaptureDevice
}

func (d *Device) DisplayMedia(context.Context, core.Constraints) (core.Stream, error) {
	return nil, core.ErrNoCaptureDevice
}
