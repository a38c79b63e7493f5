//go:build linux

package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Meet/internal/core"
	"github.com/google/uuid"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog/log"
)

func New(opts Options) (*Device, error) {
	opts.defaults()
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = opts.VideoBitRate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	for _, d := range mediadevices.EnumerateDevices() {
		log.Debug().Str("module", "capture").Str("kind", fmt.Sprint(d.Kind)).Str("label", d.Label).Msg("media device")
	}
	return &Device{
		opts: opts,
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// UserMedia opens camera and microphone. A device that fails drops out
// of the request instead of failing it: video+audio, then video only,
// then audio only.
func (d *Device) UserMedia(ctx context.Context, c core.Constraints) (core.Stream, error) {
	type attempt struct {
		video, audio bool
		label        string
	}
	attempts := []attempt{
		{c.Video, c.Audio, "video+audio"},
		{c.Video, false, "video-only"},
		{false, c.Audio, "audio-only"},
	}
	var errs []error
	for _, a := range attempts {
		if !a.video && !a.audio {
			continue
		}
		constraints := mediadevices.MediaStreamConstraints{Codec: d.selector}
		if a.video {
			constraints.Video = d.videoConstraints(c)
		}
		if a.audio {
			constraints.Audio = func(*mediadevices.MediaTrackConstraints) {}
		}
		ms, err := open(ctx, "getUserMedia "+a.label, func() (mediadevices.MediaStream, error) {
			return mediadevices.GetUserMedia(constraints)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			log.Warn().Err(err).Str("module", "capture").Msg("capture attempt failed")
			errs = append(errs, err)
			continue
		}
		return wrap("camera-"+uuid.NewString(), ms), nil
	}
	return nil, fmt.Errorf("%w: %w", core.ErrNoCaptureDevice, errors.Join(errs...))
}

func (d *Device) videoConstraints(c core.Constraints) mediadevices.MediaOption {
	width, height := d.opts.Width, d.opts.Height
	if c.Width > 0 {
		width = c.Width
	}
	if c.Height > 0 {
		height = c.Height
	}
	return func(mc *mediadevices.MediaTrackConstraints) {
		// MJPEG nodes on some cameras poison the VP8 encoder.
		mc.FrameFormat = prop.FrameFormatOneOf{
			frame.FormatYUYV,
			frame.FormatI420,
			frame.FormatI444,
			frame.FormatRGBA,
		}
		mc.Width = prop.IntRanged{Max: width}
		mc.Height = prop.IntRanged{Max: height}
		if c.DeviceID != "" {
			mc.DeviceID = prop.String(c.DeviceID)
		}
	}
}

func (d *Device) DisplayMedia(ctx context.Context, _ core.Constraints) (core.Stream, error) {
	ms, err := open(ctx, "getDisplayMedia", func() (mediadevices.MediaStream, error) {
		return mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
			Video: func(*mediadevices.MediaTrackConstraints) {},
			Codec: d.selector,
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrNoCaptureDevice, err)
	}
	return wrap("screen-"+uuid.NewString(), ms), nil
}
