package hellocamera

// DefaultOutputFPS is used when neither the caller nor the device gives a rate
const DefaultOutputFPS = 30

// OutputConfig is the caller's output override. Zero fields mean "auto":
// take the value from the negotiated device format.
type OutputConfig struct {
	Width     uint
	Height    uint
	FPS       uint
	PixelKind PixelKind
}

// NegotiateOutput resolves out against the device format before Sink.Open.
//
// Width and height are overridden together; a lone width or height keeps
// the device size so the aspect ratio is never distorted by half an override.
func NegotiateOutput(device DeviceFormat, out OutputConfig) OutputFormat {
	f := OutputFormat{
		Source:    device,
		Width:     device.Width,
		Height:    device.Height,
		PixelKind: device.PixelKind,
		FPS:       device.FrameRateNumerator,
	}

	if out.Width > 0 && out.Height > 0 {
		f.Width, f.Height = out.Width, out.Height
	}
	if out.PixelKind != PixelUnknown {
		f.PixelKind = out.PixelKind
	}
	if out.FPS > 0 {
		f.FPS = out.FPS
	}
	if f.FPS == 0 {
		f.FPS = DefaultOutputFPS
	}
	return f
}
