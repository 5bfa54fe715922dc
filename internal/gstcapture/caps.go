package gstcapture

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/CyberPuffer/HelloCamera"
)

// parseCaps extracts the device format from a fixed caps string such as
//
//	video/x-raw, format=(string)NV12, width=(int)640, height=(int)480, framerate=(fraction)30/1
//
// The frame rate numerator is reported as-is; 30000/1001 yields 30000.
func parseCaps(caps string) (hellocamera.DeviceFormat, error) {
	fields := strings.Split(caps, ",")
	if len(fields) == 0 || !strings.HasPrefix(strings.TrimSpace(fields[0]), "video/x-raw") {
		return hellocamera.DeviceFormat{}, fmt.Errorf("not raw video caps: %q", caps)
	}

	var f hellocamera.DeviceFormat
	var format string
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok {
			continue
		}
		value = stripType(strings.TrimSpace(value))

		switch strings.TrimSpace(key) {
		case "format":
			format = strings.Trim(value, `"`)
		case "width":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return hellocamera.DeviceFormat{}, fmt.Errorf("bad width %q: %w", value, err)
			}
			f.Width = uint(n)
		case "height":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return hellocamera.DeviceFormat{}, fmt.Errorf("bad height %q: %w", value, err)
			}
			f.Height = uint(n)
		case "framerate":
			num, _, _ := strings.Cut(value, "/")
			n, err := strconv.ParseUint(num, 10, 32)
			if err != nil {
				return hellocamera.DeviceFormat{}, fmt.Errorf("bad framerate %q: %w", value, err)
			}
			f.FrameRateNumerator = uint(n)
		}
	}

	kind, err := hellocamera.ParsePixelKind(format)
	if err != nil {
		return hellocamera.DeviceFormat{}, err
	}
	if kind == hellocamera.PixelUnknown {
		return hellocamera.DeviceFormat{}, fmt.Errorf("caps without format: %q", caps)
	}
	f.PixelKind = kind
	return f, nil
}

// stripType removes a leading "(type)" annotation
func stripType(v string) string {
	if strings.HasPrefix(v, "(") {
		if i := strings.Index(v, ")"); i >= 0 {
			return strings.TrimSpace(v[i+1:])
		}
	}
	return v
}
