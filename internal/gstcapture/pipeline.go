package gstcapture

import (
	"fmt"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/CyberPuffer/HelloCamera"
)

// pipelineElements holds references needed after construction
type pipelineElements struct {
	Pipeline *gst.Pipeline
	AppSink  *app.Sink
}

// createPipeline builds (but does not start) the capture pipeline
//
// Pipeline structure:
//
//	v4l2src → videoconvert → capsfilter → appsink
func createPipeline(device, caps string) (*pipelineElements, error) {
	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", device)
	src.SetProperty("do-timestamp", true)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(caps))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // Real-time, no clock sync
	appsink.SetProperty("max-buffers", 1) // Keep only latest frame
	appsink.SetProperty("drop", true)

	pipeline.AddMany(src, converter, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link capture pipeline: %w", err)
	}

	return &pipelineElements{Pipeline: pipeline, AppSink: appsink}, nil
}

// destroyPipeline sets the pipeline to NULL. Safe on nil.
func destroyPipeline(elements *pipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}
	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildCaps builds the capsfilter string. Zero values are left out so the
// device picks them.
//
// Format: "video/x-raw[,format=F][,width=W,height=H][,framerate=N/1]"
func buildCaps(width, height, fps uint, kind hellocamera.PixelKind) string {
	var b strings.Builder
	b.WriteString("video/x-raw")
	if kind != hellocamera.PixelUnknown {
		fmt.Fprintf(&b, ",format=%s", kind)
	}
	if width > 0 && height > 0 {
		fmt.Fprintf(&b, ",width=%d,height=%d", width, height)
	}
	if fps > 0 {
		fmt.Fprintf(&b, ",framerate=%d/1", fps)
	}
	return b.String()
}
