package gstcapture

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory classifies pipeline errors for logs and counters
type ErrorCategory int

const (
	// ErrCategoryDevice: node missing, busy or unplugged (retry may help)
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryFormat: caps negotiation failed (retry will not help)
	ErrCategoryFormat
	// ErrCategoryPermission: no access to the device node
	ErrCategoryPermission
	// ErrCategoryUnknown: unclassified
	ErrCategoryUnknown
)

func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryFormat:
		return "format"
	case ErrCategoryPermission:
		return "permission"
	default:
		return "unknown"
	}
}

// ClassifyGStreamerError categorizes a pipeline error.
//
// go-gst's GError does not expose the domain, so classification relies on
// message keywords.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return classifyMessage(gerr.Error(), gerr.DebugString())
}

func classifyMessage(errMsg, debugStr string) ErrorCategory {
	combined := strings.ToLower(errMsg + " " + debugStr)

	// Most specific first
	switch {
	case containsAny(combined, permissionKeywords):
		return ErrCategoryPermission
	case containsAny(combined, formatKeywords):
		return ErrCategoryFormat
	case containsAny(combined, deviceKeywords):
		return ErrCategoryDevice
	default:
		return ErrCategoryUnknown
	}
}

var (
	permissionKeywords = []string{
		"permission denied",
		"not permitted",
		"eacces",
	}

	formatKeywords = []string{
		"not-negotiated",
		"not negotiated",
		"negotiation",
		"caps",
		"format",
		"no supported",
	}

	deviceKeywords = []string{
		"device",
		"busy",
		"no such file",
		"not found",
		"cannot identify",
		"could not open",
		"failed to allocate",
		"v4l2",
	}
)

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
