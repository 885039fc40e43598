package gstengine

import (
	"strings"
)

// ErrorCategory classifies pipeline errors for logs.
type ErrorCategory int

const (
	// ErrCategoryDevice covers capture devices and accelerator devices.
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryModel covers model and post-processing library loading.
	ErrCategoryModel
	// ErrCategoryNegotiation covers caps and format negotiation failures.
	ErrCategoryNegotiation
	// ErrCategoryResource covers missing elements, files and permissions.
	ErrCategoryResource
	ErrCategoryUnknown
)

func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryModel:
		return "model"
	case ErrCategoryNegotiation:
		return "negotiation"
	case ErrCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Most specific first: a model path that fails to open is a model error,
// not a resource error.
var categoryKeywords = []struct {
	category ErrorCategory
	keywords []string
}{
	{ErrCategoryModel, []string{
		".hef",
		"hef file",
		"network group",
		"model",
		"so-path",
		"config-path",
		"postprocess",
		"dlopen",
	}},
	{ErrCategoryDevice, []string{
		"/dev/video",
		"v4l2",
		"device",
		"busy",
		"vdevice",
		"pcie",
	}},
	{ErrCategoryNegotiation, []string{
		"not negotiated",
		"negotiation",
		"caps",
		"format",
	}},
	{ErrCategoryResource, []string{
		"no element",
		"no such file",
		"not found",
		"could not open",
		"permission denied",
		"resource",
		"missing plugin",
	}},
}

// ClassifyError categorizes an error message and its debug string by
// keyword. go-gst's GError exposes no domain, so text is all there is.
func ClassifyError(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(combined, kw) {
				return c.category
			}
		}
	}
	return ErrCategoryUnknown
}
