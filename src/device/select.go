// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package device

import (
	"github.com/cockroachdb/errors"
	"github.com/devblok/framer/src/gfx"
)

// Score weights
const (
	WeightDiscrete    = 10
	WeightIntegrated  = 5
	WeightOtherType   = 1
	WeightSRGBFormat  = 10
	WeightFIFOPresent = 10
)

// PreferredFormat is the surface format that earns the format weight.
var PreferredFormat = gfx.SurfaceFormat{
	Format:     gfx.FormatB8G8R8A8SRGB,
	ColorSpace: gfx.ColorSpaceSRGBNonlinear,
}

// Report is the outcome of evaluating one candidate.
type Report struct {
	Name     string
	Type     string
	Suitable bool
	Reason   string `json:",omitempty"`
	Score    int

	Info PhysicalDeviceInfo `json:"-"`
}

// Select returns the highest scoring suitable candidate. When several
// candidates share the top score the last one enumerated wins.
func Select(candidates []Candidate) (PhysicalDeviceInfo, error) {
	var (
		best  PhysicalDeviceInfo
		found bool
	)
	for _, r := range Explain(candidates) {
		if !r.Suitable {
			continue
		}
		if !found || r.Score >= best.Score {
			best = r.Info
			found = true
		}
	}
	if !found {
		return PhysicalDeviceInfo{}, errors.Mark(
			errors.Wrapf(gfx.ErrNoSuitableDevice, "device.Select(): %d candidates", len(candidates)),
			gfx.ErrDeviceSelectionFailed)
	}
	return best, nil
}

// Explain evaluates every candidate, in enumeration order.
func Explain(candidates []Candidate) []Report {
	reports := make([]Report, len(candidates))
	for idx, c := range candidates {
		reports[idx] = evaluate(c)
	}
	return reports
}

func evaluate(c Candidate) Report {
	report := Report{
		Name: c.Name,
		Type: c.Type.String(),
	}

	graphics, ok := findFamily(c.QueueFamilies, func(f QueueFamily) bool {
		return f.Flags&gfx.QueueGraphics != 0
	})
	if !ok {
		report.Reason = "no graphics queue family"
		return report
	}

	present, ok := findFamily(c.QueueFamilies, func(f QueueFamily) bool {
		return f.Present
	})
	if !ok {
		report.Reason = "no queue family can present to the surface"
		return report
	}

	if !c.HasExtension(SwapchainExtension) {
		report.Reason = "missing " + SwapchainExtension
		return report
	}

	if len(c.SurfaceFormats) == 0 {
		report.Reason = "surface exposes no formats"
		return report
	}

	if len(c.PresentModes) == 0 {
		report.Reason = "surface exposes no present modes"
		return report
	}

	// Uploads get their own family when one exists without the graphics bit.
	transfer, ok := findFamily(c.QueueFamilies, func(f QueueFamily) bool {
		return f.Flags&gfx.QueueTransfer != 0 && f.Flags&gfx.QueueGraphics == 0
	})
	if !ok {
		transfer = graphics
	}

	format, formatScore := chooseFormat(c.SurfaceFormats)
	mode, modeScore := choosePresentMode(c.PresentModes)

	report.Suitable = true
	report.Score = TypeWeight(c.Type) + formatScore + modeScore
	report.Info = PhysicalDeviceInfo{
		Name:          c.Name,
		Type:          c.Type,
		Score:         report.Score,
		Handle:        c.Handle,
		Graphics:      graphics,
		Transfer:      transfer,
		Present:       present,
		Capabilities:  c.Capabilities,
		SurfaceFormat: format,
		PresentMode:   mode,
	}
	return report
}

// TypeWeight returns the score contribution of the device type.
func TypeWeight(t gfx.DeviceType) int {
	switch t {
	case gfx.DeviceTypeDiscreteGPU, gfx.DeviceTypeVirtualGPU:
		return WeightDiscrete
	case gfx.DeviceTypeIntegratedGPU:
		return WeightIntegrated
	default:
		return WeightOtherType
	}
}

// chooseFormat keeps the first format unless the preferred one is offered.
func chooseFormat(formats []gfx.SurfaceFormat) (gfx.SurfaceFormat, int) {
	for _, f := range formats {
		if f == PreferredFormat {
			return f, WeightSRGBFormat
		}
	}
	return formats[0], 0
}

// choosePresentMode keeps the first mode unless FIFO is offered.
func choosePresentMode(modes []gfx.PresentMode) (gfx.PresentMode, int) {
	for _, m := range modes {
		if m == gfx.PresentModeFIFO {
			return m, WeightFIFOPresent
		}
	}
	return modes[0], 0
}

func findFamily(families []QueueFamily, match func(QueueFamily) bool) (uint32, bool) {
	for _, f := range families {
		if match(f) {
			return f.Index, true
		}
	}
	return 0, false
}
