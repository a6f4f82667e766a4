// Package gpu detects the GPU vendor from the system-specs segment.
package gpu

import (
	"strings"

	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

// Vendor keywords as they appear in compatibility-table GPU constraints.
const (
	VendorNvidia = "nvidia"
	VendorAMD    = "amd"
	VendorIntel  = "intel"
)

// primaryMarker identifies the primary adapter line in the system segment.
const primaryMarker = "GPU #1"

// Detect scans the system-specs lines for the primary GPU. An unrecognized
// or absent adapter yields Primary "Unknown" with empty vendor and rival.
func Detect(system []string) crash.GPUInfo {
	info := crash.GPUInfo{Primary: "Unknown"}

	for _, line := range system {
		if !strings.Contains(line, primaryMarker) {
			continue
		}

		switch {
		case strings.Contains(line, "Nvidia") || strings.Contains(line, "NVIDIA"):
			info.Vendor = VendorNvidia
			info.Rival = VendorAMD
		case strings.Contains(line, "AMD"):
			info.Vendor = VendorAMD
			info.Rival = VendorNvidia
		case strings.Contains(line, "Intel"):
			info.Vendor = VendorIntel
		}

		if _, name, ok := strings.Cut(line, ":"); ok {
			if name = strings.TrimSpace(name); name != "" {
				info.Primary = name
			}
		}
		return info
	}

	return info
}
