package gpu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crashlens/crashlens-go/internal/gpu"
	"github.com/crashlens/crashlens-go/pkg/crashlens/crash"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name   string
		system []string
		want   crash.GPUInfo
	}{
		{
			name:   "nvidia",
			system: []string{"OS: Windows 10", "GPU #1: Nvidia GA104 [GeForce RTX 3070]"},
			want:   crash.GPUInfo{Primary: "Nvidia GA104 [GeForce RTX 3070]", Vendor: "nvidia", Rival: "amd"},
		},
		{
			name:   "amd",
			system: []string{"GPU #1: AMD Radeon RX 6800"},
			want:   crash.GPUInfo{Primary: "AMD Radeon RX 6800", Vendor: "amd", Rival: "nvidia"},
		},
		{
			name:   "intel has no rival",
			system: []string{"GPU #1: Intel Arc A770"},
			want:   crash.GPUInfo{Primary: "Intel Arc A770", Vendor: "intel"},
		},
		{
			name:   "unrecognized adapter",
			system: []string{"GPU #1: Matrox Something"},
			want:   crash.GPUInfo{Primary: "Matrox Something"},
		},
		{
			name:   "secondary adapter ignored",
			system: []string{"GPU #2: Intel UHD 770"},
			want:   crash.GPUInfo{Primary: "Unknown"},
		},
		{
			name: "absent",
			want: crash.GPUInfo{Primary: "Unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gpu.Detect(tt.system))
		})
	}
}
