//go:build windows

package webgpu

import (
	"strings"
	"testing"

	"github.com/go-webgpu/webgpu/wgpu"
	"github.com/stretchr/testify/assert"

	"github.com/born-ml/vit/internal/tensor"
)

func TestAdapterLabel(t *testing.T) {
	tests := []struct {
		name string
		info *wgpu.AdapterInfoGo
		want string
	}{
		{"nil", nil, "WebGPU"},
		{"empty", &wgpu.AdapterInfoGo{}, "WebGPU"},
		{"device and vendor", &wgpu.AdapterInfoGo{Device: "RTX 4070", Vendor: "NVIDIA"}, "WebGPU (RTX 4070 NVIDIA)"},
		{"vendor only", &wgpu.AdapterInfoGo{Vendor: " AMD "}, "WebGPU (AMD)"},
		{"description fallback", &wgpu.AdapterInfoGo{Description: "Microsoft Basic Render Driver"}, "WebGPU (Microsoft Basic Render Driver)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, adapterLabel(tt.info))
		})
	}
}

func TestNew_NameReportsAdapter(t *testing.T) {
	b := newBackend(t)

	assert.True(t, strings.HasPrefix(b.Name(), "WebGPU"))
	assert.Equal(t, tensor.WebGPU, b.Device())
}
