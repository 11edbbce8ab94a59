package engine

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Device is the compute device an engine runs on.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
	DeviceMPS  Device = "mps"
)

// ParseDevice parses a configured device. "auto" and "" yield "", meaning
// the device is probed.
func ParseDevice(s string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return "", nil
	case "cpu":
		return DeviceCPU, nil
	case "cuda", "gpu":
		return DeviceCUDA, nil
	case "mps":
		return DeviceMPS, nil
	}
	return "", fmt.Errorf("unknown device %q (want auto, cpu, cuda or mps)", s)
}

// Probe reports accelerator availability. Implementations only query the
// host; they never allocate on a device.
type Probe interface {
	MPSAvailable() bool
	CUDAAvailable() bool
}

// SelectDevice picks MPS over CUDA over CPU.
func SelectDevice(p Probe) Device {
	switch {
	case p.MPSAvailable():
		return DeviceMPS
	case p.CUDAAvailable():
		return DeviceCUDA
	default:
		return DeviceCPU
	}
}

// DeviceSelector applies a configured override before probing.
type DeviceSelector struct {
	Override Device
	Probe    Probe
}

func (s DeviceSelector) Select() Device {
	if s.Override != "" {
		return s.Override
	}
	if s.Probe == nil {
		return DeviceCPU
	}
	return SelectDevice(s.Probe)
}

// HostProbe inspects the local machine.
type HostProbe struct{}

func (HostProbe) MPSAvailable() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}

func (HostProbe) CUDAAvailable() bool {
	if runtime.GOOS == "darwin" {
		return false
	}
	if _, err := os.Stat("/proc/driver/nvidia/version"); err == nil {
		return true
	}
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}
