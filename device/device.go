package device

import "fmt"
import "strings"

import "github.com/klauspost/cpuid/v2"
import "github.com/pkg/errors"

// CPU is the device index of the host processor.
const CPU = -1

// ErrUnavailable is returned for a device index that cannot be used.
var ErrUnavailable = errors.New("device unavailable")

// Info describes a selected device.
type Info struct {
	Index    int
	Name     string
	MemBytes int64
	// Verified is false when the index could not be checked before loading.
	Verified bool
	Features []string
}

// IsCPU reports whether the device is the host processor.
func (i Info) IsCPU() bool {
	return i.Index == CPU
}

func (i Info) String() string {
	var b strings.Builder
	if i.IsCPU() {
		b.WriteString("cpu")
	} else {
		fmt.Fprintf(&b, "cuda:%d", i.Index)
	}
	if i.Name != "" {
		fmt.Fprintf(&b, " (%s)", i.Name)
	}
	if i.MemBytes > 0 {
		fmt.Fprintf(&b, " %d MiB", i.MemBytes>>20)
	}
	if len(i.Features) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(i.Features, " "))
	}
	if !i.Verified {
		b.WriteString(" unverified")
	}
	return b.String()
}

// Probe resolves a device index.
func Probe(index int) (Info, error) {
	if index < CPU {
		return Info{}, errors.Wrapf(ErrUnavailable, "invalid device index %d", index)
	}
	if index == CPU {
		return host(), nil
	}
	return probeCUDA(index)
}

func host() Info {
	info := Info{
		Index:    CPU,
		Name:     strings.TrimSpace(cpuid.CPU.BrandName),
		Verified: true,
	}
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.AVX2, "avx2"},
		{cpuid.FMA3, "fma3"},
		{cpuid.AVX512F, "avx512f"},
		{cpuid.AVX512DQ, "avx512dq"},
	} {
		if cpuid.CPU.Supports(f.id) {
			info.Features = append(info.Features, f.name)
		}
	}
	if cpuid.CPU.LogicalCores > 0 {
		info.Features = append(info.Features, fmt.Sprintf("%d threads", cpuid.CPU.LogicalCores))
	}
	return info
}
