//go:build cuda

package device

import "gorgonia.org/cu"

import "github.com/pkg/errors"

func probeCUDA(index int) (Info, error) {
	count, err := cu.NumDevices()
	if err != nil {
		return Info{}, errors.Wrapf(ErrUnavailable, "cuda: %v", err)
	}
	if index >= count {
		return Info{}, errors.Wrapf(ErrUnavailable, "cuda device %d requested, %d present", index, count)
	}
	dev := cu.Device(index)
	info := Info{Index: index, Verified: true}
	if name, err := dev.Name(); err == nil {
		info.Name = name
	}
	if mem, err := dev.TotalMem(); err == nil {
		info.MemBytes = int64(mem)
	}
	return info, nil
}
