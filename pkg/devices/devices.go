// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package devices discovers the accelerators available for training, and splits batches across them.
package devices

import (
	"fmt"
	"os"
	"strings"

	"github.com/gomlx/gopjrt/pjrt"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ErrBatchNotDivisible is returned by PerReplicaBatchSize when the global batch size can't be evenly
// split across the devices.
var ErrBatchNotDivisible = errors.New("batch size not evenly divisible by number of devices")

// Type of device.
type Type string

const (
	GPU Type = "GPU"
	CPU Type = "CPU"
)

// Device is a compute device, named like "/GPU:0".
type Device struct {
	Type  Type
	Index int
}

// Name of the device, e.g. "/GPU:1".
func (d Device) Name() string {
	return fmt.Sprintf("/%s:%d", d.Type, d.Index)
}

// String implements fmt.Stringer.
func (d Device) String() string { return d.Name() }

var (
	// GPUPlugins are the PJRT plugins, in preference order, whose devices are counted as GPUs.
	GPUPlugins = []string{"cuda", "rocm"}

	// VisibleDevicesEnv restricts the GPUs visible, with the same semantics as CUDA.
	VisibleDevicesEnv = "CUDA_VISIBLE_DEVICES"

	// ProcGPUsDir lists one entry per NVIDIA GPU installed.
	ProcGPUsDir = "/proc/driver/nvidia/gpus"

	// pluginGPUs lists the GPUs through PJRT. It returns (nil, nil) if no GPU plugin is available.
	pluginGPUs = pjrtGPUs
)

// ListGPUs returns the GPUs available.
//
// GPUs are enumerated as the addressable devices of the first PJRT plugin in GPUPlugins found
// (see pjrt.AvailablePlugins for where plugins are searched).
// If no GPU plugin is found or loads, it falls back to ListDriverGPUs.
func ListGPUs() ([]Device, error) {
	gpus, err := pluginGPUs()
	if err != nil {
		klog.Warningf("Failed to list GPUs with PJRT, falling back to the driver: %v", err)
	} else if len(gpus) > 0 {
		return gpus, nil
	}
	return ListDriverGPUs()
}

// pjrtGPUs creates a client of the first available GPU plugin and counts its addressable devices.
func pjrtGPUs() ([]Device, error) {
	available := pjrt.AvailablePlugins()
	for _, pluginName := range GPUPlugins {
		if _, found := available[pluginName]; !found {
			continue
		}
		plugin, err := pjrt.GetPlugin(pluginName)
		if err != nil {
			return nil, errors.WithMessagef(err, "loading PJRT plugin %q", pluginName)
		}
		client, err := plugin.NewClient(nil)
		if err != nil {
			return nil, errors.WithMessagef(err, "creating client for PJRT plugin %q", pluginName)
		}
		numDevices := len(client.AddressableDevices())
		if err := client.Destroy(); err != nil {
			klog.Errorf("Failed to destroy client of PJRT plugin %q: %+v", pluginName, err)
		}
		klog.V(1).Infof("PJRT plugin %q: %d addressable devices", pluginName, numDevices)
		gpus := make([]Device, numDevices)
		for ii := range gpus {
			gpus[ii] = Device{Type: GPU, Index: ii}
		}
		return gpus, nil
	}
	return nil, nil
}

// ListDriverGPUs returns the GPUs visible without loading any PJRT plugin.
//
// If the environment variable CUDA_VISIBLE_DEVICES is set, it is the comma-separated list of
// GPUs visible ("" or "-1" hides all of them). Otherwise, the GPUs listed by the NVIDIA driver
// are used. A machine without the driver has no GPUs.
func ListDriverGPUs() ([]Device, error) {
	if visible, found := os.LookupEnv(VisibleDevicesEnv); found {
		var gpus []Device
		for _, id := range strings.Split(visible, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if strings.HasPrefix(id, "-") {
				// CUDA ignores this and all following entries.
				break
			}
			gpus = append(gpus, Device{Type: GPU, Index: len(gpus)})
		}
		klog.V(1).Infof("%s=%q: %d GPUs visible", VisibleDevicesEnv, visible, len(gpus))
		return gpus, nil
	}

	entries, err := os.ReadDir(ProcGPUsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to list GPUs in %q", ProcGPUsDir)
	}
	gpus := make([]Device, 0, len(entries))
	for range entries {
		gpus = append(gpus, Device{Type: GPU, Index: len(gpus)})
	}
	return gpus, nil
}

// Strategy returns the devices to replicate training over: all GPUs or, if there are none, the CPU.
func Strategy() ([]Device, error) {
	gpus, err := ListGPUs()
	if err != nil {
		return nil, err
	}
	if len(gpus) == 0 {
		return []Device{{Type: CPU, Index: 0}}, nil
	}
	return gpus, nil
}

// PerReplicaBatchSize splits globalBatchSize across numDevices.
//
// With no devices it returns globalBatchSize. It returns an error wrapping ErrBatchNotDivisible
// if globalBatchSize is not a multiple of numDevices.
func PerReplicaBatchSize(globalBatchSize, numDevices int) (int, error) {
	if globalBatchSize <= 0 {
		return 0, errors.Errorf("invalid batch size %d", globalBatchSize)
	}
	if numDevices <= 0 {
		return globalBatchSize, nil
	}
	if globalBatchSize%numDevices != 0 {
		return 0, errors.Wrapf(ErrBatchNotDivisible, "batch size (%d), number of devices (%d)",
			globalBatchSize, numDevices)
	}
	return globalBatchSize / numDevices, nil
}

// GPUBatchSize is PerReplicaBatchSize using the number of GPUs found by ListGPUs.
func GPUBatchSize(globalBatchSize int) (int, error) {
	gpus, err := ListGPUs()
	if err != nil {
		return 0, err
	}
	return PerReplicaBatchSize(globalBatchSize, len(gpus))
}
