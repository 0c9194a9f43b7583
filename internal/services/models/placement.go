package models

import (
	"errors"
	"fmt"

	"github.com/cozy-creator/audio-adapters/internal/config"
	"github.com/cozy-creator/audio-adapters/internal/mlruntime"
	"github.com/cozy-creator/audio-adapters/internal/types"
)

var ErrNoAccelerator = errors.New("requested accelerator is not available")

// Placement is where and how a model is loaded.
type Placement struct {
	Device        string
	Quantization  types.Quantization
	HalfPrecision bool
	// QuantizationDropped reports that quantization was requested on a
	// device that cannot run it.
	QuantizationDropped bool
}

func (p Placement) OnAccelerator() bool {
	return p.Device != config.DeviceCPU
}

// SelectPlacement applies the device preference to what the runtime
// reports. Half precision needs an accelerator and no quantization;
// quantization needs an accelerator.
func SelectPlacement(preference string, probe *mlruntime.ProbeResult, quant types.Quantization, useHalf bool) (Placement, error) {
	p := Placement{Device: config.DeviceCPU, Quantization: quant}

	switch preference {
	case "", config.DeviceAuto:
		if acc, ok := probe.Accelerator(""); ok {
			p.Device = acc.Device
		}
	case config.DeviceCPU:
	default:
		if _, ok := probe.Accelerator(preference); !ok {
			return Placement{}, fmt.Errorf("%w: %s", ErrNoAccelerator, preference)
		}
		p.Device = preference
	}

	if !p.OnAccelerator() && quant != types.QuantizationNone {
		p.Quantization = types.QuantizationNone
		p.QuantizationDropped = true
	}

	p.HalfPrecision = useHalf && p.Quantization == types.QuantizationNone && p.OnAccelerator()
	return p, nil
}
