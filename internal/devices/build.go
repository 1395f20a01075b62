package devices

import (
	"fmt"

	"github.com/KevinKickass/OpenRigCore/internal/hw"
	"github.com/KevinKickass/OpenRigCore/internal/modbus"
	"github.com/KevinKickass/OpenRigCore/internal/types"
)

// Binding connects profile channels to a process image.
type Binding interface {
	Output(def types.OutputDef) (hw.WriteFunc, error)
	Input(def types.InputDef) (hw.ReadFunc, error)
	Analog(def types.AnalogDef) (func() uint16, error)
}

// ModbusBinding binds channels to coupler addresses.
type ModbusBinding struct {
	Image *modbus.Image
}

func (b ModbusBinding) Output(def types.OutputDef) (hw.WriteFunc, error) {
	w, err := b.Image.CoilWriter(def.Coil)
	if err != nil {
		return nil, err
	}
	return hw.WriteFunc(w), nil
}

func (b ModbusBinding) Input(def types.InputDef) (hw.ReadFunc, error) {
	r, err := b.Image.InputReader(def.Address)
	if err != nil {
		return nil, err
	}
	return hw.ReadFunc(r), nil
}

func (b ModbusBinding) Analog(def types.AnalogDef) (func() uint16, error) {
	return b.Image.RegisterReader(def.Register)
}

// MemoryBinding binds channels to an in-process image by name.
type MemoryBinding struct {
	Image *hw.MemoryImage
}

func (b MemoryBinding) Output(def types.OutputDef) (hw.WriteFunc, error) {
	return b.Image.Writer(def.Name), nil
}

func (b MemoryBinding) Input(def types.InputDef) (hw.ReadFunc, error) {
	return b.Image.Reader(def.Name), nil
}

func (b MemoryBinding) Analog(def types.AnalogDef) (func() uint16, error) {
	return b.Image.AnalogReader(def.Name), nil
}

// BuildBank creates every channel of the profile on the given binding.
func BuildBank(p *types.IOProfile, binding Binding) (*hw.Bank, error) {
	bank := hw.NewBank()

	for _, def := range p.Outputs {
		w, err := binding.Output(def)
		if err != nil {
			return nil, fmt.Errorf("output %s: %w", def.Name, err)
		}
		if err := bank.AddOutput(hw.NewOutput(def.Name, def.Safe, w)); err != nil {
			return nil, err
		}
	}
	for _, def := range p.Gangs {
		if err := bank.AddGang(def.Name, def.Members...); err != nil {
			return nil, err
		}
	}
	for _, def := range p.Inputs {
		r, err := binding.Input(def)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", def.Name, err)
		}
		if err := bank.AddInput(hw.NewInput(def.Name, def.Invert, r)); err != nil {
			return nil, err
		}
	}
	for _, def := range p.Analog {
		r, err := binding.Analog(def)
		if err != nil {
			return nil, fmt.Errorf("analog %s: %w", def.Name, err)
		}
		if err := bank.AddAnalog(hw.NewAnalog(def.Name, def.Scale, def.Offset, r)); err != nil {
			return nil, err
		}
	}
	return bank, nil
}
