package types

import "time"

// IOProfile maps the rig's named channels onto the I/O coupler.
type IOProfile struct {
	Profile    ProfileInfo      `yaml:"profile" json:"profile"`
	Coupler    CouplerInfo      `yaml:"coupler" json:"coupler"`
	Outputs    []OutputDef      `yaml:"outputs" json:"outputs"`
	Inputs     []InputDef       `yaml:"inputs" json:"inputs"`
	Analog     []AnalogDef      `yaml:"analog,omitempty" json:"analog,omitempty"`
	Gangs      []GangDef        `yaml:"gangs,omitempty" json:"gangs,omitempty"`
	Simulation []SimulationRule `yaml:"simulation,omitempty" json:"simulation,omitempty"`
}

type ProfileInfo struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version" json:"version"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

type CouplerInfo struct {
	UnitID int `yaml:"unit_id" json:"unit_id"`
}

type OutputDef struct {
	Name string `yaml:"name" json:"name"`
	Coil uint16 `yaml:"coil" json:"coil"`
	Safe bool   `yaml:"safe" json:"safe"`
}

type InputDef struct {
	Name    string `yaml:"name" json:"name"`
	Address uint16 `yaml:"address" json:"address"`
	Invert  bool   `yaml:"invert,omitempty" json:"invert,omitempty"`
}

type AnalogDef struct {
	Name     string  `yaml:"name" json:"name"`
	Register uint16  `yaml:"register" json:"register"`
	Scale    float64 `yaml:"scale" json:"scale"`
	Offset   float64 `yaml:"offset,omitempty" json:"offset,omitempty"`
}

type GangDef struct {
	Name    string   `yaml:"name" json:"name"`
	Members []string `yaml:"members" json:"members"`
}

// SimulationRule drives a simulated input. With Follows set the input takes
// the output's level once it has been stable for Delay; otherwise the input
// is held at Initial.
type SimulationRule struct {
	Input   string        `yaml:"input" json:"input"`
	Follows string        `yaml:"follows,omitempty" json:"follows,omitempty"`
	Delay   time.Duration `yaml:"delay,omitempty" json:"delay,omitempty"`
	Invert  bool          `yaml:"invert,omitempty" json:"invert,omitempty"`
	Initial bool          `yaml:"initial,omitempty" json:"initial,omitempty"`
	Raw     uint16        `yaml:"raw,omitempty" json:"raw,omitempty"`
}

// ImageSize returns the number of coils, discrete inputs and input registers
// the profile addresses.
func (p *IOProfile) ImageSize() (coils, inputs, registers int) {
	for _, o := range p.Outputs {
		if int(o.Coil)+1 > coils {
			coils = int(o.Coil) + 1
		}
	}
	for _, i := range p.Inputs {
		if int(i.Address)+1 > inputs {
			inputs = int(i.Address) + 1
		}
	}
	for _, a := range p.Analog {
		if int(a.Register)+1 > registers {
			registers = int(a.Register) + 1
		}
	}
	return coils, inputs, registers
}
