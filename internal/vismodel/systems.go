package vismodel

import (
	"slices"
	"sort"

	"eggjnd/pkg/domain"
)

// DoubleCone is the channel name of the achromatic double-cone receptor.
const DoubleCone = "dc"

// Receptor is one photoreceptor class of a built-in visual system.
type Receptor struct {
	Name      string
	LambdaMax float64
	Droplet   OilDroplet
}

// System is a set of chromatic receptors in channel order plus an optional
// double cone.
type System struct {
	Name       string
	Receptors  []Receptor
	DoubleCone *Receptor
}

// Averaged avian receptor sets (Hart 2001; droplet cut-offs from Hart &
// Vorobyev 2005).
var builtinSystems = map[string]System{
	"avg.v": {
		Name: "avg.v",
		Receptors: []Receptor{
			{Name: "v", LambdaMax: 416},
			{Name: "s", LambdaMax: 478, Droplet: OilDroplet{Cutoff: 413, Bmid: 0.0396}},
			{Name: "m", LambdaMax: 542, Droplet: OilDroplet{Cutoff: 503, Bmid: 0.0253}},
			{Name: "l", LambdaMax: 607, Droplet: OilDroplet{Cutoff: 570, Bmid: 0.0187}},
		},
		DoubleCone: &Receptor{Name: DoubleCone, LambdaMax: 565, Droplet: OilDroplet{Cutoff: 440, Bmid: 0.0277}},
	},
	"avg.uv": {
		Name: "avg.uv",
		Receptors: []Receptor{
			{Name: "u", LambdaMax: 367},
			{Name: "s", LambdaMax: 454, Droplet: OilDroplet{Cutoff: 418, Bmid: 0.0360}},
			{Name: "m", LambdaMax: 541, Droplet: OilDroplet{Cutoff: 507, Bmid: 0.0250}},
			{Name: "l", LambdaMax: 607, Droplet: OilDroplet{Cutoff: 572, Bmid: 0.0180}},
		},
		DoubleCone: &Receptor{Name: DoubleCone, LambdaMax: 565, Droplet: OilDroplet{Cutoff: 440, Bmid: 0.0277}},
	},
}

// BuiltinSystems lists the names of the built-in visual systems.
func BuiltinSystems() []string {
	out := make([]string, 0, len(builtinSystems))
	for name := range builtinSystems {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LookupSystem returns a built-in visual system.
func LookupSystem(name string) (System, bool) {
	s, ok := builtinSystems[name]
	return s, ok
}

// Sensitivities evaluates every receptor of the system on wl. The double
// cone, when present, is returned separately.
func (s System) Sensitivities(wl []float64) (chromatic []domain.Curve, dc *domain.Curve) {
	eval := func(r Receptor) domain.Curve {
		vals := Govardovskii(r.LambdaMax, wl)
		t := r.Droplet.Transmission(wl)
		for i := range vals {
			vals[i] *= t[i]
		}
		return domain.Curve{Name: r.Name, Wavelengths: slices.Clone(wl), Values: vals}
	}
	for _, r := range s.Receptors {
		chromatic = append(chromatic, eval(r))
	}
	if s.DoubleCone != nil {
		c := eval(*s.DoubleCone)
		dc = &c
	}
	return chromatic, dc
}
