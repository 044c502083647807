package geometry

import (
	"fmt"
	"sort"
	"strings"
)

// default status poll budgets, counted in status samples.
const (
	programSpins   = 0x2000
	eraseSpins     = 0x20000
	chipEraseSpins = 0x80000
)

// wait state values written by the device configuration call around command
// sequences. The second value restores the idle setting.
var defaultWait = [2]uint16{0x0003, 0x0003}

var defaultTiming = Timing{
	Program:   Budget{Spins: programSpins},
	Erase:     Budget{Spins: eraseSpins},
	ChipErase: Budget{Spins: chipEraseSpins},
}

func flash64K(name string, maker, device byte) Geometry {
	return Geometry{
		Name:    name,
		RomSize: 0x10000,
		Sector: Sector{
			Size:  0x1000,
			Shift: 12,
			Count: 16,
		},
		BankSize: DefaultBankSize,
		Timing:   defaultTiming,
		Wait:     defaultWait,
		IDs:      IDs{Maker: maker, Device: device},
	}
}

func flash128K(name string, maker, device byte) Geometry {
	return Geometry{
		Name:    name,
		RomSize: 0x20000,
		Sector: Sector{
			Size:  0x1000,
			Shift: 12,
			Count: 32,
		},
		BankSize: DefaultBankSize,
		Timing:   defaultTiming,
		Wait:     defaultWait,
		IDs:      IDs{Maker: maker, Device: device},
	}
}

var profiles = map[string]Geometry{
	"sst39sf512":   flash64K("sst39sf512", 0xBF, 0xB4),
	"sst39vf512":   flash64K("sst39vf512", 0xBF, 0xD4),
	"mx29l512":     flash64K("mx29l512", 0xC2, 0x1C),
	"mn63f805mnp":  flash64K("mn63f805mnp", 0x32, 0x1B),
	"mx29l010":     flash128K("mx29l010", 0xC2, 0x09),
	"le26fv10n1ts": flash128K("le26fv10n1ts", 0x62, 0x13),
}

// Default is the profile used when no device is selected.
const Default = "sst39sf512"

// Lookup returns the reference profile with the given name.
func Lookup(name string) (Geometry, error) {
	g, ok := profiles[strings.ToLower(name)]
	if !ok {
		return Geometry{}, fmt.Errorf("unsupported device '%s', supported: %s",
			name, strings.Join(Names(), ", "))
	}
	return g, nil
}

// ByID returns the reference profile matching the identity bytes of a chip.
func ByID(maker, device byte) (Geometry, bool) {
	for _, name := range Names() {
		g := profiles[name]
		if g.IDs.Maker == maker && g.IDs.Device == device {
			return g, true
		}
	}
	return Geometry{}, false
}

// Names returns the sorted names of all reference profiles.
func Names() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
