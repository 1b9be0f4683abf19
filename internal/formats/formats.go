// Package formats holds the table-of-contents parsers for the supported
// container formats and registers them with a registry.
package formats

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jchantrell/gamepak/internal/bundle"
	"github.com/jchantrell/gamepak/internal/registry"
)

// Mask selects a subset of the standard loaders.
type Mask uint64

const (
	MaskPangya Mask = 1 << iota
	MaskQuakePAK
	MaskDaikatana
	MaskSiN
	MaskDoomWAD
	MaskWAD2
	MaskGRP
	MaskHOG
	MaskGOB
	MaskBIG
	MaskLOD
	MaskFalloutDAT
	MaskGodotPCK
	MaskVPK
	MaskZIP
	MaskPBO
	MaskWPKG
	MaskGPK
	MaskMPQ
	MaskEVR
	MaskPoE
	MaskMIX
	MaskLZRW
	MaskGPAK

	maskEnd
)

// All enables every standard loader.
const All = maskEnd - 1

// Format describes one standard loader.
type Format struct {
	Mask       Mask
	Name       string
	Extensions []string
	Loader     registry.Loader
}

// Formats are kept in registration order. A registry tries the newest record
// first, so formats without a magic number come before the ones sharing their
// extension that can be identified cheaply.
var standard = []Format{
	{MaskPangya, "pangya", []string{"pak"}, registry.HandleParser{Name: "pangya", Parse: parsePangya}},
	{MaskQuakePAK, "pak", []string{"pak"}, registry.HandleParser{Name: "pak", Parse: parseQuakePAK}},
	{MaskDaikatana, "daikatana", []string{"pak"}, registry.HandleParser{Name: "daikatana", Parse: parseDaikatanaPAK}},
	{MaskSiN, "sin", []string{"sin"}, registry.HandleParser{Name: "sin", Parse: parseSiNPAK}},
	{MaskDoomWAD, "wad", []string{"wad"}, registry.HandleParser{Name: "wad", Parse: parseDoomWAD}},
	{MaskWAD2, "wad2", []string{"wad"}, registry.HandleParser{Name: "wad2", Parse: parseWAD2}},
	{MaskGRP, "grp", []string{"grp"}, registry.HandleParser{Name: "grp", Parse: parseGRP}},
	{MaskHOG, "hog", []string{"hog"}, registry.HandleParser{Name: "hog", Parse: parseHOG}},
	{MaskGOB, "gob", []string{"gob"}, registry.HandleParser{Name: "gob", Parse: parseGOB}},
	{MaskBIG, "big", []string{"big"}, registry.HandleParser{Name: "big", Parse: parseBIG}},
	{MaskLOD, "lod", []string{"lod"}, registry.HandleParser{Name: "lod", Parse: parseLOD}},
	{MaskFalloutDAT, "dat", []string{"dat"}, registry.HandleParser{Name: "dat", Parse: parseFalloutDAT}},
	{MaskGodotPCK, "pck", []string{"pck"}, registry.HandleParser{Name: "pck", Parse: parseGodotPCK}},
	{MaskVPK, "vpk", []string{"vpk"}, registry.PathLoader{Name: "vpk", Load: loadVPK}},
	{MaskZIP, "zip", []string{"zip", "pk3", "pk4", "pke"}, registry.HandleParser{Name: "zip", Parse: parseZIP}},
	{MaskPBO, "pbo", []string{"pbo"}, registry.HandleParser{Name: "pbo", Parse: parsePBO}},
	{MaskWPKG, "wpkg", []string{"pkg"}, registry.HandleParser{Name: "wpkg", Parse: parseWPKG}},
	{MaskGPK, "gpk", []string{"gpk"}, registry.HandleParser{Name: "gpk", Parse: parseGPK}},
	{MaskMPQ, "mpq", []string{"mpq"}, registry.HandleParser{Name: "mpq", Parse: parseMPQ}},
	{MaskEVR, "evr", []string{"", "manifest"}, registry.PathLoader{Name: "evr", Load: loadEVR}},
	{MaskPoE, "poe", []string{"bin"}, registry.PathLoader{Name: "poe", Load: bundle.Load}},
	{MaskMIX, "mix", []string{"mix"}, registry.HandleParser{Name: "mix", Parse: parseMIX}},
	{MaskLZRW, "lzrw", []string{"lzrw"}, registry.HandleParser{Name: "lzrw", Parse: parseLZRW}},
	{MaskGPAK, "gpak", []string{"gpak"}, registry.HandleParser{Name: "gpak", Parse: parseGPAK}},
}

// Standard returns the descriptions of every standard loader.
func Standard() []Format {
	out := make([]Format, len(standard))
	copy(out, standard)
	return out
}

// RegisterStandard adds the loaders selected by mask to reg.
func RegisterStandard(reg *registry.Registry, mask Mask) {
	for _, f := range standard {
		if mask&f.Mask == 0 {
			continue
		}
		for _, ext := range f.Extensions {
			reg.Register(ext, f.Loader)
		}
	}
}

// ParseMask turns format names into a mask. An empty list selects All.
func ParseMask(names []string) (Mask, error) {
	if len(names) == 0 {
		return All, nil
	}

	var mask Mask
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "all" {
			return All, nil
		}
		found := false
		for _, f := range standard {
			if f.Name == name {
				mask |= f.Mask
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown format %q", name)
		}
	}
	return mask, nil
}

// NewRegistry returns a registry holding the standard loaders in mask.
func NewRegistry(mask Mask, opts ...registry.Option) *registry.Registry {
	reg := registry.New(opts...)
	RegisterStandard(reg, mask)
	return reg
}

var (
	defaultOnce sync.Once
	defaultReg  *registry.Registry
)

// Default returns a process wide registry with every standard loader. It is
// built on first use.
func Default() *registry.Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry(All)
	})
	return defaultReg
}
