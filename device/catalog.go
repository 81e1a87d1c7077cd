// Copyright 2024 The avrupdi Authors. All rights reserved.
// Use of this source code is governed by a GPL license that can be found in the LICENSE file.

package device

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v2"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

type yamlFlash struct {
	Start    uint32 `yaml:"start"`
	Size     uint32 `yaml:"size"`
	PageSize int    `yaml:"page_size"`
}

type yamlDescriptor struct {
	Name        string    `yaml:"name"`
	Flash       yamlFlash `yaml:"flash"`
	SyscfgAddr  uint32    `yaml:"syscfg_addr"`
	NvmctrlAddr uint32    `yaml:"nvmctrl_addr"`
	SigrowAddr  uint32    `yaml:"sigrow_addr"`
	FusesAddr   uint32    `yaml:"fuses_addr"`
	UserrowAddr uint32    `yaml:"userrow_addr"`
}

type yamlCatalogFile struct {
	Devices []yamlDescriptor `yaml:"devices"`
}

// MapCatalog is a Catalog backed by an in-memory name-to-Descriptor map,
// the shape drivedb.go's generated table takes at runtime once loaded.
type MapCatalog map[string]Descriptor

// Lookup implements Catalog.
func (c MapCatalog) Lookup(name string) (Descriptor, bool) {
	d, ok := c[name]
	return d, ok
}

// ParseCatalog decodes a YAML device table in the shape of catalog.yaml
// into a MapCatalog.
func ParseCatalog(data []byte) (MapCatalog, error) {
	var file yamlCatalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("device: parse catalog: %w", err)
	}
	cat := make(MapCatalog, len(file.Devices))
	for _, d := range file.Devices {
		cat[d.Name] = Descriptor{
			Name: d.Name,
			Flash: Flash{
				Start:    d.Flash.Start,
				Size:     d.Flash.Size,
				PageSize: d.Flash.PageSize,
			},
			SyscfgAddr:  d.SyscfgAddr,
			NvmctrlAddr: d.NvmctrlAddr,
			SigrowAddr:  d.SigrowAddr,
			FusesAddr:   d.FusesAddr,
			UserrowAddr: d.UserrowAddr,
		}
	}
	return cat, nil
}

// Default returns the built-in catalog (tiny817, tiny416, mega4809),
// embedded from catalog.yaml at build time.
func Default() MapCatalog {
	cat, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		// catalog.yaml is part of the module; a parse failure here is a
		// build-time defect, not a runtime condition callers can act on.
		panic(err)
	}
	return cat
}
