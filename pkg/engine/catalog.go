/*
Copyright The Coxswain Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package engine

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"
	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/pkg/errors"
)

// CatalogFile is the name of the chart catalog inside the charts
// directory.
const CatalogFile = "catalog.toml"

// Catalog maps accelerator classes to packaged engine charts. It is read
// from a TOML file of the form:
//
//	default = "engine-cpu"
//	min-version = ">= 0.1.0"
//
//	[charts.cpu]
//	path = "engine-cpu"
//	version = "0.3.1"
//
//	[charts.gpu-a100]
//	path = "engine-gpu"
//	version = "1.2.0"
type Catalog struct {
	Default    string                  `toml:"default"`
	MinVersion string                  `toml:"min-version"`
	Charts     map[string]CatalogEntry `toml:"charts"`

	baseDir string
}

// CatalogEntry is one chart in the catalog. Path is relative to the
// charts directory.
type CatalogEntry struct {
	Path    string `toml:"path"`
	Version string `toml:"version"`
}

// LoadCatalog reads the chart catalog under dir. A directory without a
// catalog file is treated as a single chart serving every accelerator
// class, which keeps one-chart setups free of configuration.
func LoadCatalog(dir string) (*Catalog, error) {
	c := &Catalog{baseDir: dir, Charts: map[string]CatalogEntry{}}

	file := filepath.Join(dir, CatalogFile)
	if _, err := os.Stat(file); os.IsNotExist(err) {
		c.Default = "."
		c.Charts[DefaultAccelClass] = CatalogEntry{Path: "."}
		return c, nil
	}
	if _, err := toml.DecodeFile(file, c); err != nil {
		return nil, errors.Wrapf(err, "cannot parse chart catalog %s", file)
	}
	c.baseDir = dir

	constraint := c.MinVersion
	if constraint == "" {
		constraint = ">= 0.0.0"
	}
	check, err := semver.NewConstraint(constraint)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid min-version in %s", file)
	}
	for class, entry := range c.Charts {
		if entry.Path == "" {
			return nil, errors.Errorf("catalog entry %q has no path", class)
		}
		if entry.Version == "" {
			continue
		}
		v, err := semver.NewVersion(entry.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "catalog entry %q has invalid version %q", class, entry.Version)
		}
		if !check.Check(v) {
			return nil, errors.Errorf("catalog entry %q version %s does not satisfy %s", class, entry.Version, constraint)
		}
	}
	return c, nil
}

// ChartFor resolves the chart path for an accelerator class, falling
// back to the catalog default. Paths are confined to the charts
// directory so a hostile catalog cannot escape it.
func (c *Catalog) ChartFor(accelClass string) (string, error) {
	entry, ok := c.Charts[accelClass]
	if !ok {
		if c.Default == "" {
			return "", errors.Errorf("no chart for accelerator class %q and no default", accelClass)
		}
		if d, found := c.Charts[c.Default]; found {
			entry = d
		} else {
			entry = CatalogEntry{Path: c.Default}
		}
	}
	path, err := securejoin.SecureJoin(c.baseDir, entry.Path)
	if err != nil {
		return "", errors.Wrapf(err, "cannot resolve chart path for %q", accelClass)
	}
	return path, nil
}
