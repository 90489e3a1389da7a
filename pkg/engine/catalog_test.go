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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, CatalogFile), []byte(body), 0644))
	return dir
}

func TestLoadCatalog(t *testing.T) {
	is := assert.New(t)

	dir := writeCatalog(t, `
default = "cpu"
min-version = ">= 0.1.0"

[charts.cpu]
path = "engine-cpu"
version = "0.3.1"

[charts.gpu-a100]
path = "engine-gpu"
version = "1.2.0"
`)
	c, err := LoadCatalog(dir)
	require.NoError(t, err)

	path, err := c.ChartFor("gpu-a100")
	require.NoError(t, err)
	is.Equal(filepath.Join(dir, "engine-gpu"), path)

	// Unknown classes fall back to the default entry.
	path, err = c.ChartFor("tpu-v5")
	require.NoError(t, err)
	is.Equal(filepath.Join(dir, "engine-cpu"), path)
}

func TestLoadCatalogWithoutFile(t *testing.T) {
	is := assert.New(t)

	dir := t.TempDir()
	c, err := LoadCatalog(dir)
	require.NoError(t, err)

	// The whole directory serves as the chart for every class.
	path, err := c.ChartFor("cpu")
	require.NoError(t, err)
	is.Equal(filepath.Clean(dir), filepath.Clean(path))

	path, err = c.ChartFor("gpu-h100")
	require.NoError(t, err)
	is.Equal(filepath.Clean(dir), filepath.Clean(path))
}

func TestLoadCatalogRejectsOldVersions(t *testing.T) {
	dir := writeCatalog(t, `
min-version = ">= 1.0.0"

[charts.cpu]
path = "engine-cpu"
version = "0.3.1"
`)
	_, err := LoadCatalog(dir)
	assert.Error(t, err)
}

func TestChartForConfinesPaths(t *testing.T) {
	is := assert.New(t)

	dir := writeCatalog(t, `
[charts.cpu]
path = "../../etc/passwd"
`)
	c, err := LoadCatalog(dir)
	require.NoError(t, err)

	path, err := c.ChartFor("cpu")
	require.NoError(t, err)
	is.True(strings.HasPrefix(path, dir), "resolved path %q escaped %q", path, dir)
}

func TestChartForNoDefault(t *testing.T) {
	dir := writeCatalog(t, `
[charts.cpu]
path = "engine-cpu"
`)
	c, err := LoadCatalog(dir)
	require.NoError(t, err)

	_, err = c.ChartFor("gpu-a100")
	assert.Error(t, err)
}
