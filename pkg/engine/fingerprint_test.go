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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintText(t *testing.T) {
	is := assert.New(t)

	fp1, err := FingerprintText("model:\n  identifier: facebook/opt-125m\nserver:\n  port: 8000\n")
	require.NoError(t, err)
	is.Len(fp1, 32) // 128 bits, hex encoded

	// Key order in the source text is irrelevant.
	fp2, err := FingerprintText("server:\n  port: 8000\nmodel:\n  identifier: facebook/opt-125m\n")
	require.NoError(t, err)
	is.Equal(fp1, fp2)

	// Content changes change the fingerprint.
	fp3, err := FingerprintText("model:\n  identifier: facebook/opt-350m\nserver:\n  port: 8000\n")
	require.NoError(t, err)
	is.NotEqual(fp1, fp3)
}

func TestFingerprintEmptyValues(t *testing.T) {
	is := assert.New(t)

	_, err := FingerprintText("")
	is.Error(err)

	_, err = FingerprintText("# only a comment\n")
	is.Error(err)
}

func TestCoreFingerprint(t *testing.T) {
	is := assert.New(t)

	a, err := (&Spec{ModelIdentifier: "m"}).CoreFingerprint()
	require.NoError(t, err)
	b, err := (&Spec{ModelIdentifier: "m"}).CoreFingerprint()
	require.NoError(t, err)
	is.Equal(a, b)

	// Defaults are baked in, so an explicit default matches an implicit one.
	c, err := (&Spec{ModelIdentifier: "m", Port: 8000}).CoreFingerprint()
	require.NoError(t, err)
	is.Equal(a, c)

	d, err := (&Spec{ModelIdentifier: "m", Port: 9000}).CoreFingerprint()
	require.NoError(t, err)
	is.NotEqual(a, d)
}
