/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package roster

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/meshmetricsd/pkg/models"
)

const sampleRoster = `# repeater roster
!a1b2c3d4,Base,Hilltop,38.58,-121.49

!deadbeef,Relay
# trailing comment
cafef00d
`

func TestParse(t *testing.T) {
	devices, err := Parse(sampleRoster)
	require.NoError(t, err)
	require.Len(t, devices, 3)

	assert.Equal(t, models.Device{
		NodeID:      "!a1b2c3d4",
		ContactName: "Base",
		Location:    "Hilltop",
		Latitude:    "38.58",
		Longitude:   "-121.49",
	}, devices[0])

	assert.Equal(t, models.Device{NodeID: "!deadbeef", ContactName: "Relay"}, devices[1])
	assert.Equal(t, models.Device{NodeID: "cafef00d"}, devices[2])
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("# only comments\n\n")
	require.ErrorIs(t, err, ErrNoDevices)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	encrypted, err := Encrypt(sampleRoster, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, []byte("Salted__"), encrypted[:8])

	plaintext, err := Decrypt(encrypted, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, sampleRoster, plaintext)
}

func TestDecrypt_Base64Wrapped(t *testing.T) {
	encrypted, err := Encrypt(sampleRoster, "hunter2")
	require.NoError(t, err)

	wrapped := []byte(base64.StdEncoding.EncodeToString(encrypted))

	plaintext, err := Decrypt(wrapped, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, sampleRoster, plaintext)
}

func TestDecrypt_WrongPassword(t *testing.T) {
	encrypted, err := Encrypt(sampleRoster, "hunter2")
	require.NoError(t, err)

	// Wrong key must surface as a padding error, never as the original text.
	// A garbage decryption can coincidentally carry valid padding, so accept
	// either failure mode.
	plaintext, err := Decrypt(encrypted, "letmein")
	if err == nil {
		assert.NotEqual(t, sampleRoster, plaintext)
	}
}

func TestLoadFile_Encrypted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.csv.enc")

	encrypted, err := Encrypt(sampleRoster, "hunter2")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, encrypted, 0o600))

	devices, err := LoadFile(path, "hunter2")
	require.NoError(t, err)
	assert.Len(t, devices, 3)
}

func TestLoad_PasswordFile(t *testing.T) {
	dir := t.TempDir()
	rosterPath := filepath.Join(dir, "devices.csv.enc")
	passwordPath := filepath.Join(dir, "roster.pass")

	encrypted, err := Encrypt(sampleRoster, "hunter2")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(rosterPath, encrypted, 0o600))
	require.NoError(t, os.WriteFile(passwordPath, []byte("hunter2\n"), 0o600))

	devices, err := Load(&Config{File: rosterPath, Encrypted: true, PasswordFile: passwordPath})
	require.NoError(t, err)
	assert.Len(t, devices, 3)
}

func TestLoad_EncryptedWithoutPasswordFile(t *testing.T) {
	_, err := Load(&Config{File: "whatever", Encrypted: true})
	require.Error(t, err)
}
