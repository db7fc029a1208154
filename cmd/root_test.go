/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"

	pkgconfig "jinr.ru/greenlab/go-router/pkg/config"
)

func run(t *testing.T, args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd := NewRootCommand(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFrameEncode(t *testing.T) {
	out, err := run(t, "frame", "encode", "--destination", "0", "aa55")
	require.NoError(t, err)
	assert.Equal(t, "08aa55f7\n", out)

	out, err = run(t, "frame", "encode", "--destination", "1", "--parity", "00", "42")
	require.NoError(t, err)
	assert.Equal(t, "054200\n", out)

	out, err = run(t, "frame", "encode", "--destination", "2")
	require.NoError(t, err)
	assert.Equal(t, "0202\n", out)

	_, err = run(t, "frame", "encode", "--destination", "4", "00")
	assert.Error(t, err)
}

func TestFrameDecode(t *testing.T) {
	out, err := run(t, "frame", "decode", "08aa55f7054200")
	require.NoError(t, err)
	assert.Equal(t,
		"destination: 0 length: 2 payload: aa55 parity: f7 ok\n"+
			"destination: 1 length: 1 payload: 42 parity: 00 parity error\n", out)

	_, err = run(t, "frame", "decode", "08aa")
	assert.Error(t, err)
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")

	out, err := run(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, err = run(t, "--config", path, "config", "init")
	assert.ErrorAs(t, err, &pkgconfig.ErrConfigFileExists{})
	_, err = run(t, "--config", path, "config", "init", "--force")
	assert.NoError(t, err)

	out, err = run(t, "--config", path, "--log-level", "debug", "config", "show")
	require.NoError(t, err)
	shown := pkgconfig.NewDefaultConfig()
	require.NoError(t, yaml.Unmarshal([]byte(out), shown))
	assert.Equal(t, "debug", shown.LogLevel)
	assert.Equal(t, pkgconfig.DefaultTimeoutCycles, shown.Router.TimeoutCycles)
}

func TestCompletion(t *testing.T) {
	out, err := run(t, "completion")
	require.NoError(t, err)
	assert.Contains(t, out, "go-router")

	_, err = run(t, "completion", "tcsh")
	assert.Error(t, err)
}
