/*
Copyright the Reciprocal Reviews contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBannerNamesTheBinary(t *testing.T) {
	banner := GetInfo()
	require.Contains(t, banner, ProgramName)
	for _, field := range []string{"Version:", "Go version:", "OS/Arch:"} {
		assert.Contains(t, banner, field)
	}
}

func TestCommandPrintsBanner(t *testing.T) {
	cmd := Cmd()
	require.Equal(t, "version", cmd.Use)

	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, GetInfo(), out.String())
}

func TestCommandRejectsTrailingArgs(t *testing.T) {
	cmd := Cmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"unexpected"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing args")
}
