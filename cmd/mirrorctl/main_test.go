package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	for _, path := range [][]string{
		{"list"},
		{"validate"},
		{"sync"},
		{"cleanup"},
		{"host", "libraries"},
		{"host", "add-library"},
		{"host", "add-user"},
		{"host", "add-to-group"},
		{"host", "refreshes"},
		{"backup", "create"},
		{"backup", "list"},
		{"backup", "restore"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    func([]string) error
		input   []string
		wantErr bool
	}{
		{"validate needs two", func(a []string) error { return validateCmd.Args(validateCmd, a) }, []string{"lib"}, true},
		{"validate ok", func(a []string) error { return validateCmd.Args(validateCmd, a) }, []string{"lib", "/mnt/x"}, false},
		{"sync all", func(a []string) error { return syncCmd.Args(syncCmd, a) }, nil, false},
		{"sync one", func(a []string) error { return syncCmd.Args(syncCmd, a) }, []string{"alt"}, false},
		{"sync two", func(a []string) error { return syncCmd.Args(syncCmd, a) }, []string{"a", "b"}, true},
		{"add-library needs a path", func(a []string) error { return addLibraryCmd.Args(addLibraryCmd, a) }, []string{"Movies", "movies"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.args(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigArgs(t *testing.T) {
	dataPath, hostDB, envFile, logLevel = "/srv/mirrors", "", ".env", "warn"
	t.Cleanup(func() { dataPath, hostDB = "", "" })

	assert.Equal(t, []string{"-env-file", ".env", "-log-level", "warn", "-data-path", "/srv/mirrors"}, configArgs())
}

func TestHostCommands_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	dataPath, hostDB, envFile, logLevel = dir, dir+"/host.db", dir+"/missing.env", "error"
	t.Cleanup(func() { dataPath, hostDB, envFile, logLevel = "", "", ".env", "warn" })

	rootCmd.SetArgs([]string{"host", "add-library", "Movies", "movies", dir})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"list"})
	require.NoError(t, rootCmd.Execute())

	archive := dir + "/config.mirrors.zip"
	rootCmd.SetArgs([]string{"backup", "create", archive})
	require.NoError(t, rootCmd.Execute())
	assert.FileExists(t, archive)

	rootCmd.SetArgs([]string{"backup", "restore", "--dry-run", archive})
	require.NoError(t, rootCmd.Execute())
}
