package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/proctrace/internal/config"
	"github.com/aretw0/proctrace/pkg/adapters/file"
	"github.com/aretw0/proctrace/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func seedSnapshot(t *testing.T, dir string) {
	t.Helper()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := domain.NewProcess("k1", domain.ProcessSubmit, start)
	p.Log.Append("Start Process:SUBMIT/42")
	step := domain.NewStep("s1", domain.StepCompile, start)
	step.Finish(domain.StatusFinished, start.Add(time.Second))
	p.Children = append(p.Children, step)
	p.Finish(domain.StatusFinished, start.Add(2*time.Second))
	require.NoError(t, file.New(dir).Save(context.Background(), "SUBMIT/42", p))
}

func TestShow(t *testing.T) {
	dir := t.TempDir()
	seedSnapshot(t, dir)
	cfgPath := filepath.Join(dir, "none.yaml")

	out, err := runCommand(t, "show", "--config", cfgPath, "--dir", dir, "--plain", "SUBMIT/42")
	require.NoError(t, err)
	assert.Contains(t, out, "# SUBMIT/42")
	assert.Contains(t, out, "`FINISHED`")
	assert.Contains(t, out, "Compile statements")

	out, err = runCommand(t, "show", "--config", cfgPath, "--dir", dir, "--mermaid", "--plain=false", "SUBMIT/42")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")

	out, err = runCommand(t, "show", "--config", cfgPath, "--dir", dir, "--mermaid=false")
	require.NoError(t, err)
	assert.Contains(t, out, "SUBMIT/42")

	_, err = runCommand(t, "show", "--config", cfgPath, "--dir", dir, "SUBMIT/404")
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	cfg := config.Default()
	cfg.WorkDir = t.TempDir()

	store, locker, err := openStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &file.Store{}, store)
	assert.Nil(t, locker)

	cfg.Store.Backend = "s3"
	_, _, err = openStore(cfg)
	assert.Error(t, err)
}

func TestLoadConfig_FlagOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proctrace.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: warn\n"), 0644))

	cmd := showCmd
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--log-level", "debug", "--dir", dir}))
	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, dir, cfg.WorkDir)
}
