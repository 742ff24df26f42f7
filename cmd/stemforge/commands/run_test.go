package commands_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemforge/stemforge/cmd/stemforge/commands"
	"github.com/stemforge/stemforge/pkg/audio"
)

func writeStem(t *testing.T, dir, name string, freq float64) {
	t.Helper()

	data, err := audio.EncodeWAV(audio.Sine(name, 44100, freq, 0.4, 1.0), audio.Depth16)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestRunCommandProducesArtifacts(t *testing.T) {
	stems := t.TempDir()
	out := t.TempDir()

	writeStem(t, stems, "bass.wav", 110)
	writeStem(t, stems, "lead.wav", 880)

	var buf bytes.Buffer

	cmd := commands.NewRunCommand()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{stems, "--out", out, "--preset", "warm"})

	require.NoError(t, cmd.Execute())

	assert.Contains(t, buf.String(), "SUCCESS")
	assert.Contains(t, buf.String(), "LUFS")

	report, err := os.ReadFile(filepath.Join(out, "report.json"))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(report, &decoded))
	assert.Equal(t, "warm", decoded["style_preset"])

	wav, err := os.ReadFile(filepath.Join(out, "full_song.wav"))
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(wav[:4]))

	_, err = os.Stat(filepath.Join(out, "loudness.html"))
	require.NoError(t, err)
}

func TestRunCommandAnalysisOnlyPlan(t *testing.T) {
	stems := t.TempDir()
	out := t.TempDir()

	writeStem(t, stems, "bass.wav", 110)

	var buf bytes.Buffer

	cmd := commands.NewRunCommand()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{stems, "--out", out, "--stage", "loudness"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "1/1 stages")
}

func TestRunCommandRejectsMissingDir(t *testing.T) {
	cmd := commands.NewRunCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{filepath.Join(t.TempDir(), "missing"), "--out", t.TempDir()})

	require.Error(t, cmd.Execute())
}
