package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iabetor/whistle/internal/audio"
	"github.com/iabetor/whistle/internal/config"
	"github.com/iabetor/whistle/internal/model"
	"github.com/iabetor/whistle/internal/synth"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestRunRequiresInput(t *testing.T) {
	if _, err := runCLI(t); !errors.Is(err, errUsage) {
		t.Errorf("error = %v, want errUsage", err)
	}
}

func TestRunJoinedWritesWAV(t *testing.T) {
	out, err := runCLI(t, "-i", "toki pona")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	pcm, rate, err := audio.DecodeWAV([]byte(out))
	if err != nil {
		t.Fatalf("stdout is not a WAV: %v", err)
	}
	if rate != synth.DefaultSampleRate {
		t.Errorf("rate = %d", rate)
	}

	m, _ := model.Builtin("suli")
	want, _, err := synth.New(m).Synthesize(context.Background(), "tOkipOna")
	if err != nil {
		t.Fatal(err)
	}
	if len(pcm) != len(want) {
		t.Errorf("got %d samples, want %d", len(pcm), len(want))
	}
}

func TestRunRateAndNoNormalize(t *testing.T) {
	out, err := runCLI(t, "-i", "tOki", "-rate", "8000", "-no-normalize", "-m", "waso")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	_, rate, err := audio.DecodeWAV([]byte(out))
	if err != nil || rate != 8000 {
		t.Errorf("DecodeWAV rate = %d, %v", rate, err)
	}
}

func TestRunSplit(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(input, []byte("toki\n\npona\nzzz\n"), 0644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "out")

	out, err := runCLI(t, "-i", input, "-split", "-o", outDir)
	if err == nil || !strings.Contains(err.Error(), "1/3") {
		t.Errorf("error = %v, want one failed line", err)
	}
	names := strings.Fields(out)
	if len(names) != 2 || names[0] != "toki.wav" || names[1] != "pona.wav" {
		t.Fatalf("printed names = %q", names)
	}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("%s not written: %v", name, err)
		}
		if _, _, err := audio.DecodeWAV(data); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "zzz.wav")); !os.IsNotExist(err) {
		t.Error("failed line should not produce a file")
	}
}

func TestRunTimeline(t *testing.T) {
	out, err := runCLI(t, "-i", "toki", "-timeline")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	var tl struct {
		Segments []struct {
			Grapheme   string  `json:"grapheme"`
			DurationMs float64 `json:"duration_ms"`
			Freq       struct {
				Shape string `json:"shape"`
			} `json:"freq"`
		} `json:"segments"`
	}
	if err := json.Unmarshal([]byte(out), &tl); err != nil {
		t.Fatalf("timeline is not JSON: %v\n%s", err, out)
	}
	if len(tl.Segments) == 0 || tl.Segments[0].Grapheme != "t" || tl.Segments[0].Freq.Shape == "" {
		t.Errorf("timeline = %+v", tl)
	}
}

func TestRunRejectsSampleRate(t *testing.T) {
	for _, rate := range []string{"-5", "4611686018427387904"} {
		if _, err := runCLI(t, "-i", "toki", "-rate", rate); !errors.Is(err, errUsage) {
			t.Errorf("-rate %s: error = %v, want errUsage", rate, err)
		}
	}

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "whistle.yaml")
	if err := os.WriteFile(cfgPath, []byte("synth:\n  sample_rate: -1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := runCLI(t, "-config", cfgPath, "-i", "toki"); !errors.Is(err, synth.ErrInvalidSampleRate) {
		t.Errorf("error = %v, want ErrInvalidSampleRate", err)
	}
}

func TestRunTimelineSplit(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	os.WriteFile(input, []byte("toki\nzzz\n"), 0644)

	out, err := runCLI(t, "-i", input, "-timeline", "-split")
	if err == nil {
		t.Error("expected error for unresolved line")
	}
	var lines []lineTimeline
	if err := json.Unmarshal([]byte(out), &lines); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if len(lines) != 2 || lines[0].Timeline == nil || lines[1].Error == "" {
		t.Errorf("lines = %+v", lines)
	}
}

func TestRunWithConfigAndCache(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "whistle.yaml")
	cfg := "synth:\n  model: waso\n  sample_rate: 22050\ncache:\n  enabled: true\n  db_path: " +
		filepath.Join(dir, "cache.db") + "\nlog:\n  level: warn\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	first, err := runCLI(t, "-config", cfgPath, "-i", "toki")
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := runCLI(t, "-config", cfgPath, "-i", "toki")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if first != second {
		t.Error("cached output differs from fresh rendering")
	}
	if _, rate, _ := audio.DecodeWAV([]byte(first)); rate != 22050 {
		t.Errorf("rate = %d, want 22050 from config", rate)
	}
	if _, err := os.Stat(filepath.Join(dir, "cache.db")); err != nil {
		t.Errorf("cache database not created: %v", err)
	}
}

func TestFileName(t *testing.T) {
	tests := map[string]string{
		"toki pona": "toki pona",
		"a/b\\c":    "a_b_c",
		"":          "_",
		"..":        "_",
	}
	for in, want := range tests {
		if got := fileName(in); got != want {
			t.Errorf("fileName(%q) = %q, want %q", in, got, want)
		}
	}
}

type fakeEngine struct {
	got string
	err error
}

func (f *fakeEngine) Synthesize(_ context.Context, text string) ([]float32, int, error) {
	f.got = text
	if f.err != nil {
		return nil, 0, f.err
	}
	return []float32{0, 0.5, -0.5}, 8000, nil
}

func TestRunJoinedUsesEngine(t *testing.T) {
	var out bytes.Buffer
	eng := &fakeEngine{}
	if err := runJoined(context.Background(), &out, eng, "tOki pOna", config.Default()); err != nil {
		t.Fatalf("runJoined failed: %v", err)
	}
	if eng.got != "tOki pOna" {
		t.Errorf("engine got %q", eng.got)
	}
	pcm, rate, err := audio.DecodeWAV(out.Bytes())
	if err != nil || rate != 8000 || len(pcm) != 3 {
		t.Errorf("DecodeWAV = %d samples @ %d, %v", len(pcm), rate, err)
	}

	boom := errors.New("boom")
	out.Reset()
	if err := runJoined(context.Background(), &out, &fakeEngine{err: boom}, "x", config.Default()); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
	if out.Len() != 0 {
		t.Error("nothing should be written on failure")
	}
}
