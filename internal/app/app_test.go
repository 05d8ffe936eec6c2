package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bankbot/internal/config"

	"go.uber.org/zap"
)

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("db_path: %s\nmodel_path: %s\ncuration_export_dir: %s\nlog_level: error\n",
		filepath.Join(dir, "bank.db"), filepath.Join(dir, "model.json"), filepath.Join(dir, "curation"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dir
}

func execute(t *testing.T, configPath, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestChatRefusesWithoutModel(t *testing.T) {
	cfg, _ := writeTestConfig(t)
	_, err := execute(t, cfg, "hello\n", "chat")
	if err == nil || !strings.Contains(err.Error(), setupHint) {
		t.Fatalf("expected setup guidance, got %v", err)
	}
}

func TestSeedTrainChatStats(t *testing.T) {
	cfg, dir := writeTestConfig(t)

	out, err := execute(t, cfg, "", "seed")
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if !strings.Contains(out, "27 examples") {
		t.Fatalf("unexpected seed output: %s", out)
	}
	out, err = execute(t, cfg, "", "seed")
	if err != nil || !strings.Contains(out, "0 examples") {
		t.Fatalf("second seed should add nothing: %s %v", out, err)
	}

	out, err = execute(t, cfg, "", "train")
	if err != nil {
		t.Fatalf("train failed: %v", err)
	}
	if !strings.Contains(out, "Model trained") {
		t.Fatalf("unexpected train output: %s", out)
	}
	if _, err := os.Stat(filepath.Join(dir, "model.json")); err != nil {
		t.Fatalf("model artifact missing: %v", err)
	}

	if _, err := execute(t, cfg, "", "fact", "set", "loan_personal_rate", "15.0%", "p.a."); err != nil {
		t.Fatalf("fact set failed: %v", err)
	}
	out, err = execute(t, cfg, "", "fact", "list")
	if err != nil || !strings.Contains(out, "loan_personal_rate = 15.0% p.a.") {
		t.Fatalf("fact list = %s, %v", out, err)
	}

	out, err = execute(t, cfg, "what is loan rate\nhello\n", "chat")
	if err != nil {
		t.Fatalf("chat failed: %v", err)
	}
	if !strings.Contains(out, "Personal: 15.0% p.a.") || !strings.Contains(out, "intent=loan_rates") {
		t.Fatalf("unexpected loan answer:\n%s", out)
	}
	if !strings.Contains(out, "intent=smalltalk, conf=1.00") {
		t.Fatalf("unexpected smalltalk answer:\n%s", out)
	}

	out, err = execute(t, cfg, "", "stats", "--json")
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	var stats struct {
		TotalInteractions int `json:"total_interactions"`
		Smalltalk         int `json:"smalltalk"`
		Model             *struct {
			ID string `json:"id"`
		} `json:"model"`
	}
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v\n%s", err, out)
	}
	if stats.TotalInteractions != 2 || stats.Smalltalk != 1 || stats.Model == nil {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCurateCommands(t *testing.T) {
	cfg, dir := writeTestConfig(t)
	if _, err := execute(t, cfg, "", "seed"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	out, err := execute(t, cfg, "", "curate", "list")
	if err != nil || !strings.Contains(out, "Nothing to review.") {
		t.Fatalf("curate list = %s, %v", out, err)
	}

	rt, err := openRuntime(&state{cfg: mustLoad(t, cfg), logger: nopLogger()})
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	if _, err := rt.service.Teach(t.Context(), "where is the nearest atm", "Main street branch", 0.2); err != nil {
		t.Fatalf("Teach failed: %v", err)
	}
	rt.Close()

	out, err = execute(t, cfg, "", "curate", "suggest")
	if err != nil || !strings.Contains(out, "atm_availability") || !strings.Contains(out, "source=nearest_example") {
		t.Fatalf("curate suggest = %s, %v", out, err)
	}

	out, err = execute(t, cfg, "", "curate", "export", "--suggest")
	if err != nil || !strings.Contains(out, "1 pending taught answers") {
		t.Fatalf("curate export = %s, %v", out, err)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "curation", "curation_*.yaml"))
	if len(files) != 1 {
		t.Fatalf("expected one export file, got %v", files)
	}

	if _, err := execute(t, cfg, "", "curate", "approve", "1"); err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	out, err = execute(t, cfg, "", "curate", "list", "--all")
	if err != nil || !strings.Contains(out, "[x] #1 where is the nearest atm") {
		t.Fatalf("curate list --all = %s, %v", out, err)
	}
	if _, err := execute(t, cfg, "", "curate", "approve", "99"); err == nil {
		t.Fatal("approving a missing id should fail")
	}
}

func TestVersionNeedsNoConfig(t *testing.T) {
	out, err := execute(t, filepath.Join(t.TempDir(), "missing", "config.yaml"), "", "version")
	if err != nil || !strings.Contains(out, "bankbot version") {
		t.Fatalf("version = %s, %v", out, err)
	}
}

func mustLoad(t *testing.T, path string) config.Config {
	t.Helper()
	t.Setenv("CONFIG_PATH", path)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}
