package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestBinaryCommands builds the binary and runs its one-shot modes
func TestBinaryCommands(t *testing.T) {
	// Skip if not running integration tests
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}

	tmpDir := t.TempDir()
	snapshot := writeFixture(t, tmpDir, "update.json", testUpdate)
	plan := writeFixture(t, tmpDir, "plan.svg", testPlan)

	binaryPath := filepath.Join(tmpDir, "planbind-test")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, ".")
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, output)
	}

	tests := []struct {
		name           string
		args           []string
		expectInOutput []string
		expectFile     string
	}{
		{
			name:           "inspect",
			args:           []string{"--inspect", snapshot},
			expectInOutput: []string{"planbind version:", "Points: 2", "Polygons: 1"},
		},
		{
			name: "render svg",
			args: []string{"--render", "--config", filepath.Join(tmpDir, "none.yaml"),
				"--snapshot", snapshot, "--svg", plan, "--output", filepath.Join(tmpDir, "out.svg")},
			expectInOutput: []string{"Rendered 2 labels (2 colored), 1 polygons"},
			expectFile:     filepath.Join(tmpDir, "out.svg"),
		},
		{
			name: "render png",
			args: []string{"--render", "--config", filepath.Join(tmpDir, "none.yaml"),
				"--snapshot", snapshot, "--svg", plan, "--output", filepath.Join(tmpDir, "out.png")},
			expectFile: filepath.Join(tmpDir, "out.png"),
		},
		{
			name:           "missing snapshot",
			args:           []string{"--render", "--snapshot", filepath.Join(tmpDir, "nope.json")},
			expectInOutput: []string{"Error:"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			cmd := exec.CommandContext(ctx, binaryPath, tt.args...)
			output, _ := cmd.CombinedOutput()
			outputStr := string(output)

			for _, expected := range tt.expectInOutput {
				if !strings.Contains(outputStr, expected) {
					t.Errorf("Expected output to contain %q, got:\n%s", expected, outputStr)
				}
			}
			if tt.expectFile != "" {
				if info, err := os.Stat(tt.expectFile); err != nil || info.Size() == 0 {
					t.Errorf("Expected %s to be written: %v", tt.expectFile, err)
				}
			}
		})
	}
}

// TestServiceStartupShutdown starts the HTTP service and stops it with SIGINT
func TestServiceStartupShutdown(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}

	tmpDir := t.TempDir()
	binaryPath := filepath.Join(tmpDir, "planbind-test")
	buildCmd := exec.Command("go", "build", "-o", binaryPath, ".")
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, output)
	}

	var out strings.Builder
	cmd := exec.Command(binaryPath, "--config", filepath.Join(tmpDir, "none.yaml"), "--http-port", "48123")
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start service: %v", err)
	}

	time.Sleep(time.Second)
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		t.Fatalf("Failed to send interrupt: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("Service did not stop after SIGINT")
	}

	for _, expected := range []string{"planbind service starting...", "Service Running", "Service stopped"} {
		if !strings.Contains(out.String(), expected) {
			t.Errorf("Expected output to contain %q, got:\n%s", expected, out.String())
		}
	}
}
