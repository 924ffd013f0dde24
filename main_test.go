package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

type mockApp struct {
	opts   AppOptions
	called map[string]bool
	sArg   string
	err    error
}

func newMockApp() *mockApp {
	return &mockApp{
		called: make(map[string]bool),
	}
}

func (m *mockApp) ApplyOptions(opts AppOptions) { m.opts = opts }
func (m *mockApp) RunInspect(s string) error {
	m.called["RunInspect"] = true
	m.sArg = s
	return m.err
}
func (m *mockApp) RunRender() error  { m.called["RunRender"] = true; return m.err }
func (m *mockApp) RunService() error { m.called["RunService"] = true; return m.err }

func TestRun_Flags(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCalled string
		verifyOpts     func(*testing.T, AppOptions)
	}{
		{
			name:           "Inspect",
			args:           []string{"--inspect", "update.json"},
			expectedCalled: "RunInspect",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.InspectFile != "update.json" {
					t.Errorf("expected InspectFile update.json, got %s", opts.InspectFile)
				}
			},
		},
		{
			name:           "Render",
			args:           []string{"--render", "--snapshot", "snap.msgpack", "--svg", "plan.svg", "--output", "out.png"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.RenderOnly {
					t.Error("expected RenderOnly true")
				}
				if opts.SnapshotFile != "snap.msgpack" {
					t.Errorf("expected SnapshotFile snap.msgpack, got %s", opts.SnapshotFile)
				}
				if opts.SVGFile != "plan.svg" {
					t.Errorf("expected SVGFile plan.svg, got %s", opts.SVGFile)
				}
				if opts.OutputFile != "out.png" {
					t.Errorf("expected OutputFile out.png, got %s", opts.OutputFile)
				}
			},
		},
		{
			name:           "RenderFromURL",
			args:           []string{"--render", "--svg-url", "http://example.com/plan.svg"},
			expectedCalled: "RunRender",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.SVGURL != "http://example.com/plan.svg" {
					t.Errorf("expected SVGURL, got %s", opts.SVGURL)
				}
				if opts.OutputFile != "floorplan.svg" {
					t.Errorf("expected default OutputFile floorplan.svg, got %s", opts.OutputFile)
				}
			},
		},
		{
			name:           "InspectWinsOverRender",
			args:           []string{"--render", "--inspect", "a.json"},
			expectedCalled: "RunInspect",
		},
		{
			name:           "Service",
			args:           []string{"--mqtt", "--http-port", "9090", "--config", "custom.yaml"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.MqttMode {
					t.Error("expected MqttMode true")
				}
				if !opts.HttpMode {
					t.Error("expected HttpMode true by default")
				}
				if opts.HttpPort != 9090 {
					t.Errorf("expected HttpPort 9090, got %d", opts.HttpPort)
				}
				if opts.ConfigFile != "custom.yaml" {
					t.Errorf("expected ConfigFile custom.yaml, got %s", opts.ConfigFile)
				}
			},
		},
		{
			name:           "MqttOnly",
			args:           []string{"--mqtt", "--http=false"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.HttpMode {
					t.Error("expected HttpMode false")
				}
				if opts.ConfigFile != "config.yaml" {
					t.Errorf("expected default ConfigFile config.yaml, got %s", opts.ConfigFile)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMockApp()
			var out bytes.Buffer
			err := run(tt.args, &out, app)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}

			if !app.called[tt.expectedCalled] {
				t.Errorf("expected %s to be called", tt.expectedCalled)
			}
			if len(app.called) != 1 {
				t.Errorf("expected exactly one mode, got %v", app.called)
			}

			if tt.verifyOpts != nil {
				tt.verifyOpts(t, app.opts)
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{"--help"}, &out, app)
	if err == nil {
		t.Error("expected error from --help, got nil")
	}
	if !strings.Contains(out.String(), "Usage of planbind") {
		t.Errorf("expected usage info in output, got: %s", out.String())
	}
	if len(app.called) != 0 {
		t.Errorf("expected nothing to run, got %v", app.called)
	}
}

func TestRun_Default(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{}, &out, app)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	expectedPrefix := "planbind version: " + Version
	if !strings.Contains(out.String(), expectedPrefix) {
		t.Errorf("expected output to contain version, got: %s", out.String())
	}

	if !strings.Contains(out.String(), "planbind service starting...") {
		t.Errorf("expected output to contain service starting message, got: %s", out.String())
	}
}

func TestRun_PropagatesErrors(t *testing.T) {
	app := newMockApp()
	app.err = errors.New("boom")
	var out bytes.Buffer
	if err := run([]string{"--render"}, &out, app); !errors.Is(err, app.err) {
		t.Errorf("run error = %v, want %v", err, app.err)
	}
}

func TestMain_Execute(t *testing.T) {
	// Smoke test to ensure version is set
	if Version == "" {
		t.Error("expected Version to be set")
	}
}
