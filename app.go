package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/planbind/floorplan"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *floorplan.Config
	Visual     *floorplan.Visual
	Store      *floorplan.FileSettingsStore
	MQTTClient *floorplan.MQTTClient
	Publisher  *floorplan.Publisher

	// CLI options
	ConfigFile   string
	SnapshotFile string
	SVGFile      string
	SVGURL       string
	OutputFile   string
	HttpPort     int
	HttpMode     bool
	MqttMode     bool

	out io.Writer
}

// NewApp creates a new App instance that prints to out
func NewApp(out io.Writer) *App {
	return &App{out: out}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.SnapshotFile = opts.SnapshotFile
	a.SVGFile = opts.SVGFile
	a.SVGURL = opts.SVGURL
	a.OutputFile = opts.OutputFile
	a.HttpPort = opts.HttpPort
	a.HttpMode = opts.HttpMode
	a.MqttMode = opts.MqttMode
}

// loadConfig reads the config file, falling back to defaults when it does
// not exist yet.
func (a *App) loadConfig() (*floorplan.Config, error) {
	if a.ConfigFile == "" {
		return floorplan.DefaultConfig(), nil
	}
	config, err := floorplan.LoadConfig(a.ConfigFile)
	if err != nil {
		if _, statErr := os.Stat(a.ConfigFile); os.IsNotExist(statErr) {
			log.Printf("Warning: %s not found, using defaults", a.ConfigFile)
			return floorplan.DefaultConfig(), nil
		}
		return nil, err
	}
	log.Printf("Loaded config from %s", a.ConfigFile)
	return config, nil
}

// RunInspect decodes an update payload and prints what the visual would bind
func (a *App) RunInspect(path string) error {
	payload, err := floorplan.ParseSnapshotFile(path)
	if err != nil {
		return err
	}

	vm := floorplan.BuildViewModel(payload.Snapshot, nil)
	fmt.Fprintf(a.out, "=== %s ===\n", filepath.Base(path))
	if payload.Snapshot != nil {
		fmt.Fprintf(a.out, "Columns: %d, Rows: %d\n", len(payload.Snapshot.Columns), len(payload.Snapshot.Rows))
	}
	fmt.Fprintf(a.out, "Points: %d\n", len(vm.Points))
	for _, dp := range vm.Points {
		color := dp.Color
		if color == "" {
			color = dp.LayerColor
		}
		fmt.Fprintf(a.out, "  %-20s %s", dp.FieldNumber, color)
		if len(dp.Tooltip) > 0 {
			keys := make([]string, 0, len(dp.Tooltip))
			for k := range dp.Tooltip {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(a.out, " [%s]", strings.Join(keys, ", "))
		}
		fmt.Fprintln(a.out)
	}
	fmt.Fprintf(a.out, "Polygons: %d\n", len(vm.Polygons))
	for _, p := range vm.Polygons {
		fmt.Fprintf(a.out, "  %-20s %s\n", p.Key(), p.ColorValue())
	}
	if payload.Settings != nil {
		fmt.Fprintf(a.out, "Settings: label=%s default=%s opacity=%.2f\n",
			payload.Settings.LabelAttribute(), payload.Settings.DefaultColor(), payload.Settings.Opacity())
	}
	return nil
}

// RunRender binds one snapshot to the floor plan and writes the result
func (a *App) RunRender() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	settings := config.Settings

	var snap *floorplan.Snapshot
	if a.SnapshotFile != "" {
		payload, err := floorplan.ParseSnapshotFile(a.SnapshotFile)
		if err != nil {
			return err
		}
		snap = payload.Snapshot
		if payload.Settings != nil {
			svgText := settings.FloorPlan.SVGText
			settings = *payload.Settings
			if settings.FloorPlan.SVGText == "" {
				settings.FloorPlan.SVGText = svgText
			}
		}
	}

	switch {
	case a.SVGFile != "":
		data, err := os.ReadFile(a.SVGFile)
		if err != nil {
			return fmt.Errorf("reading SVG file: %w", err)
		}
		settings.FloorPlan.SVGText = string(data)
	case a.SVGURL != "":
		ctx, cancel := context.WithTimeout(context.Background(), floorplan.DefaultFetchTimeout)
		defer cancel()
		text, err := floorplan.FetchMarkup(ctx, a.SVGURL)
		if err != nil {
			return err
		}
		settings.FloorPlan.SVGText = text
	}

	visual := floorplan.NewVisual(nil, nil, settings)
	res := visual.Update(snap, settings)
	if res.ImportError != "" {
		log.Printf("Warning: %s", res.ImportError)
	}

	output := a.OutputFile
	if output == "" {
		output = "floorplan.svg"
	}
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() { _ = f.Close() }()

	vm := visual.ViewModel()
	switch strings.ToLower(filepath.Ext(output)) {
	case ".png":
		err = floorplan.NewOverlayRenderer(vm.Polygons, settings).RenderToPNG(f)
	case ".geojson", ".json":
		err = writeGeoJSON(f, floorplan.OverlayFeatureCollection(vm.Polygons, settings.DefaultColor()))
	default:
		err = visual.WriteSVG(f)
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}

	fmt.Fprintf(a.out, "Rendered %d labels (%d colored), %d polygons to %s\n",
		res.Bind.Labeled, res.Bind.Colored, res.Polygons, output)
	return nil
}

// setup wires config, settings store, selection host and visual
func (a *App) setup() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.Config = config
	if a.HttpPort == 0 {
		a.HttpPort = config.HTTP.Port
	}
	if a.SVGURL == "" {
		a.SVGURL = config.SVGURL
	}

	if a.ConfigFile != "" {
		a.Store = floorplan.NewFileSettingsStore(a.ConfigFile)
	}

	if a.MqttMode {
		client, err := floorplan.InitMQTT(config, a.handleUpdate)
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if client == nil {
			return errors.New("MQTT broker not configured (set mqtt.broker or MQTT_BROKER)")
		}
		a.MQTTClient = client
		a.Publisher = floorplan.NewPublisher(client.GetClient(), config.MQTT.PublishPrefix)
	}

	var persister floorplan.SettingsPersister
	if a.Store != nil {
		persister = a.Store
	}
	a.Visual = floorplan.NewVisual(floorplan.NewMQTTHost(a.Publisher), persister, config.Settings)

	if a.SVGURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), floorplan.DefaultFetchTimeout)
		defer cancel()
		text, err := floorplan.FetchMarkup(ctx, a.SVGURL)
		if err != nil {
			log.Printf("Warning: could not fetch floor plan from %s: %v", a.SVGURL, err)
		} else {
			settings := a.Visual.Settings()
			settings.FloorPlan.SVGText = text
			a.Visual.UpdateSettings(settings)
			return nil
		}
	}
	a.Visual.Rerender()
	return nil
}

// handleUpdate renders each decoded MQTT update
func (a *App) handleUpdate(_ []byte, payload *floorplan.UpdatePayload, err error) {
	if err != nil || a.Visual == nil {
		return
	}
	res := a.Visual.Apply(payload)
	log.Printf("[MQTT] rendered update v%d: %d points, %d polygons (%s)",
		res.Version, res.Points, res.Polygons, res.Status)
}

// RunService runs the HTTP and/or MQTT service until interrupted
func (a *App) RunService() error {
	if err := a.setup(); err != nil {
		return err
	}

	var srv *http.Server
	if a.HttpMode {
		e := newHTTPServer(a.Visual, a.SVGURL)
		addr := fmt.Sprintf("0.0.0.0:%d", a.HttpPort)
		srv = &http.Server{Addr: addr, Handler: e, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			log.Printf("[HTTP] Starting server on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
			}
		}()
	}

	a.printServiceInfo()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintln(a.out, "\nShutting down service...")
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("[HTTP] shutdown: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Fprintln(a.out, "Service stopped")
	return nil
}

func (a *App) printServiceInfo() {
	fmt.Fprintln(a.out, "\nService Running")
	fmt.Fprintln(a.out, "===============")

	if a.MQTTClient != nil {
		fmt.Fprintln(a.out, "\nMQTT:")
		fmt.Fprintf(a.out, "  Updates from:   %s\n", a.MQTTClient.UpdateTopic())
		fmt.Fprintf(a.out, "  Selections to:  %s\n", a.Publisher.SelectionTopic())
	}

	if a.HttpMode {
		fmt.Fprintf(a.out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Fprintln(a.out, "  GET  /                  - Viewer")
		fmt.Fprintln(a.out, "  GET  /render.svg        - Bound floor plan")
		fmt.Fprintln(a.out, "  GET  /overlay.svg|.png  - Polygon overlay preview")
		fmt.Fprintln(a.out, "  GET  /overlay.geojson   - Polygon overlay as GeoJSON")
		fmt.Fprintln(a.out, "  POST /api/update        - Host update (JSON, msgpack or zlib)")
		fmt.Fprintln(a.out, "  POST /api/svg           - Import an SVG file")
		fmt.Fprintln(a.out, "  GET  /ws                - Render notifications")
	}

	fmt.Fprintln(a.out, "\nPress Ctrl+C to stop")
}
