package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kwv/planbind/floorplan"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile   string
	InspectFile  string
	RenderOnly   bool
	SnapshotFile string
	SVGFile      string
	SVGURL       string
	OutputFile   string
	HttpMode     bool
	HttpPort     int
	MqttMode     bool
}

// Runner is what run drives; App in production, a recorder in tests
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunInspect(path string) error
	RunRender() error
	RunService() error
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("planbind", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.InspectFile, "inspect", "", "Decode an update payload file, print its view model and exit")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render the bound floor plan once and exit")
	fs.StringVar(&opts.SnapshotFile, "snapshot", "", "Update payload file (JSON, msgpack or zlib) for --render")
	fs.StringVar(&opts.SVGFile, "svg", "", "SVG floor plan file for --render (overrides settings)")
	fs.StringVar(&opts.SVGURL, "svg-url", "", "Fetch the SVG floor plan from this URL")
	fs.StringVar(&opts.OutputFile, "output", "floorplan.svg", "Output file for --render (.svg, .png or .geojson)")
	fs.BoolVar(&opts.HttpMode, "http", true, "Serve the visual over HTTP")
	fs.IntVar(&opts.HttpPort, "http-port", 0, fmt.Sprintf("HTTP server port (default from config, else %d)", floorplan.DefaultHTTPPort))
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Receive updates and publish selections over MQTT")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "planbind version: %s\n", Version)
	app.ApplyOptions(opts)

	if opts.InspectFile != "" {
		return app.RunInspect(opts.InspectFile)
	}
	if opts.RenderOnly {
		return app.RunRender()
	}

	fmt.Fprintln(out, "planbind service starting...")
	return app.RunService()
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp(os.Stdout)); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("Error: %v", err)
	}
}
