package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/woozymasta/catchment/internal/geo"
	"github.com/woozymasta/catchment/internal/processor"
	"github.com/woozymasta/catchment/internal/traveltime"

	"github.com/jessevdk/go-flags"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"
)

type Options struct {
	Input   string   `short:"i" long:"in"     description:"Input file (GeoJSON FeatureCollection or raw provider response). Reads from stdin if empty"`
	Output  string   `short:"o" long:"out"    description:"Output file path. Writes to stdout if empty"`
	Format  string   `short:"f" long:"format" description:"Output format" choice:"json" choice:"yaml" default:"json"`
	Origins []string `short:"O" long:"origin" description:"Origin as lat,lng for the farthest point search, one per feature"`
	Raw     bool     `short:"r" long:"raw"    description:"Input is a raw provider response"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	origins := make([]geo.Coordinate, 0, len(opts.Origins))
	for _, s := range opts.Origins {
		c, err := parseOrigin(s)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --origin %q: %v\n", s, err)
			os.Exit(1)
		}
		origins = append(origins, c)
	}

	// Read Input
	var inputData []byte
	var err error

	if opts.Input != "" {
		inputData, err = os.ReadFile(opts.Input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input file: %v\n", err)
			os.Exit(1)
		}
	} else {
		inputData, err = io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading stdin: %v\n", err)
			os.Exit(1)
		}
	}

	summary, err := summarizeInput(inputData, opts.Raw, origins)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	summary.Name = opts.Input

	if summary.Empty {
		fmt.Fprintln(os.Stderr, "Warning: input has no polygon vertices, bounds hold sentinel values")
	}

	// marshal
	var outputData []byte
	if opts.Format == "yaml" {
		outputData, err = yaml.Marshal(summary)
	} else {
		outputData, err = json.MarshalIndent(summary, "", "  ")
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling data: %v\n", err)
		os.Exit(1)
	}

	if opts.Output != "" {
		err = os.WriteFile(opts.Output, outputData, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Summarized %d features to %s (format: %s)\n", summary.Features, opts.Output, opts.Format)
	} else {
		fmt.Println(string(outputData))
	}
}

// summarizeInput decodes a GeoJSON FeatureCollection, or a raw provider response when
// raw is set, and summarizes it. Raw input is bounded on the provider shapes.
func summarizeInput(data []byte, raw bool, origins []geo.Coordinate) (processor.Summary, error) {
	if !raw {
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return processor.Summary{}, fmt.Errorf("decode GeoJSON: %w", err)
		}
		return processor.Summarize(origins, fc), nil
	}

	resp, err := traveltime.DecodeResponse(data)
	if err != nil {
		return processor.Summary{}, fmt.Errorf("decode provider response: %w", err)
	}
	fc, err := traveltime.ToFeatureCollection(resp)
	if err != nil {
		return processor.Summary{}, fmt.Errorf("convert provider response: %w", err)
	}

	summary := processor.Summarize(origins, fc)
	summary.SetBounds(resp.Bounds())
	return summary, nil
}

// parseOrigin reads "lat,lng".
func parseOrigin(s string) (geo.Coordinate, error) {
	latStr, lngStr, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("expected lat,lng")
	}

	lat, err1 := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	lng, err2 := strconv.ParseFloat(strings.TrimSpace(lngStr), 64)
	if err1 != nil || err2 != nil {
		return geo.Coordinate{}, fmt.Errorf("coordinates must be numbers")
	}

	c := geo.Coordinate{Lat: lat, Lon: lng}
	return c, c.Validate()
}
