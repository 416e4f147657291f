// README: Offline tools; replay a recorded track against a route, or snap points into a path.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"stride/internal/config"
	"stride/internal/geo"
	"stride/internal/modules/path"
	"stride/internal/modules/session"
	"stride/internal/replay"
	"stride/internal/routing"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "stride",
		Short:         "Route construction and run replay tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newReplayCmd())
	root.AddCommand(newSnapCmd())
	return root
}

func newReplayCmd() *cobra.Command {
	var routeFile, trackFile string
	var threshold float64
	var countdown int

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a GPX/FIT track against a GPX route and print the activity record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if routeFile == "" || trackFile == "" {
				return fmt.Errorf("--route and --track are required")
			}
			routeTrack, err := replay.ReadFile(routeFile)
			if err != nil {
				return fmt.Errorf("read route: %w", err)
			}
			track, err := replay.ReadFile(trackFile)
			if err != nil {
				return fmt.Errorf("read track: %w", err)
			}

			res, err := replay.Run(path.FromPolyline(routeTrack.Points()), track, replay.Options{
				RouteName:      routeTrack.Name,
				Countdown:      countdown,
				OffRouteMeters: threshold,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rec := res.Record
			_, _ = fmt.Fprintf(out, "route:     %s\n", rec.RouteName)
			_, _ = fmt.Fprintf(out, "distance:  %.2f km\n", rec.DistanceKm)
			_, _ = fmt.Fprintf(out, "time:      %s\n", session.FormatElapsed(rec.ElapsedSeconds))
			_, _ = fmt.Fprintf(out, "pace:      %s /km\n", rec.AveragePace)
			_, _ = fmt.Fprintf(out, "off-route: %d\n", res.Alerts)
			_, _ = fmt.Fprintf(out, "ignored:   %d\n", res.Discarded)
			return nil
		},
	}
	cmd.Flags().StringVar(&routeFile, "route", "", "reference route (.gpx)")
	cmd.Flags().StringVar(&trackFile, "track", "", "recorded track (.gpx or .fit)")
	cmd.Flags().Float64Var(&threshold, "threshold", session.DefaultOffRouteMeters, "off-route threshold in metres")
	cmd.Flags().IntVar(&countdown, "countdown", 0, "countdown seconds before the run starts")
	return cmd
}

func newSnapCmd() *cobra.Command {
	var points []string
	var provider string

	cmd := &cobra.Command{
		Use:   "snap",
		Short: "Build a path through the given points and print it as GeoJSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(points) == 0 {
				return fmt.Errorf("at least one --point is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if provider != "" {
				cfg.Routing.Provider = provider
			}
			router, err := routing.NewRouter(cfg.Routing)
			if err != nil {
				return err
			}
			b := path.NewBuilder(routing.NewGateway(router, cfg.Routing), cfg.Path.HistoryDepth)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			for _, raw := range points {
				p, err := parsePoint(raw)
				if err != nil {
					return err
				}
				if err := b.AddPoint(ctx, p); err != nil {
					return err
				}
			}

			p := b.Path()
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "distance:  %.2f km\n", p.TotalDistanceKm())
			_, _ = fmt.Fprintf(out, "elevation: %d m\n", p.EstimatedElevationGainM())
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(p.FeatureCollection())
		},
	}
	cmd.Flags().StringArrayVar(&points, "point", nil, "anchor as lat,lng (repeatable)")
	cmd.Flags().StringVar(&provider, "provider", "", "routing provider: osrm|google|none (default from config)")
	return cmd
}

func parsePoint(s string) (geo.Point, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Point{}, fmt.Errorf("invalid point %q: want lat,lng", s)
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid latitude in %q: %w", s, err)
	}
	ln, err := strconv.ParseFloat(strings.TrimSpace(lng), 64)
	if err != nil {
		return geo.Point{}, fmt.Errorf("invalid longitude in %q: %w", s, err)
	}
	return geo.Point{Lat: la, Lng: ln}, nil
}
