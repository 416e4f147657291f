// README: GPX and FIT readers producing reference routes and position samples for replays.
package replay

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"

	"stride/internal/geo"
	"stride/internal/modules/session"
)

type gpxFile struct {
	XMLName xml.Name   `xml:"gpx"`
	Tracks  []gpxTrack `xml:"trk"`
	Routes  []gpxRoute `xml:"rte"`
}

type gpxTrack struct {
	Name     string       `xml:"name"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxRoute struct {
	Name   string     `xml:"name"`
	Points []gpxPoint `xml:"rtept"`
}

type gpxPoint struct {
	Lat  float64   `xml:"lat,attr"`
	Lon  float64   `xml:"lon,attr"`
	Time time.Time `xml:"time,omitempty"`
}

// Track is a named sequence of timestamped fixes.
type Track struct {
	Name    string
	Samples []session.Sample
}

// Points drops the timestamps.
func (t Track) Points() []geo.Point {
	out := make([]geo.Point, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = s.Point
	}
	return out
}

// ReadGPX flattens every track segment, then every route, into one Track.
func ReadGPX(r io.Reader) (Track, error) {
	var doc gpxFile
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return Track{}, fmt.Errorf("failed to parse GPX: %w", err)
	}

	var t Track
	for _, trk := range doc.Tracks {
		if t.Name == "" {
			t.Name = trk.Name
		}
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				t.Samples = append(t.Samples, p.sample())
			}
		}
	}
	for _, rte := range doc.Routes {
		if t.Name == "" {
			t.Name = rte.Name
		}
		for _, p := range rte.Points {
			t.Samples = append(t.Samples, p.sample())
		}
	}
	if len(t.Samples) == 0 {
		return Track{}, fmt.Errorf("GPX contains no points")
	}
	return t, nil
}

func (p gpxPoint) sample() session.Sample {
	return session.Sample{Point: geo.Point{Lat: p.Lat, Lng: p.Lon}, At: p.Time}
}

// ReadFile picks the reader from the file extension (.gpx or .fit).
func ReadFile(name string) (Track, error) {
	f, err := os.Open(name)
	if err != nil {
		return Track{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	switch ext := extension(name); ext {
	case ".gpx":
		return ReadGPX(f)
	case ".fit":
		return ReadFIT(f)
	default:
		return Track{}, fmt.Errorf("unsupported track format %q", ext)
	}
}
