package replay

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/tormoder/fit"

	"stride/internal/geo"
	"stride/internal/modules/session"
)

// ReadFIT extracts positioned records from a FIT activity file. Records without
// a GPS fix are skipped.
func ReadFIT(r io.Reader) (Track, error) {
	decoded, err := fit.Decode(r)
	if err != nil {
		return Track{}, fmt.Errorf("decode FIT: %w", err)
	}
	activity, err := decoded.Activity()
	if err != nil {
		return Track{}, fmt.Errorf("FIT file is not an activity: %w", err)
	}

	var t Track
	for _, rec := range activity.Records {
		if rec == nil || rec.PositionLat.Invalid() || rec.PositionLong.Invalid() {
			continue
		}
		t.Samples = append(t.Samples, session.Sample{
			Point: geo.Point{Lat: rec.PositionLat.Degrees(), Lng: rec.PositionLong.Degrees()},
			At:    rec.Timestamp,
		})
	}
	if len(t.Samples) == 0 {
		return Track{}, fmt.Errorf("FIT activity has no positioned records")
	}
	return t, nil
}

func extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
