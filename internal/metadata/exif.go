package metadata

import (
	"fmt"
	"os"

	"github.com/rwcarlsen/goexif/exif"
)

// exifExtractor pulls camera metadata out of JPEG/TIFF images.
type exifExtractor struct{}

func (e *exifExtractor) Name() string    { return "exif" }
func (e *exifExtractor) Available() bool { return true }

func (e *exifExtractor) Extract(absPath string) (*Typed, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", absPath, err)
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		// Most PNGs and screenshots simply have no EXIF block.
		return nil, fmt.Errorf("decode exif: %w", err)
	}

	var fields []Field
	if tm, err := x.DateTime(); err == nil {
		fields = append(fields, Field{Key: "Taken", Value: tm.Format("2006-01-02 15:04:05")})
	}
	tags := []struct {
		key  string
		name exif.FieldName
	}{
		{"Camera make", exif.Make},
		{"Camera model", exif.Model},
		{"Software", exif.Software},
	}
	for _, tag := range tags {
		if t, err := x.Get(tag.name); err == nil {
			if v, err := t.StringVal(); err == nil && v != "" {
				fields = append(fields, Field{Key: tag.key, Value: v})
			}
		}
	}
	if lat, long, err := x.LatLong(); err == nil {
		fields = append(fields, Field{Key: "GPS", Value: fmt.Sprintf("%.5f, %.5f", lat, long)})
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("no exif fields")
	}
	return &Typed{Kind: "exif", Fields: fields}, nil
}
