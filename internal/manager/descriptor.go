package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"

	"transitquery/internal/backend"
	"transitquery/internal/backend/hafasmgate"
	"transitquery/internal/backend/hafasquery"
	"transitquery/internal/backend/navitia"
	"transitquery/internal/logging"
	"transitquery/internal/utils"
)

// Backend types a descriptor can name.
const (
	TypeNavitia    = "navitia"
	TypeHafasMgate = "hafas_mgate"
	TypeHafasQuery = "hafas_query"
)

var ErrUnknownBackendType = errors.New("unknown backend type")

// Descriptor is one network configuration document. The file base name is
// the backend id.
type Descriptor struct {
	ID      string          `json:"-" validate:"required"`
	Type    string          `json:"type" validate:"required,oneof=navitia hafas_mgate hafas_query"`
	Options json.RawMessage `json:"options"`
	Filter  Filter          `json:"filter"`
}

type Filter struct {
	// Geo is a polygon of [lat, lon] pairs.
	Geo [][]float64 `json:"geo" validate:"omitempty,min=3,dive,len=2"`
}

// commonOptions are understood for every backend type, next to the
// provider specific settings.
type commonOptions struct {
	RequestsPerSecond float64 `json:"requestsPerSecond" validate:"gte=0"`
}

// configurable is what the manager needs beyond backend.Backend to apply a
// descriptor.
type configurable interface {
	backend.Backend
	SetRateLimit(rps float64)
	SetGeoFilter(p utils.Polygon)
}

var validate = validator.New()

// ParseDescriptor decodes and validates a descriptor document.
func ParseDescriptor(id string, data []byte) (Descriptor, error) {
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return Descriptor{}, fmt.Errorf("failed to parse network %q: %w", id, err)
	}
	d.ID = id
	if err := validate.Struct(d); err != nil {
		return Descriptor{}, fmt.Errorf("invalid network %q: %w", id, err)
	}
	return d, nil
}

// Polygon converts the geo filter into a polygon. It is empty when no
// filter is configured.
func (d Descriptor) Polygon() utils.Polygon {
	if len(d.Filter.Geo) == 0 {
		return nil
	}
	poly := make(utils.Polygon, 0, len(d.Filter.Geo))
	for _, pt := range d.Filter.Geo {
		poly = append(poly, utils.Point{Lat: pt[0], Lon: pt[1]})
	}
	return poly
}

// loadDescriptors reads every *.json document in dir of fsys. Documents
// that fail to parse are logged and skipped.
func loadDescriptors(fsys fs.FS, dir string, logger *slog.Logger) ([]Descriptor, error) {
	matches, err := fs.Glob(fsys, path.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list networks in %s: %w", dir, err)
	}

	descriptors := make([]Descriptor, 0, len(matches))
	for _, name := range matches {
		id := strings.TrimSuffix(path.Base(name), ".json")
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			logging.LogError(logger, "failed to read network configuration", err, slog.String("file", name))
			continue
		}
		d, err := ParseDescriptor(id, data)
		if err != nil {
			logging.LogError(logger, "failed to load network configuration", err, slog.String("file", name))
			continue
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// newBackend builds the backend a descriptor describes and applies its
// common options and geo filter.
func newBackend(d Descriptor, deps backend.Deps) (configurable, error) {
	var (
		b   configurable
		err error
	)
	switch d.Type {
	case TypeNavitia:
		var s navitia.Settings
		if err := decodeOptions(d, &s); err != nil {
			return nil, err
		}
		b, err = navitia.New(d.ID, s, deps)
	case TypeHafasMgate:
		var s hafasmgate.Settings
		if err := decodeOptions(d, &s); err != nil {
			return nil, err
		}
		b, err = hafasmgate.New(d.ID, s, deps)
	case TypeHafasQuery:
		var s hafasquery.Settings
		if err := decodeOptions(d, &s); err != nil {
			return nil, err
		}
		b, err = hafasquery.New(d.ID, s, deps)
	default:
		return nil, fmt.Errorf("network %q: %w: %q", d.ID, ErrUnknownBackendType, d.Type)
	}
	if err != nil {
		return nil, err
	}

	var common commonOptions
	if err := decodeOptions(d, &common); err != nil {
		return nil, err
	}
	if err := validate.Struct(common); err != nil {
		return nil, fmt.Errorf("invalid options for network %q: %w", d.ID, err)
	}
	b.SetRateLimit(common.RequestsPerSecond)
	b.SetGeoFilter(d.Polygon())
	return b, nil
}

func decodeOptions(d Descriptor, v any) error {
	if len(d.Options) == 0 {
		return nil
	}
	if err := json.Unmarshal(d.Options, v); err != nil {
		return fmt.Errorf("invalid options for network %q: %w", d.ID, err)
	}
	return nil
}
