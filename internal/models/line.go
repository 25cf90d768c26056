package models

import (
	"fmt"
	"strings"
)

// LineMode is the transport mode of a line.
type LineMode int

const (
	ModeUnknown LineMode = iota
	ModeAir
	ModeBoat
	ModeBus
	ModeBusRapidTransit
	ModeCoach
	ModeFerry
	ModeFunicular
	ModeLocalTrain
	ModeLongDistanceTrain
	ModeMetro
	ModeRailShuttle
	ModeRapidTransit
	ModeShuttle
	ModeTaxi
	ModeTrain
	ModeTramway
)

var lineModeNames = []string{
	"Unknown",
	"Air",
	"Boat",
	"Bus",
	"BusRapidTransit",
	"Coach",
	"Ferry",
	"Funicular",
	"LocalTrain",
	"LongDistanceTrain",
	"Metro",
	"RailShuttle",
	"RapidTransit",
	"Shuttle",
	"Taxi",
	"Train",
	"Tramway",
}

func (m LineMode) String() string {
	if m < 0 || int(m) >= len(lineModeNames) {
		return lineModeNames[ModeUnknown]
	}
	return lineModeNames[m]
}

// ParseLineMode maps a mode name such as "RapidTransit" to its LineMode.
func ParseLineMode(name string) (LineMode, bool) {
	for i, n := range lineModeNames {
		if n == name {
			return LineMode(i), true
		}
	}
	return ModeUnknown, false
}

func (m LineMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *LineMode) UnmarshalText(text []byte) error {
	mode, ok := ParseLineMode(string(text))
	if !ok {
		return fmt.Errorf("unknown line mode %q", string(text))
	}
	*m = mode
	return nil
}

// Line is a public transport line. Colors are "#rrggbb" or empty.
type Line struct {
	Name       string   `json:"name,omitempty"`
	Color      string   `json:"color,omitempty"`
	TextColor  string   `json:"textColor,omitempty"`
	Mode       LineMode `json:"mode"`
	ModeString string   `json:"modeString,omitempty"`
}

// IsSameLine compares lines by name, ignoring case and spaces.
func IsSameLine(a, b Line) bool {
	return normalizeLineName(a.Name) == normalizeLineName(b.Name)
}

// MergeLine fills fields missing in a from b.
func MergeLine(a, b Line) Line {
	l := a
	if l.Name == "" {
		l.Name = b.Name
	}
	if l.Color == "" {
		l.Color = b.Color
	}
	if l.TextColor == "" {
		l.TextColor = b.TextColor
	}
	if l.Mode == ModeUnknown {
		l.Mode = b.Mode
	}
	if l.ModeString == "" {
		l.ModeString = b.ModeString
	}
	return l
}

func normalizeLineName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// ColorFromRGB formats an RGB triple as "#rrggbb".
func ColorFromRGB(r, g, b int) string {
	return fmt.Sprintf("#%02x%02x%02x", clampByte(r), clampByte(g), clampByte(b))
}

// NormalizeColor accepts "rrggbb" or "#rrggbb" and returns "#rrggbb" in
// lower case, or "" if s is not a valid color.
func NormalizeColor(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return ""
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return ""
		}
	}
	return "#" + strings.ToLower(s)
}

func clampByte(v int) int {
	return max(0, min(255, v))
}

// Route is a line heading in a direction.
type Route struct {
	Line      Line   `json:"line"`
	Direction string `json:"direction,omitempty"`
}

// IsSameRoute reports whether a and b are the same line in the same
// direction. An unknown direction matches any direction.
func IsSameRoute(a, b Route) bool {
	if !IsSameLine(a.Line, b.Line) {
		return false
	}
	return a.Direction == "" || b.Direction == "" || strings.EqualFold(a.Direction, b.Direction)
}

// MergeRoute fills fields missing in a from b.
func MergeRoute(a, b Route) Route {
	r := Route{Line: MergeLine(a.Line, b.Line), Direction: a.Direction}
	if r.Direction == "" {
		r.Direction = b.Direction
	}
	return r
}
