package hafasmgate

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"transitquery/internal/models"
)

// Settings are the provider options of an mgate descriptor.
type Settings struct {
	Endpoint      string `json:"endpoint"`
	AID           string `json:"aid"`
	ClientID      string `json:"clientId"`
	ClientType    string `json:"clientType"`
	ClientVersion int    `json:"clientVersion"`
	ClientName    string `json:"clientName"`
	Version       string `json:"version"`
	// MicMacSalt and ChecksumSalt are hex encoded. Either, both or neither
	// may be set.
	MicMacSalt   string `json:"micMacSalt"`
	ChecksumSalt string `json:"checksumSalt"`
	// LineModeMap maps product class codes to line mode names.
	LineModeMap            map[string]string `json:"lineModeMap"`
	LocationIdentifierType string            `json:"locationIdentifierType"`
	// TimeZone is the IANA zone wall-clock times in responses are in.
	TimeZone string `json:"timeZone"`
}

// defaultLineModes is used when a descriptor carries no lineModeMap.
var defaultLineModes = map[int]models.LineMode{
	4:    models.ModeTrain,
	64:   models.ModeRapidTransit,
	256:  models.ModeMetro,
	512:  models.ModeBus,
	1024: models.ModeTramway,
}

type compiledSettings struct {
	endpoint     *url.URL
	micMacSalt   []byte
	checksumSalt []byte
	lineModes    map[int]models.LineMode
	location     *time.Location
	zoneKnown    bool
	idType       string
}

func (s Settings) compile(backendID string) (compiledSettings, error) {
	var c compiledSettings

	if s.Endpoint == "" {
		return c, fmt.Errorf("endpoint is required")
	}
	u, err := url.Parse(s.Endpoint)
	if err != nil {
		return c, fmt.Errorf("invalid endpoint %q: %w", s.Endpoint, err)
	}
	c.endpoint = u

	if c.micMacSalt, err = hex.DecodeString(s.MicMacSalt); err != nil {
		return c, fmt.Errorf("invalid micMacSalt: %w", err)
	}
	if c.checksumSalt, err = hex.DecodeString(s.ChecksumSalt); err != nil {
		return c, fmt.Errorf("invalid checksumSalt: %w", err)
	}

	c.lineModes = defaultLineModes
	if len(s.LineModeMap) > 0 {
		c.lineModes = make(map[int]models.LineMode, len(s.LineModeMap))
		for cls, name := range s.LineModeMap {
			code, err := strconv.Atoi(strings.TrimSpace(cls))
			if err != nil {
				return c, fmt.Errorf("invalid product class %q in lineModeMap: %w", cls, err)
			}
			mode, ok := models.ParseLineMode(name)
			if !ok {
				return c, fmt.Errorf("unknown line mode %q for product class %d", name, code)
			}
			c.lineModes[code] = mode
		}
	}

	c.location = time.UTC
	if s.TimeZone != "" {
		if c.location, err = time.LoadLocation(s.TimeZone); err != nil {
			return c, fmt.Errorf("invalid timeZone: %w", err)
		}
		c.zoneKnown = true
	}

	c.idType = s.LocationIdentifierType
	if c.idType == "" {
		c.idType = backendID
	}
	return c, nil
}
