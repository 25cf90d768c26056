package hafasmgate

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"transitquery/internal/models"
)

const (
	maxResults       = 12
	geoPosMaxDist    = 20000
	coordinateFactor = 1e6
)

type envelope struct {
	Auth      authBlock    `json:"auth"`
	Client    clientBlock  `json:"client"`
	Formatted bool         `json:"formatted"`
	Lang      string       `json:"lang"`
	SvcReqL   []serviceReq `json:"svcReqL"`
	Ver       string       `json:"ver"`
}

type authBlock struct {
	AID  string `json:"aid"`
	Type string `json:"type"`
}

type clientBlock struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	V    int    `json:"v,omitempty"`
	Name string `json:"name,omitempty"`
}

type serviceReq struct {
	Cfg  *serviceCfg `json:"cfg,omitempty"`
	Meth string      `json:"meth"`
	Req  any         `json:"req"`
}

type serviceCfg struct {
	PolyEnc string `json:"polyEnc"`
}

type serverInfoReq struct {
	GetServerDateTime  bool `json:"getServerDateTime"`
	GetTimeTablePeriod bool `json:"getTimeTablePeriod"`
}

type locRef struct {
	ExtID string `json:"extId,omitempty"`
	Name  string `json:"name,omitempty"`
	State string `json:"state,omitempty"`
	Type  string `json:"type"`
}

type stationBoardReq struct {
	Date         string `json:"date"`
	MaxJny       int    `json:"maxJny"`
	StbFltrEquiv bool   `json:"stbFltrEquiv"`
	StbLoc       locRef `json:"stbLoc"`
	Time         string `json:"time"`
	Type         string `json:"type"`
}

type tripSearchReq struct {
	ArrLocL     []locRef `json:"arrLocL"`
	DepLocL     []locRef `json:"depLocL"`
	GetPasslist bool     `json:"getPasslist"`
	GetPolyline bool     `json:"getPolyline"`
	NumF        int      `json:"numF"`
	OutDate     string   `json:"outDate"`
	OutFrwd     bool     `json:"outFrwd"`
	OutTime     string   `json:"outTime"`
}

type crdRef struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type ringRef struct {
	CCrd    crdRef `json:"cCrd"`
	MaxDist int    `json:"maxDist"`
}

type locGeoPosReq struct {
	GetPOIs  bool    `json:"getPOIs"`
	GetStops bool    `json:"getStops"`
	MaxLoc   int     `json:"maxLoc"`
	Ring     ringRef `json:"ring"`
}

type matchInput struct {
	Field  string `json:"field"`
	Loc    locRef `json:"loc"`
	MaxLoc int    `json:"maxLoc"`
}

type locMatchReq struct {
	Input matchInput `json:"input"`
}

func formatDate(t time.Time) string {
	return t.Format("20060102")
}

func formatTime(t time.Time) string {
	return t.Format("150405")
}

func stationBoardRequest(stationID string, at time.Time, mode models.DepartureMode) serviceReq {
	boardType := "DEP"
	if mode == models.QueryArrival {
		boardType = "ARR"
	}
	return serviceReq{
		Cfg:  &serviceCfg{PolyEnc: "GPA"},
		Meth: "StationBoard",
		Req: stationBoardReq{
			Date:         formatDate(at),
			MaxJny:       maxResults,
			StbFltrEquiv: true,
			StbLoc:       locRef{ExtID: stationID, State: "F", Type: "S"},
			Time:         formatTime(at),
			Type:         boardType,
		},
	}
}

func tripSearchRequest(fromID, toID string, at time.Time, mode models.DateTimeMode) serviceReq {
	return serviceReq{
		Cfg:  &serviceCfg{PolyEnc: "GPA"},
		Meth: "TripSearch",
		Req: tripSearchReq{
			ArrLocL:     []locRef{{ExtID: toID, Type: "S"}},
			DepLocL:     []locRef{{ExtID: fromID, Type: "S"}},
			GetPasslist: false,
			GetPolyline: true,
			NumF:        maxResults,
			OutDate:     formatDate(at),
			OutFrwd:     mode != models.ArriveBy,
			OutTime:     formatTime(at),
		},
	}
}

func locationRequest(req models.LocationRequest) serviceReq {
	if req.HasCoordinate() {
		return serviceReq{
			Meth: "LocGeoPos",
			Req: locGeoPosReq{
				GetPOIs:  false,
				GetStops: true,
				MaxLoc:   maxResults,
				Ring: ringRef{
					CCrd: crdRef{
						X: int(math.Round(req.Longitude * coordinateFactor)),
						Y: int(math.Round(req.Latitude * coordinateFactor)),
					},
					MaxDist: geoPosMaxDist,
				},
			},
		}
	}
	return serviceReq{
		Meth: "LocMatch",
		Req: locMatchReq{
			Input: matchInput{
				Field:  "S",
				Loc:    locRef{Name: req.Name, Type: "S"},
				MaxLoc: maxResults,
			},
		},
	}
}

// encode wraps svc in the request envelope, preceded by a ServerInfo request.
func (b *Backend) encode(svc serviceReq) ([]byte, error) {
	env := envelope{
		Auth: authBlock{AID: b.settings.AID, Type: "AID"},
		Client: clientBlock{
			ID:   b.settings.ClientID,
			Type: b.settings.ClientType,
			V:    b.settings.ClientVersion,
			Name: b.settings.ClientName,
		},
		Formatted: false,
		Lang:      "eng",
		SvcReqL: []serviceReq{
			{Meth: "ServerInfo", Req: serverInfoReq{GetServerDateTime: true, GetTimeTablePeriod: false}},
			svc,
		},
		Ver: b.settings.Version,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", svc.Meth, err)
	}
	return body, nil
}

// requestURL returns the endpoint with the integrity parameters for body.
func (b *Backend) requestURL(body []byte) string {
	u := *b.compiled.endpoint
	q := u.Query()
	if len(b.compiled.micMacSalt) > 0 {
		mic := md5Hex(body)
		q.Set("mic", mic)
		q.Set("mac", md5Hex([]byte(mic), b.compiled.micMacSalt))
	}
	if len(b.compiled.checksumSalt) > 0 {
		q.Set("checksum", md5Hex(body, b.compiled.checksumSalt))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func md5Hex(parts ...[]byte) string {
	h := md5.New()
	for _, p := range parts {
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
