package reply

import "transitquery/internal/models"

// LocationReply collects location search results in the order backends
// deliver them.
type LocationReply struct {
	Reply[models.Location]
	request models.LocationRequest
}

func NewLocationReply(req models.LocationRequest) *LocationReply {
	r := &LocationReply{request: req}
	r.init(nil)
	return r
}

func (r *LocationReply) Request() models.LocationRequest {
	return r.request
}
