package media

import (
	"context"
	"errors"
	"sync"

	"github.com/rudransh-shrivastava/peer-chat/internal/geo"
)

var ErrPositionUnavailable = errors.New("position unavailable")

// StaticGeolocator reports a position set from configuration or by the
// user. It has no fix until one is set.
type StaticGeolocator struct {
	mu  sync.Mutex
	pos *geo.Coordinates
}

func NewStaticGeolocator(pos *geo.Coordinates) *StaticGeolocator {
	g := &StaticGeolocator{}
	if pos != nil {
		g.Set(*pos)
	}
	return g
}

func (g *StaticGeolocator) Set(pos geo.Coordinates) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pos = &pos
}

func (g *StaticGeolocator) CurrentPosition(ctx context.Context) (geo.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return geo.Coordinates{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pos == nil {
		return geo.Coordinates{}, ErrPositionUnavailable
	}
	return *g.pos, nil
}
