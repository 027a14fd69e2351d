package geometry

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// BoundingBox is an inclusive lat/lon rectangle. When West > East the box
// crosses the anti-meridian and covers lon >= West OR lon <= East.
type BoundingBox struct {
	South float64
	West  float64
	North float64
	East  float64
}

func NewBoundingBox(south, west, north, east float64) (BoundingBox, error) {
	b := BoundingBox{South: south, West: west, North: north, East: east}
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

func (b BoundingBox) Validate() error {
	if !(b.South >= -90 && b.South <= 90 && b.North >= -90 && b.North <= 90) {
		return errors.New("latitude must be in [-90,90]")
	}
	if !(b.West >= -180 && b.West <= 180 && b.East >= -180 && b.East <= 180) {
		return errors.New("longitude must be in [-180,180]")
	}
	if b.South > b.North {
		return fmt.Errorf("south %v is north of north %v", b.South, b.North)
	}
	return nil
}

func (b BoundingBox) CrossesAntimeridian() bool {
	return b.West > b.East
}

func (b BoundingBox) Contains(p orb.Point) bool {
	lat, lon := p.Lat(), p.Lon()
	if lat < b.South || lat > b.North {
		return false
	}
	if b.CrossesAntimeridian() {
		return lon >= b.West || lon <= b.East
	}
	return lon >= b.West && lon <= b.East
}

// FromBound converts an orb.Bound. Bounds never wrap.
func FromBound(bound orb.Bound) BoundingBox {
	return BoundingBox{
		South: bound.Min.Lat(),
		West:  bound.Min.Lon(),
		North: bound.Max.Lat(),
		East:  bound.Max.Lon(),
	}
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%v,%v,%v,%v]", b.West, b.South, b.East, b.North)
}
