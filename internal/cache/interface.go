package cache

import "fmt"

// TileKey identifies one rendered tile. Every field takes part in the key.
type TileKey struct {
	Layer string
	Style string
	Z     int
	X     int
	Y     int
}

// String is the composite key used by the remote backends.
func (k TileKey) String() string {
	return fmt.Sprintf("%s/%s/%d/%d/%d", k.Layer, k.Style, k.Z, k.X, k.Y)
}

// Cache stores encoded tiles. Backends that can fail log the failure and
// behave as a miss, so a broken cache never fails a tile request.
type Cache interface {
	Get(key TileKey) ([]byte, bool)
	Set(key TileKey, value []byte)
	Has(key TileKey) bool // Check if tile exists without reading it (lightweight check)
	Clear()
}
