package soilmap

import (
	"encoding/binary"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// GeoPackage binary header flag bits.
const (
	flagLittleEndian = 0x01
	flagEnvelopeMask = 0x0e
	flagEmpty        = 0x10
	flagExtended     = 0x20
)

// DecodeGeometry decodes a GeoPackage geometry blob (GP header followed by
// standard WKB) into a 2D multipolygon. Empty geometries decode to nil.
func DecodeGeometry(b []byte) (*geom.MultiPolygon, error) {
	if len(b) < 8 || b[0] != 'G' || b[1] != 'P' {
		return nil, eris.New("soilmap: not a GeoPackage geometry")
	}
	flags := b[3]
	if flags&flagExtended != 0 {
		return nil, eris.New("soilmap: extended GeoPackage geometry not supported")
	}
	if flags&flagEmpty != 0 {
		return nil, nil
	}

	var envelope int
	switch (flags & flagEnvelopeMask) >> 1 {
	case 0:
	case 1:
		envelope = 32
	case 2, 3:
		envelope = 48
	case 4:
		envelope = 64
	default:
		return nil, eris.Errorf("soilmap: invalid envelope indicator in flags %#x", flags)
	}
	off := 8 + envelope
	if len(b) < off {
		return nil, eris.New("soilmap: truncated GeoPackage geometry")
	}

	g, err := wkb.Unmarshal(b[off:])
	if err != nil {
		return nil, eris.Wrap(err, "soilmap: decode WKB")
	}
	return toMultiPolygon(g)
}

// EncodeGeometry writes g as a GeoPackage geometry blob without envelope.
func EncodeGeometry(g geom.T, srid int32) ([]byte, error) {
	body, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "soilmap: encode WKB")
	}
	header := make([]byte, 8, 8+len(body))
	header[0], header[1] = 'G', 'P'
	header[3] = flagLittleEndian
	binary.LittleEndian.PutUint32(header[4:], uint32(srid))
	return append(header, body...), nil
}

func toMultiPolygon(g geom.T) (*geom.MultiPolygon, error) {
	switch t := g.(type) {
	case *geom.MultiPolygon:
		return forceXY(t), nil
	case *geom.Polygon:
		mp := geom.NewMultiPolygonFlat(t.Layout(), t.FlatCoords(), [][]int{t.Ends()})
		return forceXY(mp), nil
	default:
		return nil, eris.Errorf("soilmap: unexpected geometry type %T", g)
	}
}

// forceXY drops Z and M ordinates.
func forceXY(mp *geom.MultiPolygon) *geom.MultiPolygon {
	stride := mp.Stride()
	if stride == 2 {
		return mp
	}
	src := mp.FlatCoords()
	flat := make([]float64, 0, len(src)/stride*2)
	for i := 0; i+1 < len(src); i += stride {
		flat = append(flat, src[i], src[i+1])
	}
	endss := make([][]int, 0, len(mp.Endss()))
	for _, ends := range mp.Endss() {
		e := make([]int, len(ends))
		for i, v := range ends {
			e[i] = v / stride * 2
		}
		endss = append(endss, e)
	}
	return geom.NewMultiPolygonFlat(geom.XY, flat, endss)
}
