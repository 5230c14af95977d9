package tiling

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"github.com/janelia-flyem/clump/dvid"
)

const metadataVersion = 1

// Metadata describes a tiled raster dataset.
type Metadata struct {
	Size     dvid.Point2d
	TileSize dvid.Point2d
	Type     dvid.DataType

	// NoData is the encoded no-data sentinel, or nil if all pixels are valid.
	NoData []byte

	// Thematic is true if pixel values are categories, e.g. clump labels, rather
	// than measurements.
	Thematic bool

	Compression dvid.Compression

	// Stats is set once statistics have been computed over the whole dataset.
	Stats *Stats
}

// Validate checks the metadata describes a usable dataset.
func (m *Metadata) Validate() error {
	if m.Size[0] <= 0 || m.Size[1] <= 0 {
		return fmt.Errorf("dataset size must be positive, got %s", m.Size)
	}
	if m.TileSize[0] <= 0 || m.TileSize[1] <= 0 {
		return fmt.Errorf("tile size must be positive, got %s", m.TileSize)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("unknown data type %d", m.Type)
	}
	if m.NoData != nil && int32(len(m.NoData)) != dvid.DataTypeBytes(m.Type) {
		return fmt.Errorf("no-data sentinel has %d bytes, %s requires %d", len(m.NoData), m.Type, dvid.DataTypeBytes(m.Type))
	}
	return nil
}

// NumTiles returns the number of tile columns and rows.
func (m *Metadata) NumTiles() dvid.Point2d {
	return dvid.Point2d{
		(m.Size[0] + m.TileSize[0] - 1) / m.TileSize[0],
		(m.Size[1] + m.TileSize[1] - 1) / m.TileSize[1],
	}
}

// NoDataValue returns the no-data sentinel as a number, if one is set.
func (m *Metadata) NoDataValue() (float64, bool) {
	if m.NoData == nil {
		return 0, false
	}
	return m.Type.Float64(m.NoData), true
}

func (m *Metadata) String() string {
	s := fmt.Sprintf("%s raster %s in %s tiles (%s), %s compression", m.Type, m.Size, m.TileSize,
		m.NumTiles(), m.Compression)
	if v, ok := m.NoDataValue(); ok {
		s += fmt.Sprintf(", no-data %g", v)
	}
	if m.Thematic {
		s += ", thematic"
	}
	return s
}

// MarshalMsg implements msgp.Marshaler
func (m *Metadata) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, m.Msgsize())
	o = msgp.AppendMapHeader(o, 8)
	o = msgp.AppendString(o, "version")
	o = msgp.AppendInt(o, metadataVersion)
	o = msgp.AppendString(o, "size")
	o = appendPoint(o, m.Size)
	o = msgp.AppendString(o, "tilesize")
	o = appendPoint(o, m.TileSize)
	o = msgp.AppendString(o, "type")
	o = msgp.AppendUint8(o, uint8(m.Type))
	o = msgp.AppendString(o, "nodata")
	if m.NoData == nil {
		o = msgp.AppendNil(o)
	} else {
		o = msgp.AppendBytes(o, m.NoData)
	}
	o = msgp.AppendString(o, "thematic")
	o = msgp.AppendBool(o, m.Thematic)
	o = msgp.AppendString(o, "compression")
	o = msgp.AppendUint8(o, uint8(m.Compression))
	o = msgp.AppendString(o, "stats")
	if m.Stats == nil {
		o = msgp.AppendNil(o)
	} else {
		o = m.Stats.appendMsg(o)
	}
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (m *Metadata) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var sz uint32
	sz, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return
	}
	*m = Metadata{}
	for ; sz > 0; sz-- {
		var field string
		field, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return
		}
		switch field {
		case "version":
			var v int
			if v, bts, err = msgp.ReadIntBytes(bts); err == nil && v > metadataVersion {
				err = fmt.Errorf("dataset metadata version %d is newer than supported %d", v, metadataVersion)
			}
		case "size":
			m.Size, bts, err = readPoint(bts)
		case "tilesize":
			m.TileSize, bts, err = readPoint(bts)
		case "type":
			var t uint8
			t, bts, err = msgp.ReadUint8Bytes(bts)
			m.Type = dvid.DataType(t)
		case "nodata":
			if msgp.IsNil(bts) {
				bts, err = msgp.ReadNilBytes(bts)
			} else {
				m.NoData, bts, err = msgp.ReadBytesBytes(bts, nil)
			}
		case "thematic":
			m.Thematic, bts, err = msgp.ReadBoolBytes(bts)
		case "compression":
			var c uint8
			c, bts, err = msgp.ReadUint8Bytes(bts)
			m.Compression = dvid.Compression(c)
		case "stats":
			if msgp.IsNil(bts) {
				bts, err = msgp.ReadNilBytes(bts)
			} else {
				m.Stats = new(Stats)
				bts, err = m.Stats.readMsg(bts)
			}
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return
		}
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the encoded size.
func (m *Metadata) Msgsize() int {
	s := msgp.MapHeaderSize + 8*(msgp.StringPrefixSize+12) + msgp.IntSize +
		2*pointSize + 3*msgp.Uint8Size + msgp.BoolSize + msgp.BytesPrefixSize + len(m.NoData)
	if m.Stats != nil {
		s += statsSize
	} else {
		s += msgp.NilSize
	}
	return s
}

const pointSize = msgp.ArrayHeaderSize + 2*msgp.Int32Size

func appendPoint(b []byte, p dvid.Point2d) []byte {
	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendInt32(b, p[0])
	return msgp.AppendInt32(b, p[1])
}

func readPoint(bts []byte) (p dvid.Point2d, o []byte, err error) {
	var sz uint32
	if sz, bts, err = msgp.ReadArrayHeaderBytes(bts); err != nil {
		return
	}
	if sz != 2 {
		err = msgp.ArrayError{Wanted: 2, Got: sz}
		return
	}
	if p[0], bts, err = msgp.ReadInt32Bytes(bts); err != nil {
		return
	}
	p[1], o, err = msgp.ReadInt32Bytes(bts)
	return
}
