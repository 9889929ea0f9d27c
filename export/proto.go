package export

import (
	"io"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/png2mesh/mesh"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	ErrTypeInvalidProto = "export_invalid_proto"
)

// Field numbers of the mesh encoding:
//
//	message Mesh {
//	  repeated Cell cells = 1;
//	  int32 shape = 2;
//	}
//
//	message Cell {
//	  int32 tree = 1;
//	  int32 level = 2;
//	  uint64 path = 3;
//	  int32 rank = 4;
//	}
const (
	meshCellsField protowire.Number = 1
	meshShapeField protowire.Number = 2

	cellTreeField  protowire.Number = 1
	cellLevelField protowire.Number = 2
	cellPathField  protowire.Number = 3
	cellRankField  protowire.Number = 4
)

// MarshalProto encodes the cells of a forest of the given shape.
func MarshalProto(shape mesh.Shape, cells []mesh.Cell) []byte {
	var b []byte
	b = protowire.AppendTag(b, meshShapeField, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(shape))

	var cell []byte
	for _, c := range cells {
		cell = cell[:0]
		cell = protowire.AppendTag(cell, cellTreeField, protowire.VarintType)
		cell = protowire.AppendVarint(cell, uint64(c.Key.Tree))
		cell = protowire.AppendTag(cell, cellLevelField, protowire.VarintType)
		cell = protowire.AppendVarint(cell, uint64(c.Key.Level))
		cell = protowire.AppendTag(cell, cellPathField, protowire.VarintType)
		cell = protowire.AppendVarint(cell, c.Key.Path)
		cell = protowire.AppendTag(cell, cellRankField, protowire.VarintType)
		cell = protowire.AppendVarint(cell, uint64(c.Rank))

		b = protowire.AppendTag(b, meshCellsField, protowire.BytesType)
		b = protowire.AppendBytes(b, cell)
	}
	return b
}

// WriteProto writes the protobuf encoding of the cells.
func WriteProto(w io.Writer, shape mesh.Shape, cells []mesh.Cell) error {
	if _, err := w.Write(MarshalProto(shape, cells)); err != nil {
		return errors.New("writing protobuf mesh failed").Wrap(err)
	}
	return nil
}

// ReadProto reads a mesh written by WriteProto.
func ReadProto(r io.Reader) (mesh.Shape, []mesh.Cell, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, nil, errors.New("reading protobuf mesh failed").Wrap(err)
	}
	return UnmarshalProto(b)
}

// UnmarshalProto decodes a mesh encoded by MarshalProto. Unknown fields are
// skipped.
func UnmarshalProto(b []byte) (mesh.Shape, []mesh.Cell, error) {
	var shape mesh.Shape
	var keys []mesh.Key
	var ranks []int

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, protoError("invalid mesh tag", n)
		}
		b = b[n:]

		switch {
		case num == meshShapeField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, nil, protoError("invalid mesh shape", n)
			}
			shape = mesh.Shape(v)
			b = b[n:]

		case num == meshCellsField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, nil, protoError("invalid mesh cell", n)
			}
			k, rank, err := unmarshalCell(v)
			if err != nil {
				return 0, nil, err
			}
			keys = append(keys, k)
			ranks = append(ranks, rank)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, nil, protoError("invalid mesh field", n)
			}
			b = b[n:]
		}
	}

	if !shape.Valid() {
		return 0, nil, errors.New("unknown mesh shape").
			WithType(ErrTypeInvalidProto).
			WithTag("shape", int(shape))
	}

	cells := make([]mesh.Cell, len(keys))
	for i, k := range keys {
		if k.Tree >= shape.NumTrees() {
			return 0, nil, errors.New("cell tree out of range").
				WithType(ErrTypeInvalidProto).
				WithTag("cell", k.String()).
				WithTag("shape", shape.String())
		}
		cells[i] = shape.Cell(k, ranks[i])
	}
	return shape, cells, nil
}

func unmarshalCell(b []byte) (mesh.Key, int, error) {
	var k mesh.Key
	var rank int

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return k, 0, protoError("invalid cell tag", n)
		}
		b = b[n:]

		if typ != protowire.VarintType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return k, 0, protoError("invalid cell field", n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return k, 0, protoError("invalid cell value", n)
		}
		b = b[n:]

		switch num {
		case cellTreeField:
			k.Tree = int(v)
		case cellLevelField:
			k.Level = int(v)
		case cellPathField:
			k.Path = v
		case cellRankField:
			rank = int(v)
		}
	}

	if k.Tree < 0 || k.Level < 0 || k.Level > mesh.MaxLevel || k.Path>>(2*k.Level) != 0 {
		return k, 0, errors.New("invalid cell key").
			WithType(ErrTypeInvalidProto).
			WithTag("cell", k.String())
	}
	return k, rank, nil
}

func protoError(msg string, n int) error {
	return errors.New(msg).
		WithType(ErrTypeInvalidProto).
		Wrap(protowire.ParseError(n))
}
