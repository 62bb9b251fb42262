package formats

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	gomath "math"
	"strconv"
	"strings"
)

// PLY encodings.
const (
	plyASCII        = "ascii"
	plyLittleEndian = "binary_little_endian"
	plyBigEndian    = "binary_big_endian"
)

// plyProperty is one property of a PLY element.
type plyProperty struct {
	Name      string
	Type      string // scalar type, or element type for lists
	IsList    bool
	CountType string
}

// plyElement is an element declaration with its properties.
type plyElement struct {
	Name       string
	Count      int
	Properties []plyProperty
}

// plyHeader is the parsed PLY header.
type plyHeader struct {
	Format   string
	Elements []plyElement
}

// ParsePLY parses a Stanford PLY mesh in ASCII or binary encoding. The
// vertex element must provide x and y (and usually z); faces are read from
// the vertex_indices (or vertex_index) list and fan-triangulated.
func ParsePLY(data []byte) (*Mesh, error) {
	header, body, err := parsePLYHeader(data)
	if err != nil {
		return nil, err
	}

	var src plyValueReader
	switch header.Format {
	case plyASCII:
		src = newPLYASCIIReader(body)
	case plyLittleEndian:
		src = &plyBinaryReader{r: bytes.NewReader(body), order: binary.LittleEndian}
	case plyBigEndian:
		src = &plyBinaryReader{r: bytes.NewReader(body), order: binary.BigEndian}
	default:
		return nil, fmt.Errorf("%w: PLY encoding %q", ErrUnsupportedFormat, header.Format)
	}

	if err := checkPLYCounts(header, len(body)); err != nil {
		return nil, err
	}

	m := &Mesh{}
	for _, el := range header.Elements {
		switch el.Name {
		case "vertex":
			err = readPLYVertices(src, el, m)
		case "face":
			err = readPLYFaces(src, el, m)
		default:
			err = skipPLYElement(src, el)
		}
		if err != nil {
			return nil, fmt.Errorf("PLY element %s: %w", el.Name, err)
		}
	}
	return m, nil
}

func parsePLYHeader(data []byte) (*plyHeader, []byte, error) {
	if !bytes.HasPrefix(data, []byte("ply")) {
		return nil, nil, fmt.Errorf("%w: missing PLY magic", ErrMalformedMesh)
	}
	end := bytes.Index(data, []byte("end_header"))
	if end < 0 {
		return nil, nil, fmt.Errorf("%w: PLY header not terminated", ErrMalformedMesh)
	}
	bodyStart := end + len("end_header")
	if bodyStart < len(data) && data[bodyStart] == '\r' {
		bodyStart++
	}
	if bodyStart < len(data) && data[bodyStart] == '\n' {
		bodyStart++
	}

	h := &plyHeader{}
	for _, line := range strings.Split(string(data[:end]), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return nil, nil, fmt.Errorf("%w: bad format line", ErrMalformedMesh)
			}
			h.Format = fields[1]
		case "element":
			if len(fields) < 3 {
				return nil, nil, fmt.Errorf("%w: bad element line %q", ErrMalformedMesh, line)
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return nil, nil, fmt.Errorf("%w: bad element count %q", ErrMalformedMesh, fields[2])
			}
			h.Elements = append(h.Elements, plyElement{Name: fields[1], Count: n})
		case "property":
			if len(h.Elements) == 0 {
				return nil, nil, fmt.Errorf("%w: property before element", ErrMalformedMesh)
			}
			el := &h.Elements[len(h.Elements)-1]
			switch {
			case len(fields) == 5 && fields[1] == "list":
				el.Properties = append(el.Properties, plyProperty{
					Name: fields[4], Type: fields[3], IsList: true, CountType: fields[2],
				})
			case len(fields) == 3:
				el.Properties = append(el.Properties, plyProperty{Name: fields[2], Type: fields[1]})
			default:
				return nil, nil, fmt.Errorf("%w: bad property line %q", ErrMalformedMesh, line)
			}
		}
	}
	if h.Format == "" {
		return nil, nil, fmt.Errorf("%w: PLY format missing", ErrMalformedMesh)
	}
	return h, data[bodyStart:], nil
}

// checkPLYCounts rejects element counts the body cannot hold. Every value
// takes at least one byte in either encoding.
func checkPLYCounts(h *plyHeader, bodyLen int) error {
	remaining := bodyLen
	for _, el := range h.Elements {
		perItem := max(len(el.Properties), 1)
		if el.Count > remaining/perItem {
			return fmt.Errorf("%w: element %s count %d exceeds body size %d",
				ErrMalformedMesh, el.Name, el.Count, bodyLen)
		}
		remaining -= el.Count * perItem
	}
	return nil
}

func readPLYVertices(src plyValueReader, el plyElement, m *Mesh) error {
	pos := [3]int{-1, -1, -1}
	for i, p := range el.Properties {
		switch p.Name {
		case "x":
			pos[0] = i
		case "y":
			pos[1] = i
		case "z":
			pos[2] = i
		}
	}
	if pos[0] < 0 || pos[1] < 0 {
		return fmt.Errorf("%w: vertex element lacks x/y", ErrMalformedMesh)
	}
	m.Dim = 3
	if pos[2] < 0 {
		m.Dim = 2
	}

	m.Vertices = make([]float32, 0, el.Count*m.Dim)
	values := make([]float64, len(el.Properties))
	for v := 0; v < el.Count; v++ {
		for i, p := range el.Properties {
			if p.IsList {
				if _, err := readPLYList(src, p); err != nil {
					return err
				}
				continue
			}
			val, err := src.Scalar(p.Type)
			if err != nil {
				return err
			}
			values[i] = val
		}
		for axis := 0; axis < m.Dim; axis++ {
			m.Vertices = append(m.Vertices, float32(values[pos[axis]]))
		}
	}
	return nil
}

func readPLYFaces(src plyValueReader, el plyElement, m *Mesh) error {
	for f := 0; f < el.Count; f++ {
		for _, p := range el.Properties {
			if !p.IsList {
				if _, err := src.Scalar(p.Type); err != nil {
					return err
				}
				continue
			}
			list, err := readPLYList(src, p)
			if err != nil {
				return err
			}
			if p.Name != "vertex_indices" && p.Name != "vertex_index" {
				continue
			}
			if len(list) < 3 {
				return fmt.Errorf("%w: face %d has %d vertices", ErrMalformedMesh, f, len(list))
			}
			for i := 1; i+1 < len(list); i++ {
				for _, v := range [3]float64{list[0], list[i], list[i+1]} {
					if v < 0 || v != gomath.Trunc(v) {
						return fmt.Errorf("%w: %v", ErrFaceIndex, v)
					}
					m.Faces = append(m.Faces, uint32(v))
				}
			}
		}
	}
	return nil
}

func skipPLYElement(src plyValueReader, el plyElement) error {
	for n := 0; n < el.Count; n++ {
		for _, p := range el.Properties {
			var err error
			if p.IsList {
				_, err = readPLYList(src, p)
			} else {
				_, err = src.Scalar(p.Type)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func readPLYList(src plyValueReader, p plyProperty) ([]float64, error) {
	n, err := src.Scalar(p.CountType)
	if err != nil {
		return nil, err
	}
	if n < 0 || n > 1<<16 {
		return nil, fmt.Errorf("%w: list length %v", ErrMalformedMesh, n)
	}
	out := make([]float64, int(n))
	for i := range out {
		if out[i], err = src.Scalar(p.Type); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// plyValueReader yields successive scalar values of the PLY body.
type plyValueReader interface {
	Scalar(typ string) (float64, error)
}

type plyASCIIReader struct {
	s *bufio.Scanner
}

func newPLYASCIIReader(body []byte) *plyASCIIReader {
	s := bufio.NewScanner(bytes.NewReader(body))
	s.Split(bufio.ScanWords)
	return &plyASCIIReader{s: s}
}

func (r *plyASCIIReader) Scalar(typ string) (float64, error) {
	if !r.s.Scan() {
		return 0, fmt.Errorf("%w: unexpected end of PLY data", ErrMalformedMesh)
	}
	v, err := strconv.ParseFloat(r.s.Text(), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: PLY value %q", ErrMalformedMesh, r.s.Text())
	}
	return v, nil
}

type plyBinaryReader struct {
	r     io.Reader
	order binary.ByteOrder
	buf   [8]byte
}

func (r *plyBinaryReader) Scalar(typ string) (float64, error) {
	size := plyTypeSize(typ)
	if size == 0 {
		return 0, fmt.Errorf("%w: PLY type %q", ErrUnsupportedFormat, typ)
	}
	b := r.buf[:size]
	if _, err := io.ReadFull(r.r, b); err != nil {
		return 0, fmt.Errorf("%w: truncated PLY data", ErrMalformedMesh)
	}

	switch typ {
	case "char", "int8":
		return float64(int8(b[0])), nil
	case "uchar", "uint8":
		return float64(b[0]), nil
	case "short", "int16":
		return float64(int16(r.order.Uint16(b))), nil
	case "ushort", "uint16":
		return float64(r.order.Uint16(b)), nil
	case "int", "int32":
		return float64(int32(r.order.Uint32(b))), nil
	case "uint", "uint32":
		return float64(r.order.Uint32(b)), nil
	case "float", "float32":
		return float64(gomath.Float32frombits(r.order.Uint32(b))), nil
	default: // double, float64
		return gomath.Float64frombits(r.order.Uint64(b)), nil
	}
}

func plyTypeSize(typ string) int {
	switch typ {
	case "char", "int8", "uchar", "uint8":
		return 1
	case "short", "int16", "ushort", "uint16":
		return 2
	case "int", "int32", "uint", "uint32", "float", "float32":
		return 4
	case "double", "float64":
		return 8
	}
	return 0
}
