package loader

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path"
	"strings"
)

var (
	errInvalidVersion    = errors.New("invalid glTF version: must be 2.x")
	errInvalidGLB        = errors.New("invalid GLB container")
	errMissingJSONChunk  = errors.New("GLB file missing JSON chunk")
	errInvalidDataURI    = errors.New("invalid data URI")
	errAccessorRange     = errors.New("accessor out of range")
	errSparseUnsupported = errors.New("sparse accessors are not supported")
)

// gltfParser holds a decoded document plus the buffer bytes its accessors read from. External
// buffers and images are resolved relative to dir inside fsys.
type gltfParser struct {
	fsys fs.FS
	dir  string
	doc  *gltfDocument
	bin  []byte
}

// parseGLTF decodes a .gltf or .glb payload. The container is detected from the GLB magic.
//
// Parameters:
//   - fsys: file system for external buffers and images, may be nil for self-contained files
//   - dir: directory of the document inside fsys
//   - data: the file contents
//
// Returns:
//   - *gltfParser: the parser with all buffers loaded
//   - error: error if the document is malformed
func parseGLTF(fsys fs.FS, dir string, data []byte) (*gltfParser, error) {
	p := &gltfParser{fsys: fsys, dir: dir}

	jsonData := data
	if len(data) >= 4 && binary.LittleEndian.Uint32(data) == glbMagic {
		var err error
		if jsonData, p.bin, err = splitGLB(data); err != nil {
			return nil, err
		}
	}

	var doc gltfDocument
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse glTF JSON: %w", err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return nil, errInvalidVersion
	}
	if len(doc.ExtensionsRequired) > 0 {
		return nil, fmt.Errorf("unsupported required extensions: %v", doc.ExtensionsRequired)
	}
	p.doc = &doc

	if err := p.loadBuffers(); err != nil {
		return nil, fmt.Errorf("failed to load buffers: %w", err)
	}
	return p, nil
}

// splitGLB returns the JSON and BIN chunks of a GLB container.
func splitGLB(data []byte) (jsonChunk, binChunk []byte, err error) {
	if len(data) < 12 {
		return nil, nil, fmt.Errorf("%w: file too small", errInvalidGLB)
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != glbVersion {
		return nil, nil, fmt.Errorf("%w: version %d", errInvalidGLB, v)
	}
	total := int(binary.LittleEndian.Uint32(data[8:]))
	if total > len(data) {
		return nil, nil, fmt.Errorf("%w: header length %d exceeds file size %d", errInvalidGLB, total, len(data))
	}

	for off := 12; off+8 <= total; {
		length := int(binary.LittleEndian.Uint32(data[off:]))
		kind := binary.LittleEndian.Uint32(data[off+4:])
		off += 8
		if off+length > total {
			return nil, nil, fmt.Errorf("%w: chunk overruns file", errInvalidGLB)
		}
		switch kind {
		case glbChunkJSON:
			jsonChunk = data[off : off+length]
		case glbChunkBIN:
			binChunk = data[off : off+length]
		}
		off += length
	}
	if jsonChunk == nil {
		return nil, nil, errMissingJSONChunk
	}
	return jsonChunk, binChunk, nil
}

func (p *gltfParser) loadBuffers() error {
	for i := range p.doc.Buffers {
		buf := &p.doc.Buffers[i]
		switch {
		case buf.URI == "" && i == 0 && p.bin != nil:
			buf.data = p.bin
		case buf.URI == "":
			return fmt.Errorf("buffer %d has no URI and no GLB binary chunk", i)
		default:
			data, _, err := p.readURI(buf.URI)
			if err != nil {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			buf.data = data
		}
		if len(buf.data) < buf.ByteLength {
			return fmt.Errorf("buffer %d: has %d bytes, declares %d", i, len(buf.data), buf.ByteLength)
		}
	}
	return nil
}

// readURI resolves a data: URI or a path relative to the document.
//
// Returns:
//   - []byte: the payload
//   - string: the MIME type for data URIs, empty otherwise
//   - error: error if the URI cannot be read
func (p *gltfParser) readURI(uri string) ([]byte, string, error) {
	if strings.HasPrefix(uri, "data:") {
		return decodeDataURI(uri)
	}
	if p.fsys == nil {
		return nil, "", fmt.Errorf("external resource %q with no file system", uri)
	}
	data, err := fs.ReadFile(p.fsys, path.Join(p.dir, uri))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %q: %w", uri, err)
	}
	return data, "", nil
}

// decodeDataURI decodes data:[<mediatype>][;base64],<data>. Only base64 payloads are supported.
func decodeDataURI(uri string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, "", errInvalidDataURI
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("%w: unsupported encoding %q", errInvalidDataURI, header)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errInvalidDataURI, err)
	}
	return data, mime, nil
}

// bufferView returns the bytes covered by a buffer view.
func (p *gltfParser) bufferView(index int) ([]byte, error) {
	if index < 0 || index >= len(p.doc.BufferViews) {
		return nil, fmt.Errorf("bufferView %d: %w", index, errAccessorRange)
	}
	bv := &p.doc.BufferViews[index]
	if bv.Buffer < 0 || bv.Buffer >= len(p.doc.Buffers) {
		return nil, fmt.Errorf("buffer %d: %w", bv.Buffer, errAccessorRange)
	}
	data := p.doc.Buffers[bv.Buffer].data
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(data) {
		return nil, fmt.Errorf("bufferView %d [%d, %d) exceeds buffer of %d bytes", index, bv.ByteOffset, end, len(data))
	}
	return data[bv.ByteOffset:end], nil
}

// accessor validates an accessor and returns it with its element width in components and the
// raw bytes of each element.
func (p *gltfParser) accessor(index int, wantComponents int) (*gltfAccessor, [][]byte, error) {
	if index < 0 || index >= len(p.doc.Accessors) {
		return nil, nil, fmt.Errorf("accessor %d: %w", index, errAccessorRange)
	}
	acc := &p.doc.Accessors[index]
	if acc.Sparse != nil {
		return nil, nil, fmt.Errorf("accessor %d: %w", index, errSparseUnsupported)
	}
	components := accessorComponents(acc.Type)
	if components != wantComponents {
		return nil, nil, fmt.Errorf("accessor %d: type %s, want %d components", index, acc.Type, wantComponents)
	}
	size := componentSize(acc.ComponentType)
	if size == 0 {
		return nil, nil, fmt.Errorf("accessor %d: unknown component type %d", index, acc.ComponentType)
	}
	if acc.BufferView == nil {
		// An accessor without a view reads as zeros.
		zero := make([]byte, size*components)
		elems := make([][]byte, acc.Count)
		for i := range elems {
			elems[i] = zero
		}
		return acc, elems, nil
	}

	view, err := p.bufferView(*acc.BufferView)
	if err != nil {
		return nil, nil, err
	}
	elemSize := size * components
	stride := elemSize
	if bs := p.doc.BufferViews[*acc.BufferView].ByteStride; bs != nil && *bs > 0 {
		stride = *bs
	}
	if acc.Count > 0 && acc.ByteOffset+(acc.Count-1)*stride+elemSize > len(view) {
		return nil, nil, fmt.Errorf("accessor %d: %d elements overrun bufferView", index, acc.Count)
	}
	elems := make([][]byte, acc.Count)
	for i := range elems {
		off := acc.ByteOffset + i*stride
		elems[i] = view[off : off+elemSize]
	}
	return acc, elems, nil
}

// readFloats reads an accessor as float32 components. Integer components are converted, and
// normalized when the accessor says so.
func (p *gltfParser) readFloats(index, components int) ([]float32, error) {
	acc, elems, err := p.accessor(index, components)
	if err != nil {
		return nil, err
	}
	size := componentSize(acc.ComponentType)
	out := make([]float32, 0, len(elems)*components)
	for _, e := range elems {
		for c := range components {
			out = append(out, componentFloat(e[c*size:], acc.ComponentType, acc.Normalized))
		}
	}
	return out, nil
}

// readUints reads an unsigned integer accessor (indices, joints).
func (p *gltfParser) readUints(index, components int) ([]uint32, error) {
	acc, elems, err := p.accessor(index, components)
	if err != nil {
		return nil, err
	}
	switch acc.ComponentType {
	case gltfUnsignedByte, gltfUnsignedShort, gltfUnsignedInt:
	default:
		return nil, fmt.Errorf("accessor %d: component type %d is not unsigned", index, acc.ComponentType)
	}
	size := componentSize(acc.ComponentType)
	out := make([]uint32, 0, len(elems)*components)
	for _, e := range elems {
		for c := range components {
			out = append(out, componentUint(e[c*size:], acc.ComponentType))
		}
	}
	return out, nil
}

func componentUint(b []byte, componentType int) uint32 {
	switch componentType {
	case gltfUnsignedByte, gltfByte:
		return uint32(b[0])
	case gltfUnsignedShort, gltfShort:
		return uint32(binary.LittleEndian.Uint16(b))
	default:
		return binary.LittleEndian.Uint32(b)
	}
}

// componentFloat converts one component. Normalized signed values clamp at -1.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#animations
func componentFloat(b []byte, componentType int, normalized bool) float32 {
	switch componentType {
	case gltfFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case gltfByte:
		v := float32(int8(b[0]))
		if normalized {
			return max(v/127, -1)
		}
		return v
	case gltfUnsignedByte:
		v := float32(b[0])
		if normalized {
			return v / 255
		}
		return v
	case gltfShort:
		v := float32(int16(binary.LittleEndian.Uint16(b)))
		if normalized {
			return max(v/32767, -1)
		}
		return v
	case gltfUnsignedShort:
		v := float32(binary.LittleEndian.Uint16(b))
		if normalized {
			return v / 65535
		}
		return v
	default:
		return float32(binary.LittleEndian.Uint32(b))
	}
}

func componentSize(componentType int) int {
	switch componentType {
	case gltfByte, gltfUnsignedByte:
		return 1
	case gltfShort, gltfUnsignedShort:
		return 2
	case gltfUnsignedInt, gltfFloat:
		return 4
	}
	return 0
}

func accessorComponents(accessorType string) int {
	switch accessorType {
	case "SCALAR":
		return 1
	case "VEC2":
		return 2
	case "VEC3":
		return 3
	case "VEC4", "MAT2":
		return 4
	case "MAT3":
		return 9
	case "MAT4":
		return 16
	}
	return 0
}
