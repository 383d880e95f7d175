package gltf

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
)

// MimeTypeKTX2 is the media type of KTX2 textures.
const MimeTypeKTX2 = "image/ktx2"

// Image is one entry of a manifest's images array.
type Image struct {
	Index    int
	URI      string
	MimeType string
	Name     string
	// BufferView images carry their bytes inside the asset and have no URI.
	BufferView bool
}

// member is one value inside an image object, located by its byte span in
// the source document.
type member struct {
	start, end  int64
	raw         json.RawMessage
	replacement []byte
}

// Document is a decoded glTF manifest. Encode reproduces the source bytes
// with only the edited image members replaced.
type Document struct {
	data   []byte
	images []map[string]*member
}

// Load reads and parses the manifest at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// Parse decodes manifest JSON.
func Parse(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := expectDelim(dec, '{', "manifest is not a JSON object"); err != nil {
		return nil, err
	}

	doc := &Document{data: data}
	hasAsset := false
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return nil, err
		}
		switch key {
		case "images":
			if doc.images, err = decodeImages(dec, data); err != nil {
				return nil, fmt.Errorf("decode images: %w", err)
			}
		default:
			if key == "asset" {
				hasAsset = true
			}
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after manifest object")
	}
	if !hasAsset {
		return nil, errors.New("manifest has no asset member")
	}
	return doc, nil
}

func decodeImages(dec *json.Decoder, data []byte) ([]map[string]*member, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, errors.New("images is not an array")
	}
	var images []map[string]*member
	for dec.More() {
		if err := expectDelim(dec, '{', fmt.Sprintf("image %d is not an object", len(images))); err != nil {
			return nil, err
		}
		members := make(map[string]*member)
		for dec.More() {
			key, err := objectKey(dec)
			if err != nil {
				return nil, err
			}
			keyEnd := dec.InputOffset()
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return nil, err
			}
			start := valueStart(data, keyEnd)
			end := dec.InputOffset()
			if start < 0 || end > int64(len(data)) || !bytes.Equal(data[start:end], raw) {
				return nil, fmt.Errorf("image %d: cannot locate %q value", len(images), key)
			}
			members[key] = &member{start: start, end: end, raw: raw}
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		images = append(images, members)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return images, nil
}

// valueStart skips the whitespace and colon that follow an object key.
func valueStart(data []byte, offset int64) int64 {
	for i := offset; i < int64(len(data)); i++ {
		switch data[i] {
		case ' ', '\t', '\r', '\n', ':':
			continue
		default:
			return i
		}
	}
	return -1
}

func expectDelim(dec *json.Decoder, want json.Delim, msg string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return errors.New(msg)
	}
	return nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("unexpected token %v", tok)
	}
	return key, nil
}

// Images returns the manifest images in declaration order.
func (d *Document) Images() []Image {
	out := make([]Image, 0, len(d.images))
	for idx, members := range d.images {
		img := Image{Index: idx}
		decodeString(members, "uri", &img.URI)
		decodeString(members, "mimeType", &img.MimeType)
		decodeString(members, "name", &img.Name)
		_, img.BufferView = members["bufferView"]
		out = append(out, img)
	}
	return out
}

// SetImageURI points image index at uri. mimeType replaces the image's
// declared media type; images without one are left without one.
func (d *Document) SetImageURI(index int, uri, mimeType string) error {
	if index < 0 || index >= len(d.images) {
		return fmt.Errorf("image index %d out of range (%d images)", index, len(d.images))
	}
	members := d.images[index]
	uriMember, ok := members["uri"]
	if !ok {
		return fmt.Errorf("image %d has no uri", index)
	}
	encoded, err := marshalString(uri)
	if err != nil {
		return err
	}
	uriMember.replacement = encoded
	if m, ok := members["mimeType"]; ok && mimeType != "" {
		if m.replacement, err = marshalString(mimeType); err != nil {
			return err
		}
	}
	return nil
}

// Encode returns the manifest bytes with edited values spliced in. Members
// that were not edited, key order and whitespace are kept as read.
func (d *Document) Encode() ([]byte, error) {
	var edits []*member
	for _, members := range d.images {
		for _, m := range members {
			if m.replacement != nil {
				edits = append(edits, m)
			}
		}
	}
	slices.SortFunc(edits, func(a, b *member) int { return int(a.start - b.start) })

	var buf bytes.Buffer
	buf.Grow(len(d.data))
	var pos int64
	for _, m := range edits {
		if m.start < pos {
			return nil, fmt.Errorf("encode manifest: overlapping edit at offset %d", m.start)
		}
		buf.Write(d.data[pos:m.start])
		buf.Write(m.replacement)
		pos = m.end
	}
	buf.Write(d.data[pos:])
	return buf.Bytes(), nil
}

func decodeString(members map[string]*member, key string, dst *string) {
	m, ok := members[key]
	if !ok {
		return
	}
	raw := m.raw
	if m.replacement != nil {
		raw = m.replacement
	}
	_ = json.Unmarshal(raw, dst)
}

func marshalString(value string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
