package flv

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Reader reads an FLV stream tag by tag, verifying the back-pointer
// invariant (spec.md §8 invariant 5: back_pointer[i] == tag_size[i]) as it
// goes.
type Reader struct {
	r io.Reader
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadHeader reads the file header and asserts the first back-pointer (which
// always precedes the first tag) is zero.
func (fr *Reader) ReadHeader() (*Header, error) {
	h, err := ParseHeader(fr.r)
	if err != nil {
		return nil, err
	}
	var bp [BackPointerSize]byte
	if _, err := io.ReadFull(fr.r, bp[:]); err != nil {
		return nil, err
	}
	if binary.BigEndian.Uint32(bp[:]) != 0 {
		return nil, &StreamCorruptedError{Cause: fmt.Errorf("first back-pointer must be 0")}
	}
	return h, nil
}

// ReadTag reads one tag and its trailing back-pointer, returning
// io.EOF when the stream is exhausted cleanly at a tag boundary.
func (fr *Reader) ReadTag() (*Tag, error) {
	tag, err := ParseTag(fr.r)
	if err != nil {
		return nil, err
	}
	var bp [BackPointerSize]byte
	if _, err := io.ReadFull(fr.r, bp[:]); err != nil {
		return nil, err
	}
	if n := binary.BigEndian.Uint32(bp[:]); int(n) != tag.TagSize() {
		return nil, &DataError{Cause: fmt.Errorf("back-pointer %d does not match tag size %d", n, tag.TagSize())}
	}
	return tag, nil
}

// ReadTags reads tags until EOF, invoking fn for each. Stops and returns nil
// on a clean io.EOF between tags; returns any other error immediately.
func (fr *Reader) ReadTags(fn func(*Tag) error) error {
	for {
		tag, err := fr.ReadTag()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(tag); err != nil {
			return err
		}
	}
}

// Writer writes an FLV stream tag by tag, writing a correct back-pointer
// after each tag.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the file header followed by the leading zero
// back-pointer, returning the number of bytes written.
func (fw *Writer) WriteHeader(h *Header) (int, error) {
	if err := DumpHeader(fw.w, h); err != nil {
		return 0, err
	}
	var bp [BackPointerSize]byte
	if _, err := fw.w.Write(bp[:]); err != nil {
		return 0, err
	}
	return h.Size() + BackPointerSize, nil
}

// WriteTag writes one tag followed by its back-pointer, returning the number
// of bytes written (TagSize + BackPointerSize).
func (fw *Writer) WriteTag(t *Tag) (int, error) {
	if err := DumpTag(fw.w, t); err != nil {
		return 0, err
	}
	var bp [BackPointerSize]byte
	binary.BigEndian.PutUint32(bp[:], uint32(t.TagSize()))
	if _, err := fw.w.Write(bp[:]); err != nil {
		return 0, err
	}
	return t.TagSize() + BackPointerSize, nil
}

// WriteTags writes each tag in order, returning the total bytes written.
func (fw *Writer) WriteTags(tags []*Tag) (int, error) {
	total := 0
	for _, t := range tags {
		n, err := fw.WriteTag(t)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
