package operators

import (
	"bufio"
	"os"
	"time"

	"github.com/nekorec/blivec/internal/flv"
)

// PathProvider returns the output file path for a new sub-stream whose file
// is opened at ts, a wall-clock Unix time in seconds.
type PathProvider func(ts int64) (string, error)

// Dumper opens a new output file on each FlvHeader (using a caller-supplied
// path provider) and writes the header and subsequent tags to it. The
// underlying writer is buffered and fsyncs only when the file is closed
// (spec.md §4.6 step 14).
type Dumper struct {
	pathFor   PathProvider
	onOpened  func(path string, ts int64)
	onClosed  func(path string)
	bufSize   int

	file   *os.File
	bw     *bufio.Writer
	fw     *flv.Writer
	path   string
}

// NewDumper constructs a Dumper. bufSize of 0 uses bufio's default.
func NewDumper(pathFor PathProvider, bufSize int, onOpened func(string, int64), onClosed func(string)) *Dumper {
	return &Dumper{pathFor: pathFor, onOpened: onOpened, onClosed: onClosed, bufSize: bufSize}
}

// Push implements Sink. Dumper is a chain terminus: it has no next stage.
func (d *Dumper) Push(item Item) error {
	if item.IsHeader() {
		if err := d.closeCurrent(); err != nil {
			return err
		}
		return d.open(item.Header)
	}

	if d.fw == nil {
		return nil
	}
	_, err := d.fw.WriteTag(item.Tag)
	return err
}

func (d *Dumper) open(header *flv.Header) error {
	startTS := time.Now().Unix()
	path, err := d.pathFor(startTS)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	var bw *bufio.Writer
	if d.bufSize > 0 {
		bw = bufio.NewWriterSize(f, d.bufSize)
	} else {
		bw = bufio.NewWriter(f)
	}

	d.file = f
	d.bw = bw
	d.fw = flv.NewWriter(bw)
	d.path = path

	if _, err := d.fw.WriteHeader(header); err != nil {
		return err
	}
	if d.onOpened != nil {
		d.onOpened(path, startTS)
	}
	return nil
}

func (d *Dumper) closeCurrent() error {
	if d.file == nil {
		return nil
	}
	if err := d.bw.Flush(); err != nil {
		d.file.Close()
		return err
	}
	if err := d.file.Sync(); err != nil {
		d.file.Close()
		return err
	}
	path := d.path
	err := d.file.Close()
	d.file, d.bw, d.fw, d.path = nil, nil, nil, ""
	if d.onClosed != nil {
		d.onClosed(path)
	}
	return err
}

// Close flushes and closes the current output file, if any.
func (d *Dumper) Close() error {
	return d.closeCurrent()
}
