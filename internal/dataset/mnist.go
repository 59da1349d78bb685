package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// IDX magic numbers.
const (
	idxImagesMagic = 2051
	idxLabelsMagic = 2049
)

// MNISTClasses are the digit names.
var MNISTClasses = []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}

// MNIST holds decoded IDX images and labels.
type MNIST struct {
	pixels     [][]byte
	labels     []uint8
	rows, cols int
}

// LoadMNIST reads train-* or t10k-* IDX files from dir. Each file may be
// stored raw or with a .gz suffix.
func LoadMNIST(dir string, train bool) (*MNIST, error) {
	prefix := "t10k"
	if train {
		prefix = "train"
	}

	imgFile, err := openIDX(filepath.Join(dir, prefix+"-images-idx3-ubyte"))
	if err != nil {
		return nil, err
	}
	defer imgFile.Close()
	lblFile, err := openIDX(filepath.Join(dir, prefix+"-labels-idx1-ubyte"))
	if err != nil {
		return nil, err
	}
	defer lblFile.Close()

	pixels, rows, cols, err := ReadIDXImages(imgFile)
	if err != nil {
		return nil, fmt.Errorf("mnist images: %w", err)
	}
	labels, err := ReadIDXLabels(lblFile)
	if err != nil {
		return nil, fmt.Errorf("mnist labels: %w", err)
	}
	if len(pixels) != len(labels) {
		return nil, fmt.Errorf("%w: %d images but %d labels", ErrInvalidFormat, len(pixels), len(labels))
	}
	return &MNIST{pixels: pixels, labels: labels, rows: rows, cols: cols}, nil
}

type idxFile struct {
	io.Reader
	closers []io.Closer
}

func (f *idxFile) Close() error {
	var errs []error
	for i := len(f.closers) - 1; i >= 0; i-- {
		errs = append(errs, f.closers[i].Close())
	}
	return errors.Join(errs...)
}

// openIDX opens path, falling back to path+".gz".
func openIDX(path string) (*idxFile, error) {
	f, err := os.Open(path)
	if err == nil {
		return &idxFile{Reader: bufio.NewReader(f), closers: []io.Closer{f}}, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("mnist: %w", err)
	}

	gz, err := os.Open(path + ".gz")
	if err != nil {
		return nil, fmt.Errorf("mnist: %w", err)
	}
	zr, err := gzip.NewReader(bufio.NewReader(gz))
	if err != nil {
		gz.Close()
		return nil, fmt.Errorf("mnist %s.gz: %w", filepath.Base(path), err)
	}
	return &idxFile{Reader: zr, closers: []io.Closer{gz, zr}}, nil
}

// ReadIDXImages decodes an IDX3 image file:
//
//	magic 0x00000803, count, rows, cols (big-endian uint32), then pixels
func ReadIDXImages(r io.Reader) (images [][]byte, rows, cols int, err error) {
	var hdr [4]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: header: %v", ErrInvalidFormat, err)
	}
	if hdr[0] != idxImagesMagic {
		return nil, 0, 0, fmt.Errorf("%w: magic %d, want %d", ErrInvalidFormat, hdr[0], idxImagesMagic)
	}
	count, rows, cols := int(hdr[1]), int(hdr[2]), int(hdr[3])

	images = make([][]byte, count)
	for i := range images {
		images[i] = make([]byte, rows*cols)
		if _, err := io.ReadFull(r, images[i]); err != nil {
			return nil, 0, 0, fmt.Errorf("%w: image %d: %v", ErrInvalidFormat, i, err)
		}
	}
	return images, rows, cols, nil
}

// ReadIDXLabels decodes an IDX1 label file: magic 0x00000801, count, labels.
func ReadIDXLabels(r io.Reader) ([]uint8, error) {
	var hdr [2]uint32
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidFormat, err)
	}
	if hdr[0] != idxLabelsMagic {
		return nil, fmt.Errorf("%w: magic %d, want %d", ErrInvalidFormat, hdr[0], idxLabelsMagic)
	}
	labels := make([]uint8, hdr[1])
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, fmt.Errorf("%w: labels: %v", ErrInvalidFormat, err)
	}
	for i, l := range labels {
		if l > 9 {
			return nil, fmt.Errorf("%w: label %d is %d", ErrInvalidFormat, i, l)
		}
	}
	return labels, nil
}

// Len returns the number of images.
func (m *MNIST) Len() int { return len(m.labels) }

// Get returns image i scaled to [0, 1].
func (m *MNIST) Get(i int) (Sample, error) {
	if err := checkIndex("mnist", i, len(m.labels)); err != nil {
		return Sample{}, err
	}
	return Sample{Image: scaleBytes(m.pixels[i]), Label: int(m.labels[i])}, nil
}

// Dims returns 1xRowsxCols.
func (m *MNIST) Dims() Dims { return Dims{Channels: 1, Height: m.rows, Width: m.cols} }

// Classes returns MNISTClasses.
func (m *MNIST) Classes() []string { return MNISTClasses }
