package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CIFAR-10 binary layout: one label byte followed by 1024 red, 1024 green
// and 1024 blue bytes of a 32x32 image.
const (
	CIFARImageSize  = 32
	CIFARChannels   = 3
	cifarPixels     = CIFARChannels * CIFARImageSize * CIFARImageSize
	CIFARRecordSize = 1 + cifarPixels
)

// CIFAR10Classes are the label names in label order.
var CIFAR10Classes = []string{"plane", "car", "bird", "cat", "deer", "dog", "frog", "horse", "ship", "truck"}

// CIFAR10 holds decoded CIFAR-10 records in memory.
type CIFAR10 struct {
	pixels [][]byte
	labels []uint8
}

// LoadCIFAR10 reads the binary distribution from dir: data_batch_1.bin to
// data_batch_5.bin for training, test_batch.bin otherwise.
func LoadCIFAR10(dir string, train bool) (*CIFAR10, error) {
	files := []string{"test_batch.bin"}
	if train {
		files = files[:0]
		for i := 1; i <= 5; i++ {
			files = append(files, fmt.Sprintf("data_batch_%d.bin", i))
		}
	}

	ds := &CIFAR10{}
	for _, name := range files {
		if err := ds.loadFile(filepath.Join(dir, name)); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func (c *CIFAR10) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cifar10: %w", err)
	}
	defer f.Close()

	pixels, labels, err := ReadCIFAR10(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("cifar10 %s: %w", filepath.Base(path), err)
	}
	c.pixels = append(c.pixels, pixels...)
	c.labels = append(c.labels, labels...)
	return nil
}

// ReadCIFAR10 decodes 3073-byte records until EOF. A trailing partial record
// or a label above 9 yields ErrInvalidFormat.
func ReadCIFAR10(r io.Reader) (pixels [][]byte, labels []uint8, err error) {
	for {
		rec := make([]byte, CIFARRecordSize)
		n, err := io.ReadFull(r, rec)
		if err == io.EOF {
			return pixels, labels, nil
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: record %d truncated at %d bytes", ErrInvalidFormat, len(labels), n)
		}
		if rec[0] >= uint8(len(CIFAR10Classes)) {
			return nil, nil, fmt.Errorf("%w: record %d has label %d", ErrInvalidFormat, len(labels), rec[0])
		}
		labels = append(labels, rec[0])
		pixels = append(pixels, rec[1:])
	}
}

// Len returns the number of records.
func (c *CIFAR10) Len() int { return len(c.labels) }

// Get returns record i with pixels scaled to [0, 1].
func (c *CIFAR10) Get(i int) (Sample, error) {
	if err := checkIndex("cifar10", i, len(c.labels)); err != nil {
		return Sample{}, err
	}
	return Sample{Image: scaleBytes(c.pixels[i]), Label: int(c.labels[i])}, nil
}

// Dims returns 3x32x32.
func (c *CIFAR10) Dims() Dims {
	return Dims{Channels: CIFARChannels, Height: CIFARImageSize, Width: CIFARImageSize}
}

// Classes returns CIFAR10Classes.
func (c *CIFAR10) Classes() []string { return CIFAR10Classes }

func scaleBytes(b []byte) []float32 {
	out := make([]float32, len(b))
	for i, v := range b {
		out[i] = float32(v) / 255
	}
	return out
}
