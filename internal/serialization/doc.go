// Package serialization reads and writes .born model files.
//
// Layout (all integers little-endian):
//
//	0x00  [4]byte  magic "BORN"
//	0x04  uint32   format version (2)
//	0x08  uint32   flags
//	0x0C  uint32   reserved
//	0x10  uint64   JSON header size
//	0x18  uint64   tensor data size
//	0x20  [32]byte SHA-256 of the tensor data
//	0x40  JSON header (tensor names, dtypes, shapes, offsets, metadata)
//	      zero padding to a 64-byte boundary
//	      tensor data, tensors back to back in header order
//
// Tensors are written in sorted name order, so the same state dict always
// produces the same data section and checksum.
//
// Example:
//
//	err := serialization.WriteFile("vit.born", model.StateDict(), serialization.Header{ModelType: "ViT"})
//
//	f, err := serialization.ReadFile("vit.born", serialization.ReaderOptions{})
//	err = model.LoadStateDict(f.Tensors)
package serialization
