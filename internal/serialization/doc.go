// Package serialization stores tagger checkpoints in the .idcn format.
//
// The format is a fixed 64-byte header followed by a JSON header and the
// parameter values:
//
//	Fixed header (64 bytes):
//	  0x00-0x03  Magic "IDCN"
//	  0x04-0x07  Version (uint32 LE)
//	  0x08-0x0B  Flags (uint32 LE)
//	  0x0C-0x0F  Reserved
//	  0x10-0x17  Header size (uint64 LE)
//	  0x18-0x1F  Data size (uint64 LE)
//	  0x20-0x3F  SHA-256 of the data section
//	[Header: JSON metadata]
//	[Padding to a 64-byte boundary]
//	[Tensor data: float64 little-endian, in header order]
//
// Example usage:
//
//	err := serialization.WriteFile("model.idcn", header, model.StateDict())
//
//	ckpt, err := serialization.ReadFile("model.idcn")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = model.LoadStateDict(ckpt.Tensors)
package serialization
