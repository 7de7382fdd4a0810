// Package serialization implements the .born archive format used for model
// checkpoints and the preprocessing cache.
//
//	Format Structure (v2, written by this package):
//	  [0x00: 4 bytes  Magic "BORN"]
//	  [0x04: 4 bytes  Version (uint32 LE)]
//	  [0x08: 4 bytes  Flags (uint32 LE)]
//	  [0x0C: 4 bytes  Reserved]
//	  [0x10: 8 bytes  Header Size (uint64 LE)]
//	  [0x18: 8 bytes  Data Size (uint64 LE)]
//	  [0x20: 32 bytes SHA-256 of tensor data]
//	  [Header: JSON metadata]
//	  [Tensor data: raw bytes, 64-byte aligned]
//
// Version 1 files (magic, version, flags, header size, header, data) are
// still readable.
//
// Every tensor in the header may carry a group. Ungrouped tensors form the
// top-level mapping of the archive; grouped tensors form named nested
// mappings, such as a "state_dict" wrapper around model parameters.
//
// Example usage:
//
//	archive := serialization.NewArchive()
//	archive.Put("state_dict", "module.weight", weight)
//	if err := serialization.WriteFile("ckpt_00010.born", archive); err != nil {
//	    log.Fatal(err)
//	}
//
//	loaded, err := serialization.ReadFile("ckpt_00010.born", tensor.CPU, serialization.ReaderOptions{})
package serialization
