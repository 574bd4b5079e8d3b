// Package serialization reads and writes state dicts in the SafeTensors
// format.
//
// File layout:
//
//	[8 bytes: header size N (uint64 LE)]
//	[N bytes: JSON header, space-padded to a multiple of 8]
//	[data section: raw little-endian tensor bytes]
//
// The header is a JSON object keyed by tensor name, plus an optional
// "__metadata__" object of string values. Tensors are written in state-dict
// order and read back in the same order.
//
// Writers store a SHA-256 checksum of the data section under the
// MetadataChecksum key; readers verify it when present.
//
// Float32 tensors can be stored as F16 to halve checkpoint size. They are
// widened back to float32 on read.
package serialization
