// Package keycodec implements the order-preserving binary key encoding used
// by the StrataDB storage engine.
//
// Every key stored by the engine is an opaque byte sequence whose raw byte
// order must match the logical order of the values it encodes, because range
// scans over the storage backends compare keys with bytes.Compare and nothing
// else. The encodings in this package are load-bearing: replacing any of them
// requires preserving byte-order equivalence exactly.
//
// # Encodings
//
// Unsigned integers are written as 8 big-endian bytes. Signed integers flip
// the sign bit before the big-endian write so that negative values sort
// before positive ones. Byte strings are escaped (0x00 becomes 0x00 0xFF)
// and terminated by the sentinel 0x00 0x01, which cannot appear inside an
// escaped payload; this keeps "a" sorting before "a\x00" and before "ab".
// Every encoding has a descending variant produced by complementing the
// emitted bytes, so descending components can still be scanned with an
// ascending byte comparison.
//
// # Building keys
//
// Use the append-style functions for zero-allocation composition into a
// caller-owned buffer:
//
//	key := keycodec.AppendUint64(buf[:0], tableID)
//	key = keycodec.AppendBytes(key, []byte(rowName))
//	key = keycodec.AppendInt64(key, timestamp)
//
// Or use an Encoder when a reusable builder is more convenient:
//
//	enc := keycodec.NewEncoder(64)
//	enc.PutUint64(tableID)
//	enc.PutBytes([]byte(rowName))
//	key := enc.Bytes()
//
// # Decoding
//
// A Decoder consumes components in the order they were written:
//
//	dec := keycodec.NewDecoder(key)
//	tableID, err := dec.Uint64()
//	rowName, err := dec.Bytes()
package keycodec
