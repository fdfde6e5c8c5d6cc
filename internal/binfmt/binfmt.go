// Package binfmt holds the little-endian binary encode/decode helpers
// shared by pkg/matrix and every pkg/lshindex family, generalizing the
// length-prefixed binary.Write/Read pattern used by the store's vector
// codec to the fixed per-field headers and per-table records the hash
// index binary format requires.
package binfmt

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// WriteUint32s writes v as a sequence of little-endian uint32 values,
// with no length prefix.
func WriteUint32s(w io.Writer, v []uint32) error {
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("write uint32 slice: %w", err)
	}
	return nil
}

// ReadUint32s reads n little-endian uint32 values.
func ReadUint32s(r io.Reader, n int) ([]uint32, error) {
	v := make([]uint32, n)
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("read uint32 slice: %w", err)
	}
	return v, nil
}

// WriteFloat32s writes v as a sequence of little-endian float32 values.
func WriteFloat32s(w io.Writer, v []float32) error {
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("write float32 slice: %w", err)
	}
	return nil
}

// ReadFloat32s reads n little-endian float32 values.
func ReadFloat32s(r io.Reader, n int) ([]float32, error) {
	v := make([]float32, n)
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("read float32 slice: %w", err)
	}
	return v, nil
}

// WriteFloat64s writes v as a sequence of little-endian float64 values.
// shLsh persists its per-table minimum projections as doubles.
func WriteFloat64s(w io.Writer, v []float64) error {
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("write float64 slice: %w", err)
	}
	return nil
}

// ReadFloat64s reads n little-endian float64 values.
func ReadFloat64s(r io.Reader, n int) ([]float64, error) {
	v := make([]float64, n)
	if err := binary.Read(r, binary.LittleEndian, v); err != nil {
		return nil, fmt.Errorf("read float64 slice: %w", err)
	}
	return v, nil
}

// WriteUint32 writes a single little-endian uint32.
func WriteUint32(w io.Writer, v uint32) error {
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("write uint32: %w", err)
	}
	return nil
}

// ReadUint32 reads a single little-endian uint32.
func ReadUint32(r io.Reader) (uint32, error) {
	var v uint32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("read uint32: %w", err)
	}
	return v, nil
}

// WriteFloat32 writes a single little-endian float32.
func WriteFloat32(w io.Writer, v float32) error {
	if err := binary.Write(w, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("write float32: %w", err)
	}
	return nil
}

// ReadFloat32 reads a single little-endian float32.
func ReadFloat32(r io.Reader) (float32, error) {
	var v float32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("read float32: %w", err)
	}
	return v, nil
}

// WriteBucketTable writes a table's bucket map as a count followed by
// (key uint32, length uint32, ids []uint32) records, matching every
// family's table-persistence loop. Keys are written in ascending order
// so that two saves of the same table produce identical bytes; Go map
// iteration order is randomized per run, but the source's std::map
// persists in sorted-key order and the binary format must match it.
func WriteBucketTable(w io.Writer, table map[uint32][]uint32) error {
	if err := WriteUint32(w, uint32(len(table))); err != nil {
		return err
	}
	keys := make([]uint32, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		ids := table[key]
		if err := WriteUint32(w, key); err != nil {
			return err
		}
		if err := WriteUint32(w, uint32(len(ids))); err != nil {
			return err
		}
		if err := WriteUint32s(w, ids); err != nil {
			return err
		}
	}
	return nil
}

// ReadBucketTable reads a table previously written by WriteBucketTable.
func ReadBucketTable(r io.Reader) (map[uint32][]uint32, error) {
	count, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}
	table := make(map[uint32][]uint32, count)
	for i := uint32(0); i < count; i++ {
		key, err := ReadUint32(r)
		if err != nil {
			return nil, err
		}
		length, err := ReadUint32(r)
		if err != nil {
			return nil, err
		}
		ids, err := ReadUint32s(r, int(length))
		if err != nil {
			return nil, err
		}
		table[key] = ids
	}
	return table, nil
}
