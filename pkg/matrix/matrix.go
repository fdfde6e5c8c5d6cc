// Package matrix holds a dataset as rows of a fixed element type and
// persists it as the [sizeof(T), N, D] little-endian binary layout the
// rest of golshbox's hash index binary files build on.
package matrix

import (
	"encoding/binary"
	"os"

	"github.com/liliang-cn/golshbox"
	"github.com/liliang-cn/golshbox/internal/binfmt"
)

// Elem is the sealed set of element types a Matrix can hold: unsigned
// integer datasets (rbsLsh) and the two floating-point precisions the
// rest of the families use.
type Elem interface {
	~uint32 | ~float32 | ~float64
}

// Matrix is a dense N x D dataset of rows of type T.
type Matrix[T Elem] struct {
	dim  int
	rows [][]T
}

// New returns an empty Matrix with the given dimension.
func New[T Elem](dim int) *Matrix[T] {
	return &Matrix[T]{dim: dim}
}

// Reset discards all rows and allocates n zeroed rows of dimension dim.
func (m *Matrix[T]) Reset(n, dim int) {
	m.dim = dim
	m.rows = make([][]T, n)
	for i := range m.rows {
		m.rows[i] = make([]T, dim)
	}
}

// Dim returns the row dimension.
func (m *Matrix[T]) Dim() int { return m.dim }

// Size returns the number of rows.
func (m *Matrix[T]) Size() int { return len(m.rows) }

// Row returns the i-th row. The returned slice aliases the matrix's
// storage and must not be retained across a Reset.
func (m *Matrix[T]) Row(i int) []T { return m.rows[i] }

// Append adds row to the matrix, copying it. It returns
// golshbox.ErrDimensionMismatch if len(row) does not match Dim (once Dim
// is nonzero).
func (m *Matrix[T]) Append(row []T) error {
	if m.dim != 0 && len(row) != m.dim {
		return golshbox.ErrDimensionMismatch
	}
	if m.dim == 0 {
		m.dim = len(row)
	}
	cp := make([]T, len(row))
	copy(cp, row)
	m.rows = append(m.rows, cp)
	return nil
}

func elemSize[T Elem]() uint32 {
	var zero T
	switch any(zero).(type) {
	case uint32:
		return 4
	case float32:
		return 4
	case float64:
		return 8
	default:
		return uint32(binary.Size(zero))
	}
}

// Save writes the matrix as the [sizeof(T), N, D] header followed by
// N*D row-major elements, all little-endian, matching the source
// Matrix<T>::save layout exactly.
func (m *Matrix[T]) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return golshbox.Wrap("matrix.Save", err)
	}
	defer f.Close()

	header := [3]uint32{elemSize[T](), uint32(m.Size()), uint32(m.dim)}
	if err := binfmt.WriteUint32s(f, header[:]); err != nil {
		return golshbox.Wrap("matrix.Save", err)
	}
	flat := make([]T, 0, m.Size()*m.dim)
	for _, row := range m.rows {
		flat = append(flat, row...)
	}
	if err := binary.Write(f, binary.LittleEndian, flat); err != nil {
		return golshbox.Wrap("matrix.Save", err)
	}
	return nil
}

// Load replaces the matrix's contents with the file at path, previously
// written by Save.
func (m *Matrix[T]) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return golshbox.Wrap("matrix.Load", err)
	}
	defer f.Close()

	header, err := binfmt.ReadUint32s(f, 3)
	if err != nil {
		return golshbox.Wrap("matrix.Load", golshbox.ErrInvalidFormat)
	}
	n, dim := int(header[1]), int(header[2])
	flat := make([]T, n*dim)
	if err := binary.Read(f, binary.LittleEndian, flat); err != nil {
		return golshbox.Wrap("matrix.Load", golshbox.ErrInvalidFormat)
	}
	m.dim = dim
	m.rows = make([][]T, n)
	for i := 0; i < n; i++ {
		m.rows[i] = flat[i*dim : (i+1)*dim]
	}
	return nil
}

// Accessor resolves a row id to its vector and tracks, per query, which
// ids have already been scanned so a Scanner never scores a candidate
// twice across overlapping hash-table buckets.
type Accessor[T Elem] struct {
	m     *Matrix[T]
	flags []bool
}

// NewAccessor returns an Accessor bound to m.
func NewAccessor[T Elem](m *Matrix[T]) *Accessor[T] {
	return &Accessor[T]{m: m, flags: make([]bool, m.Size())}
}

// Reset clears every mark, starting a fresh dedup scope for a new query.
func (a *Accessor[T]) Reset() {
	a.flags = make([]bool, a.m.Size())
}

// Mark returns true the first time it is called for key within the
// current scope, and false on every subsequent call, mirroring
// Matrix::Accessor::mark.
func (a *Accessor[T]) Mark(key uint32) bool {
	if a.flags[key] {
		return false
	}
	a.flags[key] = true
	return true
}

// Get returns the row stored under key.
func (a *Accessor[T]) Get(key uint32) []T {
	return a.m.Row(int(key))
}
