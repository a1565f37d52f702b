package snapshot

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"

	"github.com/google/renameio"

	qerrors "github.com/quarrylabs/quarry/internal/errors"
)

// The embedding matrix artifact is a NumPy .npy file, format version
// 1.0, dtype '<f4' (little-endian float32), C order, shape (rows, cols).
// A purpose-built codec is used instead of a general array library
// because queries against the file-backed index must stream the matrix
// in bounded row batches rather than materialize it.

var npyMagic = []byte{0x93, 'N', 'U', 'M', 'P', 'Y', 0x01, 0x00}

var (
	npyShapeRe   = regexp.MustCompile(`'shape':\s*\((\d+),\s*(\d+)\)`)
	npyDescrRe   = regexp.MustCompile(`'descr':\s*'<f4'`)
	npyFortranRe = regexp.MustCompile(`'fortran_order':\s*True`)
)

// WriteMatrix atomically persists a float32 matrix as an .npy artifact.
// All rows must share the same length; the write publishes via temp
// file + rename so a concurrent reader never observes a partial matrix.
func WriteMatrix(path string, rows [][]float32, cols int) error {
	t, err := renameio.TempFile("", path)
	if err != nil {
		return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	defer t.Cleanup()

	w := bufio.NewWriter(t)
	if err := writeNPYHeader(w, len(rows), cols); err != nil {
		return err
	}

	buf := make([]byte, 4)
	for i, row := range rows {
		if len(row) != cols {
			return qerrors.ConsistencyError(
				"matrix row %d has %d columns, expected %d", i, len(row), cols)
		}
		for _, v := range row {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := w.Write(buf); err != nil {
				return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
			}
		}
	}
	if err := w.Flush(); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}

	if err := t.CloseAtomicallyReplace(); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	return nil
}

// writeNPYHeader emits the magic, version, and the Python dict header
// padded so the data section starts on a 64-byte boundary.
func writeNPYHeader(w io.Writer, rows, cols int) error {
	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", rows, cols)

	// magic(6) + version(2) + headerlen(2) + header + '\n' aligned to 64.
	total := len(npyMagic) + 2 + len(header) + 1
	pad := (64 - total%64) % 64
	for i := 0; i < pad; i++ {
		header += " "
	}
	header += "\n"

	if _, err := w.Write(npyMagic); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(header)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	if _, err := io.WriteString(w, header); err != nil {
		return qerrors.Wrap(qerrors.ErrCodeBuildFailed, err)
	}
	return nil
}

// MatrixReader streams matrix rows from an .npy artifact in bounded
// batches, so the file-backed index never loads the full matrix.
type MatrixReader struct {
	f    *os.File
	br   *bufio.Reader
	Rows int
	Cols int

	rowsRead int
}

// OpenMatrix opens the artifact and parses the header. Missing files
// surface as missing-artifact errors; malformed headers as corruption.
func OpenMatrix(path string) (*MatrixReader, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, qerrors.New(qerrors.ErrCodeArtifactMissing,
				fmt.Sprintf("embedding matrix artifact %s is missing", path), err)
		}
		return nil, qerrors.Wrap(qerrors.ErrCodeArtifactCorrupt, err)
	}

	br := bufio.NewReaderSize(f, 1<<16)

	head := make([]byte, len(npyMagic))
	if _, err := io.ReadFull(br, head); err != nil {
		f.Close()
		return nil, qerrors.Newf(qerrors.ErrCodeArtifactCorrupt,
			"artifact %s: truncated npy header", path)
	}
	for i, b := range npyMagic {
		if head[i] != b {
			f.Close()
			return nil, qerrors.Newf(qerrors.ErrCodeArtifactCorrupt,
				"artifact %s is not an npy v1.0 file", path)
		}
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
		f.Close()
		return nil, qerrors.Newf(qerrors.ErrCodeArtifactCorrupt,
			"artifact %s: truncated npy header length", path)
	}
	headerLen := int(binary.LittleEndian.Uint16(lenBuf[:]))
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(br, header); err != nil {
		f.Close()
		return nil, qerrors.Newf(qerrors.ErrCodeArtifactCorrupt,
			"artifact %s: truncated npy header dict", path)
	}

	headerStr := string(header)
	if !npyDescrRe.MatchString(headerStr) {
		f.Close()
		return nil, qerrors.Newf(qerrors.ErrCodeArtifactCorrupt,
			"artifact %s: expected little-endian float32 dtype, header %q", path, headerStr)
	}
	if npyFortranRe.MatchString(headerStr) {
		f.Close()
		return nil, qerrors.Newf(qerrors.ErrCodeArtifactCorrupt,
			"artifact %s: fortran-ordered matrices are not supported", path)
	}

	m := npyShapeRe.FindStringSubmatch(headerStr)
	if m == nil {
		f.Close()
		return nil, qerrors.Newf(qerrors.ErrCodeArtifactCorrupt,
			"artifact %s: cannot parse matrix shape from header %q", path, headerStr)
	}
	var rows, cols int
	fmt.Sscanf(m[1], "%d", &rows)
	fmt.Sscanf(m[2], "%d", &cols)

	return &MatrixReader{f: f, br: br, Rows: rows, Cols: cols}, nil
}

// ReadBatch reads up to maxRows rows. Returns io.EOF once all rows have
// been consumed.
func (r *MatrixReader) ReadBatch(maxRows int) ([][]float32, error) {
	if r.rowsRead >= r.Rows {
		return nil, io.EOF
	}
	if maxRows < 1 {
		maxRows = 1
	}
	n := r.Rows - r.rowsRead
	if n > maxRows {
		n = maxRows
	}

	raw := make([]byte, n*r.Cols*4)
	if _, err := io.ReadFull(r.br, raw); err != nil {
		return nil, qerrors.Newf(qerrors.ErrCodeArtifactCorrupt,
			"embedding matrix truncated after %d of %d rows", r.rowsRead, r.Rows)
	}

	batch := make([][]float32, n)
	for i := 0; i < n; i++ {
		row := make([]float32, r.Cols)
		base := i * r.Cols * 4
		for j := 0; j < r.Cols; j++ {
			bits := binary.LittleEndian.Uint32(raw[base+j*4:])
			row[j] = math.Float32frombits(bits)
		}
		batch[i] = row
	}

	r.rowsRead += n
	return batch, nil
}

// Close releases the underlying file.
func (r *MatrixReader) Close() error {
	return r.f.Close()
}

// ReadMatrix loads the whole matrix. Used by the in-memory variant,
// which is size-capped at build time.
func ReadMatrix(path string) ([][]float32, int, error) {
	r, err := OpenMatrix(path)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	rows := make([][]float32, 0, r.Rows)
	for {
		batch, err := r.ReadBatch(4096)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
		rows = append(rows, batch...)
	}
	return rows, r.Cols, nil
}
