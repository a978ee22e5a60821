package core

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
)

// chunkSizeBytes is the ChunkSize that DiffParamsFor reports. Diff does not
// read it: go-bsdiff diffs the whole of newBytes in one pass.
const chunkSizeBytes = 100 * 1024 * 1024

// parallelScanThreshold is the newBytes size above which DiffParamsFor
// recommends more scan units.
const parallelScanThreshold = 100 * 1024 * 1024

// DiffParams configures a Diff invocation.
type DiffParams struct {
	// ParallelScanUnits is the recommended worker-pool fan-out for running
	// this diff; it is advisory, go-bsdiff's suffix sort itself runs on a
	// single goroutine.
	ParallelScanUnits int
	// ChunkSize is reported alongside ParallelScanUnits; Diff ignores it and
	// buffers newBytes whole.
	ChunkSize int
}

// DiffParamsFor derives the (parallel_scan_units, chunk_size) policy from
// the size of the new build: large builds get more parallel scan units so
// the surrounding scheduler can fan the work out, small ones run with one.
func DiffParamsFor(newBytesLen int) DiffParams {
	units := 1
	if newBytesLen > parallelScanThreshold {
		units = 4
	}
	return DiffParams{
		ParallelScanUnits: units,
		ChunkSize:         chunkSizeBytes,
	}
}

// Diff writes a binary delta from oldBytes to newBytes to w. Both inputs
// MUST be the fully decompressed build bytes; compressing the resulting
// delta is the caller's responsibility.
func Diff(oldBytes, newBytes []byte, w io.Writer, params DiffParams) error {
	if err := bsdiff.Reader(bytes.NewReader(oldBytes), bytes.NewReader(newBytes), w); err != nil {
		return fmt.Errorf("compute binary diff: %w", err)
	}
	return nil
}

// ApplyPatch reconstructs the new build bytes by applying patch (read to
// completion) against old. The returned Reader is backed by the fully
// materialized result; go-bsdiff's patch format requires random-access
// writes to reconstruct the target; it cannot be streamed out incrementally.
func ApplyPatch(old []byte, patch io.Reader) (io.Reader, error) {
	patchBytes, err := io.ReadAll(patch)
	if err != nil {
		return nil, fmt.Errorf("read patch: %w", err)
	}
	newBytes, err := bspatch.Bytes(old, patchBytes)
	if err != nil {
		return nil, fmt.Errorf("apply binary patch: %w", err)
	}
	return bytes.NewReader(newBytes), nil
}
