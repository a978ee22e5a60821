package core

import (
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/klauspost/compress/zstd"
)

// compressionLevelVar is the environment variable that overrides the
// default zstd compression level.
const compressionLevelVar = "ARTEFACTA_COMPRESSION_LEVEL"

// DefaultCompressionLevel is used in production when the environment
// override is absent or unparsable.
const DefaultCompressionLevel = 1

// TestCompressionLevel is the higher level the test suites compress their
// fixture builds with.
const TestCompressionLevel = 10

// CompressionLevel resolves the active zstd level from the environment,
// falling back to fallback (DefaultCompressionLevel in the Index, the
// configured level in add-package) when the variable is unset, and with a
// logged warning when it does not parse.
func CompressionLevel(fallback int, logger *slog.Logger) int {
	raw, ok := os.LookupEnv(compressionLevelVar)
	if !ok {
		return fallback
	}
	level, err := strconv.Atoi(raw)
	if err != nil {
		if logger != nil {
			logger.Warn("can't parse compression level, using default", "var", compressionLevelVar, "value", raw, "error", err)
		}
		return fallback
	}
	return level
}

// EncoderWriteCloser is a streamed compressed byte sink. Callers MUST call
// Close to flush the final frame. Compress returns the concrete
// *zstd.Encoder, which satisfies this interface.
type EncoderWriteCloser interface {
	io.WriteCloser
}

// Compress wraps w in a zstd encoder at the given level. Re-encoding equal
// inputs with an equal level yields byte-identical output, which is what
// makes Packager archives reproducible once piped through Compress.
func Compress(w io.Writer, level int) (*zstd.Encoder, error) {
	return zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
}

// Decompress reads r as a zstd stream to completion and returns the
// decompressed payload.
func Decompress(r io.Reader) ([]byte, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}
