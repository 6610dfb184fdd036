package core

import (
	"context"
	"encoding/binary"
	"hash/crc64"
	"io"

	"github.com/pkg/errors"

	"assetsync/internal/bufpool"
	apperrors "assetsync/internal/errors"
	"assetsync/internal/logger"
	"assetsync/internal/manifest"
)

// verifyBufferSize is the read size used while hashing.
const verifyBufferSize = 256 << 10

var (
	crcTable   = crc64.MakeTable(crc64.ECMA)
	verifyPool = bufpool.New(verifyBufferSize)
)

// Verifier hashes streams with CRC-64 and compares them with manifest hashes.
type Verifier struct {
	log     logger.Logger
	metrics Metrics
}

// NewVerifier returns a Verifier logging mismatches to log.
func NewVerifier(log logger.Logger, m Metrics) *Verifier {
	if m == nil {
		m = noopMetrics{}
	}
	return &Verifier{log: log, metrics: m}
}

// Verify reads r to EOF and reports whether its digest equals expected in
// either byte order. onBytesRead receives each chunk length as it is read;
// on mismatch or failure it receives the negated total, so an observer's
// counter returns to where it started. A mismatch is not an error.
func (v *Verifier) Verify(ctx context.Context, r io.Reader, expected manifest.Hash, onBytesRead func(int64)) (bool, error) {
	report := func(n int64) {
		if onBytesRead != nil && n != 0 {
			onBytesRead(n)
		}
	}

	buf := verifyPool.Get()
	defer verifyPool.Put(buf)

	h := crc64.New(crcTable)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			report(-total)
			return false, err
		}
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
			report(int64(n))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			report(-total)
			return false, apperrors.IOError(apperrors.CodeIOGeneric, "failed to read data for checksum", err).
				WithField(apperrors.FieldPhase, string(apperrors.PhaseVerify))
		}
	}

	var actual manifest.Hash
	binary.BigEndian.PutUint64(actual[:], h.Sum64())
	v.metrics.AddBytesVerified(total)

	if actual == expected || actual.Reversed() == expected {
		v.metrics.VerifyResult(true)
		return true, nil
	}

	v.metrics.VerifyResult(false)
	v.log.ErrorContext(ctx, "checksum mismatch",
		logger.String("expected", expected.Hex()),
		logger.String("actual", actual.Hex()),
		logger.Int64("bytes", total),
	)
	report(-total)
	return false, nil
}

// Checksum returns the manifest hash of everything readable from r.
func Checksum(r io.Reader) (manifest.Hash, error) {
	h := crc64.New(crcTable)
	buf := verifyPool.Get()
	defer verifyPool.Put(buf)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return manifest.Hash{}, errors.Wrap(err, "failed to read data for checksum")
	}
	return manifest.HashFromUint64(h.Sum64()), nil
}
