package source

import (
	"context"
	"io"

	"unisaved/internal/domain"
)

// Source defines the interface for saved-item platforms. Implementations
// fetch candidate records; they never touch persistent state themselves.
type Source interface {
	// Name returns the unique identifier for this source.
	// Parameters: none.
	// Returns:
	//   - string: stable source identifier (e.g. "raindrop").
	Name() string

	// DisplayName returns a human-readable name for this source.
	// Parameters: none.
	// Returns:
	//   - string: display-friendly source name.
	DisplayName() string

	// ValidateCredentials checks that credentials/access are configured and
	// usable.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	// Returns:
	//   - ok: true when the source can be fetched with the current credentials.
	//   - message: human-readable detail (authenticated identity or failure reason).
	ValidateCredentials(ctx context.Context) (ok bool, message string)

	// Fetch opens the candidate record stream for this source's full visible
	// window. There is no incremental cursor: every run re-fetches the window
	// and relies on the caller's duplicate index to make known records a
	// no-op. force is adapter-defined and may request the maximum retrievable
	// window instead of a smaller default.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - force: adapter-defined full-window hint.
	// Returns:
	//   - RecordStream: lazy record sequence.
	//   - error: non-nil only when the feed cannot be opened at all.
	Fetch(ctx context.Context, force bool) (RecordStream, error)
}

// IndexSourcer is implemented by sources that ingest into another source's
// namespace. The duplicate index is preloaded for the returned name instead
// of the source's own.
type IndexSourcer interface {
	IndexSource() string
}

// RecordStream yields candidate records lazily.
//
// Next returns (record, nil) for a good record, (nil, *domain.RecordError)
// for a soft per-record failure the caller should log and skip, io.EOF when
// the stream is exhausted, and any other error when the feed itself became
// unusable; the stream is dead after a non-soft error.
type RecordStream interface {
	Next(ctx context.Context) (*domain.ExternalRecord, error)
	Close() error
}

// sliceStream serves a fixed set of already-fetched results.
type sliceStream struct {
	results []StreamResult
	pos     int
}

// StreamResult is one position in a buffered stream: either a record or a
// soft per-record error.
type StreamResult struct {
	Record  *domain.ExternalRecord
	SoftErr *domain.RecordError
}

// NewSliceStream wraps pre-fetched results as a RecordStream. Adapters that
// must materialize their feed up front (subprocess output, CSV imports) use
// this instead of implementing their own cursor.
func NewSliceStream(results []StreamResult) RecordStream {
	return &sliceStream{results: results}
}

func (s *sliceStream) Next(ctx context.Context) (*domain.ExternalRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.results) {
		return nil, io.EOF
	}
	r := s.results[s.pos]
	s.pos++
	if r.SoftErr != nil {
		return nil, r.SoftErr
	}
	return r.Record, nil
}

func (s *sliceStream) Close() error {
	return nil
}
