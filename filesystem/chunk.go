package filesystem

import "io"

// Chunk is a single piece of a file's content as produced by a
// ContentStream's reader. All chunks belonging to one stream share the
// same TotalChunks count and the metadata reported by the owning
// ContentStream.
type Chunk struct {
	// Bytes is the chunk's content.
	Bytes []byte
	// ChunkIndex is this chunk's zero-based position within the stream.
	ChunkIndex int
	// TotalChunks is the total number of chunks the stream will yield.
	TotalChunks int
	// ChunkHash is a digest of Bytes, using the same algorithm as the
	// owning file's ContentHash.
	ChunkHash string
}

// ChunkReader produces a finite, non-restartable lazy sequence of
// Chunks. Next returns io.EOF once every chunk has been produced; it
// must not be called again afterward.
type ChunkReader interface {
	// Next returns the next chunk in the stream, or io.EOF if the stream
	// is exhausted.
	Next() (Chunk, error)
}

// ContentStream bundles a file's metadata with a lazy chunk reader.
// Close must be called on every exit path (including after an error
// from Reader.Next) to release any underlying resources (open file
// handles, buffers). Close is idempotent.
type ContentStream struct {
	// Metadata is the metadata of the file being streamed.
	Metadata Metadata
	// Reader yields the stream's chunks.
	Reader ChunkReader
	// closer releases the stream's resources. It may be nil for streams
	// that hold no resources (e.g. purely in-memory streams).
	closer io.Closer
}

// NewContentStream constructs a ContentStream from metadata, a reader,
// and an optional closer.
func NewContentStream(metadata Metadata, reader ChunkReader, closer io.Closer) *ContentStream {
	return &ContentStream{Metadata: metadata, Reader: reader, closer: closer}
}

// Close releases the stream's resources. It is safe to call multiple
// times and safe to call with a nil closer.
func (s *ContentStream) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	closer := s.closer
	s.closer = nil
	return closer.Close()
}

// Drain reads every remaining chunk from the stream and concatenates
// their bytes. It is a convenience used by apply paths that need the
// full content rather than a streaming write (e.g. the in-memory
// adapter, or synthesizing content for small files).
func Drain(reader ChunkReader) ([]byte, error) {
	var buffer []byte
	for {
		chunk, err := reader.Next()
		if err == io.EOF {
			return buffer, nil
		} else if err != nil {
			return nil, err
		}
		buffer = append(buffer, chunk.Bytes...)
	}
}

// EmptyContentStream returns a ContentStream with zero-length content,
// used when synthesizing delete operations that still need to flow
// through the same applyFileChange(changeInfo, contentStream) signature
// as create/modify operations.
func EmptyContentStream(metadata Metadata) *ContentStream {
	return NewContentStream(metadata, &sliceChunkReader{chunks: nil}, nil)
}

// sliceChunkReader is a ChunkReader over a pre-computed slice of chunks,
// used by adapters that materialize content before streaming (the
// in-memory adapter) or by synthesized empty streams.
type sliceChunkReader struct {
	chunks []Chunk
	index  int
}

// NewSliceChunkReader constructs a ChunkReader over pre-chunked content.
func NewSliceChunkReader(chunks []Chunk) ChunkReader {
	return &sliceChunkReader{chunks: chunks}
}

// Next implements ChunkReader.Next.
func (r *sliceChunkReader) Next() (Chunk, error) {
	if r.index >= len(r.chunks) {
		return Chunk{}, io.EOF
	}
	chunk := r.chunks[r.index]
	r.index++
	return chunk, nil
}
