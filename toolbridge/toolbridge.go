// Package toolbridge forwards the LLM-facing tool operations named in
// spec.md §6 (read_file, write_file, list_files, delete_item,
// create_directory, stat) to the primary target's FileSystem. It is
// the adapter boundary between the synchronization core and whatever
// tool-invocation layer drives it; the core's only obligation here is
// the schema and forwarding behavior described in §6.
package toolbridge

import (
	"fmt"

	"github.com/mrsimpson/piddie-sub002/filesystem"
	"github.com/mrsimpson/piddie-sub002/synchronization"
	"github.com/mrsimpson/piddie-sub002/synchronization/core"
)

// Server forwards tool calls to a FileSyncManager's primary target.
type Server struct {
	manager *synchronization.FileSyncManager
}

// NewServer creates a Server bound to manager. The primary target is
// resolved lazily on each call, so a Server created before a primary
// is registered remains valid.
func NewServer(manager *synchronization.FileSyncManager) *Server {
	return &Server{manager: manager}
}

func (s *Server) primary() (*synchronization.SyncTarget, error) {
	primary := s.manager.Primary()
	if primary == nil {
		return nil, core.ErrNoPrimaryTarget
	}
	return primary, nil
}

// ReadFileRequest is the schema for read_file.
type ReadFileRequest struct {
	// Path is a root-relative path.
	Path string
}

func (r *ReadFileRequest) ensureValid() error {
	if r.Path == "" {
		return fmt.Errorf("path must be non-empty")
	}
	return nil
}

// ReadFileResponse is the schema for read_file's result.
type ReadFileResponse struct {
	// Content is the file's full UTF-8 content.
	Content string
}

// ReadFile forwards read_file to the primary's FileSystem.
func (s *Server) ReadFile(request *ReadFileRequest) (*ReadFileResponse, error) {
	if err := request.ensureValid(); err != nil {
		return nil, fmt.Errorf("invalid read_file request: %w", err)
	}
	primary, err := s.primary()
	if err != nil {
		return nil, err
	}

	stream, err := primary.GetFileContent(request.Path)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	content, err := filesystem.Drain(stream.Reader)
	if err != nil {
		return nil, err
	}
	return &ReadFileResponse{Content: string(content)}, nil
}

// WriteFileRequest is the schema for write_file.
type WriteFileRequest struct {
	// Path is a root-relative path.
	Path string
	// Content is the file's full UTF-8 content.
	Content string
}

func (r *WriteFileRequest) ensureValid() error {
	if r.Path == "" {
		return fmt.Errorf("path must be non-empty")
	}
	return nil
}

// WriteFile forwards write_file to the primary's FileSystem. The write
// is an external (non-sync) operation, so it is rejected if the
// primary currently holds its lock in either mode, per spec.md §5.
func (s *Server) WriteFile(request *WriteFileRequest) error {
	if err := request.ensureValid(); err != nil {
		return fmt.Errorf("invalid write_file request: %w", err)
	}
	primary, err := s.primary()
	if err != nil {
		return err
	}
	return primary.WriteExternalFile(request.Path, []byte(request.Content))
}

// ListFilesRequest is the schema for list_files.
type ListFilesRequest struct {
	// Path is a root-relative directory path.
	Path string
}

// ListFilesResponse is the schema for list_files's result.
type ListFilesResponse struct {
	Items []filesystem.Item
}

// ListFiles forwards list_files to the primary's FileSystem.
func (s *Server) ListFiles(request *ListFilesRequest) (*ListFilesResponse, error) {
	primary, err := s.primary()
	if err != nil {
		return nil, err
	}
	path := request.Path
	if path == "" {
		path = "/"
	}
	items, err := primary.ListDirectory(path)
	if err != nil {
		return nil, err
	}
	return &ListFilesResponse{Items: items}, nil
}

// DeleteItemRequest is the schema for delete_item.
type DeleteItemRequest struct {
	// Path is a root-relative path.
	Path string
	// Recursive allows deleting a non-empty directory.
	Recursive bool
}

func (r *DeleteItemRequest) ensureValid() error {
	if r.Path == "" {
		return fmt.Errorf("path must be non-empty")
	}
	return nil
}

// DeleteItem forwards delete_item to the primary's FileSystem.
func (s *Server) DeleteItem(request *DeleteItemRequest) error {
	if err := request.ensureValid(); err != nil {
		return fmt.Errorf("invalid delete_item request: %w", err)
	}
	primary, err := s.primary()
	if err != nil {
		return err
	}
	return primary.DeleteExternalItem(request.Path, request.Recursive)
}

// CreateDirectoryRequest is the schema for create_directory.
type CreateDirectoryRequest struct {
	// Path is a root-relative path.
	Path string
	// Recursive creates missing parent directories.
	Recursive bool
}

func (r *CreateDirectoryRequest) ensureValid() error {
	if r.Path == "" {
		return fmt.Errorf("path must be non-empty")
	}
	return nil
}

// CreateDirectory forwards create_directory to the primary's
// FileSystem.
func (s *Server) CreateDirectory(request *CreateDirectoryRequest) error {
	if err := request.ensureValid(); err != nil {
		return fmt.Errorf("invalid create_directory request: %w", err)
	}
	primary, err := s.primary()
	if err != nil {
		return err
	}
	return primary.CreateExternalDirectory(request.Path, request.Recursive)
}

// StatRequest is the schema for stat.
type StatRequest struct {
	// Path is a root-relative path.
	Path string
}

// StatResponse is the schema for stat's result.
type StatResponse struct {
	Metadata filesystem.Metadata
}

// Stat forwards stat to the primary's FileSystem.
func (s *Server) Stat(request *StatRequest) (*StatResponse, error) {
	primary, err := s.primary()
	if err != nil {
		return nil, err
	}
	metadata, err := primary.GetMetadata([]string{request.Path})
	if err != nil {
		return nil, err
	}
	return &StatResponse{Metadata: metadata[0]}, nil
}
