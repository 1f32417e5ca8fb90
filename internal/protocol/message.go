package protocol

import (
	"encoding/gob"
	"fmt"
)

func init() {
	// Register every payload type for gob encoding/decoding.
	// Without this, Message.Payload (an interface) won't deserialize.
	gob.Register(RegisterRequest{})
	gob.Register(RegisterResponse{})
	gob.Register(FileListRequest{})
	gob.Register(FileListResponse{})
	gob.Register(FileLocationsRequest{})
	gob.Register(FileLocationsResponse{})
	gob.Register(ChunkRegisterRequest{})
	gob.Register(ChunkRegisterResponse{})
	gob.Register(ChunkDownloadRequest{})
	gob.Register(ChunkDownloadResponse{})
	gob.Register(ErrorResponse{})
}

// Kind tags each request/response pair.
type Kind uint8

const (
	KindRegister Kind = iota + 1
	KindFileList
	KindFileLocations
	KindChunkRegister
	KindChunkDownload
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "REGISTER"
	case KindFileList:
		return "FILE_LIST"
	case KindFileLocations:
		return "FILE_LOCATIONS"
	case KindChunkRegister:
		return "CHUNK_REGISTER"
	case KindChunkDownload:
		return "CHUNK_DOWNLOAD"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// Message is the envelope for every exchange. A response echoes the ID of
// the request it answers.
type Message struct {
	ID      string
	Payload any
}

// Request is implemented only by the request payloads below.
type Request interface {
	Kind() Kind
	isRequest()
}

// Response is implemented only by the response payloads below.
type Response interface {
	Kind() Kind
	Result() Status
}

// -------- REGISTER --------

type RegisterRequest struct {
	Endpoint Endpoint
	Files    []FileManifest
}

// RegisterResponse lists files whose manifest disagreed with the one the
// tracker already holds. Those records were left unchanged.
type RegisterResponse struct {
	Status    Status
	Conflicts []string
}

// -------- FILE_LIST --------

// FileListRequest optionally filters names with a path.Match pattern.
type FileListRequest struct {
	Pattern string
}

type FileListResponse struct {
	Status Status
	Files  []FileInfo
}

// -------- FILE_LOCATIONS --------

type FileLocationsRequest struct {
	FileName string
}

type FileLocationsResponse struct {
	Status    Status
	Endpoints AvailabilityMap
	Algorithm string
	Hashes    []string
	Length    int64
}

// -------- CHUNK_REGISTER --------

type ChunkRegisterRequest struct {
	Endpoint Endpoint
	FileName string
	Chunk    int
}

type ChunkRegisterResponse struct {
	Status Status
}

// -------- CHUNK_DOWNLOAD --------

type ChunkDownloadRequest struct {
	FileName string
	Chunk    int
}

type ChunkDownloadResponse struct {
	Status Status
	Data   []byte
}

// ErrorResponse answers a request that could not be decoded at all.
type ErrorResponse struct {
	Status Status
}

func (RegisterRequest) Kind() Kind      { return KindRegister }
func (FileListRequest) Kind() Kind      { return KindFileList }
func (FileLocationsRequest) Kind() Kind { return KindFileLocations }
func (ChunkRegisterRequest) Kind() Kind { return KindChunkRegister }
func (ChunkDownloadRequest) Kind() Kind { return KindChunkDownload }

func (RegisterRequest) isRequest()      {}
func (FileListRequest) isRequest()      {}
func (FileLocationsRequest) isRequest() {}
func (ChunkRegisterRequest) isRequest() {}
func (ChunkDownloadRequest) isRequest() {}

func (RegisterResponse) Kind() Kind      { return KindRegister }
func (FileListResponse) Kind() Kind      { return KindFileList }
func (FileLocationsResponse) Kind() Kind { return KindFileLocations }
func (ChunkRegisterResponse) Kind() Kind { return KindChunkRegister }
func (ChunkDownloadResponse) Kind() Kind { return KindChunkDownload }
func (ErrorResponse) Kind() Kind         { return 0 }

func (r RegisterResponse) Result() Status      { return r.Status }
func (r FileListResponse) Result() Status      { return r.Status }
func (r FileLocationsResponse) Result() Status { return r.Status }
func (r ChunkRegisterResponse) Result() Status { return r.Status }
func (r ChunkDownloadResponse) Result() Status { return r.Status }
func (r ErrorResponse) Result() Status         { return r.Status }

// FailedResponse builds the response of the request's kind carrying err.
func FailedResponse(req Request, err error) Response {
	st := Failure(err)
	switch req.(type) {
	case RegisterRequest:
		return RegisterResponse{Status: st}
	case FileListRequest:
		return FileListResponse{Status: st}
	case FileLocationsRequest:
		return FileLocationsResponse{Status: st}
	case ChunkRegisterRequest:
		return ChunkRegisterResponse{Status: st}
	case ChunkDownloadRequest:
		return ChunkDownloadResponse{Status: st}
	default:
		return ErrorResponse{Status: st}
	}
}
