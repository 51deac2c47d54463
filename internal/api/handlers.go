package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/fiapx/fiapx-frame-extractor/internal/domain/entity"
	"github.com/fiapx/fiapx-frame-extractor/internal/domain/port"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	multipartMemory = 32 << 20
	defaultJobLimit = 20
	maxJobLimit     = 200
)

type Extractor interface {
	Submit(ctx context.Context, video entity.Video) (<-chan entity.Job, bool)
	ResetAll() bool
	Snapshot() entity.Job
}

type Exporter interface {
	InProgress() bool
	ExportAll(ctx context.Context, frames []entity.Frame) ([]byte, error)
	ExportOne(frame entity.Frame) (string, []byte, error)
}

type EngineStatus interface {
	State() (entity.EngineState, error)
}

// Server holds the handlers' collaborators. Source and Jobs are optional;
// their endpoints answer 404 when unset.
type Server struct {
	Engine         EngineStatus
	Extractor      Extractor
	Exporter       Exporter
	Frames         port.FrameStore
	Source         port.VideoSource
	Jobs           port.JobRepository
	MaxUploadBytes int64

	logger *zap.Logger
}

func NewServer(s Server, logger *zap.Logger) *Server {
	s.logger = logger
	return &s
}

func (s *Server) StateHandler(w http.ResponseWriter, r *http.Request) {
	state, engineErr := s.Engine.State()
	resp := stateResponse{
		Engine:         engineDTO{State: state},
		Job:            newJobDTO(s.Extractor.Snapshot()),
		Frames:         []frameDTO{},
		Exporting:      s.Exporter.InProgress(),
		MaxUploadBytes: s.MaxUploadBytes,
	}
	if engineErr != nil {
		resp.Engine.Error = engineErr.Error()
	}
	for _, frame := range s.Frames.List() {
		resp.Frames = append(resp.Frames, newFrameDTO(frame))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing video file")
		return
	}
	defer file.Close()

	video := entity.Video{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Source:      entity.JobSourceUpload,
	}
	if err := video.Validate(); err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	if header.Size > s.MaxUploadBytes && s.MaxUploadBytes > 0 {
		s.logger.Warn("upload exceeds advisory size limit",
			zap.String("video", video.Name),
			zap.Int64("bytes", header.Size),
			zap.Int64("max_bytes", s.MaxUploadBytes),
		)
	}

	video.Data, err = io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read video file")
		return
	}

	s.submit(w, r, video)
}

func (s *Server) StorageExtractionHandler(w http.ResponseWriter, r *http.Request) {
	if s.Source == nil {
		writeError(w, http.StatusNotFound, "object storage is not enabled")
		return
	}

	var req storageExtractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VideoKey == "" {
		writeError(w, http.StatusBadRequest, "video_key is required")
		return
	}

	data, contentType, err := s.Source.DownloadVideo(r.Context(), req.VideoKey)
	if err != nil {
		s.logger.Error("failed to download video", zap.String("video_key", req.VideoKey), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to download video")
		return
	}

	video := entity.Video{
		Name:        path.Base(req.VideoKey),
		ContentType: contentType,
		Data:        data,
		Source:      entity.JobSourceStorage,
	}
	if err := video.Validate(); err != nil {
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}

	s.submit(w, r, video)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, video entity.Video) {
	if state, err := s.Engine.State(); state == entity.EngineStateFailed {
		msg := "processing engine failed to load"
		if err != nil {
			msg = err.Error()
		}
		writeError(w, http.StatusServiceUnavailable, msg)
		return
	}
	_, accepted := s.Extractor.Submit(r.Context(), video)
	writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: accepted})
}

func (s *Server) ResetHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, acceptedResponse{Accepted: s.Extractor.ResetAll()})
}

func (s *Server) DownloadFrameHandler(w http.ResponseWriter, r *http.Request) {
	ordinal, err := strconv.Atoi(chi.URLParam(r, "ordinal"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid frame ordinal")
		return
	}

	frame, err := s.Frames.Lookup(ordinal)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	name, data, err := s.Exporter.ExportOne(frame)
	if err != nil {
		s.writeFetchError(w, err)
		return
	}
	writeAttachment(w, name, frame.ContentType, data)
}

func (s *Server) ResourceHandler(w http.ResponseWriter, r *http.Request) {
	data, err := s.Frames.Fetch(chi.URLParam(r, "handle"))
	if err != nil {
		s.writeFetchError(w, err)
		return
	}
	w.Header().Set("Content-Type", entity.FrameContentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) ArchiveHandler(w http.ResponseWriter, r *http.Request) {
	data, err := s.Exporter.ExportAll(r.Context(), s.Frames.List())
	switch {
	case errors.Is(err, entity.ErrNoFrames), errors.Is(err, entity.ErrExportInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.logger.Error("archive export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeAttachment(w, entity.ArchiveName, "application/zip", data)
}

func (s *Server) JobHandler(w http.ResponseWriter, r *http.Request) {
	if s.Jobs == nil {
		writeError(w, http.StatusNotFound, "job history is not enabled")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := s.Jobs.FindByID(r.Context(), id)
	if errors.Is(err, entity.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("failed to load job", zap.String("job_id", id.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, newJobDTO(*job))
}

func (s *Server) JobListHandler(w http.ResponseWriter, r *http.Request) {
	if s.Jobs == nil {
		writeError(w, http.StatusNotFound, "job history is not enabled")
		return
	}

	limit := defaultJobLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxJobLimit)
	}

	jobs, err := s.Jobs.ListRecent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list jobs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	resp := make([]jobDTO, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, newJobDTO(job))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeFetchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrResourceRevoked):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, entity.ErrResourceNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("failed to fetch frame", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
