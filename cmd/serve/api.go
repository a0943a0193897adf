package serve

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gigurra/mixdeck/cmd/mixer"
	"github.com/gigurra/mixdeck/cmd/mixer/backup"
	"github.com/gigurra/mixdeck/cmd/mixer/loader"
	"github.com/gigurra/mixdeck/cmd/mixer/mixutil"
	"github.com/gorilla/mux"
)

// uploadMemory is how much of a multipart upload is kept in memory before
// spilling to temporary files.
const uploadMemory = 32 << 20

// uploadOverhead is room for multipart headers and boundaries on top of the
// session's file size limit. All files in one request share the limit.
const uploadOverhead = 1 << 20

var errBadRequest = errors.New("bad request")

// Server exposes a session over HTTP.
type Server struct {
	session *mixer.Session
	hub     *Hub
	log     *slog.Logger
	now     func() time.Time
}

func NewServer(session *mixer.Session, hub *Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{session: session, hub: hub, log: log, now: time.Now}
}

// Handler returns the routed API, the control page and the event stream.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(logRequests)

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.hub.ServeWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	api.HandleFunc("/tracks", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/tracks/{id:[0-9]+}", s.handleRemoveTrack).Methods(http.MethodDelete)
	api.HandleFunc("/tracks/{id:[0-9]+}/{action:play|pause|stop|mute}", s.handleTrackAction).Methods(http.MethodPost)
	api.HandleFunc("/tracks/{id:[0-9]+}/volume", s.handleVolume).Methods(http.MethodPut)
	api.HandleFunc("/tracks/{id:[0-9]+}/loop", s.handleLoop).Methods(http.MethodPut)
	api.HandleFunc("/tracks/{id:[0-9]+}/group", s.handleTrackGroup).Methods(http.MethodPut)
	api.HandleFunc("/tracks/{id:[0-9]+}/seek", s.handleSeek).Methods(http.MethodPost)

	api.HandleFunc("/groups", s.handleCreateGroup).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id:[0-9]+}", s.handleDeleteGroup).Methods(http.MethodDelete)
	api.HandleFunc("/groups/{id:[0-9]+}/{action:play|pause|stop|mute|collapse}", s.handleGroupAction).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id:[0-9]+}/playlist/{mode:continuous|loop}", s.handleStartPlaylist).Methods(http.MethodPost)
	api.HandleFunc("/groups/{id:[0-9]+}/playlist", s.handleStopPlaylist).Methods(http.MethodDelete)

	api.HandleFunc("/all/{action:play|pause|stop|toggle|reset-volumes}", s.handleAll).Methods(http.MethodPost)
	api.HandleFunc("/master", s.handleMaster).Methods(http.MethodPut)

	api.HandleFunc("/backup", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/backup", s.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/backup/status", s.handleBackupStatus).Methods(http.MethodGet)
	api.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// statusFor maps mixer errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mixer.ErrTrackNotFound), errors.Is(err, mixer.ErrGroupNotFound):
		return http.StatusNotFound
	case errors.Is(err, mixer.ErrInvalidFileType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, mixer.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, mixer.ErrEmptyGroupName), errors.Is(err, backup.ErrInvalidFormat), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, mixer.ErrEmptyGroup), errors.Is(err, mixer.ErrNoTracksLoaded), errors.Is(err, mixer.ErrImportAborted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error   string           `json:"error"`
	Missing []backup.Missing `json:"missing,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, mux.Vars(r)["id"])
	}
	return id, nil
}

func readBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Stats())
}

type uploadResponse struct {
	Tracks []mixer.TrackState `json:"tracks"`
	Errors []string           `json:"errors,omitempty"`
}

// handleUpload adds every file in the "file" form field. The response is
// 201 when at least one file was added.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.session.MaxFileSize() + uploadOverhead
	if r.ContentLength > limit {
		writeError(w, uploadTooLarge(limit))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, uploadTooLarge(limit))
			return
		}
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["file"]
	if len(headers) == 0 {
		writeError(w, fmt.Errorf("%w: no files in field \"file\"", errBadRequest))
		return
	}

	resp := uploadResponse{Tracks: []mixer.TrackState{}}
	var firstErr error
	for _, fh := range headers {
		st, err := s.addUpload(fh)
		if err != nil {
			s.log.Warn("upload rejected", "name", fh.Filename, "error", err)
			resp.Errors = append(resp.Errors, err.Error())
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		resp.Tracks = append(resp.Tracks, st)
	}
	if len(resp.Tracks) == 0 {
		writeError(w, firstErr)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func uploadTooLarge(limit int64) error {
	return fmt.Errorf("%w: upload exceeds %s", mixer.ErrFileTooLarge, mixutil.FormatFileSize(limit))
}

func (s *Server) addUpload(fh *multipart.FileHeader) (mixer.TrackState, error) {
	f, err := fh.Open()
	if err != nil {
		return mixer.TrackState{}, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := io.ReadFull(f, head)
	head = head[:n]

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = loader.DetectMIME(fh.Filename, head)
	}
	file := mixer.FileInfo{Name: fh.Filename, Size: fh.Size, MIMEType: mimeType}
	if err := s.session.CheckFile(file); err != nil {
		return mixer.TrackState{}, err
	}

	rest, err := io.ReadAll(f)
	if err != nil {
		return mixer.TrackState{}, err
	}
	return s.session.AddTrack(file, append(head, rest...))
}

func (s *Server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.session.RemoveTrack(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeTrack(w http.ResponseWriter, id int) {
	st, err := s.session.Track(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleTrackAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	switch mux.Vars(r)["action"] {
	case "play":
		err = s.session.PlayTrack(r.Context(), id)
	case "pause":
		err = s.session.PauseTrack(id)
	case "stop":
		err = s.session.StopTrack(id)
	case "mute":
		_, err = s.session.ToggleMute(id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeTrack(w, id)
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Volume *int `json:"volume"`
	}
	if err := readBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Volume == nil {
		err = s.session.ResetVolume(id)
	} else {
		_, err = s.session.SetVolume(id, *body.Volume)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeTrack(w, id)
}

func (s *Server) handleLoop(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Loop bool `json:"loop"`
	}
	if err := readBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.session.SetLoop(id, body.Loop); err != nil {
		writeError(w, err)
		return
	}
	s.writeTrack(w, id)
}

func (s *Server) handleTrackGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		GroupID *int `json:"groupId"`
	}
	if err := readBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.session.SetTrackGroup(id, body.GroupID); err != nil {
		writeError(w, err)
		return
	}
	s.writeTrack(w, id)
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Fraction float64 `json:"fraction"`
	}
	if err := readBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if body.Fraction < 0 || body.Fraction > 1 {
		writeError(w, fmt.Errorf("%w: fraction %v outside [0, 1]", errBadRequest, body.Fraction))
		return
	}
	if err := s.session.SeekTrack(id, body.Fraction); err != nil {
		writeError(w, err)
		return
	}
	s.writeTrack(w, id)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := readBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	g, err := s.session.CreateGroup(body.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	released, err := s.session.DeleteGroup(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"released": released})
}

func (s *Server) handleGroupAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var n int
	switch mux.Vars(r)["action"] {
	case "play":
		n, err = s.session.PlayGroup(r.Context(), id)
	case "pause":
		n, err = s.session.PauseGroup(id)
	case "stop":
		n, err = s.session.StopGroup(id)
	case "mute":
		_, err = s.session.ToggleGroupMute(id)
	case "collapse":
		_, err = s.session.ToggleGroupCollapse(id)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	g, err := s.session.Group(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		mixer.GroupState
		Affected int `json:"affected"`
	}{g, n})
}

func (s *Server) handleStartPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	mode, err := mixer.ParsePlaylistMode(mux.Vars(r)["mode"])
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if err := s.session.StartPlaylist(r.Context(), id, mode); err != nil {
		writeError(w, err)
		return
	}
	g, err := s.session.Group(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleStopPlaylist(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.session.StopPlaylist(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	var (
		n       int
		started bool
		err     error
	)
	switch mux.Vars(r)["action"] {
	case "play":
		n, err = s.session.PlayAll(r.Context())
		started = true
	case "pause":
		n = s.session.PauseAll()
	case "stop":
		n = s.session.StopAll()
	case "toggle":
		started, n, err = s.session.ToggleAll(r.Context())
	case "reset-volumes":
		n = s.session.ResetAllVolumes()
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"affected": n, "started": started})
}

func (s *Server) handleMaster(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Volume int `json:"volume"`
	}
	if err := readBody(r, &body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"volume": s.session.SetMasterVolume(body.Volume)})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc := s.session.ExportBackup()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", backup.FileName(s.now())))
	if err := backup.Encode(w, doc); err != nil {
		s.log.Warn("failed to write backup", "error", err)
	}
}

// handleImport applies an uploaded backup. Unless force=true, a backup that
// references files that are not loaded is refused with 409 and the list of
// missing entries.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	doc, err := backup.Decode(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	report, err := s.session.ImportBackup(doc, mixer.ImportOptions{
		Source:  "upload",
		Confirm: func([]backup.Missing) bool { return force },
	})
	if errors.Is(err, mixer.ErrImportAborted) {
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Missing: report.Missing})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleBackupStatus(w http.ResponseWriter, r *http.Request) {
	info := s.session.BackupStatus()
	if info == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.session.FactoryReset()
	w.WriteHeader(http.StatusNoContent)
}
