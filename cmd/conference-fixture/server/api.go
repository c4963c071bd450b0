package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pion/webrtc/v4"

	"github.com/thesyncim/confdrive/pkg/mediastate"
	"github.com/thesyncim/confdrive/pkg/roomapi"
)

const maxBody = 1 << 20

func (s *Server) addAPIRoutes(r *mux.Router) {
	r.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	r.HandleFunc("/Room/{id}", s.getRoom).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", requireUser(s.listRooms)).Methods(http.MethodGet)
	api.HandleFunc("/rooms", requireUser(s.createRoom)).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}", requireUser(s.updateRoom)).Methods(http.MethodPatch)
	api.HandleFunc("/rooms/{id}", requireUser(s.deleteRoom)).Methods(http.MethodDelete)
	api.HandleFunc("/rooms/{id}/lock", requireUser(s.lockRoom(true))).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/unlock", requireUser(s.lockRoom(false))).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/join", s.joinRoom).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/participants", s.listParticipants).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{id}/participants/{pid}", s.renameParticipant).Methods(http.MethodPatch)
	api.HandleFunc("/rooms/{id}/participants/{pid}", s.leaveRoom).Methods(http.MethodDelete)
	api.HandleFunc("/rooms/{id}/participants/{pid}/media", s.setMedia).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{id}/rtc/{pid}/offer", s.offer).Methods(http.MethodPost)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(v); err != nil {
		return errors.Join(ErrInvalid, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps store errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, ErrLocked):
		code = http.StatusLocked
	case errors.Is(err, ErrInvalid):
		code = http.StatusBadRequest
	default:
		s.log.Error(err, "request failed", "method", r.Method, "path", r.URL.Path)
	}
	http.Error(w, err.Error(), code)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &creds); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !s.store.CheckUser(creds.Email, creds.Password) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	token, err := s.issueToken(creds.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.V(1).Info("logged in", "email", creds.Email)
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.store.Room(mux.Vars(r)["id"], userFrom(r.Context()), r.URL.Query().Get("password"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Rooms(userFrom(r.Context())))
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title      string             `json:"title"`
		ViewPolicy roomapi.ViewPolicy `json:"view_policy"`
		Password   string             `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	room, err := s.store.CreateRoom(userFrom(r.Context()), req.Title, req.ViewPolicy, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.roomsCreated.Inc()
	s.log.Info("room created", "room", room.ID, "title", room.Title, "policy", room.ViewPolicy)
	writeJSON(w, http.StatusCreated, room)
}

func (s *Server) updateRoom(w http.ResponseWriter, r *http.Request) {
	var patch RoomPatch
	if err := decode(r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	room, err := s.store.UpdateRoom(mux.Vars(r)["id"], userFrom(r.Context()), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (s *Server) deleteRoom(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pids, err := s.store.DeleteRoom(id, userFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for _, pid := range pids {
		s.media.Close(pid)
	}
	s.log.Info("room deleted", "room", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lockRoom(locked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := s.store.SetLocked(mux.Vars(r)["id"], userFrom(r.Context()), locked)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.log.Info("room lock changed", "room", room.ID, "locked", locked)
		writeJSON(w, http.StatusOK, room)
	}
}

type joinResponse struct {
	Participant Participant  `json:"participant"`
	Room        roomapi.Room `json:"room"`
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, room, err := s.store.Join(mux.Vars(r)["id"], userFrom(r.Context()), req.Name, req.Password)
	switch {
	case errors.Is(err, ErrLocked):
		s.metrics.joins.WithLabelValues("locked").Inc()
	case errors.Is(err, ErrForbidden):
		s.metrics.joins.WithLabelValues("forbidden").Inc()
	case err == nil:
		s.metrics.joins.WithLabelValues("ok").Inc()
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.V(1).Info("joined", "room", room.ID, "participant", p.ID, "owner", p.Owner)
	writeJSON(w, http.StatusOK, joinResponse{Participant: p, Room: room})
}

func (s *Server) listParticipants(w http.ResponseWriter, r *http.Request) {
	remote, err := s.store.Remote(mux.Vars(r)["id"], r.URL.Query().Get("pid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	for i := range remote {
		remote[i].Packets = s.media.Packets(remote[i].ID)
	}
	writeJSON(w, http.StatusOK, remote)
}

func (s *Server) renameParticipant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	if err := s.store.Rename(vars["id"], vars["pid"], req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.store.Leave(vars["id"], vars["pid"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.media.Close(vars["pid"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setMedia(w http.ResponseWriter, r *http.Request) {
	var snap mediastate.Snapshot
	if err := decode(r, &snap); err != nil {
		s.writeError(w, r, err)
		return
	}
	vars := mux.Vars(r)
	if err := s.store.SetMedia(vars["id"], vars["pid"], snap); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !snap.Active() {
		s.media.Close(vars["pid"])
	}
	s.log.V(1).Info("media", "participant", vars["pid"], "video", snap.Video, "audio", snap.Audio, "screen", snap.Screen)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) offer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	p, err := s.store.Participant(vars["id"], vars["pid"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !p.CanPublish {
		s.writeError(w, r, ErrForbidden)
		return
	}
	var offer webrtc.SessionDescription
	if err := decode(r, &offer); err != nil {
		s.writeError(w, r, err)
		return
	}
	answer, err := s.media.Answer(r.Context(), p.ID, offer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
