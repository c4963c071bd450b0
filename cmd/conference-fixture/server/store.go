package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/thesyncim/confdrive/pkg/mediastate"
	"github.com/thesyncim/confdrive/pkg/roomapi"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	ErrLocked    = errors.New("room locked")
	ErrInvalid   = errors.New("invalid request")
)

// Participant is one joined client of a room.
type Participant struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	User       string              `json:"user,omitempty"`
	Owner      bool                `json:"owner"`
	CanPublish bool                `json:"canPublish"`
	Media      mediastate.Snapshot `json:"media"`
	// Visible is only set in the remote view of another participant.
	Visible bool `json:"visible"`
	// Packets counts RTP packets received from the participant.
	Packets uint64 `json:"packets"`
}

// RoomPatch holds the editable room fields. Nil fields are left alone.
type RoomPatch struct {
	Title             *string                `json:"title,omitempty"`
	ViewPolicy        *roomapi.ViewPolicy    `json:"view_policy,omitempty"`
	Password          *string                `json:"password,omitempty"`
	PublishPolicy     *roomapi.PublishPolicy `json:"rtcPublishPolicy,omitempty"`
	Layout            *roomapi.Layout        `json:"rtcLayout,omitempty"`
	MaxVideoConsumers *int                   `json:"rtcMaxVideoConsumers,omitempty"`
	AdminViewOnly     *bool                  `json:"rtcAdminViewOnly,omitempty"`
	ShowMediaSettings *bool                  `json:"rtcShowMediaSettings,omitempty"`
	Locked            *bool                  `json:"rtcLocked,omitempty"`
}

type room struct {
	roomapi.Room
	owner        string
	password     string
	participants []*Participant
}

func (r *room) participant(id string) (*Participant, error) {
	for _, p := range r.participants {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("participant %s: %w", id, ErrNotFound)
}

// Store keeps users, rooms and participants in memory.
type Store struct {
	mu    sync.Mutex
	users map[string]string
	rooms map[string]*room
	order []string
}

// NewStore returns a store with the given email to password accounts.
func NewStore(users map[string]string) *Store {
	s := &Store{
		users: make(map[string]string, len(users)),
		rooms: make(map[string]*room),
	}
	for email, password := range users {
		s.users[email] = password
	}
	return s
}

// CheckUser reports whether password belongs to email.
func (s *Store) CheckUser(email, password string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	want, ok := s.users[email]
	return ok && want == password
}

func (s *Store) room(id string) (*room, error) {
	r, ok := s.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (s *Store) ownedRoom(id, user string) (*room, error) {
	r, err := s.room(id)
	if err != nil {
		return nil, err
	}
	if user == "" || user != r.owner {
		return nil, fmt.Errorf("room %s is not owned by %q: %w", id, user, ErrForbidden)
	}
	return r, nil
}

// CreateRoom adds a room owned by owner. An empty policy means unlisted.
func (s *Store) CreateRoom(owner, title string, policy roomapi.ViewPolicy, password string) (roomapi.Room, error) {
	if title == "" {
		return roomapi.Room{}, fmt.Errorf("title is required: %w", ErrInvalid)
	}
	if policy == "" {
		policy = roomapi.Unlisted
	}
	if !policy.Valid() {
		return roomapi.Room{}, fmt.Errorf("view policy %q: %w", policy, ErrInvalid)
	}
	if policy == roomapi.Password && password == "" {
		return roomapi.Room{}, fmt.Errorf("password is required: %w", ErrInvalid)
	}

	r := &room{Room: roomapi.NewRoom(title), owner: owner}
	r.ID = uuid.NewString()
	r.ViewPolicy = policy
	if policy == roomapi.Password {
		r.password = password
		r.Auth = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.ID] = r
	s.order = append(s.order, r.ID)
	return r.Room, nil
}

// Room returns room id as seen by user. Password rooms need password
// unless user owns them.
func (s *Store) Room(id, user, password string) (roomapi.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.room(id)
	if err != nil {
		return roomapi.Room{}, err
	}
	if err := r.admit(user, password); err != nil {
		return roomapi.Room{}, err
	}
	return r.Room, nil
}

func (r *room) admit(user, password string) error {
	if r.password == "" || (user != "" && user == r.owner) || password == r.password {
		return nil
	}
	return fmt.Errorf("room %s: wrong password: %w", r.ID, ErrForbidden)
}

// Rooms lists the rooms owned by owner in creation order.
func (s *Store) Rooms(owner string) []roomapi.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := []roomapi.Room{}
	for _, id := range s.order {
		if r := s.rooms[id]; r.owner == owner {
			rooms = append(rooms, r.Room)
		}
	}
	return rooms
}

// UpdateRoom applies p to a room owned by user.
func (s *Store) UpdateRoom(id, user string, p RoomPatch) (roomapi.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.ownedRoom(id, user)
	if err != nil {
		return roomapi.Room{}, err
	}

	next := *r
	if p.Title != nil {
		if *p.Title == "" {
			return roomapi.Room{}, fmt.Errorf("title is required: %w", ErrInvalid)
		}
		next.Title = *p.Title
	}
	if p.ViewPolicy != nil {
		if !p.ViewPolicy.Valid() {
			return roomapi.Room{}, fmt.Errorf("view policy %q: %w", *p.ViewPolicy, ErrInvalid)
		}
		next.ViewPolicy = *p.ViewPolicy
	}
	if p.Password != nil {
		next.password = *p.Password
	}
	if next.ViewPolicy != roomapi.Password {
		next.password = ""
	} else if next.password == "" {
		return roomapi.Room{}, fmt.Errorf("password is required: %w", ErrInvalid)
	}
	next.Auth = next.password != ""
	if p.PublishPolicy != nil {
		if !p.PublishPolicy.Valid() {
			return roomapi.Room{}, fmt.Errorf("publish policy %q: %w", *p.PublishPolicy, ErrInvalid)
		}
		next.PublishPolicy = *p.PublishPolicy
	}
	if p.Layout != nil {
		if !p.Layout.Valid() {
			return roomapi.Room{}, fmt.Errorf("layout %q: %w", *p.Layout, ErrInvalid)
		}
		next.Layout = *p.Layout
	}
	if p.MaxVideoConsumers != nil {
		if *p.MaxVideoConsumers < 1 {
			return roomapi.Room{}, fmt.Errorf("max video consumers %d: %w", *p.MaxVideoConsumers, ErrInvalid)
		}
		next.MaxVideoConsumers = *p.MaxVideoConsumers
	}
	if p.AdminViewOnly != nil {
		next.AdminViewOnly = *p.AdminViewOnly
	}
	if p.ShowMediaSettings != nil {
		next.ShowMediaSettings = *p.ShowMediaSettings
	}
	if p.Locked != nil {
		next.Locked = *p.Locked
	}

	*r = next
	for _, part := range r.participants {
		part.CanPublish = r.canPublish(part.User)
	}
	return r.Room, nil
}

// DeleteRoom removes a room owned by user and returns the ids of the
// participants that were in it.
func (s *Store) DeleteRoom(id, user string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.ownedRoom(id, user)
	if err != nil {
		return nil, err
	}
	pids := make([]string, 0, len(r.participants))
	for _, p := range r.participants {
		pids = append(pids, p.ID)
	}
	delete(s.rooms, id)
	for i, rid := range s.order {
		if rid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return pids, nil
}

// SetLocked locks or unlocks a room owned by user.
func (s *Store) SetLocked(id, user string, locked bool) (roomapi.Room, error) {
	return s.UpdateRoom(id, user, RoomPatch{Locked: &locked})
}

func (r *room) canPublish(user string) bool {
	switch r.PublishPolicy {
	case roomapi.Login:
		return user != ""
	case roomapi.Owner:
		return user != "" && user == r.owner
	}
	return true
}

// Join adds a participant to room id. user is empty for guests.
func (s *Store) Join(id, user, name, password string) (Participant, roomapi.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.room(id)
	if err != nil {
		return Participant{}, roomapi.Room{}, err
	}
	if err := r.admit(user, password); err != nil {
		return Participant{}, roomapi.Room{}, err
	}
	owner := user != "" && user == r.owner
	if r.Locked && !owner {
		return Participant{}, roomapi.Room{}, fmt.Errorf("room %s: %w", id, ErrLocked)
	}
	if name == "" {
		name = user
	}
	p := &Participant{
		ID:         uuid.NewString(),
		Name:       name,
		User:       user,
		Owner:      owner,
		CanPublish: r.canPublish(user),
	}
	r.participants = append(r.participants, p)
	return *p, r.Room, nil
}

// Leave removes a participant.
func (s *Store) Leave(id, pid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.room(id)
	if err != nil {
		return err
	}
	for i, p := range r.participants {
		if p.ID == pid {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("participant %s: %w", pid, ErrNotFound)
}

// Rename sets the display name of a participant.
func (s *Store) Rename(id, pid, name string) error {
	if name == "" {
		return fmt.Errorf("name is required: %w", ErrInvalid)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.room(id)
	if err != nil {
		return err
	}
	p, err := r.participant(pid)
	if err != nil {
		return err
	}
	p.Name = name
	return nil
}

// SetMedia records what a participant publishes. Participants the publish
// policy excludes may only report every track stopped.
func (s *Store) SetMedia(id, pid string, media mediastate.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.room(id)
	if err != nil {
		return err
	}
	p, err := r.participant(pid)
	if err != nil {
		return err
	}
	if media.Active() && !p.CanPublish {
		return fmt.Errorf("participant %s may not publish: %w", pid, ErrForbidden)
	}
	p.Media = media
	return nil
}

// Participant returns one participant of room id.
func (s *Store) Participant(id, pid string) (Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.room(id)
	if err != nil {
		return Participant{}, err
	}
	p, err := r.participant(pid)
	if err != nil {
		return Participant{}, err
	}
	return *p, nil
}

// Remote returns the publishing participants that pid sees, in join
// order. With the full layout every publisher is visible; with the auto
// layout only the first MaxVideoConsumers are. With admin view only,
// participants other than the owner see only the owner.
func (s *Store) Remote(id, pid string) ([]Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.room(id)
	if err != nil {
		return nil, err
	}
	viewer, err := r.participant(pid)
	if err != nil {
		return nil, err
	}

	limit := r.MaxVideoConsumers
	if limit <= 0 {
		limit = roomapi.DefaultMaxVideoConsumers
	}
	remote := []Participant{}
	for _, p := range r.participants {
		if p.ID == viewer.ID || !p.Media.Active() {
			continue
		}
		if r.AdminViewOnly && !viewer.Owner && !p.Owner {
			continue
		}
		view := *p
		view.Visible = r.Layout == roomapi.Full || len(remote) < limit
		remote = append(remote, view)
	}
	return remote, nil
}
