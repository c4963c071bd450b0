package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/confdrive/pkg/mediastate"
	"github.com/thesyncim/confdrive/pkg/roomapi"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Logger = testr.New(t)
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.media.CloseAll()
	})
	return srv, ts
}

func tokenFor(t *testing.T, srv *Server, email string) string {
	t.Helper()
	token, err := srv.issueToken(email)
	require.NoError(t, err)
	return token
}

// call sends a JSON request and decodes a JSON response into out, if
// given. It returns the status code.
func call(t *testing.T, ts *httptest.Server, method, path, token string, in, out any) int {
	t.Helper()
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestAPI_Login(t *testing.T) {
	srv, ts := newTestServer(t)
	ctx := context.Background()

	c, err := roomapi.New(ts.URL, roomapi.WithLogger(testr.New(t)))
	require.NoError(t, err)

	_, err = c.Login(ctx, "owner@example.com", "wrong")
	assert.ErrorIs(t, err, roomapi.ErrUnauthorized)

	token, err := c.Login(ctx, "owner@example.com", "owner-password")
	require.NoError(t, err)
	assert.Equal(t, token, c.Token())
	user, err := srv.parseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "owner@example.com", user)

	rooms, err := c.Rooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestAPI_Authentication(t *testing.T) {
	srv, ts := newTestServer(t)

	other, err := NewServer(DefaultConfig())
	require.NoError(t, err)
	foreign := tokenFor(t, other, "owner@example.com")

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"guest", "", http.StatusUnauthorized},
		{"malformed", "Basic b3duZXI=", http.StatusUnauthorized},
		{"garbage", "Bearer garbage", http.StatusUnauthorized},
		{"foreign secret", "Bearer " + foreign, http.StatusUnauthorized},
		{"valid", "Bearer " + tokenFor(t, srv, "owner@example.com"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/rooms", nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := ts.Client().Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAPI_RoomLifecycle(t *testing.T) {
	srv, ts := newTestServer(t)
	ctx := context.Background()
	token := tokenFor(t, srv, "owner@example.com")

	var created roomapi.Room
	code := call(t, ts, http.MethodPost, "/api/rooms", token, map[string]string{
		"title":       "TEST_room1",
		"view_policy": "password",
		"password":    "testPassword",
	}, &created)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "TEST_room1", created.Title)
	assert.True(t, created.Auth)

	code = call(t, ts, http.MethodPost, "/api/rooms", token, map[string]string{"title": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code = call(t, ts, http.MethodPost, "/api/rooms", "", map[string]string{"title": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	owner, err := roomapi.New(ts.URL, roomapi.WithToken(token))
	require.NoError(t, err)
	guest, err := roomapi.New(ts.URL)
	require.NoError(t, err)

	got, err := owner.Room(ctx, created.ID, "")
	require.NoError(t, err)
	assert.Equal(t, created, *got)

	_, err = guest.Room(ctx, created.ID, "")
	assert.ErrorIs(t, err, roomapi.ErrUnauthorized)
	_, err = guest.Room(ctx, created.ID, "testPassword")
	assert.NoError(t, err)

	rooms, err := owner.Rooms(ctx)
	require.NoError(t, err)
	assert.Equal(t, []roomapi.Room{created}, rooms)

	var updated roomapi.Room
	code = call(t, ts, http.MethodPatch, "/api/rooms/"+created.ID, token, map[string]any{
		"title":            "renamed",
		"view_policy":      "public",
		"rtcPublishPolicy": "login",
	}, &updated)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "renamed", updated.Title)
	assert.Equal(t, roomapi.Public, updated.ViewPolicy)
	assert.Equal(t, roomapi.Login, updated.PublishPolicy)
	assert.False(t, updated.Auth)

	userToken := tokenFor(t, srv, "user@example.com")
	code = call(t, ts, http.MethodPatch, "/api/rooms/"+created.ID, userToken, map[string]any{"title": "x"}, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code = call(t, ts, http.MethodPatch, "/api/rooms/"+created.ID, token, map[string]any{"rtcLayout": "grid"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code = call(t, ts, http.MethodDelete, "/api/rooms/"+created.ID, token, nil, nil)
	assert.Equal(t, http.StatusNoContent, code)
	_, err = owner.Room(ctx, created.ID, "")
	assert.ErrorIs(t, err, roomapi.ErrNotFound)
}

func TestAPI_JoinLockedRoom(t *testing.T) {
	srv, ts := newTestServer(t)
	token := tokenFor(t, srv, "owner@example.com")
	room, err := srv.Store().CreateRoom("owner@example.com", "R1", roomapi.Public, "")
	require.NoError(t, err)

	var locked roomapi.Room
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/rooms/"+room.ID+"/lock", token, nil, &locked))
	assert.True(t, locked.Locked)

	code := call(t, ts, http.MethodPost, "/api/rooms/"+room.ID+"/join", "", map[string]string{"name": "guest"}, nil)
	assert.Equal(t, http.StatusLocked, code)

	var joined joinResponse
	code = call(t, ts, http.MethodPost, "/api/rooms/"+room.ID+"/join", token, map[string]string{}, &joined)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, joined.Participant.Owner)
	assert.True(t, joined.Room.Locked)

	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/rooms/"+room.ID+"/unlock", token, nil, nil))
	code = call(t, ts, http.MethodPost, "/api/rooms/"+room.ID+"/join", "", map[string]string{"name": "guest"}, &joined)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "guest", joined.Participant.Name)

	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.joins.WithLabelValues("locked")))
	assert.Equal(t, 2.0, testutil.ToFloat64(srv.metrics.joins.WithLabelValues("ok")))

	code = call(t, ts, http.MethodPost, "/api/rooms/missing/join", "", map[string]string{}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAPI_MediaAndParticipants(t *testing.T) {
	srv, ts := newTestServer(t)
	ownerToken := tokenFor(t, srv, "owner@example.com")
	room, err := srv.Store().CreateRoom("owner@example.com", "R1", roomapi.Public, "")
	require.NoError(t, err)
	_, err = srv.Store().UpdateRoom(room.ID, "owner@example.com", RoomPatch{PublishPolicy: ptr(roomapi.Owner)})
	require.NoError(t, err)

	var host, guest joinResponse
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/rooms/"+room.ID+"/join", ownerToken, map[string]string{}, &host))
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, "/api/rooms/"+room.ID+"/join", "", map[string]string{"name": "g"}, &guest))
	assert.True(t, host.Participant.CanPublish)
	assert.False(t, guest.Participant.CanPublish)

	base := "/api/rooms/" + room.ID + "/participants/"
	playing := mediastate.Snapshot{Video: mediastate.Play, Audio: mediastate.Play}

	code := call(t, ts, http.MethodPost, base+guest.Participant.ID+"/media", "", playing, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code = call(t, ts, http.MethodPost, base+host.Participant.ID+"/media", "", playing, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code = call(t, ts, http.MethodPost, base+host.Participant.ID+"/media", "", map[string]string{"video": "loud"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	var remote []Participant
	code = call(t, ts, http.MethodGet, "/api/rooms/"+room.ID+"/participants?pid="+guest.Participant.ID, "", nil, &remote)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, remote, 1)
	assert.Equal(t, host.Participant.ID, remote[0].ID)
	assert.Equal(t, playing, remote[0].Media)
	assert.True(t, remote[0].Visible)

	code = call(t, ts, http.MethodPatch, base+guest.Participant.ID, "", map[string]string{"name": "Alice"}, nil)
	assert.Equal(t, http.StatusNoContent, code)
	p, err := srv.Store().Participant(room.ID, guest.Participant.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)

	code = call(t, ts, http.MethodDelete, base+host.Participant.ID, "", nil, nil)
	assert.Equal(t, http.StatusNoContent, code)
	code = call(t, ts, http.MethodGet, "/api/rooms/"+room.ID+"/participants?pid="+guest.Participant.ID, "", nil, &remote)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, remote)
}

// publisherOffer returns a complete offer for one VP8 track.
func publisherOffer(t *testing.T) (*webrtc.PeerConnection, webrtc.SessionDescription) {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pc.Close() })

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", "confdrive")
	require.NoError(t, err)
	_, err = pc.AddTrack(track)
	require.NoError(t, err)

	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(pc)
	require.NoError(t, pc.SetLocalDescription(offer))
	select {
	case <-gathered:
	case <-time.After(10 * time.Second):
		t.Fatal("ICE gathering did not complete")
	}
	return pc, *pc.LocalDescription()
}

func TestAPI_Offer(t *testing.T) {
	srv, ts := newTestServer(t)
	room, err := srv.Store().CreateRoom("owner@example.com", "R1", roomapi.Public, "")
	require.NoError(t, err)
	p, _, err := srv.Store().Join(room.ID, "", "g", "")
	require.NoError(t, err)
	path := "/api/rooms/" + room.ID + "/rtc/" + p.ID + "/offer"

	pc, offer := publisherOffer(t)

	code := call(t, ts, http.MethodPost, path, "", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: offer.SDP}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code = call(t, ts, http.MethodPost, "/api/rooms/"+room.ID+"/rtc/missing/offer", "", offer, nil)
	assert.Equal(t, http.StatusNotFound, code)

	var answer webrtc.SessionDescription
	code = call(t, ts, http.MethodPost, path, "", offer, &answer)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)
	require.NoError(t, pc.SetRemoteDescription(answer))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.peerConnections))

	// Renegotiating replaces the connection.
	_, offer2 := publisherOffer(t)
	require.Equal(t, http.StatusOK, call(t, ts, http.MethodPost, path, "", offer2, &answer))
	assert.Equal(t, 1.0, testutil.ToFloat64(srv.metrics.peerConnections))

	code = call(t, ts, http.MethodPost, "/api/rooms/"+room.ID+"/participants/"+p.ID+"/media", "", mediastate.Snapshot{}, nil)
	require.Equal(t, http.StatusNoContent, code)
	assert.Equal(t, 0.0, testutil.ToFloat64(srv.metrics.peerConnections), "stopping media closes the connection")
}

func TestAPI_OfferForbidden(t *testing.T) {
	srv, ts := newTestServer(t)
	room, err := srv.Store().CreateRoom("owner@example.com", "R1", roomapi.Public, "")
	require.NoError(t, err)
	_, err = srv.Store().UpdateRoom(room.ID, "owner@example.com", RoomPatch{PublishPolicy: ptr(roomapi.Login)})
	require.NoError(t, err)
	p, _, err := srv.Store().Join(room.ID, "", "g", "")
	require.NoError(t, err)

	code := call(t, ts, http.MethodPost, "/api/rooms/"+room.ID+"/rtc/"+p.ID+"/offer", "",
		webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAPI_Metrics(t *testing.T) {
	srv, ts := newTestServer(t)
	token := tokenFor(t, srv, "owner@example.com")
	require.Equal(t, http.StatusCreated, call(t, ts, http.MethodPost, "/api/rooms", token, map[string]string{"title": "R1"}, &roomapi.Room{}))

	resp, err := ts.Client().Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `fixture_http_requests_total{code="201",method="POST",route="/api/rooms"} 1`)
	assert.Contains(t, text, "fixture_rooms_created_total 1")
	assert.Contains(t, text, "fixture_peer_connections 0")
}
