package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// media terminates the WebRTC connections of publishing participants. It
// only receives: incoming tracks are drained and counted, and every new
// video track is asked for a keyframe.
type media struct {
	log     logr.Logger
	metrics *metrics
	api     *webrtc.API

	mu    sync.Mutex
	peers map[string]*peer
}

type peer struct {
	pc      *webrtc.PeerConnection
	packets atomic.Uint64
	bytes   atomic.Uint64
}

func (p *peer) count(pkt *rtp.Packet) {
	p.packets.Add(1)
	p.bytes.Add(uint64(len(pkt.Payload)))
}

func newMedia(log logr.Logger, m *metrics) (*media, error) {
	api, err := newWebRTCAPI()
	if err != nil {
		return nil, err
	}
	return &media{log: log, metrics: m, api: api, peers: make(map[string]*peer)}, nil
}

func newWebRTCAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("registering codecs: %w", err)
	}
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack"}, webrtc.RTPCodecTypeVideo)
	m.RegisterFeedback(webrtc.RTCPFeedback{Type: "nack", Parameter: "pli"}, webrtc.RTPCodecTypeVideo)

	i := &interceptor.Registry{}
	if err := webrtc.ConfigureRTCPReports(i); err != nil {
		return nil, fmt.Errorf("configuring rtcp reports: %w", err)
	}
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("creating nack generator: %w", err)
	}
	i.Add(generator)

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)), nil
}

// Answer replaces the connection of participant pid with one negotiated
// from offer and returns the answer once ICE gathering is complete.
func (md *media) Answer(ctx context.Context, pid string, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("expected an offer, got %s: %w", offer.Type, ErrInvalid)
	}
	pc, err := md.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	p := &peer{pc: pc}
	log := md.log.WithValues("participant", pid)

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		kind := track.Kind().String()
		log.V(1).Info("track received", "kind", kind, "codec", track.Codec().MimeType, "ssrc", track.SSRC())
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			pli := []rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}}
			if err := pc.WriteRTCP(pli); err != nil {
				log.Error(err, "unable to request keyframe")
			} else {
				md.metrics.keyframes.Inc()
			}
		}
		go func() {
			for {
				pkt, _, err := track.ReadRTP()
				if err != nil {
					log.V(1).Info("track ended", "kind", kind, "err", err.Error())
					return
				}
				p.count(pkt)
				md.metrics.rtpPackets.WithLabelValues(kind).Inc()
			}
		}()
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.V(1).Info("connection state", "state", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			md.remove(pid, p)
		}
	})

	answer, err := negotiate(ctx, pc, offer)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}

	if !md.track(pid, p) {
		return nil, fmt.Errorf("peer connection %s during negotiation", pc.ConnectionState())
	}
	return answer, nil
}

// track makes p the connection of pid, replacing any previous one. A
// connection that already failed or closed, and so missed its state
// callback, is dropped again and track reports false.
func (md *media) track(pid string, p *peer) bool {
	md.mu.Lock()
	old := md.peers[pid]
	md.peers[pid] = p
	if old == nil {
		md.metrics.peerConnections.Inc()
	}
	md.mu.Unlock()
	if old != nil {
		_ = old.pc.Close()
	}

	switch p.pc.ConnectionState() {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		md.remove(pid, p)
		return false
	}
	return true
}

func negotiate(ctx context.Context, pc *webrtc.PeerConnection, offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("setting remote description: %w: %w", ErrInvalid, err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("creating answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("setting local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return pc.LocalDescription(), nil
}

// remove closes p and forgets it if it is still the connection of pid.
func (md *media) remove(pid string, p *peer) {
	md.mu.Lock()
	cur, ok := md.peers[pid]
	if ok && cur == p {
		delete(md.peers, pid)
	}
	md.mu.Unlock()
	if ok && cur == p {
		md.metrics.peerConnections.Dec()
	}
	if err := p.pc.Close(); err != nil {
		md.log.V(1).Info("closing peer connection", "participant", pid, "err", err.Error())
	}
}

// Close drops the connection of pid, if any.
func (md *media) Close(pid string) {
	md.mu.Lock()
	p := md.peers[pid]
	md.mu.Unlock()
	if p != nil {
		md.remove(pid, p)
	}
}

// Packets returns the number of RTP packets received from pid.
func (md *media) Packets(pid string) uint64 {
	md.mu.Lock()
	defer md.mu.Unlock()
	if p := md.peers[pid]; p != nil {
		return p.packets.Load()
	}
	return 0
}

// CloseAll closes every connection.
func (md *media) CloseAll() error {
	md.mu.Lock()
	peers := md.peers
	md.peers = make(map[string]*peer)
	md.mu.Unlock()

	var errs []error
	for range peers {
		md.metrics.peerConnections.Dec()
	}
	for _, p := range peers {
		errs = append(errs, p.pc.Close())
	}
	return errors.Join(errs...)
}
