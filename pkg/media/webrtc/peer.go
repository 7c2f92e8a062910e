package webrtc

import (
	"fmt"
	"sync"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/ghettovoice/gosip/log"
	"github.com/pion/rtcp"
	pion "github.com/pion/webrtc/v3"
	"github.com/tevino/abool"
)

// PeerConnection adapts a pion PeerConnection to media.Negotiator. Candidates
// are trickled; nothing waits for gathering to complete.
type PeerConnection struct {
	pc      *pion.PeerConnection
	config  media.NegotiatorConfig
	closed  abool.AtomicBool
	log     log.Logger
	mu      sync.RWMutex
	channel *pion.DataChannel
	// standins replace foreign tracks and are stopped with the connection.
	standins []*Track
	remotes  map[string]*RemoteStream

	onCandidate func(c media.Candidate)
	onState     func(state media.TransportState)
	onOpen      func(label string)
	onRemote    func(s media.Stream)
	onMessage   func(data []byte)
}

func newPeerConnection(pc *pion.PeerConnection, config media.NegotiatorConfig, logger log.Logger) *PeerConnection {
	c := &PeerConnection{
		pc:      pc,
		config:  config,
		log:     logger.WithFields(log.Fields{"session_id": config.SessionID}),
		remotes: make(map[string]*RemoteStream),
	}

	pc.OnICECandidate(func(candidate *pion.ICECandidate) {
		// nil marks the end of gathering
		if candidate == nil || c.closed.IsSet() {
			return
		}
		j := candidate.ToJSON()
		c.mu.RLock()
		f := c.onCandidate
		c.mu.RUnlock()
		if f != nil {
			f(media.Candidate{
				Candidate:        j.Candidate,
				SDPMid:           j.SDPMid,
				SDPMLineIndex:    j.SDPMLineIndex,
				UsernameFragment: j.UsernameFragment,
			})
		}
	})
	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		c.log.Debugf("ICE connection state has changed: %s", state)
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		c.log.Infof("peer connection state has changed: %s", state)
		if c.closed.IsSet() {
			return
		}
		c.mu.RLock()
		f := c.onState
		c.mu.RUnlock()
		if f != nil {
			f(transportState(state))
		}
	})
	pc.OnDataChannel(func(dc *pion.DataChannel) {
		c.log.Infof("remote opened data channel %q", dc.Label())
		c.watchChannel(dc)
	})
	pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		c.log.Infof("remote %s track %s (%s)", track.Kind(), track.ID(), track.Codec().MimeType)
		t := newRemoteTrack(track)
		c.addRemoteTrack(track.StreamID(), t)
		go c.drain(t)
	})
	return c
}

func transportState(state pion.PeerConnectionState) media.TransportState {
	switch state {
	case pion.PeerConnectionStateConnecting:
		return media.TransportConnecting
	case pion.PeerConnectionStateConnected:
		return media.TransportConnected
	case pion.PeerConnectionStateDisconnected:
		return media.TransportDisconnected
	case pion.PeerConnectionStateFailed:
		return media.TransportFailed
	case pion.PeerConnectionStateClosed:
		return media.TransportClosed
	}
	return media.TransportNew
}

func (c *PeerConnection) watchChannel(dc *pion.DataChannel) {
	c.mu.Lock()
	c.channel = dc
	c.mu.Unlock()
	dc.OnOpen(func() {
		if c.closed.IsSet() {
			return
		}
		c.mu.RLock()
		f := c.onOpen
		c.mu.RUnlock()
		if f != nil {
			f(dc.Label())
		}
	})
	dc.OnMessage(func(msg pion.DataChannelMessage) {
		if c.closed.IsSet() {
			return
		}
		c.mu.RLock()
		f := c.onMessage
		c.mu.RUnlock()
		if f != nil {
			f(msg.Data)
		}
	})
}

// addRemoteTrack files t under its stream, announcing streams not seen before.
func (c *PeerConnection) addRemoteTrack(streamID string, t *RemoteTrack) {
	c.mu.Lock()
	stream, seen := c.remotes[streamID]
	if !seen {
		stream = &RemoteStream{id: streamID}
		c.remotes[streamID] = stream
	}
	stream.add(t)
	f := c.onRemote
	c.mu.Unlock()
	if !seen && f != nil && !c.closed.IsSet() {
		f(stream)
	}
}

// Send writes data to the session's data channel, which must be open.
func (c *PeerConnection) Send(data []byte) error {
	if c.closed.IsSet() {
		return media.ErrNegotiatorGone
	}
	dc := c.DataChannel()
	if dc == nil {
		return media.ErrNoDataChannel
	}
	if err := dc.Send(data); err != nil {
		return fmt.Errorf("webrtc: send on %q: %w", dc.Label(), err)
	}
	return nil
}

// DataChannel returns the session's data channel once created or received.
func (c *PeerConnection) DataChannel() *pion.DataChannel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

func (c *PeerConnection) CreateOffer() (media.Description, error) {
	if c.closed.IsSet() {
		return media.Description{}, media.ErrNegotiatorGone
	}
	if c.config.DataChannel && c.DataChannel() == nil {
		dc, err := c.pc.CreateDataChannel(c.config.Label, nil)
		if err != nil {
			return media.Description{}, fmt.Errorf("webrtc: data channel: %w", err)
		}
		c.watchChannel(dc)
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return media.Description{}, fmt.Errorf("webrtc: create offer: %w", err)
	}
	return media.Description{Type: offer.Type.String(), SDP: offer.SDP}, nil
}

func (c *PeerConnection) CreateAnswer() (media.Description, error) {
	if c.closed.IsSet() {
		return media.Description{}, media.ErrNegotiatorGone
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return media.Description{}, fmt.Errorf("webrtc: create answer: %w", err)
	}
	return media.Description{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (c *PeerConnection) SetLocalDescription(desc media.Description) error {
	if c.closed.IsSet() {
		return media.ErrNegotiatorGone
	}
	return c.pc.SetLocalDescription(pion.SessionDescription{Type: pion.NewSDPType(desc.Type), SDP: desc.SDP})
}

func (c *PeerConnection) SetRemoteDescription(desc media.Description) error {
	if c.closed.IsSet() {
		return media.ErrNegotiatorGone
	}
	return c.pc.SetRemoteDescription(pion.SessionDescription{Type: pion.NewSDPType(desc.Type), SDP: desc.SDP})
}

func (c *PeerConnection) AddICECandidate(candidate media.Candidate) error {
	if c.closed.IsSet() {
		return media.ErrNegotiatorGone
	}
	return c.pc.AddICECandidate(pion.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	})
}

// AddStream sends every track of s. Tracks from Engine are sent as they
// are; foreign tracks get a silent stand-in of the same kind.
func (c *PeerConnection) AddStream(s media.Stream) error {
	if c.closed.IsSet() {
		return media.ErrNegotiatorGone
	}
	if s == nil {
		return nil
	}
	for _, t := range s.Tracks() {
		local, ok := t.(*Track)
		if !ok {
			var err error
			if local, err = newTrack(t.Kind(), s.ID()); err != nil {
				return err
			}
			c.mu.Lock()
			c.standins = append(c.standins, local)
			c.mu.Unlock()
		}
		sender, err := c.pc.AddTrack(local.rtp)
		if err != nil {
			return fmt.Errorf("webrtc: add %s track: %w", t.Kind(), err)
		}
		go c.readRTCP(local, sender)
	}
	return nil
}

// readRTCP drains sender feedback, which the interceptors need to run.
func (c *PeerConnection) readRTCP(track *Track, sender *pion.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		pkts, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			c.log.Warnf("unmarshal rtcp: %v", err)
			continue
		}
		for _, pkt := range pkts {
			switch p := pkt.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				c.log.Debugf("key frame requested on %s", track.ID())
			case *rtcp.ReceiverEstimatedMaximumBitrate:
				c.log.Debugf("REMB %d kbps on %s", uint64(p.Bitrate)/1024, track.ID())
			case *rtcp.ReceiverReport:
				for _, r := range p.Reports {
					if r.FractionLost > 0 {
						c.log.Debugf("fraction lost %d on %s", r.FractionLost, track.ID())
					}
				}
			}
		}
	}
}

func (c *PeerConnection) drain(t *RemoteTrack) {
	buf := make([]byte, 1500)
	for !c.closed.IsSet() && !t.Stopped() {
		if _, _, err := t.track.Read(buf); err != nil {
			return
		}
	}
}

func (c *PeerConnection) OnICECandidate(f func(c media.Candidate)) {
	c.mu.Lock()
	c.onCandidate = f
	c.mu.Unlock()
}

func (c *PeerConnection) OnStateChange(f func(state media.TransportState)) {
	c.mu.Lock()
	c.onState = f
	c.mu.Unlock()
}

func (c *PeerConnection) OnDataChannelOpen(f func(label string)) {
	c.mu.Lock()
	c.onOpen = f
	c.mu.Unlock()
}

func (c *PeerConnection) OnRemoteStream(f func(s media.Stream)) {
	c.mu.Lock()
	c.onRemote = f
	c.mu.Unlock()
}

func (c *PeerConnection) OnMessage(f func(data []byte)) {
	c.mu.Lock()
	c.onMessage = f
	c.mu.Unlock()
}

// Close is idempotent. No callbacks fire once it has been called.
func (c *PeerConnection) Close() error {
	if !c.closed.SetToIf(false, true) {
		return nil
	}
	c.mu.Lock()
	standins := c.standins
	c.standins = nil
	c.mu.Unlock()
	for _, t := range standins {
		t.Stop()
	}
	return c.pc.Close()
}

var _ media.Negotiator = (*PeerConnection)(nil)
