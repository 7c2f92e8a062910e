package webrtc

import (
	"context"
	"testing"
	"time"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/mock"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/utils"
	"github.com/ghettovoice/gosip/log"
	pion "github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var logger = utils.NewLogrusLogger(log.DebugLevel, "WebRTC", nil)

func newFactory(t *testing.T) *Factory {
	f, err := NewFactory(Config{ICEServers: []media.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}}, logger)
	require.NoError(t, err)
	return f
}

func newNegotiator(t *testing.T, f *Factory, config media.NegotiatorConfig) *PeerConnection {
	n, err := f.NewNegotiator(config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })
	return n.(*PeerConnection)
}

func TestDirectConnectionOfferCarriesDataChannel(t *testing.T) {
	n := newNegotiator(t, newFactory(t), media.NegotiatorConfig{SessionID: "s1", DataChannel: true, Label: "files"})

	offer, err := n.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, media.SDPTypeOffer, offer.Type)
	info, err := media.InspectSDP(offer.SDP)
	require.NoError(t, err)
	assert.True(t, info.HasDataChannel)
	assert.False(t, info.HasAudio)

	require.NotNil(t, n.DataChannel())
	assert.Equal(t, "files", n.DataChannel().Label())

	// a second offer reuses the channel
	dc := n.DataChannel()
	_, err = n.CreateOffer()
	require.NoError(t, err)
	assert.Same(t, dc, n.DataChannel())
}

func TestOfferAnswerWithEngineStream(t *testing.T) {
	f := newFactory(t)
	engine := &Engine{}
	stream, err := engine.GetUserMedia(context.Background(), media.Constraints{Audio: true, Video: true})
	require.NoError(t, err)
	defer stream.Stop()

	caller := newNegotiator(t, f, media.NegotiatorConfig{SessionID: "s1"})
	callee := newNegotiator(t, f, media.NegotiatorConfig{SessionID: "s1"})

	require.NoError(t, caller.AddStream(stream))
	offer, err := caller.CreateOffer()
	require.NoError(t, err)
	info, err := media.InspectSDP(offer.SDP)
	require.NoError(t, err)
	assert.True(t, info.HasAudio)
	assert.True(t, info.HasVideo)
	assert.False(t, info.HasDataChannel)
	require.NoError(t, caller.SetLocalDescription(offer))

	require.NoError(t, callee.SetRemoteDescription(offer))
	answer, err := callee.CreateAnswer()
	require.NoError(t, err)
	assert.Equal(t, media.SDPTypeAnswer, answer.Type)
	require.NoError(t, callee.SetLocalDescription(answer))
	require.NoError(t, caller.SetRemoteDescription(answer))
}

func TestForeignTracksGetStandIns(t *testing.T) {
	n := newNegotiator(t, newFactory(t), media.NegotiatorConfig{SessionID: "s1"})

	require.NoError(t, n.AddStream(mock.NewStream(media.Constraints{Audio: true})))
	offer, err := n.CreateOffer()
	require.NoError(t, err)
	info, err := media.InspectSDP(offer.SDP)
	require.NoError(t, err)
	assert.True(t, info.HasAudio)
	assert.False(t, info.HasVideo)

	require.Len(t, n.standins, 1)
	standin := n.standins[0]
	require.NoError(t, n.Close())
	assert.True(t, standin.Stopped())
}

func TestFactorySharesOneICEPort(t *testing.T) {
	f, err := NewFactory(Config{UDPPortMin: 41000, UDPPortMax: 41100}, logger)
	require.NoError(t, err)
	require.NotNil(t, f.mux)
	defer f.Close()

	n := newNegotiator(t, f, media.NegotiatorConfig{SessionID: "s1", DataChannel: true})
	_, err = n.CreateOffer()
	assert.NoError(t, err)
}

func TestCreateAnswerNeedsOffer(t *testing.T) {
	n := newNegotiator(t, newFactory(t), media.NegotiatorConfig{SessionID: "s1"})
	_, err := n.CreateAnswer()
	assert.Error(t, err)
}

func TestClosedNegotiator(t *testing.T) {
	n := newNegotiator(t, newFactory(t), media.NegotiatorConfig{SessionID: "s1"})
	states := 0
	n.OnStateChange(func(media.TransportState) { states++ })

	require.NoError(t, n.Close())
	require.NoError(t, n.Close())
	assert.Equal(t, 0, states)

	_, err := n.CreateOffer()
	assert.ErrorIs(t, err, media.ErrNegotiatorGone)
	assert.ErrorIs(t, n.AddICECandidate(media.Candidate{Candidate: "candidate:1 1 udp 1 127.0.0.1 9 typ host"}), media.ErrNegotiatorGone)
	assert.ErrorIs(t, n.AddStream(nil), media.ErrNegotiatorGone)
	assert.ErrorIs(t, n.Send([]byte("hi")), media.ErrNegotiatorGone)
}

func TestSendNeedsOpenChannel(t *testing.T) {
	f := newFactory(t)

	call := newNegotiator(t, f, media.NegotiatorConfig{SessionID: "s1"})
	assert.ErrorIs(t, call.Send([]byte("hi")), media.ErrNoDataChannel)

	dc := newNegotiator(t, f, media.NegotiatorConfig{SessionID: "s2", DataChannel: true, Label: "files"})
	_, err := dc.CreateOffer()
	require.NoError(t, err)
	// created but not open until the peer connects
	err = dc.Send([]byte("hi"))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, media.ErrNoDataChannel)
}

func TestRemoteTracksGroupByStream(t *testing.T) {
	n := newNegotiator(t, newFactory(t), media.NegotiatorConfig{SessionID: "s1"})
	var streams []media.Stream
	n.OnRemoteStream(func(s media.Stream) { streams = append(streams, s) })

	n.addRemoteTrack("cam", newRemoteTrack(&pion.TrackRemote{}))
	n.addRemoteTrack("cam", newRemoteTrack(&pion.TrackRemote{}))
	require.Len(t, streams, 1)
	assert.Equal(t, "cam", streams[0].ID())
	tracks := streams[0].Tracks()
	require.Len(t, tracks, 2)
	assert.True(t, tracks[0].Enabled())
	tracks[0].SetEnabled(false)
	assert.False(t, tracks[0].Enabled())

	n.addRemoteTrack("screen", newRemoteTrack(&pion.TrackRemote{}))
	require.Len(t, streams, 2)
	assert.Equal(t, "screen", streams[1].ID())

	streams[0].Stop()
	for _, track := range tracks {
		assert.True(t, track.(*RemoteTrack).Stopped())
	}

	require.NoError(t, n.Close())
	n.addRemoteTrack("late", newRemoteTrack(&pion.TrackRemote{}))
	assert.Len(t, streams, 2)
}

func TestTransportStateMapping(t *testing.T) {
	for state, want := range map[pion.PeerConnectionState]media.TransportState{
		pion.PeerConnectionStateNew:          media.TransportNew,
		pion.PeerConnectionStateConnecting:   media.TransportConnecting,
		pion.PeerConnectionStateConnected:    media.TransportConnected,
		pion.PeerConnectionStateDisconnected: media.TransportDisconnected,
		pion.PeerConnectionStateFailed:       media.TransportFailed,
		pion.PeerConnectionStateClosed:       media.TransportClosed,
	} {
		assert.Equal(t, want, transportState(state), state.String())
	}
}

func TestICEServersMerge(t *testing.T) {
	servers := iceServers(
		[]media.ICEServer{{URLs: []string{"stun:a"}}},
		[]media.ICEServer{{URLs: []string{"turn:b"}, Username: "u", Credential: "p"}},
	)
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:a"}, servers[0].URLs)
	assert.Nil(t, servers[0].Credential)
	assert.Equal(t, "p", servers[1].Credential)
	assert.Equal(t, pion.ICECredentialTypePassword, servers[1].CredentialType)
}

func TestEngine(t *testing.T) {
	engine := &Engine{}

	_, err := engine.GetUserMedia(context.Background(), media.Constraints{})
	assert.ErrorIs(t, err, media.ErrNoConstraints)

	stream, err := engine.GetUserMedia(context.Background(), media.Constraints{Audio: true})
	require.NoError(t, err)
	tracks := stream.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, media.KindAudio, tracks[0].Kind())
	assert.True(t, tracks[0].Enabled())
	tracks[0].SetEnabled(false)
	assert.False(t, tracks[0].Enabled())

	stream.Stop()
	stream.Stop()
	assert.True(t, tracks[0].(*Track).Stopped())
}

func TestEngineHonoursContext(t *testing.T) {
	engine := &Engine{Delay: time.Minute}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.GetUserMedia(ctx, media.Constraints{Audio: true})
	assert.ErrorIs(t, err, media.ErrPermission)
}
