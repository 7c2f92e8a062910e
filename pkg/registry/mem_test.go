package registry_test

import (
	"testing"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/account"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/event"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/loop"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/mock"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/registry"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/session"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/signaling"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/utils"
	"github.com/ghettovoice/gosip/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	logger = utils.NewLogrusLogger(log.DebugLevel, "Registry", nil)
	alice  = account.Remote{EndpointID: "alice", ConnectionID: "alice-1"}
)

type fixture struct {
	loop      *loop.Loop
	client    *event.Hub
	transport *mock.Transport
	reg       *registry.MemoryRegistry
	incoming  []*session.Session
}

func newFixture() *fixture {
	f := &fixture{transport: &mock.Transport{}}
	f.loop = loop.New(logger)
	f.client = event.NewHub(nil, f.loop, logger)
	deps := func() session.Deps {
		return session.Deps{
			Exec:        f.loop,
			Transport:   f.transport,
			Negotiators: &mock.NegotiatorFactory{},
			Tracker:     f.reg,
			Listeners:   f.client,
			Logger:      logger,
		}
	}
	f.reg = registry.NewMemoryRegistry(func(msg *signaling.Message, from account.Remote) (*session.Session, error) {
		return session.New(session.Config{
			ID:        msg.SessionID,
			Direction: session.Incoming,
			Target:    msg.Target,
			Remote:    from,
			Metadata:  msg.Metadata,
		}, deps())
	}, logger)
	f.reg.OnIncoming(func(s *session.Session) {
		f.incoming = append(f.incoming, s)
	})
	return f
}

func signal(t *testing.T, signalType signaling.SignalType, sessionID string) *signaling.Message {
	m := signaling.Message{
		SignalType: signalType,
		SessionID:  sessionID,
		Target:     signaling.TargetCall,
		SignalID:   signaling.NewSignalID(),
	}
	if signalType == signaling.SignalOffer {
		m.SessionDescription = &media.Description{Type: media.SDPTypeOffer, SDP: mock.OfferSDP()}
	}
	msg, err := signaling.New(m)
	require.NoError(t, err)
	return msg
}

func TestRouteOfferCreatesIncomingSession(t *testing.T) {
	f := newFixture()
	f.client.Listen(session.EventCall, func(event.Event) {})

	s, err := f.reg.Route(signal(t, signaling.SignalOffer, "s1"), alice)
	require.NoError(t, err)
	assert.Equal(t, "s1", s.ID())
	assert.Equal(t, session.Incoming, s.Direction())
	assert.Equal(t, session.Negotiating, s.State())
	assert.Equal(t, 1, f.reg.Len())
	require.Len(t, f.incoming, 1)
	assert.Same(t, s, f.incoming[0])

	found, ok := f.reg.Find("s1")
	assert.True(t, ok)
	assert.Same(t, s, found)
}

func TestRouteForwardsToKnownSession(t *testing.T) {
	f := newFixture()
	f.client.Listen(session.EventCall, func(event.Event) {})

	s, err := f.reg.Route(signal(t, signaling.SignalOffer, "s1"), alice)
	require.NoError(t, err)

	routed, err := f.reg.Route(signal(t, signaling.SignalBye, "s1"), alice)
	require.NoError(t, err)
	assert.Same(t, s, routed)
	assert.Equal(t, session.Ended, s.State())
	assert.Equal(t, 0, f.reg.Len())
	assert.Len(t, f.incoming, 1)
}

func TestRouteDropsStraySignals(t *testing.T) {
	f := newFixture()
	for _, st := range []signaling.SignalType{signaling.SignalICECandidates, signaling.SignalBye, signaling.SignalAnswer} {
		s, err := f.reg.Route(signal(t, st, "gone"), alice)
		assert.Nil(t, s)
		assert.ErrorIs(t, err, registry.ErrUnknownSession)
	}
	assert.Equal(t, 0, f.reg.Len())
	assert.Empty(t, f.incoming)
	assert.Empty(t, f.transport.Sent())
}

func TestRouteWithoutListenerEndsAndUnregisters(t *testing.T) {
	f := newFixture()

	s, err := f.reg.Route(signal(t, signaling.SignalOffer, "s1"), alice)
	require.NoError(t, err)
	assert.Equal(t, session.Ended, s.State())
	assert.Equal(t, session.ReasonNoCallListener, s.Reason())
	assert.Equal(t, 0, f.reg.Len())
	assert.Equal(t, 1, f.transport.Count(signaling.SignalBye))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	f := newFixture()
	f.client.Listen(session.EventCall, func(event.Event) {})
	_, err := f.reg.Route(signal(t, signaling.SignalOffer, "s1"), alice)
	require.NoError(t, err)

	_, err = session.New(session.Config{ID: "s1", Direction: session.Incoming, Target: signaling.TargetCall, Remote: alice},
		session.Deps{Exec: f.loop, Transport: f.transport, Negotiators: &mock.NegotiatorFactory{}, Tracker: f.reg, Logger: logger})
	assert.ErrorIs(t, err, session.ErrDuplicateSession)
	assert.Equal(t, 1, f.reg.Len())
}

func TestClear(t *testing.T) {
	f := newFixture()
	f.client.Listen(session.EventCall, func(event.Event) {})
	for _, id := range []string{"a", "b", "c"} {
		_, err := f.reg.Route(signal(t, signaling.SignalOffer, id), alice)
		require.NoError(t, err)
	}
	assert.Len(t, f.reg.Sessions(), 3)

	cleared := f.reg.Clear()
	assert.Len(t, cleared, 3)
	assert.Equal(t, 0, f.reg.Len())

	// a late unregister of a cleared session is harmless
	cleared[0].Hangup()
	assert.Equal(t, 0, f.reg.Len())
}
