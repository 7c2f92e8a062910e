package session

import (
	"fmt"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/account"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/event"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/signaling"
)

func (s *Session) receive(msg *signaling.Message, from account.Remote) {
	if s.terminal() {
		s.log.Debugf("dropping %s, session is %s", msg, s.State())
		return
	}
	s.log.Debugf("received %s from %s", msg, from)
	switch msg.SignalType {
	case signaling.SignalOffer:
		s.onOffer(msg, from)
	case signaling.SignalAnswer:
		s.onAnswer(msg, from)
	case signaling.SignalConnected:
		s.onConnected(msg)
	case signaling.SignalICECandidates:
		s.onCandidates(msg)
	case signaling.SignalBye:
		reason := msg.Reason
		if reason == "" {
			reason = ReasonRemoteHangup
		}
		s.end(reason, false)
	case signaling.SignalModify:
		s.onModify(msg)
	default:
		s.log.Warnf("unhandled signal %s", msg.SignalType)
	}
}

func (s *Session) onOffer(msg *signaling.Message, from account.Remote) {
	if s.direction != Incoming || s.State() != Idle {
		s.log.Warnf("unexpected offer in %s", s.State())
		return
	}
	s.known = true
	if msg.SessionDescription == nil {
		s.fail(ReasonMalformedSignal, fmt.Errorf("offer without description: %w", signaling.ErrInvalidMessage))
		return
	}
	desc := *msg.SessionDescription
	s.remoteDesc = &desc
	s.mu.Lock()
	if s.remote.ConnectionID == "" {
		s.remote.ConnectionID = from.ConnectionID
	}
	s.mu.Unlock()
	s.setState(Negotiating)

	name, reason := EventCall, ReasonNoCallListener
	if s.target == signaling.TargetDirectConnection {
		name, reason = EventDirectConnection, ReasonNoDCListener
	}
	if s.listeners == nil || !s.listeners.HasListeners(name) {
		s.end(reason, true)
		return
	}
	s.arm(s.timeouts.Answer, "answer")
}

func (s *Session) onAnswer(msg *signaling.Message, from account.Remote) {
	if s.direction != Outgoing || s.State() != Negotiating || s.negotiator == nil || s.remoteSet {
		s.log.Debugf("ignoring answer in %s", s.State())
		return
	}
	if msg.SessionDescription == nil {
		s.fail(ReasonMalformedSignal, fmt.Errorf("answer without description: %w", signaling.ErrInvalidMessage))
		return
	}
	s.disarm()
	if !s.applyRemote(*msg.SessionDescription) {
		return
	}

	connectionID := msg.ConnectionID
	if connectionID == "" {
		connectionID = from.ConnectionID
	}
	s.mu.Lock()
	if s.remote.ConnectionID == "" {
		s.remote.ConnectionID = connectionID
	}
	remote := s.remote
	s.mu.Unlock()

	// every connection of the remote endpoint learns who won
	err := s.signal(signaling.SignalConnected, account.Remote{EndpointID: remote.EndpointID}, func(m *signaling.Message) {
		m.ConnectionID = connectionID
	})
	if err != nil {
		s.log.Warnf("could not send connected: %v", err)
	}
	s.setState(Connecting)
	s.arm(s.timeouts.Connection, "connection")
}

func (s *Session) onConnected(msg *signaling.Message) {
	if s.direction != Incoming {
		return
	}
	if s.local != nil && msg.ConnectionID != "" && msg.ConnectionID != s.local.ConnectionID {
		s.end(ReasonAnsweredElsewhere, false)
	}
}

func (s *Session) onCandidates(msg *signaling.Message) {
	candidates := make([]media.Candidate, 0, len(msg.ICECandidates)+len(msg.FinalCandidates))
	candidates = append(candidates, msg.ICECandidates...)
	candidates = append(candidates, msg.FinalCandidates...)
	if s.negotiator == nil || !s.remoteSet {
		for _, c := range candidates {
			s.pending.PushBack(c)
		}
		s.log.Debugf("queued %d candidates, %d pending", len(candidates), s.pending.Len())
		return
	}
	for _, c := range candidates {
		s.addCandidate(c)
	}
}

func (s *Session) onModify(msg *signaling.Message) {
	if msg.Action != "" && msg.Action != signaling.ModifyInitiate {
		s.log.Debugf("modify %s", msg.Action)
		return
	}
	if s.State() == Connected {
		s.hub.Fire(EventModify, event.Event{Data: msg})
		return
	}
	err := s.signal(signaling.SignalModify, s.Remote(), func(m *signaling.Message) {
		m.Action = signaling.ModifyReject
	})
	if err != nil {
		s.log.Warnf("could not reject modify: %v", err)
	}
}
