// Package webrtc implements media.NegotiatorFactory and media.Engine on top of
// pion/webrtc.
package webrtc

import (
	"fmt"
	"net"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/utils"
	"github.com/ghettovoice/gosip/log"
	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v3"
)

// Factory creates one pion PeerConnection per session.
type Factory struct {
	api    *pion.API
	config Config
	mux    *net.UDPConn
	log    log.Logger
}

func NewFactory(config Config, logger log.Logger) (*Factory, error) {
	m := &pion.MediaEngine{}
	for _, codec := range audioCodecs {
		if err := m.RegisterCodec(codec, pion.RTPCodecTypeAudio); err != nil {
			return nil, fmt.Errorf("webrtc: register %s: %w", codec.MimeType, err)
		}
	}
	for _, codec := range videoCodecs {
		if err := m.RegisterCodec(codec, pion.RTPCodecTypeVideo); err != nil {
			return nil, fmt.Errorf("webrtc: register %s: %w", codec.MimeType, err)
		}
	}

	// NACKs, RTCP reports and TWCC.
	i := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("webrtc: interceptors: %w", err)
	}

	f := &Factory{
		config: config,
		log:    logger.WithPrefix("webrtc.Factory"),
	}
	s := pion.SettingEngine{}
	if config.UDPPortMin != 0 || config.UDPPortMax != 0 {
		laddr := &net.UDPAddr{IP: net.IPv4zero}
		conn, err := utils.ListenUDPInPortRange(int(config.UDPPortMin), int(config.UDPPortMax), laddr)
		if err != nil {
			return nil, fmt.Errorf("webrtc: ice port: %w", err)
		}
		f.mux = conn
		s.SetICEUDPMux(pion.NewICEUDPMux(nil, conn))
		f.log.Infof("ICE over UDP %s", laddr)
	}
	if len(config.NAT1To1IPs) > 0 {
		s.SetNAT1To1IPs(config.NAT1To1IPs, pion.ICECandidateTypeHost)
	}
	f.api = pion.NewAPI(pion.WithMediaEngine(m), pion.WithInterceptorRegistry(i), pion.WithSettingEngine(s))
	return f, nil
}

// Close releases the shared ICE port. Open peer connections stop working.
func (f *Factory) Close() error {
	if f.mux == nil {
		return nil
	}
	return f.mux.Close()
}

func (f *Factory) NewNegotiator(config media.NegotiatorConfig) (media.Negotiator, error) {
	pc, err := f.api.NewPeerConnection(pion.Configuration{
		ICEServers:   iceServers(f.config.ICEServers, config.ICEServers),
		SDPSemantics: pion.SDPSemanticsUnifiedPlan,
		BundlePolicy: pion.BundlePolicyBalanced,
	})
	if err != nil {
		return nil, fmt.Errorf("webrtc: new peer connection: %w", err)
	}
	f.log.Debugf("peer connection for %s", config.SessionID)
	return newPeerConnection(pc, config, f.log), nil
}

var _ media.NegotiatorFactory = (*Factory)(nil)
