package account

import (
	"fmt"

	"github.com/cloudwebrtc/go-rtc-ua/pkg/media"
	"github.com/cloudwebrtc/go-rtc-ua/pkg/utils"
	"github.com/ghettovoice/gosip/log"
	"github.com/google/uuid"
)

var (
	logger log.Logger
)

func init() {
	logger = utils.NewLogrusLogger(log.InfoLevel, "Account", nil)
}

// Profile is the local identity: one endpoint, reached through one connection.
type Profile struct {
	EndpointID   string
	DisplayName  string
	ConnectionID string
	InstanceID   string
	// ICEServers are the STUN/TURN servers offered to every negotiator.
	ICEServers []media.ICEServer
}

//NewProfile .
func NewProfile(endpointID string, displayName string, iceServers []media.ICEServer) *Profile {
	p := &Profile{
		EndpointID:   endpointID,
		DisplayName:  displayName,
		ConnectionID: uuid.New().String(),
		ICEServers:   iceServers,
	}
	uid, err := uuid.NewUUID()
	if err != nil {
		logger.Errorf("could not create UUID: %v", err)
	}
	p.InstanceID = fmt.Sprintf(`"<%s>"`, uid.URN())
	return p
}

// Remote identifies the peer of a session. An empty ConnectionID addresses
// every connection of the endpoint.
type Remote struct {
	EndpointID   string
	ConnectionID string
}

func (r Remote) String() string {
	if r.ConnectionID == "" {
		return r.EndpointID
	}
	return r.EndpointID + "/" + r.ConnectionID
}

// IsZero reports whether r names nobody.
func (r Remote) IsZero() bool {
	return r.EndpointID == ""
}
