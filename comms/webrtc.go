package comms

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/CodedInternet/gosbrick/onboard"
	"github.com/CodedInternet/gosbrick/onboard/hardware"
	"github.com/pion/webrtc/v2"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("pkg", "comms")

var (
	ERR_UNKNOWN_COMMAND = errors.New("unknown command")
	ERR_NOT_OFFER       = errors.New("SDP type is not an offer")
)

var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.stunprotocol.org:3478"}},
	{URLs: []string{"stun:stun.l.google.com:19302"}},
	{URLs: []string{"stun:stun1.l.google.com:19302"}},
}

type WebRTCClient struct {
	pc        *webrtc.PeerConnection
	tx, rx    *webrtc.DataChannel
	conductor ConductorInterface
	lock      sync.Mutex

	signals chan<- string
	hangup  <-chan struct{}
}

// Cmd arrives as JSON on the "command" data channel.
type Cmd struct {
	Cmd   string                  `json:"cmd"`
	Ports []hardware.MotorCommand `json:"ports,omitempty"`
	Port  int                     `json:"port,omitempty"`
	X     float64                 `json:"x,omitempty"`
	Y     float64                 `json:"y,omitempty"`
}

type Conductor struct {
	Device     onboard.SBrick
	ICEServers []webrtc.ICEServer

	clients []*WebRTCClient
	lock    sync.Mutex
}

type ConductorInterface interface {
	ProcessCommand(cmd Cmd) error
}

// NewWebRTCClient answers sdp. The answer and local ICE candidates are sent
// on signals until hangup is closed; anything after that is dropped.
func NewWebRTCClient(
	sdp webrtc.SessionDescription,
	iceServers []webrtc.ICEServer,
	conductor ConductorInterface,
	signals chan<- string,
	hangup <-chan struct{}) (client *WebRTCClient, err error) {

	client = new(WebRTCClient)
	client.conductor = conductor
	client.signals = signals
	client.hangup = hangup

	if iceServers == nil {
		iceServers = DefaultICEServers
	}
	config := webrtc.Configuration{
		ICEServers: iceServers,
	}

	// trickle ICE so candidates go out over the signalling socket as found
	s := webrtc.SettingEngine{}
	s.SetTrickle(true)
	api := webrtc.NewAPI(webrtc.WithSettingEngine(s))

	client.pc, err = api.NewPeerConnection(config)
	if err != nil {
		return nil, err
	}

	client.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}

		msg, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.WithError(err).Warn("unable to serialize ice candidate")
			return
		}
		client.signal(string(msg))
	})

	client.pc.OnDataChannel(func(channel *webrtc.DataChannel) {
		client.lock.Lock()
		defer client.lock.Unlock()

		label := channel.Label()
		switch label {
		case "data":
			client.tx = channel

		case "command":
			client.rx = channel
			client.rx.OnMessage(client.receiveMessage)

		default:
			log.WithField("label", label).Warn("ignoring unknown data channel")
		}
	})

	err = client.pc.SetRemoteDescription(sdp)
	if err != nil {
		client.pc.Close()
		return nil, err
	}

	go func() {
		answer, err := client.pc.CreateAnswer(nil)
		if err != nil {
			log.WithError(err).Error("unable to create answer")
			return
		}
		err = client.pc.SetLocalDescription(answer)
		if err != nil {
			log.WithError(err).Error("unable to set local description")
			return
		}
		answerJson, err := json.Marshal(answer)
		if err != nil {
			log.WithError(err).Error("unable to serialize answer")
			return
		}
		client.signal(string(answerJson))
	}()

	return
}

func (client *WebRTCClient) signal(msg string) {
	select {
	case client.signals <- msg:
	case <-client.hangup:
		log.Debug("signalling closed, dropping message")
	}
}

func (client *WebRTCClient) AddIceCandidate(msg string) error {
	var ic webrtc.ICECandidateInit
	err := json.Unmarshal([]byte(msg), &ic)
	if err != nil {
		return errors.New("unable to deserialize ice msg")
	}

	err = client.pc.AddICECandidate(ic)
	if err != nil {
		return err
	}
	log.WithField("candidate", ic.Candidate).Debug("added ice candidate")
	return nil
}

func (client *WebRTCClient) receiveMessage(msg webrtc.DataChannelMessage) {
	var cmd Cmd
	err := json.Unmarshal(msg.Data, &cmd)
	if err == nil {
		err = client.conductor.ProcessCommand(cmd)
	}

	if err != nil {
		client.reply(fmt.Sprintf("Error: %v", err))
	}
}

func (client *WebRTCClient) reply(msg string) {
	client.lock.Lock()
	rx := client.rx
	client.lock.Unlock()

	if rx != nil && rx.ReadyState() == webrtc.DataChannelStateOpen {
		rx.SendText(msg)
	}
}

// Send writes msg to the client's data channel once it is open.
func (client *WebRTCClient) Send(msg []byte) error {
	client.lock.Lock()
	tx := client.tx
	client.lock.Unlock()

	if tx == nil || tx.ReadyState() != webrtc.DataChannelStateOpen {
		return nil
	}
	return tx.Send(msg)
}

func (client *WebRTCClient) Close() error {
	return client.pc.Close()
}

func (c *Conductor) ProcessCommand(cmd Cmd) (err error) {
	switch cmd.Cmd {
	case "drive":
		err = c.Device.DrivePorts(cmd.Ports)

	case "port":
		if len(cmd.Ports) != 1 {
			return fmt.Errorf("port expects exactly one command, got %d", len(cmd.Ports))
		}
		err = c.Device.SetPort(cmd.Port, cmd.Ports[0])

	case "mix":
		err = c.Device.Mix(cmd.X, cmd.Y)

	case "brake":
		err = c.Device.Brake()

	case "ka_start":
		err = c.Device.StartKeepAlive()

	case "ka_reset":
		c.Device.ResetKeepAlive()

	case "ka_stop":
		c.Device.StopKeepAlive()

	case "ka_kill":
		c.Device.KillKeepAlive()

	case "led":
		err = c.Device.LEDTest()

	default:
		return fmt.Errorf("%w: %q", ERR_UNKNOWN_COMMAND, cmd.Cmd)
	}

	if err != nil {
		log.WithError(err).WithField("cmd", cmd.Cmd).Warn("command failed")
	}
	return
}

// UpdateClients pushes the current device state to every connected client.
func (c *Conductor) UpdateClients(withTelemetry bool) {
	msg, err := json.Marshal(NewStatePayload(c.Device, withTelemetry))
	if err != nil {
		log.WithError(err).Error("unable to serialize state")
		return
	}
	c.Broadcast(msg)
}

func (c *Conductor) Broadcast(msg []byte) {
	c.lock.Lock()
	clients := append([]*WebRTCClient(nil), c.clients...)
	c.lock.Unlock()

	for _, client := range clients {
		if err := client.Send(msg); err != nil {
			log.WithError(err).Debug("unable to update client")
		}
	}
}

func (c *Conductor) ReceiveOffer(msg string, signals chan<- string, hangup <-chan struct{}) (client *WebRTCClient, err error) {
	var sdp webrtc.SessionDescription
	err = json.Unmarshal([]byte(msg), &sdp)
	if err != nil {
		return
	}

	if sdp.Type != webrtc.SDPTypeOffer {
		return nil, ERR_NOT_OFFER
	}

	client, err = NewWebRTCClient(sdp, c.ICEServers, c, signals, hangup)
	if err != nil {
		return nil, err
	}

	client.pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateClosed || state == webrtc.PeerConnectionStateFailed {
			c.remove(client)
		}
	})

	c.lock.Lock()
	c.clients = append(c.clients, client)
	c.lock.Unlock()
	return client, nil
}

func (c *Conductor) remove(client *WebRTCClient) {
	c.lock.Lock()
	defer c.lock.Unlock()

	for i, other := range c.clients {
		if other == client {
			c.clients = append(c.clients[:i], c.clients[i+1:]...)
			return
		}
	}
}

// Close hangs up on every client.
func (c *Conductor) Close() {
	c.lock.Lock()
	clients := c.clients
	c.clients = nil
	c.lock.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
