package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/CodedInternet/gosbrick/comms"
	"github.com/CodedInternet/gosbrick/onboard/hardware"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var wsLog = logrus.WithField("pkg", "ws")

// DriveSocketHandler accepts one drive command per text frame, either a bare
// port list or a full conductor command, and replies "ok" or the error.
func DriveSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsLog.WithError(err).Warn("upgrade failed")
		return
	}
	defer conn.Close()

	conductor := &comms.Conductor{Device: ENV.Device}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.WithError(err).Warn("drive socket read failed")
			}
			break
		}

		reply := "ok"
		if err := processDriveMessage(conductor, msg); err != nil {
			reply = err.Error()
		}

		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			wsLog.WithError(err).Warn("drive socket write failed")
			break
		}
	}
}

func processDriveMessage(conductor *comms.Conductor, msg []byte) error {
	if msg = bytes.TrimSpace(msg); len(msg) > 0 && msg[0] == '[' {
		var ports []hardware.MotorCommand
		if err := json.Unmarshal(msg, &ports); err != nil {
			return err
		}
		return ENV.Device.DrivePorts(ports)
	}

	var cmd comms.Cmd
	if err := json.Unmarshal(msg, &cmd); err != nil {
		return err
	}
	return conductor.ProcessCommand(cmd)
}

func isCandidate(msg []byte) bool {
	var sig map[string]interface{}
	if err := json.Unmarshal(msg, &sig); err != nil {
		return false
	}
	_, ok := sig["candidate"]
	return ok
}

func WebRTCSignalHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		wsLog.WithError(err).Warn("upgrade failed")
		return
	}
	defer conn.Close()

	msgs := make(chan string, 10)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case msg := <-msgs:
				if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
					wsLog.WithError(err).Warn("signal write failed")
					return
				}
			case <-done:
				return
			}
		}
	}()

	var client *comms.WebRTCClient
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.WithError(err).Warn("signal read failed")
			}
			break
		}

		if client != nil && isCandidate(msg) {
			if err := client.AddIceCandidate(string(msg)); err != nil {
				wsLog.WithError(err).Warn("bad ice candidate")
			}
			continue
		}

		// simulated devices answer slower so the frontend sees a realistic negotiation
		if ENV.Simulated {
			time.Sleep(time.Second * 2)
		}

		client, err = ENV.Conductor.ReceiveOffer(string(msg), msgs, done)
		if err != nil {
			wsLog.WithError(err).Warn("bad offer")
		}
	}
}
