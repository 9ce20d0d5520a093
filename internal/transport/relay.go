package transport

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"arena-shooter/internal/protocol"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxFrameSize = 64 * 1024
)

// RelayStats counts frames moved by one Relay call.
type RelayStats struct {
	In      atomic.Uint64
	Out     atomic.Uint64
	Dropped atomic.Uint64
}

// DecodeFrame turns a websocket frame into an envelope. Text frames are
// checked against the envelope schema; binary frames are msgpack.
func DecodeFrame(messageType int, data []byte) (protocol.Envelope, error) {
	switch messageType {
	case websocket.TextMessage:
		if err := protocol.ValidateFrame(data); err != nil {
			return protocol.Envelope{}, err
		}
		return protocol.JSONCodec{}.Unmarshal(data)
	case websocket.BinaryMessage:
		env, err := protocol.MsgpackCodec{}.Unmarshal(data)
		if err != nil {
			return env, err
		}
		if env.Topic() == "" {
			return env, fmt.Errorf("unknown message type %q", env.T)
		}
		return env, nil
	}
	return protocol.Envelope{}, fmt.Errorf("unsupported frame type %d", messageType)
}

// EncodeFrame marshals env with codec and returns the websocket frame type.
func EncodeFrame(codec protocol.Codec, env protocol.Envelope) (int, []byte, error) {
	data, err := codec.Marshal(env)
	if err != nil {
		return 0, nil, err
	}
	if codec.Binary() {
		return websocket.BinaryMessage, data, nil
	}
	return websocket.TextMessage, data, nil
}

// Relay pumps frames between a websocket member and its hub endpoint until
// either side goes away. Inbound envelopes are stamped with the member's
// name; envelopes addressed to another room are dropped.
func Relay(conn *websocket.Conn, ep *Endpoint, codec protocol.Codec, stats *RelayStats) {
	if stats == nil {
		stats = &RelayStats{}
	}
	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		relayWrite(conn, ep, codec, stats)
	}()

	relayRead(conn, ep, stats)
	ep.Close()
	<-writeDone
	conn.Close()
}

func relayRead(conn *websocket.Conn, ep *Endpoint, stats *RelayStats) {
	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := DecodeFrame(mt, data)
		if err != nil || (env.Room != "" && env.Room != ep.Room()) {
			stats.Dropped.Add(1)
			continue
		}
		env.From = ep.Username()
		if ep.Publish(env) != nil {
			return
		}
		stats.In.Add(1)
	}
}

func relayWrite(conn *websocket.Conn, ep *Endpoint, codec protocol.Codec, stats *RelayStats) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-ep.Inbound():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			mt, data, err := EncodeFrame(codec, env)
			if err != nil {
				stats.Dropped.Add(1)
				continue
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				conn.Close()
				return
			}
			stats.Out.Add(1)
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}
