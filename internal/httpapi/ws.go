package httpapi

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/intervyn/intervyn/internal/stream"
)

// wsEnvelope frames one stream event on the websocket wire.
type wsEnvelope struct {
	Event stream.EventType `json:"event"`
	Data  any              `json:"data"`
}

// wsSink writes stream events to one websocket connection. Writes stay
// single-threaded; the engine sends events sequentially per turn.
type wsSink struct {
	conn *websocket.Conn
}

func newWSSink(conn *websocket.Conn) *wsSink {
	return &wsSink{conn: conn}
}

func (s *wsSink) Send(event stream.EventType, data any) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(wsEnvelope{Event: event, Data: data})
}
