package websocket

import (
	"notes-server/collab"
	"notes-server/config"
	"reflect"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

// Hub receives connection lifecycle and inbound events. *collab.Coordinator
// satisfies it.
type Hub interface {
	Connect(conn collab.Connection)
	Dispatch(connID string, msg collab.Inbound)
	Disconnect(connID string)
}

type emitter interface {
	Emit(ev string, args ...any) error
}

// socketConn adapts a socket.io socket to collab.Connection.
type socketConn struct {
	id      string
	emitter emitter
}

func (c *socketConn) ID() string { return c.id }

func (c *socketConn) Send(msg collab.Outbound) error {
	if notice, ok := msg.(collab.ErrorNotice); ok {
		return c.emitter.Emit(msg.EventName(), string(notice))
	}
	return c.emitter.Emit(msg.EventName(), msg)
}

func SetupSocketIO(hub Hub, decoder *collab.Decoder, cfg config.Config) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(cfg.MaxHTTPBufferSize)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	origins := lo.Map(cfg.AllowedOrigins, func(origin string, _ int) any { return origin })
	opts.SetCors(&types.Cors{
		Origin:      append(origins, config.LoopbackOrigin),
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		conn := &socketConn{id: string(socket.Id()), emitter: socket}
		hub.Connect(conn)

		for _, event := range []string{collab.EventJoinNote, collab.EventNoteUpdate} {
			//nolint:errcheck // Socket.IO event handlers do not return useful errors
			socket.On(event, func(datas ...any) {
				handleEvent(hub, decoder, conn, event, datas)
			})
		}

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("disconnect", func(datas ...any) {
			hub.Disconnect(conn.id)
			socket.RemoveAllListeners("")
		})
	})

	return srv
}

var rejectNotice = map[string]collab.ErrorNotice{
	collab.EventJoinNote:   "Failed to join note",
	collab.EventNoteUpdate: "Failed to update note",
}

// handleEvent decodes one inbound event and hands it to the hub. Payloads
// that do not decode are answered with an error notice and go no further.
func handleEvent(hub Hub, decoder *collab.Decoder, conn collab.Connection, event string, datas []any) {
	args := stripAck(datas)

	var payload any
	if len(args) > 0 {
		payload = args[0]
	}

	msg, err := decoder.Decode(event, payload)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"conn_id": conn.ID(),
			"event":   event,
		}).Warn("Rejected inbound event")

		if sendErr := conn.Send(rejectNotice[event]); sendErr != nil {
			logrus.WithError(sendErr).WithField("conn_id", conn.ID()).Warn("Failed to send event")
		}
		return
	}

	hub.Dispatch(conn.ID(), msg)
}

// stripAck drops a trailing acknowledgement callback. Clients may pass one
// but no inbound event of this server acknowledges.
func stripAck(datas []any) []any {
	if len(datas) == 0 {
		return datas
	}
	last := datas[len(datas)-1]
	if last != nil && reflect.ValueOf(last).Kind() == reflect.Func {
		return datas[:len(datas)-1]
	}
	return datas
}
