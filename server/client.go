package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second

	// The rate at which snapshots are published, so as not to overburden
	// the client; intermediate snapshots are simply skipped, which is safe
	// because each snapshot fully describes the view.
	pubResolution  = 100 * time.Millisecond
	pingResolution = 200 * time.Millisecond
	// Pings to tolerate losing before concluding the peer is gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// ErrPongDeadlineExceeded reports a client that stopped answering pings.
var ErrPongDeadlineExceeded = errors.New("client disconnect, pong deadline exceeded")

// client publishes snapshots unidirectionally to one web client. Reads are
// drained only to keep the pong handler serviced.
type client struct {
	srv     *Server
	ws      *websocket.Conn
	rootCtx context.Context
}

func newClient(srv *Server, w http.ResponseWriter, r *http.Request) (*client, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, err
	}
	return &client{srv: srv, ws: ws, rootCtx: r.Context()}, nil
}

// sync runs the client routines until disconnect: publish, ping-pong
// liveness, and the read drain the pong handler depends on.
func (cli *client) sync() error {
	defer cli.close()

	group, groupCtx := errgroup.WithContext(cli.rootCtx)
	group.Go(func() error { return cli.readMessages(groupCtx) })
	group.Go(func() error { return cli.pingPong(groupCtx) })
	group.Go(func() error { return cli.publish(groupCtx) })
	return group.Wait()
}

func (cli *client) publish(ctx context.Context) error {
	var lastSeq uint64
	ticker := channerics.NewTicker(ctx.Done(), pubResolution)
	for range ticker {
		snap, seq := cli.srv.peek()
		if snap == nil || seq == lastSeq {
			continue
		}
		lastSeq = seq

		if err := cli.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		if err := cli.ws.WriteJSON(snap); err != nil {
			if isUnexpected(err) {
				return err
			}
			return nil
		}
	}
	return nil
}

// pingPong runs the liveness check; requires readMessages to be running so
// the pong handler fires.
func (cli *client) pingPong(ctx context.Context) error {
	pong := make(chan struct{}, 1)
	cli.ws.SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

// readMessages drains the connection. Errors from websocket reads are
// permanent, so any error triggers full teardown.
func (cli *client) readMessages(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, _, err := cli.ws.ReadMessage(); err != nil {
			if isUnexpected(err) {
				return err
			}
			return nil
		}
	}
}

func (cli *client) close() {
	_ = cli.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = cli.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	cli.ws.Close()
}

func isUnexpected(err error) bool {
	return websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}
