// Package server is an optional live view of a training run: it implements
// simulation.Observer, buffers the latest per-step snapshot, and publishes
// it to web clients over websocket at a capped rate. It is display only;
// removing it (or every client disconnecting) cannot change training
// outcomes.
package server

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/sync/errgroup"

	"coopgrid/simulation"
)

// Server holds the latest snapshot for publication. Writers (the trainer,
// via ObserveStep) and readers (websocket clients) meet only at the mutex.
type Server struct {
	addr   string
	world  *simulation.World
	logger *slog.Logger

	// Pacing: snapshots before showAfter episodes are dropped; once the
	// view engages, each observed step sleeps stepDelay so a human can
	// follow. Both are display knobs with no correctness weight.
	showAfter int
	stepDelay time.Duration

	mu     sync.RWMutex
	latest *simulation.Snapshot
	seq    uint64
}

func NewServer(
	addr string,
	world *simulation.World,
	showAfter int,
	stepDelay time.Duration,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		addr:      addr,
		world:     world,
		logger:    logger,
		showAfter: showAfter,
		stepDelay: stepDelay,
	}
}

// ObserveStep implements simulation.Observer.
func (srv *Server) ObserveStep(snap simulation.Snapshot) {
	if snap.Episode < srv.showAfter {
		return
	}
	srv.mu.Lock()
	srv.latest = &snap
	srv.seq++
	srv.mu.Unlock()

	if srv.stepDelay > 0 {
		time.Sleep(srv.stepDelay)
	}
}

// peek returns the latest snapshot and its sequence number, so clients can
// skip publishing when nothing changed.
func (srv *Server) peek() (*simulation.Snapshot, uint64) {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	return srv.latest, srv.seq
}

// Serve blocks until ctx is done or the listener fails.
func (srv *Server) Serve(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/", srv.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", srv.serveWebsocket)

	httpSrv := &http.Server{Addr: srv.addr, Handler: router}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func (srv *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	cli, err := newClient(srv, w, r)
	if err != nil {
		srv.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	if err := cli.sync(); err != nil {
		srv.logger.Warn("websocket client closed", "err", err)
	}
}

func (srv *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	walls := make([][2]int, 0, len(srv.world.StaticWalls))
	for c := range srv.world.StaticWalls {
		walls = append(walls, [2]int{c.Row, c.Col})
	}
	data := struct {
		Rows, Cols int
		Walls      [][2]int
	}{Rows: srv.world.Rows, Cols: srv.world.Cols, Walls: walls}
	if err := indexTemplate.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>coopgrid</title>
<style>
  table { border-collapse: collapse; }
  td { width: 28px; height: 28px; border: 1px solid #999; text-align: center; font-family: monospace; }
  td.wall { background: #444; }
  td.opened { background: #cfc; }
  td.agent { background: #39f; color: #fff; }
</style>
</head>
<body>
<h3>coopgrid live view</h3>
<div id="meta"></div>
<table id="grid"></table>
<script>
const rows = {{.Rows}}, cols = {{.Cols}};
const walls = {{.Walls}};
const grid = document.getElementById("grid");
for (let r = 0; r < rows; r++) {
  const tr = grid.insertRow();
  for (let c = 0; c < cols; c++) tr.insertCell().id = "c" + r + "_" + c;
}
const paintWalls = () => walls.forEach(w => {
  document.getElementById("c" + w[0] + "_" + w[1]).className = "wall";
});
paintWalls();
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (msg) => {
  const snap = JSON.parse(msg.data);
  document.getElementById("meta").textContent =
    "episode " + snap.episode + " step " + snap.step +
    " reward " + snap.episodeReward.toFixed(1) +
    " epsilon " + snap.epsilon.toFixed(3) +
    (snap.exploring ? " (exploring)" : "");
  for (let r = 0; r < rows; r++)
    for (let c = 0; c < cols; c++) {
      const td = document.getElementById("c" + r + "_" + c);
      td.className = ""; td.textContent = "";
    }
  paintWalls();
  (snap.openedWalls || []).forEach(w => {
    document.getElementById("c" + w.Row + "_" + w.Col).className = "opened";
  });
  Object.entries(snap.positions).forEach(([id, p]) => {
    const td = document.getElementById("c" + p.Row + "_" + p.Col);
    td.className = "agent"; td.textContent = id;
  });
};
</script>
</body>
</html>`))
