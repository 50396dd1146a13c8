package main

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/miretskiy/mqsched/devicesim"
	"github.com/miretskiy/mqsched/scheduler"
)

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html><head><title>scheduler dashboard</title></head>
<body>
<h1>I/O scheduler dashboard</h1>
<pre id="status">connecting...</pre>
<script>
const ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = (ev) => { document.getElementById("status").textContent = ev.data; };
</script>
</body></html>`

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ClientMessage is a command sent from the browser.
type ClientMessage struct {
	Type   string           `json:"type"`
	Config *scheduler.Config `json:"config,omitempty"`
}

// ServerMessage is a state push sent to the browser.
type ServerMessage struct {
	Type     string                     `json:"type"`
	Running  *bool                      `json:"running,omitempty"`
	Config   *scheduler.Config          `json:"config,omitempty"`
	Snapshot *scheduler.SchedulerSnapshot `json:"snapshot,omitempty"`
}

// schedState paces a Scheduler for the UI loop, exactly as the LSM
// simulator's simState paces Simulator.Step.
type schedState struct {
	sched   *scheduler.Scheduler
	running bool
	paused  bool
	mu      sync.Mutex
	stopCh  chan struct{}
}

func newSchedState(cfg scheduler.Config) (*schedState, error) {
	geo := devicesim.DefaultGeometry()
	ftl := devicesim.NewSimpleFTL()
	bm, err := devicesim.NewBlockManager(cfg.BlockManagerID, geo, ftl)
	if err != nil {
		return nil, err
	}
	device := devicesim.NewChannelDevice()
	sched, err := scheduler.NewScheduler(cfg, bm, ftl, device)
	if err != nil {
		return nil, err
	}
	return &schedState{sched: sched, stopCh: make(chan struct{})}, nil
}

func (s *schedState) start() { s.mu.Lock(); defer s.mu.Unlock(); s.running = true; s.paused = false }
func (s *schedState) pause() { s.mu.Lock(); defer s.mu.Unlock(); s.paused = true }
func (s *schedState) stop()  { close(s.stopCh) }

func (s *schedState) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.paused
}

func (s *schedState) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && !s.paused {
		if err := s.sched.ExecuteSoonestEvents(); err != nil {
			log.Printf("scheduler stopped: %v", err)
			s.running = false
		}
	}
}

func (s *schedState) snapshot() scheduler.SchedulerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sched.Snapshot()
}

// safeConn serializes concurrent WriteJSON calls across the ticker
// goroutine and the reader goroutine.
type safeConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) WriteJSON(v interface{}) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.Conn.WriteJSON(v)
}

func uiUpdateLoop(conn *safeConn, state *schedState) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-state.stopCh:
			return
		case <-ticker.C:
			if state.isRunning() {
				state.tick()
				snap := state.snapshot()
				msg := ServerMessage{Type: "snapshot", Snapshot: &snap}
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("error sending snapshot: %v", err)
					return
				}
				updatePrometheusMetrics(snap)
			}
		}
	}
}

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("error upgrading connection: %v", err)
		return
	}
	defer conn.Close()
	sc := &safeConn{Conn: conn}

	cfg := scheduler.DefaultConfig()
	state, err := newSchedState(cfg)
	if err != nil {
		log.Printf("error creating scheduler: %v", err)
		return
	}

	running := false
	sc.WriteJSON(ServerMessage{Type: "status", Running: &running, Config: &cfg})

	go uiUpdateLoop(sc, state)

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error reading message: %v", err)
			}
			break
		}
		switch msg.Type {
		case "start":
			state.start()
			running := true
			sc.WriteJSON(ServerMessage{Type: "status", Running: &running})
		case "pause":
			state.pause()
			running := false
			sc.WriteJSON(ServerMessage{Type: "status", Running: &running})
		}
	}

	state.stop()
	log.Println("client disconnected")
}

func serveHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, nil); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func quitHandler(w http.ResponseWriter, r *http.Request) {
	log.Println("shutdown requested via /quitquitquit")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "server shutting down...")
	go func() {
		time.Sleep(100 * time.Millisecond)
		os.Exit(0)
	}()
}

func main() {
	initPrometheusMetrics()

	http.HandleFunc("/", serveHome)
	http.HandleFunc("/ws", handleWebSocket)
	http.HandleFunc("/quitquitquit", quitHandler)
	http.Handle("/metrics", promHandler())

	addr := ":8080"
	log.Printf("scheduler dashboard on http://localhost%s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
