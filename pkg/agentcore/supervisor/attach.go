package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/term"
)

// upgrader is shared across attach handlers; origin checking is left to
// whatever reverse proxy fronts the runtime, matching the teacher's
// webui.ReactWebServer upgrader (no Origin restriction of its own).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// safeConn serializes writes to a websocket.Conn, since gorilla/websocket
// doesn't allow concurrent writers. Adapted from webui.SafeConn.
type safeConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func (c *safeConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return c.conn.WriteJSON(v)
}

func (c *safeConn) close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

// attachEvent is one frame sent to an attached client: either an output
// chunk or a terminal state change.
type attachEvent struct {
	Type   string `json:"type"`
	Output string `json:"output,omitempty"`
	State  string `json:"state,omitempty"`
}

// AttachHandler upgrades an HTTP request to a WebSocket and streams a
// running Task's output live, so a UI collaborator can tail a TaskPty
// without polling task_status. The client may send {"input": "..."} frames
// back, which are forwarded to the task's PTY via Task.Send.
func (s *Supervisor) AttachHandler(w http.ResponseWriter, r *http.Request, taskID string) {
	task, ok := s.Get(taskID)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown task %s", taskID), http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sc := &safeConn{conn: conn}
	defer sc.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.readAttachInput(ctx, cancel, conn, task)
	s.streamAttachOutput(ctx, sc, task)
}

func (s *Supervisor) readAttachInput(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, task *Task) {
	defer cancel()
	for {
		var msg struct {
			Input string `json:"input"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Input != "" {
			_ = task.Send(msg.Input)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// streamAttachOutput polls Task.Output for new bytes and relays them as
// attachEvent frames until the task reaches a terminal state or the
// connection's context is cancelled.
func (s *Supervisor) streamAttachOutput(ctx context.Context, sc *safeConn, task *Task) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var sent int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			out := task.Output()
			if len(out) > sent {
				if err := sc.writeJSON(attachEvent{Type: "output", Output: string(out[sent:])}); err != nil {
					return
				}
				sent = len(out)
			}
			state := task.State()
			if state.IsTerminal() {
				_ = sc.writeJSON(attachEvent{Type: "state", State: state.String()})
				return
			}
		}
	}
}

// TerminalSize returns the attached controlling terminal's current
// dimensions, falling back to 80x24 when stdout isn't a terminal (e.g. the
// CLI is piped or running under CI). Used to size a new TaskPty's initial
// window instead of hardcoding 80x24 for every spawn.
func TerminalSize() (rows, cols uint16) {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 24, 80
	}
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return 24, 80
	}
	return uint16(h), uint16(w)
}
