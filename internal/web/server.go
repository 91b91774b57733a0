// Package web provides an HTTP status and control server for the uv-lamp
// daemon.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sweeney/uv-lamp/internal/lamp"
	"github.com/sweeney/uv-lamp/internal/status"
)

// Setting names a user setting changed through /control.
type Setting int

const (
	SettingPower Setting = iota
	SettingRadar
	SettingLevel
)

func (s Setting) String() string {
	switch s {
	case SettingPower:
		return "power"
	case SettingRadar:
		return "radar"
	case SettingLevel:
		return "level"
	}
	return fmt.Sprintf("setting(%d)", int(s))
}

// Command is one settings change queued for the control loop.
type Command struct {
	Setting Setting
	On      bool            // SettingPower, SettingRadar
	Level   lamp.PowerLevel // SettingLevel
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	commands   chan<- Command
}

// New creates a Server that reads state from the given tracker.
// metrics, if non-nil, is mounted at /metrics. commands, if non-nil, enables
// POST /control; the control loop owns the receiving end.
func New(addr string, tracker *status.Tracker, metrics http.Handler, commands chan<- Command) *Server {
	s := &Server{tracker: tracker, commands: commands}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/radar.json", s.handleRadar)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	if commands != nil {
		mux.HandleFunc("/control", s.handleControl)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleRadar(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatRadarJSON(s.tracker.Snapshot()))
}

// handleControl accepts exactly one of power=on|off, radar=on|off or
// level=20|40|70|100. The change is applied on the next loop tick.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd, err := parseCommand(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	select {
	case s.commands <- cmd:
	default:
		http.Error(w, "control queue full", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintf(w, "%s accepted\n", cmd.Setting)
}

func parseCommand(r *http.Request) (Command, error) {
	var cmds []Command
	for _, setting := range []Setting{SettingPower, SettingRadar, SettingLevel} {
		v := r.PostForm.Get(setting.String())
		if v == "" {
			continue
		}
		cmd := Command{Setting: setting}
		if setting == SettingLevel {
			l, ok := parseLevel(v)
			if !ok {
				return Command{}, fmt.Errorf("invalid level %q", v)
			}
			cmd.Level = l
		} else {
			switch v {
			case "on":
				cmd.On = true
			case "off":
			default:
				return Command{}, fmt.Errorf("invalid %s value %q", setting, v)
			}
		}
		cmds = append(cmds, cmd)
	}
	if len(cmds) != 1 {
		return Command{}, errors.New("expected exactly one of power, radar or level")
	}
	return cmds[0], nil
}

func parseLevel(v string) (lamp.PowerLevel, bool) {
	for _, l := range []lamp.PowerLevel{lamp.Power20, lamp.Power40, lamp.Power70, lamp.Power100} {
		if v == fmt.Sprint(l.Percent()) {
			return l, true
		}
	}
	return lamp.PowerOff, false
}
