package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"stemdeck/pkg/audioengine"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrControlLocked = errors.New("control locked by another client")

// WriteTimeout bounds every write to a client. A client that stops reading
// is dropped once it expires.
const WriteTimeout = 2 * time.Second

// Event is pushed to every connected client as an "EVENT {json}" line.
type Event struct {
	Type    string  `json:"type"`
	Time    float64 `json:"time"`
	Playing bool    `json:"playing"`
	Track   string  `json:"track,omitempty"`
	Error   string  `json:"error,omitempty"`
}

type client struct {
	id      string
	conn    net.Conn
	timeout time.Duration
	wmu     sync.Mutex
}

func (c *client) send(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

// Server speaks the control protocol over a unix socket. Any client may
// observe; the first client to send a mutating command owns control until
// it disconnects.
type Server struct {
	log          *zap.Logger
	writeTimeout time.Duration

	mu      sync.Mutex
	owner   *client
	clients map[string]*client
	playing bool
}

func NewServer(log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{log: log, writeTimeout: WriteTimeout, clients: make(map[string]*client)}
}

// Listen replaces a stale socket file at path and listens on it.
func Listen(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return net.Listen("unix", path)
}

// Callbacks forwards engine notifications to the connected clients.
func (s *Server) Callbacks() audioengine.Callbacks {
	return audioengine.Callbacks{
		OnTimeUpdate: func(seconds float64) {
			s.Broadcast(Event{Type: "time", Time: seconds, Playing: s.isPlaying()})
		},
		OnPlayStateChange: func(playing bool) {
			s.mu.Lock()
			s.playing = playing
			s.mu.Unlock()
			s.Broadcast(Event{Type: "state", Playing: playing})
		},
		OnError: func(err error) {
			s.log.Warn("engine error", zap.Error(err))
			s.Broadcast(Event{
				Type:    "error",
				Playing: s.isPlaying(),
				Track:   audioengine.TrackIDOf(err),
				Error:   err.Error(),
			})
		},
	}
}

func (s *Server) isPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Broadcast sends ev to every client. A client that cannot be written to
// is disconnected.
func (s *Server) Broadcast(ev Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	line := "EVENT " + string(b)

	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.send(line); err != nil {
			s.log.Debug("drop client", zap.String("conn", c.id), zap.Error(err))
			c.conn.Close()
		}
	}
}

// Serve accepts clients until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener, d *Dispatcher) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.closeAll()
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				s.closeAll()
				return err
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handle(ctx, conn, d)
		}()
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.clients {
		c.conn.Close()
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn, d *Dispatcher) {
	c := &client{id: uuid.NewString(), conn: conn, timeout: s.writeTimeout}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	s.log.Info("client connected", zap.String("conn", c.id))

	defer func() {
		s.release(c)
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		conn.Close()
		s.log.Info("client disconnected", zap.String("conn", c.id))
	}()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		verb, _ := Split(line)

		var reply Reply
		switch {
		case verb == "WHOAMI":
			if s.isOwner(c) {
				reply = ok("owner")
			} else {
				reply = ok("observer")
			}
		case mutating(verb) && !s.claim(c):
			reply = fail(ErrControlLocked)
		default:
			reply = d.Exec(ctx, line)
		}

		if reply.Err != nil {
			s.log.Debug("command failed", zap.String("conn", c.id), zap.String("verb", verb), zap.Error(reply.Err))
		}
		if err := c.send(reply.Line()); err != nil {
			return
		}
	}
}

func mutating(verb string) bool {
	c, found := commands[verb]
	return found && !c.readOnly
}

func (s *Server) isOwner(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner == c
}

func (s *Server) claim(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == nil {
		s.owner = c
		s.log.Info("control claimed", zap.String("conn", c.id))
		return true
	}
	return s.owner == c
}

func (s *Server) release(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.owner == c {
		s.owner = nil
	}
}
