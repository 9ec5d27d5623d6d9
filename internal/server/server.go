// Package server implements the TCP front end: a single reactor goroutine
// multiplexes the admin listener, the client listener, a self-pipe wakeup
// descriptor, and every idle connection's file descriptor via poll(2)
// (golang.org/x/sys/unix), handing authenticated requests off to a
// fixed-size worker pool driven by a mutex + sync.Cond. Workers pop a
// connection, read one framed request, dispatch it against the executor,
// and write one framed response; a poison work item shuts a worker down.
package server

import (
	"errors"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/d-bee/dbee/internal/catalog"
	"github.com/d-bee/dbee/internal/dbeeerr"
	"github.com/d-bee/dbee/internal/executor"
)

// Config configures one server instance.
type Config struct {
	BaseDir    string
	ClientAddr string
	AdminAddr  string
	Workers    int
}

type connKind int

const (
	kindClient connKind = iota
	kindAdmin
)

type connState struct {
	fd            int
	conn          net.Conn
	kind          connKind
	dbName        string
	authed        bool
	busy          bool
	cursorHandles map[[16]byte]bool
}

type workItem struct {
	fd     int
	poison bool
}

// Server owns the two listeners, the database registry, the read-mostly
// executor map, and the worker pool.
type Server struct {
	cfg      Config
	registry *catalog.Registry
	adminKey string

	clientLn *net.TCPListener
	adminLn  *net.TCPListener

	wakeupR, wakeupW int
	ready            chan struct{}

	execMu    sync.RWMutex
	executors map[string]*executor.Executor

	connMu sync.Mutex
	conns  map[int]*connState

	workMu   sync.Mutex
	workCond *sync.Cond
	queue    []workItem

	shuttingDown atomic.Bool
}

// New constructs a server and loads (or bootstraps) its registry and
// admin key, but does not yet listen.
func New(cfg Config) (*Server, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
		return nil, dbeeerr.Wrap(dbeeerr.Storage, "create base directory", err)
	}
	reg, err := catalog.OpenRegistry(cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	adminKey, err := catalog.LoadOrCreateAdminKey(cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:       cfg,
		registry:  reg,
		adminKey:  adminKey,
		executors: map[string]*executor.Executor{},
		conns:     map[int]*connState{},
		ready:     make(chan struct{}),
	}
	s.workCond = sync.NewCond(&s.workMu)

	for _, name := range reg.GetDatabaseNames() {
		ex, err := executor.Open(filepath.Join(cfg.BaseDir, name))
		if err != nil {
			return nil, err
		}
		s.executors[name] = ex
	}
	return s, nil
}

// Run starts the two listeners, the worker pool, and the reactor; it
// blocks until an admin terminate request (or an unrecoverable error)
// shuts the server down.
func (s *Server) Run() error {
	clientLn, err := net.Listen("tcp", s.cfg.ClientAddr)
	if err != nil {
		return dbeeerr.Wrap(dbeeerr.Storage, "listen client", err)
	}
	s.clientLn = clientLn.(*net.TCPListener)

	adminLn, err := net.Listen("tcp", s.cfg.AdminAddr)
	if err != nil {
		return dbeeerr.Wrap(dbeeerr.Storage, "listen admin", err)
	}
	s.adminLn = adminLn.(*net.TCPListener)

	// Non-blocking on both ends: drainWakeup reads until EAGAIN, and a
	// wake against a full pipe is safely dropped (the reactor is about to
	// wake anyway).
	var pipeFDs [2]int
	if err := unix.Pipe2(pipeFDs[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return dbeeerr.Wrap(dbeeerr.Internal, "create wakeup pipe", err)
	}
	s.wakeupR, s.wakeupW = pipeFDs[0], pipeFDs[1]
	close(s.ready)

	var g errgroup.Group
	for i := 0; i < s.cfg.Workers; i++ {
		g.Go(func() error {
			s.workerLoop()
			return nil
		})
	}
	g.Go(func() error {
		s.reactorLoop()
		return nil
	})
	return g.Wait()
}

// Ready is closed once both listeners are bound, letting a caller that
// started Run in a goroutine (typically a test binding port 0) learn the
// assigned addresses before dialing.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// ClientAddr returns the client listener's bound address. Only valid
// after Ready has fired.
func (s *Server) ClientAddr() net.Addr { return s.clientLn.Addr() }

// AdminAddr returns the admin listener's bound address.
func (s *Server) AdminAddr() net.Addr { return s.adminLn.Addr() }

// Shutdown requests a graceful stop: it wakes the reactor, which closes
// the listeners, drains every connection, and pushes one poison marker
// per worker.
func (s *Server) Shutdown() {
	if s.shuttingDown.Swap(true) {
		return
	}
	unix.Write(s.wakeupW, []byte{1})
}

func listenerFD(ln *net.TCPListener) int {
	rc, err := ln.SyscallConn()
	if err != nil {
		return -1
	}
	var fd int
	rc.Control(func(f uintptr) { fd = int(f) })
	return fd
}

func connFD(c *net.TCPConn) int {
	rc, err := c.SyscallConn()
	if err != nil {
		return -1
	}
	var fd int
	rc.Control(func(f uintptr) { fd = int(f) })
	return fd
}

type fdKind int

const (
	fdWakeup fdKind = iota
	fdClientListener
	fdAdminListener
	fdConn
)

func (s *Server) reactorLoop() {
	clientFD := listenerFD(s.clientLn)
	adminFD := listenerFD(s.adminLn)

	for {
		s.connMu.Lock()
		pfds := make([]unix.PollFd, 0, len(s.conns)+3)
		kinds := make([]fdKind, 0, cap(pfds))
		pfds = append(pfds, unix.PollFd{Fd: int32(s.wakeupR), Events: unix.POLLIN})
		kinds = append(kinds, fdWakeup)
		pfds = append(pfds, unix.PollFd{Fd: int32(clientFD), Events: unix.POLLIN})
		kinds = append(kinds, fdClientListener)
		pfds = append(pfds, unix.PollFd{Fd: int32(adminFD), Events: unix.POLLIN})
		kinds = append(kinds, fdAdminListener)
		for fd, cs := range s.conns {
			// A busy fd is owned by a worker until it finishes the request;
			// polling it again would just spin on the same readable event.
			if cs.busy {
				continue
			}
			pfds = append(pfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
			kinds = append(kinds, fdConn)
		}
		s.connMu.Unlock()

		n, err := unix.Poll(pfds, -1)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			log.Printf("server: poll: %v", err)
			continue
		}
		if n <= 0 {
			continue
		}

		for i, pfd := range pfds {
			if pfd.Revents == 0 {
				continue
			}
			switch kinds[i] {
			case fdWakeup:
				s.drainWakeup()
				if s.shuttingDown.Load() {
					s.finalizeShutdown()
					return
				}
			case fdClientListener:
				s.acceptOne(s.clientLn, kindClient)
			case fdAdminListener:
				s.acceptOne(s.adminLn, kindAdmin)
			case fdConn:
				s.onConnReadable(int(pfd.Fd))
			}
		}
	}
}

func (s *Server) drainWakeup() {
	var buf [64]byte
	for {
		n, err := unix.Read(s.wakeupR, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (s *Server) finalizeShutdown() {
	s.clientLn.Close()
	s.adminLn.Close()

	s.connMu.Lock()
	conns := make([]*connState, 0, len(s.conns))
	for _, cs := range s.conns {
		conns = append(conns, cs)
	}
	s.conns = map[int]*connState{}
	s.connMu.Unlock()
	for _, cs := range conns {
		cs.conn.Close()
	}

	s.workMu.Lock()
	for i := 0; i < s.cfg.Workers; i++ {
		s.queue = append(s.queue, workItem{poison: true})
	}
	s.workCond.Broadcast()
	s.workMu.Unlock()
}

func (s *Server) acceptOne(ln *net.TCPListener, kind connKind) {
	conn, err := ln.Accept()
	if err != nil {
		if !errors.Is(err, net.ErrClosed) {
			log.Printf("server: accept: %v", err)
		}
		return
	}
	tcp := conn.(*net.TCPConn)
	tcp.SetNoDelay(true)
	fd := connFD(tcp)
	cs := &connState{fd: fd, conn: conn, kind: kind, cursorHandles: map[[16]byte]bool{}}

	// The connection stays pending (authed=false) until its first readable
	// event delivers the credential frame.
	s.connMu.Lock()
	s.conns[fd] = cs
	s.connMu.Unlock()
}

func (s *Server) onConnReadable(fd int) {
	s.connMu.Lock()
	cs, ok := s.conns[fd]
	if !ok || cs.busy {
		s.connMu.Unlock()
		return
	}
	if !cs.authed {
		s.connMu.Unlock()
		if s.authenticate(cs) {
			s.connMu.Lock()
			cs.authed = true
			s.connMu.Unlock()
		} else {
			s.dropConn(cs)
		}
		return
	}
	cs.busy = true
	s.connMu.Unlock()
	s.enqueue(fd)
}

// wake breaks the reactor out of poll so it rebuilds its fd set, e.g.
// after a worker returns a connection to the idle pool.
func (s *Server) wake() {
	unix.Write(s.wakeupW, []byte{1})
}

func (s *Server) enqueue(fd int) {
	s.workMu.Lock()
	s.queue = append(s.queue, workItem{fd: fd})
	s.workCond.Signal()
	s.workMu.Unlock()
}

func (s *Server) dequeue() workItem {
	s.workMu.Lock()
	defer s.workMu.Unlock()
	for len(s.queue) == 0 {
		s.workCond.Wait()
	}
	item := s.queue[0]
	s.queue = s.queue[1:]
	return item
}

func (s *Server) workerLoop() {
	for {
		item := s.dequeue()
		if item.poison {
			return
		}
		s.connMu.Lock()
		cs, ok := s.conns[item.fd]
		s.connMu.Unlock()
		if !ok {
			continue
		}
		if err := s.handleOneRequest(cs); err != nil {
			s.dropConn(cs)
			continue
		}
		s.connMu.Lock()
		if _, stillThere := s.conns[item.fd]; stillThere {
			cs.busy = false
		}
		s.connMu.Unlock()
		s.wake()
	}
}

func (s *Server) dropConn(cs *connState) {
	s.connMu.Lock()
	delete(s.conns, cs.fd)
	s.connMu.Unlock()

	if cs.kind == kindClient && cs.dbName != "" {
		if ex, ok := s.getExecutor(cs.dbName); ok {
			for h := range cs.cursorHandles {
				ex.Evict(h)
			}
		}
	}
	cs.conn.Close()
}

func (s *Server) getExecutor(name string) (*executor.Executor, bool) {
	s.execMu.RLock()
	defer s.execMu.RUnlock()
	ex, ok := s.executors[name]
	return ex, ok
}
