package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"asic_chain/log"
)

// APIRequest is one line of the status API: {"command":"summary"}.
type APIRequest struct {
	Command   string      `json:"command"`
	Parameter interface{} `json:"parameter"`
}

// APIResponse wraps every reply.
type APIResponse struct {
	Status  string      `json:"status"`
	Command string      `json:"command"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

const (
	StatusOK    = "S"
	StatusError = "E"
)

type ServerHandlerFunc func(*Server, net.Conn, *APIRequest, []byte, error) error

type Server struct {
	listener       net.Listener
	done           chan interface{}
	wg             sync.WaitGroup
	handler        ServerHandlerFunc
	bConnKeepAlive bool
	AppendNewline  bool
	ReadTimeout    time.Duration
	// IdleTimeout closes a kept alive connection that sends nothing
	IdleTimeout time.Duration
}

func NewServer(addr string, handler ServerHandlerFunc, bKeepAlive bool) (*Server, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener:       l,
		done:           make(chan interface{}),
		handler:        handler,
		bConnKeepAlive: bKeepAlive,
		AppendNewline:  true,
		ReadTimeout:    time.Millisecond * 100,
		IdleTimeout:    time.Minute,
	}
	if s.handler == nil {
		s.handler = DefaultServerHandler
	}
	s.wg.Add(1)
	return s, nil
}

// Addr is the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) ListenAndServe() {
	if s == nil {
		return
	}

	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				log.Errorf("Accept error %v", err)
				continue
			}
		}
		s.wg.Add(1)
		go func() {
			s.handleConnection(conn)
			s.wg.Done()
		}()
	}
}

func (s *Server) Shutdown(ctx context.Context) {
	if s == nil {
		return
	}
	close(s.done)
	s.listener.Close()

	idle := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(idle)
	}()
	select {
	case <-idle:
	case <-ctx.Done():
		log.Infof("api shutdown: %v", ctx.Err())
	}
}

// readRequest reads up to the first newline; bytes after it stay in
// pending for the next call. With AppendNewline a request that stops short
// of a newline is taken as complete once the peer goes quiet for
// ReadTimeout or closes.
func (s *Server) readRequest(conn net.Conn, pending *[]byte) ([]byte, error) {
	buf := *pending
	tmp := make([]byte, 4096)
	idleUntil := time.Now().Add(s.IdleTimeout)
	for {
		if i := bytes.IndexByte(buf, '\n'); i >= 0 {
			*pending = append([]byte(nil), buf[i+1:]...)
			return buf[:i+1], nil
		}
		if len(buf) > MAX_RECEIVE_BUF {
			*pending = nil
			return nil, errors.New("request too long")
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		n, err := conn.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if n > 0 {
			continue
		}

		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			if len(buf) == 0 {
				if time.Now().After(idleUntil) {
					return nil, io.EOF
				}
				select {
				case <-s.done:
					return nil, io.EOF
				default:
				}
				continue
			}
		case err == io.EOF && len(buf) > 0:
		case err != nil:
			return nil, err
		default:
			continue
		}
		*pending = nil
		if s.AppendNewline {
			return append(buf, '\n'), nil
		}
		return buf, nil
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	log.Debug("Connection from ", conn.RemoteAddr())
	defer conn.Close()

	var pending []byte
	for {
		buf, err := s.readRequest(conn, &pending)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		} else if err != nil {
			log.Infof("handleConnection Err %v", err)
			break
		}

		req := APIRequest{}
		err = json.Unmarshal(buf, &req)

		if herr := s.handler(s, conn, &req, buf, err); herr != nil {
			log.Error(herr)
		}

		if !s.bConnKeepAlive {
			// one connection per command as default
			break
		}
	}

	log.Debug("Server disconnected from ", conn.RemoteAddr())
}

func DefaultServerHandler(s *Server, conn net.Conn, req *APIRequest, rawbuf []byte, err error) error {
	resp := APIResponse{Status: StatusError, Command: req.Command, Error: "no handler"}
	if err != nil {
		resp.Error = err.Error()
	}
	return WriteJSON(conn, resp)
}
