package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"asic_chain/log"
	"asic_chain/util"
)

const (
	MAX_RECEIVE_BUF = 1 << 20
)

type TCPClient struct {
	Addr          string
	Reconnect     bool
	Conn          net.Conn
	TxBytes       int
	RxBytes       int
	Errors        int
	RedialCount   int
	LastErrorTS   float64
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	DialTimeout   time.Duration
	AppendNewline bool
	mx            sync.Mutex
}

func NewTCPClient(addr string) *TCPClient {
	var err error
	var my TCPClient = TCPClient{
		Addr:          addr,
		Reconnect:     true,
		AppendNewline: true,
	}

	my.ReadTimeout = time.Second * 15
	my.WriteTimeout = time.Second * 15
	my.DialTimeout = time.Second * 1 // timeout faster for internal conn and UT

	myDialer := net.Dialer{Timeout: my.DialTimeout}
	my.Conn, err = myDialer.Dial("tcp", my.Addr)
	if err != nil {
		log.Debugf("can't connect to %s err %v", my.Addr, err)
	}

	return &my
}

func (my *TCPClient) redial() error {
	var err error
	if my.Conn != nil {
		my.Conn.Close()
	}
	myDialer := net.Dialer{Timeout: my.DialTimeout}
	my.Conn, err = myDialer.Dial("tcp", my.Addr)
	my.RedialCount++
	if err != nil {
		log.Debugf("can't connect to %s err %v", my.Addr, err)
		my.Errors++
		my.LastErrorTS = util.NowInSec()
	} else {
		my.Errors = 0
	}

	return err
}

func (my *TCPClient) sendAndReceive(reqbuf []byte) ([]byte, int, error) {
	var err error
	var n int

	if my.Conn == nil || my.Errors > 0 {
		err = my.redial()
		if err != nil {
			return nil, 0, err
		}
	}

	err = my.Conn.SetWriteDeadline(time.Now().Add(my.WriteTimeout))
	if err != nil {
		log.Debugf("err %v", err)
	}

	if my.AppendNewline {
		n = len(reqbuf)
		if n > 0 {
			if reqbuf[n-1] != '\n' {
				reqbuf = append(reqbuf, '\n')
			}
		}
	}

	n, err = my.Conn.Write(reqbuf)
	if err != nil {
		log.Errorf("Sent error %v", err)
		my.Errors++
		my.LastErrorTS = util.NowInSec()
		return nil, 0, err
	}
	my.TxBytes += n

	err = my.Conn.SetReadDeadline(time.Now().Add(my.ReadTimeout))
	if err != nil {
		log.Debugf("err %v", err)
	}

	// replies are one line; read until its newline
	reply := make([]byte, 0, 4096)
	tmp := make([]byte, 4096)
	for !bytes.Contains(reply, []byte{'\n'}) {
		n, err = my.Conn.Read(tmp)
		reply = append(reply, tmp[:n]...)
		if err != nil {
			if len(reply) > 0 && errors.Is(err, io.EOF) {
				break
			}
			log.Errorf("Rx error %v", err)
			my.Errors++
			my.LastErrorTS = util.NowInSec()
			return nil, 0, err
		}
		if len(reply) > MAX_RECEIVE_BUF {
			return nil, 0, errors.New("reply too long")
		}
	}
	my.RxBytes += len(reply)

	return reply, len(reply), nil
}

func (my *TCPClient) SendAndReceive(reqbuf []byte) ([]byte, int, error) {
	my.mx.Lock()
	defer my.mx.Unlock()

	reply, n, err := my.sendAndReceive(reqbuf)
	// retry once so it is transparent for clients when socket connection is down
	if err != nil && my.Reconnect {
		reply, n, err = my.sendAndReceive(reqbuf)
	}
	return reply, n, err
}

func (my *TCPClient) Shutdown() {
	my.mx.Lock()
	defer my.mx.Unlock()

	if my.Conn != nil {
		my.Conn.Close()
	}
}

// Command sends one status API request and decodes the reply.
func (my *TCPClient) Command(cmd string, param interface{}) (*APIResponse, error) {
	req, err := json.Marshal(APIRequest{Command: cmd, Parameter: param})
	if err != nil {
		return nil, err
	}
	reply, _, err := my.SendAndReceive(req)
	if err != nil {
		return nil, err
	}
	var resp APIResponse
	if err := json.Unmarshal(bytes.TrimSpace(reply), &resp); err != nil {
		return nil, fmt.Errorf("bad reply %q: %w", reply, err)
	}
	if resp.Status != StatusOK {
		return &resp, fmt.Errorf("%s: %s", cmd, resp.Error)
	}
	return &resp, nil
}
