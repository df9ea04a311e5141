package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"
	"time"

	"asic_chain/device"
	"asic_chain/device/asic"
)

type fakeProvider struct{}

func (fakeProvider) Summary() device.Summary {
	return device.Summary{Boards: []device.BoardSummary{{ID: 1, Name: "board1", Status: "Alive"}}}
}

func (fakeProvider) Slots(id uint) ([]asic.Slot, error) {
	if id != 1 {
		return nil, device.ErrDevNotExist
	}
	return []asic.Slot{
		{Position: 0, Address: 0, Assigned: true, Status: asic.Responsive},
		{Position: 1, Address: 128, Assigned: true, Status: asic.Unresponsive},
	}, nil
}

func startServer(t *testing.T, keepAlive bool) *Server {
	t.Helper()
	s, err := NewServer("127.0.0.1:0", NewAPIHandler(fakeProvider{}), keepAlive)
	if err != nil {
		t.Fatalf("listen err=%v", err)
	}
	go s.ListenAndServe()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Shutdown(ctx)
	})
	return s
}

func TestSummaryAndSlots(t *testing.T) {
	s := startServer(t, false)
	c := NewTCPClient(s.Addr().String())
	defer c.Shutdown()

	resp, err := c.Command("summary", nil)
	if err != nil {
		t.Fatalf("summary err=%v", err)
	}
	b, _ := json.Marshal(resp.Data)
	var sum device.Summary
	if err := json.Unmarshal(b, &sum); err != nil || len(sum.Boards) != 1 || sum.Boards[0].Status != "Alive" {
		t.Fatalf("summary %s err=%v", b, err)
	}

	// the server closes after each command, the client redials
	resp, err = c.Command("slots", 1)
	if err != nil {
		t.Fatalf("slots err=%v", err)
	}
	b, _ = json.Marshal(resp.Data)
	if !strings.Contains(string(b), `"status":"unresponsive"`) || !strings.Contains(string(b), `"address":128`) {
		t.Fatalf("slots %s", b)
	}

	if _, err := c.Command("slots", 7); err == nil {
		t.Fatalf("slots of unknown board")
	}
	if resp, err := c.Command("reboot", nil); err == nil || resp.Status != StatusError {
		t.Fatalf("unknown command resp=%+v err=%v", resp, err)
	}
}

func TestKeepAliveAndBadRequest(t *testing.T) {
	s := startServer(t, true)
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial err=%v", err)
	}
	defer conn.Close()

	// two requests in one write, then a broken one
	if _, err := conn.Write([]byte("{\"command\":\"version\"}\n{\"command\":\"summary\"}\n{oops\n")); err != nil {
		t.Fatalf("write err=%v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	r := bufio.NewReader(conn)
	for i, want := range []string{StatusOK, StatusOK, StatusError} {
		line, err := r.ReadBytes('\n')
		if err != nil {
			t.Fatalf("reply %d err=%v", i, err)
		}
		var resp APIResponse
		if err := json.Unmarshal(line, &resp); err != nil || resp.Status != want {
			t.Fatalf("reply %d %s err=%v", i, line, err)
		}
	}
}
