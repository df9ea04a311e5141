package jsonrpc

import (
	"fmt"
	"net"

	"asic_chain/device"
	"asic_chain/device/asic"
	"asic_chain/util"
	"asic_chain/version"
)

// Provider is what the status API reports on. *device.DeviceManager
// implements it.
type Provider interface {
	Summary() device.Summary
	Slots(id uint) ([]asic.Slot, error)
}

// SlotsReply is the data of the slots command.
type SlotsReply struct {
	Board uint        `json:"board"`
	Slots []asic.Slot `json:"slots"`
}

// NewAPIHandler serves the summary, slots and version commands.
func NewAPIHandler(p Provider) ServerHandlerFunc {
	return func(s *Server, conn net.Conn, req *APIRequest, rawbuf []byte, err error) error {
		resp := APIResponse{Status: StatusOK, Command: req.Command}
		if err != nil {
			resp.Status = StatusError
			resp.Error = fmt.Sprintf("bad request: %v", err)
			return WriteJSON(conn, resp)
		}

		switch req.Command {
		case "summary":
			resp.Data = p.Summary()
		case "slots":
			id, perr := util.ToUint(req.Parameter)
			if perr != nil {
				resp.Status = StatusError
				resp.Error = fmt.Sprintf("slots needs a board id: %v", perr)
				break
			}
			slots, serr := p.Slots(id)
			if serr != nil {
				resp.Status = StatusError
				resp.Error = fmt.Sprintf("board %d: %v", id, serr)
				break
			}
			resp.Data = SlotsReply{Board: id, Slots: slots}
		case "version":
			resp.Data = version.GetVersionConfig()
		default:
			resp.Status = StatusError
			resp.Error = fmt.Sprintf("unknown command %q", req.Command)
		}
		return WriteJSON(conn, resp)
	}
}
