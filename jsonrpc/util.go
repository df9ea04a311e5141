package jsonrpc

import (
	"encoding/json"
	"io"

	"asic_chain/log"
)

func PrepareJSONResponse(v interface{}) ([]byte, error) {
	jsonResponse, err := json.Marshal(v)
	if err != nil {
		log.Errorf("err %v", err)
		return nil, err
	}
	n := len(jsonResponse)
	if n > 0 {
		if jsonResponse[n-1] != '\n' {
			jsonResponse = append(jsonResponse, '\n')
		}
	}
	return jsonResponse, nil
}

// WriteJSON writes v as one newline terminated line.
func WriteJSON(w io.Writer, v interface{}) error {
	b, err := PrepareJSONResponse(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
