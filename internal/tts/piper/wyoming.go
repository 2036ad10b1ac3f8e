package piper

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxEventJSON bounds the JSON header of a single Wyoming event.
const maxEventJSON = 1 << 20

// event is one Wyoming protocol message:
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (if payload_length > 0)
type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

func writeEvent(w io.Writer, evt event, payload []byte) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling %s event: %w", evt.Type, err)
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d\n", len(body), len(payload))
	bw.Write(body)
	bw.WriteByte('\n')
	bw.Write(payload)
	return bw.Flush()
}

func readEvent(r *bufio.Reader) (event, []byte, error) {
	header, err := r.ReadString('\n')
	if err != nil {
		return event{}, nil, fmt.Errorf("reading header: %w", err)
	}
	fields := strings.Fields(header)
	if len(fields) != 2 {
		return event{}, nil, fmt.Errorf("invalid wyoming header: %q", strings.TrimSpace(header))
	}
	jsonLen, err := strconv.Atoi(fields[0])
	if err != nil || jsonLen < 0 || jsonLen > maxEventJSON {
		return event{}, nil, fmt.Errorf("invalid json_length %q", fields[0])
	}
	payloadLen, err := strconv.Atoi(fields[1])
	if err != nil || payloadLen < 0 {
		return event{}, nil, fmt.Errorf("invalid payload_length %q", fields[1])
	}

	// JSON plus its trailing newline.
	buf := make([]byte, jsonLen+1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return event{}, nil, fmt.Errorf("reading json: %w", err)
	}
	var evt event
	if err := json.Unmarshal(buf[:jsonLen], &evt); err != nil {
		return event{}, nil, fmt.Errorf("unmarshalling event: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return event{}, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return evt, payload, nil
}

func intField(data map[string]any, key string, def int) int {
	if v, ok := data[key].(float64); ok && v > 0 {
		return int(v)
	}
	return def
}
