package ledger

import (
	"fmt"
	"net/url"
	"strconv"
)

// Direction indicates which way a cursor walks the log.
type Direction int

const (
	Forward Direction = iota
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

func parseDirection(s string) (Direction, error) {
	switch s {
	case "forward", "":
		return Forward, nil
	case "backward":
		return Backward, nil
	default:
		return Forward, fmt.Errorf("ledger: unknown cursor direction %q", s)
	}
}

// Cursor tracks a byte-offset position over the append-only log, along with
// bookkeeping from the last fetch.
type Cursor struct {
	DataBeginPosition int64
	Position          int64
	DataEndPosition   int64
	ResponseBytes     int64
	Direction         Direction
	More              bool
}

// String url-encodes the cursor for debugging/transport.
func (c Cursor) String() string {
	v := url.Values{}
	v.Set("position", strconv.FormatInt(c.Position, 10))
	v.Set("response_bytes", strconv.FormatInt(c.ResponseBytes, 10))
	v.Set("direction", c.Direction.String())
	v.Set("more", strconv.FormatBool(c.More))
	return v.Encode()
}

// ParseCursor parses the url-encoded form produced by Cursor.String. Fields
// absent from the input keep their zero value, except direction which
// defaults to Forward.
func ParseCursor(s string) (Cursor, error) {
	v, err := url.ParseQuery(s)
	if err != nil {
		return Cursor{}, fmt.Errorf("ledger: parse cursor: %w", err)
	}
	var c Cursor
	if p := v.Get("position"); p != "" {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return Cursor{}, fmt.Errorf("ledger: parse cursor position: %w", err)
		}
		c.Position = n
	}
	if rb := v.Get("response_bytes"); rb != "" {
		n, err := strconv.ParseInt(rb, 10, 64)
		if err != nil {
			return Cursor{}, fmt.Errorf("ledger: parse cursor response_bytes: %w", err)
		}
		c.ResponseBytes = n
	}
	dir, err := parseDirection(v.Get("direction"))
	if err != nil {
		return Cursor{}, err
	}
	c.Direction = dir
	if m := v.Get("more"); m != "" {
		b, err := strconv.ParseBool(m)
		if err != nil {
			return Cursor{}, fmt.Errorf("ledger: parse cursor more: %w", err)
		}
		c.More = b
	}
	return c, nil
}

// UpstreamMetadata is the {data_begin, next_write_position} pair published by
// the upstream ledger, used to clamp fetch windows.
type UpstreamMetadata struct {
	DataBegin        int64
	NextWritePosition int64
	StorageBytes      int64
}

// FetchChunk is the maximum number of bytes requested per sync tick.
const FetchChunk = 1 << 20 // 1 MiB

// PlanFetch computes the next fetch window for a requested position, per the
// clamp-and-chunk rules of the cursor/fetch protocol.
func PlanFetch(position int64, meta UpstreamMetadata) Cursor {
	start := position
	if start < meta.DataBegin {
		start = meta.DataBegin
	}
	endOfLog := meta.NextWritePosition
	if meta.StorageBytes < endOfLog {
		endOfLog = meta.StorageBytes
	}

	responseStart := start
	responseEnd := responseStart + FetchChunk
	if responseEnd > endOfLog {
		responseEnd = endOfLog
	}

	if responseStart >= responseEnd {
		return Cursor{
			DataBeginPosition: meta.DataBegin,
			Position:          endOfLog,
			DataEndPosition:   endOfLog,
			ResponseBytes:     0,
			Direction:         Forward,
			More:              false,
		}
	}

	return Cursor{
		DataBeginPosition: meta.DataBegin,
		Position:          responseStart,
		DataEndPosition:   endOfLog,
		ResponseBytes:     responseEnd - responseStart,
		Direction:         Forward,
		More:              responseEnd < endOfLog,
	}
}
