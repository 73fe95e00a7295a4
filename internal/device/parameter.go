package device

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Default intervals in seconds.
const (
	DefaultCollectInterval = 5
	DefaultOnInterval      = 5
	DefaultOffInterval     = 10
)

// MaxIntervalSeconds caps every interval at 30 days.
const MaxIntervalSeconds = 30 * 24 * 60 * 60

// Parameter is one interval a remote command can change.
//
// The value is written by the command handler goroutine and read by the
// device loop, so it lives in an atomic cell.
type Parameter struct {
	// Command is the recognised key in a command message, e.g. setCollectInterval.
	Command string

	// Field names the value in the ConfigStore key {id}_{Field}.
	Field string

	// AckKey carries the new value in the acknowledgement, e.g. ci.
	AckKey string

	seconds atomic.Int64
}

// loadParameter reads {id}_{field} from st, falling back to def.
func loadParameter(st ConfigStore, id Identity, command, field, ackKey string, def int) (*Parameter, error) {
	n, err := st.GetInt(id.storeKey(field), def)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfig, id.storeKey(field), err)
	}
	if err := checkInterval(int64(n)); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfig, id.storeKey(field), err)
	}

	p := &Parameter{Command: command, Field: field, AckKey: ackKey}
	p.seconds.Store(int64(n))
	return p, nil
}

// Seconds returns the current value.
func (p *Parameter) Seconds() int64 {
	return p.seconds.Load()
}

// Duration returns the current value as a Duration.
func (p *Parameter) Duration() time.Duration {
	return time.Duration(p.Seconds()) * time.Second
}

func (p *Parameter) set(n int64) {
	p.seconds.Store(n)
}

// ack builds the acknowledgement of an applied command.
func (p *Parameter) ack(n int64) map[string]any {
	return map[string]any{
		p.AckKey:             n,
		p.Command + "_info":   fmt.Sprintf("Updated to %d seconds", n),
		p.Command + "_status": "OK",
	}
}

// nack builds the reply to a rejected command.
func (p *Parameter) nack(reason string) map[string]any {
	return map[string]any{
		p.Command + "_info":   reason,
		p.Command + "_status": "ERROR",
	}
}

var errNotInteger = errors.New("not an integer")

// checkInterval requires 1 <= n <= MaxIntervalSeconds.
func checkInterval(n int64) error {
	if n <= 0 {
		return fmt.Errorf("%d is not positive", n)
	}
	if n > MaxIntervalSeconds {
		return fmt.Errorf("%d exceeds the maximum of %d seconds", n, MaxIntervalSeconds)
	}
	return nil
}

// parseInterval accepts a JSON integer, or a string holding one, within
// the range allowed by checkInterval.
func parseInterval(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)

	var n int64
	switch {
	case len(raw) > 0 && raw[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is %w", s, errNotInteger)
		}
		n = v
	default:
		v, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s is %w", raw, errNotInteger)
		}
		n = v
	}

	if err := checkInterval(n); err != nil {
		return 0, err
	}
	return n, nil
}
