package locate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/fieldquest/fieldtrack/internal/geo"
)

// DefaultGPSDAddr is the standard gpsd listen address.
const DefaultGPSDAddr = "localhost:2947"

// GPSD reads position reports from a gpsd daemon over its line-delimited
// JSON protocol. The connection is established lazily on the first request
// and re-established after any read error.
type GPSD struct {
	addr string

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
}

// NewGPSD creates a provider targeting the given gpsd address. An empty addr
// selects the default localhost:2947.
func NewGPSD(addr string) *GPSD {
	if addr == "" {
		addr = DefaultGPSDAddr
	}
	return &GPSD{addr: addr}
}

// tpvReport mirrors the fields of a gpsd TPV (time-position-velocity) class
// report that we consume. Mode 2 is a 2D fix, mode 3 adds altitude.
type tpvReport struct {
	Class  string   `json:"class"`
	Mode   int      `json:"mode"`
	Time   string   `json:"time"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	AltMSL *float64 `json:"altMSL"`
	Track  *float64 `json:"track"`
	Speed  *float64 `json:"speed"`
	EPH    *float64 `json:"eph"`
	EPX    *float64 `json:"epx"`
	EPY    *float64 `json:"epy"`
}

// Current blocks until gpsd delivers a TPV report with at least a 2D fix,
// then converts it to a position sample. Deadlines come from ctx.
func (g *GPSD) Current(ctx context.Context) (geo.PositionSample, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.connectLocked(ctx); err != nil {
		return geo.PositionSample{}, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		g.conn.SetReadDeadline(deadline)
	} else {
		g.conn.SetReadDeadline(time.Time{})
	}

	for {
		line, err := g.reader.ReadBytes('\n')
		if err != nil {
			g.closeLocked()
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return geo.PositionSample{}, ErrTimeout
			}
			return geo.PositionSample{}, fmt.Errorf("%w: reading from gpsd: %v", ErrUnavailable, err)
		}

		var tpv tpvReport
		if err := json.Unmarshal(line, &tpv); err != nil {
			// Non-JSON noise on the wire; skip the line.
			continue
		}
		if tpv.Class != "TPV" || tpv.Mode < 2 || tpv.Lat == nil || tpv.Lon == nil {
			continue
		}
		return tpvToSample(tpv), nil
	}
}

func tpvToSample(tpv tpvReport) geo.PositionSample {
	sample := geo.PositionSample{
		Latitude:       *tpv.Lat,
		Longitude:      *tpv.Lon,
		AccuracyMeters: tpvAccuracy(tpv),
		Heading:        tpv.Track,
		Speed:          tpv.Speed,
		CapturedAt:     time.Now().UTC(),
	}
	if tpv.Mode >= 3 {
		sample.Altitude = tpv.AltMSL
	}
	if tpv.Time != "" {
		if t, err := time.Parse(time.RFC3339, tpv.Time); err == nil {
			sample.CapturedAt = t
		}
	}
	return sample
}

// tpvAccuracy derives a single horizontal accuracy figure from whatever
// error estimates the receiver reported. Absent all of them we assume a
// poor fix so the accuracy gate retries.
func tpvAccuracy(tpv tpvReport) float64 {
	if tpv.EPH != nil {
		return *tpv.EPH
	}
	if tpv.EPX != nil && tpv.EPY != nil {
		if *tpv.EPX > *tpv.EPY {
			return *tpv.EPX
		}
		return *tpv.EPY
	}
	return 1000
}

func (g *GPSD) connectLocked(ctx context.Context) error {
	if g.conn != nil {
		return nil
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", g.addr)
	if err != nil {
		return fmt.Errorf("%w: connecting to gpsd at %s: %v", ErrUnavailable, g.addr, err)
	}

	if _, err := conn.Write([]byte(`?WATCH={"enable":true,"json":true}` + "\n")); err != nil {
		conn.Close()
		return fmt.Errorf("%w: enabling gpsd watch: %v", ErrUnavailable, err)
	}

	g.conn = conn
	g.reader = bufio.NewReader(conn)
	return nil
}

func (g *GPSD) closeLocked() {
	if g.conn != nil {
		g.conn.Close()
		g.conn = nil
		g.reader = nil
	}
}

// Close tears down the gpsd connection.
func (g *GPSD) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeLocked()
	return nil
}
