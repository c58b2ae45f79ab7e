/*
Package serial talks to the pond's sensor controller board over a serial line.

The board speaks a line protocol terminated by carriage returns. "S" asks for a
reading, answered by "Rvd:<distance>" and "invariance:<variance>". "P<n>" sets
the pump to n percent, answered by "pump update:<n>". Failures are reported as
"Error <code>".
*/
package serial

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	tarm "github.com/tarm/serial"
	"github.com/westphae/gopond/sensors"
)

const (
	BaudRate    = 9600
	QuietPeriod = 200 * time.Millisecond // Silence that ends a reply
	BufSize     = 64                     // Lines buffered from the board
	MinDistance = 30
	MaxDistance = 9998
)

// Controller error codes sent by the board.
const (
	CodeNoResponse = iota
	CodeIncorrectDistance
	CodePumpOutOfBounds
	CodeNoSensorReadings
	CodeIncorrectInput
	CodeConversion
	CodeCommunication
	CodeSensorReadsZero
)

var codeKinds = map[int]sensors.ErrKind{
	CodeNoResponse:        sensors.Timeout,
	CodeIncorrectDistance: sensors.OutOfSpec,
	CodePumpOutOfBounds:   sensors.PumpOutOfBounds,
	CodeNoSensorReadings:  sensors.NoReading,
	CodeIncorrectInput:    sensors.MalformedInput,
	CodeConversion:        sensors.ParseFailure,
	CodeCommunication:     sensors.OutOfSpec,
	CodeSensorReadsZero:   sensors.ZeroReading,
}

var intRe = regexp.MustCompile(`-?\d+`)

// Controller is a sensors.Link to the board. It is not safe for concurrent use.
type Controller struct {
	rw      io.ReadWriter
	lines   chan string
	readErr error

	done      chan struct{} // Closed by Close
	stopped   chan struct{} // Closed when listen returns
	closeOnce sync.Once

	QuietPeriod              time.Duration
	MinDistance, MaxDistance int
}

// Open opens the named serial port at baud and starts listening to it.
func Open(name string, baud int) (*Controller, error) {
	if baud <= 0 {
		baud = BaudRate
	}
	port, err := tarm.OpenPort(&tarm.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, fmt.Errorf("serial: couldn't open %s: %s", name, err)
	}
	return New(port), nil
}

// New wraps an already open connection to the board.
func New(rw io.ReadWriter) *Controller {
	c := &Controller{
		rw:          rw,
		lines:       make(chan string, BufSize),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		QuietPeriod: QuietPeriod,
		MinDistance: MinDistance,
		MaxDistance: MaxDistance,
	}
	go c.listen()
	return c
}

func (c *Controller) listen() {
	defer close(c.stopped)
	defer close(c.lines)
	r := bufio.NewReader(c.rw)
	for {
		s, err := r.ReadString('\r')
		if s = strings.TrimSpace(s); s != "" {
			select {
			case c.lines <- s:
			case <-c.done:
				c.readErr = io.ErrClosedPipe
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

// Close stops the listener and closes the connection if it can be closed.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	if cl, ok := c.rw.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

func (c *Controller) write(cmd string) error {
	if _, err := io.WriteString(c.rw, cmd+"\r"); err != nil {
		return &sensors.LinkError{Kind: sensors.Unknown, Msg: fmt.Sprintf("writing %q", cmd), Err: err}
	}
	return nil
}

// drain discards whatever the board sent before the next command.
func (c *Controller) drain() (stale []string) {
	for {
		select {
		case s, ok := <-c.lines:
			if !ok {
				return
			}
			stale = append(stale, s)
		default:
			return
		}
	}
}

// exchange collects a reply until done reports true, the board goes quiet
// after having said something, or ctx ends.
func (c *Controller) exchange(ctx context.Context, done func(line string) (bool, error)) (lines []string, err error) {
	var quiet <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if len(lines) == 0 {
				return lines, &sensors.LinkError{Kind: sensors.Timeout, Msg: "no response from controller", Err: ctx.Err()}
			}
			return lines, nil
		case <-quiet:
			return lines, nil
		case s, ok := <-c.lines:
			if !ok {
				return lines, &sensors.LinkError{Kind: sensors.Unknown, Msg: "connection closed", Err: c.readErr}
			}
			lines = append(lines, s)
			if strings.Contains(s, "Error") {
				return lines, controllerError(s)
			}
			fin, errd := done(s)
			if errd != nil || fin {
				return lines, errd
			}
			quiet = time.After(c.QuietPeriod)
		}
	}
}

func controllerError(s string) *sensors.LinkError {
	code, err := parseInt(s)
	if err != nil {
		return err
	}
	kind, ok := codeKinds[code]
	if !ok {
		kind = sensors.Unknown
	}
	return sensors.NewLinkError(kind, "controller error %d", code)
}

func parseInt(s string) (int, *sensors.LinkError) {
	m := intRe.FindString(s)
	if m == "" {
		return 0, sensors.NewLinkError(sensors.ParseFailure, "no integer in %q", s)
	}
	v, err := strconv.Atoi(m)
	if err != nil {
		return 0, &sensors.LinkError{Kind: sensors.ParseFailure, Msg: fmt.Sprintf("bad integer in %q", s), Err: err}
	}
	return v, nil
}

// attach records the traffic around a failure on the error.
func (c *Controller) attach(err error, lines []string) error {
	le := sensors.AsLinkError(err)
	le.Lines = append(append(le.Lines, lines...), c.drain()...)
	return le
}

// Read asks the board for a distance reading.
func (c *Controller) Read(ctx context.Context) (sensors.Reading, error) {
	if stale := c.drain(); len(stale) > 0 {
		log.Debugf("serial: discarded %d stale lines", len(stale))
	}
	if err := c.write("S"); err != nil {
		return sensors.Reading{}, err
	}

	distance, invariance := -1, -1
	lines, err := c.exchange(ctx, func(s string) (bool, error) {
		switch {
		case strings.Contains(s, "invariance:"):
			v, err := parseInt(s)
			if err != nil {
				return false, err
			}
			invariance = v
		case strings.Contains(s, "Rvd:"):
			v, err := parseInt(s)
			if err != nil {
				return false, err
			}
			distance = v
		default:
			log.Debugf("serial: ignoring %q", s)
		}
		return distance != -1 && invariance != -1, nil
	})
	if err != nil {
		return sensors.Reading{}, c.attach(err, lines)
	}

	switch {
	case distance == -1 || invariance == -1:
		err = sensors.NewLinkError(sensors.NoReading, "distance %d, invariance %d", distance, invariance)
	case distance == 0:
		err = sensors.NewLinkError(sensors.ZeroReading, "the distance sensor reads zero")
	case distance < c.MinDistance || distance > c.MaxDistance:
		err = sensors.NewLinkError(sensors.OutOfSpec, "distance %d outside [%d, %d]", distance, c.MinDistance, c.MaxDistance)
	}
	if err != nil {
		return sensors.Reading{}, c.attach(err, lines)
	}

	return sensors.Reading{Distance: float64(distance), Quality: float64(invariance), T: time.Now()}, nil
}

// SetPump sets the pump speed in percent and waits for the board to confirm it.
func (c *Controller) SetPump(ctx context.Context, percent int) error {
	if percent < 0 || percent > 100 {
		return sensors.NewLinkError(sensors.MalformedInput, "pump value %d outside [0, 100]", percent)
	}
	c.drain()
	if err := c.write(fmt.Sprintf("P%d", percent)); err != nil {
		return err
	}

	got := -1
	lines, err := c.exchange(ctx, func(s string) (bool, error) {
		if !strings.Contains(s, "pump update:") {
			return false, nil
		}
		v, err := parseInt(s)
		if err != nil {
			return false, err
		}
		got = v
		return true, nil
	})
	if err == nil && got != percent {
		err = sensors.NewLinkError(sensors.OutOfSpec, "pump update response %d, want %d", got, percent)
	}
	if err != nil {
		return c.attach(err, lines)
	}
	return nil
}
