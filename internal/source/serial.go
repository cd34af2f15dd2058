// internal/source/serial.go
package source

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.bug.st/serial"

	"github.com/openecg/ecgmon/internal/pipeline"
)

// SerialSource reads raw samples from a front-end board on a serial port.
// The board emits one sample per line: either a bare value, or
// "value,flag" where flag 0 marks lead-off/saturation. Malformed lines are
// delivered as invalid samples rather than aborting the stream, matching the
// lead-off recovery path.
type SerialSource struct {
	port    serial.Port
	scanner *bufio.Scanner
}

// OpenSerial opens the named port at the given baud rate (8N1).
func OpenSerial(name string, baud int) (*SerialSource, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", name, err)
	}
	return &SerialSource{
		port:    port,
		scanner: bufio.NewScanner(port),
	}, nil
}

// Next blocks until the next line arrives and returns the parsed sample.
// The returned error is non-nil only when the port itself fails or closes.
func (s *SerialSource) Next() (pipeline.RawSample, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return pipeline.RawSample{}, fmt.Errorf("read serial: %w", err)
		}
		return pipeline.RawSample{}, errors.New("serial stream closed")
	}
	return parseSampleLine(s.scanner.Text()), nil
}

// Close releases the port.
func (s *SerialSource) Close() error {
	return s.port.Close()
}

// parseSampleLine decodes "value" or "value,flag". Anything unparseable
// becomes an invalid sample, which the pipeline handles as degraded input.
func parseSampleLine(line string) pipeline.RawSample {
	line = strings.TrimSpace(line)
	valuePart := line
	valid := true

	if i := strings.IndexByte(line, ','); i >= 0 {
		valuePart = line[:i]
		flag := strings.TrimSpace(line[i+1:])
		valid = flag != "0"
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(valuePart), 32)
	if err != nil {
		return pipeline.RawSample{Valid: false}
	}
	return pipeline.RawSample{Value: float32(v), Valid: valid}
}
