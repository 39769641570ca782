package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ales-tsurko/hexagon/internal/route"
)

// errEndOfInput ends the daemon when -exit-on-eof is set.
var errEndOfInput = errors.New("end of input")

// maxLineSize bounds a single input line.
const maxLineSize = 1 << 20

// line is one parsed input line.
type line struct {
	msg    route.Message
	packet []byte // raw packet for lines starting with "!"
}

// parseLine parses "address payload" or "!hexpacket". ok is false for blank
// lines and comments.
func parseLine(text string) (l line, ok bool, err error) {
	text = strings.TrimSpace(text)
	if text == "" || strings.HasPrefix(text, "#") {
		return line{}, false, nil
	}

	if hexPacket, found := strings.CutPrefix(text, "!"); found {
		packet, err := hex.DecodeString(strings.TrimSpace(hexPacket))
		if err != nil {
			return line{}, false, err
		}
		return line{packet: packet}, true, nil
	}

	addr, payload, _ := strings.Cut(text, " ")
	return line{msg: route.NewMessage(addr, []byte(strings.TrimSpace(payload)))}, true, nil
}

// readInput routes every line of r until it ends or ctx is done. It returns
// errEndOfInput when r is exhausted. Malformed lines are logged and skipped.
func (d *daemon) readInput(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case text, open := <-lines:
			if !open {
				select {
				case err := <-scanErr:
					if err != nil {
						return err
					}
				default:
				}
				return errEndOfInput
			}
			d.route(ctx, text)
		}
	}
}

func (d *daemon) route(ctx context.Context, text string) {
	l, ok, err := parseLine(text)
	if err != nil {
		d.logger.Warn("malformed input line", zap.Error(err))
		return
	}
	if !ok {
		return
	}

	if l.packet != nil {
		err = d.router.SendPacket(ctx, l.packet)
	} else {
		err = d.router.Send(ctx, l.msg)
	}
	if err != nil {
		d.logger.Warn("send failed", zap.String("line", text), zap.Error(err))
	}
}
