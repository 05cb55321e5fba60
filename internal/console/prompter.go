package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/benmeehan/gps-streamer/pkg/permission"
)

// ErrInputClosed is returned once the console input has ended.
var ErrInputClosed = errors.New("console input closed")

// LineReader turns an input stream into a channel of trimmed lines shared by the
// command loop and the permission prompter.
type LineReader struct {
	lines chan string
}

// NewLineReader starts reading in from a goroutine.
func NewLineReader(in io.Reader) *LineReader {
	r := &LineReader{lines: make(chan string)}
	go func() {
		defer close(r.lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			r.lines <- strings.TrimSpace(scanner.Text())
		}
	}()
	return r
}

// Next waits for the next line.
func (r *LineReader) Next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-r.lines:
		if !ok {
			return "", ErrInputClosed
		}
		return line, nil
	}
}

// TerminalPrompter asks for permissions on the console.
type TerminalPrompter struct {
	in  *LineReader
	out io.Writer
}

// NewTerminalPrompter creates a prompter reading answers from in.
func NewTerminalPrompter(in *LineReader, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out}
}

// Ask prints the question and treats y/yes as a grant; anything else denies.
func (p *TerminalPrompter) Ask(ctx context.Context, perm permission.Permission) (bool, error) {
	fmt.Fprintf(p.out, "Allow %s? [y/N] ", perm)
	answer, err := p.in.Next(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
