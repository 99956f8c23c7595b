// Package audio provides microphone sources producing raw 16-bit PCM.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// DefaultCommand records 16kHz mono signed 16-bit PCM to stdout using ALSA.
const DefaultCommand = "arecord -q -f S16_LE -r 16000 -c 1 -t raw"

// Command captures audio from an external recorder process.
type Command struct {
	argv []string
}

// NewCommand parses a recorder command line such as DefaultCommand.
func NewCommand(line string) (*Command, error) {
	argv := strings.Fields(line)
	if len(argv) == 0 {
		return nil, errors.New("microphone command is empty")
	}
	return &Command{argv: argv}, nil
}

// Check reports whether the recorder binary is installed.
func (c *Command) Check() error {
	if _, err := exec.LookPath(c.argv[0]); err != nil {
		return fmt.Errorf("recorder %q not found: %w", c.argv[0], err)
	}
	return nil
}

// Open starts the recorder. Closing the stream stops it and frees the device.
func (c *Command) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(c.argv[0], c.argv[1:]...)
	cmd.Stderr = io.Discard
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}
	return &process{cmd: cmd, out: out}, nil
}

type process struct {
	cmd  *exec.Cmd
	out  io.ReadCloser
	once sync.Once
	err  error
}

func (p *process) Read(b []byte) (int, error) {
	return p.out.Read(b)
}

func (p *process) Close() error {
	p.once.Do(func() {
		if p.cmd.Process != nil {
			if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				p.err = fmt.Errorf("failed to stop recorder: %w", err)
			}
		}
		// Wait closes the pipe and reaps the process; the kill makes it exit non-zero.
		_ = p.cmd.Wait()
	})
	return p.err
}

// File replays raw PCM from a file once.
type File struct {
	path string
}

// NewFile returns a File microphone reading path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Check reports whether the file is readable.
func (f *File) Check() error {
	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("audio file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("audio file %s is a directory", f.path)
	}
	return nil
}

// Open opens the file for reading.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio file: %w", err)
	}
	return file, nil
}
