// Package printer emulates a line printer on the bus. Print lines are
// rendered into a file named printout.<ext> on the storage the printer was
// created with; the control plane collects the finished job.
package printer

import (
	"context"
	"os"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittonet/internal/logger"
	"github.com/marmos91/dittonet/pkg/device"
	derrors "github.com/marmos91/dittonet/pkg/errors"
	"github.com/spf13/afero"
)

// Output is a finalized printout opened for reading. The caller closes it.
type Output struct {
	afero.File
	Name  string
	Size  int64
	Paper PaperType
}

// Printer is a device.Adapter that renders written lines into a printout.
//
// The printer is written from the bus and collected from the control plane,
// both on the scheduler goroutine; the mutex only guards the accessors the
// CLI and tests call from elsewhere.
type Printer struct {
	device.Unsupported

	mu    sync.Mutex
	fs    afero.Fs
	dir   string
	paper PaperType
	emu   emulator
	now   func() time.Time

	out     afero.File
	job     uuid.UUID
	lines   int
	last    time.Time
	lastErr byte
}

// Option configures a Printer.
type Option func(*Printer)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Printer) { p.now = now }
}

// WithDir places printouts in dir instead of the filesystem root.
func WithDir(dir string) Option {
	return func(p *Printer) { p.dir = dir }
}

// New creates a printer writing to fsys. Unknown or unrenderable paper
// types fall back to Trim.
func New(fsys afero.Fs, paperType string, opts ...Option) *Printer {
	paper, ok := ParsePaperType(paperType)
	emu, renderable := newEmulator(paper)
	if !ok || !renderable {
		logger.Warn("Unsupported printer type, falling back", "type", paperType, "fallback", Trim.String())
		paper = Trim
		emu, _ = newEmulator(Trim)
	}

	p := &Printer{
		fs:      fsys,
		dir:     "/",
		paper:   paper,
		emu:     emu,
		now:     time.Now,
		job:     uuid.New(),
		lastErr: device.CodeSuccess,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Printer) Name() string { return "printer" }

// Paper returns the effective paper type.
func (p *Printer) Paper() PaperType { return p.paper }

// Filename is the printout file name, e.g. "printout.html".
func (p *Printer) Filename() string { return "printout." + p.paper.Extension() }

func (p *Printer) filePath() string { return path.Join(p.dir, p.Filename()) }

// LastPrintTime is when the printer last received data. Zero when idle
// since the last reset.
func (p *Printer) LastPrintTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Lines reports how many print frames the current job holds.
func (p *Printer) Lines() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines
}

// Open is accepted for buses that open the printer before printing.
func (p *Printer) Open(context.Context, string, *device.Command) error { return nil }

func (p *Printer) Read(context.Context, []byte) (int, error) {
	return 0, derrors.Unsupported("printer.read")
}

// Write renders one print frame.
func (p *Printer) Write(_ context.Context, buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.begin(); err != nil {
		return 0, p.fail(err)
	}
	if err := p.emu.line(p.out, buf); err != nil {
		return 0, p.fail(derrors.IO("printer.write", err))
	}
	p.lines++
	p.last = p.now()
	p.lastErr = device.CodeSuccess
	return len(buf), nil
}

func (p *Printer) Status() device.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return device.Status{Connected: true, Error: p.lastErr}
}

// Close keeps the job open; printouts end with Finalize.
func (p *Printer) Close() {}

// begin creates the output file on the first line of a job.
func (p *Printer) begin() error {
	if p.out != nil {
		return nil
	}
	f, err := p.fs.OpenFile(p.filePath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return derrors.Open("printer.create", err)
	}
	if err := p.emu.header(f); err != nil {
		_ = f.Close()
		return derrors.IO("printer.header", err)
	}
	p.out = f
	logger.Debug("Print job started", "job", p.job.String(), logger.KeyPath, p.filePath())
	return nil
}

// Finalize closes the current job and opens the printout for reading. An
// idle printer yields an empty printout of the configured format.
func (p *Printer) Finalize() (*Output, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.begin(); err != nil {
		return nil, err
	}
	if err := p.emu.footer(p.out); err != nil {
		_ = p.out.Close()
		p.out = nil
		return nil, derrors.IO("printer.footer", err)
	}
	if err := p.out.Close(); err != nil {
		p.out = nil
		return nil, derrors.IO("printer.close", err)
	}
	p.out = nil

	f, err := p.fs.Open(p.filePath())
	if err != nil {
		return nil, derrors.Open("printer.output", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, derrors.IO("printer.output", err)
	}

	logger.Info("Print job finalized", "job", p.job.String(), "lines", p.lines, logger.KeySize, info.Size())
	return &Output{File: f, Name: p.Filename(), Size: info.Size(), Paper: p.paper}, nil
}

// Reset discards the current job and starts a fresh one.
func (p *Printer) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.out != nil {
		_ = p.out.Close()
		p.out = nil
	}
	if err := p.fs.Remove(p.filePath()); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove printout", logger.KeyPath, p.filePath(), logger.KeyError, err)
	}
	p.emu, _ = newEmulator(p.paper)
	p.job = uuid.New()
	p.lines = 0
	p.last = time.Time{}
	p.lastErr = device.CodeSuccess
}

func (p *Printer) fail(err error) error {
	p.lastErr = device.CodeFor(err)
	return err
}
