package runtime

import (
	"fmt"
	"io"
	"sync"
)

// WriterPrinter writes each printed value on its own line.
type WriterPrinter struct {
	W io.Writer
}

func (p WriterPrinter) Print(v Value) error {
	if p.W == nil {
		return nil
	}
	_, err := fmt.Fprintln(p.W, FormatValue(v))
	return err
}

// BufferPrinter collects printed values in memory.
type BufferPrinter struct {
	mu    sync.Mutex
	lines []string
}

func (p *BufferPrinter) Print(v Value) error {
	p.mu.Lock()
	p.lines = append(p.lines, FormatValue(v))
	p.mu.Unlock()
	return nil
}

// Lines returns a copy of everything printed so far.
func (p *BufferPrinter) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.lines))
	copy(out, p.lines)
	return out
}

// PrinterFunc adapts a plain function to the Printer interface.
type PrinterFunc func(Value) error

func (f PrinterFunc) Print(v Value) error { return f(v) }

// DiscardPrinter drops everything.
var DiscardPrinter Printer = PrinterFunc(func(Value) error { return nil })
