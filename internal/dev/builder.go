package dev

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Runner executes an external command.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Builder regenerates templ components and rebuilds the ub binary when Go
// or templ sources change.
type Builder struct {
	pkg    string
	output string
	run    Runner
	logger *slog.Logger
	mu     sync.Mutex
}

// NewBuilder builds pkg into output. A nil run uses os/exec.
func NewBuilder(pkg, output string, run Runner, logger *slog.Logger) *Builder {
	if run == nil {
		run = execRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{pkg: pkg, output: output, run: run, logger: logger}
}

// Output is the path of the binary Rebuild writes.
func (b *Builder) Output() string {
	return b.output
}

func (b *Builder) GenerateTempl(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generateTempl(ctx)
}

func (b *Builder) BuildBinary(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buildBinary(ctx)
}

// Rebuild reports whether changedFile produced a new binary. Other file
// types are left to the browser reload path.
func (b *Builder) Rebuild(ctx context.Context, changedFile string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch strings.ToLower(filepath.Ext(changedFile)) {
	case ".templ":
		if err := b.generateTempl(ctx); err != nil {
			return false, err
		}
	case ".go":
	default:
		return false, nil
	}

	if err := b.buildBinary(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (b *Builder) generateTempl(ctx context.Context) error {
	b.logger.Info("Generating templ components")
	if err := b.run(ctx, "templ", "generate"); err != nil {
		return fmt.Errorf("templ generate: %w", err)
	}
	return nil
}

func (b *Builder) buildBinary(ctx context.Context) error {
	b.logger.Info("Building binary", "package", b.pkg, "output", b.output)
	if err := b.run(ctx, "go", "build", "-o", b.output, b.pkg); err != nil {
		return fmt.Errorf("go build %s: %w", b.pkg, err)
	}
	return nil
}
