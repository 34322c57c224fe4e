package extract

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"paper_rag/internal/config"
	"paper_rag/internal/logger"
)

// outputTail is how many lines of tool output are kept for error reports.
const outputTail = 20

// MinerU runs the mineru command line tool as a subprocess.
type MinerU struct {
	cfg        config.ExtractConfig
	outputRoot string
	lookPath   func(file string) (string, error)
}

func NewMinerU(cfg config.ExtractConfig, outputRoot string) *MinerU {
	if cfg.Command == "" {
		cfg.Command = "mineru"
	}
	if cfg.Method == "" {
		cfg.Method = "auto"
	}
	return &MinerU{cfg: cfg, outputRoot: outputRoot, lookPath: exec.LookPath}
}

func (m *MinerU) Name() string {
	return "mineru"
}

// Available reports whether the command can be found.
func (m *MinerU) Available() bool {
	_, err := m.lookPath(m.cfg.Command)
	return err == nil
}

// Args builds the command line for pdfPath.
func (m *MinerU) Args(pdfPath string) []string {
	args := []string{
		"-p", pdfPath,
		"-o", m.outputRoot,
		"-m", m.cfg.Method,
	}
	if m.cfg.Backend != "" {
		args = append(args, "-b", m.cfg.Backend)
	}
	if m.cfg.Lang != "" {
		args = append(args, "-l", m.cfg.Lang)
	}
	args = append(args,
		"-f", strconv.FormatBool(m.cfg.Formula),
		"-t", strconv.FormatBool(m.cfg.Table),
	)
	if m.cfg.Device != "" {
		args = append(args, "-d", m.cfg.Device)
	}
	return args
}

func (m *MinerU) Extract(ctx context.Context, pdfPath string) (Output, error) {
	if err := checkPDF(pdfPath); err != nil {
		return Output{}, err
	}
	bin, err := m.lookPath(m.cfg.Command)
	if err != nil {
		return Output{}, fmt.Errorf("%w: %s: %w", ErrToolNotFound, m.cfg.Command, err)
	}
	if err := os.MkdirAll(m.outputRoot, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	args := m.Args(pdfPath)
	logger.Info("🚀 Running %s %s", m.cfg.Command, strings.Join(args, " "))
	start := time.Now()

	tail, err := run(ctx, bin, args)
	elapsed := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Output{}, fmt.Errorf("mineru stopped after %s: %w", elapsed.Round(time.Second), ctx.Err())
		}
		return Output{}, fmt.Errorf("mineru failed: %w\n%s", err, strings.Join(tail, "\n"))
	}
	logger.Info("⏰ mineru finished in %s", elapsed.Round(time.Millisecond))

	out, err := Locate(m.outputRoot, DocumentName(pdfPath), m.cfg.Method)
	if err != nil {
		return out, err
	}
	out.Duration = elapsed
	return out, nil
}

// run executes bin, streaming its combined output to the debug log, and
// returns the last lines of that output.
func run(ctx context.Context, bin string, args []string) ([]string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	var (
		wg   sync.WaitGroup
		tail []string
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sc := bufio.NewScanner(pr)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			logger.Debug("mineru: %s", line)
			tail = append(tail, line)
			if len(tail) > outputTail {
				tail = tail[1:]
			}
		}
		// keep the pipe drained if the scanner gave up
		_, _ = io.Copy(io.Discard, pr)
	}()

	err := cmd.Run()
	pw.Close()
	wg.Wait()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return tail, fmt.Errorf("exit status %d", exitErr.ExitCode())
	}
	return tail, err
}

// OutputDir is where results for pdfPath end up.
func (m *MinerU) OutputDir(pdfPath string) string {
	return filepath.Join(m.outputRoot, DocumentName(pdfPath), m.cfg.Method)
}
