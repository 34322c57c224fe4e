package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"paper_rag/internal/logger"
	"paper_rag/internal/rag"
)

// exitCommands end the interactive loop.
var exitCommands = map[string]bool{"exit": true, "quit": true, ":q": true}

// Run reads one question per line from in and streams the answers about
// collection to out until in is exhausted, an exit command is read or ctx
// is cancelled.
func (a *App) Run(ctx context.Context, collection string, in io.Reader, out io.Writer) error {
	if err := a.ready(); err != nil {
		return err
	}
	if !a.hasCollection(collection) {
		return fmt.Errorf("collection %q does not exist, add the document first", collection)
	}

	logger.Info("💬 Asking about %s. Type a question per line, \"exit\" to quit.", collection)
	scanner := bufio.NewScanner(in)

	// questions may be pasted paragraphs
	const maxLineSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			logger.Info("Shutting down chat")
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("stdin error: %w", err)
			}
			return nil
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if exitCommands[strings.ToLower(question)] {
			return nil
		}

		if err := a.Answer(ctx, question, collection, out); err != nil {
			return err
		}
	}
}

// Answer streams the answer to question to out, followed by the pages its
// sources come from.
func (a *App) Answer(ctx context.Context, question, collection string, out io.Writer) error {
	resp := a.Ask(ctx, question, collection)
	defer resp.Answer.Close()

	for {
		chunk, done, err := resp.Answer.Next()
		if err != nil {
			fmt.Fprintf(out, "\n❌ %v\n", err)
			return nil
		}
		if chunk != "" {
			if _, werr := io.WriteString(out, chunk); werr != nil {
				return werr
			}
		}
		if done {
			break
		}
	}
	fmt.Fprintln(out)

	if resp.Status == rag.StatusError {
		logger.Warn("⚠️ %s", resp.Message)
		return nil
	}
	for _, g := range groupByPage(resp.Sources) {
		fmt.Fprintf(out, "  📄 page %d:", g.Page+1)
		for _, r := range g.Results {
			fmt.Fprintf(out, " [%s %.2f]", r.ContentType, r.Score)
		}
		fmt.Fprintln(out)
	}
	logger.Debug("answered in %s", resp.ResponseTime)
	return nil
}
