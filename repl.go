package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"

	"github.com/voice-assistant/server/internal/assistant"
)

// runREPL reads user lines until an exit word, Ctrl+D or Ctrl+C on an empty line.
func runREPL(ctx context.Context, a *assistant.Assistant, name, threadID string) error {
	homeDir, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "You: ",
		HistoryFile:       filepath.Join(homeDir, ".assistant-history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdin:             readline.NewCancelableStdin(os.Stdin),
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("%s is ready. Thread: %s\n", name, threadID)
	fmt.Println("Type 'exit', 'quit' or 'bye' to leave.")

	for {
		input, err := rl.Readline()
		if err == readline.ErrInterrupt {
			if len(input) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}

		reply := a.ProcessTurn(ctx, threadID, input)
		switch {
		case reply.Exit:
			fmt.Println("Goodbye!")
			return nil
		case reply.Skipped:
			continue
		}
		fmt.Printf("%s: %s\n\n", name, reply.Text)

		if ctx.Err() != nil {
			break
		}
	}
	fmt.Println("\nGoodbye!")
	return nil
}
