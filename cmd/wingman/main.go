package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/xkilldash9x/wingman-cli/cmd"
	"github.com/xkilldash9x/wingman-cli/internal/observability"
)

const panicLogFile = "panic.log"

const asciiArt = `
    __          __
    \ \   __   / /      "Every swipe on the record,
     \ \ / /\ / /        every action validated."
      \ V /  V /
       \_/ \_/          [ wingman v0.1.0 ]

`

// Function variables for dependency injection in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	// Graceful shutdown on SIGINT/SIGTERM: the session loop finishes its
	// in-flight cycle and writes the run summary before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// With arguments, execute the command directly and exit.
	if len(os.Args) > 1 {
		runOnce(ctx)
		return
	}

	// -- Interactive Mode --
	fmt.Print(asciiArt)
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("wingman > ")
		if !scanner.Scan() {
			break // EOF (Ctrl+D)
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		executeInteractiveCommand(ctx, line)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(1)
	}

	fmt.Println("Exiting wingman.")
}

func runOnce(ctx context.Context) {
	err := cmd.Execute(ctx)
	observability.Sync()
	if err != nil {
		// Ctrl+C during a run is a graceful stop, not a failure.
		if errors.Is(err, context.Canceled) {
			osExit(0)
			return
		}
		osExit(cmd.ExitCode(err))
	}
}

// executeInteractiveCommand parses and runs one line from the interactive
// shell. Each line gets a fresh command tree so flags from one invocation
// never leak into the next.
func executeInteractiveCommand(ctx context.Context, line string) {
	rootCmd := cmd.NewRootCommand()
	rootCmd.SetArgs(strings.Fields(line))

	func() {
		defer func() {
			if r := recover(); r != nil {
				fmt.Fprintf(os.Stderr, "Error: Command panicked: %v\n", r)
			}
		}()
		if err := rootCmd.ExecuteContext(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}()
}

// handlePanic writes a post-mortem for any uncaught panic before exiting,
// so a crash mid-session leaves more than a truncated packet log behind.
func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()

		stackTrace := debug.Stack()
		panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, stackTrace)

		if err := osWriteFile(panicLogFile, []byte(panicMessage), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
			fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
			osExit(1)
			return
		}

		fmt.Fprintf(os.Stderr, "\nCRASH DETECTED. Details logged to %s\n", panicLogFile)
		osExit(1)
	}
}
