// Command test-hotkey is a manual test for the global hotkey listener.
// Run it, then press Ctrl+Shift+P or Ctrl+Shift+Q to see events.
// Press Ctrl+C to exit.
//
// Usage:
//
//	go run ./cmd/test-hotkey [--pause ctrl+shift+p] [--stop ctrl+shift+q]
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chaz8081/motivator/internal/hotkey"
)

func main() {
	pause := flag.String("pause", "ctrl+shift+p", "pause hotkey combo")
	stop := flag.String("stop", "ctrl+shift+q", "stop hotkey combo")
	flag.Parse()

	pauseKeys := strings.Split(*pause, "+")
	stopKeys := strings.Split(*stop, "+")
	for _, keys := range [][]string{pauseKeys, stopKeys} {
		if err := hotkey.Validate(keys); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Printf("Listening for pause=%s stop=%s...\n", *pause, *stop)
	fmt.Println("Press Ctrl+C to exit.")

	listener := hotkey.NewListener(pauseKeys, stopKeys)

	// Handle Ctrl+C
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		fmt.Println("\nShutting down...")
		listener.Stop()
	}()

	// Read events
	go func() {
		for ev := range listener.Events() {
			switch ev.Type {
			case hotkey.EventPause:
				fmt.Println("||  PAUSE (toggled)")
			case hotkey.EventStop:
				fmt.Println("[]  STOP  (session end)")
			}
		}
		fmt.Println("Event channel closed.")
	}()

	// Blocks until stopped
	listener.Start()
	fmt.Println("Done.")
}
