// Command test-suppress is a manual test for input suppression.
// It waits 3 seconds, then suppresses a few times and restores.
// Focus a game or text editor before the countdown finishes.
//
// Usage:
//
//	go run ./cmd/test-suppress [--method tap|hold|none] [--key space] [--count 3]
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/chaz8081/motivator/internal/suppress"
)

func main() {
	method := flag.String("method", suppress.MethodTap, "suppress method: tap, hold or none")
	key := flag.String("key", suppress.DefaultKey, "key to send while below target")
	count := flag.Int("count", 3, "number of below-target ticks to simulate")
	flag.Parse()

	s, err := suppress.New(*method, *key)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Will suppress with %q (%s) %d times in 3 seconds...\n", *key, *method, *count)
	fmt.Println("Focus the target window now!")

	for i := 3; i > 0; i-- {
		fmt.Printf("%d...\n", i)
		time.Sleep(time.Second)
	}

	for i := 0; i < *count; i++ {
		s.Suppress()
		time.Sleep(100 * time.Millisecond)
	}
	s.Restore()

	fmt.Println("\nDone!")
}
