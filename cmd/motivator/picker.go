package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/chaz8081/motivator/internal/ble"
	"github.com/chaz8081/motivator/internal/config"
	"github.com/chaz8081/motivator/internal/discovery"
	"github.com/chaz8081/motivator/internal/trainer"
)

var errNoDevice = errors.New("no trainer selected")

// selectDevice returns the configured device, or lets the user pick one of
// the supported trainers in range.
func selectDevice(ctx context.Context, adapter ble.Adapter, registry *trainer.Registry, cfg config.BLEConfig) (ble.Device, error) {
	in := bufio.NewReader(os.Stdin)
	for {
		log.Println("Looking for compatible devices...")
		devices, err := discovery.FindSupported(ctx, adapter, cfg.ScanDuration, registry)
		if err != nil {
			return ble.Device{}, err
		}
		if ctx.Err() != nil {
			return ble.Device{}, ctx.Err()
		}

		if cfg.Device != "" {
			for _, d := range devices {
				if strings.EqualFold(d.Address, cfg.Device) {
					return d, nil
				}
			}
			return ble.Device{}, fmt.Errorf("%w: %s not found among supported devices", errNoDevice, cfg.Device)
		}

		d, rescan, err := pick(ctx, in, os.Stdout, devices)
		if err != nil {
			return ble.Device{}, err
		}
		if !rescan {
			log.Printf("Choice: %s", d)
			return d, nil
		}
	}
}

// pick prints the menu and reads one choice. Choice 0 asks for a rescan.
func pick(ctx context.Context, in *bufio.Reader, out io.Writer, devices []ble.Device) (ble.Device, bool, error) {
	fmt.Fprintln(out, "\nChoose your device:")
	fmt.Fprintln(out, "\t0. Rescan")
	for i, d := range devices {
		fmt.Fprintf(out, "\t%d. %s\n", i+1, d)
	}
	fmt.Fprint(out, "\nWhich device? ")

	line, err := readLine(ctx, in)
	if err != nil {
		return ble.Device{}, false, err
	}

	choice, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || choice < 0 || choice > len(devices) {
		return ble.Device{}, false, fmt.Errorf("%w: invalid choice %q", errNoDevice, strings.TrimSpace(line))
	}
	if choice == 0 {
		return ble.Device{}, true, nil
	}
	return devices[choice-1], false, nil
}

// readLine reads a line from in, giving up when ctx is done.
func readLine(ctx context.Context, in *bufio.Reader) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := in.ReadString('\n')
		if errors.Is(err, io.EOF) && line != "" {
			err = nil
		}
		ch <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("%w: %w", errNoDevice, r.err)
		}
		return r.line, nil
	}
}
