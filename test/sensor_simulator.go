//go:build !windows

// Command sensor_simulator emulates the USB sensor on a pseudo terminal so the
// reader can be exercised without hardware:
//
//	go run ./test -i 500ms
//	co2-sensor -p <printed device>
package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/spf13/pflag"
)

// reading is one simulated sample
type reading struct {
	CO2         int
	Humidity    float64
	Temperature float64
}

func (r reading) line() string {
	return fmt.Sprintf("CO2=%d,HUM=%.1f,TMP=%.1f\r\n", r.CO2, r.Humidity, r.Temperature)
}

// drift moves the previous reading by a small random step
func drift(prev reading) reading {
	next := reading{
		CO2:         prev.CO2 + rand.Intn(21) - 10,
		Humidity:    prev.Humidity + rand.Float64() - 0.5,
		Temperature: prev.Temperature + (rand.Float64()-0.5)/2,
	}
	if next.CO2 < 400 {
		next.CO2 = 400
	}
	return next
}

type simulator struct {
	out      *os.File
	interval time.Duration
	garbage  float64

	mu       sync.Mutex
	stopChan chan struct{}
}

// handle reacts to one command line from the reader
func (s *simulator) handle(cmd string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd {
	case "STA":
		fmt.Fprint(s.out, "OK STA\r\n")
		if s.stopChan == nil {
			s.stopChan = make(chan struct{})
			go s.stream(s.stopChan)
		}
		fmt.Println("streaming started")
	case "STP":
		if s.stopChan != nil {
			close(s.stopChan)
			s.stopChan = nil
		}
		fmt.Println("streaming stopped")
	case "":
	default:
		fmt.Printf("ignoring unknown command %q\n", cmd)
	}
}

func (s *simulator) stream(stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	current := reading{CO2: 800, Humidity: 45.0, Temperature: 22.0}
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			current = drift(current)
			line := current.line()
			if rand.Float64() < s.garbage {
				line = "CO2=" + fmt.Sprint(current.CO2) + "\r\n"
			}
			if _, err := s.out.WriteString(line); err != nil {
				fmt.Printf("write failed: %v\n", err)
				return
			}
		}
	}
}

func main() {
	interval := pflag.DurationP("interval", "i", time.Second, "time between samples")
	garbage := pflag.Float64P("garbage", "g", 0, "fraction of lines sent malformed")
	pflag.Parse()

	master, slave, err := pty.Open()
	if err != nil {
		fmt.Fprintf(os.Stderr, "open pty failed: %v\n", err)
		os.Exit(1)
	}
	defer master.Close()
	defer slave.Close()

	fmt.Printf("simulated sensor on %s\n", slave.Name())

	sim := &simulator{out: master, interval: *interval, garbage: *garbage}
	go func() {
		scanner := bufio.NewScanner(master)
		for scanner.Scan() {
			sim.handle(strings.TrimSpace(scanner.Text()))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	sim.handle("STP")
	fmt.Println("simulator stopped")
}
