// Command qcreplay streams synthesized readout datagrams at the quality
// monitor, standing in for the readout concentrator during bench tests.
//
// Usage:
//
//	go run ./cmd/qcreplay -addr 127.0.0.1:3563 -mode led -rate 50
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/helios-array/quality.monitor/internal/calo"
	"github.com/helios-array/quality.monitor/internal/calo/parse"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:3563", "Monitor UDP address")
	modeName := flag.String("mode", "baseline", "Data shape: baseline, pedestal or led")
	rate := flag.Int("rate", 20, "Batches per second")
	count := flag.Int("n", 0, "Stop after this many batches (0 = run until interrupted)")
	events := flag.Int("events", 5, "Events per batch")
	quality := flag.Bool("quality", false, "Include the fit-quality side stream")
	errRate := flag.Float64("errors", 0.02, "Probability of a hardware-error record per batch")
	seed := flag.Int64("seed", 0, "Random seed (0 = time-based)")
	flag.Parse()

	mode, err := calo.ParseMode(*modeName)
	if err != nil {
		log.Fatalf("Invalid mode: %v", err)
	}
	if *rate < 1 {
		log.Fatal("Rate must be at least 1 batch per second")
	}

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		log.Fatalf("Failed to dial %s: %v", *addr, err)
	}
	defer conn.Close()

	gen := NewBatchSynthesizer(mode, *seed)
	gen.EventsPerBatch = *events
	gen.Quality = *quality
	gen.ErrorRate = *errRate

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Sending %s batches to %s at %d/sec", mode, *addr, *rate)

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("Stopped after %d batches", sent)
			return
		case <-ticker.C:
			data, err := parse.EncodeBatch(gen.NextBatch())
			if err != nil {
				log.Fatalf("Failed to encode batch: %v", err)
			}
			if _, err := conn.Write(data); err != nil {
				log.Printf("Send error: %v", err)
				continue
			}
			sent++
			if sent%100 == 0 {
				log.Printf("%d batches sent", sent)
			}
			if *count > 0 && sent >= *count {
				log.Printf("Done: %d batches sent", sent)
				return
			}
		}
	}
}
