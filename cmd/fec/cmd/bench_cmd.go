package cmd

import (
	"bytes"
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/saorsa-fec/fec/backend"
	"github.com/saorsa-fec/fec/config"
	"github.com/saorsa-fec/fec/pipeline"
	"github.com/saorsa-fec/fec/shard"
	"github.com/saorsa-fec/fec/util"
)

var (
	BenchCmd       = flag.NewFlagSet("bench", flag.ExitOnError)
	bDataShards    = BenchCmd.Int("data-shards", 4, "number of data shards")
	bParityShards  = BenchCmd.Int("parity-shards", 2, "number of parity shards")
	bThreads       = BenchCmd.Int("threads", 1, "number of concurrent file round trips")
	bInputSize     = BenchCmd.Int("input-size", 10*1024*1024, "size of the synthetic input, in bytes")
	bMode          = BenchCmd.String("mode", "random", "key derivation mode: convergent, convergent-with-secret, random")
)

// RunBenchCmd measures write+read throughput of pipeline.Writer/Reader
// over a backend.Memory store, generalizing OhanaFS/stitch's
// cmd/stitch/cmd/bench_cmd.go (which benchmarked stitch.Encoder directly
// against util.Membuf shards) to this module's chunked, sharded pipeline.
func RunBenchCmd() int {
	log.Printf("Running benchmark with %d data shards, %d parity shards, %d threads", *bDataShards, *bParityShards, *bThreads)

	mode, err := parseMode(*bMode)
	if err != nil {
		log.Fatalln(err)
	}
	n := shard.NSpec{K: uint8(*bDataShards), M: uint8(*bParityShards)}

	runOnce := func() (time.Duration, error) {
		cfg := config.Default()
		cfg.DefaultNSpec = n
		be := backend.NewMemory()

		input := make([]byte, *bInputSize)
		if _, err := rand.Read(input); err != nil {
			return 0, err
		}

		fileID, err := newFileID("")
		if err != nil {
			return 0, err
		}

		start := time.Now()
		w := pipeline.NewWriter(cfg, be)
		fm, err := w.WriteFile(context.Background(), fileID, bytes.NewReader(input), n, mode, nil)
		if err != nil {
			return 0, err
		}

		r := pipeline.NewReader(cfg, be)
		var out bytes.Buffer
		if err := r.ReadFile(context.Background(), fm, &out); err != nil {
			return 0, err
		}
		if out.Len() != len(input) {
			return 0, fmt.Errorf("round trip size mismatch: got %d, want %d", out.Len(), len(input))
		}
		return time.Since(start), nil
	}

	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		durations []time.Duration
	)
	for i := 0; i < *bThreads; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := runOnce()
			if err != nil {
				log.Printf("Error running benchmark: %v", err)
				return
			}
			mu.Lock()
			durations = append(durations, d)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(durations) == 0 {
		log.Fatalln("All benchmark runs failed.")
	}

	var total time.Duration
	for _, d := range durations {
		total += d
	}
	avg := total / time.Duration(len(durations))
	speed := int64(float64(*bInputSize) * float64(len(durations)) / avg.Seconds())
	log.Printf("Average round trip: %v, aggregate speed: %s/s", avg, util.FormatSize(speed))
	return 0
}
