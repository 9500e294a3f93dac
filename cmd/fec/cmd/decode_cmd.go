package cmd

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/saorsa-fec/fec/backend"
	"github.com/saorsa-fec/fec/config"
	"github.com/saorsa-fec/fec/filemeta"
	"github.com/saorsa-fec/fec/pipeline"
)

var (
	DecodeCmd     = flag.NewFlagSet("decode", flag.ExitOnError)
	decMetaInput  = DecodeCmd.String("meta-input", "", "path to the file metadata produced by encode (required)")
	decShardDir   = DecodeCmd.String("shard-dir", "", "directory shards were stored in by encode (required)")
	decOutput     = DecodeCmd.String("output", "", "path to write the recovered file to (required)")
	decConfig     = DecodeCmd.String("config", "", "path to a YAML config file")
)

// RunDecodeCmd reconstructs the file described by -meta-input from the
// shards under -shard-dir and writes it to -output.
func RunDecodeCmd() int {
	if *decMetaInput == "" || *decShardDir == "" || *decOutput == "" {
		log.Fatalln("You must specify -meta-input, -shard-dir and -output.")
	}

	cfg, err := config.Load(*decConfig)
	if err != nil {
		log.Fatalln("Failed to load config:", err)
	}

	body, err := os.ReadFile(*decMetaInput)
	if err != nil {
		log.Fatalln("Failed to read file metadata:", err)
	}
	fm, err := filemeta.Unmarshal(body)
	if err != nil {
		log.Fatalln("Failed to parse file metadata:", err)
	}

	be, err := backend.NewDisk(*decShardDir)
	if err != nil {
		log.Fatalln("Failed to open shard directory:", err)
	}

	outFile, err := os.Create(*decOutput)
	if err != nil {
		log.Fatalln("Failed to open output:", err)
	}
	defer outFile.Close()

	var dst io.Writer = outFile
	var closeDst func() error
	if fm.UserMetadata["compression"] == "zstd" {
		dst, closeDst = decompressWriter(outFile)
	}

	log.Printf("Decoding %s (%d chunks)...", *decMetaInput, len(fm.Chunks))
	r := pipeline.NewReader(cfg, be)
	if err := r.ReadFile(context.Background(), fm, dst); err != nil {
		log.Fatalln("Decode failed:", err)
	}
	if closeDst != nil {
		if err := closeDst(); err != nil {
			log.Fatalln("Failed to flush decompressed output:", err)
		}
	}

	log.Printf("Done. Wrote %s.", *decOutput)
	return 0
}

// decompressWriter returns a writer that zstd-decompresses everything
// written to it into dst, plus a close func that must run once all bytes
// have been written to flush the decoder.
func decompressWriter(dst io.Writer) (io.Writer, func() error) {
	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		zr, err := zstd.NewReader(pr)
		if err != nil {
			pr.CloseWithError(err)
			done <- err
			return
		}
		defer zr.Close()
		_, err = io.Copy(dst, zr)
		done <- err
	}()
	return pw, func() error {
		if err := pw.Close(); err != nil {
			return err
		}
		return <-done
	}
}
