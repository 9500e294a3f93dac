package cmd

import (
	"context"
	"encoding/hex"
	"flag"
	"io"
	"log"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/mitchellh/ioprogress"

	"github.com/saorsa-fec/fec/backend"
	"github.com/saorsa-fec/fec/config"
	"github.com/saorsa-fec/fec/filemeta"
	"github.com/saorsa-fec/fec/pipeline"
)

var (
	EncodeCmd        = flag.NewFlagSet("encode", flag.ExitOnError)
	encInput         = EncodeCmd.String("input", "", "path to the file to encode")
	encMetaOutput    = EncodeCmd.String("meta-output", "", "path to write the file metadata to (default: <input>.fec)")
	encShardDir      = EncodeCmd.String("shard-dir", "", "directory to store shards in (required)")
	encDataShards    = EncodeCmd.Int("data-shards", 0, "number of data shards (default: config default)")
	encParityShards  = EncodeCmd.Int("parity-shards", 0, "number of parity shards (default: config default)")
	encMode          = EncodeCmd.String("mode", "", "key derivation mode: convergent, convergent-with-secret, random (default: config default)")
	encSecretHex     = EncodeCmd.String("secret", "", "hex-encoded user secret, required for convergent-with-secret")
	encFileID        = EncodeCmd.String("file-id", "", "UUID to use as the file id (default: randomly generated)")
	encConfig        = EncodeCmd.String("config", "", "path to a YAML config file")
	encCompress      = EncodeCmd.Bool("compress", false, "pre-compress the plaintext with zstd before chunking")
)

// RunEncodeCmd chunks, encrypts and Reed-Solomon encodes -input, writing
// its shards under -shard-dir and its FileMeta to -meta-output.
func RunEncodeCmd() int {
	if *encInput == "" {
		log.Fatalln("You must specify -input.")
	}
	if *encShardDir == "" {
		log.Fatalln("You must specify -shard-dir.")
	}

	cfg, err := config.Load(*encConfig)
	if err != nil {
		log.Fatalln("Failed to load config:", err)
	}
	if *encDataShards > 0 {
		cfg.DefaultNSpec.K = uint8(*encDataShards)
	}
	if *encParityShards > 0 {
		cfg.DefaultNSpec.M = uint8(*encParityShards)
	}

	mode := cfg.DefaultMode
	if *encMode != "" {
		mode, err = parseMode(*encMode)
		if err != nil {
			log.Fatalln(err)
		}
	}

	var secret []byte
	if *encSecretHex != "" {
		secret, err = hex.DecodeString(*encSecretHex)
		if err != nil {
			log.Fatalln("Invalid -secret:", err)
		}
	}

	fileID, err := newFileID(*encFileID)
	if err != nil {
		log.Fatalln(err)
	}

	metaOutput := *encMetaOutput
	if metaOutput == "" {
		metaOutput = *encInput + ".fec"
	}

	file, err := os.Open(*encInput)
	if err != nil {
		log.Fatalln("Failed to open input:", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		log.Fatalln("Failed to stat input:", err)
	}

	var src io.Reader = &ioprogress.Reader{Reader: file, Size: stat.Size()}
	compressed := *encCompress
	if compressed {
		src = compressReader(src)
	}

	be, err := backend.NewDisk(*encShardDir)
	if err != nil {
		log.Fatalln("Failed to open shard directory:", err)
	}

	log.Printf("Encoding %s (k=%d, m=%d, mode=%s)...", *encInput, cfg.DefaultNSpec.K, cfg.DefaultNSpec.M, mode)
	w := pipeline.NewWriter(cfg, be)
	fm, err := w.WriteFile(context.Background(), fileID, src, cfg.DefaultNSpec, mode, secret)
	if err != nil {
		log.Fatalln("Encode failed:", err)
	}

	if compressed {
		if fm.UserMetadata == nil {
			fm.UserMetadata = make(map[string]string)
		}
		fm.UserMetadata["compression"] = "zstd"
	}

	body, err := filemeta.Marshal(fm)
	if err != nil {
		log.Fatalln("Failed to marshal file metadata:", err)
	}
	if err := os.WriteFile(metaOutput, body, 0o644); err != nil {
		log.Fatalln("Failed to write file metadata:", err)
	}

	log.Printf("Done. %d chunks, metadata written to %s.", len(fm.Chunks), metaOutput)
	return 0
}

// compressReader wraps src so its bytes pass through a zstd encoder
// before reaching the pipeline, via an io.Pipe since zstd.Encoder is a
// push (io.Writer) API and chunk.Stream wants an io.Reader to pull from.
func compressReader(src io.Reader) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		zw, err := zstd.NewWriter(pw)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(zw, src); err != nil {
			zw.Close()
			pw.CloseWithError(err)
			return
		}
		if err := zw.Close(); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.Close()
	}()
	return pr
}
