// Package cmd implements fec's subcommands: encode, decode, verify and
// bench, mirroring the flag.FlagSet-per-subcommand structure of
// OhanaFS/stitch's cmd/stitch/cmd package but wired to this module's
// pipeline.Writer/Reader instead of stitch's own Encoder.
package cmd

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/saorsa-fec/fec/kdf"
	"github.com/saorsa-fec/fec/shard"
)

func parseMode(s string) (kdf.Mode, error) {
	switch s {
	case "convergent":
		return kdf.Convergent, nil
	case "convergent-with-secret":
		return kdf.ConvergentWithSecret, nil
	case "random":
		return kdf.Random, nil
	default:
		return 0, fmt.Errorf("unknown encryption mode %q", s)
	}
}

// newFileID derives a 32-byte FileID from a UUID, generating a fresh one
// when raw is empty. Only the leading 16 bytes vary; the trailing 16 stay
// zero, since FileID's only job is domain separation between files, not
// carrying entropy of its own.
func newFileID(raw string) (shard.FileID, error) {
	var id shard.FileID
	if raw == "" {
		u := uuid.New()
		copy(id[:], u[:])
		return id, nil
	}
	u, err := uuid.Parse(raw)
	if err != nil {
		return id, fmt.Errorf("invalid -file-id: %w", err)
	}
	copy(id[:], u[:])
	return id, nil
}
