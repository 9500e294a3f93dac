package main

import (
	"flag"
	"log"
	"os"

	"github.com/saorsa-fec/fec/cmd/fec/cmd"
)

var subcommands = map[string]*flag.FlagSet{
	cmd.EncodeCmd.Name(): cmd.EncodeCmd,
	cmd.DecodeCmd.Name(): cmd.DecodeCmd,
	cmd.VerifyCmd.Name(): cmd.VerifyCmd,
	cmd.BenchCmd.Name():  cmd.BenchCmd,
}

func run() int {
	if len(os.Args) < 2 {
		log.Fatalln("usage: fec <encode|decode|verify|bench> [flags]")
	}

	fs := subcommands[os.Args[1]]
	if fs == nil {
		names := make([]string, 0, len(subcommands))
		for name := range subcommands {
			names = append(names, name)
		}
		log.Fatalf("unknown subcommand %q. Available commands are: %v", os.Args[1], names)
	}

	if err := fs.Parse(os.Args[2:]); err != nil {
		log.Fatalln(err)
	}

	switch fs.Name() {
	case "encode":
		return cmd.RunEncodeCmd()
	case "decode":
		return cmd.RunDecodeCmd()
	case "verify":
		return cmd.RunVerifyCmd()
	case "bench":
		return cmd.RunBenchCmd()
	}
	return 0
}

func main() {
	os.Exit(run())
}
