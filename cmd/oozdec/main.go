// SPDX-License-Identifier: MIT
// Source: CLI shape (urfave/cli/v2 App with Flags + Action) grounded on
// other_examples/manifests (xtaci-kcptun, syncthing-syncthing) which depend
// on urfave/cli for their own command-line tools; the teacher repo has no
// cmd/ of its own, so the surrounding plumbing (silent-by-default logger,
// file-vs-stdout handling) follows ooz's own options.go/doc.go conventions.

// Command oozdec decompresses a single Oodle-framed stream from a file (or
// stdin) to a file (or stdout), given the expected decompressed size.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/go-ooz/ooz"
)

func main() {
	app := &cli.App{
		Name:  "oozdec",
		Usage: "decompress an Oodle (Kraken/Mermaid/Selkie/Leviathan/LZNA/Bitknit) stream",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "input file (default: stdin)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output file (default: stdout)",
			},
			&cli.IntFlag{
				Name:     "size",
				Aliases:  []string{"n"},
				Usage:    "expected decompressed size in bytes",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log block/quantum/algorithm dispatch to stderr",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "oozdec:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	in := os.Stdin
	if path := c.String("input"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	out := os.Stdout
	if path := c.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	opts := ooz.DefaultDecompressOptions(c.Int("size"))
	if c.Bool("verbose") {
		log := logrus.New()
		log.SetLevel(logrus.DebugLevel)
		log.SetOutput(os.Stderr)
		opts.Logger = log
	}

	decoded, err := ooz.DecompressFromReader(in, opts)
	if err != nil {
		return err
	}

	_, err = io.Copy(out, bytes.NewReader(decoded))
	return err
}
