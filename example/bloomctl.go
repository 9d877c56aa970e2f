// bloomctl.go -- manage mmap'd Bloom filter files
//
// Author: Sudhi Herle <sudhi@herle.net>
//
// This software does not come with any express or implied
// warranty; it is provided "as is". No claim  is made to its
// suitability for any purpose.

// bloomctl.go is an example of using bloom.New(), Open() and friends.
// It builds a filter file from line-oriented text input, probes it,
// dedups streams against it, and round-trips filters through base64:
//   - each input line is one element (trailing newline stripped)
//   - with no input files, lines are read from STDIN
//   - dedup (-d) always reads STDIN; input files are ignored

package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/opencoff/go-bloom"

	flag "github.com/opencoff/pflag"
)

func main() {
	var capacity uint64
	var errRate float64
	var check, info, dedup bool
	var export, load bool
	var useSip bool
	var cacheSize int

	usage := fmt.Sprintf("%s [options] FILTER [INPUT ...]", os.Args[0])

	flag.Uint64VarP(&capacity, "create", "c", 0, "Create FILTER sized for `N` elements")
	flag.Float64VarP(&errRate, "error-rate", "e", 0.001, "Use `E` as the false-positive rate")
	flag.BoolVarP(&check, "check", "q", false, "Probe FILTER for each input line")
	flag.BoolVarP(&dedup, "dedup", "d", false, "Print input lines not yet in FILTER; add them")
	flag.BoolVarP(&info, "info", "V", false, "Print filter parameters and exit")
	flag.BoolVarP(&export, "export", "x", false, "Write FILTER as base64 to STDOUT")
	flag.BoolVarP(&load, "import", "i", false, "Create FILTER from base64 on STDIN")
	flag.BoolVarP(&useSip, "siphash", "S", false, "Hash with SipHash-2-4 instead of Murmur3")
	flag.IntVarP(&cacheSize, "cache-size", "C", 1000, "Keep `N` recent dedup verdicts cached")
	flag.Usage = func() {
		fmt.Printf("bloomctl - manage mmap'd Bloom filter files\nUsage: %s\n", usage)
		flag.PrintDefaults()
	}

	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		die("No filter file name!\nUsage: %s\n", usage)
	}

	fn := args[0]
	args = args[1:]

	switch {
	case info:
		bf, err := bloom.OpenReadOnly(fn)
		if err != nil {
			die("can't open %s: %s", fn, err)
		}

		fmt.Printf("%s: %s\n   %d bits, ~%d elements, seeds %v\n",
			fn, bf, bf.NumBits(), bf.Len(), bf.HashSeeds())
		bf.Close()

	case export:
		bf, err := bloom.OpenReadOnly(fn)
		if err != nil {
			die("can't open %s: %s", fn, err)
		}

		b64, err := bf.ToBase64()
		if err != nil {
			die("can't encode %s: %s", fn, err)
		}

		fmt.Println(b64)
		bf.Close()

	case load:
		text, err := ioutil.ReadAll(os.Stdin)
		if err != nil {
			die("can't read STDIN: %s", err)
		}

		bf, err := bloom.FromBase64(fn, strings.TrimSpace(string(text)), 0644)
		if err != nil {
			die("can't import %s: %s", fn, err)
		}

		fmt.Printf("%s: %s\n", fn, bf)
		bf.Close()

	case check:
		bf, err := bloom.OpenReadOnly(fn)
		if err != nil {
			die("can't open %s: %s", fn, err)
		}
		if useSip {
			bf.SetHasher(bloom.SipHasher)
		}

		n, hits, err := CheckStreams(bf, args)
		if err != nil {
			die("%s", err)
		}

		fmt.Printf("%s: %d of %d present\n", fn, hits, n)
		bf.Close()

	case dedup:
		bf, err := openOrCreate(fn, capacity, errRate, useSip)
		if err != nil {
			die("%s", err)
		}

		n, uniq, err := DedupStream(bf, os.Stdin, os.Stdout, cacheSize)
		if err != nil {
			die("%s", err)
		}

		warn("%d lines, %d unique", n, uniq)
		if err = bf.Close(); err != nil {
			die("can't close %s: %s", fn, err)
		}

	default:
		bf, err := openOrCreate(fn, capacity, errRate, useSip)
		if err != nil {
			die("%s", err)
		}

		var n uint64
		if len(args) > 0 {
			for _, f := range args {
				n, err = AddTextFile(bf, f)
				if err != nil {
					warn("can't add %s: %s", f, err)
					continue
				}

				fmt.Printf("+ %s: %d elements\n", f, n)
			}
		} else {
			n, err = AddTextStream(bf, os.Stdin)
			if err != nil {
				die("can't add STDIN: %s", err)
			}

			fmt.Printf("+ <STDIN>: %d elements\n", n)
		}

		if err = bf.Close(); err != nil {
			die("can't write %s: %s", fn, err)
		}
	}
}

// open an existing filter, or create one when -c is given
func openOrCreate(fn string, capacity uint64, errRate float64, useSip bool) (*bloom.Filter, error) {
	var bf *bloom.Filter
	var err error

	if capacity > 0 {
		bf, err = bloom.New(capacity, errRate, fn)
	} else {
		bf, err = bloom.Open(fn)
	}
	if err != nil {
		return nil, fmt.Errorf("can't open %s: %s", fn, err)
	}

	if useSip {
		bf.SetHasher(bloom.SipHasher)
	}
	return bf, nil
}

// die with error
func die(f string, v ...interface{}) {
	warn(f, v...)
	os.Exit(1)
}

func warn(f string, v ...interface{}) {
	z := fmt.Sprintf("%s: %s", os.Args[0], f)
	s := fmt.Sprintf(z, v...)
	if n := len(s); s[n-1] != '\n' {
		s += "\n"
	}

	os.Stderr.WriteString(s)
	os.Stderr.Sync()
}

// vim: ft=go:sw=4:ts=4:noexpandtab:tw=78:
