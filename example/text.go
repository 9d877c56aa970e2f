// text.go -- feed line-oriented text through a Bloom filter

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/opencoff/go-bloom"
	"github.com/opencoff/golang-lru"
)

// AddTextFile adds every line of text file 'fn' to the filter. Empty
// lines are skipped. This function just opens the file and calls
// AddTextStream().
// Returns number of elements added.
func AddTextFile(bf *bloom.Filter, fn string) (uint64, error) {
	fd, err := os.Open(fn)
	if err != nil {
		return 0, err
	}

	defer fd.Close()

	return AddTextStream(bf, fd)
}

// AddTextStream adds every line of text stream 'fd' to the filter.
// Empty lines are skipped.
// Returns number of elements added.
func AddTextStream(bf *bloom.Filter, fd io.Reader) (uint64, error) {
	ch := make(chan []byte, 10)

	// do I/O asynchronously
	go func(fd io.Reader, ch chan []byte) {
		sc := bufio.NewScanner(bufio.NewReader(fd))
		for sc.Scan() {
			line := sc.Text()
			if len(line) == 0 {
				continue
			}

			// the scanner reuses its buffer; copy before handing off
			ch <- []byte(line)
		}
		close(ch)
	}(fd, ch)

	var n uint64
	for key := range ch {
		if _, err := bf.Add(key); err != nil {
			return n, err
		}
		n++
	}

	return n, nil
}

// CheckStreams probes the filter for every line of the named files
// (or STDIN when no files are given) and returns the probe and hit
// counts.
func CheckStreams(bf *bloom.Filter, files []string) (n, hits uint64, err error) {
	if len(files) == 0 {
		return checkStream(bf, os.Stdin)
	}

	for _, fn := range files {
		fd, err := os.Open(fn)
		if err != nil {
			return n, hits, err
		}

		zn, zh, err := checkStream(bf, fd)
		fd.Close()
		n += zn
		hits += zh
		if err != nil {
			return n, hits, err
		}
	}

	return n, hits, nil
}

func checkStream(bf *bloom.Filter, fd io.Reader) (n, hits uint64, err error) {
	sc := bufio.NewScanner(bufio.NewReader(fd))
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		ok, err := bf.Contains(line)
		if err != nil {
			return n, hits, err
		}

		n++
		if ok {
			hits++
		}
	}

	return n, hits, sc.Err()
}

// DedupStream copies to 'w' the lines of 'fd' that are not yet in the
// filter, adding each new line as it goes. Verdicts for recently seen
// lines are kept in an ARC cache so hot duplicates skip the hash path
// entirely.
// Returns total and unique line counts.
func DedupStream(bf *bloom.Filter, fd io.Reader, w io.Writer, cacheSize int) (n, uniq uint64, err error) {
	if cacheSize <= 0 {
		cacheSize = 1000
	}

	cache, err := lru.NewARC(cacheSize)
	if err != nil {
		return 0, 0, err
	}

	sc := bufio.NewScanner(bufio.NewReader(fd))
	for sc.Scan() {
		line := sc.Text()
		if len(line) == 0 {
			continue
		}

		n++
		if _, ok := cache.Get(line); ok {
			continue
		}
		cache.Add(line, true)

		seen, err := bf.Add([]byte(line))
		if err != nil {
			return n, uniq, err
		}
		if seen {
			continue
		}

		uniq++
		if _, err := fmt.Fprintln(w, line); err != nil {
			return n, uniq, err
		}
	}

	return n, uniq, sc.Err()
}
