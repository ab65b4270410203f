// strtab CLI - interns lines of input and reports string table statistics
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/strtab/manifest"
	"github.com/chazu/strtab/vm"
)

func main() {
	configPath := flag.String("config", "", "Path to strtab.toml (default: search upward from the working directory)")
	verbose := flag.Int("v", -1, "Log verbosity (overrides [log] verbosity)")
	dump := flag.Bool("dump", false, "Dump the string table after loading")
	stats := flag.Bool("stats", false, "Print table, heap and collector statistics")
	imageOut := flag.String("image", "", "Write the interned strings to a CBOR image file")
	imageIn := flag.String("load", "", "Load a CBOR image file before reading input")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: strtab [options] [files...]\n\n")
		fmt.Fprintf(os.Stderr, "Creates a string for every input line (stdin when no files are given).\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  strtab -stats words.txt          # Intern words.txt, print stats\n")
		fmt.Fprintf(os.Stderr, "  strtab -image words.img < in.txt # Save interned strings\n")
		fmt.Fprintf(os.Stderr, "  strtab -load words.img -dump     # Restore and dump\n")
	}
	flag.Parse()

	m, err := loadManifest(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	verbosity := m.Log.Verbosity
	if *verbose >= 0 {
		verbosity = *verbose
	}
	commonlog.Configure(verbosity, m.LogPath())

	v, err := vm.NewVM(m.VMConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	code := run(v, flag.Args(), *imageIn, *imageOut, *dump, *stats)
	if err := v.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		code = 1
	}
	os.Exit(code)
}

func loadManifest(path string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default()
	}
	return m, nil
}

func run(v *vm.VM, paths []string, imageIn, imageOut string, dump, stats bool) int {
	if imageIn != "" {
		data, err := os.ReadFile(imageIn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading image: %v\n", err)
			return 1
		}
		if err := v.LoadImage(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading image %s: %v\n", imageIn, err)
			return 1
		}
	}

	var lines, long int
	intern := func(r io.Reader, name string) error {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			// Long results come back held and stay held until shutdown.
			val, err := v.NewString(scanner.Bytes())
			if err != nil {
				return fmt.Errorf("%s:%d: %w", name, lines+1, err)
			}
			lines++
			if val.IsLongString() {
				long++
			}
		}
		return scanner.Err()
	}

	if len(paths) == 0 {
		if err := intern(os.Stdin, "<stdin>"); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		err = intern(f, path)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	fmt.Printf("%d lines, %d interned, %d long\n", lines, v.Strings().Len(), long)

	if dump {
		v.DebugDump(func(format string, args ...any) {
			fmt.Printf(format+"\n", args...)
		})
	}

	if stats {
		cs, err := v.Collect()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error collecting: %v\n", err)
			return 1
		}
		ts := v.Strings().Stats()
		hs := v.Heap().Stats()
		fmt.Printf("vm:     %s (seed %#x)\n", v.ID(), v.Seed())
		fmt.Printf("table:  capacity %d, entries %d, empty buckets %d, longest chain %d, resizes %d\n",
			ts.Capacity, ts.Entries, ts.EmptyBuckets, ts.LongestChain, ts.Resizes)
		fmt.Printf("heap:   %d short, %d long, %d bytes, %d allocs, %d frees\n",
			hs.ShortStrings, hs.LongStrings, hs.Bytes, hs.Allocs, hs.Frees)
		fmt.Printf("gc:     %d roots, %d long marked, %d swept in %v\n",
			cs.Roots, cs.LongMarked, cs.LongSwept, cs.SweepDuration)
	}

	if imageOut != "" {
		data, err := v.SaveImage()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error saving image: %v\n", err)
			return 1
		}
		if err := os.WriteFile(imageOut, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing image: %v\n", err)
			return 1
		}
	}
	return 0
}
