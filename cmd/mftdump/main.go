package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/libyal/libfsntfs-sub001/blockio"
	"github.com/libyal/libfsntfs-sub001/fragment"
	"github.com/libyal/libfsntfs-sub001/mft"
	"github.com/libyal/libfsntfs-sub001/ntfsvol"
	"github.com/libyal/libfsntfs-sub001/streamcache"
)

const (
	exitCodeUserError int = iota + 2
	exitCodeFunctionalError
	exitCodeTechnicalError
)

const isWin = runtime.GOOS == "windows"

var (
	// flags
	verbose                 = false
	overwriteOutputIfExists = false
	showProgress            = false
)

func main() {
	start := time.Now()
	verboseFlag := flag.Bool("v", false, "verbose; print details about what's going on")
	forceFlag := flag.Bool("f", false, "force; overwrite the output file if it already exists")
	progressFlag := flag.Bool("p", false, "progress; show progress during dumping")
	dataFlag := flag.String("data", "", "dump the $DATA stream of this path (resolved via the volume's directory index) instead of the raw $MFT")
	rawFlag := flag.Bool("raw", false, "with -data, skip the cache and decompressor and copy the attribute's runs straight off the device (only works for a fully-allocated, uncompressed $DATA)")

	flag.Usage = printUsage
	flag.Parse()

	verbose = *verboseFlag
	overwriteOutputIfExists = *forceFlag
	showProgress = *progressFlag
	args := flag.Args()

	if len(args) != 2 {
		printUsage()
		os.Exit(exitCodeUserError)
		return
	}

	volume := args[0]
	if isWin {
		volume = `\\.\` + volume
	}
	outfile := args[1]

	in, err := os.Open(volume)
	if err != nil {
		fatalf(exitCodeTechnicalError, "Unable to open volume using path %s: %v\n", volume, err)
	}
	defer in.Close()

	dev, err := blockio.NewFileDevice(in, 0)
	if err != nil {
		fatalf(exitCodeTechnicalError, "Unable to size volume %s: %v\n", volume, err)
	}

	printVerbose("Opening volume\n")
	cache, err := streamcache.New(streamcache.DefaultConfig())
	if err != nil {
		fatalf(exitCodeTechnicalError, "Unable to build stream cache: %v\n", err)
	}
	vol, err := ntfsvol.Open(dev, ntfsvol.Options{Cache: cache})
	if err != nil {
		fatalf(exitCodeTechnicalError, "Unable to open volume: %v\n", err)
	}

	out, err := openOutputFile(outfile)
	if err != nil {
		fatalf(exitCodeFunctionalError, "Unable to open output file: %v\n", err)
	}
	defer out.Close()

	switch {
	case *dataFlag != "" && *rawFlag:
		dumpFileDataRaw(dev, vol, *dataFlag, out)
	case *dataFlag != "":
		dumpFileData(vol, *dataFlag, out)
	default:
		dumpRawMFT(vol, out)
	}

	end := time.Now()
	dur := end.Sub(start)
	printVerbose("Finished in %v\n", dur)
}

// dumpRawMFT copies the whole $MFT file (every MFT record, not just the
// ones currently in use) to out.
func dumpRawMFT(vol *ntfsvol.Volume, out *os.File) {
	mftRecord, err := vol.ReadRecord(ntfsvol.MFTRecordNumber)
	if err != nil {
		fatalf(exitCodeTechnicalError, "Unable to read $MFT record: %v\n", err)
	}

	printVerbose("Reading $DATA attribute in $MFT file record\n")
	stream, err := vol.OpenAttribute(mftRecord, mft.AttributeTypeData, "")
	if err != nil {
		fatalf(exitCodeTechnicalError, "Unable to open $MFT $DATA stream: %v\n", err)
	}

	totalLength := int64(stream.Size())
	printVerbose("Copying %d bytes (%s) of $MFT data to output\n", totalLength, formatBytes(totalLength))
	n, err := copyStream(out, io.NewSectionReader(stream, 0, totalLength), totalLength)
	if err != nil {
		fatalf(exitCodeTechnicalError, "Error copying data to output file: %v\n", err)
	}
	if n != totalLength {
		fatalf(exitCodeTechnicalError, "Expected to copy %d bytes, but copied only %d\n", totalLength, n)
	}
}

// dumpFileData resolves path through the volume's directory index and
// copies its unnamed $DATA stream to out, decoding NTFS compression (and,
// via a WOF-tagged reparse point, per-file compression) transparently.
func dumpFileData(vol *ntfsvol.Volume, path string, out *os.File) {
	printVerbose("Resolving %q\n", path)
	record, err := vol.Lookup(path)
	if err != nil {
		fatalf(exitCodeFunctionalError, "Unable to resolve %q: %v\n", path, err)
	}

	stream, err := vol.OpenAttribute(record, mft.AttributeTypeData, "")
	if err != nil {
		fatalf(exitCodeTechnicalError, "Unable to open %q's $DATA stream: %v\n", path, err)
	}

	totalLength := int64(stream.Size())
	printVerbose("Copying %d bytes (%s) of %q to output\n", totalLength, formatBytes(totalLength), path)
	n, err := copyStream(out, io.NewSectionReader(stream, 0, totalLength), totalLength)
	if err != nil {
		fatalf(exitCodeTechnicalError, "Error copying data to output file: %v\n", err)
	}
	if n != totalLength {
		fatalf(exitCodeTechnicalError, "Expected to copy %d bytes, but copied only %d\n", totalLength, n)
	}
}

// dumpFileDataRaw resolves path and copies its $DATA runs straight off dev,
// bypassing the stream cache and any decompression. It fails fast (before
// copying anything) if the attribute is sparse, NTFS-compressed, or
// resident, since none of those can be represented as plain device ranges.
func dumpFileDataRaw(dev blockio.Device, vol *ntfsvol.Volume, path string, out *os.File) {
	printVerbose("Resolving %q\n", path)
	record, err := vol.Lookup(path)
	if err != nil {
		fatalf(exitCodeFunctionalError, "Unable to resolve %q: %v\n", path, err)
	}

	frags, err := vol.RawFragments(record, mft.AttributeTypeData, "")
	if err != nil {
		fatalf(exitCodeFunctionalError, "Unable to compute raw fragments for %q: %v\n", path, err)
	}

	totalLength := int64(0)
	for _, f := range frags {
		totalLength += f.Length
	}

	src := io.NewSectionReader(dev, 0, dev.Size())
	printVerbose("Copying %d bytes (%s) of %q to output via %d raw fragments\n", totalLength, formatBytes(totalLength), path, len(frags))
	n, err := copyStream(out, fragment.NewReader(src, frags), totalLength)
	if err != nil {
		fatalf(exitCodeTechnicalError, "Error copying data to output file: %v\n", err)
	}
	if n != totalLength {
		fatalf(exitCodeTechnicalError, "Expected to copy %d bytes, but copied only %d\n", totalLength, n)
	}
}

func copyStream(dst io.Writer, src io.Reader, totalLength int64) (written int64, err error) {
	buf := make([]byte, 1024*1024)
	if !showProgress {
		return io.CopyBuffer(dst, src, buf)
	}

	onePercent := float64(totalLength) / float64(100.0)
	totalSize := formatBytes(totalLength)

	// Below copied from io.copyBuffer (https://golang.org/src/io/io.go?s=12796:12856#L380)
	for {
		printProgress(written, totalSize, onePercent)

		nr, er := src.Read(buf)
		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if ew != nil {
				err = ew
				break
			}
			if nr != nw {
				err = io.ErrShortWrite
				break
			}
		}
		if er != nil {
			if er != io.EOF {
				err = er
			}
			break
		}
	}
	printProgress(written, totalSize, onePercent)
	fmt.Println()
	return written, err
}

func printProgress(n int64, totalSize string, onePercent float64) {
	percentage := float64(n) / onePercent
	barCount := int(percentage / 2.0)
	spaceCount := 50 - barCount
	fmt.Printf("\r[%s%s] %.2f%% (%s / %s)     ", strings.Repeat("|", barCount), strings.Repeat(" ", spaceCount), percentage, formatBytes(n), totalSize)
}

func openOutputFile(outfile string) (*os.File, error) {
	if overwriteOutputIfExists {
		return os.Create(outfile)
	}
	return os.OpenFile(outfile, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0666)
}

func printUsage() {
	out := os.Stderr
	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(out, "\nusage: %s [flags] <volume> <output file>\n\n", exe)
	fmt.Fprintln(out, "Dump the $MFT of a volume to a file, or (with -data) dump one file's $DATA stream. The volume should be NTFS formatted.")
	fmt.Fprintln(out, "\nFlags:")

	flag.PrintDefaults()

	fmt.Fprintf(out, "\nFor example: ")
	if isWin {
		fmt.Fprintf(out, "%s -v -f C: D:\\c.mft\n", exe)
		fmt.Fprintf(out, "       %s -v -f -data \\Users\\me\\file.txt C: D:\\file.txt\n", exe)
	} else {
		fmt.Fprintf(out, "%s -v -f /dev/sdb1 ~/sdb1.mft\n", exe)
		fmt.Fprintf(out, "       %s -v -f -data /Users/me/file.txt /dev/sdb1 ~/file.txt\n", exe)
	}
}

func fatalf(exitCode int, format string, v ...interface{}) {
	fmt.Printf(format, v...)
	os.Exit(exitCode)
}

func printVerbose(format string, v ...interface{}) {
	if verbose {
		fmt.Printf(format, v...)
	}
}

func formatBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%dB", b)
	}
	if b < 1048576 {
		return fmt.Sprintf("%.2fKiB", float32(b)/float32(1024))
	}
	if b < 1073741824 {
		return fmt.Sprintf("%.2fMiB", float32(b)/float32(1048576))
	}
	return fmt.Sprintf("%.2fGiB", float32(b)/float32(1073741824))
}
