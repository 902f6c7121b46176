// Command pdfinspect prints the low-level structure of a PDF file.
//
// Usage:
//
//	pdfinspect [flags] info file.pdf
//	pdfinspect [flags] xref file.pdf
//	pdfinspect [flags] object file.pdf N [-data]
//	pdfinspect [flags] images file.pdf [-out dir]
//	pdfinspect [flags] embed image.png
//
// The embed command converts a raster image file and prints the image
// XObject dictionary it would be stored as.
package main

import (
	"errors"
	"flag"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/term"

	"github.com/tsawler/pdfcore/core"
	"github.com/tsawler/pdfcore/crypt"
	"github.com/tsawler/pdfcore/format"
	"github.com/tsawler/pdfcore/imagecodec"
	"github.com/tsawler/pdfcore/reader"
)

const maxPrompts = 3

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type cli struct {
	stdout   io.Writer
	stderr   io.Writer
	logger   *slog.Logger
	password string
	prompt   bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pdfinspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	password := fs.String("password", "", "user or owner password")
	prompt := fs.Bool("prompt", false, "ask for the password on the terminal")
	verbose := fs.Bool("v", false, "log recoverable problems")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: pdfinspect [flags] info|xref|object|images FILE.pdf [args]")
		fmt.Fprintln(stderr, "       pdfinspect [flags] embed IMAGE")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	c := &cli{
		stdout:   stdout,
		stderr:   stderr,
		logger:   slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
		password: *password,
		prompt:   *prompt,
	}

	cmd, file, rest := fs.Arg(0), fs.Arg(1), fs.Args()[2:]
	var err error
	switch cmd {
	case "info":
		err = c.withReader(file, c.info)
	case "xref":
		err = c.withReader(file, c.xref)
	case "object":
		err = c.object(file, rest)
	case "images":
		err = c.images(file, rest)
	case "embed":
		err = c.embed(file)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "pdfinspect: %v\n", err)
		return 1
	}
	return 0
}

func (c *cli) open(file string) (*reader.Reader, error) {
	opts := []reader.Option{
		reader.WithPassword(c.password),
		reader.WithLogger(c.logger),
	}
	if c.prompt {
		opts = append(opts, reader.WithPasswordFunc(c.readPassword))
	}
	return reader.Open(file, opts...)
}

func (c *cli) readPassword(attempt int) (string, bool) {
	fd := int(os.Stdin.Fd())
	if attempt > maxPrompts || !term.IsTerminal(fd) {
		return "", false
	}
	fmt.Fprint(c.stderr, "password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(c.stderr)
	if err != nil {
		c.logger.Warn("cannot read password", "error", err)
		return "", false
	}
	return string(pw), true
}

func (c *cli) withReader(file string, fn func(*reader.Reader) error) error {
	r, err := c.open(file)
	if err != nil {
		if errors.Is(err, crypt.ErrInvalidPassword) && !c.prompt {
			return fmt.Errorf("%w (try -password or -prompt)", err)
		}
		return err
	}
	defer r.Close()
	return fn(r)
}

func (c *cli) info(r *reader.Reader) error {
	w := c.stdout
	fmt.Fprintf(w, "Version:   %s\n", r.Version())
	fmt.Fprintf(w, "File size: %d\n", r.FileSize())
	fmt.Fprintf(w, "Objects:   %d\n", r.NumObjects())
	fmt.Fprintf(w, "Repaired:  %v\n", r.XRef().Repaired)

	if h := r.Security(); h != nil {
		fmt.Fprintf(w, "Encrypted: revision %d, %d-bit key, owner %v\n", h.Revision(), h.KeyLength(), h.IsOwner())
		fmt.Fprintf(w, "Permissions: %s\n", r.Permissions())
	} else {
		fmt.Fprintln(w, "Encrypted: no")
	}

	info, err := r.Info()
	if err != nil {
		return err
	}
	if info != nil {
		for _, key := range info.Keys() {
			v, err := r.Resolve(info.Get(key))
			if err != nil {
				return err
			}
			if s, ok := v.(core.String); ok {
				fmt.Fprintf(w, "%s: %s\n", key, s.Value)
			} else {
				fmt.Fprintf(w, "%s: %s\n", key, core.Format(v))
			}
		}
	}

	for _, msg := range r.Warnings() {
		fmt.Fprintf(w, "warning: %s\n", msg)
	}
	return nil
}

func (c *cli) xref(r *reader.Reader) error {
	table := r.XRef()
	nums := table.ObjectNumbers()
	sort.Ints(nums)
	for _, num := range nums {
		e, _ := table.Get(num)
		switch e.Type {
		case core.XRefCompressed:
			fmt.Fprintf(c.stdout, "%6d %s stream %d index %d\n", num, e.Type, e.StreamNumber, e.Index)
		default:
			fmt.Fprintf(c.stdout, "%6d %s offset %d gen %d\n", num, e.Type, e.Offset, e.Generation)
		}
	}
	fmt.Fprintf(c.stdout, "trailer %s\n", core.Format(r.Trailer()))
	return nil
}

func (c *cli) object(file string, args []string) error {
	fs := flag.NewFlagSet("object", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	data := fs.Bool("data", false, "write the decoded stream data instead of the dictionary")
	if len(args) == 0 {
		return errors.New("object: missing object number")
	}
	num, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("object: invalid object number %q", args[0])
	}
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	return c.withReader(file, func(r *reader.Reader) error {
		obj, err := r.GetObject(num)
		if err != nil {
			return err
		}
		stream, isStream := obj.(*core.Stream)
		if *data {
			if !isStream {
				return fmt.Errorf("object %d is not a stream", num)
			}
			decoded, err := stream.Decode()
			if err != nil {
				return err
			}
			_, err = c.stdout.Write(decoded)
			return err
		}

		fmt.Fprintf(c.stdout, "%d 0 obj\n", num)
		if isStream {
			c.stdout.Write(core.Format(stream.Dict))
			decoded, err := stream.Decode()
			if err != nil {
				fmt.Fprintf(c.stdout, "\n%% stream: %d bytes, cannot decode: %v\n", len(stream.Data), err)
			} else {
				fmt.Fprintf(c.stdout, "\n%% stream: %d bytes, %d decoded\n", len(stream.Data), len(decoded))
			}
		} else {
			c.stdout.Write(core.Format(obj))
			fmt.Fprintln(c.stdout)
		}
		fmt.Fprintln(c.stdout, "endobj")
		return nil
	})
}

func (c *cli) images(file string, args []string) error {
	fs := flag.NewFlagSet("images", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	out := fs.String("out", "", "write each image as a PNG file into this directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return c.withReader(file, func(r *reader.Reader) error {
		images, err := r.Images()
		if err != nil {
			return err
		}
		for _, im := range images {
			filter := im.Filter
			if filter == "" {
				filter = "-"
			}
			fmt.Fprintf(c.stdout, "%6d %5dx%-5d %-10s bpc=%d filter=%s", im.Ref.Number,
				im.Width, im.Height, im.ColorSpace, im.BitsPerComponent, filter)
			if im.SoftMask {
				fmt.Fprint(c.stdout, " smask")
			}
			fmt.Fprintln(c.stdout)

			if *out == "" {
				continue
			}
			if err := c.writePNG(r, im, *out); err != nil {
				c.logger.Warn("cannot export image", "object", im.Ref.Number, "error", err)
			}
		}
		return nil
	})
}

func (c *cli) writePNG(r *reader.Reader, im reader.ImageInfo, dir string) error {
	obj, err := r.GetObject(im.Ref.Number)
	if err != nil {
		return err
	}
	img, err := r.DecodeImage(obj.(*core.Stream))
	if err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("image-%d.png", im.Ref.Number)))
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c *cli) embed(file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	if f := format.Detect(file); f != format.Unknown && f != format.DetectFromMagic(data) {
		c.logger.Warn("file extension does not match contents", "extension", f, "contents", format.DetectFromMagic(data))
	}
	im, err := imagecodec.Decode(data, imagecodec.WithLogger(c.logger))
	if err != nil {
		return err
	}
	stream, err := im.ToStream()
	if err != nil {
		return err
	}
	c.stdout.Write(core.Format(stream.Dict))
	fmt.Fprintf(c.stdout, "\n%% stream: %d bytes\n", len(stream.Data))
	return nil
}
