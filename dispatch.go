package main

import (
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Options is the intent of one invocation.
type Options struct {
	ListDevices bool
	Select      string
	Image       string
	Parts       []string
	Actions
	Args    []string
	TempDir string
}

// Run executes one invocation. Listings go to stdout, diagnostics to log.
// Errors other than usage errors are reported through log before returning.
func Run(opts Options, drv Driver, stdout io.Writer, log *Logger) error {
	err := run(opts, drv, stdout, log)
	var ue *UsageError
	if err != nil && !errors.As(err, &ue) {
		log.Errorf("%v\n", err)
	}
	return err
}

func run(opts Options, drv Driver, stdout io.Writer, log *Logger) error {
	if err := validate(opts); err != nil {
		return err
	}

	if opts.ListDevices {
		devices, err := drv.ListDevices()
		if err != nil {
			return fmt.Errorf("list devices: %w", err)
		}
		printDevices(stdout, devices)
		return nil
	}

	dev, err := selectDevice(opts, drv)
	if err != nil {
		return err
	}

	op, err := drv.Open(dev)
	if err != nil {
		return fmt.Errorf("open device %d:%d: %w", dev.Bus, dev.Dev, err)
	}
	defer op.Close()

	raw, err := op.LoadPartitions()
	if err != nil {
		return fmt.Errorf("load partitions: %w", err)
	}
	table, err := BuildTable(raw)
	if err != nil {
		return fmt.Errorf("load partitions: %w", err)
	}

	if !opts.PartCommands() && !opts.Reboot {
		printPartitions(stdout, table)
		return nil
	}

	var targets []Target
	if opts.PartCommands() {
		targets, err = Resolve(opts.Parts, table, opts.path(), opts.Actions)
		if err != nil {
			return err
		}
	}

	// Some progress is always shown once partitions are touched.
	log.RaiseVerbosity(1)

	var results []string
	for _, tg := range targets {
		digest, err := runTarget(op, tg, opts, stdout, log)
		if err != nil {
			return err
		}
		if digest != "" {
			results = append(results, digest)
		}
	}

	if opts.Reboot {
		log.Divider()
		log.Log("Rebooting device\n")
		if err := op.Reboot(); err != nil {
			return fmt.Errorf("reboot: %w", err)
		}
		log.Done()
	}

	for _, r := range results {
		fmt.Fprintln(stdout, r)
	}
	return nil
}

func (o Options) path() string {
	if len(o.Args) == 0 {
		return ""
	}
	return o.Args[0]
}

func validate(opts Options) error {
	if opts.ListDevices {
		if len(opts.Args) != 0 {
			return usageErrorf("Unexpected argument")
		}
		if opts.PartCommands() || opts.Reboot || len(opts.Parts) != 0 {
			return usageErrorf("--list-devices cannot be combined with partition actions")
		}
		return nil
	}

	fileCommands := opts.FileCommands()
	switch {
	case fileCommands && len(opts.Args) == 0:
		return usageErrorf("Required filename missing")
	case fileCommands && len(opts.Args) > 1:
		return usageErrorf("Unexpected argument")
	case !fileCommands && len(opts.Args) != 0:
		return usageErrorf("Unexpected argument")
	}

	if opts.Backup && opts.Flash {
		return usageErrorf("Cannot backup and flash using the same file")
	}
	if opts.PartCommands() && len(opts.Parts) == 0 {
		return usageErrorf("Partition name (-p) is not specified")
	}
	if !opts.Backup && fileCommands && opts.Args[0] == stdioArg {
		return usageErrorf("Can only use stdout filename with --backup")
	}
	if opts.Select != "" && opts.Image != "" {
		return usageErrorf("--select and --image are mutually exclusive")
	}
	return nil
}

func selectDevice(opts Options, drv Driver) (Device, error) {
	if opts.Image != "" {
		return Device{Path: opts.Image}, nil
	}
	if opts.Select != "" {
		return parseSelect(opts.Select)
	}

	devices, err := drv.ListDevices()
	if err != nil {
		return Device{}, fmt.Errorf("list devices: %w", err)
	}
	switch len(devices) {
	case 0:
		return Device{}, usageErrorf("No devices found")
	case 1:
		return devices[0], nil
	default:
		return Device{}, usageErrorf("%d devices found, but -s is not specified", len(devices))
	}
}

// parseSelect parses a BUS:DEVNUM address.
func parseSelect(s string) (Device, error) {
	busStr, devStr, ok := strings.Cut(s, ":")
	if !ok {
		return Device{}, usageErrorf("Invalid device address %q, expected BUS:DEVNUM", s)
	}
	bus, err := strconv.Atoi(busStr)
	if err != nil || bus < 0 {
		return Device{}, usageErrorf("Invalid bus number in %q", s)
	}
	dev, err := strconv.Atoi(devStr)
	if err != nil || dev < 0 {
		return Device{}, usageErrorf("Invalid device number in %q", s)
	}
	return Device{Bus: bus, Dev: dev}, nil
}

// runTarget performs the action sequence for one partition and returns
// its checksum line, if one was requested.
func runTarget(op Operation, tg Target, opts Options, stdout io.Writer, log *Logger) (string, error) {
	filename, cleanup, err := tg.Stage(opts.TempDir)
	if err != nil {
		return "", err
	}
	defer cleanup()

	if opts.Flash {
		// Catch a missing image before anything is erased.
		f, err := os.Open(filename)
		if err != nil {
			return "", fmt.Errorf("flash %s: %w", tg.Name, err)
		}
		f.Close()
	}

	var digest string
	if opts.MD5 || opts.Backup {
		log.Divider()
		log.Logf("Reading partition %s (0x%08X @ 0x%08X) into %s\n", tg.Name, tg.Size, tg.Offset, filename)
		if err := op.BackupPartition(tg.Offset, tg.Size, filename, false); err != nil {
			return "", fmt.Errorf("backup %s: %w", tg.Name, err)
		}
		log.Done()

		if opts.MD5 {
			sum, err := fileMD5(filename)
			if err != nil {
				return "", fmt.Errorf("checksum %s: %w", tg.Name, err)
			}
			digest = fmt.Sprintf("%x  %s", sum, tg.Name)
		}
		if opts.Backup && tg.Staged {
			if err := copyFileTo(stdout, filename); err != nil {
				return "", fmt.Errorf("write %s to stdout: %w", tg.Name, err)
			}
		}
	}

	if opts.Erase {
		log.Divider()
		log.Logf("Erasing partition %s (0x%08X @ 0x%08X)\n", tg.Name, tg.Size, tg.Offset)
		if err := op.ErasePartition(tg.Offset, tg.Size); err != nil {
			return "", fmt.Errorf("erase %s: %w", tg.Name, err)
		}
		log.Done()
	}

	if opts.Flash {
		log.Divider()
		log.Logf("Flashing %s into partition %s (0x%08X @ 0x%08X)\n", filename, tg.Name, tg.Size, tg.Offset)
		if err := op.FlashImageFile(tg.Offset, tg.Size, filename, false); err != nil {
			return "", fmt.Errorf("flash %s: %w", tg.Name, err)
		}
		log.Done()
	}

	if opts.Compare {
		log.Divider()
		log.Logf("Comparing partition %s (0x%08X @ 0x%08X) with %s\n", tg.Name, tg.Size, tg.Offset, filename)
		mismatches, err := op.CompareWithFile(tg.Offset, tg.Size, filename)
		if err != nil {
			return "", fmt.Errorf("compare %s: %w", tg.Name, err)
		}
		if mismatches != 0 {
			return "", &VerifyError{Partition: tg.Name, Mismatches: mismatches}
		}
		log.Done()
	}

	return digest, nil
}

// fileMD5 digests the decoded content of filename.
func fileMD5(filename string) ([]byte, error) {
	r, err := openImage(filename)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func copyFileTo(w io.Writer, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}
