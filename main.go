package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	newDriver := func(log *Logger) Driver { return newDiskDriver(log) }
	os.Exit(execute(os.Args[1:], newDriver, os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit status.
func execute(args []string, newDriver func(*Logger) Driver, stdout, stderr io.Writer) int {
	var (
		opts       Options
		verbose    bool
		configPath string

		started, dispatched bool
	)

	root := &cobra.Command{
		Use:   "partflash [flags] [FILE]",
		Short: "Inspect, back up and flash the partitions of a flash device",
		Long: "partflash lists flash devices and their partitions, and backs up, checksums,\n" +
			"erases, flashes and compares partitions.\n\n" +
			"  partflash -l                         list devices\n" +
			"  partflash                            list partitions\n" +
			"  partflash -p NAME -ACTION [FILE]     act on partitions\n\n" +
			"Use -p '*' for every partition. With several partitions FILE is a prefix:\n" +
			"a directory (ending in /) or a name that gets .NAME appended.",
		Version:       appversion,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			started = true
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			mergeConfig(cmd.Flags(), &opts, &verbose, cfg)
			opts.Args = posArgs

			log := NewLogger(stderr, 0)
			if verbose {
				log.SetVerbosity(2)
			}
			configureTrace(stderr)
			dispatched = true
			return Run(opts, newDriver(log), stdout, log)
		},
	}

	flags := root.Flags()
	flags.BoolVarP(&opts.ListDevices, "list-devices", "l", false, "Print active devices and exit")
	flags.StringVarP(&opts.Select, "select", "s", "", "Select device to operate on (BUS:DEVNUM)")
	flags.StringVar(&opts.Image, "image", "", "Operate on a disk image file instead of a device")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Print more messages")
	flags.StringArrayVarP(&opts.Parts, "part", "p", nil, "Partition to work on (may be specified many times, * for all)")
	flags.BoolVarP(&opts.MD5, "md5", "M", false, "Calculate MD5 of partition")
	flags.BoolVarP(&opts.Backup, "backup", "B", false, "Backup partition to a file (- for stdout)")
	flags.BoolVarP(&opts.Erase, "erase", "E", false, "Erase partition")
	flags.BoolVarP(&opts.Flash, "flash", "F", false, "Flash file to partition")
	flags.BoolVarP(&opts.Compare, "compare", "C", false, "Compare partition to file (highly recommended after -F or -B)")
	flags.BoolVarP(&opts.Reboot, "reboot", "R", false, "Reboot device")
	flags.StringVar(&opts.TempDir, "tmpdir", "", "Directory for staging files")
	flags.StringVar(&configPath, "config", "", "Config file (TOML)")

	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err == nil {
		return 0
	}

	var ue *UsageError
	switch {
	case errors.As(err, &ue):
		fmt.Fprintf(stderr, "partflash: %v\nRun 'partflash --help' for usage.\n", err)
		return exitUsage
	case dispatched:
		// Already reported through the logger.
		return exitFailure
	case !started:
		// Flag parsing failed.
		fmt.Fprintf(stderr, "partflash: %v\nRun 'partflash --help' for usage.\n", err)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "partflash: %v\n", err)
		return exitFailure
	}
}

// mergeConfig fills options the user did not set on the command line.
func mergeConfig(flags *pflag.FlagSet, opts *Options, verbose *bool, cfg Config) {
	if !flags.Changed("select") && !flags.Changed("image") {
		switch {
		case cfg.Image != "":
			opts.Image = cfg.Image
		case cfg.Select != "":
			opts.Select = cfg.Select
		}
	}
	if !flags.Changed("verbose") && cfg.Verbose {
		*verbose = true
	}
	if !flags.Changed("tmpdir") && cfg.TempDir != "" {
		opts.TempDir = cfg.TempDir
	}
}
