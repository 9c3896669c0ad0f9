package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulschiretz/pgl-plugin-backup/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	Config   *string
	LogLevel *string
	Metrics  *bool

	// Shared: Run / Daemon / Prune
	DryRun *bool

	// Shared: Run / Daemon / Init
	Plugins       *string
	PluginsFolder *string
	BackupRoot    *string
	BufferSizeKB  *int

	// Daemon specific
	Schedule       *string
	MetricsAddress *string

	// Restore specific
	Date   *string
	Unit   *string
	Target *string

	// Init specific
	Force *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Config = fs.String("config", DefaultConfigPath, "Path to the YAML configuration file.")
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.Metrics = fs.Bool("metrics", false, "Enable run metrics.")
}

func registerBackupFlags(fs *flag.FlagSet, f *cliFlags) {
	f.DryRun = fs.Bool("dry-run", false, "Log expired buckets instead of deleting them.")
	f.Plugins = fs.String("plugins", "", "Comma-separated list of plugin names to back up, in order.")
	f.PluginsFolder = fs.String("plugins-folder", "", "Folder holding the installed plugins and their data folders.")
	f.BackupRoot = fs.String("backup-root", "", "Directory holding the dated backup folders.")
	f.BufferSizeKB = fs.Int("buffer-size-kb", 0, "Size of the I/O buffer in kilobytes for archive writes.")
}

func registerDaemonFlags(fs *flag.FlagSet, f *cliFlags) {
	registerBackupFlags(fs, f)
	f.Schedule = fs.String("schedule", "", "Cron schedule for backup runs, e.g. '@hourly' or '0 */2 * * *'.")
	f.MetricsAddress = fs.String("metrics-address", "", "Listen address for the Prometheus /metrics endpoint.")
}

func registerPruneFlags(fs *flag.FlagSet, f *cliFlags) {
	f.DryRun = fs.Bool("dry-run", false, "Log expired buckets instead of deleting them.")
	f.BackupRoot = fs.String("backup-root", "", "Directory holding the dated backup folders.")
}

func registerRestoreFlags(fs *flag.FlagSet, f *cliFlags) {
	f.BackupRoot = fs.String("backup-root", "", "Directory holding the dated backup folders.")
	f.Date = fs.String("date", "", "Backup folder to restore from in <month>-<day>-<year> form. Defaults to today.")
	f.Unit = fs.String("unit", "", "Name of the plugin whose archive is restored. (Required)")
	f.Target = fs.String("target", "", "Directory to restore to. Must be empty or missing. (Required)")
}

func registerListFlags(fs *flag.FlagSet, f *cliFlags) {
	f.BackupRoot = fs.String("backup-root", "", "Directory holding the dated backup folders.")
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Plugins = fs.String("plugins", "", "Comma-separated list of plugin names to back up, in order.")
	f.PluginsFolder = fs.String("plugins-folder", "", "Folder holding the installed plugins and their data folders.")
	f.BackupRoot = fs.String("backup-root", "", "Directory holding the dated backup folders.")
	f.Force = fs.Bool("force", false, "Update an existing configuration file without asking for confirmation.")
}

// DefaultConfigPath is the configuration file used when -config is not given. It places
// the tool's data folder inside the plugins folder like any other plugin.
var DefaultConfigPath = filepath.Join("plugins", buildinfo.Name, "config.yml")

// Parse parses the provided arguments (usually os.Args[1:]) and returns the command and
// a map of the flags that were explicitly set.
func Parse(args []string) (Command, map[string]interface{}, error) {
	// If no arguments provided, print help and exit.
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])

	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}

	var register func(*flag.FlagSet, *cliFlags)
	var desc string
	switch command {
	case Run:
		register, desc = registerBackupFlags, "Back up every configured plugin once, then prune expired backup folders."
	case Daemon:
		register, desc = registerDaemonFlags, "Run backups on a cron schedule until interrupted."
	case Prune:
		register, desc = registerPruneFlags, "Delete expired backup folders."
	case Restore:
		register, desc = registerRestoreFlags, "Extract one plugin archive from a backup folder."
	case List:
		register, desc = registerListFlags, "List backup folders, their archives and whether retention would remove them."
	case Init:
		register, desc = registerInitFlags, "Write a new configuration file."
	case Version:
		return command, nil, nil
	default:
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}

	f := &cliFlags{}
	fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
	registerGlobalFlags(fs, f)
	register(fs, f)

	// Custom usage for the subcommand
	fs.Usage = func() {
		printSubcommandUsage(command, desc, fs)
	}

	if err := fs.Parse(args[1:]); err != nil {
		return command, nil, err
	}
	if fs.NArg() > 0 {
		return command, nil, fmt.Errorf("unexpected arguments for %s: %s", command, strings.Join(fs.Args(), " "))
	}

	flagMap, err := flagsToMap(fs, f)
	return command, flagMap, err
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) (map[string]interface{}, error) {
	// Create a map of the flags that were explicitly set by the user, along with their values.
	// This map is used to selectively override the base configuration.
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	// The config path is always needed, so it is recorded even when left at its default.
	flagMap["config"] = *f.Config

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "metrics", f.Metrics)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)

	addIfUsed(flagMap, usedFlags, "plugins-folder", f.PluginsFolder)
	addIfUsed(flagMap, usedFlags, "backup-root", f.BackupRoot)
	addIfUsed(flagMap, usedFlags, "buffer-size-kb", f.BufferSizeKB)

	addIfUsed(flagMap, usedFlags, "schedule", f.Schedule)
	addIfUsed(flagMap, usedFlags, "metrics-address", f.MetricsAddress)

	addIfUsed(flagMap, usedFlags, "date", f.Date)
	addIfUsed(flagMap, usedFlags, "unit", f.Unit)
	addIfUsed(flagMap, usedFlags, "target", f.Target)

	addIfUsed(flagMap, usedFlags, "force", f.Force)

	// Handle flags that require parsing/validation.
	addParsedIfUsed(flagMap, usedFlags, "plugins", f.Plugins, ParseList)

	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Daily zip backups of plugin data folders.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  run         Back up all configured plugins once\n")
	fmt.Fprintf(fs.Output(), "  daemon      Run backups on a schedule\n")
	fmt.Fprintf(fs.Output(), "  prune       Delete expired backup folders\n")
	fmt.Fprintf(fs.Output(), "  restore     Restore a plugin archive\n")
	fmt.Fprintf(fs.Output(), "  list        List backup folders\n")
	fmt.Fprintf(fs.Output(), "  init        Initialize a new configuration\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Daily zip backups of plugin data folders.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

// ParseList parses a comma-separated list of names.
// It supports both single (') and double (") quotes so items can contain commas or spaces.
// Quotes are removed from the result and backslashes are literal characters.
func ParseList(s string) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	// Helper to add the current buffered item to the list after trimming whitespace.
	appendItem := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	for _, r := range s {
		switch {
		case r == '\'' || r == '"':
			if quoteChar == 0 { // Start of a new quoted section.
				quoteChar = r
			} else if quoteChar == r { // End of the current quoted section.
				quoteChar = 0
			} else { // A different quote character inside an existing quoted section.
				current.WriteRune(r)
			}
		case r == ',' && quoteChar == 0: // Comma outside of any quotes.
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem() // Add the final item after the loop finishes.
	return list
}
