package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/mirrorsync/internal/core/domain"
)

var sourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Manage mirror sources",
	Long: `Sources describe where files are mirrored from and where they land
under the storage directory.`,
}

var sourceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	Args:  cobra.NoArgs,
	RunE:  runSourceList,
}

var sourceShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Show a source and its sync status",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceShow,
}

var sourceAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Register a new source",
	Long: `Register a new source. The transport type decides what --endpoint holds:
a URL for http/https, a host for ftp/sftp, a directory for local and a
bucket for s3. Run "mirrorsync source types" for the options of each type.`,
	Example: `  mirrorsync source add isos --type ftp --endpoint ftp.example.org --option remote_path=/pub/isos
  mirrorsync source add docs --endpoint https://example.com/files/ --include '*.pdf'`,
	Args: cobra.ExactArgs(1),
	RunE: runSourceAdd,
}

var sourceUpdateCmd = &cobra.Command{
	Use:   "update [name]",
	Short: "Change a source's configuration",
	Long:  `Change a source. Only the flags given are applied; --auth and --option entries are merged.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceUpdate,
}

var sourceRemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSourceRemove,
}

var sourceEnableCmd = &cobra.Command{
	Use:   "enable [name]",
	Short: "Allow a source to be synced",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSourceEnabled(cmd, args[0], true)
	},
}

var sourceDisableCmd = &cobra.Command{
	Use:   "disable [name]",
	Short: "Prevent a source from being synced",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSourceEnabled(cmd, args[0], false)
	},
}

var sourceTypesCmd = &cobra.Command{
	Use:         "types",
	Short:       "List transport types and their options",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipServices: "true"},
	RunE:        runSourceTypes,
}

// sourceFlags holds the flags shared by add and update.
type sourceFlags struct {
	transport string
	endpoint  string
	target    string
	disabled  bool
	autoSync  bool
	schedule  string
	include   []string
	exclude   []string
	auth      []string
	options   []string

	askPassword bool
}

var (
	addFlags    sourceFlags
	updateFlags sourceFlags
)

func bindSourceFlags(cmd *cobra.Command, f *sourceFlags) {
	cmd.Flags().StringVarP(&f.transport, "type", "t", "", "transport type (http, https, ftp, sftp, local, s3)")
	cmd.Flags().StringVarP(&f.endpoint, "endpoint", "e", "", "URL, host, directory or bucket")
	cmd.Flags().StringVar(&f.target, "target", "", "subdirectory under the storage root (default: source name)")
	cmd.Flags().BoolVar(&f.autoSync, "auto-sync", false, "mark the source for an external scheduler")
	cmd.Flags().StringVar(&f.schedule, "schedule", "", "schedule string for an external scheduler")
	cmd.Flags().StringSliceVar(&f.include, "include", nil, "glob of entries to mirror (repeatable)")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude", nil, "glob of entries to skip (repeatable)")
	cmd.Flags().StringSliceVar(&f.auth, "auth", nil, "credential as key=value (repeatable)")
	cmd.Flags().StringSliceVar(&f.options, "option", nil, "transport option as key=value (repeatable)")
	cmd.Flags().BoolVar(&f.askPassword, "ask-password", false, "read auth password from the terminal or stdin")
}

func init() {
	bindSourceFlags(sourceAddCmd, &addFlags)
	sourceAddCmd.Flags().BoolVar(&addFlags.disabled, "disabled", false, "register the source disabled")
	bindSourceFlags(sourceUpdateCmd, &updateFlags)

	sourceCmd.AddCommand(sourceListCmd)
	sourceCmd.AddCommand(sourceShowCmd)
	sourceCmd.AddCommand(sourceAddCmd)
	sourceCmd.AddCommand(sourceUpdateCmd)
	sourceCmd.AddCommand(sourceRemoveCmd)
	sourceCmd.AddCommand(sourceEnableCmd)
	sourceCmd.AddCommand(sourceDisableCmd)
	sourceCmd.AddCommand(sourceTypesCmd)
	rootCmd.AddCommand(sourceCmd)
}

var errEngineNotConfigured = errors.New("sync engine not configured")

func runSourceList(cmd *cobra.Command, _ []string) error {
	if syncEngine == nil {
		return errEngineNotConfigured
	}

	sources := syncEngine.GetSources(cmd.Context())
	if len(sources) == 0 {
		cmd.Println("No sources configured. Add one with 'mirrorsync source add'.")
		return nil
	}

	cmd.Println("Configured sources:")
	cmd.Printf("  %-20s %-6s %-8s %s\n", "NAME", "TYPE", "ENABLED", "ENDPOINT")
	for _, src := range sources {
		cmd.Printf("  %-20s %-6s %-8s %s\n", src.Name, src.Type, yesNo(src.Enabled), src.Endpoint)
	}
	return nil
}

func runSourceShow(cmd *cobra.Command, args []string) error {
	if syncEngine == nil {
		return errEngineNotConfigured
	}
	ctx := cmd.Context()

	src, err := syncEngine.GetSource(ctx, args[0])
	if err != nil {
		return err
	}
	status, err := syncEngine.GetSourceStatus(ctx, args[0])
	if err != nil {
		return err
	}

	cmd.Printf("Name:      %s\n", src.Name)
	cmd.Printf("Type:      %s\n", src.Type)
	cmd.Printf("Endpoint:  %s\n", src.Endpoint)
	cmd.Printf("Target:    %s\n", src.TargetDir())
	cmd.Printf("Enabled:   %s\n", yesNo(src.Enabled))
	if src.AutoSync || src.Schedule != "" {
		cmd.Printf("Auto sync: %s (%s)\n", yesNo(src.AutoSync), src.Schedule)
	}
	if len(src.Filters.Include) > 0 {
		cmd.Printf("Include:   %s\n", strings.Join(src.Filters.Include, ", "))
	}
	if len(src.Filters.Exclude) > 0 {
		cmd.Printf("Exclude:   %s\n", strings.Join(src.Filters.Exclude, ", "))
	}
	printSettings(cmd, "Options", src.Options, nil)
	printSettings(cmd, "Auth", src.Auth, secretKeys(src.Type))

	cmd.Println()
	if status.ActiveTask != nil {
		t := status.ActiveTask
		cmd.Printf("Active task: %s (%s, %.0f%%)\n", t.ID, t.Status, t.Progress)
	}
	if status.LastSync != nil {
		last := status.LastSync
		result := "succeeded"
		if !last.Success {
			result = last.Status.String()
		}
		cmd.Printf("Last sync:   %s, %s\n", humanize.Time(last.Completed), result)
		if last.Error != "" {
			cmd.Printf("Last error:  %s\n", last.Error)
		}
	} else {
		cmd.Println("Last sync:   never")
	}
	cmd.Printf("Total synced: %s files, %s\n",
		humanize.Comma(int64(status.TotalSyncedFiles)), humanize.Bytes(uint64(status.TotalSyncedSize)))
	return nil
}

func runSourceAdd(cmd *cobra.Command, args []string) error {
	if syncEngine == nil {
		return errEngineNotConfigured
	}

	auth, err := parsePairs("auth", addFlags.auth)
	if err != nil {
		return err
	}
	options, err := parsePairs("option", addFlags.options)
	if err != nil {
		return err
	}
	if addFlags.askPassword {
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		if auth == nil {
			auth = make(map[string]string, 1)
		}
		auth["password"] = password
	}

	src := domain.Source{
		Name:     args[0],
		Type:     domain.TransportType(strings.ToLower(addFlags.transport)),
		Endpoint: addFlags.endpoint,
		Target:   addFlags.target,
		Enabled:  !addFlags.disabled,
		AutoSync: addFlags.autoSync,
		Schedule: addFlags.schedule,
		Filters:  domain.Filters{Include: addFlags.include, Exclude: addFlags.exclude},
		Auth:     auth,
		Options:  options,
	}
	if err := syncEngine.AddSource(cmd.Context(), src); err != nil {
		return fmt.Errorf("add source: %w", err)
	}

	cmd.Printf("Added source: %s\n", src.Name)
	return nil
}

func runSourceUpdate(cmd *cobra.Command, args []string) error {
	if syncEngine == nil {
		return errEngineNotConfigured
	}
	ctx := cmd.Context()

	current, err := syncEngine.GetSource(ctx, args[0])
	if err != nil {
		return err
	}
	src := current.Clone()

	flags := cmd.Flags()
	if flags.Changed("type") {
		src.Type = domain.TransportType(strings.ToLower(updateFlags.transport))
	}
	if flags.Changed("endpoint") {
		src.Endpoint = updateFlags.endpoint
	}
	if flags.Changed("target") {
		src.Target = updateFlags.target
	}
	if flags.Changed("auto-sync") {
		src.AutoSync = updateFlags.autoSync
	}
	if flags.Changed("schedule") {
		src.Schedule = updateFlags.schedule
	}
	if flags.Changed("include") {
		src.Filters.Include = updateFlags.include
	}
	if flags.Changed("exclude") {
		src.Filters.Exclude = updateFlags.exclude
	}
	if err := mergePairs("auth", updateFlags.auth, &src.Auth); err != nil {
		return err
	}
	if err := mergePairs("option", updateFlags.options, &src.Options); err != nil {
		return err
	}
	if updateFlags.askPassword {
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		if src.Auth == nil {
			src.Auth = make(map[string]string, 1)
		}
		src.Auth["password"] = password
	}

	if err := syncEngine.UpdateSource(ctx, src.Name, src); err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	cmd.Printf("Updated source: %s\n", src.Name)
	return nil
}

func runSourceRemove(cmd *cobra.Command, args []string) error {
	if syncEngine == nil {
		return errEngineNotConfigured
	}
	if err := syncEngine.RemoveSource(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("remove source: %w", err)
	}
	cmd.Printf("Removed source: %s\n", args[0])
	return nil
}

func setSourceEnabled(cmd *cobra.Command, name string, enabled bool) error {
	if syncEngine == nil {
		return errEngineNotConfigured
	}
	if err := syncEngine.EnableSource(cmd.Context(), name, enabled); err != nil {
		return err
	}
	if enabled {
		cmd.Printf("Enabled source: %s\n", name)
	} else {
		cmd.Printf("Disabled source: %s\n", name)
	}
	return nil
}

func runSourceTypes(cmd *cobra.Command, _ []string) error {
	for _, spec := range domain.TransportSpecs() {
		cmd.Printf("%s - %s\n", spec.Type, spec.Description)
		cmd.Printf("  endpoint: %s\n", spec.EndpointLabel)
		for _, key := range spec.ConfigKeys {
			line := fmt.Sprintf("  %-14s %s", key.Key, key.Label)
			if key.Default != "" {
				line += fmt.Sprintf(" (default %s)", key.Default)
			}
			if key.Required {
				line += " [required]"
			}
			cmd.Println(line)
		}
		cmd.Println()
	}
	return nil
}

// readPassword prompts without echo on a terminal and otherwise reads one
// line from the command's input.
func readPassword(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.Print("Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		cmd.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// parsePairs turns key=value flags into a map.
func parsePairs(flag string, pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --%s %q: expected key=value", flag, pair)
		}
		out[key] = value
	}
	return out, nil
}

// mergePairs applies key=value flags onto dst. An empty value deletes the key.
func mergePairs(flag string, pairs []string, dst *map[string]string) error {
	parsed, err := parsePairs(flag, pairs)
	if err != nil || len(parsed) == 0 {
		return err
	}
	if *dst == nil {
		*dst = make(map[string]string, len(parsed))
	}
	for k, v := range parsed {
		if v == "" {
			delete(*dst, k)
			continue
		}
		(*dst)[k] = v
	}
	return nil
}

func printSettings(cmd *cobra.Command, title string, values map[string]string, secret map[string]bool) {
	if len(values) == 0 {
		return
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cmd.Printf("%s:\n", title)
	for _, k := range keys {
		v := values[k]
		if secret[k] {
			v = maskSecret(v)
		}
		cmd.Printf("  %s = %s\n", k, v)
	}
}

func secretKeys(t domain.TransportType) map[string]bool {
	spec, ok := domain.LookupTransport(t)
	if !ok {
		return nil
	}
	out := make(map[string]bool)
	for _, key := range spec.ConfigKeys {
		if key.Secret {
			out[key.Key] = true
		}
	}
	return out
}

// maskSecret shows only the last four characters of long values.
func maskSecret(v string) string {
	if len(v) <= 8 {
		return "********"
	}
	return "****" + v[len(v)-4:]
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
