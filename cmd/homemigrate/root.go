package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/homemigrate/internal/version"
	"github.com/arthur-debert/homemigrate/pkg/config"
	"github.com/arthur-debert/homemigrate/pkg/errors"
	"github.com/arthur-debert/homemigrate/pkg/logging"
	"github.com/arthur-debert/homemigrate/pkg/migration"
	"github.com/arthur-debert/homemigrate/pkg/output"
	"github.com/arthur-debert/homemigrate/pkg/paths"
	"github.com/arthur-debert/homemigrate/pkg/registry"
	"github.com/arthur-debert/homemigrate/pkg/report"
)

// globalOptions are shared by every command
type globalOptions struct {
	verbosity  int
	configPath string
	home       string
	noColor    bool

	cfg *config.Config
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	o := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "homemigrate",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.String(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf("no command specified")
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	// Global flags
	rootCmd.PersistentFlags().CountVarP(&o.verbosity, "verbose", "v", MsgFlagVerbose)
	rootCmd.PersistentFlags().StringVar(&o.configPath, "config", "", MsgFlagConfig)
	rootCmd.PersistentFlags().StringVar(&o.home, "home", "", MsgFlagHome)
	rootCmd.PersistentFlags().BoolVar(&o.noColor, "no-color", false, MsgFlagNoColor)

	rootCmd.AddCommand(newImportCmd(o))
	rootCmd.AddCommand(newListCmd(o))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// setup loads the configuration, sets up logging and registers the
// configured migratables
func (o *globalOptions) setup(cmd *cobra.Command) error {
	overrides := map[string]interface{}{}
	if o.home != "" {
		overrides["home"] = o.home
	}

	cfg, err := config.Load(config.Options{Path: o.configPath, Overrides: overrides})
	if err != nil {
		return err
	}
	o.cfg = cfg

	logging.SetupLogger(o.verbosity, cfg.Log.File)
	log.Debug().Str("command", cmd.Name()).Msg("Command started")

	registry.ResetMigratables()
	return registry.LoadMigratables(cfg.Migratables)
}

// openManager loads the archive with every registered migratable, applying
// the configured import settings
func (o *globalOptions) openManager(rep *report.Report, archivePath string) (*migration.Manager, error) {
	cfg := o.cfg

	resolver, err := paths.New(cfg.Home)
	if err != nil {
		return nil, err
	}

	ctxOpts := []migration.Option{
		migration.WithVerifyChecksums(cfg.Import.VerifyChecksums),
		migration.WithDeleteSubdirectories(cfg.Clean.DeleteSubdirectories),
	}
	if cfg.Import.CheckAccess {
		ctxOpts = append(ctxOpts, migration.WithAccessChecker(
			migration.NewProtectedPaths(resolver, cfg.Import.ProtectedPaths...)))
	}

	return migration.NewManager(rep, archivePath, registry.Migratables(),
		migration.WithManifestName(cfg.Archive.Manifest),
		migration.WithFormatVersion(cfg.Archive.FormatVersion),
		migration.WithProductVersion(cfg.Archive.ProductVersion),
		migration.WithHome(resolver),
		migration.WithContextOptions(ctxOpts...),
	)
}

func newImportCmd(o *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <archive>",
		Short: MsgImportShort,
		Long:  MsgImportLong,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}
			archivePath := args[0]
			logger := logging.GetLogger("cmd.import")

			rep := report.New("import")
			m, err := o.openManager(rep, archivePath)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			importErr := m.Import(cmd.Context())
			logger.Info().
				Str("report", rep.ID().String()).
				Int("warnings", len(rep.Warnings())).
				Int("errors", len(rep.Errors())).
				Msg("Import finished")

			r, err := output.NewRenderer(cmd.OutOrStdout(), f, o.noColor)
			if err != nil {
				return err
			}
			if err := r.Render("import", output.NewImportView(archivePath, m, rep)); err != nil {
				return err
			}

			if importErr != nil {
				return errors.Wrapf(importErr, errors.ErrRestoreFailed, MsgErrImportFailed, len(rep.Errors()))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", string(output.FormatText), MsgFlagOutput)
	return cmd
}

func newListCmd(o *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list <archive>",
		Short: MsgListShort,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := output.ParseFormat(format)
			if err != nil {
				return err
			}

			m, err := o.openManager(report.New("list"), args[0])
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()

			r, err := output.NewRenderer(cmd.OutOrStdout(), f, o.noColor)
			if err != nil {
				return err
			}
			return r.Render("list", output.NewListView(args[0], m))
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", string(output.FormatText), MsgFlagOutput)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: MsgVersionShort,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), MsgVersionFormat, version.Version, version.Commit, version.Date)
		},
	}
}
