package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatscribe/internal/config"
	"github.com/xkilldash9x/chatscribe/internal/observability"
)

// viperKey is the flag annotation naming the configuration key a flag
// overrides. Several commands define flags of the same name, so binding
// happens for the executing command only.
const viperKey = "chatscribe_viper_key"

// cliState is shared by the commands of one root command.
type cliState struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
}

// NewRootCommand builds a fresh command tree with its own configuration.
func NewRootCommand() *cobra.Command {
	s := &cliState{v: viper.New()}
	config.SetDefaults(s.v)

	rootCmd := &cobra.Command{
		Use:           "chatscribe",
		Short:         "Export chat conversations from a browser tab to Markdown.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := s.initializeConfig(cmd); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(s.v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "chatscribe"})
				return err
			}
			observability.InitializeLogger(cfg.Logger)
			s.cfg = cfg

			observability.GetLogger().Debug("Starting chatscribe.", zap.String("version", Version), zap.String("command", cmd.Name()))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			observability.Sync()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&s.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	bindTo(rootCmd.PersistentFlags(), "log-level", "logger.level")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newExportCmd(s),
		newConvertCmd(s),
		newProfilesCmd(s),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command line under ctx.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Warn("Interrupted.")
		} else {
			observability.GetLogger().Error("Command execution failed.", zap.Error(err))
		}
		observability.Sync()
		return err
	}
	return nil
}

// initializeConfig reads the config file and environment, then binds the
// executing command's flags over them.
func (s *cliState) initializeConfig(cmd *cobra.Command) error {
	if s.cfgFile != "" {
		s.v.SetConfigFile(s.cfgFile)
	} else {
		s.v.AddConfigPath(".")
		s.v.SetConfigName("config")
		s.v.SetConfigType("yaml")
	}

	s.v.SetEnvPrefix("CHATSCRIBE")
	s.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	s.v.AutomaticEnv()

	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys, ok := f.Annotations[viperKey]
		if !ok || len(keys) == 0 || bindErr != nil {
			return
		}
		bindErr = s.v.BindPFlag(keys[0], f)
	})
	return bindErr
}

// bindTo marks flag name of fs as overriding configuration key.
func bindTo(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, viperKey, []string{key}); err != nil {
		panic(fmt.Sprintf("flag %q is not defined", name))
	}
}
