package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brunobiangulo/relex"
)

var (
	cfgFile    string
	dbPath     string
	schemaPath string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "relex",
	Short: "Relex - relation candidate extraction over annotated documents",
	Long: `Relex enumerates relation candidates from documents that have been
decomposed into typed, span-based mentions.

A schema file declares mention types (n-gram spaces plus matchers) and
relations (ordered roles plus optional throttlers). The "mentions" pass
proposes and filters spans per sentence; the "extract" pass walks the
filtered Cartesian product of per-role mention sets and persists the
survivors. Both passes run documents in parallel and are idempotent
across re-runs.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("relex v0.1.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.relex/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "schema definition file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
	_ = viper.BindPFlag("schema_path", rootCmd.PersistentFlags().Lookup("schema"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.relex")
			viper.SetConfigType("yaml")
			viper.SetConfigName("config")
		}
	}

	// Read in environment variables that match RELEX_*
	viper.SetEnvPrefix("RELEX")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()

	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// pipelineConfig assembles a relex.Config from defaults, config file, env,
// and flags.
func pipelineConfig() relex.Config {
	cfg := relex.DefaultConfig()
	if v := viper.GetString("db_path"); v != "" {
		cfg.DBPath = v
	}
	if v := viper.GetString("db_name"); v != "" {
		cfg.DBName = v
	}
	if v := viper.GetString("storage_dir"); v != "" {
		cfg.StorageDir = v
	}
	if v := viper.GetString("schema_path"); v != "" {
		cfg.SchemaPath = v
	}
	if v := viper.GetInt("parallelism"); v > 0 {
		cfg.Parallelism = v
	}
	if viper.IsSet("split") {
		cfg.Split = viper.GetInt("split")
	}
	if viper.IsSet("self_relations") {
		cfg.SelfRelations = viper.GetBool("self_relations")
	}
	if viper.IsSet("nested_relations") {
		cfg.NestedRelations = viper.GetBool("nested_relations")
	}
	if viper.IsSet("symmetric_relations") {
		cfg.SymmetricRelations = viper.GetBool("symmetric_relations")
	}
	return cfg
}

// openPipeline builds the pipeline from the resolved configuration.
func openPipeline() (*relex.Pipeline, error) {
	return relex.New(pipelineConfig())
}
