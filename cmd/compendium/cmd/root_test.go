package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedOutput string
		expectError    bool
	}{
		{
			name:           "help flag",
			args:           []string{"--help"},
			expectedOutput: "compendium loads the reference content",
			expectError:    false,
		},
		{
			name:           "short help flag",
			args:           []string{"-h"},
			expectedOutput: "compendium loads the reference content",
			expectError:    false,
		},
		{
			name:           "invalid flag",
			args:           []string{"--invalid-flag"},
			expectedOutput: "unknown flag: --invalid-flag",
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCommand()

			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetErr(buf)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			output := buf.String()
			if err != nil {
				output += err.Error()
			}

			if tt.expectError && err == nil {
				t.Errorf("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}

			if !strings.Contains(output, tt.expectedOutput) {
				t.Errorf("expected output to contain %q, got:\n%s", tt.expectedOutput, output)
			}
		})
	}
}

func TestRootCommandPersistentFlags(t *testing.T) {
	cmd := newRootCommand()

	flags := []string{"config", "log-level", "log-format"}
	for _, flag := range flags {
		if f := cmd.PersistentFlags().Lookup(flag); f == nil {
			t.Errorf("expected persistent flag %q to be defined", flag)
		}
	}
}

func TestRootCommandSubcommands(t *testing.T) {
	cmd := newRootCommand()

	expectedCommands := []string{"import", "link", "phases", "migrate", "version"}
	for _, cmdName := range expectedCommands {
		found := false
		for _, subCmd := range cmd.Commands() {
			if subCmd.Name() == cmdName {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("expected subcommand %q to be registered", cmdName)
		}
	}
}

// newRootCommand creates a fresh root command for testing. Subcommands are
// package-level variables, so they are detached from any previous root and
// their flags are returned to their defaults.
func newRootCommand() *cobra.Command {
	testRootCmd := &cobra.Command{
		Use:           rootCmd.Use,
		Short:         rootCmd.Short,
		Long:          rootCmd.Long,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configPath, logLevel, logFormat = "", "", ""
	testRootCmd.PersistentFlags().StringVar(&configPath, "config", "", "env file to load before reading the environment (default: .env)")
	testRootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error) (default: info)")
	testRootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console) (default: json)")

	for _, sub := range []*cobra.Command{importCmd, linkCmd, phasesCmd, migrateCmd, versionCmd} {
		if sub.HasParent() {
			sub.Parent().RemoveCommand(sub)
		}
		resetFlags(sub)
		testRootCmd.AddCommand(sub)
	}
	return testRootCmd
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
