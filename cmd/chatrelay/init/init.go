// Package initcmder provides the init command for initializing a local
// .chatrelay directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatrelay/pkg/cliui"
	"github.com/papercomputeco/chatrelay/pkg/config"
)

const (
	dirName = ".chatrelay"

	remoteFetchTimeout = 15 * time.Second
	maxRemoteConfig    = 1 << 20
)

const initLongDesc string = `Initialize a new .chatrelay/ directory in the current working directory.

Creates a local .chatrelay/ directory that takes precedence over the default
~/.chatrelay/ directory, and writes a config.toml into it. Without --preset
the defaults are written, unless a config.toml already exists.

--preset takes a provider name (deepseek, glm, siliconflow) or an http(s)
URL serving a config.toml, and overwrites any existing config.

Examples:
  chatrelay init
  chatrelay init --preset glm
  chatrelay init --preset https://example.com/chatrelay/config.toml`

const initShortDesc string = "Initialize a local .chatrelay/ directory"

type initCommander struct {
	preset string
	out    io.Writer
}

func NewInitCmd() *cobra.Command {
	cmder := &initCommander{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.preset, "preset", "",
		fmt.Sprintf("Provider preset (%s) or URL of a config.toml", strings.Join(config.ValidPresetNames(), ", ")))

	return cmd
}

func (c *initCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating .chatrelay directory: %w", err)
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if c.preset == "" {
		if _, err := os.Stat(cfger.GetTarget()); err == nil {
			fmt.Fprintf(c.out, "  %s Already initialized: %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
			return nil
		}
	}

	var cfg *config.Config
	if err := cliui.Step(c.out, c.presetStep(), func() error {
		var err error
		cfg, err = c.resolvePreset(ctx)
		return err
	}); err != nil {
		return err
	}

	if err := cliui.Step(c.out, "Writing "+filepath.Base(cfger.GetTarget()), func() error {
		return cfger.SaveConfig(cfg)
	}); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "  %s Initialized %s\n", cliui.SuccessMark, cliui.DimStyle.Render(dir))
	fmt.Fprintf(c.out, "  %s %s\n", cliui.KeyStyle.Render("Provider:"), cliui.NameStyle.Render(cfg.Provider.Name))
	return nil
}

func (c *initCommander) presetStep() string {
	switch {
	case c.preset == "":
		return "Loading defaults"
	case isRemotePreset(c.preset):
		return "Fetching " + c.preset
	default:
		return "Loading preset " + c.preset
	}
}

func isRemotePreset(preset string) bool {
	return strings.HasPrefix(preset, "http://") || strings.HasPrefix(preset, "https://")
}

func (c *initCommander) resolvePreset(ctx context.Context) (*config.Config, error) {
	switch {
	case c.preset == "":
		return config.NewDefaultConfig(), nil
	case isRemotePreset(c.preset):
		return fetchRemoteConfig(ctx, c.preset)
	default:
		return config.PresetConfig(c.preset)
	}
}

func fetchRemoteConfig(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, remoteFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteConfig+1))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	if len(data) > maxRemoteConfig {
		return nil, errors.New("fetching remote config: file too large")
	}

	return config.ParseConfigTOML(data)
}
