// services/market-stream/cmd/market-stream/commands.go
package main

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Muritor08/TB-WSS/common/logger"
	"github.com/Muritor08/TB-WSS/common/shutdown"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/app"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/config"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/frame"
	"github.com/Muritor08/TB-WSS/services/market-stream/internal/packetspec"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "market-stream",
		Short:         "TradeBridge market stream decoder and session service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newDecodeCmd(), newSpecCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		cfgFile     string
		printConfig bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the session controller and control API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			// 1. Конфиг
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if printConfig {
				if err := cfg.Print(cmd.OutOrStdout()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "failed to print config: %v\n", err)
				}
			}

			// 2. Логгер
			log, err := logger.New(cfg.Logging)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer log.Sync()

			// 3. Контекст с отменой по сигналам
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go shutdown.WaitForSignals(ctx, cancel, log)

			log.Info("starting service",
				zap.String("service.name", cfg.ServiceName),
				zap.String("service.version", cfg.ServiceVersion),
			)
			if err := app.Run(ctx, cfg, log); err != nil {
				log.Error("application exited with error", zap.Error(err))
				return err
			}
			log.Info("shutdown complete")
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "path to config file (YAML); empty → env and defaults only")
	cmd.Flags().BoolVar(&printConfig, "print-config", false, "print the effective configuration on start")
	return cmd
}

// decodeOptions — флаги команды decode.
type decodeOptions struct {
	registry string
	family   string
	encoding string
	text     bool
}

func (o *decodeOptions) bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.registry, "registry", "formatted", `packet registry: "legacy", "formatted" or a YAML file`)
	fs.StringVar(&o.family, "family", "", "override wire family (legacy | enveloped)")
	fs.StringVar(&o.encoding, "encoding", "hex", "input encoding: hex | base64 | raw")
	fs.BoolVar(&o.text, "text", false, "treat the frame as a websocket text message")
}

func (o *decodeOptions) decoder() (*frame.Decoder, error) {
	reg, err := packetspec.Resolve(o.registry)
	if err != nil {
		return nil, err
	}
	var opts []frame.Option
	if o.family != "" {
		f, err := packetspec.ParseFamily(o.family)
		if err != nil {
			return nil, err
		}
		opts = append(opts, frame.WithFamily(f))
	}
	return frame.NewDecoder(reg, opts...), nil
}

func newDecodeCmd() *cobra.Command {
	var o decodeOptions
	cmd := &cobra.Command{
		Use:   "decode [frame]",
		Short: "Decode one frame given as hex or base64 (argument or stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dec, err := o.decoder()
			if err != nil {
				return err
			}
			input, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			data, err := decodeInput(input, o.encoding)
			if err != nil {
				return err
			}

			rec, err := dec.Decode(frame.Message{Data: data, Text: o.text})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "packet %d (%s)", rec.PacketType, rec.Name)
			if rec.Truncated {
				fmt.Fprint(out, " truncated")
			}
			fmt.Fprintln(out)
			for _, k := range rec.Order {
				fmt.Fprintf(out, "  %-12s %v\n", k, rec.Fields[k])
			}
			return nil
		},
	}
	o.bind(cmd.Flags())
	return cmd
}

func newSpecCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "spec [name]",
		Short: "Print a built-in packet registry as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "formatted"
			if len(args) == 1 {
				name = args[0]
			}
			reg, ok := packetspec.Builtin(name)
			if !ok {
				return fmt.Errorf("unknown registry %q (want legacy or formatted)", name)
			}
			b, err := yaml.Marshal(reg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func readInput(r io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(b), nil
}

func decodeInput(s, encoding string) ([]byte, error) {
	switch encoding {
	case "raw":
		return []byte(s), nil
	case "base64":
		return base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	case "hex":
		s = strings.Join(strings.Fields(s), "")
		return hex.DecodeString(s)
	default:
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}
}
