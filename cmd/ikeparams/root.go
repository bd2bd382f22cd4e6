package main

import (
	"github.com/iniwex5/ikeparams/pkg/logger"
	"github.com/iniwex5/ikeparams/pkg/profile"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	profilePath string
	logLevel    string
	logFormat   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "ikeparams",
		Short: "IKEv2 会话参数校验与提议协商工具",
		Long: `ikeparams 读取 YAML 配置文件，按 IKEv2 规则构建 IKE / Child 会话参数。

  ikeparams validate -f epdg.yaml
  ikeparams proposals -f epdg.yaml
  ikeparams negotiate -f epdg.yaml --ike "AES_GCM_16/256,PRF_HMAC_SHA2_256,MODP_2048"`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.InitWriter(opts.logLevel, opts.logFormat, cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVarP(&opts.profilePath, "file", "f", "", "配置文件路径")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "日志级别 (debug/info/warn/error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "console", "日志格式 (console/json)")

	root.AddCommand(newValidateCmd(opts))
	root.AddCommand(newProposalsCmd(opts))
	root.AddCommand(newNegotiateCmd(opts))
	return root
}

// load 读取配置文件；命令行未指定日志参数时改用配置文件中的 logger 设置
func (o *rootOptions) load(cmd *cobra.Command) (*profile.Profile, error) {
	if o.profilePath == "" {
		return nil, errMissingProfile
	}
	p, err := profile.Load(o.profilePath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if p.Logger != nil && !flags.Changed("log-level") && !flags.Changed("log-format") {
		if err := logger.InitWriter(p.Logger.Level, p.Logger.Format, cmd.ErrOrStderr()); err != nil {
			return nil, err
		}
	}
	return p, nil
}
