package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var errMissingProfile = errors.New("需要通过 -f 指定配置文件")

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "构建会话参数并报告全部错误",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ike, child, err := p.Build()
			if err != nil {
				out := cmd.ErrOrStderr()
				for _, e := range multierr.Errors(err) {
					fmt.Fprintf(out, "INVALID: %v\n", e)
				}
				return fmt.Errorf("%s: %d 处错误", opts.profilePath, len(multierr.Errors(err)))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "VALID: %s, %d 个 IKE 提议, %d 个 Child 提议, %s 模式\n",
				ike.ServerHostname(), len(ike.SaProposals()), len(child.SaProposals()), child.Mode())
			return nil
		},
	}
}
