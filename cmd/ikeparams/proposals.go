package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/iniwex5/ikeparams/pkg/ikev2"
	"github.com/spf13/cobra"
)

func newProposalsCmd(opts *rootOptions) *cobra.Command {
	var defaults bool
	cmd := &cobra.Command{
		Use:   "proposals",
		Short: "打印实际发出的 IKE / Child 提议",
		Long:  "打印实际发出的提议，第一个 Child SA 随 IKE_AUTH 协商，不携带 DH 组",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if defaults {
				printProposals(out, "IKE", ikev2.DefaultIkeSaProposals())
				printProposals(out, "CHILD", ikev2.DefaultChildSaProposals())
				return nil
			}

			p, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ike, child, err := p.Build()
			if err != nil {
				return err
			}
			printProposals(out, "IKE", ike.SaProposals())
			printProposals(out, "CHILD", child.FirstChildProposals())
			fmt.Fprintf(out, "IKE 默认 KE 组: %s\n", ike.DefaultDhGroup())
			return nil
		},
	}
	cmd.Flags().BoolVar(&defaults, "defaults", false, "打印内置默认提议，不读取配置文件")
	return cmd
}

func printProposals(w io.Writer, label string, props []*ikev2.SaProposal) {
	for i, p := range props {
		names := make([]string, 0, len(p.Transforms()))
		for _, t := range p.Transforms() {
			names = append(names, t.String())
		}
		fmt.Fprintf(w, "%s #%d: %s\n", label, i+1, strings.Join(names, ", "))
	}
}
