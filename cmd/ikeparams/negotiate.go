package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iniwex5/ikeparams/pkg/ikev2"
	"github.com/iniwex5/ikeparams/pkg/session"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var errNoSelection = errors.New("需要 --ike 或 --child 指定对端选择")

func newNegotiateCmd(opts *rootOptions) *cobra.Command {
	var (
		ikeSel   string
		childSel string
		rekey    bool
	)
	cmd := &cobra.Command{
		Use:   "negotiate",
		Short: "校验响应方选择的提议是否来自本端提供的提议",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ikeSel == "" && childSel == "" {
				return errNoSelection
			}
			p, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ike, child, err := p.Build()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ikeSel != "" {
				selected, err := parseSelection(ikev2.ProtoIKE, ikeSel)
				if err != nil {
					return err
				}
				idx, err := ikev2.Negotiate(ike.SaProposals(), selected)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "IKE: 匹配第 %d 个提议\n", idx+1)
			}
			if childSel != "" {
				selected, err := parseSelection(ikev2.ProtoESP, childSel)
				if err != nil {
					return err
				}
				idx, err := session.NegotiateChildSa(child, selected, rekey)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "CHILD: 匹配第 %d 个提议\n", idx+1)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ikeSel, "ike", "", "对端选择的 IKE 变换，逗号分隔")
	cmd.Flags().StringVar(&childSel, "child", "", "对端选择的 Child 变换，逗号分隔")
	cmd.Flags().BoolVar(&rekey, "rekey", false, "按 Child SA Rekey 校验 (不比较 DH 组)")
	return cmd
}

func parseSelection(proto ikev2.ProtocolID, s string) (*ikev2.SaProposal, error) {
	var (
		transforms []ikev2.Transform
		errs       error
	)
	for _, name := range strings.Split(s, ",") {
		t, err := ikev2.ParseTransform(name)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		transforms = append(transforms, t)
	}
	if errs != nil {
		return nil, errs
	}
	return ikev2.NewSaProposalFromTransforms(proto, transforms)
}
