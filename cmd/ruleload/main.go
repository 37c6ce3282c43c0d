// Command ruleload parses a rule-set document and prints the derived
// RULE_SET policy vector plus the header artifacts a loader would bake
// into the kernel programs, for operators validating a rule-set file
// before a real attach.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/WillGAndre/eLogJ/pkg/headerinfo"
	"github.com/WillGAndre/eLogJ/pkg/ruleset"
)

var rootCmd = &cobra.Command{
	Use:   "ruleload <rule-set.yaml>",
	Short: "Validate a rule-set document and print its derived artifacts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := ruleset.Load(args[0])
		if err != nil {
			return err
		}

		info, err := headerinfo.Compute(doc.JNDIPayloadHeader)
		if err != nil {
			return err
		}

		set := doc.Flatten()
		fmt.Printf("RULE_SET         = %v\n", set)
		fmt.Printf("HEADER_SEQ       = %v\n", info.Seq)
		fmt.Printf("LOGGER_INFO      = [name_len=%d, name_offset=%d]\n", info.NameLen, info.NameOffset)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}
