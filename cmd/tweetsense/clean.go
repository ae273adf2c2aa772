package main

import (
	"bufio"
	"fmt"

	"github.com/mohammad-safakhou/tweetsense/internal/helpers"
	"github.com/spf13/cobra"
)

func cleanCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Clean post text read line by line from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			sc := bufio.NewScanner(cmd.InOrStdin())
			sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
			out := cmd.OutOrStdout()
			for sc.Scan() {
				if _, err := fmt.Fprintln(out, helpers.CleanText(sc.Text())); err != nil {
					return err
				}
			}
			return sc.Err()
		},
	}
}
