package commands

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted backend references",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	d, err := buildDeps()
	if err != nil {
		return err
	}
	refs, err := d.manager.List()
	if err != nil {
		return err
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Location < refs[j].Location })

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tPID\tALIVE\tURL")
	for _, ref := range refs {
		fmt.Fprintf(w, "%s\t%d\t%t\t%s\n", ref.Server.GroupKey, ref.Server.PID, ref.Alive, ref.Server.AbsoluteURL)
	}
	return w.Flush()
}
