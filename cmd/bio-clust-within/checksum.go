package main

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/radclust/cluster"
	"github.com/grailbio/radclust/pipeline"
	"github.com/grailbio/radclust/stats"
	"v.io/x/lib/cmdline"
)

func newCmdChecksum() *cmdline.Command {
	cmd := &cmdline.Command{
		Name: "checksum",
		Short: `Compute an order-independent checksum of cluster streams.
Streams holding the same clusters, aligned or not, have the same checksum.`,
		ArgsName: "path...",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return env.UsageErrorf("checksum takes at least one path")
		}
		ctx := vcontext.Background()
		for _, path := range argv {
			clusters, err := cluster.ReadFile(ctx, path)
			if err != nil {
				return err
			}
			s := cluster.Sum(clusters)
			fmt.Fprintf(env.Stdout, "%s\tclusters=%d reads=%d seeds=%016x members=%016x\n",
				path, s.Clusters, s.Reads, s.SumSeeds, s.SumClusters)
		}
		return nil
	})
	return cmd
}

func newCmdStats() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "stats",
		Short:    "Print the depth statistics of aligned cluster streams",
		ArgsName: "clustS...",
	}
	majrule := cmd.Flags.Int("mindepth-majrule", pipeline.DefaultOpts.MinDepthMajrule, "Minimum cluster depth for majority-rule base calls")
	statistical := cmd.Flags.Int("mindepth-statistical", pipeline.DefaultOpts.MinDepthStatistical, "Minimum cluster depth for statistical base calls")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return env.UsageErrorf("stats takes at least one path")
		}
		ctx := vcontext.Background()
		fmt.Fprint(env.Stdout, stats.Header)
		for _, path := range argv {
			depths, err := stats.DepthsFile(ctx, path)
			if err != nil {
				return err
			}
			name, _ := pipeline.SampleName(strings.TrimSuffix(path, ".clustS.gz"))
			fmt.Fprint(env.Stdout, stats.Summarize(name, 0, depths, *majrule, *statistical).Format())
		}
		return nil
	})
	return cmd
}
