package main

/*
excov computes and stores coverage statistics over a curated exon
hierarchy.  A typical flow is

	excov build -db ./store ccds.txt.gz
	excov annotate -db ./store -sample S1 aln.bam > S1.cov
	excov import -db ./store S1.cov
	excov peek -db ./store BRCA1
*/

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/clinseq/excov/annotate"
	"github.com/clinseq/excov/depth"
	"github.com/clinseq/excov/elements"
	"github.com/clinseq/excov/store"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"v.io/x/lib/cmdline"
)

func newCmdBuild() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "build",
		Short:    "Build an element store from a CCDS dump",
		ArgsName: "ccdspath",
	}
	dbPath := cmd.Flags.String("db", "excov.db", "Element store path")
	force := cmd.Flags.Bool("force", false, "Overwrite an existing store")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("build takes one ccdspath argument, but got %v", argv)
		}
		if *force {
			if err := os.Remove(*dbPath); err != nil && !os.IsNotExist(err) {
				return err
			}
		}
		db, err := store.Create(*dbPath)
		if err != nil {
			return err
		}
		ctx := vcontext.Background()
		stats, err := elements.Build(ctx, db, argv[0])
		if e := db.Close(); e != nil && err == nil {
			err = e
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "supersets\t%d\nsets\t%d\nintervals\t%d\n",
			stats.Supersets, stats.Sets, stats.Intervals)
		return nil
	})
	return cmd
}

func newCmdAnnotate() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "annotate",
		Short:    "Annotate a sample's read depth over the stored intervals",
		ArgsName: "bampath",
	}
	dbPath := cmd.Flags.String("db", "excov.db", "Element store path")
	bamIndex := cmd.Flags.String("index", "", "BAM index path. Defaults to bampath + .bai")
	sample := cmd.Flags.String("sample", "", "Sample identifier (required)")
	group := cmd.Flags.String("group", annotate.DefaultOpts.GroupID, "Group identifier tying related samples together")
	cutoff := cmd.Flags.Int("cutoff", annotate.DefaultOpts.Cutoff, "Minimum depth for a base to count as complete")
	extension := cmd.Flags.Int("extension", 0, "Bases to extend every interval on both sides, e.g. 2 for splice sites")
	threshold := cmd.Flags.Int("threshold", annotate.DefaultOpts.Threshold, "Upper bound on the combined span of one depth-source read")
	prepend := cmd.Flags.String("prepend", "", "String prepended to contig names when querying the BAM, e.g. 'chr'")
	contigs := cmd.Flags.String("contigs", "", "Comma-separated extra contigs to annotate after 1..22, X, Y")
	parallelism := cmd.Flags.Int("parallelism", 0, "Maximum number of simultaneous contig jobs; 0 = runtime.NumCPU()")
	outPath := cmd.Flags.String("out", "", "Output path; default stdout")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) (err error) {
		if len(argv) != 1 {
			return fmt.Errorf("annotate takes one bampath argument, but got %v", argv)
		}
		if *sample == "" {
			return fmt.Errorf("annotate: -sample is required")
		}
		bamPath := argv[0]
		db, err := store.Open(*dbPath)
		if err != nil {
			return err
		}
		defer func() {
			if e := db.Close(); e != nil {
				log.Error.Printf("annotate: closing store: %v", e)
			}
		}()
		var w io.Writer = env.Stdout
		if *outPath != "" {
			out, err := os.Create(*outPath)
			if err != nil {
				return err
			}
			defer func() {
				if e := out.Close(); e != nil && err == nil {
					err = e
				}
			}()
			w = out
		}
		opts := annotate.Opts{
			SampleID:       *sample,
			GroupID:        *group,
			Cutoff:         *cutoff,
			Extension:      *extension,
			Threshold:      *threshold,
			Prepend:        *prepend,
			Parallelism:    *parallelism,
			CoverageSource: bamPath,
			ElementSource:  *dbPath,
		}
		if *contigs != "" {
			opts.ExtraContigs = strings.Split(*contigs, ",")
		}
		open := func() (depth.Source, error) { return depth.NewBAM(bamPath, *bamIndex) }
		return annotate.Annotate(db, open, w, opts)
	})
	return cmd
}

func newCmdImport() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "import",
		Short:    "Import an annotation stream and extend the rollups",
		ArgsName: "covpath",
	}
	dbPath := cmd.Flags.String("db", "excov.db", "Element store path")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("import takes one covpath argument (use '-' for stdin), but got %v", argv)
		}
		var r io.Reader = env.Stdin
		if argv[0] != "-" {
			in, err := os.Open(argv[0])
			if err != nil {
				return err
			}
			defer func() {
				if e := in.Close(); e != nil {
					log.Error.Printf("import: closing %s: %v", argv[0], e)
				}
			}()
			r = in
		}
		db, err := store.Open(*dbPath)
		if err != nil {
			return err
		}
		meta, err := annotate.Import(db, r)
		if e := db.Close(); e != nil && err == nil {
			err = e
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "imported sample %s (group %s)\n", meta.SampleID, meta.GroupID)
		return nil
	})
	return cmd
}

func newCmdRead() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "read",
		Short:    "Compute coverage for an ad hoc region straight from a BAM",
		ArgsName: "region bampath",
	}
	bamIndex := cmd.Flags.String("index", "", "BAM index path. Defaults to bampath + .bai")
	cutoff := cmd.Flags.Int("cutoff", annotate.DefaultOpts.Cutoff, "Minimum depth for a base to count as complete")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("read takes region and bampath arguments, but got %v", argv)
		}
		contig, start, end, err := parseRegion(argv[0])
		if err != nil {
			return err
		}
		src, err := depth.NewBAM(argv[1], *bamIndex)
		if err != nil {
			return err
		}
		depths, err := src.Read(contig, start, end)
		if e := src.Close(); e != nil && err == nil {
			err = e
		}
		if err != nil {
			return err
		}
		cov, comp := depth.Reduce(depths, *cutoff)
		fmt.Fprintf(env.Stdout, "%s\t%g\t%g\n", argv[0], cov, comp)
		return nil
	})
	return cmd
}

func newCmdPeek() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "peek",
		Short:    "Print stored superset statistics",
		ArgsName: "superset...",
	}
	dbPath := cmd.Flags.String("db", "excov.db", "Element store path")
	sample := cmd.Flags.String("sample", "", "Restrict to one sample; default all samples")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("peek takes at least one superset id")
		}
		db, err := store.Open(*dbPath)
		if err != nil {
			return err
		}
		data, err := db.SupersetData(argv, *sample)
		if e := db.Close(); e != nil && err == nil {
			err = e
		}
		if err != nil {
			return err
		}
		for _, d := range data {
			fmt.Fprintf(env.Stdout, "%s\t%s\t%g\t%g\n", d.ParentID, d.SampleID, d.Coverage, d.Completeness)
		}
		return nil
	})
	return cmd
}

// parseRegion parses "contig:start-end" with 1-based inclusive
// coordinates.
func parseRegion(s string) (contig string, start, end int, err error) {
	colon := strings.LastIndexByte(s, ':')
	if colon < 0 {
		return "", 0, 0, fmt.Errorf("region %q: want contig:start-end", s)
	}
	contig = s[:colon]
	dash := strings.IndexByte(s[colon+1:], '-')
	if contig == "" || dash < 0 {
		return "", 0, 0, fmt.Errorf("region %q: want contig:start-end", s)
	}
	if start, err = strconv.Atoi(s[colon+1 : colon+1+dash]); err != nil {
		return "", 0, 0, fmt.Errorf("region %q: bad start: %v", s, err)
	}
	if end, err = strconv.Atoi(s[colon+dash+2:]); err != nil {
		return "", 0, 0, fmt.Errorf("region %q: bad end: %v", s, err)
	}
	if start < 1 || end < start {
		return "", 0, 0, fmt.Errorf("region %q: empty or inverted", s)
	}
	return contig, start, end, nil
}

func main() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(&cmdline.Command{
		Name:     "excov",
		Short:    "Coverage statistics over a curated exon hierarchy",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdBuild(),
			newCmdAnnotate(),
			newCmdImport(),
			newCmdRead(),
			newCmdPeek(),
		},
	})
}
