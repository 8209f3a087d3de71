package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/agrobot/internal/pipeline"
	"github.com/derickschaefer/agrobot/internal/store"
)

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Load, inspect and clear the local database",
	Long: `Commands for seeding and maintaining the local bbolt database.

Farmers and parcels are JSON arrays. Samples are either an object mapping
parcel ID to an array of dated samples, or JSONL rows carrying parcel_id
(the format 'agrobot parcel history --format jsonl' writes).`,
}

// ─── data load ────────────────────────────────────────────────────────────────

var (
	loadFarmers string
	loadParcels string
	loadSamples string
	loadAppend  bool
)

var dataLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Seed farmers, parcels and samples from files",
	Example: `  agrobot data load --farmers data/farmers.json --parcels data/parcels.json --samples data/parcel_indices.json
  agrobot parcel history P1 --format jsonl | agrobot data load --samples - --append`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loadFarmers == "" && loadParcels == "" && loadSamples == "" {
			return fmt.Errorf("specify at least one of --farmers, --parcels, --samples")
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		st, err := deps.RequireStore()
		if err != nil {
			return err
		}

		var summary []string
		if loadFarmers != "" {
			n, err := loadFarmersFile(st, loadFarmers)
			if err != nil {
				return err
			}
			summary = append(summary, fmt.Sprintf("%d farmers", n))
		}
		if loadParcels != "" {
			n, err := loadParcelsFile(st, loadParcels)
			if err != nil {
				return err
			}
			summary = append(summary, fmt.Sprintf("%d parcels", n))
		}
		if loadSamples != "" {
			grouped, err := pipeline.ReadSampleFile(loadSamples)
			if err != nil {
				return fmt.Errorf("%s: %w", loadSamples, err)
			}
			total := 0
			for id, samples := range grouped {
				if loadAppend {
					err = st.AppendSamples(id, samples)
				} else {
					err = st.PutSamples(id, samples)
				}
				if err != nil {
					return fmt.Errorf("storing samples for %s: %w", id, err)
				}
				total += len(samples)
			}
			summary = append(summary, fmt.Sprintf("%d samples across %d parcels", total, len(grouped)))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "✓ Loaded %s into %s\n", strings.Join(summary, ", "), st.Path())
		return nil
	},
}

func loadFarmersFile(st *store.Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	farmers, err := pipeline.ReadFarmers(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	for _, fm := range farmers {
		if err := st.PutFarmer(fm); err != nil {
			return 0, fmt.Errorf("storing farmer %s: %w", fm.ID, err)
		}
	}
	return len(farmers), nil
}

func loadParcelsFile(st *store.Store, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	parcels, err := pipeline.ReadParcels(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	for _, p := range parcels {
		if err := st.PutParcel(p); err != nil {
			return 0, fmt.Errorf("storing parcel %s: %w", p.ID, err)
		}
	}
	return len(parcels), nil
}

// ─── data stats ───────────────────────────────────────────────────────────────

var dataStatsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show row counts and sizes for each bucket",
	Example: `  agrobot data stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		st, err := deps.RequireStore()
		if err != nil {
			return err
		}

		stats, err := st.Stats()
		if err != nil {
			return fmt.Errorf("reading store stats: %w", err)
		}

		// Sort by bucket name for deterministic output
		sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })

		fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n\n", st.Path())
		printSimpleTable(cmd.OutOrStdout(), []string{"BUCKET", "ROWS", "SIZE"}, func(add func(...string)) {
			for _, s := range stats {
				add(s.Name, fmt.Sprintf("%d", s.Count), humanBytes(s.Bytes))
			}
		})
		return nil
	},
}

// ─── data clear ───────────────────────────────────────────────────────────────

var (
	clearAll    bool
	clearBucket string
)

var dataClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete entries from the local database",
	Long: `Delete entries from one or all buckets.

bbolt does not shrink the database file after clearing; freed pages are
reused by later writes.`,
	Example: `  agrobot data clear --all
  agrobot data clear --bucket outbox`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearAll && clearBucket == "" {
			return fmt.Errorf("specify --all or --bucket <name>\n\nBuckets: %s", strings.Join(store.AllBuckets, ", "))
		}
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()
		st, err := deps.RequireStore()
		if err != nil {
			return err
		}

		if clearAll {
			if err := st.ClearAll(); err != nil {
				return fmt.Errorf("clearing all buckets: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Cleared all buckets")
			return nil
		}
		if err := st.ClearBucket(clearBucket); err != nil {
			return fmt.Errorf("clearing bucket %q: %w", clearBucket, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared bucket %q\n", clearBucket)
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(dataCmd)
	dataCmd.AddCommand(dataLoadCmd)
	dataCmd.AddCommand(dataStatsCmd)
	dataCmd.AddCommand(dataClearCmd)

	lf := dataLoadCmd.Flags()
	lf.StringVar(&loadFarmers, "farmers", "", "farmers JSON array file")
	lf.StringVar(&loadParcels, "parcels", "", "parcels JSON array file")
	lf.StringVar(&loadSamples, "samples", "", "samples file (grouped JSON or JSONL; - for stdin)")
	lf.BoolVar(&loadAppend, "append", false, "append samples instead of replacing each parcel's history")

	dataClearCmd.Flags().BoolVar(&clearAll, "all", false, "clear all buckets")
	dataClearCmd.Flags().StringVar(&clearBucket, "bucket", "", "clear one bucket: "+strings.Join(store.AllBuckets, "|"))
}
