package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/platform"
	"github.com/roach88/feedsync/internal/wire"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	Database string
}

// SeedResult lists the records the seed command ensured exist.
type SeedResult struct {
	Profiles []wire.Profile `json:"profiles"`
	Reviews  []wire.Review  `json:"reviews"`
}

// demoProfiles and demoReviews are the fixtures written by seed.
var (
	demoProfiles = []wire.Profile{
		{ID: "ayu", Name: "Ayu"},
		{ID: "budi", Name: "Budi"},
		{ID: "citra", Name: "Citra"},
	}
	demoReviews = []wire.Review{
		{ID: "r-dune", Slug: "dune", UserID: "ayu", Title: "Dune"},
		{ID: "r-solaris", Slug: "solaris", UserID: "budi", Title: "Solaris"},
	}
)

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write demo profiles and reviews",
		Long: `Write a small set of demo profiles and reviews so threads can be
followed and posted to. Running seed again leaves existing rows alone.

Example:
  feedsync seed --db ./feedsync.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")

	return cmd
}

func runSeed(opts *SeedOptions, cmd *cobra.Command) error {
	dbPath := opts.cfg().Database.Path
	if cmd.Flags().Changed("db") {
		dbPath = opts.Database
	}

	store, err := platform.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	for _, p := range demoProfiles {
		if err := store.UpsertProfile(ctx, p); err != nil {
			return WrapExitError(ExitFailure, "failed to seed profiles", err)
		}
	}
	result := SeedResult{Profiles: demoProfiles}
	for _, r := range demoReviews {
		created, err := store.CreateReview(ctx, r)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to seed reviews", err)
		}
		result.Reviews = append(result.Reviews, created)
	}

	return opts.formatter(cmd).Success(result, func(w io.Writer) {
		fmt.Fprintf(w, "Seeded %d profiles and %d reviews into %s\n", len(result.Profiles), len(result.Reviews), dbPath)
		for _, r := range result.Reviews {
			fmt.Fprintf(w, "  review %s (%s) owned by %s\n", r.ID, r.Slug, r.UserID)
		}
	})
}
