package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/feedsync/internal/client"
)

// PostOptions holds flags for the post command.
type PostOptions struct {
	*RootOptions
	Server string
	User   string
}

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post <review> <content...>",
		Short: "Post a comment to a review",
		Long: `Post a comment to a review on a running server. Followers of the
thread receive it through the realtime feed, and the review owner gets
a notification unless they wrote it.

Example:
  feedsync post r-dune "the worm scenes hold up" --user budi`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(opts, args[0], strings.Join(args[1:], " "), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "", "server base URL (default from config)")
	cmd.Flags().StringVarP(&opts.User, "user", "u", "", "id of the commenting user (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runPost(opts *PostOptions, reviewID, content string, cmd *cobra.Command) error {
	base := opts.cfg().Remote.URL
	if cmd.Flags().Changed("server") {
		base = opts.Server
	}
	c, err := client.New(base)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid server URL", err)
	}

	row, err := c.CreateComment(cmd.Context(), reviewID, opts.User, content)
	if err != nil {
		var se *client.StatusError
		if errors.As(err, &se) && se.Code < 500 {
			return WrapExitError(ExitFailure, "comment rejected", err)
		}
		return WrapExitError(ExitCommandError, "failed to post comment", err)
	}

	return opts.formatter(cmd).Success(row, func(w io.Writer) {
		fmt.Fprintf(w, "Posted comment %s to %s\n", row.ID, row.ReviewID)
	})
}
