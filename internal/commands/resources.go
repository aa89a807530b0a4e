package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gaborage/azrepos/repos"
)

func newRepoCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repo",
		Short: "Repository commands",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show repository metadata",
		Args:  cobra.NoArgs,
		RunE: runWith(opts, func(ctx context.Context, c *repos.Client, out io.Writer, _ []string) error {
			repo, err := c.GetRepository(ctx)
			if err != nil {
				return err
			}
			return writeJSON(out, repo)
		}),
	})
	return cmd
}

// CreateOptions holds flags for pr create
type CreateOptions struct {
	Source      string
	Target      string
	Title       string
	Description string
	Draft       bool
}

func newPullRequestCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pr",
		Aliases: []string{"pullrequest"},
		Short:   "Pull request commands",
	}

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List pull requests",
		Args:  cobra.NoArgs,
		RunE: runWith(opts, func(ctx context.Context, c *repos.Client, out io.Writer, _ []string) error {
			prs, err := c.ListPullRequests(ctx, repos.PullRequestStatus(status))
			if err != nil {
				return err
			}
			return writeJSON(out, prs)
		}),
	}
	list.Flags().StringVarP(&status, "status", "s", "", "Filter by status: active, abandoned, completed or all")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show a pull request",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(opts, func(ctx context.Context, c *repos.Client, out io.Writer, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			pr, err := c.GetPullRequest(ctx, id)
			if err != nil {
				return err
			}
			return writeJSON(out, pr)
		}),
	}

	in := &CreateOptions{}
	create := &cobra.Command{
		Use:   "create",
		Short: "Open a pull request",
		Example: `  azrepos pr create --source feature/login --target main --title "Add login"
  azrepos pr create -s refs/heads/fix -t refs/heads/main --title "Fix" --draft`,
		Args: cobra.NoArgs,
		RunE: runWith(opts, func(ctx context.Context, c *repos.Client, out io.Writer, _ []string) error {
			pr, err := c.CreatePullRequest(ctx, repos.CreatePullRequestInput{
				SourceRefName: branchRef(in.Source),
				TargetRefName: branchRef(in.Target),
				Title:         in.Title,
				Description:   in.Description,
				IsDraft:       in.Draft,
			})
			if err != nil {
				return err
			}
			return writeJSON(out, pr)
		}),
	}
	create.Flags().StringVarP(&in.Source, "source", "s", "", "Source branch")
	create.Flags().StringVarP(&in.Target, "target", "t", "", "Target branch")
	create.Flags().StringVar(&in.Title, "title", "", "Title")
	create.Flags().StringVarP(&in.Description, "description", "d", "", "Description")
	create.Flags().BoolVar(&in.Draft, "draft", false, "Create as draft")
	_ = create.MarkFlagRequired("source")
	_ = create.MarkFlagRequired("target")
	_ = create.MarkFlagRequired("title")

	var publish bool
	draft := &cobra.Command{
		Use:   "draft ID",
		Short: "Mark a pull request as draft, or publish it with --publish",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(opts, func(ctx context.Context, c *repos.Client, out io.Writer, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			pr, err := c.SetDraft(ctx, id, !publish)
			if err != nil {
				return err
			}
			return writeJSON(out, pr)
		}),
	}
	draft.Flags().BoolVar(&publish, "publish", false, "Publish instead of converting to draft")

	details := &cobra.Command{
		Use:   "details ID",
		Short: "Show a pull request with its labels and threads",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(opts, func(ctx context.Context, c *repos.Client, out io.Writer, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			d, err := c.PullRequestDetails(ctx, id)
			if err != nil {
				return err
			}
			return writeJSON(out, d)
		}),
	}

	cmd.AddCommand(list, get, create, draft, details)
	return cmd
}

func newLabelCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "label",
		Short: "Pull request label commands",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list ID",
			Short: "List labels of a pull request",
			Args:  cobra.ExactArgs(1),
			RunE: runWith(opts, func(ctx context.Context, c *repos.Client, out io.Writer, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				labels, err := c.ListLabels(ctx, id)
				if err != nil {
					return err
				}
				return writeJSON(out, labels)
			}),
		},
		&cobra.Command{
			Use:   "add ID NAME",
			Short: "Attach a label",
			Args:  cobra.ExactArgs(2),
			RunE: runWith(opts, func(ctx context.Context, c *repos.Client, out io.Writer, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				label, err := c.AddLabel(ctx, id, args[1])
				if err != nil {
					return err
				}
				return writeJSON(out, label)
			}),
		},
		&cobra.Command{
			Use:   "remove ID NAME",
			Short: "Detach a label",
			Args:  cobra.ExactArgs(2),
			RunE: runWith(opts, func(ctx context.Context, c *repos.Client, out io.Writer, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				if err := c.RemoveLabel(ctx, id, args[1]); err != nil {
					return err
				}
				_, err = fmt.Fprintf(out, "removed label %q from pull request %d\n", args[1], id)
				return err
			}),
		},
	)
	return cmd
}

func newCommentCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comment",
		Short: "Pull request comment commands",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list ID",
			Short: "List comment threads",
			Args:  cobra.ExactArgs(1),
			RunE: runWith(opts, func(ctx context.Context, c *repos.Client, out io.Writer, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				threads, err := c.ListThreads(ctx, id)
				if err != nil {
					return err
				}
				return writeJSON(out, threads)
			}),
		},
		&cobra.Command{
			Use:   "add ID TEXT",
			Short: "Start a new comment thread",
			Args:  cobra.ExactArgs(2),
			RunE: runWith(opts, func(ctx context.Context, c *repos.Client, out io.Writer, args []string) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				thread, err := c.AddComment(ctx, id, args[1])
				if err != nil {
					return err
				}
				return writeJSON(out, thread)
			}),
		},
	)
	return cmd
}

func newFileCommand(opts *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file",
		Short: "Repository file commands",
	}
	var version string
	get := &cobra.Command{
		Use:   "get PATH",
		Short: "Print the content of a file",
		Args:  cobra.ExactArgs(1),
		RunE: runWith(opts, func(ctx context.Context, c *repos.Client, out io.Writer, args []string) error {
			text, err := c.GetFileContent(ctx, args[0], version)
			if err != nil {
				return err
			}
			_, err = io.WriteString(out, text)
			return err
		}),
	}
	get.Flags().StringVar(&version, "version", "", "Branch name; defaults to the default branch")
	cmd.AddCommand(get)
	return cmd
}

// branchRef expands a short branch name to refs/heads/<name>.
func branchRef(name string) string {
	if name == "" || strings.HasPrefix(name, "refs/") {
		return name
	}
	return "refs/heads/" + name
}
