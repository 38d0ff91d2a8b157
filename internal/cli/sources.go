package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	sourcemodels "explorer/internal/source/models"
	"explorer/pkg/domain"
)

func sourcesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sources",
		Aliases: []string{"source"},
		Short:   "Manage the citation registry",
	}
	cmd.AddCommand(sourcesListCmd(e))
	cmd.AddCommand(sourcesRegisterCmd(e))
	cmd.AddCommand(sourcesReverifyCmd(e))
	cmd.AddCommand(sourcesDeleteCmd(e))
	cmd.AddCommand(sourcesHistoryCmd(e))
	return cmd
}

func sourcesListCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter sourcemodels.ListFilter
			filter.IncludeRetired, _ = cmd.Flags().GetBool("all")
			if c, _ := cmd.Flags().GetString("category"); c != "" {
				category, err := domain.ParseSourceCategory(c)
				if err != nil {
					return err
				}
				filter.Category = &category
			}
			if t, _ := cmd.Flags().GetString("tier"); t != "" {
				tr, err := domain.ParseTrustTier(t)
				if err != nil {
					return err
				}
				filter.Tier = &tr
			}

			s, err := e.open(cmd)
			if err != nil {
				return err
			}
			sources, err := s.Sources.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := newTable(cmd.OutOrStdout())
			row(w, "ID", "NAME", "CATEGORY", "TIER", "LAST VERIFIED", "VERSION")
			for _, src := range sources {
				verified := faint.Sprint("never")
				if src.LastVerified != nil {
					verified = domain.FormatDate(*src.LastVerified)
				}
				name := src.Name
				if src.IsRetired() {
					name += faint.Sprint(" (retired)")
				}
				row(w, src.ID.String(), name, string(src.Category), tier(src.TrustTier), verified, strconv.Itoa(src.Version))
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("category", "", "only sources in this category")
	cmd.Flags().String("tier", "", "only sources in this trust tier")
	cmd.Flags().Bool("all", false, "include retired sources")
	return cmd
}

func sourcesRegisterCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register [name]",
		Short: "Register a new source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			c, _ := flags.GetString("category")
			category, err := domain.ParseSourceCategory(c)
			if err != nil {
				return err
			}
			t, _ := flags.GetString("tier")
			tr, err := domain.ParseTrustTier(t)
			if err != nil {
				return err
			}
			src := sourcemodels.Source{Name: args[0], Category: category, TrustTier: tr}
			src.URL, _ = flags.GetString("url")
			src.Derived, _ = flags.GetBool("derived")
			src.VerificationNotes, _ = flags.GetString("notes")
			src.KnownLimitations, _ = flags.GetString("limitations")

			s, err := e.open(cmd)
			if err != nil {
				return err
			}
			created, err := s.Sources.Register(cmd.Context(), src)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Registered source #%s: %s (%s)", created.ID, created.Name, tier(created.TrustTier))
			return nil
		},
	}
	cmd.Flags().String("category", "", "government, ngo, academic, media or legal")
	cmd.Flags().String("tier", "", "high, medium, low or contested")
	cmd.Flags().String("url", "", "where the source is published")
	cmd.Flags().Bool("derived", false, "figures computed in-house; no url needed")
	cmd.Flags().String("notes", "", "verification notes")
	cmd.Flags().String("limitations", "", "known limitations")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("tier")
	return cmd
}

func sourcesReverifyCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reverify [source-id]",
		Short: "Record a fresh verification of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseSourceID(args[0])
			if err != nil {
				return err
			}
			rv := sourcemodels.Reverification{Date: time.Now().UTC().Truncate(24 * time.Hour)}
			if d, _ := cmd.Flags().GetString("date"); d != "" {
				if rv.Date, err = domain.ParseDate("date", d); err != nil {
					return err
				}
			}
			rv.Notes, _ = cmd.Flags().GetString("notes")
			if a, _ := cmd.Flags().GetString("archive-url"); a != "" {
				rv.ArchiveURL = &a
			}

			s, err := e.open(cmd)
			if err != nil {
				return err
			}
			src, err := s.Sources.MarkReverified(cmd.Context(), id, rv)
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Source #%s verified on %s (version %d)", src.ID, domain.FormatDate(*src.LastVerified), src.Version)
			return nil
		},
	}
	cmd.Flags().String("date", "", "verification date, YYYY-MM-DD (default today)")
	cmd.Flags().String("notes", "", "what was checked")
	cmd.Flags().String("archive-url", "", "archived copy of the source")
	return cmd
}

func sourcesDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [source-id]",
		Short: "Retire a source no record cites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseSourceID(args[0])
			if err != nil {
				return err
			}
			s, err := e.open(cmd)
			if err != nil {
				return err
			}
			if err := s.Sources.Delete(cmd.Context(), id); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Source #%s retired", id)
			return nil
		},
	}
}

func sourcesHistoryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "history [source-id]",
		Short: "Show every stored version of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := domain.ParseSourceID(args[0])
			if err != nil {
				return err
			}
			s, err := e.open(cmd)
			if err != nil {
				return err
			}
			versions, err := s.Sources.History(cmd.Context(), id)
			if err != nil {
				return err
			}
			w := newTable(cmd.OutOrStdout())
			row(w, "VERSION", "REASON", "CHANGED AT", "TIER", "NOTES")
			for _, v := range versions {
				row(w, strconv.Itoa(v.Version), v.Reason, v.ChangedAt.UTC().Format(time.RFC3339),
					tier(v.Snapshot.TrustTier), strings.TrimSpace(v.Snapshot.VerificationNotes))
			}
			return w.Flush()
		},
	}
}
