// Attune CLI - command-line client for the Attune daemon.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/attune-hq/attune/internal/core"
)

var (
	host string
	port int

	version = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "attune",
		Short: "Attune - local behavioral intelligence",
		Long: `Attune watches your calendar and email metadata and tells you
when someone is waiting on you, when a relationship is going
quiet, and when a recurring meeting has lapsed.

This CLI talks to a running attuned daemon.`,
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", "localhost", "daemon host")
	rootCmd.PersistentFlags().IntVar(&port, "port", 8737, "daemon port")

	rootCmd.AddCommand(suggestionsCmd())
	rootCmd.AddCommand(contactsCmd())
	rootCmd.AddCommand(emailsCmd())
	rootCmd.AddCommand(autonomyCmd())
	rootCmd.AddCommand(observeCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(wipeCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// suggestionsCmd handles the suggestion queue
func suggestionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "suggestions",
		Aliases: []string{"sug"},
		Short:   "Work the suggestion queue",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List pending suggestions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Suggestions []core.Suggestion `json:"suggestions"`
			}
			if err := newClient().get("/api/v1/suggestions", &resp); err != nil {
				return err
			}
			suggestions := resp.Suggestions

			if len(suggestions) == 0 {
				fmt.Println("✨ Nothing pending. You're caught up.")
				return nil
			}

			fmt.Printf("💡 %d pending suggestion(s)\n\n", len(suggestions))
			for _, s := range suggestions {
				fmt.Printf("   [%d] %s (%.0f%%)\n", s.ID, s.Title, s.Confidence*100)
				if s.Description != "" {
					fmt.Printf("       %s\n", s.Description)
				}
			}
			fmt.Println()
			fmt.Println("Use 'attune suggestions accept <id>' or 'dismiss <id>'.")
			return nil
		},
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Run detection now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result struct {
				Inserted int      `json:"inserted"`
				Warnings []string `json:"warnings"`
			}
			if err := newClient().post("/api/v1/suggestions/generate", nil, &result); err != nil {
				return err
			}
			fmt.Printf("💡 Generated %d new suggestion(s)\n", result.Inserted)
			for _, w := range result.Warnings {
				fmt.Printf("   ⚠️  %s\n", w)
			}
			return nil
		},
	}

	acceptCmd := &cobra.Command{
		Use:   "accept [id]",
		Short: "Accept a suggestion",
		Args:  cobra.ExactArgs(1),
		RunE:  resolveSuggestion("accept", "✅ Accepted: %s\n"),
	}

	dismissCmd := &cobra.Command{
		Use:   "dismiss [id]",
		Short: "Dismiss a suggestion",
		Args:  cobra.ExactArgs(1),
		RunE:  resolveSuggestion("dismiss", "🚫 Dismissed: %s\n"),
	}

	cmd.AddCommand(listCmd, generateCmd, acceptCmd, dismissCmd)
	return cmd
}

func resolveSuggestion(action, format string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid suggestion id %q", args[0])
		}
		var s core.Suggestion
		if err := newClient().post(fmt.Sprintf("/api/v1/suggestions/%d/%s", id, action), nil, &s); err != nil {
			return err
		}
		fmt.Printf(format, s.Title)
		return nil
	}
}

// contactsCmd lists contacts or shows one contact's activity
func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts [email]",
		Short: "Show who you talk to",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showContact(args[0])
			}

			limit, _ := cmd.Flags().GetInt("limit")
			var resp struct {
				Contacts []core.Contact `json:"contacts"`
			}
			if err := newClient().get(fmt.Sprintf("/api/v1/contacts?limit=%d", limit), &resp); err != nil {
				return err
			}
			contacts := resp.Contacts

			if len(contacts) == 0 {
				fmt.Println("👥 No contacts observed yet.")
				return nil
			}

			fmt.Printf("👥 Top %d contact(s)\n\n", len(contacts))
			for _, c := range contacts {
				name := c.Name
				if name == "" {
					name = c.Email
				}
				fmt.Printf("   %-30s %4d interactions  last %s\n",
					name, c.InteractionCount, c.LastSeen.Format("2006-01-02"))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "max contacts to list")
	return cmd
}

func showContact(email string) error {
	var insight core.ContactInsight
	path := "/api/v1/contacts/" + strings.ToLower(strings.TrimSpace(email))
	if err := newClient().get(path, &insight); err != nil {
		return err
	}

	name := insight.Name
	if name == "" {
		name = insight.Email
	}
	fmt.Printf("👤 %s <%s>\n\n", name, insight.Email)
	fmt.Printf("   Interactions: %d\n", insight.InteractionCount)
	fmt.Printf("   First seen:   %s\n", insight.FirstSeen.Format("2006-01-02"))
	fmt.Printf("   Last seen:    %s\n", insight.LastSeen.Format("2006-01-02"))
	if insight.AvgReplyMins != nil {
		fmt.Printf("   Avg reply:    %.0f min\n", *insight.AvgReplyMins)
	}
	if insight.UnansweredCount > 0 {
		fmt.Printf("   Unanswered:   %d\n", insight.UnansweredCount)
	}
	fmt.Println()
	fmt.Printf("   Emails (7d):    %d\n", insight.RecentEmails)
	fmt.Printf("   Meetings (7d):  %d\n", insight.RecentMeetings)
	return nil
}

// emailsCmd surfaces inbound email waiting on a reply
func emailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emails",
		Short: "Email observations",
	}

	unansweredCmd := &cobra.Command{
		Use:   "unanswered",
		Short: "List inbound emails you haven't replied to",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Emails []core.UnansweredEmail `json:"emails"`
			}
			if err := newClient().get("/api/v1/emails/unanswered", &resp); err != nil {
				return err
			}
			emails := resp.Emails

			if len(emails) == 0 {
				fmt.Println("📭 Inbox handled. Nothing waiting on you.")
				return nil
			}

			fmt.Printf("📬 %d email(s) waiting on a reply\n\n", len(emails))
			for _, e := range emails {
				who := e.ContactName
				if who == "" {
					who = e.FromEmail
				}
				fmt.Printf("   %s  %-25s %s\n", e.Timestamp.Format("01-02"), who, e.Subject)
			}
			return nil
		},
	}

	cmd.AddCommand(unansweredCmd)
	return cmd
}

// autonomyCmd manages per-activity autonomy levels
func autonomyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autonomy",
		Short: "Manage autonomy levels",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show autonomy levels per activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Settings []core.AutonomySetting `json:"settings"`
			}
			if err := newClient().get("/api/v1/autonomy", &resp); err != nil {
				return err
			}
			settings := resp.Settings

			fmt.Println("🎚️  Autonomy levels")
			fmt.Println()
			for _, s := range settings {
				marker := " "
				if s.Eligible() {
					marker = "↑"
				}
				fmt.Printf("   %s %-14s %-8s accepted %d, dismissed %d\n",
					marker, s.ActivityType, s.Level, s.TotalAccepted, s.TotalDismissed)
			}
			fmt.Println()
			fmt.Println("   ↑ eligible for promotion ('attune autonomy promote <activity>')")
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set [activity] [level]",
		Short: "Set the autonomy level for an activity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"level": args[1]}
			var setting core.AutonomySetting
			if err := newClient().put("/api/v1/autonomy/"+args[0], body, &setting); err != nil {
				return err
			}
			fmt.Printf("🎚️  %s → %s\n", setting.ActivityType, setting.Level)
			return nil
		},
	}

	promoteCmd := &cobra.Command{
		Use:   "promote [activity]",
		Short: "Promote an eligible activity to the next level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var setting core.AutonomySetting
			if err := newClient().post("/api/v1/autonomy/"+args[0]+"/promote", nil, &setting); err != nil {
				return err
			}
			fmt.Printf("⬆️  %s promoted to %s\n", setting.ActivityType, setting.Level)
			return nil
		},
	}

	cmd.AddCommand(listCmd, setCmd, promoteCmd)
	return cmd
}

// observeCmd triggers an observation pass immediately
func observeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "observe [calendar|email]",
		Short: "Run an observation pass now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			if source != "calendar" && source != "email" {
				return fmt.Errorf("unknown source %q (want calendar or email)", source)
			}
			var result struct {
				Observed int `json:"observed"`
			}
			if err := newClient().post("/api/v1/observe/"+source, nil, &result); err != nil {
				return err
			}
			fmt.Printf("👁️  Observed %d %s item(s)\n", result.Observed, source)
			return nil
		},
	}
	return cmd
}

// statsCmd shows a summary of observed activity
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show activity stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			var stats core.ActivityStats
			if err := newClient().get("/api/v1/stats", &stats); err != nil {
				return err
			}

			fmt.Println("📊 Attune Status")
			fmt.Println()
			fmt.Printf("   Contacts tracked:    %d\n", stats.ContactsTracked)
			fmt.Printf("   Emails (24h):        %d\n", stats.EmailsObserved24h)
			fmt.Printf("   Meetings (7d):       %d\n", stats.CalendarEvents7d)
			fmt.Printf("   Pending suggestions: %d\n", stats.PendingSuggestions)
			if stats.LastObservation != nil {
				fmt.Printf("   Last observation:    %s\n", stats.LastObservation.Format("2006-01-02 15:04:05"))
			} else {
				fmt.Printf("   Last observation:    never\n")
			}
			if len(stats.TopContacts) > 0 {
				fmt.Println()
				fmt.Println("   Top contacts:")
				for _, c := range stats.TopContacts {
					name := c.Name
					if name == "" {
						name = c.Email
					}
					fmt.Printf("     • %s (%d)\n", name, c.InteractionCount)
				}
			}
			return nil
		},
	}
}

// wipeCmd clears all observed data
func wipeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete all observed data",
		Long: `Deletes every observation, contact, and suggestion from the local
database. Autonomy levels are kept; their counters reset to zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return fmt.Errorf("refusing to wipe without --yes")
			}
			if err := newClient().delete("/api/v1/data"); err != nil {
				return err
			}
			fmt.Println("🧹 All observed data deleted.")
			return nil
		},
	}
	cmd.Flags().Bool("yes", false, "confirm deletion")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("attune %s\n", version)
		},
	}
}
