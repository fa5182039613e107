package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/foschi-ia/recordar/internal/api"
	"github.com/foschi-ia/recordar/internal/command"
	"github.com/foschi-ia/recordar/internal/config"
	"github.com/foschi-ia/recordar/internal/notify"
	"github.com/foschi-ia/recordar/internal/reminder"
	"github.com/foschi-ia/recordar/internal/storage"
	"github.com/foschi-ia/recordar/internal/timeparse"
)

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <mensaje>",
	Short: "Send a chat message, reminder commands included",
	Long: `Send a chat message as the assistant's chat box would.

Examples:
  recordar ask "recordame comprar pan en 10 minutos"
  recordar ask "mis recordatorios"
  recordar ask "borrar recordatorios"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runAsk(cmd.Context(), client, cmd.OutOrStdout(), owner, strings.Join(args, " "))
	},
}

func runAsk(ctx context.Context, client *apiClient, w io.Writer, owner, mensaje string) error {
	resp, err := client.post(ctx, "/preguntar", api.PreguntarRequest{Mensaje: mensaje, UsuarioID: owner})
	if err != nil {
		return err
	}
	var reply api.PreguntarResponse
	if err := decodeJSON(resp, &reply); err != nil {
		return err
	}
	fmt.Fprintln(w, reply.Texto)
	return nil
}

// --- remind ---

var remindCmd = &cobra.Command{
	Use:   "remind <texto>",
	Short: "Create a reminder from Spanish free text",
	Long: `Create a reminder. The text must say when.

Examples:
  recordar remind "comprar pan en 10 minutos"
  recordar remind "mañana a las 9 sacar turno"
  recordar remind "el 5 de marzo a las 10 pagar la luz"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runRemind(cmd.Context(), client, owner, strings.Join(args, " "))
	},
}

func runRemind(ctx context.Context, client *apiClient, owner, text string) error {
	resp, err := client.post(ctx, ownerPath("recordatorios", owner), map[string]string{"texto": text})
	if err != nil {
		return err
	}
	var rem storage.Reminder
	if err := decodeJSON(resp, &rem); err != nil {
		return err
	}
	printSuccess("Te voy a recordar %q el %s", rem.Message, rem.DueAt.Format(reminder.DisplayLayout))
	return nil
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runList(cmd.Context(), client, cmd.OutOrStdout(), owner)
	},
}

func runList(ctx context.Context, client *apiClient, w io.Writer, owner string) error {
	resp, err := client.get(ctx, ownerPath("recordatorios", owner))
	if err != nil {
		return err
	}
	var rems []storage.Reminder
	if err := decodeJSON(resp, &rems); err != nil {
		return err
	}
	writeReminders(w, rems)
	return nil
}

// --- clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all pending reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("this deletes every pending reminder of %q; pass --confirm to proceed", owner)
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		n, err := runClear(cmd.Context(), client, owner)
		if err != nil {
			return err
		}
		printSuccess("Deleted %d pending reminders", n)
		return nil
	},
}

func init() {
	clearCmd.Flags().Bool("confirm", false, "confirm deletion")
}

func runClear(ctx context.Context, client *apiClient, owner string) (int, error) {
	resp, err := client.delete(ctx, ownerPath("recordatorios", owner))
	if err != nil {
		return 0, err
	}
	var result map[string]int
	if err := decodeJSON(resp, &result); err != nil {
		return 0, err
	}
	return result["deleted"], nil
}

// --- poll ---

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Fetch fired reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval < time.Second {
			interval = time.Second
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		for {
			ns, err := runPoll(ctx, client, owner)
			if err != nil {
				return err
			}
			writeNotifications(cmd.OutOrStdout(), ns)
			if !watch {
				if len(ns) == 0 {
					fmt.Fprintln(cmd.ErrOrStderr(), "No hay notificaciones.")
				}
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
	},
}

func init() {
	pollCmd.Flags().Bool("watch", false, "keep polling until interrupted")
	pollCmd.Flags().Duration("interval", 5*time.Second, "poll interval with --watch")
}

func runPoll(ctx context.Context, client *apiClient, owner string) ([]notify.Notification, error) {
	resp, err := client.get(ctx, ownerPath("notificaciones", owner))
	if err != nil {
		return nil, err
	}
	var ns []notify.Notification
	if err := decodeJSON(resp, &ns); err != nil {
		return nil, err
	}
	return ns, nil
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear the conversation log",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runHistory(cmd.Context(), client, cmd.OutOrStdout(), owner, limit)
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the conversation log",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return errors.New("pass --confirm to delete the conversation log")
		}
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), ownerPath("historial", owner))
		if err != nil {
			return err
		}
		var result map[string]int
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Deleted %d history entries", result["deleted"])
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "number of most recent entries")
	historyClearCmd.Flags().Bool("confirm", false, "confirm deletion")
	historyCmd.AddCommand(historyClearCmd)
}

func runHistory(ctx context.Context, client *apiClient, w io.Writer, owner string, limit int) error {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	resp, err := client.get(ctx, ownerPath("historial", owner)+"?"+q.Encode())
	if err != nil {
		return err
	}
	var entries []storage.HistoryEntry
	if err := decodeJSON(resp, &entries); err != nil {
		return err
	}
	writeHistory(w, entries)
	return nil
}

// --- parse ---

var parseCmd = &cobra.Command{
	Use:   "parse <texto>",
	Short: "Show how a text would be scheduled, without saving it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		loc, err := cfg.Reminders.Location()
		if err != nil {
			return err
		}
		return runParse(cmd.OutOrStdout(), strings.Join(args, " "), time.Now().In(loc))
	},
}

func runParse(w io.Writer, text string, now time.Time) error {
	cmd := command.Classify(text)
	body := text
	if cmd.Kind == command.KindCreate {
		body = cmd.Body
	}
	m, err := timeparse.Find(body, now)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "comando:  %s\n", cmd.Kind)
	fmt.Fprintf(w, "mensaje:  %s\n", reminder.Message(body[:m.Start]+" "+body[m.End:]))
	fmt.Fprintf(w, "cuándo:   %s\n", m.At.Format(reminder.DisplayLayout))
	fmt.Fprintf(w, "en:       %s\n", m.At.Sub(now).Round(time.Second))
	return nil
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			fmt.Fprintf(os.Stderr, "valid keys: %s\n", strings.Join(config.ValidKeys(), ", "))
			return err
		}
		printSuccess("Set %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
