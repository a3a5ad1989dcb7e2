package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/larkmarks/internal/config"
	"github.com/kalambet/larkmarks/internal/settings"
)

// bookmarkRecord mirrors the server's bookmark shape for display.
type bookmarkRecord struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CreatedTime string   `json:"createdTime"`
}

func printRecords(records []bookmarkRecord) {
	if len(records) == 0 {
		fmt.Println("No bookmarks found.")
		return
	}
	for _, r := range records {
		fmt.Printf("%s\n  %s\n", colorize(colorBold, r.Title), colorize(colorCyan, r.URL))
		if len(r.Tags) > 0 {
			fmt.Printf("  Tags: %s\n", strings.Join(r.Tags, ", "))
		}
	}
}

// joinTags converts a comma-separated flag value into the hash-separated
// form the table stores.
func joinTags(s string) string {
	if s == "" {
		return ""
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "#")
}

// --- save ---

var saveCmd = &cobra.Command{
	Use:   "save <url>",
	Short: "Save a bookmark to the active Bitable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		tags, _ := cmd.Flags().GetString("tags")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		body := map[string]string{
			"title": title,
			"url":   args[0],
			"tags":  joinTags(tags),
		}
		resp, err := client.post(cmd.Context(), "/bookmarks", body)
		if err != nil {
			return err
		}
		if _, err := decodeEnvelope(resp); err != nil {
			return err
		}

		printSuccess("Saved %s", args[0])
		return nil
	},
}

func init() {
	saveCmd.Flags().String("title", "", "bookmark title")
	saveCmd.Flags().String("tags", "", "comma-separated tags")
	saveCmd.MarkFlagRequired("title")
}

// --- check ---

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Check whether a URL is already bookmarked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/bookmarks/check?url="+url.QueryEscape(args[0]))
		if err != nil {
			return err
		}
		env, err := decodeEnvelope(resp)
		if err != nil {
			return err
		}

		if env.Exists != nil && *env.Exists {
			printSuccess("Already bookmarked: %s", args[0])
		} else {
			fmt.Println("Not bookmarked yet.")
		}
		return nil
	},
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search bookmarks by title, URL or tags",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/bookmarks/search?q="+url.QueryEscape(query))
		if err != nil {
			return err
		}
		env, err := decodeEnvelope(resp)
		if err != nil {
			return err
		}

		var records []bookmarkRecord
		if err := json.Unmarshal(env.Data, &records); err != nil {
			return fmt.Errorf("decoding results: %w", err)
		}
		printRecords(records)
		return nil
	},
}

// --- recommend ---

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Show a sampled selection of saved bookmarks",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/bookmarks/recommended"
		if limit > 0 {
			path = fmt.Sprintf("%s?limit=%d", path, limit)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		env, err := decodeEnvelope(resp)
		if err != nil {
			return err
		}

		var records []bookmarkRecord
		if err := json.Unmarshal(env.Data, &records); err != nil {
			return fmt.Errorf("decoding results: %w", err)
		}
		printRecords(records)
		return nil
	},
}

func init() {
	recommendCmd.Flags().Int("limit", 0, "number of bookmarks (default: server setting)")
}

// --- configs ---

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "Manage saved Bitable connections",
}

var configsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved connections",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/settings/configs")
		if err != nil {
			return err
		}
		env, err := decodeEnvelope(resp)
		if err != nil {
			return err
		}

		var configs []settings.ConfigItem
		if err := json.Unmarshal(env.Data, &configs); err != nil {
			return fmt.Errorf("decoding configs: %w", err)
		}
		if len(configs) == 0 {
			fmt.Println("No connections saved. Add one with: larkmarks configs add")
			return nil
		}
		for _, c := range configs {
			fmt.Printf("%s  %s  (base %s, table %s)\n",
				colorize(colorCyan, c.ID), colorize(colorBold, c.Name), c.BaseID, c.TableID)
		}
		return nil
	},
}

var configsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a Bitable connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		item := settings.ConfigItem{}
		item.Name, _ = cmd.Flags().GetString("name")
		item.AppID, _ = cmd.Flags().GetString("app-id")
		item.AppSecret, _ = cmd.Flags().GetString("app-secret")
		item.BaseID, _ = cmd.Flags().GetString("base-id")
		item.TableID, _ = cmd.Flags().GetString("table-id")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/settings/configs", item)
		if err != nil {
			return err
		}
		env, err := decodeEnvelope(resp)
		if err != nil {
			return err
		}

		var added settings.ConfigItem
		if err := json.Unmarshal(env.Data, &added); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		printSuccess("Added connection %s (%s)", added.Name, added.ID)
		return nil
	},
}

var configsUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Make a connection the active one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.put(cmd.Context(), "/settings/active", map[string]string{"id": args[0]})
		if err != nil {
			return err
		}
		if _, err := decodeEnvelope(resp); err != nil {
			return err
		}

		printSuccess("Active connection is now %s", args[0])
		return nil
	},
}

var configsRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a saved connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/settings/configs/"+args[0])
		if err != nil {
			return err
		}
		if _, err := decodeEnvelope(resp); err != nil {
			return err
		}

		printSuccess("Removed connection %s", args[0])
		return nil
	},
}

func init() {
	configsAddCmd.Flags().String("name", "", "display name for the connection")
	configsAddCmd.Flags().String("app-id", "", "Feishu app id")
	configsAddCmd.Flags().String("app-secret", "", "Feishu app secret")
	configsAddCmd.Flags().String("base-id", "", "Bitable app token")
	configsAddCmd.Flags().String("table-id", "", "Bitable table id")
	configsAddCmd.MarkFlagRequired("name")
	configsAddCmd.MarkFlagRequired("app-id")
	configsAddCmd.MarkFlagRequired("app-secret")
	configsAddCmd.MarkFlagRequired("base-id")
	configsAddCmd.MarkFlagRequired("table-id")

	configsCmd.AddCommand(configsListCmd)
	configsCmd.AddCommand(configsAddCmd)
	configsCmd.AddCommand(configsUseCmd)
	configsCmd.AddCommand(configsRemoveCmd)
}

// --- settings ---

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Export, import or test settings",
}

var settingsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all settings as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/settings/export")
		if err != nil {
			return err
		}
		env, err := decodeEnvelope(resp)
		if err != nil {
			return err
		}

		var pretty json.RawMessage = env.Data
		data, err := json.MarshalIndent(pretty, "", "  ")
		if err != nil {
			return err
		}
		data = append(data, '\n')

		if output == "" {
			os.Stdout.Write(data)
			return nil
		}
		if err := os.WriteFile(output, data, 0o600); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
		printSuccess("Settings exported to %s", output)
		return nil
	},
}

var settingsImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import settings from a JSON export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/settings/import", json.RawMessage(data))
		if err != nil {
			return err
		}
		if _, err := decodeEnvelope(resp); err != nil {
			return err
		}

		printSuccess("Settings imported from %s", args[0])
		return nil
	},
}

var settingsTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Test the active Bitable connection",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/settings/test", nil)
		if err != nil {
			return err
		}
		if _, err := decodeEnvelope(resp); err != nil {
			printError("Connection test failed: %v", err)
			return err
		}

		printSuccess("Connection OK")
		return nil
	},
}

func init() {
	settingsExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	settingsCmd.AddCommand(settingsExportCmd)
	settingsCmd.AddCommand(settingsImportCmd)
	settingsCmd.AddCommand(settingsTestCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update server configuration",
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
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
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
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
