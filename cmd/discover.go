package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/google/uuid"
	"github.com/itchyny/gojq"
	"github.com/krowlandson/AzureStateManager/internal/message"
	"github.com/krowlandson/AzureStateManager/pkg/arm"
	"github.com/krowlandson/AzureStateManager/pkg/state"
	"github.com/krowlandson/AzureStateManager/version"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var discoverFlags = struct {
	configFile   string
	subscription string
	output       string
	query        string
	noCache      bool
	latest       bool
	opts         state.DiscoveryOptions
}{}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Walk a resource hierarchy from a root identifier and export its state",
	Long: `Discover walks an Azure tenant's resource tree from the given root,
resolving api-versions dynamically and assembling a graph of state records
for every management group, subscription, resource group and resource the
inclusion flags select.`,
	RunE: runDiscover,
}

func init() {
	f := discoverCmd.Flags()
	f.StringVar(&discoverFlags.configFile, "config", "", "YAML file with discovery options (flags override)")
	f.StringVar(&discoverFlags.opts.Root, "root", "", "root resource identifier to discover from")
	f.BoolVar(&discoverFlags.opts.Recurse, "recurse", false, "descend into discovered children")
	f.BoolVar(&discoverFlags.opts.IncludeManagementGroups, "include-management-groups", false, "descend into management group children")
	f.BoolVar(&discoverFlags.opts.IncludeSubscriptions, "include-subscriptions", false, "descend into subscription children")
	f.BoolVar(&discoverFlags.opts.IncludeResourceGroups, "include-resource-groups", false, "descend into resource group children")
	f.BoolVar(&discoverFlags.opts.IncludeResources, "include-resources", false, "descend into resource children")
	f.BoolVar(&discoverFlags.opts.IncludeIAM, "include-iam", false, "fetch role definitions and assignments per scope")
	f.BoolVar(&discoverFlags.opts.IncludePolicy, "include-policy", false, "fetch policy records per scope")
	f.StringSliceVar(&discoverFlags.opts.ExcludePathIDs, "exclude", nil, "identifiers to prune from the traversal")
	f.IntVar(&discoverFlags.opts.ThrottleLimit, "throttle", state.DefaultThrottleLimit, "bulk fan-out (0=direct, 1=serial, n=parallel)")
	f.BoolVar(&discoverFlags.noCache, "no-cache", false, "bypass the state cache for every build")
	f.BoolVar(&discoverFlags.latest, "latest", false, "resolve api-versions on the latest channel instead of stable")
	f.StringVar(&discoverFlags.subscription, "subscription", "", "subscription id anchoring provider discovery (default: first enabled)")
	f.StringVar(&discoverFlags.output, "output", "", "directory to write the result to (default: stdout)")
	f.StringVar(&discoverFlags.query, "query", "", "jq expression applied to the exported node list")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts := discoverFlags.opts

	if discoverFlags.configFile != "" {
		data, err := os.ReadFile(discoverFlags.configFile)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		fileOpts := opts
		if err := yaml.Unmarshal(data, &fileOpts); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		// Flags changed on the command line win over the file.
		applyFlagOverrides(cmd, &fileOpts, opts)
		opts = fileOpts
	}
	if opts.Root == "" {
		return fmt.Errorf("a root identifier is required (--root or config file)")
	}
	if discoverFlags.noCache {
		opts.CacheMode = state.SkipCache
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return fmt.Errorf("failed to get Azure credentials: %w", err)
	}

	transport, err := arm.NewPipelineTransport(cred, version.AbbreviatedVersion(), nil)
	if err != nil {
		return err
	}

	subscription := discoverFlags.subscription
	if subscription == "" {
		subscription, err = arm.DefaultSubscription(ctx, cred)
		if err != nil {
			return err
		}
	}

	release := state.ReleaseStable
	if discoverFlags.latest {
		release = state.ReleaseLatest
	}

	client := state.NewClient(transport, subscription, &state.ClientOptions{
		Release: release,
	})

	runID := uuid.New().String()
	message.Info("Starting discovery run %s from %s", runID, opts.Root)

	nodes, diags, err := state.NewDiscoverer(client, opts).Run(ctx)
	if err != nil {
		return err
	}
	for _, diag := range diags {
		message.Warning("partial result for %s: %s", diag.ID, diag.Message)
	}
	message.Success("Discovered %d nodes (%d warnings)", len(nodes), len(diags))
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	rendered, err := renderNodes(nodes, discoverFlags.query)
	if err != nil {
		return err
	}

	if discoverFlags.output == "" {
		fmt.Println(string(rendered))
		return nil
	}
	path := filepath.Join(discoverFlags.output, fmt.Sprintf("azurestate-%s.json", runID))
	if err := os.MkdirAll(discoverFlags.output, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, rendered, 0o644); err != nil {
		return err
	}
	message.Success("Wrote %s", path)
	return nil
}

// renderNodes marshals the node list, optionally running it through a jq
// expression first.
func renderNodes(nodes []*state.StateNode, query string) ([]byte, error) {
	if query == "" {
		return json.MarshalIndent(nodes, "", "  ")
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid jq query: %w", err)
	}

	// gojq operates on plain decoded values.
	raw, err := json.Marshal(nodes)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}

	var results []any
	iter := parsed.Run(decoded)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := v.(error); ok {
			return nil, fmt.Errorf("jq query failed: %w", err)
		}
		results = append(results, v)
	}
	if len(results) == 1 {
		return json.MarshalIndent(results[0], "", "  ")
	}
	return json.MarshalIndent(results, "", "  ")
}

// applyFlagOverrides re-applies any flag the user set explicitly on top of
// the config file values.
func applyFlagOverrides(cmd *cobra.Command, target *state.DiscoveryOptions, flagValues state.DiscoveryOptions) {
	if cmd.Flags().Changed("root") {
		target.Root = flagValues.Root
	}
	if cmd.Flags().Changed("recurse") {
		target.Recurse = flagValues.Recurse
	}
	if cmd.Flags().Changed("include-management-groups") {
		target.IncludeManagementGroups = flagValues.IncludeManagementGroups
	}
	if cmd.Flags().Changed("include-subscriptions") {
		target.IncludeSubscriptions = flagValues.IncludeSubscriptions
	}
	if cmd.Flags().Changed("include-resource-groups") {
		target.IncludeResourceGroups = flagValues.IncludeResourceGroups
	}
	if cmd.Flags().Changed("include-resources") {
		target.IncludeResources = flagValues.IncludeResources
	}
	if cmd.Flags().Changed("include-iam") {
		target.IncludeIAM = flagValues.IncludeIAM
	}
	if cmd.Flags().Changed("include-policy") {
		target.IncludePolicy = flagValues.IncludePolicy
	}
	if cmd.Flags().Changed("exclude") {
		target.ExcludePathIDs = flagValues.ExcludePathIDs
	}
	if cmd.Flags().Changed("throttle") {
		target.ThrottleLimit = flagValues.ThrottleLimit
	}
}
