// Package authcmder provides the auth command for storing API keys.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/sway/pkg/cliui"
	"github.com/papercomputeco/sway/pkg/credentials"
)

const authLongDesc string = `Store API keys for the services sway connects to.

Keys are stored in credentials.toml in the .sway/ directory with 0600
permissions. "sway serve" uses them when backend.api_key or
vector_store.api_key are not configured. The service's environment
variable takes precedence over a stored key.

Supported services:
  remote   hosted personalization backend (SWAY_API_KEY)
  qdrant   Qdrant Cloud vector store (QDRANT_API_KEY)

Examples:
  sway auth remote               Prompt for the backend API key
  sway auth --list               List stored credentials
  sway auth --remove qdrant      Remove the stored Qdrant key
  echo $KEY | sway auth remote   Pipe the key from stdin`

const authShortDesc string = "Store API keys for the backend and vector store"

type authCommander struct {
	configDir string
	in        io.Reader
	out       io.Writer
}

func NewAuthCmd() *cobra.Command {
	var listFlag bool
	var removeFlag string

	cmd := &cobra.Command{
		Use:   "auth [service]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			a := &authCommander{
				configDir: configDir,
				in:        cmd.InOrStdin(),
				out:       cmd.OutOrStdout(),
			}

			switch {
			case listFlag:
				return a.runList()
			case removeFlag != "":
				return a.runRemove(removeFlag)
			default:
				if len(args) == 0 {
					return fmt.Errorf("service argument required\n\nSupported services: %s",
						strings.Join(credentials.SupportedServices(), ", "))
				}
				return a.runAuth(args[0])
			}
		},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return credentials.SupportedServices(), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
	}

	cmd.Flags().BoolVar(&listFlag, "list", false, "List stored credentials")
	cmd.Flags().StringVar(&removeFlag, "remove", "", "Remove stored credentials for a service")

	return cmd
}

func (a *authCommander) runAuth(service string) error {
	service = strings.ToLower(strings.TrimSpace(service))

	if !credentials.IsSupportedService(service) {
		return fmt.Errorf("unsupported service: %q\n\nSupported services: %s",
			service, strings.Join(credentials.SupportedServices(), ", "))
	}

	apiKey, err := a.readAPIKey(service)
	if err != nil {
		return err
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	mgr, err := credentials.NewManager(a.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.SetKey(service, apiKey); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "\n  %s Stored %s credentials %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(service),
		cliui.DimStyle.Render("("+mgr.GetTarget()+")"),
	)
	return nil
}

func (a *authCommander) runList() error {
	mgr, err := credentials.NewManager(a.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	services, err := mgr.ListServices()
	if err != nil {
		return err
	}

	if len(services) == 0 {
		fmt.Fprintf(a.out, "\n  %s No stored credentials.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(a.out, "  Use 'sway auth <service>' to store credentials.\n")
		fmt.Fprintf(a.out, "  Supported services: %s\n\n", strings.Join(credentials.SupportedServices(), ", "))
		return nil
	}

	fmt.Fprintf(a.out, "\n  %s\n\n", cliui.HeaderStyle.Render("Stored credentials"))
	for _, s := range services {
		if envVar := credentials.EnvVarForService(s); envVar != "" {
			fmt.Fprintf(a.out, "  %s  %s  %s\n",
				cliui.SuccessMark,
				cliui.NameStyle.Render(s),
				cliui.DimStyle.Render("overridden by "+envVar),
			)
		} else {
			fmt.Fprintf(a.out, "  %s  %s\n", cliui.SuccessMark, cliui.NameStyle.Render(s))
		}
	}
	fmt.Fprintln(a.out)

	return nil
}

func (a *authCommander) runRemove(service string) error {
	service = strings.ToLower(strings.TrimSpace(service))

	mgr, err := credentials.NewManager(a.configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.RemoveKey(service); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "\n  %s Removed %s credentials.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(service))

	return nil
}

// readAPIKey reads the first line of piped input, or prompts with hidden
// input when stdin is a terminal.
func (a *authCommander) readAPIKey(service string) (string, error) {
	if f, ok := a.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(a.out, "Enter API key for %s (%s): ", service, credentials.EnvVarForService(service))

		keyBytes, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(a.out)
		if err != nil {
			return "", fmt.Errorf("reading API key: %w", err)
		}
		return string(keyBytes), nil
	}

	scanner := bufio.NewScanner(a.in)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return "", errors.New("no input received on stdin")
}
