package commands

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittonet/internal/cli/output"
	"github.com/marmos91/dittonet/pkg/config"
	"github.com/marmos91/dittonet/pkg/controlplane/runtime"
	"github.com/marmos91/dittonet/pkg/store/slots"
)

var hostsOutput string

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "List host and disk slots",
	Long: `List the saved host and disk slot assignments.

Slots come from the slot store; when nothing has been saved yet the
configured defaults are shown. The store is locked while the device runs,
so stop it first.

Examples:
  dittonet hosts
  dittonet hosts -o json`,
	RunE: runHosts,
}

func init() {
	hostsCmd.Flags().StringVarP(&hostsOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// slotView is the serialized form of the slot table.
type slotView struct {
	Hosts []hostView `json:"hosts" yaml:"hosts"`
	Disks []diskView `json:"disks" yaml:"disks"`
}

type hostView struct {
	Slot int    `json:"slot" yaml:"slot"`
	URL  string `json:"url" yaml:"url"`
}

type diskView struct {
	Slot int    `json:"slot" yaml:"slot"`
	Host int    `json:"host,omitempty" yaml:"host,omitempty"`
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`
}

func runHosts(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(hostsOutput)
	if err != nil {
		return err
	}

	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return err
	}

	st, err := loadSlots(cmd, cfg)
	if err != nil {
		return err
	}
	view := newSlotView(st)

	if format != output.FormatTable {
		return output.Print(cmd.OutOrStdout(), format, view)
	}

	w := cmd.OutOrStdout()
	hosts := output.NewTable("SLOT", "HOST")
	for _, h := range view.Hosts {
		hosts.AddRow(strconv.Itoa(h.Slot), h.URL)
	}
	if err := output.PrintTable(w, hosts); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w)

	disks := output.NewTable("DRIVE", "HOST", "PATH", "MODE")
	for _, d := range view.Disks {
		host := ""
		if d.Host > 0 {
			host = strconv.Itoa(d.Host)
		}
		disks.AddRow(fmt.Sprintf("D%d:", d.Slot), host, d.Path, d.Mode)
	}
	return output.PrintTable(w, disks)
}

func loadSlots(cmd *cobra.Command, cfg *config.Config) (*slots.State, error) {
	defaults := runtime.DefaultSlots(cfg)
	if cfg.Store.InMemory {
		return defaults, nil
	}

	store, err := slots.Open(cfg.Store.Path, false)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	st, err := store.Load(cmd.Context())
	if errors.Is(err, slots.ErrEmpty) {
		return defaults, nil
	}
	return st, err
}

func newSlotView(st *slots.State) slotView {
	var v slotView
	for i, h := range st.Hosts {
		v.Hosts = append(v.Hosts, hostView{Slot: i + 1, URL: h})
	}
	for i, d := range st.Disks {
		dv := diskView{Slot: i + 1}
		if !d.Empty() {
			dv.Host = int(d.Host) + 1
			dv.Path = d.Path
			dv.Mode = d.Mode.String()
		}
		v.Disks = append(v.Disks, dv)
	}
	return v
}
