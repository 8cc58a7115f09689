package ui

import (
	"fmt"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"uartviewer/config"
	"uartviewer/serial"
)

// PortConfigTab edits the ports section of the configuration file
type PortConfigTab struct {
	configPath  string
	config      *config.Config
	portList    *widget.List
	selectedIdx int
	window      fyne.Window
}

// NewPortConfigTab creates a new port configuration tab
func NewPortConfigTab(window fyne.Window, configPath string) *PortConfigTab {
	return &PortConfigTab{
		configPath:  configPath,
		selectedIdx: -1,
		window:      window,
	}
}

// Build constructs the port configuration UI
func (p *PortConfigTab) Build() *fyne.Container {
	if p.configPath == "" {
		return container.NewCenter(widget.NewLabel("Started without -config: nothing to edit"))
	}

	// Load configuration
	p.loadConfig()

	// Port list
	p.portList = widget.NewList(
		func() int {
			if p.config == nil {
				return 0
			}
			return len(p.config.Ports)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("")
		},
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			if p.config != nil && id < len(p.config.Ports) {
				obj.(*widget.Label).SetText(describePort(p.config.Ports[id]))
			}
		},
	)

	p.portList.OnSelected = func(id widget.ListItemID) {
		p.selectedIdx = id
	}

	// Buttons
	addBtn := widget.NewButton("Add Port", func() {
		p.showAddPortDialog()
	})

	discoverBtn := widget.NewButton("Add Discovered", func() {
		p.addDiscovered()
	})

	editBtn := widget.NewButton("Edit Port", func() {
		if p.config != nil && p.selectedIdx >= 0 && p.selectedIdx < len(p.config.Ports) {
			p.showEditPortDialog(p.selectedIdx)
		} else {
			dialog.ShowInformation("No Selection", "Please select a port to edit", p.window)
		}
	})

	deleteBtn := widget.NewButton("Delete Port", func() {
		if p.config != nil && p.selectedIdx >= 0 && p.selectedIdx < len(p.config.Ports) {
			p.deletePort(p.selectedIdx)
		} else {
			dialog.ShowInformation("No Selection", "Please select a port to delete", p.window)
		}
	})

	saveBtn := widget.NewButton("Save Configuration", func() {
		p.saveConfig()
	})
	saveBtn.Importance = widget.HighImportance

	reloadBtn := widget.NewButton("Reload Configuration", func() {
		p.loadConfig()
	})

	buttons := container.NewVBox(
		addBtn,
		discoverBtn,
		editBtn,
		deleteBtn,
		widget.NewSeparator(),
		saveBtn,
		reloadBtn,
	)

	// Info panel
	infoLabel := widget.NewLabel("Configuration file: " + p.configPath + " (changes apply on restart)")
	infoLabel.Wrapping = fyne.TextWrapWord

	return container.NewBorder(
		container.NewVBox(
			widget.NewLabel("Port Configuration"),
			widget.NewSeparator(),
			infoLabel,
		),
		nil,
		nil,
		buttons,
		container.NewScroll(p.portList),
	)
}

// loadConfig loads the configuration from file
func (p *PortConfigTab) loadConfig() {
	cfg, err := config.Load(p.configPath)
	if err != nil {
		dialog.ShowError(fmt.Errorf("failed to load config: %w", err), p.window)
		return
	}

	p.config = cfg
	if p.portList != nil {
		p.portList.Refresh()
	}
}

// saveConfig validates and saves the configuration to file
func (p *PortConfigTab) saveConfig() {
	if p.config == nil {
		return
	}
	if err := config.Validate(p.config); err != nil {
		dialog.ShowError(err, p.window)
		return
	}
	if err := config.Save(p.config, p.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to write config: %w", err), p.window)
		return
	}

	dialog.ShowInformation("Success", "Configuration saved successfully", p.window)
}

// showAddPortDialog shows a dialog to add a new port
func (p *PortConfigTab) showAddPortDialog() {
	if p.config == nil {
		return
	}
	device := "/dev/ttyUSB0"
	if missing := missingPorts(p.config, p.candidates()); len(missing) > 0 {
		device = missing[0]
	}
	newPort := newPortEntry(device)

	p.showPortEditDialog(&newPort, func() {
		p.config.Ports = append(p.config.Ports, newPort)
		p.portList.Refresh()
	})
}

// showEditPortDialog shows a dialog to edit an existing port
func (p *PortConfigTab) showEditPortDialog(idx int) {
	port := &p.config.Ports[idx]
	p.showPortEditDialog(port, func() {
		p.portList.Refresh()
	})
}

// showPortEditDialog shows the port edit dialog. Changes are applied to port
// only when the form is submitted.
func (p *PortConfigTab) showPortEditDialog(port *config.PortConfig, onSave func()) {
	deviceEntry := widget.NewSelectEntry(p.candidates())
	deviceEntry.SetText(port.Device)

	bauds := make([]string, len(serial.BaudRates))
	for i, b := range serial.BaudRates {
		bauds[i] = strconv.Itoa(b)
	}
	baudSelect := widget.NewSelect(bauds, nil)
	baudSelect.SetSelected(strconv.Itoa(port.BaudRate))

	dataBitsSelect := widget.NewSelect([]string{"5", "6", "7", "8"}, nil)
	dataBitsSelect.SetSelected(strconv.Itoa(port.DataBits))

	paritySelect := widget.NewSelect([]string{"none", "odd", "even", "mark", "space"}, nil)
	paritySelect.SetSelected(port.Parity)

	stopBitsSelect := widget.NewSelect([]string{"1", "2"}, nil)
	stopBitsSelect.SetSelected(strconv.Itoa(port.StopBits))

	backendSelect := widget.NewSelect([]string{serial.BackendBugst, serial.BackendTarm}, nil)
	backendSelect.SetSelected(port.Backend)

	enabledCheck := widget.NewCheck("", nil)
	enabledCheck.SetChecked(port.Enabled)

	autoCheck := widget.NewCheck("", nil)
	autoCheck.SetChecked(port.AutoConnect)

	descEntry := widget.NewEntry()
	descEntry.SetText(port.Description)

	items := []*widget.FormItem{
		{Text: "Device", Widget: deviceEntry},
		{Text: "Baud Rate", Widget: baudSelect},
		{Text: "Data Bits", Widget: dataBitsSelect},
		{Text: "Parity", Widget: paritySelect},
		{Text: "Stop Bits", Widget: stopBitsSelect},
		{Text: "Backend", Widget: backendSelect},
		{Text: "Enabled", Widget: enabledCheck},
		{Text: "Auto-Connect", Widget: autoCheck},
		{Text: "Description", Widget: descEntry},
	}

	dialog.ShowForm("Edit Port Configuration", "Save", "Cancel", items, func(submitted bool) {
		if !submitted {
			return
		}
		if deviceEntry.Text == "" {
			dialog.ShowError(fmt.Errorf("device is required"), p.window)
			return
		}

		port.Device = deviceEntry.Text
		port.BaudRate, _ = strconv.Atoi(baudSelect.Selected)
		port.DataBits, _ = strconv.Atoi(dataBitsSelect.Selected)
		port.Parity = paritySelect.Selected
		port.StopBits, _ = strconv.Atoi(stopBitsSelect.Selected)
		port.Backend = backendSelect.Selected
		port.Enabled = enabledCheck.Checked
		port.AutoConnect = autoCheck.Checked
		port.Description = descEntry.Text

		onSave()
	}, p.window)
}

// addDiscovered appends a disabled entry for every candidate port the file
// does not list yet.
func (p *PortConfigTab) addDiscovered() {
	if p.config == nil {
		return
	}
	missing := missingPorts(p.config, p.candidates())
	if len(missing) == 0 {
		dialog.ShowInformation("Discovery", "No new ports found", p.window)
		return
	}
	for _, device := range missing {
		port := newPortEntry(device)
		port.Enabled = false
		port.AutoConnect = false
		p.config.Ports = append(p.config.Ports, port)
	}
	p.portList.Refresh()
	dialog.ShowInformation("Discovery", fmt.Sprintf("Added %d port(s), enable them before saving", len(missing)), p.window)
}

func (p *PortConfigTab) candidates() []string {
	var prefixes []string
	if p.config != nil {
		prefixes = p.config.Discovery.Prefixes
	}
	names, err := serial.ListCandidatePorts(prefixes)
	if err != nil {
		return nil
	}
	return names
}

func newPortEntry(device string) config.PortConfig {
	return config.PortConfig{
		Device:      device,
		BaudRate:    serial.DefaultBaudRate,
		DataBits:    8,
		StopBits:    1,
		Parity:      "none",
		Backend:     serial.BackendBugst,
		Enabled:     true,
		AutoConnect: true,
	}
}

// missingPorts returns the candidates that have no entry in cfg, in
// candidate order.
func missingPorts(cfg *config.Config, candidates []string) []string {
	known := make(map[string]bool, len(cfg.Ports))
	for _, port := range cfg.Ports {
		known[port.Device] = true
	}
	var missing []string
	for _, name := range candidates {
		if !known[name] {
			missing = append(missing, name)
			known[name] = true
		}
	}
	return missing
}

// describePort renders one list row, for example
// "[ENABLED] /dev/ttyUSB0 @ 115200 8N1 auto-connect (bench)".
func describePort(port config.PortConfig) string {
	var b strings.Builder
	if port.Enabled {
		b.WriteString("[ENABLED] ")
	} else {
		b.WriteString("[DISABLED] ")
	}
	fmt.Fprintf(&b, "%s @ %d %d%s%d", port.Device, port.BaudRate, port.DataBits, parityCode(port.Parity), port.StopBits)
	if port.Backend != "" && port.Backend != serial.BackendBugst {
		b.WriteString(" via " + port.Backend)
	}
	if port.AutoConnect {
		b.WriteString(" auto-connect")
	}
	if port.Description != "" {
		b.WriteString(" (" + port.Description + ")")
	}
	return b.String()
}

func parityCode(parity string) string {
	if parity == "" {
		return "N"
	}
	return strings.ToUpper(parity[:1])
}

// deletePort deletes a port from the configuration
func (p *PortConfigTab) deletePort(idx int) {
	dialog.ShowConfirm("Delete Port", "Are you sure you want to delete this port?", func(confirmed bool) {
		if confirmed {
			p.config.Ports = append(p.config.Ports[:idx], p.config.Ports[idx+1:]...)
			p.selectedIdx = -1
			p.portList.Refresh()
		}
	}, p.window)
}
