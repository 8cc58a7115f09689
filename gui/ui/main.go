package ui

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"uartviewer/config"
	"uartviewer/format"
	"uartviewer/serial"
	"uartviewer/session"
)

// MainUI represents the main user interface. It is a session.Sink: drained
// text is routed to the tab of its port.
type MainUI struct {
	window     fyne.Window
	cfg        *config.Config
	configPath string
	registry   *session.Registry
	clock      *format.Clock

	portTabs   *container.DocTabs
	tabs       map[string]*PortTab
	items      map[*container.TabItem]string
	dashboard  *DashboardTab
	portConfig *PortConfigTab
	status     *widget.Label
	detached   atomic.Bool
}

// NewMainUI creates a new main UI
func NewMainUI(window fyne.Window, cfg *config.Config, configPath string, registry *session.Registry, clock *format.Clock) *MainUI {
	ui := &MainUI{
		window:     window,
		cfg:        cfg,
		configPath: configPath,
		registry:   registry,
		clock:      clock,
		tabs:       make(map[string]*PortTab),
		items:      make(map[*container.TabItem]string),
	}

	ui.dashboard = NewDashboardTab(registry)
	ui.portConfig = NewPortConfigTab(window, configPath)

	return ui
}

// Build constructs the UI layout
func (m *MainUI) Build() *fyne.Container {
	m.portTabs = container.NewDocTabs()
	m.portTabs.OnClosed = func(item *container.TabItem) {
		if id, ok := m.items[item]; ok {
			delete(m.items, item)
			delete(m.tabs, id)
			m.registry.Remove(id)
			m.setStatus("Closed " + id)
		}
	}
	for _, sess := range m.registry.Sessions() {
		m.addTab(sess)
	}

	tabs := container.NewAppTabs(
		container.NewTabItem("Ports", m.portTabs),
		container.NewTabItem("Dashboard", m.dashboard.Build()),
		container.NewTabItem("Port Configuration", m.portConfig.Build()),
	)

	return container.NewBorder(
		m.buildHeader(),
		m.buildFooter(),
		nil,
		nil,
		tabs,
	)
}

// Append implements session.Sink
func (m *MainUI) Append(id, text string) {
	if m.detached.Load() {
		return
	}
	fyne.Do(func() {
		if tab, ok := m.tabs[id]; ok {
			tab.Append(text)
		}
	})
}

// OnStall refreshes the tab of a port whose reader stopped
func (m *MainUI) OnStall(id string, err error) {
	if m.detached.Load() {
		return
	}
	fyne.Do(func() {
		if tab, ok := m.tabs[id]; ok {
			tab.refreshState()
		}
		m.setStatus(fmt.Sprintf("%s: reader stopped: %v", id, err))
	})
}

// Detach stops routing session events to the widgets. Call it before the
// window goes away.
func (m *MainUI) Detach() {
	m.detached.Store(true)
	m.dashboard.Stop()
}

func (m *MainUI) addTab(sess *session.Session) {
	tab := NewPortTab(sess, m.window, m.cfg.Search.ResumeOnReopen)
	item := container.NewTabItem(sess.ID(), tab.Build())
	m.tabs[sess.ID()] = tab
	m.items[item] = sess.ID()
	m.portTabs.Append(item)
	m.portTabs.Select(item)
}

// buildHeader creates the header section: new tab and timestamp settings
func (m *MainUI) buildHeader() *fyne.Container {
	title := widget.NewLabelWithStyle("UART Viewer",
		fyne.TextAlignLeading,
		fyne.TextStyle{Bold: true})

	newBtn := widget.NewButton("New Port", m.showNewPortDialog)
	newBtn.Importance = widget.HighImportance

	stampCheck := widget.NewCheck("Timestamps", func(checked bool) {
		m.clock.SetEnabled(checked)
	})
	stampCheck.SetChecked(m.clock.Enabled())

	zoneEntry := widget.NewEntry()
	zoneEntry.SetText(m.clock.Timezone())
	zoneEntry.OnSubmitted = func(name string) {
		if name == "Local" {
			name = ""
		}
		if err := m.clock.SetTimezone(name); err != nil {
			dialog.ShowError(err, m.window)
		}
		zoneEntry.SetText(m.clock.Timezone())
		m.setStatus("Timezone " + m.clock.Timezone())
	}

	return container.NewVBox(
		container.NewBorder(nil, nil,
			container.NewHBox(title, newBtn),
			container.NewHBox(stampCheck, widget.NewLabel("Timezone"), container.NewGridWrap(fyne.NewSize(200, zoneEntry.MinSize().Height), zoneEntry)),
		),
		widget.NewSeparator(),
	)
}

// buildFooter creates the footer section
func (m *MainUI) buildFooter() *fyne.Container {
	m.status = widget.NewLabel("Status: Ready")

	return container.NewVBox(
		widget.NewSeparator(),
		m.status,
	)
}

func (m *MainUI) setStatus(text string) {
	if m.status != nil {
		m.status.SetText("Status: " + text)
	}
}

// showNewPortDialog offers the candidate ports and opens a tab for the choice
func (m *MainUI) showNewPortDialog() {
	candidates, err := serial.ListCandidatePorts(m.cfg.Discovery.Prefixes)
	if err != nil {
		m.setStatus("Port discovery failed: " + err.Error())
	}

	deviceEntry := widget.NewSelectEntry(candidates)
	if len(candidates) > 0 {
		deviceEntry.SetText(candidates[0])
	}

	bauds := make([]string, len(serial.BaudRates))
	for i, b := range serial.BaudRates {
		bauds[i] = strconv.Itoa(b)
	}
	baudSelect := widget.NewSelect(bauds, nil)
	baudSelect.SetSelected(strconv.Itoa(serial.DefaultBaudRate))

	connectCheck := widget.NewCheck("", nil)
	connectCheck.SetChecked(true)

	items := []*widget.FormItem{
		{Text: "Device", Widget: deviceEntry},
		{Text: "Baud Rate", Widget: baudSelect},
		{Text: "Connect", Widget: connectCheck},
	}

	dialog.ShowForm("Open Port", "Open", "Cancel", items, func(submitted bool) {
		if !submitted {
			return
		}
		baud, _ := strconv.Atoi(baudSelect.Selected)
		sess, err := m.registry.Add(deviceEntry.Text, baud)
		if err != nil {
			dialog.ShowError(err, m.window)
			return
		}
		m.addTab(sess)
		if connectCheck.Checked {
			if err := sess.Connect(0); err != nil {
				dialog.ShowError(err, m.window)
			}
			m.tabs[sess.ID()].refreshState()
		}
		m.setStatus("Opened " + sess.ID())
	}, m.window)
}
