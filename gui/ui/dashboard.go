package ui

import (
	"fmt"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"uartviewer/session"
)

// DashboardTab shows the status of every session
type DashboardTab struct {
	registry        *session.Registry
	summaryLabel    *widget.Label
	portTable       *widget.Table
	refreshInterval time.Duration
	portData        []session.Info

	mu          sync.Mutex
	stopRefresh chan struct{}
}

// NewDashboardTab creates a new dashboard tab
func NewDashboardTab(registry *session.Registry) *DashboardTab {
	return &DashboardTab{
		registry:        registry,
		refreshInterval: 2 * time.Second,
		portData:        make([]session.Info, 0),
	}
}

var dashboardHeaders = []string{"Device", "Baud", "State", "Received", "Sent", "Log", "Last Read", "Error"}

// Build constructs the dashboard UI
func (d *DashboardTab) Build() *fyne.Container {
	d.summaryLabel = widget.NewLabel("Ports: -")
	statusCard := widget.NewCard("Sessions", "", d.summaryLabel)

	// Port status table
	d.portTable = widget.NewTable(
		func() (int, int) {
			return len(d.portData) + 1, len(dashboardHeaders) // +1 for header row
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("")
		},
		func(id widget.TableCellID, cell fyne.CanvasObject) {
			label := cell.(*widget.Label)

			// Header row
			if id.Row == 0 {
				label.SetText(dashboardHeaders[id.Col])
				label.TextStyle = fyne.TextStyle{Bold: true}
				return
			}

			if id.Row-1 >= len(d.portData) {
				return
			}
			info := d.portData[id.Row-1]
			label.TextStyle = fyne.TextStyle{}
			label.Importance = widget.MediumImportance

			switch id.Col {
			case 0:
				label.SetText(info.ID)
			case 1:
				label.SetText(fmt.Sprintf("%d", info.BaudRate))
			case 2:
				// Color code the state
				switch {
				case info.Stalled:
					label.SetText("stalled")
					label.Importance = widget.DangerImportance
				case info.State == session.StateConnected:
					label.SetText(string(info.State))
					label.Importance = widget.SuccessImportance
				default:
					label.SetText(string(info.State))
				}
			case 3:
				label.SetText(formatBytes(portStat(info, true)))
			case 4:
				label.SetText(formatBytes(portStat(info, false)))
			case 5:
				label.SetText(formatBytes(int64(info.LogBytes)))
			case 6:
				if info.Port != nil && !info.Port.LastReadTime.IsZero() {
					label.SetText(info.Port.LastReadTime.Format("15:04:05"))
				} else {
					label.SetText("-")
				}
			case 7:
				label.SetText(info.LastError)
			}
			label.Refresh()
		},
	)

	widths := []float32{160, 80, 100, 90, 90, 90, 90, 260}
	for i, w := range widths {
		d.portTable.SetColumnWidth(i, w)
	}

	portCard := widget.NewCard("Port Status", "", container.NewScroll(d.portTable))

	refreshBtn := widget.NewButton("Refresh Now", d.refresh)

	autoRefreshCheck := widget.NewCheck("Auto-refresh (2s)", func(checked bool) {
		if checked {
			d.startAutoRefresh()
		} else {
			d.Stop()
		}
	})
	autoRefreshCheck.SetChecked(true)

	controls := container.NewHBox(
		refreshBtn,
		autoRefreshCheck,
	)

	return container.NewBorder(
		container.NewVBox(statusCard, controls),
		nil,
		nil,
		nil,
		portCard,
	)
}

// refresh reloads the table. Call it on the fyne goroutine.
func (d *DashboardTab) refresh() {
	d.portData = d.registry.Infos()

	connected, stalled := 0, 0
	for _, info := range d.portData {
		if info.State == session.StateConnected {
			connected++
		}
		if info.Stalled {
			stalled++
		}
	}
	d.summaryLabel.SetText(fmt.Sprintf("Ports: %d, connected: %d, stalled: %d", len(d.portData), connected, stalled))
	d.portTable.Refresh()
}

// startAutoRefresh starts the automatic refresh loop unless it is running
func (d *DashboardTab) startAutoRefresh() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopRefresh != nil {
		return
	}
	stop := make(chan struct{})
	d.stopRefresh = stop

	go func() {
		ticker := time.NewTicker(d.refreshInterval)
		defer ticker.Stop()

		fyne.Do(d.refresh)
		for {
			select {
			case <-ticker.C:
				fyne.Do(d.refresh)
			case <-stop:
				return
			}
		}
	}()
}

// Stop ends the automatic refresh loop
func (d *DashboardTab) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopRefresh != nil {
		close(d.stopRefresh)
		d.stopRefresh = nil
	}
}

func portStat(info session.Info, received bool) int64 {
	if info.Port == nil {
		return 0
	}
	if received {
		return info.Port.BytesReceived
	}
	return info.Port.BytesSent
}

// formatBytes formats a byte count into a readable string
func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
