package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"uartviewer/persist"
	"uartviewer/search"
	"uartviewer/serial"
	"uartviewer/session"
)

// PortTab is the view of one session: connection controls, the log, a send
// line and a find bar
type PortTab struct {
	session *session.Session
	window  fyne.Window
	resume  bool

	logGrid     *widget.TextGrid
	logScroll   *container.Scroll
	highlight   *span
	baudSelect  *widget.Select
	connectBtn  *widget.Button
	sendEntry   *widget.Entry
	findBar     *fyne.Container
	findEntry   *widget.Entry
	matchCase   *widget.Check
	statusLabel *widget.Label
}

// NewPortTab creates a tab for sess. resume keeps the find position when the
// find bar is reopened.
func NewPortTab(sess *session.Session, window fyne.Window, resume bool) *PortTab {
	return &PortTab{
		session: sess,
		window:  window,
		resume:  resume,
	}
}

// Build constructs the tab UI
func (p *PortTab) Build() fyne.CanvasObject {
	bauds := make([]string, len(serial.BaudRates))
	for i, b := range serial.BaudRates {
		bauds[i] = strconv.Itoa(b)
	}
	p.baudSelect = widget.NewSelect(bauds, nil)
	p.baudSelect.SetSelected(strconv.Itoa(p.session.Baud()))

	p.connectBtn = widget.NewButton("Connect", p.toggleConnection)

	findBtn := widget.NewButton("Find", p.toggleFind)
	saveBtn := widget.NewButton("Save Log", p.saveLog)

	// Log view, read-only
	p.logGrid = widget.NewTextGrid()
	p.logGrid.Rows = []widget.TextGridRow{{}}
	p.appendGrid(p.session.Text())
	p.logScroll = container.NewScroll(p.logGrid)

	// Send line
	p.sendEntry = widget.NewEntry()
	p.sendEntry.SetPlaceHolder("Type a line and press Enter to send")
	p.sendEntry.OnSubmitted = func(string) { p.send() }
	sendBtn := widget.NewButton("Send", p.send)
	clearBtn := widget.NewButton("Clear", func() { p.sendEntry.SetText("") })

	// Find bar, hidden until requested
	p.findEntry = widget.NewEntry()
	p.findEntry.SetPlaceHolder("Find")
	p.findEntry.OnSubmitted = func(string) { p.find(search.Forward) }
	p.matchCase = widget.NewCheck("Match case", nil)
	upBtn := widget.NewButton("Up", func() { p.find(search.Backward) })
	downBtn := widget.NewButton("Down", func() { p.find(search.Forward) })
	p.findBar = container.NewBorder(nil, nil, nil,
		container.NewHBox(p.matchCase, upBtn, downBtn),
		p.findEntry,
	)
	p.findBar.Hide()

	p.statusLabel = widget.NewLabel("")
	p.refreshState()

	controls := container.NewHBox(
		widget.NewLabel("Baud"),
		p.baudSelect,
		p.connectBtn,
		widget.NewSeparator(),
		findBtn,
		saveBtn,
		p.statusLabel,
	)

	bottom := container.NewVBox(
		p.findBar,
		container.NewBorder(nil, nil, nil, container.NewHBox(sendBtn, clearBtn), p.sendEntry),
	)

	return container.NewBorder(controls, bottom, nil, nil, p.logScroll)
}

// Append adds drained text to the log view and scrolls to the end. Call it
// on the fyne goroutine.
func (p *PortTab) Append(text string) {
	if text == "" {
		return
	}
	p.appendGrid(text)
	p.logGrid.Refresh()
	p.logScroll.ScrollToBottom()
}

// appendGrid extends the last row with text, starting a new row at every
// newline. Only the appended text is scanned. Every rune takes one cell, a
// tab shows as a blank, so rune columns from position map onto cells.
func (p *PortTab) appendGrid(text string) {
	last := &p.logGrid.Rows[len(p.logGrid.Rows)-1]
	for _, r := range text {
		switch r {
		case '\n':
			p.logGrid.Rows = append(p.logGrid.Rows, widget.TextGridRow{})
			last = &p.logGrid.Rows[len(p.logGrid.Rows)-1]
			continue
		case '\t':
			r = ' '
		}
		last.Cells = append(last.Cells, widget.TextGridCell{Rune: r})
	}
}

func (p *PortTab) toggleConnection() {
	if p.session.Connected() {
		p.session.Disconnect()
		p.refreshState()
		return
	}

	baud, err := strconv.Atoi(p.baudSelect.Selected)
	if err != nil {
		dialog.ShowError(fmt.Errorf("select a baud rate"), p.window)
		return
	}
	if err := p.session.Connect(baud); err != nil {
		dialog.ShowError(err, p.window)
	}
	p.refreshState()
}

// refreshState updates the controls from the session state
func (p *PortTab) refreshState() {
	switch {
	case p.session.Connected() && p.session.Stalled():
		p.connectBtn.SetText("Disconnect")
		p.baudSelect.Disable()
		p.statusLabel.SetText("Reader stopped: " + errText(p.session.LastError()))
		p.statusLabel.Importance = widget.DangerImportance
	case p.session.Connected():
		p.connectBtn.SetText("Disconnect")
		p.baudSelect.Disable()
		p.statusLabel.SetText(fmt.Sprintf("Connected @ %d", p.session.Baud()))
		p.statusLabel.Importance = widget.SuccessImportance
	default:
		p.connectBtn.SetText("Connect")
		p.baudSelect.Enable()
		p.statusLabel.SetText("Disconnected")
		p.statusLabel.Importance = widget.MediumImportance
	}
	p.statusLabel.Refresh()
}

func (p *PortTab) send() {
	if err := p.session.Send(p.sendEntry.Text); err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			p.statusLabel.SetText("Not connected")
			return
		}
		dialog.ShowError(err, p.window)
		p.refreshState()
		return
	}
	p.sendEntry.SetText("")
}

func (p *PortTab) toggleFind() {
	if p.findBar.Visible() {
		p.findBar.Hide()
		return
	}
	p.session.ReopenFind(p.resume)
	p.findBar.Show()
	p.window.Canvas().Focus(p.findEntry)
}

func (p *PortTab) find(dir search.Direction) {
	match, err := p.session.Find(p.findEntry.Text, p.matchCase.Checked, dir)
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		return
	case errors.Is(err, search.ErrNotFound):
		p.statusLabel.SetText(fmt.Sprintf("%q not found", p.findEntry.Text))
		return
	case err != nil:
		dialog.ShowError(err, p.window)
		return
	}

	text := p.session.Text()
	sp := matchSpan(text, match)
	p.selectSpan(sp)
	p.statusLabel.SetText(fmt.Sprintf("Match on line %d", sp.startRow+1))
}

// span is an inclusive range of grid cells
type span struct {
	startRow, startCol int
	endRow, endCol     int
}

// matchSpan converts a byte range of text into grid cells. The end cell is
// the last rune of the match.
func matchSpan(text string, m search.Match) span {
	var sp span
	sp.startRow, sp.startCol = position(text, m.Start)
	_, size := utf8.DecodeLastRuneInString(text[:m.End])
	sp.endRow, sp.endCol = position(text, m.End-size)
	return sp
}

// selectSpan highlights sp, clears the previous highlight and scrolls the
// match row into view.
func (p *PortTab) selectSpan(sp span) {
	if prev := p.highlight; prev != nil {
		p.styleSpan(*prev, nil)
	}
	p.styleSpan(sp, &widget.CustomTextGridStyle{
		FGColor: theme.Color(theme.ColorNameForegroundOnPrimary),
		BGColor: theme.Color(theme.ColorNamePrimary),
	})
	p.highlight = &sp
	p.logGrid.Refresh()

	cell := fyne.MeasureText("M", theme.TextSize(), fyne.TextStyle{Monospace: true})
	y := float32(sp.startRow)*cell.Height - p.logScroll.Size().Height/2
	if y < 0 {
		y = 0
	}
	p.logScroll.Offset = fyne.NewPos(p.logScroll.Offset.X, y)
	p.logScroll.Refresh()
}

func (p *PortTab) styleSpan(sp span, style widget.TextGridStyle) {
	rows := p.logGrid.Rows
	for row := sp.startRow; row <= sp.endRow && row < len(rows); row++ {
		cells := rows[row].Cells
		from, to := 0, len(cells)-1
		if row == sp.startRow {
			from = sp.startCol
		}
		if row == sp.endRow && sp.endCol < to {
			to = sp.endCol
		}
		for col := from; col <= to; col++ {
			cells[col].Style = style
		}
	}
}

// position converts a byte offset into a row and rune column
func position(text string, offset int) (int, int) {
	if offset > len(text) {
		offset = len(text)
	}
	before := text[:offset]
	row := strings.Count(before, "\n")
	lineStart := strings.LastIndexByte(before, '\n') + 1
	return row, utf8.RuneCountInString(before[lineStart:])
}

func (p *PortTab) saveLog() {
	save := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, p.window)
			return
		}
		if writer == nil {
			return
		}
		path := writer.URI().Path()
		writer.Close()

		if err := p.session.SaveLog(path); err != nil {
			dialog.ShowError(err, p.window)
			return
		}
		p.statusLabel.SetText("Saved " + path)
	}, p.window)
	save.SetFileName(persist.DefaultLogName(p.session.ID()))
	save.Show()
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
