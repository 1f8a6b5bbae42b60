package tui

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// barWidth is the widest bar drawn for the best candidate of a generation;
// the rest scale against it.
const barWidth = 50

// maxBars caps how many candidates one generation renders.
const maxBars = 16

// BarUI renders each generation as a horizontal bar chart of instruction
// counts using tview/tcell.
type BarUI struct {
	app        *tview.Application
	headerText *tview.TextView
	chartText  *tview.TextView
	layout     *tview.Flex

	mu          sync.Mutex
	generation  int
	started     bool
	onInterrupt func()
}

// NewBarUI creates a bar-chart UI. Call Start before feeding it updates.
func NewBarUI() *BarUI {
	return &BarUI{}
}

// SetInterruptHandler sets a callback invoked when Ctrl+C is pressed.
func (ui *BarUI) SetInterruptHandler(handler func()) {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	ui.onInterrupt = handler
}

// Start initializes the terminal UI and runs it in the background.
func (ui *BarUI) Start() error {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.started {
		return nil
	}

	ui.app = tview.NewApplication()

	ui.headerText = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	ui.headerText.SetBorder(true).SetTitle(" b7 ").SetTitleAlign(tview.AlignLeft)
	ui.headerText.SetText("[yellow]Waiting for first generation...[white]")

	ui.chartText = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			ui.app.Draw()
		})
	ui.chartText.SetBorder(true).SetTitle(" Instruction Counts ").SetTitleAlign(tview.AlignLeft)

	ui.layout = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(ui.headerText, 3, 0, false).
		AddItem(ui.chartText, 0, 1, false)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			ui.mu.Lock()
			handler := ui.onInterrupt
			ui.mu.Unlock()
			if handler != nil {
				handler()
			}
			ui.app.Stop()
			return nil
		}
		return event
	})

	ui.started = true
	go func() {
		// Stop errors only matter interactively; the run itself proceeds.
		_ = ui.app.SetRoot(ui.layout, true).Run()
	}()
	return nil
}

// Update renders the generation's candidates as scaled bars.
func (ui *BarUI) Update(results []Result, best int64) {
	ui.mu.Lock()
	if !ui.started {
		ui.mu.Unlock()
		return
	}
	ui.generation++
	generation := ui.generation
	app := ui.app
	ui.mu.Unlock()

	sorted := make([]Result, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Count > sorted[j].Count })
	if len(sorted) > maxBars {
		sorted = sorted[:maxBars]
	}

	var top int64 = 1
	if len(sorted) > 0 && sorted[0].Count > 0 {
		top = sorted[0].Count
	}

	var sb strings.Builder
	for i, r := range sorted {
		width := int(r.Count * barWidth / top)
		if width < 1 && r.Count > 0 {
			width = 1
		}
		color := "[blue]"
		if i == 0 {
			color = "[green]"
		}
		fmt.Fprintf(&sb, "%-14q %s%s[white] %d\n",
			r.Label, color, strings.Repeat("█", width), r.Count)
	}

	header := fmt.Sprintf("Generation [green]%d[white]  candidates %d  best [green]%d[white]",
		generation, len(results), best)

	// Queue outside the lock: the draw loop may be dispatching the input
	// capture, which takes the same lock.
	app.QueueUpdateDraw(func() {
		ui.headerText.SetText(header)
		ui.chartText.SetText(sb.String())
	})
}

// Done marks the header finished.
func (ui *BarUI) Done() {
	ui.mu.Lock()
	if !ui.started {
		ui.mu.Unlock()
		return
	}
	app := ui.app
	ui.mu.Unlock()

	app.QueueUpdateDraw(func() {
		ui.headerText.SetText("[green]Search finished[white] (press Ctrl+C to exit)")
	})
}

// Close stops the terminal application.
func (ui *BarUI) Close() {
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if !ui.started {
		return
	}
	ui.started = false
	ui.app.Stop()
}
