package status

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/emotionice/treexlauncher/internal/common/version"
)

// Actions are invoked by the panel buttons and keys. Each runs on its own
// goroutine so the UI never blocks on process or network work.
type Actions struct {
	Launch  func()
	Stop    func()
	Restart func()
	Update  func()
	// Quit runs before the panel stops
	Quit func()
}

// Info rows of the panel
const (
	RowRuntime = iota
	RowArtifact
	RowVersion
	RowPID
	RowRunID
	infoRows
)

var rowLabels = [infoRows]string{"Runtime:", "Artifact:", "Version:", "PID:", "Run ID:"}

const (
	statusViewHeight = 3
	infoViewHeight   = infoRows + 2
	buttonBarHeight  = 3
)

// Panel is the interactive status surface
type Panel struct {
	*tview.Application

	actions Actions
	running atomic.Bool
	stopped chan struct{} // closed once the event loop has exited
	mu      sync.Mutex    // guards widget access outside the event loop

	status  *tview.TextView
	info    *tview.Table
	buttons *tview.Form
	footer  *tview.TextView
	root    *tview.Flex
	actWG   sync.WaitGroup
}

// NewPanel builds the panel layout
func NewPanel(actions Actions) *Panel {
	p := &Panel{
		Application: tview.NewApplication(),
		actions:     actions,
		stopped:     make(chan struct{}),
		status:      tview.NewTextView().SetTextAlign(tview.AlignCenter),
		info:        tview.NewTable(),
		buttons:     tview.NewForm(),
		footer:      tview.NewTextView().SetDynamicColors(true),
	}

	p.status.SetBorder(true).SetTitle(" Status ")
	p.info.SetBorder(true).SetTitle(" TreeX ")
	for row, label := range rowLabels {
		p.info.SetCell(row, 0, tview.NewTableCell(" "+label).SetTextColor(tcell.ColorSilver))
		p.info.SetCell(row, 1, tview.NewTableCell("-").SetExpansion(1))
	}

	p.buttons.
		AddButton("Launch", p.run(actions.Launch)).
		AddButton("Stop", p.run(actions.Stop)).
		AddButton("Restart", p.run(actions.Restart)).
		AddButton("Update", p.run(actions.Update)).
		AddButton("Quit", p.quit).
		SetButtonsAlign(tview.AlignCenter)

	p.footer.SetText(fmt.Sprintf(" [::b]l[::-] launch  [::b]s[::-] stop  [::b]r[::-] restart  [::b]u[::-] update  [::b]q[::-] quit   [gray]%s", version.Version))

	p.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(p.status, statusViewHeight, 0, false).
		AddItem(p.info, infoViewHeight, 0, false).
		AddItem(p.buttons, buttonBarHeight, 0, true).
		AddItem(tview.NewBox(), 0, 1, false).
		AddItem(p.footer, 1, 0, false)

	p.SetInputCapture(p.inputCapture)
	p.setStatus(StateReady, "")
	return p
}

// Run shows the panel and blocks until it is stopped
func (p *Panel) Run() error {
	p.running.Store(true)
	err := p.SetRoot(p.root, true).EnableMouse(true).Run()
	// actions still in flight update widgets directly from here on
	p.running.Store(false)
	close(p.stopped)
	p.actWG.Wait()
	return err
}

// Show implements Surface
func (p *Panel) Show(state State, detail string) {
	p.update(func() { p.setStatus(state, detail) })
}

// SetInfo sets the value of an info row
func (p *Panel) SetInfo(row int, value string) {
	if row < 0 || row >= infoRows {
		return
	}
	if value == "" {
		value = "-"
	}
	p.update(func() { p.info.GetCell(row, 1).SetText(value) })
}

// StatusText returns the current status line
func (p *Panel) StatusText() string {
	return p.status.GetText(true)
}

// InfoText returns the value of an info row
func (p *Panel) InfoText(row int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.info.GetCell(row, 1).Text
}

// update applies fn on the UI goroutine while the panel runs, directly
// otherwise. An update queued just as the loop exits is applied directly.
func (p *Panel) update(fn func()) {
	if p.running.Load() {
		queued := make(chan struct{})
		go func() {
			p.QueueUpdateDraw(fn)
			close(queued)
		}()
		select {
		case <-queued:
			return
		case <-p.stopped:
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

func (p *Panel) setStatus(state State, detail string) {
	text := state.Label()
	if detail != "" {
		text += "\n" + detail
	}
	p.status.SetTextColor(state.Color()).SetText(text)
}

// run wraps an action so it executes off the UI goroutine
func (p *Panel) run(action func()) func() {
	return func() {
		if action == nil {
			return
		}
		p.actWG.Add(1)
		go func() {
			defer p.actWG.Done()
			action()
		}()
	}
}

func (p *Panel) quit() {
	go func() {
		if p.actions.Quit != nil {
			p.actions.Quit()
		}
		p.Stop()
	}()
}

func (p *Panel) inputCapture(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyCtrlC:
		p.quit()
		return nil
	case tcell.KeyRune:
	default:
		return event
	}

	switch event.Rune() {
	case 'l':
		p.run(p.actions.Launch)()
	case 's':
		p.run(p.actions.Stop)()
	case 'r':
		p.run(p.actions.Restart)()
	case 'u':
		p.run(p.actions.Update)()
	case 'q':
		p.quit()
	default:
		return event
	}
	return nil
}
