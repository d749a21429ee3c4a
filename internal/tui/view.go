// Package tui is the terminal front end over an editor.Manager.
//
// The screen has three regions: a tab bar on the first row listing open
// buffers, the text of the active buffer, and a status line on the last
// row. All drawing and key handling happens on the goroutine that calls
// Run; manager notifications only wake the event loop.
package tui

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/uniseg"

	"github.com/canakyuz-co/fridayx/internal/backend"
	"github.com/canakyuz-co/fridayx/internal/editor"
)

const (
	// maxSearchMatches bounds one search of the active buffer.
	maxSearchMatches = 1000
	searchTimeout    = 5 * time.Second
)

var (
	styleText    = tcell.StyleDefault
	styleTab     = tcell.StyleDefault.Reverse(true)
	styleActive  = tcell.StyleDefault.Bold(true)
	styleStatus  = tcell.StyleDefault.Reverse(true)
	styleError   = tcell.StyleDefault.Foreground(tcell.ColorRed).Reverse(true)
	styleMissing = tcell.StyleDefault.Dim(true)
)

// wake is posted to the event loop when buffer state changes.
type wake struct{}

// stop is posted to the event loop when the run context ends.
type stop struct{}

// View draws buffers and turns keys into manager operations.
type View struct {
	screen tcell.Screen
	ed     *editor.Manager

	cursors map[string]int
	tops    map[string]int
	message string

	// searching is set while the search prompt takes the keys.
	searching bool
	query     string
}

// New creates a view. The screen must already be initialized.
func New(screen tcell.Screen, ed *editor.Manager) *View {
	return &View{
		screen:  screen,
		ed:      ed,
		cursors: make(map[string]int),
		tops:    make(map[string]int),
	}
}

// Run processes events until the user quits, the screen is finalized, or
// ctx ends.
func (v *View) Run(ctx context.Context) error {
	v.ed.OnChange(func(string) {
		_ = v.screen.PostEvent(tcell.NewEventInterrupt(wake{}))
	})
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = v.screen.PostEvent(tcell.NewEventInterrupt(stop{}))
		case <-done:
		}
	}()

	v.Draw()
	for {
		switch ev := v.screen.PollEvent().(type) {
		case nil:
			return nil
		case *tcell.EventResize:
			v.screen.Sync()
		case *tcell.EventKey:
			if v.HandleKey(ev) {
				return nil
			}
		case *tcell.EventInterrupt:
			if _, ok := ev.Data().(stop); ok {
				return ctx.Err()
			}
		}
		v.Draw()
	}
}

// Message returns the last status message.
func (v *View) Message() string {
	return v.message
}

// Cursor returns the cursor offset in the active buffer.
func (v *View) Cursor() int {
	b, ok := v.active()
	if !ok {
		return 0
	}
	return v.cursor(b)
}

// HandleKey applies one key press. It reports whether the user asked to quit.
func (v *View) HandleKey(ev *tcell.EventKey) bool {
	if v.searching {
		v.handlePromptKey(ev)
		return false
	}

	switch ev.Key() {
	case tcell.KeyCtrlQ:
		return true
	case tcell.KeyCtrlS:
		v.save()
	case tcell.KeyCtrlR:
		v.reload()
	case tcell.KeyCtrlF:
		if _, ok := v.active(); ok {
			v.searching = true
		}
	case tcell.KeyCtrlW:
		v.closeActive()
	case tcell.KeyCtrlN:
		v.cycle(1)
	case tcell.KeyCtrlP:
		v.cycle(-1)
	case tcell.KeyRune:
		v.insert(string(ev.Rune()))
	case tcell.KeyEnter:
		v.insert("\n")
	case tcell.KeyTab:
		v.insert("\t")
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		v.deleteBackward()
	case tcell.KeyDelete:
		v.deleteForward()
	case tcell.KeyLeft:
		v.move(prevBoundary)
	case tcell.KeyRight:
		v.move(nextBoundary)
	case tcell.KeyUp:
		v.moveLines(-1)
	case tcell.KeyDown:
		v.moveLines(1)
	case tcell.KeyPgUp:
		v.moveLines(-v.textRows())
	case tcell.KeyPgDn:
		v.moveLines(v.textRows())
	case tcell.KeyHome:
		v.move(func(text string, pos int) int {
			start, _ := lineBounds(text, pos)
			return start
		})
	case tcell.KeyEnd:
		v.move(func(text string, pos int) int {
			_, end := lineBounds(text, pos)
			return end
		})
	}
	return false
}

func (v *View) active() (editor.Buffer, bool) {
	p := v.ed.ActivePath()
	if p == "" {
		return editor.Buffer{}, false
	}
	return v.ed.Buffer(p)
}

func (v *View) cursor(b editor.Buffer) int {
	return snap(b.Content, v.cursors[b.Path])
}

func (v *View) editable(b editor.Buffer) bool {
	if b.Loading {
		v.message = "still loading " + b.Path
		return false
	}
	return true
}

func (v *View) insert(s string) {
	b, ok := v.active()
	if !ok || !v.editable(b) {
		return
	}
	pos := v.cursor(b)
	v.ed.UpdateContent(b.Path, b.Content[:pos]+s+b.Content[pos:])
	v.cursors[b.Path] = pos + len(s)
}

func (v *View) deleteBackward() {
	b, ok := v.active()
	if !ok || !v.editable(b) {
		return
	}
	pos := v.cursor(b)
	from := prevBoundary(b.Content, pos)
	if from == pos {
		return
	}
	v.ed.UpdateContent(b.Path, b.Content[:from]+b.Content[pos:])
	v.cursors[b.Path] = from
}

func (v *View) deleteForward() {
	b, ok := v.active()
	if !ok || !v.editable(b) {
		return
	}
	pos := v.cursor(b)
	to := nextBoundary(b.Content, pos)
	if to == pos {
		return
	}
	v.ed.UpdateContent(b.Path, b.Content[:pos]+b.Content[to:])
}

func (v *View) move(step func(text string, pos int) int) {
	b, ok := v.active()
	if !ok {
		return
	}
	v.cursors[b.Path] = step(b.Content, v.cursor(b))
}

func (v *View) moveLines(n int) {
	b, ok := v.active()
	if !ok || n == 0 {
		return
	}
	text := b.Content
	pos := v.cursor(b)
	start, _ := lineBounds(text, pos)
	col := displayWidth(text[start:pos])

	for ; n < 0; n++ {
		if start == 0 {
			pos, col = 0, 0
			break
		}
		start, _ = lineBounds(text, start-1)
		pos = start
	}
	for ; n > 0; n-- {
		_, end := lineBounds(text, start)
		next := strings.IndexByte(text[end:], '\n')
		if next < 0 {
			pos = len(text)
			start, _ = lineBounds(text, pos)
			col = displayWidth(text[start:pos])
			break
		}
		start = end + next + 1
		pos = start
	}

	start, end := lineBounds(text, pos)
	v.cursors[b.Path] = offsetAtColumn(text, start, end, col)
}

func (v *View) save() {
	b, ok := v.active()
	if !ok {
		return
	}
	switch {
	case b.Truncated:
		v.message = b.Path + " is truncated and read-only"
	case !v.ed.SaveFile(b.Path):
		v.message = "cannot save " + b.Path + " now"
	default:
		v.message = "saving " + b.Path
	}
}

func (v *View) reload() {
	b, ok := v.active()
	if !ok {
		return
	}
	if v.ed.ReloadFile(b.Path) {
		v.message = "reloading " + b.Path
	} else {
		v.message = "cannot reload " + b.Path + " now"
	}
}

// handlePromptKey edits the search query. Enter searches, Esc cancels.
func (v *View) handlePromptKey(ev *tcell.EventKey) {
	switch ev.Key() {
	case tcell.KeyEscape:
		v.searching = false
	case tcell.KeyEnter:
		v.searching = false
		v.search()
	case tcell.KeyRune:
		v.query += string(ev.Rune())
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		v.query = v.query[:prevBoundary(v.query, len(v.query))]
	}
}

// search moves the cursor to the first match after it, wrapping around to
// the first match of the buffer.
func (v *View) search() {
	b, ok := v.active()
	if !ok || strings.TrimSpace(v.query) == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()
	matches, err := v.ed.Search(ctx, b.Path, v.query, backend.SearchOptions{}, maxSearchMatches)
	if err != nil {
		v.message = err.Error()
		return
	}
	if len(matches) == 0 {
		v.message = "no match for " + v.query
		return
	}

	pos := v.cursor(b)
	idx := 0
	for i, match := range matches {
		if lineColumnOffset(b.Content, match.Line, match.Column) > pos {
			idx = i
			break
		}
	}
	match := matches[idx]
	v.cursors[b.Path] = lineColumnOffset(b.Content, match.Line, match.Column)
	v.message = fmt.Sprintf("match %d of %d", idx+1, len(matches))
}

func (v *View) closeActive() {
	p := v.ed.ActivePath()
	if p == "" {
		return
	}
	v.ed.CloseFile(p)
	delete(v.cursors, p)
	delete(v.tops, p)
	v.message = "closed " + p
}

func (v *View) cycle(step int) {
	paths := v.ed.OpenPaths()
	if len(paths) < 2 {
		return
	}
	current := v.ed.ActivePath()
	idx := 0
	for i, p := range paths {
		if p == current {
			idx = i
			break
		}
	}
	idx = (idx + step + len(paths)) % len(paths)
	if err := v.ed.SetActivePath(paths[idx]); err != nil {
		v.message = err.Error()
	}
}

func (v *View) textRows() int {
	_, h := v.screen.Size()
	if h < 3 {
		return 1
	}
	return h - 2
}

// Draw renders the full screen.
func (v *View) Draw() {
	v.screen.Clear()
	w, h := v.screen.Size()
	if w <= 0 || h <= 0 {
		return
	}

	v.drawTabs(w)
	b, ok := v.active()
	if ok {
		v.drawText(b, w, h)
	} else {
		v.screen.HideCursor()
		drawString(v.screen, 0, 1, w, "no file open", styleMissing)
	}
	v.drawStatus(b, ok, w, h)
	v.screen.Show()
}

func (v *View) drawTabs(w int) {
	fill(v.screen, 0, w, styleTab)
	active := v.ed.ActivePath()
	x := 0
	for _, p := range v.ed.OpenPaths() {
		label := " " + path.Base(p)
		if b, ok := v.ed.Buffer(p); ok && b.Dirty {
			label += "*"
		}
		label += " "
		style := styleTab
		if p == active {
			style = styleActive
		}
		x = drawString(v.screen, x, 0, w, label, style)
		if x >= w {
			return
		}
	}
}

func (v *View) drawText(b editor.Buffer, w, h int) {
	rows := h - 2
	if rows <= 0 {
		return
	}
	pos := v.cursor(b)
	line := lineIndex(b.Content, pos)

	top := v.tops[b.Path]
	if line < top {
		top = line
	}
	if line >= top+rows {
		top = line - rows + 1
	}
	v.tops[b.Path] = top

	lines := strings.Split(b.Content, "\n")
	for row := 0; row < rows && top+row < len(lines); row++ {
		drawString(v.screen, 0, row+1, w, strings.TrimSuffix(lines[top+row], "\r"), styleText)
	}

	if b.Loading {
		v.screen.HideCursor()
		return
	}
	start, _ := lineBounds(b.Content, pos)
	v.screen.ShowCursor(displayWidth(b.Content[start:pos]), line-top+1)
}

func (v *View) drawStatus(b editor.Buffer, ok bool, w, h int) {
	if h < 2 {
		return
	}
	y := h - 1
	fill(v.screen, y, w, styleStatus)
	if v.searching {
		drawString(v.screen, 0, y, w, " search: "+v.query, styleStatus)
		return
	}
	if !ok {
		drawString(v.screen, 0, y, w, " "+v.message, styleStatus)
		return
	}

	pos := v.cursor(b)
	start, _ := lineBounds(b.Content, pos)
	parts := []string{
		b.Path,
		syncLabel(b),
		fmt.Sprintf("Ln %d, Col %d", lineIndex(b.Content, pos)+1, displayWidth(b.Content[start:pos])+1),
	}
	if b.Dirty {
		parts = append(parts, "modified")
	}
	if b.Saving {
		parts = append(parts, "saving")
	}
	if b.Truncated {
		parts = append(parts, "truncated")
	}

	style := styleStatus
	if b.LastError != "" {
		parts = append(parts, "error: "+b.LastError)
		style = styleError
	} else if v.message != "" {
		parts = append(parts, v.message)
	}
	drawString(v.screen, 0, y, w, " "+strings.Join(parts, " | "), style)
}

func syncLabel(b editor.Buffer) string {
	if b.Loading {
		return "loading"
	}
	if b.Sync.Kind == editor.Synced {
		return fmt.Sprintf("synced v%d", b.Sync.Version)
	}
	return b.Sync.Kind.String()
}

func fill(s tcell.Screen, y, w int, style tcell.Style) {
	for x := 0; x < w; x++ {
		s.SetContent(x, y, ' ', nil, style)
	}
}

// drawString draws str from column x on row y, clipped at maxX, and returns
// the column after the last cell written.
func drawString(s tcell.Screen, x, y, maxX int, str string, style tcell.Style) int {
	gr := uniseg.NewGraphemes(str)
	for gr.Next() && x < maxX {
		runes := gr.Runes()
		width := gr.Width()
		if runes[0] == '\t' {
			for i := 0; i < tabWidth && x < maxX; i++ {
				s.SetContent(x, y, ' ', nil, style)
				x++
			}
			continue
		}
		if width <= 0 {
			continue
		}
		if x+width > maxX {
			break
		}
		s.SetContent(x, y, runes[0], runes[1:], style)
		x += width
	}
	return x
}
