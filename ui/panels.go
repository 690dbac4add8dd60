package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	accentTag   = "[#ff69b4]"
	accentReset = "[-]"
)

var (
	uiBorderColor  = tcell.ColorGray
	uiFocusColor   = tcell.ColorHotPink
	uiTitleColor   = tcell.ColorHotPink
	uiDimColor     = tcell.ColorDimGray
	uiAlertColor   = tcell.ColorRed
	uiHeaderColor  = tcell.ColorHotPink
	uiNoDataColor  = tcell.ColorYellow
	uiSparkColor   = tcell.ColorTeal
	uiDefaultColor = tcell.ColorWhite
)

func applyFocusBoxStyle(box *tview.Box, title string, focused bool) {
	if box == nil {
		return
	}
	if title != "" {
		box.SetTitle(accentText(title)).SetTitleAlign(tview.AlignLeft)
	}
	box.SetTitleColor(uiTitleColor)
	if focused {
		box.SetBorderColor(uiFocusColor)
		return
	}
	box.SetBorderColor(uiBorderColor)
}

func newBoxedTextView(title string) *tview.TextView {
	tv := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	tv.SetBorder(true)
	applyFocusBoxStyle(tv.Box, title, false)
	return tv
}

func accentText(text string) string {
	if text == "" {
		return ""
	}
	return accentTag + text + accentReset
}
