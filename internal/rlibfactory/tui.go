package rlibfactory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type logInfo struct {
	crate   string
	path    string
	content string
	status  string // recorded outcome, empty while a build is still running
}

var (
	tuiApp          *tview.Application
	tuiLogs         []logInfo
	tuiActiveIdx    int
	tuiPrevIdx      int
	tuiHeaderBox    *tview.TextView
	tuiLogView      *tview.TextView
	tuiFooterBox    *tview.TextView
	tuiFlex         *tview.Flex
	tuiUpdateChan   chan []logInfo
	tuiPrevContent  map[string]string
	tuiShouldScroll bool
)

// runLogTUI shows the per-crate build logs with live refresh, newest first.
func runLogTUI() int {
	tuiUpdateChan = make(chan []logInfo, 10)
	tuiPrevContent = make(map[string]string)
	tuiPrevIdx = -1

	tuiApp = tview.NewApplication()

	tuiHeaderBox = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetTextAlign(tview.AlignLeft)
	tuiHeaderBox.SetBorder(true)
	tuiHeaderBox.SetTitle("rlibfactory Build Log Viewer")

	// SetDynamicColors(true) lets ANSI escape sequences from cargo render.
	tuiLogView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false).
		SetScrollable(true).
		SetChangedFunc(func() {
			tuiApp.Draw()
		})
	tuiLogView.SetBorder(true)

	tuiFooterBox = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(true).
		SetTextAlign(tview.AlignLeft)
	tuiFooterBox.SetBorder(true)

	tuiFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tuiHeaderBox, 3, 0, false).
		AddItem(tuiLogView, 0, 1, true).
		AddItem(tuiFooterBox, 4, 0, false)

	tuiFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		key := event.Key()
		r := event.Rune()

		switch key {
		case tcell.KeyCtrlQ, tcell.KeyEsc:
			tuiApp.Stop()
			return nil
		case tcell.KeyLeft:
			switchLog(-1)
			return nil
		case tcell.KeyRight:
			switchLog(1)
			return nil
		case tcell.KeyHome:
			tuiLogView.ScrollToBeginning()
			return nil
		case tcell.KeyEnd:
			tuiLogView.ScrollToEnd()
			return nil
		case tcell.KeyUp:
			row, _ := tuiLogView.GetScrollOffset()
			if row > 0 {
				tuiLogView.ScrollTo(row-1, 0)
			}
			return nil
		case tcell.KeyDown:
			row, _ := tuiLogView.GetScrollOffset()
			tuiLogView.ScrollTo(row+1, 0)
			return nil
		case tcell.KeyPgUp:
			row, _ := tuiLogView.GetScrollOffset()
			if row > 10 {
				tuiLogView.ScrollTo(row-10, 0)
			} else {
				tuiLogView.ScrollToBeginning()
			}
			return nil
		case tcell.KeyPgDn:
			row, _ := tuiLogView.GetScrollOffset()
			tuiLogView.ScrollTo(row+10, 0)
			return nil
		case tcell.KeyRune:
			switch r {
			case 'q':
				tuiApp.Stop()
				return nil
			case 'h':
				switchLog(-1)
				return nil
			case 'l':
				switchLog(1)
				return nil
			case 'd':
				if tuiActiveIdx < len(tuiLogs) && tuiLogs[tuiActiveIdx].status != "" {
					os.Remove(tuiLogs[tuiActiveIdx].path)
					go func() {
						tuiUpdateChan <- readAllCrateLogs()
					}()
				}
				return nil
			}
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(400 * time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			logs := readAllCrateLogs()
			select {
			case tuiUpdateChan <- logs:
			default:
			}
		}
	}()

	go func() {
		for logs := range tuiUpdateChan {
			var currentPath string
			if tuiActiveIdx < len(tuiLogs) {
				currentPath = tuiLogs[tuiActiveIdx].path
			}

			tuiLogs = logs

			if currentPath != "" {
				found := false
				for i, log := range tuiLogs {
					if log.path == currentPath {
						tuiActiveIdx = i
						found = true
						break
					}
				}
				if !found && tuiActiveIdx >= len(tuiLogs) && len(tuiLogs) > 0 {
					tuiActiveIdx = len(tuiLogs) - 1
				}
			}

			tuiApp.QueueUpdateDraw(func() {
				updateLogTUI()
			})
		}
	}()

	tuiApp.SetRoot(tuiFlex, true).SetFocus(tuiLogView)

	tuiLogs = readAllCrateLogs()
	if len(tuiLogs) > 0 {
		tuiActiveIdx = 0
	}
	updateLogTUI()

	if err := tuiApp.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "tui:", err)
		return 1
	}
	return 0
}

func switchLog(dir int) {
	if len(tuiLogs) == 0 {
		return
	}
	tuiActiveIdx += dir
	if tuiActiveIdx < 0 {
		tuiActiveIdx = len(tuiLogs) - 1
	}
	if tuiActiveIdx >= len(tuiLogs) {
		tuiActiveIdx = 0
	}
	tuiShouldScroll = true
	updateLogTUI()
}

func updateLogTUI() {
	if tuiApp == nil || tuiHeaderBox == nil || tuiLogView == nil || tuiFooterBox == nil {
		return
	}

	var headerText strings.Builder
	if len(tuiLogs) == 0 {
		headerText.WriteString("[gray]No build logs found[white]")
	} else if tuiActiveIdx < len(tuiLogs) {
		log := tuiLogs[tuiActiveIdx]
		title := fmt.Sprintf("Log %d/%d: %s", tuiActiveIdx+1, len(tuiLogs), log.crate)
		if log.status != "" {
			title += fmt.Sprintf(" [%s]", log.status)
		} else {
			title += " [running]"
		}
		headerText.WriteString(fmt.Sprintf("[gray]%s[white]", title))
	} else {
		headerText.WriteString("[gray]No active log[white]")
	}
	tuiHeaderBox.SetText(headerText.String())

	if len(tuiLogs) == 0 {
		tuiLogView.SetText("No build log yet. Run 'rlibfactory build' to start a batch.")
	} else if tuiActiveIdx < len(tuiLogs) {
		log := tuiLogs[tuiActiveIdx]
		prevContent, hadPrevContent := tuiPrevContent[log.path]

		switchedTabs := tuiPrevIdx != tuiActiveIdx
		if switchedTabs {
			tuiPrevIdx = tuiActiveIdx
		}

		if log.content != prevContent || switchedTabs {
			row, _ := tuiLogView.GetScrollOffset()

			wasAtBottom := false
			if !switchedTabs && hadPrevContent {
				tuiLogView.ScrollTo(row+1, 0)
				newRow, _ := tuiLogView.GetScrollOffset()
				wasAtBottom = newRow == row
				tuiLogView.ScrollTo(row, 0)
			}

			tuiLogView.Clear()
			ansiWriter := tview.ANSIWriter(tuiLogView)
			ansiWriter.Write([]byte(log.content))

			if switchedTabs || tuiShouldScroll {
				tuiLogView.ScrollToEnd()
				tuiShouldScroll = false
			} else if wasAtBottom {
				tuiLogView.ScrollToEnd()
			} else if hadPrevContent {
				prevLines := strings.Count(prevContent, "\n")
				newLines := strings.Count(log.content, "\n")
				if newLines > prevLines {
					tuiLogView.ScrollTo(row+(newLines-prevLines), 0)
				} else {
					tuiLogView.ScrollTo(row, 0)
				}
			}

			tuiPrevContent[log.path] = log.content
		}
	} else {
		tuiLogView.SetText("")
	}

	segments := []string{
		"Press 'q' or Ctrl+Q to quit",
		"← → (or h/l) to switch crates",
		"↑ ↓ to scroll",
		"Home/End to jump to start/end",
	}
	if len(tuiLogs) > 0 && tuiActiveIdx < len(tuiLogs) && tuiLogs[tuiActiveIdx].status != "" {
		segments = append(segments, "'d' to delete log")
	}
	tuiFooterBox.SetText(fmt.Sprintf("[gray]%s[white]", strings.Join(segments, " | ")))
}

// readAllCrateLogs loads every per-crate log, newest first, annotated with
// the recorded outcome from the run state where one exists.
func readAllCrateLogs() []logInfo {
	crates, err := listLogs(LogsDir)
	if err != nil || len(crates) == 0 {
		return nil
	}

	state := loadRunState(filepath.Join(StateDir, "latest-build-state.json"))

	logs := make([]logInfo, 0, len(crates))
	for _, crate := range crates {
		path, err := logPathFor(LogsDir, crate)
		if err != nil {
			continue
		}
		content, err := readLogFile(path)
		if err != nil {
			content = fmt.Sprintf("failed to read log: %v", err)
		}
		var status string
		if rec, ok := state.Crates[crate]; ok {
			status = rec.Status
		}
		logs = append(logs, logInfo{
			crate:   crate,
			path:    path,
			content: content,
			status:  status,
		})
	}

	// Newest first so an in-flight build surfaces on top.
	sort.Slice(logs, func(i, j int) bool {
		ai, err1 := os.Stat(logs[i].path)
		aj, err2 := os.Stat(logs[j].path)
		if err1 != nil || err2 != nil {
			return logs[i].path > logs[j].path
		}
		return ai.ModTime().After(aj.ModTime())
	})

	return logs
}
